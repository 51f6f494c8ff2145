package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fgeck/sevenzip-backup/internal/models"
	"go.uber.org/multierr"
)

// ValidateTargetConfig checks every item of cfg and returns a *ValidationError
// listing all problems, or nil when the configuration can be run.
// Unreadable source directories are logged as warnings only.
func (m *Model) ValidateTargetConfig(cfg models.TargetConfig) error {
	if len(cfg) == 0 {
		m.logger.Error().Msg("target config not set")
		return &ValidationError{Section: "target", Err: errors.New("target config is empty")}
	}

	var errs error
	for _, entry := range cfg.Sorted() {
		errs = multierr.Append(errs, m.validateItem(entry.ID, entry.Item))
	}

	if errs != nil {
		return &ValidationError{Section: "target", Err: errs}
	}
	return nil
}

func (m *Model) validateItem(id string, item models.ConfigItem) error {
	var errs error
	fail := func(format string, args ...interface{}) {
		err := fmt.Errorf(format, args...)
		m.logger.Error().Str("target", id).Msg(err.Error())
		errs = multierr.Append(errs, err)
	}

	if !ValidTargetID(id) {
		fail("invalid target id %q: must be in the format 00_name or 00_long_name", id)
	}
	if item.Name == "" {
		fail("name for %s is required", id)
	}
	if item.Type != models.ItemTypeFolder && item.Type != models.ItemTypeSpecial {
		fail("type %q for %s not valid: must be folder or special", item.Type, id)
	}
	if item.MxLevel < 0 || item.MxLevel > 9 {
		fail("mx_level %d for %s not valid: must be in range 0-9", item.MxLevel, id)
	}
	if !dictSizePattern.MatchString(item.DictSize) {
		fail("dict_size %q for %s not valid: must be an integer optionally followed by one of bkmg", item.DictSize, id)
	}

	// A directory that exists is enough for the run to start; an unreadable
	// one will most likely fail later, so only warn.
	for _, path := range item.Path.Paths() {
		info, err := os.Stat(path)
		switch {
		case err != nil:
			fail("target path %s for %s does not exist", path, id)
		case !info.IsDir():
			fail("target path %s for %s exists but is not a directory", path, id)
		case !readableDir(path):
			m.logger.Warn().Str("target", id).Str("path", path).
				Msg("target directory exists but is not readable, check access permissions")
		}
	}

	return errs
}

// ValidateGlobalConfig checks the global section. The output root must be an
// existing, writable directory.
func (m *Model) ValidateGlobalConfig(cfg models.GlobalConfig) error {
	var errs error
	fail := func(format string, args ...interface{}) {
		err := fmt.Errorf(format, args...)
		m.logger.Error().Msg(err.Error())
		errs = multierr.Append(errs, err)
	}

	switch {
	case cfg.OutputRootDir == "":
		fail("output_root_dir is required")
	case !isDir(cfg.OutputRootDir):
		fail("output directory %s does not exist", cfg.OutputRootDir)
	case !writableDir(cfg.OutputRootDir):
		fail("output directory %s is not writable, check access permissions", cfg.OutputRootDir)
	}

	if errs != nil {
		return &ValidationError{Section: "global", Err: errs}
	}
	return nil
}

// decodeTargetDocument validates the structure of a loaded backup_targets
// section and decodes it. Structural and semantic problems are accumulated.
func (m *Model) decodeTargetDocument(raw map[string]interface{}) (models.TargetConfig, error) {
	if len(raw) == 0 {
		m.logger.Error().Msg("target config not set")
		return nil, &ValidationError{Section: "target", Err: errors.New("target config is empty")}
	}

	var errs error
	cfg := models.TargetConfig{}
	for id, node := range raw {
		record, err := asRecord(node)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("target %s: %w", id, err))
			continue
		}

		if missing := missingKeys(record, itemKeys); len(missing) > 0 {
			m.logger.Error().Str("target", id).Strs("keys", missing).Msg("required keys missing from config item")
			errs = multierr.Append(errs, fmt.Errorf("required keys %s not in config item for %s", strings.Join(missing, ", "), id))
			continue
		}

		item, unused, err := decodeItem(record)
		for _, key := range unused {
			m.logger.Warn().Str("target", id).Str("key", key).Msg("unknown key in config item, it will be ignored")
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid types in config item for %s: %w", id, err))
			continue
		}
		cfg[id] = item
	}

	if len(cfg) > 0 {
		if err := m.ValidateTargetConfig(cfg); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				err = verr.Err
			}
			errs = multierr.Append(errs, err)
		}
	}

	if errs != nil {
		return nil, &ValidationError{Section: "target", Err: errs}
	}
	return cfg, nil
}

// decodeGlobalDocument validates a loaded global section and merges it onto
// the defaults. Unknown keys are logged as warnings.
func (m *Model) decodeGlobalDocument(raw map[string]interface{}) (models.GlobalConfig, error) {
	if len(raw) == 0 {
		m.logger.Error().Msg("global config not set")
		return models.GlobalConfig{}, &ValidationError{Section: "global", Err: errors.New("global config is empty")}
	}

	var errs error
	if missing := missingKeys(raw, []string{"output_root_dir"}); len(missing) > 0 {
		m.logger.Error().Msg("required key output_root_dir not in global config")
		errs = multierr.Append(errs, errors.New("output_root_dir is required"))
	}

	cfg, unused, err := decodeGlobal(raw, models.DefaultGlobalConfig())
	for _, key := range unused {
		m.logger.Warn().Str("key", key).Msg("unknown key in global config, it will be ignored")
	}
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("invalid types in global config: %w", err))
	}

	if errs == nil {
		if err := m.ValidateGlobalConfig(cfg); err != nil {
			return models.GlobalConfig{}, err
		}
		return cfg, nil
	}
	return models.GlobalConfig{}, &ValidationError{Section: "global", Err: errs}
}

func readableDir(path string) bool {
	f, err := os.Open(path) //nolint:gosec // path comes from the validated config
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()
	_, err = f.Readdirnames(1)
	return err == nil || errors.Is(err, io.EOF)
}

func writableDir(path string) bool {
	f, err := os.CreateTemp(path, ".write-check-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
