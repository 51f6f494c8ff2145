package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fgeck/sevenzip-backup/internal/models"
	"gopkg.in/yaml.v3"
)

// documentExtensions are the accepted config file extensions.
var documentExtensions = []string{".yaml", ".yml"}

type document struct {
	Global  models.GlobalConfig `yaml:"global"`
	Targets models.TargetConfig `yaml:"backup_targets"`
}

// Save writes the model's current configuration to path.
func (m *Model) Save(path string) (string, error) {
	return m.SaveConfig(path, m.targets, m.global)
}

// SaveConfig writes targets and global to a YAML file with a header comment
// naming the program version and host. It returns the path written.
func (m *Model) SaveConfig(path string, targets models.TargetConfig, global models.GlobalConfig) (string, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return "", fmt.Errorf("%w: %s must be a file", ErrIsADirectory, path)
	}
	if !hasDocumentExtension(path) {
		return "", fmt.Errorf("%w: %s must end in one of %s", ErrInvalidFormat, path, strings.Join(documentExtensions, ", "))
	}

	if len(targets) == 0 {
		m.logger.Warn().Msg("saving the base catalog, folder paths are not set")
		targets = baseCatalog()
	}

	f, err := os.Create(path) //nolint:gosec // path is chosen by the operator
	if err != nil {
		return "", fmt.Errorf("creating config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString(m.header()); err != nil {
		return "", fmt.Errorf("writing config header: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(document{Global: global, Targets: targets}); err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}

	m.logger.Info().Str("file", path).Msg("config saved")
	return path, nil
}

// LoadConfig reads a config file, validates both sections and makes them the
// model's configuration. The global section is merged onto the defaults and
// encryption is enabled whenever a password is set.
func (m *Model) LoadConfig(path string) (models.GlobalConfig, models.TargetConfig, error) {
	doc, err := NewParser().LoadFile(path)
	if err != nil {
		return models.GlobalConfig{}, nil, err
	}
	return m.apply(doc, path)
}

// LoadString is LoadConfig for in-memory documents.
func (m *Model) LoadString(content string) (models.GlobalConfig, models.TargetConfig, error) {
	doc, err := NewParser().LoadReader(content)
	if err != nil {
		return models.GlobalConfig{}, nil, err
	}
	return m.apply(doc, "<string>")
}

func (m *Model) apply(doc *Document, source string) (models.GlobalConfig, models.TargetConfig, error) {
	global, err := m.decodeGlobalDocument(doc.Global)
	if err != nil {
		return models.GlobalConfig{}, nil, fmt.Errorf("global config loaded from %s: %w", source, err)
	}
	if global.EncryptionPassword != "" {
		m.logger.Debug().Msg("encryption password from config file is not empty, enabling encryption")
		global.EncryptionEnabled = true
	}

	targets, err := m.decodeTargetDocument(doc.Targets)
	if err != nil {
		return models.GlobalConfig{}, nil, fmt.Errorf("target config loaded from %s: %w", source, err)
	}

	m.global = global
	m.targets = targets
	m.hooks = doc.Hooks

	return global, targets.Clone(), nil
}

func (m *Model) header() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("# sevenzip-backup config file\n# sevenzip-backup version %s\n# Config file created: %s on %s %s - %s\n",
		m.version, time.Now().Format("2006-01-02"), runtime.GOOS, runtime.GOARCH, host)
}

func hasDocumentExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range documentExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
