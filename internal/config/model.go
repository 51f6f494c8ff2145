// Package config holds the in-memory configuration model: the target catalog,
// global settings, their validation, and persistence to YAML documents.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fgeck/sevenzip-backup/internal/models"
	"github.com/rs/zerolog"
)

// Model owns the target and global configuration of a run. All mutation goes
// through its methods.
type Model struct {
	logger  zerolog.Logger
	version string
	targets models.TargetConfig
	global  models.GlobalConfig
	hooks   models.Hooks
}

// NewModel creates a model seeded with the base catalog and default global config.
// Folder paths are unset until UpdatePaths is called.
func NewModel(logger zerolog.Logger, version string) *Model {
	return &Model{
		logger:  logger,
		version: version,
		targets: baseCatalog(),
		global:  models.DefaultGlobalConfig(),
	}
}

// UpdatePaths fills in folder paths from a path provider mapping and adds the
// conditional items whose prerequisites exist. Folder items are looked up by
// the part of their id after the first underscore.
func (m *Model) UpdatePaths(paths map[string]string) models.TargetConfig {
	for id, item := range detectedItems(paths) {
		if _, exists := m.targets[id]; !exists {
			m.logger.Debug().Str("target", id).Str("path", item.Path.String()).Msg("optional target detected")
			m.targets[id] = item
		}
	}

	for _, entry := range m.targets.Sorted() {
		if entry.Item.Type != models.ItemTypeFolder {
			continue
		}
		key := strings.ToLower(strings.SplitN(entry.ID, "_", 2)[1])
		path, ok := paths[key]
		if !ok {
			if entry.Item.Path.IsAbsent() {
				m.logger.Error().Str("target", entry.ID).Msg("path not found")
			}
			continue
		}
		item := entry.Item
		item.Path = models.SinglePath(path)
		m.targets[entry.ID] = item
		m.logger.Debug().Str("target", entry.ID).Str("path", path).Msg("path updated")
	}

	return m.targets.Clone()
}

// AddItem validates fields, merges them onto the item defaults and stores the
// result under id, replacing any existing item. It returns the full updated
// configuration.
func (m *Model) AddItem(id string, fields map[string]interface{}) (models.TargetConfig, error) {
	if !ValidTargetID(id) {
		return nil, invalidArgument("invalid config item id %q: must be in the format 00_name or 00_long_name", id)
	}
	if fields == nil {
		return nil, invalidArgument("config item for %s must be a key/value record", id)
	}

	permitted := make(map[string]bool, len(itemKeys))
	for _, key := range itemKeys {
		permitted[key] = true
	}
	var unknown []string
	for key := range fields {
		if !permitted[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, invalidArgument("keys %s in config item not permitted", strings.Join(unknown, ", "))
	}

	merged := itemDefaults()
	for key, value := range fields {
		merged[key] = value
	}

	if merged["name"] == nil {
		return nil, invalidArgument("name is required for config item %s", id)
	}
	if fmt.Sprint(merged["type"]) == string(models.ItemTypeFolder) && merged["path"] == nil {
		return nil, invalidArgument("path is required for config item %s with type folder", id)
	}

	item, _, err := decodeItem(merged)
	if err != nil {
		return nil, fmt.Errorf("%w: config item %s: %v", ErrInvalidArgument, id, err)
	}

	m.logger.Debug().Interface("fields", fields).Interface("item", item).Str("target", id).Msg("config item added")

	m.targets[id] = item
	return m.targets.Clone(), nil
}

// Targets returns a copy of the target configuration.
func (m *Model) Targets() models.TargetConfig {
	return m.targets.Clone()
}

// SetTargets merges cfg into the current target configuration.
func (m *Model) SetTargets(cfg models.TargetConfig) {
	for id, item := range cfg.Clone() {
		m.targets[id] = item
	}
}

// SetEnabled enables or disables a single target.
func (m *Model) SetEnabled(id string, enabled bool) error {
	item, ok := m.targets[id]
	if !ok {
		return invalidArgument("unknown target %s", id)
	}
	item.Enabled = enabled
	m.targets[id] = item
	return nil
}

// Global returns the global configuration.
func (m *Model) Global() models.GlobalConfig {
	return m.global
}

// SetOutputRootDir sets the directory the per-run output folder is created in.
func (m *Model) SetOutputRootDir(path string) (models.GlobalConfig, error) {
	if path == "" {
		return m.global, invalidArgument("output root dir must not be empty")
	}
	m.global.OutputRootDir = path
	return m.global, nil
}

// SetEncryptionPassword sets the archive password. An empty password disables encryption.
func (m *Model) SetEncryptionPassword(password string) models.GlobalConfig {
	m.global.EncryptionPassword = password
	m.global.EncryptionEnabled = password != ""
	return m.global
}

// Hooks returns the integrations loaded from the config file.
func (m *Model) Hooks() models.Hooks {
	return m.hooks
}
