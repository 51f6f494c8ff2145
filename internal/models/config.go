// Package models contains the data structures used throughout sevenzip-backup.
package models

import "sort"

// ItemType selects how a target is backed up.
type ItemType string

// Supported item types.
const (
	ItemTypeFolder  ItemType = "folder"
	ItemTypeSpecial ItemType = "special"
)

// GlobalConfig holds settings shared by every target of a run.
type GlobalConfig struct {
	EncryptionEnabled  bool   `yaml:"encryption_enabled" mapstructure:"encryption_enabled"`
	EncryptionPassword string `yaml:"encryption_password" mapstructure:"encryption_password"`
	OutputRootDir      string `yaml:"output_root_dir" mapstructure:"output_root_dir"`
}

// DefaultGlobalConfig returns the global configuration used before anything is loaded.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		EncryptionEnabled:  false,
		EncryptionPassword: "",
		OutputRootDir:      ".",
	}
}

// ConfigItem describes a single backup target.
type ConfigItem struct {
	Name     string     `yaml:"name" mapstructure:"name"`
	Type     ItemType   `yaml:"type" mapstructure:"type"`
	Path     TargetPath `yaml:"path" mapstructure:"path"`
	Enabled  bool       `yaml:"enabled" mapstructure:"enabled"`
	DictSize string     `yaml:"dict_size" mapstructure:"dict_size"`
	MxLevel  int        `yaml:"mx_level" mapstructure:"mx_level"`
	FullPath bool       `yaml:"full_path" mapstructure:"full_path"`
}

// TargetConfig maps target ids to their items. The two digit id prefix
// defines the execution order; use Sorted to iterate.
type TargetConfig map[string]ConfigItem

// TargetEntry is one id/item pair of a TargetConfig.
type TargetEntry struct {
	ID   string
	Item ConfigItem
}

// IDs returns the target ids in execution order.
func (c TargetConfig) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sorted returns the entries in execution order.
func (c TargetConfig) Sorted() []TargetEntry {
	ids := c.IDs()
	entries := make([]TargetEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, TargetEntry{ID: id, Item: c[id]})
	}
	return entries
}

// Clone returns a deep copy of the configuration.
func (c TargetConfig) Clone() TargetConfig {
	if c == nil {
		return nil
	}
	out := make(TargetConfig, len(c))
	for id, item := range c {
		item.Path = item.Path.Clone()
		out[id] = item
	}
	return out
}

// Enabled returns the enabled entries in execution order.
func (c TargetConfig) Enabled() []TargetEntry {
	var entries []TargetEntry
	for _, e := range c.Sorted() {
		if e.Item.Enabled {
			entries = append(entries, e)
		}
	}
	return entries
}
