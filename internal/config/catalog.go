package config

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/fgeck/sevenzip-backup/internal/models"
)

// Well known target ids with dedicated handlers.
const (
	ConfigSnapshotID = "01_config"
	MediaServerID    = "30_plexserver"
	VirtualBoxID     = "31_virtualboxvms"
)

var (
	targetIDPattern = regexp.MustCompile(`^\d{2}_[a-z_]+$`)
	dictSizePattern = regexp.MustCompile(`^\d+[bkmg]?$`)
)

// itemKeys is the permitted key set of a config item.
var itemKeys = []string{"name", "type", "path", "enabled", "dict_size", "mx_level", "full_path"}

// globalKeys is the permitted key set of the global section.
var globalKeys = []string{"encryption_enabled", "encryption_password", "output_root_dir"}

// ValidTargetID reports whether id has the 00_name form.
func ValidTargetID(id string) bool {
	return targetIDPattern.MatchString(id)
}

// itemDefaults is the template new items are merged onto.
func itemDefaults() map[string]interface{} {
	return map[string]interface{}{
		"name":      nil,
		"type":      string(models.ItemTypeFolder),
		"path":      nil,
		"enabled":   false,
		"dict_size": "192m",
		"mx_level":  9,
		"full_path": false,
	}
}

func baseCatalog() models.TargetConfig {
	folder := func(name, dict string, mx int) models.ConfigItem {
		return models.ConfigItem{Name: name, Type: models.ItemTypeFolder, DictSize: dict, MxLevel: mx}
	}
	return models.TargetConfig{
		ConfigSnapshotID: {Name: "System Config", Type: models.ItemTypeSpecial, DictSize: "192m", MxLevel: 9},
		"10_documents":   folder("Documents", "192m", 9),
		"11_desktop":     folder("Desktop", "192m", 9),
		"12_pictures":    folder("Pictures", "32m", 5),
		"13_downloads":   folder("Downloads", "192m", 9),
		"14_videos":      folder("Videos", "32m", 4),
		"15_music":       folder("Music", "32m", 4),
		"16_saved_games": folder("Saved Games", "192m", 9),
	}
}

// detectedItems returns the items whose prerequisite exists on this host.
func detectedItems(paths map[string]string) models.TargetConfig {
	found := models.TargetConfig{}

	if appData, ok := paths["local_appdata"]; ok {
		plex := filepath.Join(appData, "Plex Media Server")
		if isDir(plex) {
			// Large dictionaries exhaust memory on the media server database.
			found[MediaServerID] = models.ConfigItem{
				Name: "Plex Server", Type: models.ItemTypeSpecial,
				Path: models.SinglePath(plex), DictSize: "128m", MxLevel: 5,
			}
		}
	}

	if home, ok := paths["home"]; ok {
		vms := filepath.Join(home, "VirtualBox VMs")
		if isDir(vms) {
			found[VirtualBoxID] = models.ConfigItem{
				Name: "VirtualBox VMs", Type: models.ItemTypeFolder,
				Path: models.SinglePath(vms), DictSize: "128m", MxLevel: 9,
			}
		}
	}

	return found
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
