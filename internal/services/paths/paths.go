// Package paths resolves the well-known folders backed up by the folder targets.
package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
)

// Logical folder names returned by Provider.Paths.
const (
	Documents    = "documents"
	Desktop      = "desktop"
	Pictures     = "pictures"
	Downloads    = "downloads"
	Videos       = "videos"
	Music        = "music"
	SavedGames   = "saved_games"
	LocalAppData = "local_appdata"
	Home         = "home"
)

// Provider returns a mapping of logical folder names to absolute paths.
type Provider interface {
	Paths() map[string]string
}

// XDG resolves folders from the XDG user directories.
type XDG struct {
	logger zerolog.Logger
}

// New creates a provider backed by the XDG base and user directories.
func New(logger zerolog.Logger) *XDG {
	return &XDG{logger: logger}
}

// Paths returns the folders that exist on this host.
func (p *XDG) Paths() map[string]string {
	home, err := os.UserHomeDir()
	if err != nil {
		p.logger.Warn().Err(err).Msg("cannot determine home directory")
	}

	candidates := map[string]string{
		Documents:    xdg.UserDirs.Documents,
		Desktop:      xdg.UserDirs.Desktop,
		Pictures:     xdg.UserDirs.Pictures,
		Downloads:    xdg.UserDirs.Download,
		Videos:       xdg.UserDirs.Videos,
		Music:        xdg.UserDirs.Music,
		LocalAppData: xdg.DataHome,
	}
	if home != "" {
		candidates[Home] = home
		candidates[SavedGames] = filepath.Join(home, "Saved Games")
	}

	found := make(map[string]string, len(candidates))
	for name, path := range candidates {
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			p.logger.Debug().Str("folder", name).Str("path", path).Msg("well-known folder not present")
			continue
		}
		found[name] = path
	}
	return found
}
