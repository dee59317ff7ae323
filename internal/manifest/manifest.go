// Package manifest locates the native helper manifest that points at the
// relay discovery binary. The helper is installed as a browser native
// messaging host, so the well-known locations are the per-browser
// NativeMessagingHosts directories.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/mcplink/toolbridge/internal/logx"
)

// ErrNotFound is returned when no readable manifest exists in any of the
// searched locations.
var ErrNotFound = errors.New("manifest not found")

// Descriptor is the parsed helper manifest.
type Descriptor struct {
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Path           string   `json:"path"`
	Type           string   `json:"type,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`

	// Origin is the manifest file the descriptor was read from.
	Origin string `json:"-"`
}

// Locate searches the platform's well-known manifest locations, extra
// directories first, and returns the first readable, well-formed descriptor.
func Locate(name string, extraDirs []string) (Descriptor, error) {
	home, _ := os.UserHomeDir()
	return locateIn(candidatePaths(runtime.GOOS, home, os.Getenv("LOCALAPPDATA"), name, extraDirs))
}

func candidatePaths(goos, home, localAppData, name string, extraDirs []string) []string {
	var paths []string
	for _, dir := range extraDirs {
		paths = append(paths, filepath.Join(dir, name))
	}
	switch goos {
	case "darwin":
		base := filepath.Join(home, "Library", "Application Support")
		paths = append(paths,
			filepath.Join(base, "Google", "Chrome", "NativeMessagingHosts", name),
			filepath.Join(base, "Chromium", "NativeMessagingHosts", name),
			filepath.Join(base, "Microsoft Edge", "NativeMessagingHosts", name),
		)
	case "windows":
		if localAppData == "" {
			localAppData = filepath.Join(home, "AppData", "Local")
		}
		paths = append(paths,
			filepath.Join(localAppData, "Google", "Chrome", "User Data", "NativeMessagingHosts", name),
			filepath.Join(localAppData, "Microsoft", "Edge", "User Data", "NativeMessagingHosts", name),
		)
	default:
		base := filepath.Join(home, ".config")
		paths = append(paths,
			filepath.Join(base, "google-chrome", "NativeMessagingHosts", name),
			filepath.Join(base, "chromium", "NativeMessagingHosts", name),
			filepath.Join(base, "microsoft-edge", "NativeMessagingHosts", name),
		)
	}
	return paths
}

func locateIn(paths []string) (Descriptor, error) {
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var d Descriptor
		if err := json.Unmarshal(b, &d); err != nil {
			logx.Log.Debug().Str("path", p).Err(err).Msg("skipping malformed manifest")
			continue
		}
		if d.Path == "" {
			logx.Log.Debug().Str("path", p).Msg("skipping manifest without helper path")
			continue
		}
		d.Origin = p
		return d, nil
	}
	return Descriptor{}, fmt.Errorf("%w after checking %d locations", ErrNotFound, len(paths))
}
