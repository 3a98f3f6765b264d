// Package settings persists user-tunable server options as a JSON
// file in the platform config directory.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultPort is the port the server listens on unless configured
// otherwise.
const DefaultPort uint16 = 12345

type Settings struct {
	Port          uint16 `json:"port"`
	StorageFolder string `json:"storage_folder"`
}

// Default returns the out-of-the-box settings: the default port and
// an Uploads folder inside the user's Downloads directory.
func Default() (*Settings, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return &Settings{
		Port:          DefaultPort,
		StorageFolder: filepath.Join(home, "Downloads", "Uploads"),
	}, nil
}

// File returns the canonical settings file location.
func File() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return filepath.Join(dir, "share-go", "settings.json"), nil
}

// Load reads settings from path. A missing file is not an error: the
// defaults are written there and returned.
func Load(path string) (*Settings, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s, err := Default()
		if err != nil {
			return nil, err
		}
		if err := Store(path, s); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	s := &Settings{}
	if err := json.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	return s, nil
}

// Store writes settings to path, creating parent directories as
// needed.
func Store(path string, s *Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}
