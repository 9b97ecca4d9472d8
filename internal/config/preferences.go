package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Preferences is the persisted selection of the last session. A nil field
// means "not saved": first available form, today.
type Preferences struct {
	SelectedForm *string `yaml:"selected_form,omitempty"`
	// SelectedDate is epoch milliseconds.
	SelectedDate *int64 `yaml:"selected_date,omitempty"`
}

// LoadPreferences reads path. A missing file yields empty preferences.
func LoadPreferences(path string) (Preferences, error) {
	var p Preferences
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("failed to read preferences: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Preferences{}, fmt.Errorf("failed to parse preferences %s: %w", path, err)
	}
	return p, nil
}

// SavePreferences writes p to path.
func SavePreferences(path string, p Preferences) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return nil
}
