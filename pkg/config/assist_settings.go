package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/CompassSecurity/jsleek/pkg/format"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAssistModel = "claude-3-5-sonnet-20241022"
	// APIKeyEnv overrides the stored API key when set.
	APIKeyEnv = "ANTHROPIC_API_KEY"
)

// AssistSettings configures the AI explain command.
type AssistSettings struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`
}

func DefaultAssistSettings() AssistSettings {
	return AssistSettings{Model: DefaultAssistModel}
}

// SettingsStore loads and saves assist settings. The functions are injected so
// commands and tests can swap the backing storage.
type SettingsStore struct {
	Load func() (AssistSettings, error)
	Save func(AssistSettings) error
}

// MemorySettingsStore keeps the settings in memory only.
func MemorySettingsStore(initial AssistSettings) SettingsStore {
	current := initial
	return SettingsStore{
		Load: func() (AssistSettings, error) { return current, nil },
		Save: func(s AssistSettings) error {
			current = s
			return nil
		},
	}
}

// FileSettingsStore stores the settings as YAML at path, readable by the
// current user only. A missing file loads the defaults.
func FileSettingsStore(path string) SettingsStore {
	return SettingsStore{
		Load: func() (AssistSettings, error) {
			settings := DefaultAssistSettings()
			data, err := os.ReadFile(path)
			if errors.Is(err, fs.ErrNotExist) {
				return settings, nil
			}
			if err != nil {
				return settings, fmt.Errorf("failed reading assist settings: %w", err)
			}
			if err := yaml.Unmarshal(data, &settings); err != nil {
				return settings, fmt.Errorf("failed parsing assist settings %s: %w", path, err)
			}
			if settings.Model == "" {
				settings.Model = DefaultAssistModel
			}
			return settings, nil
		},
		Save: func(s AssistSettings) error {
			data, err := yaml.Marshal(s)
			if err != nil {
				return fmt.Errorf("failed encoding assist settings: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(path), format.DirUserGroupRead); err != nil {
				return fmt.Errorf("failed creating settings directory: %w", err)
			}
			if err := os.WriteFile(path, data, format.FileUserReadWrite); err != nil {
				return fmt.Errorf("failed writing assist settings: %w", err)
			}
			// WriteFile keeps the mode of an existing file
			return os.Chmod(path, format.FileUserReadWrite)
		},
	}
}

// DefaultAssistSettingsPath returns the settings file below the user config directory.
func DefaultAssistSettingsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed resolving config directory: %w", err)
	}
	return filepath.Join(dir, "jsleek", "assist.yaml"), nil
}

// WithEnv applies the API key environment override.
func (s AssistSettings) WithEnv(lookup func(string) (string, bool)) AssistSettings {
	if key, ok := lookup(APIKeyEnv); ok && key != "" {
		s.APIKey = key
	}
	return s
}

// Validate checks that the settings can be used for a request.
func (s AssistSettings) Validate() error {
	if s.APIKey == "" {
		return fmt.Errorf("API key cannot be empty, run 'jsleek explain configure' or set %s", APIKeyEnv)
	}
	if s.Model == "" {
		return errors.New("model cannot be empty")
	}
	if s.BaseURL != "" {
		return ValidateURL(s.BaseURL, "assist base URL")
	}
	return nil
}
