// Package config loads the daemon's own operating parameters: the socket
// path, resource limits, and logging options, via a user/project
// JSON-merge Manager pattern.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Config holds the daemon's tunable operating parameters. Zero values mean
// "use the default" and are filled in by Manager.mergeConfigs.
type Config struct {
	SocketPath string `json:"socket_path,omitempty"`
	LogLevel   string `json:"log_level,omitempty"`
	LogFile    string `json:"log_file,omitempty"`

	FrameTimeMS int `json:"frame_time_ms,omitempty"`
	ClientsMax  int `json:"clients_max,omitempty"`
	PtysMax     int `json:"ptys_max,omitempty"`

	MacOSOptionAsAlt bool `json:"macos_option_as_alt,omitempty"`
}

// Defaults returns the built-in value for every limit a Config can
// override.
func Defaults() Config {
	dir, err := GetUserConfigDir()
	sock := "/tmp/mplexd.sock"
	if err == nil {
		sock = filepath.Join(dir, "mplexd.sock")
	}
	return Config{
		SocketPath:  sock,
		LogLevel:    "info",
		FrameTimeMS: 8,
		ClientsMax:  64,
		PtysMax:     256,
	}
}

// Manager merges a user-level config with a project-local override,
// project values winning.
type Manager struct {
	userConfig    *Config
	projectConfig *Config
	merged        *Config
}

func NewManager() *Manager {
	return &Manager{
		userConfig:    &Config{},
		projectConfig: &Config{},
		merged:        &Config{},
	}
}

// Load reads settings.json from userConfigDir and <projectDir>/.mplexd/,
// then merges them over the built-in defaults.
func (m *Manager) Load(userConfigDir, projectDir string) error {
	userConfigPath := filepath.Join(userConfigDir, "settings.json")
	if err := m.loadConfig(userConfigPath, m.userConfig); err != nil {
		return err
	}

	projectConfigPath := filepath.Join(projectDir, ".mplexd", "settings.json")
	if err := m.loadConfig(projectConfigPath, m.projectConfig); err != nil {
		return err
	}

	m.mergeConfigs()
	return nil
}

func (m *Manager) loadConfig(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, config)
}

func (m *Manager) mergeConfigs() {
	def := Defaults()
	m.merged = &Config{
		SocketPath:       m.getStringValue(m.userConfig.SocketPath, m.projectConfig.SocketPath, def.SocketPath),
		LogLevel:         m.getStringValue(m.userConfig.LogLevel, m.projectConfig.LogLevel, def.LogLevel),
		LogFile:          m.getStringValue(m.userConfig.LogFile, m.projectConfig.LogFile, def.LogFile),
		FrameTimeMS:      m.getIntValue(m.userConfig.FrameTimeMS, m.projectConfig.FrameTimeMS, def.FrameTimeMS),
		ClientsMax:       m.getIntValue(m.userConfig.ClientsMax, m.projectConfig.ClientsMax, def.ClientsMax),
		PtysMax:          m.getIntValue(m.userConfig.PtysMax, m.projectConfig.PtysMax, def.PtysMax),
		MacOSOptionAsAlt: m.userConfig.MacOSOptionAsAlt || m.projectConfig.MacOSOptionAsAlt,
	}
}

func (m *Manager) getStringValue(user, project, defaultValue string) string {
	if project != "" {
		return project
	}
	if user != "" {
		return user
	}
	return defaultValue
}

func (m *Manager) getIntValue(user, project, defaultValue int) int {
	if project != 0 {
		return project
	}
	if user != 0 {
		return user
	}
	return defaultValue
}

// Get returns the merged configuration.
func (m *Manager) Get() *Config {
	return m.merged
}

// FrameDuration converts FrameTimeMS into a time.Duration for the frame
// scheduler.
func (c *Config) FrameDuration() time.Duration {
	return time.Duration(c.FrameTimeMS) * time.Millisecond
}

// SaveUserConfig persists the user-level overrides only.
func (m *Manager) SaveUserConfig(userConfigDir string) error {
	configPath := filepath.Join(userConfigDir, "settings.json")
	if err := os.MkdirAll(userConfigDir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.userConfig, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0644)
}
