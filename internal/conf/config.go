// Package conf loads and validates the application configuration from
// config files, environment variables and defaults.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// WorkerSettings configures the external inference worker process.
type WorkerSettings struct {
	Command        string   `yaml:"command"`        // interpreter to launch, e.g. python3
	Script         string   `yaml:"script"`         // worker script path
	Args           []string `yaml:"args"`           // extra arguments appended after the script
	TopK           int      `yaml:"topk"`           // number of ranked predictions requested
	TimeoutSeconds int      `yaml:"timeoutseconds"` // per-request response deadline
}

// TriageSettings configures the observation triage pipeline.
type TriageSettings struct {
	Threshold        float64 `yaml:"threshold"`        // auto-flag below this top-1 confidence
	UploadPath       string  `yaml:"uploadpath"`       // where submitted photos live
	SpeciesImagePath string  `yaml:"speciesimagepath"` // per-species reference image root
}

// SecuritySettings holds key material for location encryption.
type SecuritySettings struct {
	DataKey string `yaml:"datakey"` // base64-encoded 32-byte AES key
}

// SQLiteSettings contains settings for the SQLite database.
type SQLiteSettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MySQLSettings contains settings for the MySQL database.
type MySQLSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
}

// OutputSettings selects the database backend.
type OutputSettings struct {
	SQLite SQLiteSettings `yaml:"sqlite"`
	MySQL  MySQLSettings  `yaml:"mysql"`
}

// LogSettings configures the rotated file log.
type LogSettings struct {
	Path string `yaml:"path"` // empty disables file logging
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Settings is the root configuration object.
type Settings struct {
	Debug bool `yaml:"debug"`

	Worker   WorkerSettings   `yaml:"worker"`
	Triage   TriageSettings   `yaml:"triage"`
	Security SecuritySettings `yaml:"security"`
	Output   OutputSettings   `yaml:"output"`
	Log      LogSettings      `yaml:"log"`
	Metrics  MetricsSettings  `yaml:"metrics"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("smartplant")
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file found, defaults and environment apply.
	}
	return nil
}

// GetDefaultConfigPaths returns the search paths for config.yaml, in order
// of precedence: working directory, then the user config directory.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}
	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "smartplant"))
	}
	return paths, nil
}

// Setting returns the current settings instance, loading it if necessary.
func Setting() *Settings {
	settingsMutex.RLock()
	instance := settingsInstance
	settingsMutex.RUnlock()
	if instance != nil {
		return instance
	}

	instance, err := Load()
	if err != nil {
		return nil
	}
	return instance
}

// GetSettings returns the current settings instance without loading.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
