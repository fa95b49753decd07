// Package conf loads recorder settings from config.yaml, environment and flags.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/streamrecorder/internal/errors"
	"github.com/tphakala/streamrecorder/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

const (
	configName = "config"
	envPrefix  = "STREAMRECORDER"
	appDirName = "streamrecorder"
)

// Settings is the complete recorder configuration
type Settings struct {
	Debug bool `yaml:"debug"` // true to enable debug logging

	Recorder  RecorderSettings  `yaml:"recorder"`
	Log       LogSettings       `yaml:"log"`
	Telemetry TelemetrySettings `yaml:"telemetry"`
	MQTT      MQTTSettings      `yaml:"mqtt"`
	Sentry    SentrySettings    `yaml:"sentry"`
}

// RecorderSettings configures one capture session
type RecorderSettings struct {
	Rate          int           `yaml:"rate"`          // sampling frequency in Hz
	Dura          int           `yaml:"dura"`          // segment duration in seconds
	Device        string        `yaml:"device"`        // device index, name or id, empty for system default
	EndTime       string        `yaml:"endtime"`       // daily stop time "HH:MM", "-1:0" to never stop
	BlockSize     int           `yaml:"blocksize"`     // frames per device period
	AudioPath     string        `yaml:"audiopath"`     // root directory for daily segment folders
	Backend       string        `yaml:"backend"`       // audio backend, "auto" picks per OS
	QueueSize     int           `yaml:"queuesize"`     // blocks buffered between driver callback and capture loop
	MaxRetries    int           `yaml:"maxretries"`    // consecutive transient capture errors tolerated
	StopCheck     time.Duration `yaml:"stopcheck"`     // stop-time evaluation cadence
	StopTolerance time.Duration `yaml:"stoptolerance"` // width of the daily stop window
	MinFreeSpace  uint64        `yaml:"minfreespace"`  // MB required before opening a segment, 0 disables
}

// LogSettings configures log output
type LogSettings struct {
	Path     string `yaml:"path"`     // directory for streamrecorder.log
	Level    string `yaml:"level"`    // debug, info, warn, error
	Timezone string `yaml:"timezone"` // "Local", "UTC" or IANA name
	Console  bool   `yaml:"console"`  // log to stdout
	File     bool   `yaml:"file"`     // log to <path>/streamrecorder.log
}

// TelemetrySettings configures the Prometheus endpoint
type TelemetrySettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // host:port of the metrics and health server
}

// MQTTSettings configures segment event publishing
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"` // tcp://host:1883
	Topic    string `yaml:"topic"`  // base topic, events go to <topic>/segment and <topic>/state
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"clientid"`
	Retain   bool   `yaml:"retain"`
}

// SentrySettings configures error reporting
type SentrySettings struct {
	Enabled     bool    `yaml:"enabled"`
	DSN         string  `yaml:"dsn"`
	Environment string  `yaml:"environment"`
	SampleRate  float64 `yaml:"samplerate"`
}

// LogFilePath returns the path of the recorder log file
func (s *Settings) LogFilePath() string {
	return filepath.Join(s.Log.Path, logger.DefaultLogFileName)
}

// LoggingConfig converts log settings into the central logger configuration
func (s *Settings) LoggingConfig() *logger.LoggingConfig {
	level := s.Log.Level
	if s.Debug {
		level = string(logger.LogLevelDebug)
	}

	return &logger.LoggingConfig{
		DefaultLevel: level,
		Timezone:     s.Log.Timezone,
		Console:      &logger.ConsoleOutput{Enabled: s.Log.Console, Level: level},
		FileOutput:   &logger.FileOutput{Enabled: s.Log.File, Path: s.LogFilePath(), Level: level},
	}
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
// Flags are applied afterwards by the commands and checked with ValidateSettings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_settings").
			Build()
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// initViper sets defaults, binds the environment and reads config.yaml
func initViper() error {
	viper.SetConfigName(configName)
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(configPaths[1])
		}
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "read_config").
			Build()
	}

	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml, in order
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "get_home_directory").
			Build()
	}

	return []string{
		".",
		filepath.Join(homeDir, ".config", appDirName),
		filepath.Join("/etc", appDirName),
	}, nil
}

// createDefaultConfig writes the embedded default config.yaml into dir and reads it
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, configName+".yaml")

	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("operation", "create_config_dir").
			Build()
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			FileContext(configPath, 0).
			Context("operation", "write_default_config").
			Build()
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}
