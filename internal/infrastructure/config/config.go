package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Wormbot Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	PanTilt   PanTiltConfig   `yaml:"pantilt"`
	Camera    CameraConfig    `yaml:"camera"`
	Periphery PeripheryConfig `yaml:"periphery"`
}

// SiteConfig identifies this controller instance.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
// The broker is only used for outbound telemetry.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// Used when Output is "file".
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Hardware backends.
const (
	BackendPigpiod = "pigpiod"
	BackendPCA9685 = "pca9685"
	BackendRPIO    = "rpio"
	BackendSim     = "sim"
)

// HardwareConfig selects and configures the PWM driver backend.
type HardwareConfig struct {
	// Backend is one of "pigpiod", "pca9685", "rpio" or "sim".
	Backend string `yaml:"backend"`

	Pigpiod PigpiodConfig `yaml:"pigpiod"`
	PCA9685 PCA9685Config `yaml:"pca9685"`

	// Daemon configures optional supervision of the pigpiod process.
	Daemon DaemonConfig `yaml:"daemon"`
}

// PigpiodConfig contains the pigpiod socket address.
type PigpiodConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// PCA9685Config contains I2C settings for a PCA9685 servo board.
type PCA9685Config struct {
	// Bus is the periph.io I2C bus name. Empty selects the first available bus.
	Bus     string `yaml:"bus"`
	Address uint16 `yaml:"address"`
}

// DaemonConfig contains settings for supervising the GPIO daemon.
type DaemonConfig struct {
	// Managed indicates whether Wormbot starts and stops the daemon itself.
	// If false, the daemon is expected to run as a system service.
	Managed bool `yaml:"managed"`

	// Binary is the path to the daemon executable.
	// Default: "/usr/bin/pigpiod"
	Binary string `yaml:"binary"`

	// Args are extra arguments passed to the daemon.
	Args []string `yaml:"args"`

	// StartupDelay is how long to wait for the daemon socket after launch.
	// Default: 1s
	StartupDelay time.Duration `yaml:"startup_delay"`

	RestartOnFailure   bool `yaml:"restart_on_failure"`
	MaxRestartAttempts int  `yaml:"max_restart_attempts"`
}

// PanTiltConfig contains pan-tilt mount settings.
type PanTiltConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Name        string  `yaml:"name"`
	PanPin      int     `yaml:"pan_pin"`
	TiltPin     int     `yaml:"tilt_pin"`
	PanNeutral  int     `yaml:"pan_neutral"`
	TiltNeutral int     `yaml:"tilt_neutral"`
	MinPan      int     `yaml:"min_pan"`
	MaxPan      int     `yaml:"max_pan"`
	MinTilt     int     `yaml:"min_tilt"`
	MaxTilt     int     `yaml:"max_tilt"`
	Speed       float64 `yaml:"speed"`
}

// Camera backends.
const (
	CameraBackendCommand = "command"
	CameraBackendSim     = "sim"
)

// CameraConfig contains camera periphery settings.
type CameraConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`

	// Backend is "command" (still-capture executable) or "sim".
	Backend string `yaml:"backend"`

	// Command is the still-capture executable, e.g. "libcamera-still".
	Command string `yaml:"command"`

	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	CaptureDir string `yaml:"capture_dir"`
}

// PeripheryConfig contains parameter persistence settings.
type PeripheryConfig struct {
	// ConfigPath is the parameter file applied at boot.
	ConfigPath string `yaml:"config_path"`

	// BackupPath is the reserved snapshot file used for rollback.
	BackupPath string `yaml:"backup_path"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: WORMBOT_SECTION_KEY
// For example: WORMBOT_HARDWARE_BACKEND, WORMBOT_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration.
// It is valid as-is and drives the simulated hardware backend.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with the values of the reference mount.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "wormbot-001",
			Name: "Wormbot",
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/wormbot.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "wormbot-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/wormbot.log",
				MaxSize:    10,
				MaxBackups: 5,
				MaxAge:     30,
			},
		},
		Hardware: HardwareConfig{
			Backend: BackendSim,
			Pigpiod: PigpiodConfig{
				Host:           "localhost",
				Port:           8888,
				ConnectTimeout: 5 * time.Second,
			},
			PCA9685: PCA9685Config{
				Address: 0x40,
			},
			Daemon: DaemonConfig{
				Binary:             "/usr/bin/pigpiod",
				Args:               []string{"-g"},
				StartupDelay:       time.Second,
				RestartOnFailure:   true,
				MaxRestartAttempts: 5,
			},
		},
		PanTilt: PanTiltConfig{
			Enabled:     true,
			Name:        "pantilt",
			PanPin:      14,
			TiltPin:     15,
			PanNeutral:  1525,
			TiltNeutral: 2050,
			MinPan:      600,
			MaxPan:      2450,
			MinTilt:     1700,
			MaxTilt:     2300,
			Speed:       0.003,
		},
		Camera: CameraConfig{
			Enabled:    true,
			Name:       "camera",
			Backend:    CameraBackendSim,
			Command:    "libcamera-still",
			Width:      1920,
			Height:     1080,
			CaptureDir: "./captures",
		},
		Periphery: PeripheryConfig{
			ConfigPath: "default.config",
			BackupPath: "backup.config",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: WORMBOT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WORMBOT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("WORMBOT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("WORMBOT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("WORMBOT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("WORMBOT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("WORMBOT_HARDWARE_BACKEND"); v != "" {
		cfg.Hardware.Backend = v
	}
	if v := os.Getenv("WORMBOT_PIGPIOD_HOST"); v != "" {
		cfg.Hardware.Pigpiod.Host = v
	}
	if v := os.Getenv("WORMBOT_PIGPIOD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Hardware.Pigpiod.Port = port
		}
	}

	if v := os.Getenv("WORMBOT_PERIPHERY_CONFIG"); v != "" {
		cfg.Periphery.ConfigPath = v
	}
	if v := os.Getenv("WORMBOT_PERIPHERY_BACKUP"); v != "" {
		cfg.Periphery.BackupPath = v
	}
}

// servoPulseMin and servoPulseMax bound every configured pulse width (µs).
const (
	servoPulseMin = 500
	servoPulseMax = 2500
)

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of all validation failures, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	switch c.Hardware.Backend {
	case BackendPigpiod:
		if c.Hardware.Pigpiod.Port < 1 || c.Hardware.Pigpiod.Port > 65535 {
			errs = append(errs, "hardware.pigpiod.port must be between 1 and 65535")
		}
	case BackendPCA9685, BackendRPIO, BackendSim:
	default:
		errs = append(errs, fmt.Sprintf("hardware.backend %q is not one of pigpiod, pca9685, rpio, sim", c.Hardware.Backend))
	}

	if c.Hardware.Daemon.Managed && c.Hardware.Daemon.Binary == "" {
		errs = append(errs, "hardware.daemon.binary is required when the daemon is managed")
	}

	if c.PanTilt.Enabled {
		errs = append(errs, c.PanTilt.validate()...)
	}

	if c.Camera.Enabled {
		switch c.Camera.Backend {
		case CameraBackendCommand:
			if c.Camera.Command == "" {
				errs = append(errs, "camera.command is required for the command backend")
			}
		case CameraBackendSim:
		default:
			errs = append(errs, fmt.Sprintf("camera.backend %q is not one of command, sim", c.Camera.Backend))
		}
		if c.Camera.Name == "" {
			errs = append(errs, "camera.name is required")
		}
	}

	if c.PanTilt.Enabled && c.Camera.Enabled && c.PanTilt.Name == c.Camera.Name {
		errs = append(errs, "pantilt.name and camera.name must differ")
	}

	if c.Periphery.BackupPath == "" {
		errs = append(errs, "periphery.backup_path is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (p PanTiltConfig) validate() []string {
	var errs []string

	if p.Name == "" {
		errs = append(errs, "pantilt.name is required")
	}
	if p.PanPin == p.TiltPin {
		errs = append(errs, "pantilt.pan_pin and pantilt.tilt_pin must differ")
	}

	checkPulse := func(field string, v int) {
		if v < servoPulseMin || v > servoPulseMax {
			errs = append(errs, fmt.Sprintf("pantilt.%s must be between %d and %d", field, servoPulseMin, servoPulseMax))
		}
	}
	checkPulse("min_pan", p.MinPan)
	checkPulse("max_pan", p.MaxPan)
	checkPulse("min_tilt", p.MinTilt)
	checkPulse("max_tilt", p.MaxTilt)

	if p.MinPan > p.MaxPan {
		errs = append(errs, "pantilt.min_pan must not exceed pantilt.max_pan")
	}
	if p.MinTilt > p.MaxTilt {
		errs = append(errs, "pantilt.min_tilt must not exceed pantilt.max_tilt")
	}
	if p.PanNeutral < p.MinPan || p.PanNeutral > p.MaxPan {
		errs = append(errs, "pantilt.pan_neutral must lie within [min_pan, max_pan]")
	}
	if p.TiltNeutral < p.MinTilt || p.TiltNeutral > p.MaxTilt {
		errs = append(errs, "pantilt.tilt_neutral must lie within [min_tilt, max_tilt]")
	}
	if p.Speed < 0 || p.Speed > 1 {
		errs = append(errs, "pantilt.speed must be between 0 and 1 seconds")
	}

	return errs
}

// StepDelay returns the pan-tilt settle delay as a Duration.
func (p PanTiltConfig) StepDelay() time.Duration {
	return time.Duration(math.Round(p.Speed * float64(time.Second)))
}
