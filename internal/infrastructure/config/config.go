package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the mini-split bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig identifies the single Tuya device this process talks to.
type DeviceConfig struct {
	ID              string        `yaml:"id"`
	Address         string        `yaml:"address"`
	LocalKey        string        `yaml:"local_key"`
	ProtocolVersion string        `yaml:"protocol_version"`
	Port            int           `yaml:"port"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	IOTimeout       time.Duration `yaml:"io_timeout"`
}

// String renders the device section without the local key.
func (d DeviceConfig) String() string {
	key := ""
	if d.LocalKey != "" {
		key = "[redacted]"
	}
	return fmt.Sprintf("device{id=%s address=%s:%d version=%s key=%s}",
		d.ID, d.Address, d.Port, d.ProtocolVersion, key)
}

// BridgeConfig contains translation and caching settings.
type BridgeConfig struct {
	// ID names this bridge instance in MQTT topics.
	ID string `yaml:"id"`

	// DatapointsFile is the YAML datapoint table. Empty means the built-in table.
	DatapointsFile string `yaml:"datapoints_file"`

	// TempUnit is the display unit for temperatures: "F" or "C".
	TempUnit string `yaml:"temp_unit"`

	// CacheTTL is how long a fetched status is served without device I/O.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// SettleDelay is the pause between a write and the confirming status read.
	SettleDelay time.Duration `yaml:"settle_delay"`

	PollInterval   time.Duration `yaml:"poll_interval"`
	HealthInterval time.Duration `yaml:"health_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Token    string           `yaml:"token"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains status stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
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

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
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

// DatabaseConfig contains the SQLite command log settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// A missing file is not an error when allowMissing is true; the bridge can run
// from environment variables alone, as a container usually does.
//
// Parameters:
//   - path: Path to the YAML configuration file
//   - allowMissing: Treat a nonexistent file as empty
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string, allowMissing bool) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case allowMissing && os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ProtocolVersion: "3.3",
			Port:            6668,
			ConnectTimeout:  5 * time.Second,
			IOTimeout:       5 * time.Second,
		},
		Bridge: BridgeConfig{
			ID:             "minisplit",
			TempUnit:       "F",
			CacheTTL:       2 * time.Second,
			SettleDelay:    500 * time.Millisecond,
			PollInterval:   30 * time.Second,
			HealthInterval: 30 * time.Second,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "minisplit-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "graylogic",
		},
		InfluxDB: InfluxDBConfig{
			Org:    "graylogic",
			Bucket: "climate",
		},
		Database: DatabaseConfig{
			Path:        "./data/minisplit.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Device and API variables keep the names the bridge has always been deployed
// with; everything else follows MINISPLIT_SECTION_KEY.
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("TUYA_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}
	if v := os.Getenv("TUYA_DEVICE_IP"); v != "" {
		cfg.Device.Address = v
	}
	if v := os.Getenv("TUYA_LOCAL_KEY"); v != "" {
		cfg.Device.LocalKey = v
	}
	if v := os.Getenv("TUYA_PROTOCOL_VERSION"); v != "" {
		cfg.Device.ProtocolVersion = v
	}

	// Bridge
	if v := os.Getenv("TEMP_UNIT"); v != "" {
		cfg.Bridge.TempUnit = strings.ToUpper(v)
	}
	if v := os.Getenv("MINISPLIT_DATAPOINTS_FILE"); v != "" {
		cfg.Bridge.DatapointsFile = v
	}
	if v := os.Getenv("MINISPLIT_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Bridge.CacheTTL = d
		}
	}

	// API
	if v := os.Getenv("BRIDGE_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("BRIDGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("BRIDGE_TOKEN"); v != "" {
		cfg.API.Token = v
	}

	// MQTT
	if v := os.Getenv("MINISPLIT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MINISPLIT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MINISPLIT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("MINISPLIT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Database
	if v := os.Getenv("MINISPLIT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Device credentials are required; without them every connect attempt fails.
	if c.Device.ID == "" {
		errs = append(errs, "device.id is required (set TUYA_DEVICE_ID)")
	}
	if c.Device.Address == "" {
		errs = append(errs, "device.address is required (set TUYA_DEVICE_IP)")
	}
	if c.Device.LocalKey == "" {
		errs = append(errs, "device.local_key is required (set TUYA_LOCAL_KEY)")
	}
	if c.Device.Port < 1 || c.Device.Port > 65535 {
		errs = append(errs, "device.port must be between 1 and 65535")
	}

	// Bridge
	switch c.Bridge.TempUnit {
	case "F", "C":
	default:
		errs = append(errs, "bridge.temp_unit must be F or C")
	}
	if c.Bridge.CacheTTL <= 0 {
		errs = append(errs, "bridge.cache_ttl must be positive")
	}
	if c.Bridge.SettleDelay < 0 {
		errs = append(errs, "bridge.settle_delay must not be negative")
	}

	// API
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Token == "" {
		errs = append(errs, "api.token is required (set BRIDGE_TOKEN)")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Database
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
