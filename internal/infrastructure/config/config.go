package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the G32 bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Account   AccountConfig          `yaml:"account"`
	Relay     RelayConfig            `yaml:"relay"`
	Retry     RetryConfig            `yaml:"retry"`
	Grills    map[string]GrillConfig `yaml:"grills"`
	Database  DatabaseConfig         `yaml:"database"`
	MQTT      MQTTConfig             `yaml:"mqtt"`
	API       APIConfig              `yaml:"api"`
	WebSocket WebSocketConfig        `yaml:"websocket"`
	InfluxDB  InfluxDBConfig         `yaml:"influxdb"`
	Logging   LoggingConfig          `yaml:"logging"`
	Debug     DebugConfig            `yaml:"debug"`
}

// AccountConfig contains the Otto Wilde cloud account used for discovery.
type AccountConfig struct {
	Email      string `yaml:"email"`
	Password   string `yaml:"password"`
	APIBaseURL string `yaml:"api_base_url"`
	// Timeout is the HTTP timeout for cloud calls, in seconds.
	Timeout int `yaml:"timeout"`
}

// RelayConfig contains the telemetry relay endpoint and session timing.
// Durations are in seconds.
type RelayConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	HeartbeatTimeout int    `yaml:"heartbeat_timeout"`
	ConnectTimeout   int    `yaml:"connect_timeout"`
	ReadBufferSize   int    `yaml:"read_buffer_size"`
}

// RetryConfig contains the reconnect policy. Durations are in seconds.
type RetryConfig struct {
	RapidAttempts int `yaml:"rapid_attempts"`
	RapidDelay    int `yaml:"rapid_delay"`
	InitialDelay  int `yaml:"initial_delay"`
	MaxDelay      int `yaml:"max_delay"`
	GiveUpAfter   int `yaml:"give_up_after"`
}

// GrillConfig contains per-grill settings, keyed by serial number.
type GrillConfig struct {
	// AutoConnect enables the grill's connection at startup.
	AutoConnect bool `yaml:"auto_connect"`

	// PresenceTopic is an MQTT topic whose payload gates the connection.
	// Empty means the grill is never gated.
	PresenceTopic string `yaml:"presence_topic"`

	// HomePayload is the presence payload that permits connecting.
	// Default: "home"
	HomePayload string `yaml:"home_payload"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DebugConfig contains the user-facing debug log settings.
type DebugConfig struct {
	// Enabled starts the bridge with the debug log switched on.
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: G32_SECTION_KEY
// For example: G32_ACCOUNT_PASSWORD, G32_MQTT_HOST
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
	cfg.applyGrillDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Account: AccountConfig{
			APIBaseURL: "https://mobile-api.ottowildeapp.com",
			Timeout:    30,
		},
		Relay: RelayConfig{
			Host:             "socket.ottowildeapp.com",
			Port:             4502,
			HeartbeatTimeout: 90,
			ConnectTimeout:   15,
			ReadBufferSize:   1024,
		},
		Retry: RetryConfig{
			RapidAttempts: 5,
			RapidDelay:    2,
			InitialDelay:  30,
			MaxDelay:      300,
			GiveUpAfter:   1800,
		},
		Database: DatabaseConfig{
			Path:        "./data/g32bridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "g32bridge",
			},
			QoS:         1,
			TopicPrefix: "g32",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
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
		InfluxDB: InfluxDBConfig{
			Bucket:        "g32",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: G32_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Account credentials belong in the environment, not the file.
	if v := os.Getenv("G32_ACCOUNT_EMAIL"); v != "" {
		cfg.Account.Email = v
	}
	if v := os.Getenv("G32_ACCOUNT_PASSWORD"); v != "" {
		cfg.Account.Password = v
	}

	// Relay
	if v := os.Getenv("G32_RELAY_HOST"); v != "" {
		cfg.Relay.Host = v
	}

	// Database
	if v := os.Getenv("G32_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("G32_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("G32_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("G32_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("G32_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("G32_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Debug
	if v := os.Getenv("G32_DEBUG"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			cfg.Debug.Enabled = on
		}
	}
}

// applyGrillDefaults fills per-grill settings left empty in the file.
func (c *Config) applyGrillDefaults() {
	for serial, g := range c.Grills {
		if g.HomePayload == "" {
			g.HomePayload = "home"
		}
		c.Grills[serial] = g
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Account validation
	if c.Account.Email == "" {
		errs = append(errs, "account.email is required (set G32_ACCOUNT_EMAIL environment variable)")
	}
	if c.Account.Password == "" {
		errs = append(errs, "account.password is required (set G32_ACCOUNT_PASSWORD environment variable)")
	}
	if c.Account.APIBaseURL == "" {
		errs = append(errs, "account.api_base_url is required")
	}

	// Relay validation
	if c.Relay.Host == "" {
		errs = append(errs, "relay.host is required")
	}
	if c.Relay.Port < 1 || c.Relay.Port > 65535 {
		errs = append(errs, "relay.port must be between 1 and 65535")
	}
	if c.Relay.HeartbeatTimeout <= 0 {
		errs = append(errs, "relay.heartbeat_timeout must be positive")
	}

	// Retry validation
	if c.Retry.RapidAttempts < 0 {
		errs = append(errs, "retry.rapid_attempts must not be negative")
	}
	if c.Retry.InitialDelay <= 0 || c.Retry.MaxDelay <= 0 {
		errs = append(errs, "retry.initial_delay and retry.max_delay must be positive")
	} else if c.Retry.InitialDelay > c.Retry.MaxDelay {
		errs = append(errs, "retry.initial_delay must not exceed retry.max_delay")
	}
	if c.Retry.GiveUpAfter <= 0 {
		errs = append(errs, "retry.give_up_after must be positive")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.TopicPrefix == "" || strings.ContainsAny(c.MQTT.TopicPrefix, "#+") {
		errs = append(errs, "mqtt.topic_prefix must be a non-empty topic without wildcards")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Grill validation
	for serial, g := range c.Grills {
		if strings.ContainsAny(g.PresenceTopic, "#+") {
			errs = append(errs, fmt.Sprintf("grills.%s.presence_topic must not contain wildcards", serial))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// RelayAddress returns the relay host:port.
func (c *Config) RelayAddress() string {
	return fmt.Sprintf("%s:%d", c.Relay.Host, c.Relay.Port)
}

// AutoConnectSerials returns the serials configured with auto_connect.
func (c *Config) AutoConnectSerials() []string {
	var out []string
	for serial, g := range c.Grills {
		if g.AutoConnect {
			out = append(out, serial)
		}
	}
	return out
}

// GetHeartbeatTimeout returns the relay heartbeat timeout as a Duration.
func (c *Config) GetHeartbeatTimeout() time.Duration {
	return time.Duration(c.Relay.HeartbeatTimeout) * time.Second
}

// GetConnectTimeout returns the relay dial timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.Relay.ConnectTimeout) * time.Second
}

// GetAccountTimeout returns the cloud HTTP timeout as a Duration.
func (c *Config) GetAccountTimeout() time.Duration {
	return time.Duration(c.Account.Timeout) * time.Second
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
