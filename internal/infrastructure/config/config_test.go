package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
account:
  email: "cook@example.com"
  password: "hunter2"
relay:
  heartbeat_timeout: 60
retry:
  rapid_attempts: 3
grills:
  G32A1B2C3D4:
    auto_connect: true
    presence_topic: "home/presence/alex"
  G32FFFFFF00:
    home_payload: "present"
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Account.Email != "cook@example.com" {
		t.Errorf("Account.Email = %q", cfg.Account.Email)
	}
	if cfg.Relay.HeartbeatTimeout != 60 {
		t.Errorf("Relay.HeartbeatTimeout = %d, want 60", cfg.Relay.HeartbeatTimeout)
	}
	if cfg.Retry.RapidAttempts != 3 {
		t.Errorf("Retry.RapidAttempts = %d, want 3", cfg.Retry.RapidAttempts)
	}
	// Unset fields keep their defaults.
	if cfg.Retry.MaxDelay != 300 {
		t.Errorf("Retry.MaxDelay = %d, want default 300", cfg.Retry.MaxDelay)
	}
	if cfg.RelayAddress() != "socket.ottowildeapp.com:4502" {
		t.Errorf("RelayAddress() = %q", cfg.RelayAddress())
	}

	g := cfg.Grills["G32A1B2C3D4"]
	if !g.AutoConnect || g.PresenceTopic != "home/presence/alex" || g.HomePayload != "home" {
		t.Errorf("grill G32A1B2C3D4 = %+v", g)
	}
	if cfg.Grills["G32FFFFFF00"].HomePayload != "present" {
		t.Errorf("HomePayload = %q, want present", cfg.Grills["G32FFFFFF00"].HomePayload)
	}
	if got := cfg.AutoConnectSerials(); !slices.Equal(got, []string{"G32A1B2C3D4"}) {
		t.Errorf("AutoConnectSerials() = %v", got)
	}
}

// TestLoad_SampleConfig keeps configs/config.yaml loadable.
func TestLoad_SampleConfig(t *testing.T) {
	t.Setenv("G32_ACCOUNT_EMAIL", "cook@example.com")
	t.Setenv("G32_ACCOUNT_PASSWORD", "hunter2")

	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.RelayAddress() != "socket.ottowildeapp.com:4502" {
		t.Errorf("RelayAddress() = %q", cfg.RelayAddress())
	}
	if cfg.MQTT.TopicPrefix != "g32" || cfg.InfluxDB.Enabled {
		t.Errorf("mqtt prefix %q influx enabled %v", cfg.MQTT.TopicPrefix, cfg.InfluxDB.Enabled)
	}
	if len(cfg.AutoConnectSerials()) != 0 {
		t.Errorf("AutoConnectSerials() = %v, want none", cfg.AutoConnectSerials())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_CredentialsFromEnvironment(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "/tmp/test.db"
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Load() expected error without account credentials")
	}

	t.Setenv("G32_ACCOUNT_EMAIL", "cook@example.com")
	t.Setenv("G32_ACCOUNT_PASSWORD", "hunter2")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Account.Password != "hunter2" {
		t.Errorf("Account.Password = %q", cfg.Account.Password)
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Account.Email = "cook@example.com"
	cfg.Account.Password = "hunter2"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing email", mutate: func(c *Config) { c.Account.Email = "" }, wantErr: "account.email"},
		{name: "missing password", mutate: func(c *Config) { c.Account.Password = "" }, wantErr: "account.password"},
		{name: "missing relay host", mutate: func(c *Config) { c.Relay.Host = "" }, wantErr: "relay.host"},
		{name: "relay port out of range", mutate: func(c *Config) { c.Relay.Port = 70000 }, wantErr: "relay.port"},
		{name: "zero heartbeat", mutate: func(c *Config) { c.Relay.HeartbeatTimeout = 0 }, wantErr: "relay.heartbeat_timeout"},
		{name: "negative rapid attempts", mutate: func(c *Config) { c.Retry.RapidAttempts = -1 }, wantErr: "retry.rapid_attempts"},
		{name: "initial above max", mutate: func(c *Config) { c.Retry.InitialDelay = 600 }, wantErr: "retry.initial_delay"},
		{name: "zero give up", mutate: func(c *Config) { c.Retry.GiveUpAfter = 0 }, wantErr: "retry.give_up_after"},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "wildcard prefix", mutate: func(c *Config) { c.MQTT.TopicPrefix = "g32/#" }, wantErr: "mqtt.topic_prefix"},
		{name: "invalid api port", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: "api.port"},
		{
			name: "wildcard presence topic",
			mutate: func(c *Config) {
				c.Grills = map[string]GrillConfig{"G32X": {PresenceTopic: "presence/+"}}
			},
			wantErr: "grills.G32X.presence_topic",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateReportsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Account.Email = ""
	cfg.API.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	for _, want := range []string{"account.email", "api.port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q does not mention %s", err, want)
		}
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := defaultConfig()
	cfg.API.Timeouts.Write = 45

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.GetHeartbeatTimeout().Seconds(); got != 90 {
		t.Errorf("GetHeartbeatTimeout() = %v, want 90", got)
	}
	if got := cfg.GetConnectTimeout().Seconds(); got != 15 {
		t.Errorf("GetConnectTimeout() = %v, want 15", got)
	}
	if got := cfg.GetAccountTimeout().Seconds(); got != 30 {
		t.Errorf("GetAccountTimeout() = %v, want 30", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("G32_ACCOUNT_EMAIL", "env@example.com")
	t.Setenv("G32_ACCOUNT_PASSWORD", "env-pass")
	t.Setenv("G32_RELAY_HOST", "relay.test")
	t.Setenv("G32_DATABASE_PATH", "/custom/path.db")
	t.Setenv("G32_MQTT_HOST", "mqtt.example.com")
	t.Setenv("G32_MQTT_USERNAME", "testuser")
	t.Setenv("G32_MQTT_PASSWORD", "testpass")
	t.Setenv("G32_API_HOST", "192.168.1.1")
	t.Setenv("G32_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("G32_DEBUG", "true")

	applyEnvOverrides(cfg)

	checks := []struct {
		field, got, want string
	}{
		{"Account.Email", cfg.Account.Email, "env@example.com"},
		{"Account.Password", cfg.Account.Password, "env-pass"},
		{"Relay.Host", cfg.Relay.Host, "relay.test"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
	if !cfg.Debug.Enabled {
		t.Error("Debug.Enabled = false, want true")
	}
}

func TestApplyEnvOverrides_InvalidDebugIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("G32_DEBUG", "maybe")
	applyEnvOverrides(cfg)
	if cfg.Debug.Enabled {
		t.Error("Debug.Enabled = true for unparsable value")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Relay.Port != 4502 {
		t.Errorf("Relay.Port = %d, want 4502", cfg.Relay.Port)
	}
	if cfg.Retry.GiveUpAfter != 1800 {
		t.Errorf("Retry.GiveUpAfter = %d, want 1800", cfg.Retry.GiveUpAfter)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.TopicPrefix != "g32" {
		t.Errorf("MQTT.TopicPrefix = %q, want g32", cfg.MQTT.TopicPrefix)
	}
}
