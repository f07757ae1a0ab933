package config

import (
	"os"
	"path/filepath"
	"testing"
)

// validJWTSecret meets the 32-character minimum requirement.
const validJWTSecret = "test-secret-key-at-least-32-chars!"

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWT.Secret = validJWTSecret
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
system:
  name: "Test House"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
snapcast:
  address: "127.0.0.1:1705"
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
inventory:
  streams:
    - id: radio
      snapcast_stream: "Radio"
  zones:
    - id: kitchen
      name: "Kitchen"
      default_stream: radio
      knx:
        volume: "2/1/1"
  clients:
    - id: kitchen-left
      name: "Kitchen Left"
      zone: kitchen
      snapcast_id: "aa:bb:cc:dd:ee:ff"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.System.Name != "Test House" {
		t.Errorf("System.Name = %q, want %q", cfg.System.Name, "Test House")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Snapcast.Address != "127.0.0.1:1705" {
		t.Errorf("Snapcast.Address = %q", cfg.Snapcast.Address)
	}
	if len(cfg.Inventory.Zones) != 1 || cfg.Inventory.Zones[0].DefaultStream != "radio" {
		t.Errorf("Inventory.Zones = %+v", cfg.Inventory.Zones)
	}
	if cfg.Inventory.Zones[0].KNX.Volume != "2/1/1" {
		t.Errorf("zone KNX volume = %q", cfg.Inventory.Zones[0].KNX.Volume)
	}
	if cfg.Inventory.Clients[0].SnapcastID != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("client SnapcastID = %q", cfg.Inventory.Clients[0].SnapcastID)
	}
	// Defaults survive a partial file.
	if cfg.Reconciler.Interval != 30 {
		t.Errorf("Reconciler.Interval = %d, want default 30", cfg.Reconciler.Interval)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	// Missing JWT secret must fail validation.
	content := `
database:
  path: "/tmp/test.db"
api:
  port: 8080
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for missing JWT secret, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "missing snapcast address",
			mutate:  func(c *Config) { c.Snapcast.Address = "" },
			wantErr: true,
		},
		{
			name: "knx enabled without connection",
			mutate: func(c *Config) {
				c.KNX.Enabled = true
				c.KNX.Connection = ""
			},
			wantErr: true,
		},
		{
			name:    "missing JWT secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: true,
		},
		{
			name:    "JWT secret too short",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInventoryValidate(t *testing.T) {
	tests := []struct {
		name    string
		inv     InventoryConfig
		wantErr bool
	}{
		{
			name: "consistent inventory",
			inv: InventoryConfig{
				Streams: []StreamConfig{{ID: "radio", SnapcastStream: "Radio"}},
				Zones:   []ZoneConfig{{ID: "kitchen", DefaultStream: "radio"}},
				Clients: []ClientConfig{{ID: "c1", Zone: "kitchen", SnapcastID: "A"}},
			},
		},
		{
			name: "duplicate zone id",
			inv: InventoryConfig{
				Zones: []ZoneConfig{{ID: "kitchen"}, {ID: "kitchen"}},
			},
			wantErr: true,
		},
		{
			name: "duplicate client id",
			inv: InventoryConfig{
				Clients: []ClientConfig{{ID: "c1"}, {ID: "c1"}},
			},
			wantErr: true,
		},
		{
			name: "client references unknown zone",
			inv: InventoryConfig{
				Clients: []ClientConfig{{ID: "c1", Zone: "ghost"}},
			},
			wantErr: true,
		},
		{
			name: "zone references unknown stream",
			inv: InventoryConfig{
				Zones: []ZoneConfig{{ID: "kitchen", DefaultStream: "ghost"}},
			},
			wantErr: true,
		},
		{
			name: "zone missing id",
			inv: InventoryConfig{
				Zones: []ZoneConfig{{Name: "Kitchen"}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.inv.validate()
			if (len(errs) > 0) != tt.wantErr {
				t.Errorf("validate() = %v, wantErr %v", errs, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("SOUNDMESH_DATABASE_PATH", "/custom/path.db")
	t.Setenv("SOUNDMESH_MQTT_HOST", "mqtt.example.com")
	t.Setenv("SOUNDMESH_MQTT_USERNAME", "testuser")
	t.Setenv("SOUNDMESH_MQTT_PASSWORD", "testpass")
	t.Setenv("SOUNDMESH_API_HOST", "192.168.1.1")
	t.Setenv("SOUNDMESH_SNAPCAST_ADDRESS", "10.0.0.5:1705")
	t.Setenv("SOUNDMESH_KNX_CONNECTION", "tcp://10.0.0.6:6720")
	t.Setenv("SOUNDMESH_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("SOUNDMESH_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q", cfg.MQTT.Broker.Host)
	}
	if cfg.MQTT.Auth.Username != "testuser" || cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth = %+v", cfg.MQTT.Auth)
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q", cfg.API.Host)
	}
	if cfg.Snapcast.Address != "10.0.0.5:1705" {
		t.Errorf("Snapcast.Address = %q", cfg.Snapcast.Address)
	}
	if cfg.KNX.Connection != "tcp://10.0.0.6:6720" {
		t.Errorf("KNX.Connection = %q", cfg.KNX.Connection)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q", cfg.InfluxDB.Token)
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q", cfg.Security.JWT.Secret)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Snapcast.Address == "" {
		t.Error("defaultConfig should have non-empty Snapcast.Address")
	}
	if cfg.Reconciler.Interval <= 0 {
		t.Error("defaultConfig should have a positive reconciler interval")
	}
}
