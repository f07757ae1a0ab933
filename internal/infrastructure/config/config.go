package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the SoundMesh hub.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	System        SystemConfig        `yaml:"system"`
	Database      DatabaseConfig      `yaml:"database"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	API           APIConfig           `yaml:"api"`
	WebSocket     WebSocketConfig     `yaml:"websocket"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Logging       LoggingConfig       `yaml:"logging"`
	Snapcast      SnapcastConfig      `yaml:"snapcast"`
	KNX           KNXConfig           `yaml:"knx"`
	Reconciler    ReconcilerConfig    `yaml:"reconciler"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Security      SecurityConfig      `yaml:"security"`
	Inventory     InventoryConfig     `yaml:"inventory"`
}

// SystemConfig contains installation-wide settings.
type SystemConfig struct {
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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
	MaxAttempts  int `yaml:"max_attempts"`
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
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// SnapcastConfig contains audio-routing server connection settings.
type SnapcastConfig struct {
	// Address is the host:port of the Snapcast JSON-RPC control port.
	Address string `yaml:"address"`

	// ConnectTimeout is the dial timeout in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`

	// RequestTimeout bounds one RPC round trip, in seconds.
	RequestTimeout int `yaml:"request_timeout"`

	// ReconnectInterval is the initial reconnect delay in seconds.
	ReconnectInterval int `yaml:"reconnect_interval"`
}

// KNXConfig contains automation-bus settings.
type KNXConfig struct {
	Enabled bool `yaml:"enabled"`

	// Connection is the knxd socket URL: unix:///run/knxd or tcp://host:6720.
	Connection string `yaml:"connection"`

	// ConnectTimeout is the dial timeout in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`

	// WriteTimeout bounds one group write in seconds.
	WriteTimeout int `yaml:"write_timeout"`

	// ReconnectInterval is the initial reconnect delay in seconds.
	ReconnectInterval int `yaml:"reconnect_interval"`
}

// ReconcilerConfig tunes the grouping reconciler.
type ReconcilerConfig struct {
	// Interval between scheduled corrective passes, in seconds.
	Interval int `yaml:"interval"`

	// SyncNames pushes configured friendly names to the routing server
	// during scheduled passes.
	SyncNames bool `yaml:"sync_names"`
}

// NotificationsConfig tunes the status fan-out queue.
type NotificationsConfig struct {
	// ChannelDepth bounds each per-scope channel, per publisher.
	ChannelDepth int `yaml:"channel_depth"`

	// PublishTimeout bounds one delivery attempt, in seconds.
	PublishTimeout int `yaml:"publish_timeout"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT  JWTConfig  `yaml:"jwt"`
	Auth AuthConfig `yaml:"auth"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// AuthConfig contains the API credentials exchanged for a token.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InventoryConfig is the static zone/client/stream topology of the
// installation. It is authoritative: persisted runtime state is discarded
// when the inventory fingerprint changes.
type InventoryConfig struct {
	Zones   []ZoneConfig   `yaml:"zones"`
	Clients []ClientConfig `yaml:"clients"`
	Streams []StreamConfig `yaml:"streams"`
}

// ZoneConfig declares one logical zone.
type ZoneConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// DefaultStream is the stream the zone starts on. Optional.
	DefaultStream string `yaml:"default_stream"`

	// KNX maps the zone's status aspects to group addresses ("1/2/3").
	// Empty entries leave that aspect off the bus.
	KNX KNXZoneAddresses `yaml:"knx"`
}

// KNXZoneAddresses holds a zone's group addresses as strings.
type KNXZoneAddresses struct {
	Volume  string `yaml:"volume"`
	Mute    string `yaml:"mute"`
	Playing string `yaml:"playing"`
}

// ClientConfig declares one physical audio client.
type ClientConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// Zone assigns the client to a zone. Optional; unassigned clients are
	// never regrouped by the reconciler.
	Zone string `yaml:"zone"`

	// SnapcastID is the client's identifier on the routing server,
	// usually its MAC address or configured host ID.
	SnapcastID string `yaml:"snapcast_id"`

	// KNX maps the client's status aspects to group addresses.
	KNX KNXClientAddresses `yaml:"knx"`
}

// KNXClientAddresses holds a client's group addresses as strings.
type KNXClientAddresses struct {
	Volume    string `yaml:"volume"`
	Mute      string `yaml:"mute"`
	Connected string `yaml:"connected"`
}

// StreamConfig declares one audio stream.
type StreamConfig struct {
	ID string `yaml:"id"`

	// SnapcastStream is the stream's identifier on the routing server.
	SnapcastStream string `yaml:"snapcast_stream"`
}

// Load reads the YAML file at path into a Config. Defaults apply first,
// file values override them, and SOUNDMESH_* environment variables override
// the file, so secrets like SOUNDMESH_JWT_SECRET can stay out of it. The
// result is validated before it is returned.
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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		System: SystemConfig{
			Name:     "SoundMesh",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/soundmesh.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "soundmesh-hub",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Snapcast: SnapcastConfig{
			Address:           "127.0.0.1:1705",
			ConnectTimeout:    10,
			RequestTimeout:    10,
			ReconnectInterval: 5,
		},
		KNX: KNXConfig{
			Enabled:           false,
			Connection:        "unix:///run/knxd",
			ConnectTimeout:    10,
			WriteTimeout:      5,
			ReconnectInterval: 5,
		},
		Reconciler: ReconcilerConfig{
			Interval:  30,
			SyncNames: true,
		},
		Notifications: NotificationsConfig{
			ChannelDepth:   64,
			PublishTimeout: 5,
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
	}
}

// applyEnvOverrides lets SOUNDMESH_* environment variables take precedence
// over file values. The list covers the settings that differ per deployment
// or should never be committed to a config file.
func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"SOUNDMESH_DATABASE_PATH", &cfg.Database.Path},
		{"SOUNDMESH_MQTT_HOST", &cfg.MQTT.Broker.Host},
		{"SOUNDMESH_MQTT_USERNAME", &cfg.MQTT.Auth.Username},
		{"SOUNDMESH_MQTT_PASSWORD", &cfg.MQTT.Auth.Password},
		{"SOUNDMESH_API_HOST", &cfg.API.Host},
		{"SOUNDMESH_SNAPCAST_ADDRESS", &cfg.Snapcast.Address},
		{"SOUNDMESH_KNX_CONNECTION", &cfg.KNX.Connection},
		{"SOUNDMESH_INFLUXDB_TOKEN", &cfg.InfluxDB.Token},
		{"SOUNDMESH_JWT_SECRET", &cfg.Security.JWT.Secret},
		{"SOUNDMESH_AUTH_PASSWORD", &cfg.Security.Auth.Password},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

// Validate collects every configuration problem into one error so a broken
// deployment surfaces all of its mistakes on the first start attempt.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.Snapcast.Address == "" {
		errs = append(errs, "snapcast.address is required")
	}
	if c.KNX.Enabled && c.KNX.Connection == "" {
		errs = append(errs, "knx.connection is required when knx.enabled is true")
	}

	// A forged token controls audio hardware throughout the building, so a
	// missing or short JWT secret is a hard error, not a warning.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set SOUNDMESH_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	errs = append(errs, c.Inventory.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// validate checks inventory referential integrity.
func (inv InventoryConfig) validate() []string {
	var errs []string

	zones := make(map[string]bool, len(inv.Zones))
	for _, z := range inv.Zones {
		if z.ID == "" {
			errs = append(errs, "inventory.zones entries require an id")
			continue
		}
		if zones[z.ID] {
			errs = append(errs, fmt.Sprintf("inventory.zones duplicates id %q", z.ID))
		}
		zones[z.ID] = true
	}

	streams := make(map[string]bool, len(inv.Streams))
	for _, s := range inv.Streams {
		if s.ID == "" {
			errs = append(errs, "inventory.streams entries require an id")
			continue
		}
		if streams[s.ID] {
			errs = append(errs, fmt.Sprintf("inventory.streams duplicates id %q", s.ID))
		}
		streams[s.ID] = true
	}

	for _, z := range inv.Zones {
		if z.DefaultStream != "" && !streams[z.DefaultStream] {
			errs = append(errs, fmt.Sprintf("zone %q references unknown default_stream %q", z.ID, z.DefaultStream))
		}
	}

	clients := make(map[string]bool, len(inv.Clients))
	for _, cl := range inv.Clients {
		if cl.ID == "" {
			errs = append(errs, "inventory.clients entries require an id")
			continue
		}
		if clients[cl.ID] {
			errs = append(errs, fmt.Sprintf("inventory.clients duplicates id %q", cl.ID))
		}
		clients[cl.ID] = true
		if cl.Zone != "" && !zones[cl.Zone] {
			errs = append(errs, fmt.Sprintf("client %q references unknown zone %q", cl.ID, cl.Zone))
		}
	}

	return errs
}
