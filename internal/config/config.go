package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Device          DeviceConfig      `yaml:"device"`
	Discovery       DiscoveryConfig   `yaml:"discovery"`
	Coalescer       CoalescerConfig   `yaml:"coalescer"`
	Session         SessionConfig     `yaml:"session"`
	Transport       TransportConfig   `yaml:"transport"`
	Presets         PresetsConfig     `yaml:"presets"`
	Auth            AuthConfig        `yaml:"auth"`
	Database        DatabaseConfig    `yaml:"database"`
	Log             LogConfig         `yaml:"log"`
	API             APIConfig         `yaml:"api"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	MQTT            MQTTConfig        `yaml:"mqtt"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// DeviceConfig contains the initial device address
type DeviceConfig struct {
	Address        string `yaml:"address"`         // Used when no address was persisted (default: http://192.168.4.1)
	ConnectOnStart bool   `yaml:"connect_on_start"` // Run discovery right after startup
}

// DiscoveryConfig contains discovery probe settings
type DiscoveryConfig struct {
	AccessPointPrefix  string   `yaml:"access_point_prefix"`
	AccessPointAddress string   `yaml:"access_point_address"`
	Hostname           string   `yaml:"hostname"`
	FallbackPrefix     string   `yaml:"fallback_prefix"`
	AccessPointTimeout Duration `yaml:"access_point_timeout"`
	CurrentTimeout     Duration `yaml:"current_timeout"`
	HostnameTimeout    Duration `yaml:"hostname_timeout"`
	SweepTimeout       Duration `yaml:"sweep_timeout"`
	InfoTimeout        Duration `yaml:"info_timeout"`
	ListTimeout        Duration `yaml:"list_timeout"`
	SweepDelay         Duration `yaml:"sweep_delay"`
	SweepWorkers       int      `yaml:"sweep_workers"`
	MDNS               bool     `yaml:"mdns"`
	MDNSService        string   `yaml:"mdns_service"`
	MDNSTimeout        Duration `yaml:"mdns_timeout"`
}

// CoalescerConfig contains debounce windows for continuous controls
type CoalescerConfig struct {
	SliderDelay Duration `yaml:"slider_delay"` // default: 120ms
	ColorDelay  Duration `yaml:"color_delay"`  // default: 90ms
}

// SessionConfig contains device session settings
type SessionConfig struct {
	PadThrottle Duration `yaml:"pad_throttle"` // default: 350ms
	ToastTTL    Duration `yaml:"toast_ttl"`    // default: 1.2s
}

// TransportConfig contains HTTP client settings for device commands
type TransportConfig struct {
	Timeout      Duration `yaml:"timeout"`        // Per-command timeout (default: 3s)
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // State commands per second, 0 = unlimited (default: 20)
}

// PresetsConfig contains preset document settings
type PresetsConfig struct {
	Script string `yaml:"script"` // Optional Lua script returning the default pads
}

// AuthConfig contains the entitlement grant for this instance
type AuthConfig struct {
	Principal string `yaml:"principal"`
	Active    bool   `yaml:"active"`
	ExpiresAt string `yaml:"expires_at"` // RFC3339, empty = never
}

// ExpiresAtTime parses ExpiresAt. A zero time means no expiry.
func (c *AuthConfig) ExpiresAtTime() (time.Time, error) {
	if strings.TrimSpace(c.ExpiresAt) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, c.ExpiresAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("auth.expires_at: %w", err)
	}
	return t, nil
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// APIConfig contains control API server settings
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 2)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 64)
}

// MQTTConfig contains the optional MQTT event mirror settings
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // e.g. tcp://localhost:1883
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration bytes and fills in defaults
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./padd.sqlite"
	}
	if cfg.Device.Address == "" {
		cfg.Device.Address = "http://192.168.4.1"
	}

	// Discovery defaults are filled by discovery.Config; only the service name lives here
	if cfg.Discovery.MDNSService == "" {
		cfg.Discovery.MDNSService = "_wled._tcp"
	}

	// Coalescer defaults
	if cfg.Coalescer.SliderDelay == 0 {
		cfg.Coalescer.SliderDelay = Duration(120 * time.Millisecond)
	}
	if cfg.Coalescer.ColorDelay == 0 {
		cfg.Coalescer.ColorDelay = Duration(90 * time.Millisecond)
	}

	// Session defaults
	if cfg.Session.PadThrottle == 0 {
		cfg.Session.PadThrottle = Duration(350 * time.Millisecond)
	}
	if cfg.Session.ToastTTL == 0 {
		cfg.Session.ToastTTL = Duration(1200 * time.Millisecond)
	}

	// Transport defaults
	if cfg.Transport.Timeout == 0 {
		cfg.Transport.Timeout = Duration(3 * time.Second)
	}
	if cfg.Transport.RateLimitRPS == 0 {
		cfg.Transport.RateLimitRPS = 20.0
	}

	if cfg.Auth.Principal == "" {
		cfg.Auth.Principal = "local"
	}

	// API defaults
	if cfg.API.Host == "" {
		cfg.API.Host = "0.0.0.0"
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	// Event bus defaults
	if cfg.EventBus.Workers <= 0 {
		cfg.EventBus.Workers = 2
	}
	if cfg.EventBus.QueueSize <= 0 {
		cfg.EventBus.QueueSize = 64
	}

	// MQTT defaults
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "padd"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "padd"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

func (cfg *Config) validate() error {
	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
	}
	if _, err := cfg.Auth.ExpiresAtTime(); err != nil {
		return err
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
