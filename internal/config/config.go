package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the full configuration surface for the application.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	SIP       SIPConfig       `mapstructure:"sip"`
	Dialer    DialerConfig    `mapstructure:"dialer"`
	Events    EventsConfig    `mapstructure:"events"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// SIPConfig selects and configures the real telephony backend. When Enabled
// is false a simulated provider is used instead.
type SIPConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Transport       string        `mapstructure:"transport"`
	BindHost        string        `mapstructure:"bind_host"`
	BindPort        int           `mapstructure:"bind_port"`
	Domain          string        `mapstructure:"domain"`
	Port            int           `mapstructure:"port"`
	RegisterTimeout time.Duration `mapstructure:"register_timeout"`
	RegisterExpiry  time.Duration `mapstructure:"register_expiry"`
}

// DialerConfig tunes the dial sequencer.
type DialerConfig struct {
	RingTimeout  time.Duration `mapstructure:"ring_timeout"`
	RetryGap     time.Duration `mapstructure:"retry_gap"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type EventsConfig struct {
	BufferCapacity int `mapstructure:"buffer_capacity"`
}

type BroadcastConfig struct {
	DefaultClientPort int           `mapstructure:"default_client_port"`
	PushTimeout       time.Duration `mapstructure:"push_timeout"`
}

// KafkaConfig configures the optional event mirror. Leaving Brokers empty
// disables mirroring entirely.
type KafkaConfig struct {
	Brokers    []string `mapstructure:"brokers"`
	ClientID   string   `mapstructure:"client_id"`
	EventTopic string   `mapstructure:"event_topic"`
}

// Enabled reports whether the event mirror should be wired.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.EventTopic != ""
}

type TelemetryConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	ServiceName     string        `mapstructure:"service_name"`
	SampleRatio     float64       `mapstructure:"sample_ratio"`
	TracingEnabled  bool          `mapstructure:"tracing_enabled"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("DIALER")
	v.SetEnvKeyReplacer(NewEnvReplacer())

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "contact-dialer")
	v.SetDefault("app.env", "development")
	v.SetDefault("http.port", 7000)
	v.SetDefault("dialer.ring_timeout", 45*time.Second)
	v.SetDefault("dialer.retry_gap", 4*time.Second)
	v.SetDefault("dialer.poll_interval", 200*time.Millisecond)
	v.SetDefault("events.buffer_capacity", 2000)
	v.SetDefault("broadcast.default_client_port", 6000)
	v.SetDefault("broadcast.push_timeout", 2500*time.Millisecond)
	v.SetDefault("sip.transport", "udp")
	v.SetDefault("sip.register_timeout", 5*time.Second)
	v.SetDefault("sip.register_expiry", 60*time.Second)
}

// NewEnvReplacer standardizes environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}
