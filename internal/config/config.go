// Package config loads server configuration the way spec.md §6 describes it:
// environment-variable or file-driven, with CLI flags taking final priority.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config holds every tunable named in spec.md §6.
type Config struct {
	ListenHost string `mapstructure:"listen_host"`
	ListenPort int    `mapstructure:"listen_port"`

	HeartbeatTimeoutSeconds  int `mapstructure:"heartbeat_timeout_seconds"`
	ReaperIntervalSeconds    int `mapstructure:"reaper_interval_seconds"`
	CommandAckTimeoutSeconds int `mapstructure:"command_ack_timeout_seconds"`

	AudioSampleRate     int      `mapstructure:"audio_sample_rate"`
	PrefixPhrases       []string `mapstructure:"prefix_phrases"`
	ConfidenceThreshold float64  `mapstructure:"confidence_threshold"`

	OutboundQueueCapacity int    `mapstructure:"outbound_queue_capacity"`
	DatabasePath          string `mapstructure:"database_path"`

	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`

	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`

	CORSOrigins string `mapstructure:"cors_origins"` // comma-separated, empty means allow all

	MetricsEnabled bool `mapstructure:"metrics_enabled"`

	LogLevel string `mapstructure:"log_level"`

	AuthToken     string `mapstructure:"auth_token"`
	WriteToken    string `mapstructure:"write_token"`
	JWTSigningKey string `mapstructure:"jwt_signing_key"`
	JWTTTLSeconds int    `mapstructure:"jwt_ttl_seconds"`

	STTProvider  string `mapstructure:"stt_provider"` // "stub" or "openai"
	TTSProvider  string `mapstructure:"tts_provider"` // "stub" or "openai"
	OpenAIAPIKey string `mapstructure:"openai_api_key"`

	DefaultReadLimit int `mapstructure:"default_read_limit"`
	MaxReadLimit     int `mapstructure:"max_read_limit"`
}

func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.HeartbeatTimeoutSeconds) * time.Second
}

func (c *Config) ReaperInterval() time.Duration {
	return time.Duration(c.ReaperIntervalSeconds) * time.Second
}

func (c *Config) CommandAckTimeout() time.Duration {
	return time.Duration(c.CommandAckTimeoutSeconds) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLSeconds) * time.Second
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.ListenPort)
}

func defaults(v *viper.Viper) {
	v.SetDefault("listen_host", "0.0.0.0")
	v.SetDefault("listen_port", 8080)
	v.SetDefault("heartbeat_timeout_seconds", 90)
	v.SetDefault("reaper_interval_seconds", 10)
	v.SetDefault("command_ack_timeout_seconds", 30)
	v.SetDefault("audio_sample_rate", 16000)
	v.SetDefault("prefix_phrases", []string{"ESP", "NATIONAL PG"})
	v.SetDefault("confidence_threshold", 0.70)
	v.SetDefault("outbound_queue_capacity", 64)
	v.SetDefault("database_path", "./chetan.db")
	v.SetDefault("request_timeout_seconds", 60)
	v.SetDefault("rate_limit_rps", 20)
	v.SetDefault("rate_limit_burst", 40)
	v.SetDefault("cors_origins", "")
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("jwt_ttl_seconds", 900)
	v.SetDefault("stt_provider", "stub")
	v.SetDefault("tts_provider", "stub")
	v.SetDefault("default_read_limit", 50)
	v.SetDefault("max_read_limit", 500)
	// Secrets have no useful default, but registering the keys lets
	// AutomaticEnv supply them through Unmarshal.
	v.SetDefault("auth_token", "")
	v.SetDefault("write_token", "")
	v.SetDefault("jwt_signing_key", "")
	v.SetDefault("openai_api_key", "")
}

// Overrides holds CLI flag values that take priority over env vars and file.
type Overrides struct {
	ConfigFile   string
	ListenAddr   string
	DatabasePath string
	LogLevel     string
}

// Load builds the viper instance, applies overrides, and unmarshals into
// Config. If hotReload is non-nil it is invoked with the updated Config
// every time the backing config file changes on disk.
func Load(o Overrides, log zerolog.Logger, hotReload func(*Config)) (*Config, *viper.Viper, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("CHETAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if o.ConfigFile != "" {
		v.SetConfigFile(o.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("reading config file %s: %w", o.ConfigFile, err)
		}
	} else {
		v.SetConfigName("chetan")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, nil, fmt.Errorf("reading config: %w", err)
			}
			log.Debug().Msg("no config file found, using env vars and defaults")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyOverrides(&cfg, o)

	if hotReload != nil && v.ConfigFileUsed() != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			log.Info().Str("file", e.Name).Msg("config file changed, reloading hot-reloadable settings")
			var reloaded Config
			if err := v.Unmarshal(&reloaded); err != nil {
				log.Warn().Err(err).Msg("failed to reload config, keeping previous values")
				return
			}
			hotReload(&reloaded)
		})
		v.WatchConfig()
	}

	return &cfg, v, nil
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.DatabasePath != "" {
		cfg.DatabasePath = o.DatabasePath
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.ListenAddr != "" {
		host, port, err := splitHostPort(o.ListenAddr)
		if err == nil {
			cfg.ListenHost = host
			cfg.ListenPort = port
		}
	}
}

func splitHostPort(addr string) (string, int, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("invalid listen address %q", addr)
	}
	host := addr[:idx]
	var port int
	if _, err := fmt.Sscanf(addr[idx+1:], "%d", &port); err != nil {
		return "", 0, err
	}
	return host, port, nil
}
