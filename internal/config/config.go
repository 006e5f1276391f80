package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dkeye/Broadcast/internal/app/media"
)

type ICEServer struct {
	URLs       []string `mapstructure:"urls" json:"urls"`
	Username   string   `mapstructure:"username" json:"username,omitempty"`
	Credential string   `mapstructure:"credential" json:"credential,omitempty"`
}

type ClientConfig struct {
	SignalURL  string        `mapstructure:"signal_url"`
	APIBaseURL string        `mapstructure:"api_base_url"`
	Room       string        `mapstructure:"room"`
	SendQueue  int           `mapstructure:"send_queue"`
	OutputDir  string        `mapstructure:"output_dir"`
	ICETimeout time.Duration `mapstructure:"ice_timeout"`
}

type MediaConfig struct {
	Device      string            `mapstructure:"device"`
	VideoPath   string            `mapstructure:"video_path"`
	AudioPath   string            `mapstructure:"audio_path"`
	AllowedDir  string            `mapstructure:"allowed_dir"`
	Loop        bool              `mapstructure:"loop"`
	Constraints media.Constraints `mapstructure:"constraints"`
}

type Config struct {
	Mode             string        `mapstructure:"mode"`
	Port             int           `mapstructure:"port"`
	StaticPath       string        `mapstructure:"static_path"`
	ReadLimit        int64         `mapstructure:"read_limit"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	Secret           string        `mapstructure:"secret"`
	LogLevel         string        `mapstructure:"log_level"`
	ICEServers       []ICEServer   `mapstructure:"ice_servers"`
	JoinRateLimit    int           `mapstructure:"join_rate_limit"`
	JoinRateInterval time.Duration `mapstructure:"join_rate_interval"`

	Client ClientConfig `mapstructure:"client"`
	Media  MediaConfig  `mapstructure:"media"`
}

// Load reads config/config.<CONFIG_ENV>.yaml, then BROADCAST_* environment
// variables, then flags (if any). Missing file means defaults.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("BROADCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	cfg := Config{Media: MediaConfig{Constraints: media.DefaultConstraints()}}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "broadcast-dev-secret")
	v.SetDefault("join_rate_limit", 5)
	v.SetDefault("join_rate_interval", "10s")
	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
		{"urls": []string{"stun:global.stun.twilio.com:3478"}},
	})

	v.SetDefault("client.signal_url", "ws://127.0.0.1:8080/api/ws/signal")
	v.SetDefault("client.room", "")
	v.SetDefault("client.api_base_url", "http://127.0.0.1:8080")
	v.SetDefault("client.send_queue", 64)
	v.SetDefault("client.output_dir", ".")
	v.SetDefault("client.ice_timeout", "5s")

	v.SetDefault("media.device", "synthetic")
	v.SetDefault("media.video_path", "")
	v.SetDefault("media.audio_path", "")
	v.SetDefault("media.allowed_dir", "")
	v.SetDefault("media.loop", true)
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"signal-url":  "client.signal_url",
	"api-url":     "client.api_base_url",
	"room":        "client.room",
	"output-dir":  "client.output_dir",
	"device":      "media.device",
	"video":       "media.video_path",
	"audio":       "media.audio_path",
	"allowed-dir": "media.allowed_dir",
	"loop":        "media.loop",
	"log-level":   "log_level",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// PionICEServers converts configured servers for pion and for the /api/ice reply.
func (c *Config) PionICEServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		if len(s.URLs) == 0 {
			continue
		}
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		out = append(out, server)
	}
	return out
}
