// Package config loads postbus settings from a TOML file and the
// environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/progrium/postbus-go/bus"
	"github.com/progrium/postbus-go/codec"
	"github.com/progrium/postbus-go/internal/logx"
)

// EnvCodec overrides the codec setting.
const EnvCodec = "POSTBUS_CODEC"

// Config holds the settings shared by the postbus commands.
type Config struct {
	// Codec names the envelope codec, "json" or "cbor".
	Codec string
	// TargetOrigin restricts where posted messages are delivered.
	TargetOrigin string
	// Listen is the address postbus serve listens on.
	Listen string
	// Path is where the WebSocket host is mounted.
	Path string
	// AllowedOrigins are the origins allowed to make CORS requests to the
	// HTTP endpoints of postbus serve. Empty disables CORS.
	AllowedOrigins []string
	// LogLevel is a zerolog level name.
	LogLevel string
	// CallTimeout bounds every call. Zero waits forever.
	CallTimeout time.Duration
}

// postbus.toml key mapping.
type fileConfig struct {
	Codec          string   `toml:"codec"`
	TargetOrigin   string   `toml:"target_origin"`
	Listen         string   `toml:"listen"`
	Path           string   `toml:"path"`
	AllowedOrigins []string `toml:"allowed_origins"`
	LogLevel       string   `toml:"log_level"`
	CallTimeout    Duration `toml:"call_timeout"`
}

// Duration is a time.Duration written as a string like "30s" in TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Codec:        "json",
		TargetOrigin: "*",
		Listen:       "127.0.0.1:8080",
		Path:         "/bus",
		LogLevel:     "info",
	}
}

// Load reads the TOML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		var raw fileConfig
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return Config{}, fmt.Errorf("load postbus config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			logx.Log.Warn().Str("path", path).Msgf("unknown config keys: %v", undecoded)
		}
		if meta.IsDefined("codec") {
			cfg.Codec = strings.TrimSpace(raw.Codec)
		}
		if meta.IsDefined("target_origin") {
			cfg.TargetOrigin = strings.TrimSpace(raw.TargetOrigin)
		}
		if meta.IsDefined("listen") {
			cfg.Listen = strings.TrimSpace(raw.Listen)
		}
		if meta.IsDefined("path") {
			cfg.Path = strings.TrimSpace(raw.Path)
		}
		if meta.IsDefined("allowed_origins") {
			cfg.AllowedOrigins = raw.AllowedOrigins
		}
		if meta.IsDefined("log_level") {
			cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
		}
		if meta.IsDefined("call_timeout") {
			cfg.CallTimeout = time.Duration(raw.CallTimeout)
		}
	}

	if v := os.Getenv(EnvCodec); v != "" {
		cfg.Codec = v
	}
	if v := os.Getenv(logx.EnvLevel); v != "" {
		cfg.LogLevel = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every setting can be used.
func (c Config) Validate() error {
	if _, err := codec.ByName(c.Codec); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("config: negative call_timeout %s", c.CallTimeout)
	}
	if c.Path != "" && !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("config: path %q must start with /", c.Path)
	}
	return nil
}

// Options returns the bus options for the settings.
func (c Config) Options() ([]bus.Option, error) {
	cd, err := codec.ByName(c.Codec)
	if err != nil {
		return nil, err
	}
	return []bus.Option{
		bus.WithCodec(cd),
		bus.WithTargetOrigin(c.TargetOrigin),
		bus.WithCallTimeout(c.CallTimeout),
	}, nil
}
