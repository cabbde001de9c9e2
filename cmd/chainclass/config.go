package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CTAG07/chainclass/pkg/chain"
	"github.com/natefinch/atomic"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	DatabasePath string        `mapstructure:"database_path" yaml:"database_path"`
	Tokenizer    string        `mapstructure:"tokenizer" yaml:"tokenizer"`
	Lowercase    bool          `mapstructure:"lowercase" yaml:"lowercase"`
	Smoothing    string        `mapstructure:"smoothing" yaml:"smoothing"`
	LogLevel     string        `mapstructure:"log_level" yaml:"log_level"`
	Server       *ServerConfig `mapstructure:"server" yaml:"server"`
}

// ServerConfig holds the settings of the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

// DefaultConfig creates a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath: "./data/chainclass.db",
		Tokenizer:    "runes",
		Lowercase:    true,
		Smoothing:    "distinct",
		LogLevel:     "info",
		Server: &ServerConfig{
			Addr:            ":7279",
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    8 << 20,
		},
	}
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()
	v.SetDefault("database_path", def.DatabasePath)
	v.SetDefault("tokenizer", def.Tokenizer)
	v.SetDefault("lowercase", def.Lowercase)
	v.SetDefault("smoothing", def.Smoothing)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("server.shutdown_timeout", def.Server.ShutdownTimeout)
	v.SetDefault("server.max_body_bytes", def.Server.MaxBodyBytes)
}

// LoadConfig reads the configuration from the YAML file at path, layered
// under CHAINCLASS_* environment variables and any flags bound to v. If the
// file doesn't exist, it is created with default values.
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix("CHAINCLASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err = writeDefaultConfig(path); err != nil {
				// The defaults still work, so this is not fatal.
				fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if config.Server == nil {
		config.Server = DefaultConfig().Server
	}
	if _, err := parseSmoothing(config.Smoothing); err != nil {
		return nil, err
	}
	return config, nil
}

func writeDefaultConfig(path string) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

func parseSmoothing(s string) (chain.Smoothing, error) {
	switch strings.ToLower(s) {
	case "distinct", "":
		return chain.SmoothDistinct, nil
	case "total":
		return chain.SmoothTotal, nil
	default:
		return 0, fmt.Errorf("unknown smoothing %q (want distinct or total)", s)
	}
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}
