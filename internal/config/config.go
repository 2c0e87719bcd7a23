// Package config loads the engine configuration: defaults for every knob,
// an optional YAML file, and FCAST_-prefixed environment overrides, merged
// in that order. The loaded Config is passed by value into the pipeline;
// nothing reads configuration ambiently after startup.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/edgargomero/analisis-resultados/internal/pipeline"
	"github.com/edgargomero/analisis-resultados/internal/publish"
	"github.com/edgargomero/analisis-resultados/internal/store"
	"github.com/edgargomero/analisis-resultados/pkg/otel"
)

// Config is the full engine configuration.
type Config struct {
	Log      LogConfig       `json:"log" mapstructure:"log"`
	Pipeline pipeline.Config `json:"pipeline" mapstructure:"pipeline"`
	Store    store.Config    `json:"store" mapstructure:"store"`
	Publish  publish.Config  `json:"publish" mapstructure:"publish"`
	Serve    ServeConfig     `json:"serve" mapstructure:"serve"`
	Otel     otel.Config     `json:"otel" mapstructure:"otel"`
}

// LogConfig tunes the zerolog output.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"` // console writer instead of JSON
}

// ServeConfig tunes the results API.
type ServeConfig struct {
	Addr            string        `json:"addr" mapstructure:"addr"`
	RateLimit       float64       `json:"rate_limit" mapstructure:"rate_limit"` // requests per second
	RateBurst       int           `json:"rate_burst" mapstructure:"rate_burst"`
	CacheSize       int           `json:"cache_size" mapstructure:"cache_size"`
	CacheTTL        time.Duration `json:"cache_ttl" mapstructure:"cache_ttl"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// Default returns the complete default configuration.
func Default() Config {
	return Config{
		Log:      LogConfig{Level: "info"},
		Pipeline: pipeline.DefaultConfig(),
		Store:    store.DefaultConfig(),
		Publish:  publish.DefaultConfig(),
		Serve: ServeConfig{
			Addr:            ":8080",
			RateLimit:       50,
			RateBurst:       100,
			CacheSize:       64,
			CacheTTL:        time.Minute,
			ShutdownTimeout: 15 * time.Second,
		},
		Otel: otel.DefaultConfig(),
	}
}

// Load merges defaults, the YAML file at path (optional when empty), and
// FCAST_ environment variables (FCAST_STORE_BACKEND=postgres overrides
// store.backend).
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("FCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v, Default()); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every leaf of the default configuration so file
// and environment overrides merge key by key instead of replacing whole
// sections.
func setDefaults(v *viper.Viper, def Config) error {
	raw, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("decode defaults: %w", err)
	}
	registerLeaves(v, "", tree)
	return nil
}

func registerLeaves(v *viper.Viper, prefix string, node map[string]any) {
	for key, val := range node {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if child, ok := val.(map[string]any); ok {
			registerLeaves(v, full, child)
			continue
		}
		v.SetDefault(full, val)
	}
}
