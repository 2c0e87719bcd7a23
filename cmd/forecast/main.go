// Command forecast is the call-volume forecasting engine CLI: `forecast
// run` executes one batch pipeline run and persists the result, `forecast
// serve` exposes the persisted results over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edgargomero/analisis-resultados/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:          "forecast",
		Short:        "Call-volume forecasting ensemble engine",
		SilenceUsage: true,
	}

	var configPath string
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newServeCmd(&configPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the process logger.
func setup(configPath string) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return config.Config{}, zerolog.Nop(), fmt.Errorf("parse log level %q: %w", cfg.Log.Level, err)
	}
	var out = os.Stderr
	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if cfg.Log.Pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out})
	}
	return cfg, logger, nil
}
