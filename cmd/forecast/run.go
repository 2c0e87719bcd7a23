package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edgargomero/analisis-resultados/internal/pipeline"
	"github.com/edgargomero/analisis-resultados/internal/publish"
	"github.com/edgargomero/analisis-resultados/internal/series"
	"github.com/edgargomero/analisis-resultados/internal/store"
	"github.com/edgargomero/analisis-resultados/pkg/otel"
)

func newRunCmd(configPath *string) *cobra.Command {
	var (
		seriesPath   string
		holidaysPath string
		outputPath   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one batch forecasting run and persist the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			tp, err := otel.InitTracer(ctx, cfg.Otel)
			if err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer func() {
				if err := otel.Shutdown(context.Background(), tp); err != nil {
					log.Warn().Err(err).Msg("tracer shutdown")
				}
			}()

			obs, err := readSeries(seriesPath)
			if err != nil {
				return err
			}
			cal, err := readHolidays(holidaysPath)
			if err != nil {
				return err
			}
			log.Info().
				Int("observations", len(obs)).
				Int("holidays", len(cal)).
				Msg("input loaded")

			st, err := store.New(ctx, cfg.Store)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			pub := publish.New(cfg.Publish, log)
			defer pub.Close()

			res, err := pipeline.Run(ctx, log, obs, cal, cfg.Pipeline)
			if err != nil {
				return err
			}

			if err := st.SaveRun(ctx, res); err != nil {
				return fmt.Errorf("persist run %s: %w", res.RunID, err)
			}
			if err := pub.PublishAlerts(ctx, res.RunID, res.Alerts); err != nil {
				// The run is already persisted; alert delivery failing is
				// not a reason to report the run as failed.
				log.Error().Err(err).Msg("alert publishing failed")
			}

			if outputPath != "" {
				if err := exportResult(outputPath, res); err != nil {
					return err
				}
				log.Info().Str("path", outputPath).Msg("result exported")
			}

			for _, c := range res.Diagnostic.TargetChecks {
				log.Info().
					Str("metric", c.Metric).
					Float64("actual", c.Actual).
					Float64("target", c.Target).
					Bool("pass", c.Pass).
					Msg("accuracy target")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&seriesPath, "series", "", "CSV file with date,value[,is_gap] rows (required)")
	cmd.Flags().StringVar(&holidaysPath, "holidays", "", "CSV file with date,name[,category] holiday rows")
	cmd.Flags().StringVar(&outputPath, "output", "", "write the full run result as JSON to this path")
	cmd.MarkFlagRequired("series")
	return cmd
}

func readSeries(path string) ([]series.Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open series: %w", err)
	}
	defer f.Close()
	obs, err := series.ReadSeriesCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse series %s: %w", path, err)
	}
	return obs, nil
}

func readHolidays(path string) (series.MapCalendar, error) {
	if path == "" {
		return series.MapCalendar{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open holidays: %w", err)
	}
	defer f.Close()
	cal, err := series.ReadCalendarCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse holidays %s: %w", path, err)
	}
	return cal, nil
}

func exportResult(path string, res *pipeline.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
