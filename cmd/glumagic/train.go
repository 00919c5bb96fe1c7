package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/buessow/glumagic/internal/models"
	"github.com/buessow/glumagic/internal/services"
	"github.com/buessow/glumagic/internal/utils"
)

func trainCmd() *cobra.Command {
	var (
		start, end, out, format string
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Build a training matrix for [start, end)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "csv" && format != "json" {
				return fmt.Errorf("--format must be csv or json, got %q", format)
			}
			from, err := utils.ParseInstant(start)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			to, err := utils.ParseInstant(end)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}
			if !from.Before(to) {
				return fmt.Errorf("--end must be after --start")
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			// The whole requested range is one training window.
			pc := a.cfg.Pipeline
			pc.TrainingPeriodMinutes = utils.Minutes(to.Sub(from))
			pc.PredictionPeriodMinutes = 0
			pc.Columns = nil
			pipeline, err := a.pipeline(ctx, pc)
			if err != nil {
				return err
			}
			m, err := services.NewFeatureService(a.logger, pipeline, nil).BuildMatrix(ctx, models.MatrixRequest{Start: from})
			if err != nil {
				return err
			}

			var w io.Writer = os.Stdout
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}
			if format == "json" {
				err = m.WriteJSON(w)
			} else {
				err = m.WriteCSV(w)
			}
			if err != nil {
				return fmt.Errorf("write matrix: %w", err)
			}
			a.logger.Info("training matrix written", slog.String("out", out), slog.Int("rows", m.Len()))
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "Start of the training range, RFC3339 or Unix milliseconds")
	cmd.Flags().StringVar(&end, "end", "", "End of the training range (exclusive)")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "Output file, - for stdout")
	cmd.Flags().StringVar(&format, "format", "csv", "Output format: csv or json")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}
