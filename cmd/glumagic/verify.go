package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/buessow/glumagic/internal/engine"
	"github.com/buessow/glumagic/internal/repo"
)

func verifyCmd() *cobra.Command {
	var eps float64
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Replay recorded test cases and compare the produced vectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.Pipeline.TestDataPath == "" {
				return fmt.Errorf("pipeline.testDataPath not configured")
			}
			settings, err := engine.NewSettings(a.cfg.Pipeline)
			if err != nil {
				return fmt.Errorf("pipeline settings: %w", err)
			}
			cases, err := repo.LoadTestCases(a.cfg.Pipeline.TestDataPath, settings.Freq)
			if err != nil {
				return err
			}

			results, ok := engine.NewVerifier(a.logger, settings, eps).Run(ctx, cases)
			failed := 0
			for _, r := range results {
				switch {
				case r.Err != nil:
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", r.Name, r.Err)
				case !r.Passed:
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s\n%s\n", r.Name, r.Mismatch)
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "ok   %s\n", r.Name)
				}
			}
			a.logger.Info("verification finished", slog.Int("cases", len(results)), slog.Int("failed", failed))
			if !ok {
				return fmt.Errorf("%d of %d cases failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&eps, "epsilon", engine.DefaultVerifyEpsilon, "Tolerance for value comparison")
	return cmd
}
