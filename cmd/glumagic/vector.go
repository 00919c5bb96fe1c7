package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/buessow/glumagic/internal/api"
	"github.com/buessow/glumagic/internal/models"
	"github.com/buessow/glumagic/internal/services"
	"github.com/buessow/glumagic/internal/utils"
)

func vectorCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "vector",
		Short: "Build the feature vector at an instant and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			instant := time.Now()
			if at != "" {
				if instant, err = utils.ParseInstant(at); err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
			}
			pipeline, err := a.pipeline(ctx, a.cfg.Pipeline)
			if err != nil {
				return err
			}
			pub, err := a.publisher()
			if err != nil {
				return err
			}
			res, err := services.NewFeatureService(a.logger, pipeline, pub).BuildVector(ctx, models.VectorRequest{At: instant})
			if err != nil {
				return err
			}
			data, err := api.ToProtoVectorResult(res).MarshalJSON()
			if err != nil {
				return err
			}
			var pretty any
			if err := json.Unmarshal(data, &pretty); err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(pretty)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Query instant, RFC3339 or Unix milliseconds (default now)")
	return cmd
}
