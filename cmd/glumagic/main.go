package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "glumagic",
		Short: "Build glucose prediction features from diabetes therapy data",
		Long: `glumagic reads glucose, heart rate, carbohydrate, bolus and basal data
from Nightscout, PostgreSQL or fixture files and turns it into feature vectors
and training matrices on a regular time grid.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (defaults to $GLUMAGIC_CONFIG)")

	rootCmd.AddCommand(vectorCmd())
	rootCmd.AddCommand(trainCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
