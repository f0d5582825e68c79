package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"opsflow/internal/app"
	"opsflow/internal/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the automation engine",
	Long:  `Start the automation engine: bus consumer, HTTP surface and run processing.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		if err := app.Run(cfg); err != nil {
			logrus.Fatalf("opsflow: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
