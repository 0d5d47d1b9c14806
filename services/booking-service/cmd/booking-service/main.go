package main

import (
	"os"

	"github.com/clinicsched/clinicsched/libs/config"
	"github.com/spf13/cobra"
	_ "time/tzdata"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configFile string
		envFile    string
	)
	root := &cobra.Command{
		Use:           "booking-service",
		Short:         "Provider appointment booking and availability API",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Load(configFile, envFile)
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional config file (yaml, json, toml or env)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded into the environment when present")

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(seedCmd())
	return root
}
