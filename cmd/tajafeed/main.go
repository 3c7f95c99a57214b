package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Adda-Baaj/taja-feed/internal/config"
)

func main() {
	var opts config.Options

	root := &cobra.Command{
		Use:          "tajafeed",
		Short:        "Build enriched feeds from sites that do not publish one",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before the environment is read")

	root.AddCommand(
		runCmd(&opts),
		serveCmd(&opts),
		sourcesCmd(&opts),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
