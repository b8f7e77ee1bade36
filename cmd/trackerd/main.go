package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// defaultConfigPath is used when neither --config nor CONFIG_PATH is set.
const defaultConfigPath = "./config/config.yaml"

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "trackerd",
		Short: "Repair tracker backend",
		Long:  "trackerd serves the machine repair and inspection tracking API.",
		// Runtime failures are reported as errors, not as a usage problem.
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(cmd, &configPath)
		},
	}

	envPath := os.Getenv("CONFIG_PATH")
	if envPath == "" {
		envPath = defaultConfigPath
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", envPath, "path to the YAML config file (env CONFIG_PATH)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newMigrateCmd(&configPath))
	return cmd
}

// loadEnv reads .env once for every subcommand. Variables already set in the
// environment win, and CONFIG_PATH from .env applies unless --config was given.
func loadEnv(cmd *cobra.Command, configPath *string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if !cmd.Flags().Changed("config") {
		if v := os.Getenv("CONFIG_PATH"); v != "" {
			*configPath = v
		}
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "trackerd %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
