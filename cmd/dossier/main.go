// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the dossier CLI. The run subcommand
// researches one organization through the phase pipeline; the remaining
// subcommands inspect the phase catalog, the model table, the phase cache
// and recorded timings.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/dossier/internal/secrets"
	"github.com/pdiddy/dossier/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// loadedSecrets holds API keys loaded from .secrets/ at startup.
	loadedSecrets map[string]string

	// cfg is the process configuration, built once in PersistentPreRunE.
	cfg types.Config

	logger *slog.Logger
)

// secretDefault returns value if set, otherwise the named secret.
func secretDefault(name, value string) string {
	if value != "" {
		return value
	}
	return secrets.Lookup(loadedSecrets, name)
}

var rootCmd = &cobra.Command{
	Use:   "dossier",
	Short: "Structured multi-phase research on organizations",
	Long: `dossier researches an organization by running a catalog of research
phases against a language model. Each phase asks for one JSON object matching
its schema; results are validated, cached per subject, and merged into a
single report.

Models that reject a phase fall back to an older-family model. Phase timings
are logged, stored in SQLite, and optionally exported to Prometheus.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			c.Log.Level = lvl
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c
		logger = newLogger(cfg.Log, os.Stderr)
		slog.SetDefault(logger)

		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug("loaded secrets", "keys", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./dossier.yaml or ~/.config/dossier/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("dossier")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "dossier"))
		}
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
