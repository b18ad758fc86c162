package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configFile string
	verbose    bool

	settings *Settings
	logger   *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cmsctl",
	Short: "Operate the site CMS document from the command line",
	Long: `cmsctl reads, edits and saves the site's CMS document.

Reads go through the same fallback chain the site uses (remote document,
local cache, legacy records, built-in default). Writes go to the edge
service and require the admin key.

Settings come from cmsctl.yaml (current directory or ~/.config/cmsctl)
and CMSCTL_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		settings, err = LoadSettings(configFile)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default cmsctl.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	fetchCmd.Flags().Bool("force", false, "skip legacy and memory shortcuts")
	fetchCmd.Flags().StringP("output", "o", "", "write the document to a file instead of stdout")
	saveCmd.Flags().StringP("message", "m", "", "commit message")
	saveCmd.Flags().String("key", "", "admin key (defaults to the stored session key)")
	migrateCmd.Flags().StringP("message", "m", "cms: migrate legacy content", "commit message")
	historyCmd.Flags().String("repo", "", "local site repository (defaults to repo_dir)")
	historyCmd.Flags().IntP("limit", "n", 10, "number of commits to show")

	keyCmd.AddCommand(keySetCmd, keyShowCmd, keyClearCmd, keyHashCmd)
	cacheCmd.AddCommand(cacheClearCmd, cacheShowCmd)
	rootCmd.AddCommand(fetchCmd, saveCmd, migrateCmd, keyCmd, cacheCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
