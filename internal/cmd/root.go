package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdconfig "github.com/Iron-Ham/devcrew/internal/cmd/config"
	"github.com/Iron-Ham/devcrew/internal/config"
	"github.com/Iron-Ham/devcrew/internal/errhandler"
	"github.com/Iron-Ham/devcrew/internal/errors"
)

var rootCmd = &cobra.Command{
	Use:   "devcrew",
	Short: "Development assistant toolkit: analysis cache, team simulation and self-diagnosis",
	Long: `devcrew bundles the tooling around an AI-assisted development workflow:

- a content-addressed analysis cache with differential reuse
- a simulated four-role team that decomposes, executes and votes on an objective
- a self-diagnosis that checks project health and writes reports
- error classification with recovery, backups and cleanup jobs

Run "devcrew <objective...>" as a shortcut for "devcrew team <objective...>".`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runTeam(cmd, args)
	},
}

// Execute runs the root command. A failing command's error is recorded by
// the error handler before it is returned.
func Execute() error {
	cmd, err := rootCmd.ExecuteC()
	if active != nil {
		if err != nil && !errors.Is(err, errReported) {
			active.errs.Handle(context.Background(), err, errhandler.Options{Operation: cmd.CommandPath()})
		}
		if merr := writeMetricsOut(cmd); merr != nil && err == nil {
			err = merr
		}
		if cerr := active.close(); cerr != nil && err == nil {
			err = cerr
		}
		active = nil
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/devcrew/config.yaml)")
	rootCmd.PersistentFlags().StringP("project", "C", "", "project root (default is the current directory)")
	rootCmd.PersistentFlags().String("metrics-out", "", "write Prometheus metrics for this run to a file")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	cmdconfig.Register(rootCmd)
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("DEVCREW")
	// Replace dots with underscores for nested keys in env vars
	// e.g., DEVCREW_CACHE_TTL_DAYS for cache.ttl_days
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
