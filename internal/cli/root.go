// Package cli implements the pairctl operator commands.
package cli

import (
	"strings"

	"github.com/mrarosh/Pear-code/internal/config"
	"github.com/mrarosh/Pear-code/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries state shared by every subcommand.
type app struct {
	v *viper.Viper
}

// NewRootCmd returns the pairctl command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "pairctl",
		Short: "Operator tool for the pairing-code service",
		Long: `pairctl talks to a running pairing server, manages the cloud storage
session used by the session bot, and runs the keep-alive pinger and the
bot in the foreground.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initLogging()
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "server config file (TOML)")
	root.PersistentFlags().String("server", "http://localhost:8000", "pairing server base URL")
	root.PersistentFlags().String("log-level", "warn", "log level (trace, debug, info, warn, error)")
	_ = a.v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = a.v.BindPFlag("server", root.PersistentFlags().Lookup("server"))
	_ = a.v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	// PAIRCTL_SERVER, PAIRCTL_LOG_LEVEL, ...
	a.v.SetEnvPrefix("PAIRCTL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		a.newPairCmd(),
		a.newCloudCmd(),
		a.newKeepAliveCmd(),
		a.newBotCmd(),
	)
	return root
}

// Execute runs pairctl.
func Execute() error {
	return NewRootCmd().Execute()
}

func (a *app) initLogging() error {
	logger.Init("pairctl")
	level, err := logger.ParseLevel(a.v.GetString("log_level"))
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	return nil
}

// loadConfig loads the shared server configuration.
func (a *app) loadConfig() (*config.Config, error) {
	var overrides config.Overrides
	if path := a.v.GetString("config"); path != "" {
		overrides.ConfigFile = &path
	}
	return config.Load(overrides)
}

func (a *app) serverURL() string {
	return strings.TrimRight(a.v.GetString("server"), "/")
}
