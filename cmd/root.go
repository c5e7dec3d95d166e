package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/koompi/nimmit-assistant/pkg/bootstrap"
	"github.com/koompi/nimmit-assistant/pkg/config"
)

var (
	cfgFile   string
	verbose   bool
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "nimmit",
	Short: "Nimmit - conversational job intake and consistency maintenance",
	Long: `Nimmit turns a client's free-form conversation into a structured, validated
job brief. It asks one question at a time, draws on the client's past jobs and
preferences, and closes the conversation once every required field is known.

The same binary runs the periodic consistency tasks that keep worker ratings,
job counts and stale briefing sessions in line with the underlying records.`,
	SilenceUsage: true,
}

// Execute runs the command tree. Configuration is loaded first so that
// subcommands can build their dependencies from it.
func Execute() {
	cfgFile, verbose = bootstrap.PreParseGlobalFlags(os.Args)
	cobra.CheckErr(initConfig())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() {
		_ = initConfig()
	})

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "C", "", "config file (default $HOME/.config/nimmit/config.toml, or $NIMMIT_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// initConfig loads the file and NIMMIT_* overrides into appConfig.
func initConfig() error {
	var err error
	appConfig, verbose, err = bootstrap.InitConfig(cfgFile, verbose)
	return err
}

// loadConfig returns appConfig, or loads it when Execute was bypassed.
func loadConfig() (*config.Config, error) {
	if appConfig != nil {
		return appConfig, nil
	}
	return config.Load()
}

// resetConfig drops every cached config layer.
func resetConfig() {
	appConfig = nil
	bootstrap.Reset()
	viper.Reset()
}
