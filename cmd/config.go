package cmd

import (
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/koompi/nimmit-assistant/pkg/config"
)

const redacted = "********"

func init() {
	rootCmd.AddCommand(newConfigCmd())
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Long: `Print the configuration after defaults, the config file and NIMMIT_*
environment overrides have been applied. Secrets are masked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return writeConfig(cmd.OutOrStdout(), cfg)
		},
	})

	return cmd
}

// writeConfig encodes a redacted copy of cfg to out.
func writeConfig(out io.Writer, cfg *config.Config) error {
	masked := *cfg
	if masked.AI.APIKey != "" {
		masked.AI.APIKey = redacted
	}
	if masked.AI.GeminiAPIKey != "" {
		masked.AI.GeminiAPIKey = redacted
	}
	if masked.Auth.SchedulerToken != "" {
		masked.Auth.SchedulerToken = redacted
	}
	if len(cfg.Auth.Tokens) > 0 {
		// Tokens are the map keys; show only who they authenticate.
		masked.Auth.Tokens = make(map[string]string, len(cfg.Auth.Tokens))
		i := 0
		for _, subject := range cfg.Auth.Tokens {
			i++
			masked.Auth.Tokens[redactedKey(i)] = subject
		}
	}

	enc := toml.NewEncoder(out)
	if err := enc.Encode(masked); err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	return nil
}

func redactedKey(i int) string {
	return redacted + "-" + strconv.Itoa(i)
}
