// Package bootstrap loads configuration before the command tree runs.
package bootstrap

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/koompi/nimmit-assistant/pkg/config"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "NIMMIT"

// ConfigFileEnv names a config file when --config is not given.
const ConfigFileEnv = "NIMMIT_CONFIG"

type loadKey struct {
	file    string
	verbose bool
}

var (
	cachedKey    loadKey
	cachedConfig *config.Config
)

// PreParseGlobalFlags scans args for --config/-C and --verbose/-v ahead of
// cobra. Scanning stops at the first non-flag argument or at "--".
func PreParseGlobalFlags(args []string) (cfgFile string, verbose bool) {
	for i := 1; i < len(args); i++ {
		arg := args[i]
		if arg == "--" || !strings.HasPrefix(arg, "-") {
			break
		}

		if arg == "--verbose" || arg == "-v" {
			verbose = true
			continue
		}
		if arg == "--config" || arg == "-C" {
			if i+1 < len(args) {
				i++
				cfgFile = args[i]
			}
			continue
		}
		for _, prefix := range []string{"--config=", "-C=", "-C"} {
			if v, ok := strings.CutPrefix(arg, prefix); ok && v != "" {
				cfgFile = v
				break
			}
		}
	}
	return cfgFile, verbose
}

// InitConfig loads the configuration. cfgFile, when empty, falls back to
// $NIMMIT_CONFIG and then to the optional default location. Repeated calls
// with the same arguments return the cached result.
func InitConfig(cfgFile string, verbose bool) (*config.Config, bool, error) {
	key := loadKey{file: cfgFile, verbose: verbose}
	if cachedConfig != nil && key == cachedKey && os.Getenv("GO_TEST") != "true" {
		return cachedConfig, verbose, nil
	}

	// Start clean so settings from an earlier load do not leak in.
	viper.Reset()

	explicit := cfgFile
	if explicit == "" {
		explicit = os.Getenv(ConfigFileEnv)
	}
	if err := pointViper(explicit); err != nil {
		return nil, verbose, err
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := readConfigFile(explicit != ""); err != nil {
		return nil, verbose, err
	}
	if verbose && viper.ConfigFileUsed() != "" {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, verbose, err
	}
	for _, w := range config.CheckSecurityWarnings(cfg) {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w.Message)
	}

	cachedKey, cachedConfig = key, cfg
	return cfg, verbose, nil
}

func pointViper(explicit string) error {
	if explicit != "" {
		viper.SetConfigFile(explicit)
		return nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	viper.AddConfigPath(dir)
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	return nil
}

// readConfigFile reads the file viper points at. Only an explicitly named
// file is required to exist.
func readConfigFile(required bool) error {
	err := viper.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if !required && errors.As(err, &notFound) {
		return nil
	}
	return errors.Wrap(err, "failed to read config file")
}

// ConfigDir returns the directory searched for config.toml.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, ".config", "nimmit"), nil
}

// NewLogger returns a text logger on w, at debug level when verbose.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Reset clears the cached configuration.
func Reset() {
	cachedKey = loadKey{}
	cachedConfig = nil
}
