package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/koompi/nimmit-assistant/pkg/bootstrap"
)

// useConfig points the command globals at file under a throwaway HOME and
// restores them when the test ends. Tests using it must not run in parallel.
func useConfig(t *testing.T, file string, verboseOn bool) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(bootstrap.ConfigFileEnv, "")

	prevFile, prevVerbose := cfgFile, verbose
	resetConfig()
	cfgFile, verbose = file, verboseOn
	t.Cleanup(func() {
		cfgFile, verbose = prevFile, prevVerbose
		resetConfig()
	})
	return home
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "nimmit" || rootCmd.Short == "" {
		t.Errorf("Use = %q, Short = %q", rootCmd.Use, rootCmd.Short)
	}
	for _, word := range []string{"brief", "consistency"} {
		if !strings.Contains(rootCmd.Long, word) {
			t.Errorf("Long description does not mention %q", word)
		}
	}

	flags := map[string]struct{ short, def string }{
		"config":  {"C", ""},
		"verbose": {"v", "false"},
	}
	for name, want := range flags {
		f := rootCmd.PersistentFlags().Lookup(name)
		if f == nil {
			t.Errorf("missing --%s", name)
			continue
		}
		if f.Shorthand != want.short || f.DefValue != want.def {
			t.Errorf("--%s: shorthand %q default %q, want %q %q", name, f.Shorthand, f.DefValue, want.short, want.def)
		}
	}
	if f := rootCmd.PersistentFlags().Lookup("config"); f != nil && !strings.Contains(f.Usage, "$HOME/.config/nimmit") {
		t.Errorf("--config usage %q does not name the default location", f.Usage)
	}

	subs := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		subs[c.Name()] = true
	}
	for _, name := range []string{"serve", "chat", "maintenance", "config"} {
		if !subs[name] {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestInitConfig_ExplicitFile(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "nimmit.toml"), `
[server]
addr = ":9999"

[briefing]
context_max_items = 9

[maintenance]
stale_job_age = "72h"
`)
	useConfig(t, path, false)

	if err := initConfig(); err != nil {
		t.Fatalf("initConfig() error = %v", err)
	}
	if appConfig.Server.Addr != ":9999" {
		t.Errorf("server.addr = %q", appConfig.Server.Addr)
	}
	if appConfig.Briefing.ContextMaxItems != 9 {
		t.Errorf("context_max_items = %d, want 9", appConfig.Briefing.ContextMaxItems)
	}
	if appConfig.Maintenance.StaleJobAge != 72*time.Hour {
		t.Errorf("stale_job_age = %v, want 72h", appConfig.Maintenance.StaleJobAge)
	}
	if appConfig.Briefing.MaxMessageChars != 4000 {
		t.Errorf("max_message_chars = %d, want default 4000", appConfig.Briefing.MaxMessageChars)
	}
}

func TestInitConfig_MissingExplicitFile(t *testing.T) {
	useConfig(t, filepath.Join(t.TempDir(), "nope.toml"), false)
	if err := initConfig(); err == nil {
		t.Error("initConfig() succeeded with a missing --config file")
	}
}

func TestInitConfig_DefaultLocation(t *testing.T) {
	home := useConfig(t, "", false)
	writeFile(t, filepath.Join(home, ".config", "nimmit", "config.toml"), "[store]\npath = \"/srv/nimmit/test.db\"\n")

	if err := initConfig(); err != nil {
		t.Fatalf("initConfig() error = %v", err)
	}
	if got := viper.GetString("store.path"); got != "/srv/nimmit/test.db" {
		t.Errorf("store.path = %q", got)
	}
}

func TestInitConfig_DefaultsWithoutFile(t *testing.T) {
	useConfig(t, "", false)
	t.Setenv("NIMMIT_BRIEFING_MAX_MESSAGE_CHARS", "120")

	if err := initConfig(); err != nil {
		t.Fatalf("initConfig() error = %v", err)
	}
	if appConfig.Briefing.OpeningMessage == "" {
		t.Error("opening message default not applied")
	}
	if appConfig.Briefing.MaxMessageChars != 120 {
		t.Errorf("max_message_chars = %d, want 120 from env", appConfig.Briefing.MaxMessageChars)
	}
}

func TestInitConfig_VerboseNamesFile(t *testing.T) {
	home := useConfig(t, "", true)
	path := writeFile(t, filepath.Join(home, ".config", "nimmit", "config.toml"), "[server]\naddr = \":8081\"\n")

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	stderr := os.Stderr
	os.Stderr = w
	initErr := initConfig()
	_ = w.Close()
	os.Stderr = stderr

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)

	if initErr != nil {
		t.Fatalf("initConfig() error = %v", initErr)
	}
	if !strings.Contains(buf.String(), "Using config file: "+path) {
		t.Errorf("stderr = %q, want the config path", buf.String())
	}
}

func TestRootCommand_UnknownSubcommand(t *testing.T) {
	c := *rootCmd
	c.SetArgs([]string{"frobnicate"})
	c.SetOut(&bytes.Buffer{})
	c.SetErr(&bytes.Buffer{})

	if err := c.Execute(); err == nil {
		t.Error("Execute() accepted an unknown subcommand")
	}
}
