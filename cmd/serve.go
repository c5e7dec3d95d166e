package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koompi/nimmit-assistant/pkg/audit"
	"github.com/koompi/nimmit-assistant/pkg/maintenance"
	"github.com/koompi/nimmit-assistant/pkg/server"
)

var serveAddr string

func init() {
	rootCmd.AddCommand(newServeCmd())
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the briefing API and the maintenance scheduler",
		Long: `Run the HTTP API for briefing conversations and maintenance triggers.

When maintenance.interval is positive, every consistency task also runs on
that interval in-process. When server.health_addr is set, a gRPC health
endpoint reports whether the store is reachable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides server.addr)")

	return cmd
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	logger := newLogger()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	rec := audit.NewRecorder(st, logger)

	manager, err := newBriefingManager(cfg, st, rec, logger)
	if err != nil {
		return err
	}
	runner := newMaintenanceRunner(cfg, st, rec, logger)

	auth, err := server.NewTokenAuthenticator(cfg.Auth.Tokens)
	if err != nil {
		return err
	}
	if len(cfg.Auth.Tokens) == 0 {
		logger.Warn("no auth tokens configured; briefing endpoints will reject every request")
	}

	srv := server.New(server.Options{
		Briefings:      manager,
		Maintenance:    runner,
		Auth:           auth,
		SchedulerToken: cfg.Auth.SchedulerToken,
		Store:          st,
		Logger:         logger,
	})

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := maintenance.NewScheduler(runner, cfg.Maintenance.Interval, logger)
	scheduler.Start()
	defer scheduler.Stop()

	return server.Serve(ctx, cfg.Server, srv, logger)
}
