package cmd

import (
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/koompi/nimmit-assistant/pkg/ai"
	"github.com/koompi/nimmit-assistant/pkg/audit"
	"github.com/koompi/nimmit-assistant/pkg/bootstrap"
	"github.com/koompi/nimmit-assistant/pkg/brief"
	"github.com/koompi/nimmit-assistant/pkg/briefing"
	"github.com/koompi/nimmit-assistant/pkg/config"
	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
	"github.com/koompi/nimmit-assistant/pkg/extract"
	"github.com/koompi/nimmit-assistant/pkg/maintenance"
	"github.com/koompi/nimmit-assistant/pkg/respond"
	"github.com/koompi/nimmit-assistant/pkg/retrieval"
	"github.com/koompi/nimmit-assistant/pkg/store"
)

// newLogger returns the process logger, writing to stderr.
func newLogger() *slog.Logger {
	return bootstrap.NewLogger(os.Stderr, verbose)
}

// loadSchema builds the brief schema from the built-in categories plus any
// configured category file.
func loadSchema(cfg *config.Config, logger *slog.Logger) (*brief.Schema, error) {
	registry, err := brief.DefaultRegistry()
	if err != nil {
		return nil, err
	}
	if cfg.Briefing.CategoriesFile != "" {
		if err := registry.LoadFile(cfg.Briefing.CategoriesFile); err != nil {
			return nil, errors.Wrapf(err, "failed to load categories from %s", cfg.Briefing.CategoriesFile)
		}
	}
	if logger != nil {
		logger.Debug("brief categories loaded", "categories", registry.IDs())
	}
	return brief.NewSchema(registry), nil
}

// openStore opens the configured database.
func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open store at %s", cfg.Store.Path)
	}
	return st, nil
}

// newBriefingManager wires the conversation engine: retrieval and extraction
// over st, replies from the configured AI provider.
func newBriefingManager(cfg *config.Config, st *store.Store, rec *audit.Recorder, logger *slog.Logger) (*briefing.Manager, error) {
	schema, err := loadSchema(cfg, logger)
	if err != nil {
		return nil, err
	}

	provider, err := ai.NewProvider(&cfg.AI, logger)
	if err != nil {
		return nil, err
	}

	retry := nimerrors.DefaultRetryConfig()
	retry.MaxRetries = cfg.AI.RetryAttempts

	extractor, err := extract.NewModelExtractor(provider, schema,
		extract.WithRetryConfig(retry),
		extract.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	retriever := retrieval.NewStoreRetriever(st, cfg.Briefing.ContextMaxItems)
	generator := respond.NewGenerator(provider, schema, logger)

	return briefing.NewManager(st, retriever, extractor, generator, cfg.Briefing,
		briefing.WithAudit(rec),
		briefing.WithLogger(logger)), nil
}

// newMaintenanceRunner wires the consistency tasks over st.
func newMaintenanceRunner(cfg *config.Config, st *store.Store, rec *audit.Recorder, logger *slog.Logger) *maintenance.Runner {
	return maintenance.NewRunner(st, cfg.Maintenance,
		maintenance.WithAudit(rec),
		maintenance.WithLogger(logger))
}
