// Package storage opens the station repository selected by configuration.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/velov-data/velov/internal/config"
	"github.com/velov-data/velov/internal/database"
	"github.com/velov-data/velov/internal/provider/resilience"
	"github.com/velov-data/velov/internal/station"
	"github.com/velov-data/velov/internal/station/supabase"
)

// Options carries the dependencies shared by every backend.
type Options struct {
	Logger zerolog.Logger

	// Registry receives the Supabase HTTP client so its circuit state is
	// reported. Optional.
	Registry *resilience.Registry

	// Timeout bounds each Supabase request (default: 10s).
	Timeout time.Duration
}

// Store is an opened repository and the name it reports health under.
type Store struct {
	station.Repository
	Name  string
	close func()
}

// Close releases the backend's resources.
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg config.StoreConfig, opts Options) (*Store, error) {
	switch cfg.Backend {
	case config.BackendSupabase, "":
		return openSupabase(cfg, opts)
	case config.BackendPostgres:
		return openPostgres(ctx, cfg.Database, opts)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func openSupabase(cfg config.StoreConfig, opts Options) (*Store, error) {
	rc := resilience.DefaultClientConfig(supabase.ProviderName)
	if opts.Timeout > 0 {
		rc.Timeout = opts.Timeout
	}
	logger := opts.Logger
	rc.Logger = &logger
	client := resilience.NewClient(rc)

	// Reads go through the breaker; ingest writes never short-circuit.
	writes := resilience.NewClient(supabase.WriteClientConfig(opts.Timeout))

	repo, err := supabase.NewRepository(supabase.Config{
		URL:         cfg.SupabaseURL,
		Key:         cfg.SupabaseKey,
		HTTPClient:  client,
		WriteClient: writes,
	})
	if err != nil {
		return nil, err
	}
	if opts.Registry != nil {
		opts.Registry.Register(client)
	}

	opts.Logger.Info().
		Str("backend", config.BackendSupabase).
		Str("url", cfg.SupabaseURL).
		Msg("store configured")

	return &Store{Repository: repo, Name: supabase.ProviderName}, nil
}

func openPostgres(ctx context.Context, cfg database.Config, opts Options) (*Store, error) {
	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}

	opts.Logger.Info().
		Str("backend", config.BackendPostgres).
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("store connected")

	return &Store{
		Repository: station.NewPostgresRepository(pool),
		Name:       config.BackendPostgres,
		close:      pool.Close,
	}, nil
}
