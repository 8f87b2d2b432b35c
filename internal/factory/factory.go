// Package factory wires the application components together. Nothing in the
// core holds ambient global state; every entry point receives its
// collaborators here.
package factory

import (
	"errors"
	"io"
	"log/slog"

	"github.com/sailclub/sailcredit/internal/dependencies/clock"
	"github.com/sailclub/sailcredit/internal/events"
	"github.com/sailclub/sailcredit/internal/scheduler"
	"github.com/sailclub/sailcredit/internal/services/adjudication"
	"github.com/sailclub/sailcredit/internal/services/bureau"
	"github.com/sailclub/sailcredit/internal/services/party"
	"github.com/sailclub/sailcredit/internal/storage"
	"github.com/sailclub/sailcredit/internal/storage/memory"
	redisstorage "github.com/sailclub/sailcredit/internal/storage/redis"
	sqlitestorage "github.com/sailclub/sailcredit/internal/storage/sqlite"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
	StorageTypeSQLite = "sqlite"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock     clock.Clock
	Scheduler *scheduler.Scheduler

	// Services
	Events       *events.Hub
	Bureau       *bureau.Service
	Adjudication *adjudication.Manager
	Registry     *party.Registry
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// Clock overrides the system clock (optional, used by tests)
	Clock clock.Clock
	// StorageType selects the ledger backend ("memory", "redis" or "sqlite")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// SQLitePath is the database file path (required if StorageType is "sqlite")
	SQLitePath string
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	var store storage.Storage
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		store = memory.New()
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		store = redisStore
	case StorageTypeSQLite:
		sqliteStore, err := sqlitestorage.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		store = sqliteStore
	default:
		return nil, errors.New("unknown storage type: " + storageType)
	}

	sched := scheduler.New(clk, logger)
	hub := events.NewHub(logger)
	bureauService := bureau.New(store, clk, logger)
	adjudicationManager := adjudication.NewManager(bureauService, sched, clk, hub, logger)
	registry := party.NewRegistry(bureauService, adjudicationManager, sched, clk, hub, logger)

	return &App{
		Storage:      store,
		Clock:        clk,
		Scheduler:    sched,
		Events:       hub,
		Bureau:       bureauService,
		Adjudication: adjudicationManager,
		Registry:     registry,
	}, nil
}

// Close stops timers and releases the storage backend
func (a *App) Close() error {
	a.Scheduler.Stop()
	a.Events.Close()
	if closer, ok := a.Storage.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
