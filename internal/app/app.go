// Package app wires configuration into the running services shared by the
// daemon, the CLI and the MCP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/pyquest/internal/config"
	"github.com/felixgeelhaar/pyquest/internal/domain"
	"github.com/felixgeelhaar/pyquest/internal/lesson"
	"github.com/felixgeelhaar/pyquest/internal/progress"
	"github.com/felixgeelhaar/pyquest/internal/queue"
	"github.com/felixgeelhaar/pyquest/internal/runtime"
	"github.com/felixgeelhaar/pyquest/internal/session"
	"github.com/felixgeelhaar/pyquest/internal/storage/local"
	"github.com/felixgeelhaar/pyquest/internal/storage/sqldb"
	"github.com/felixgeelhaar/pyquest/internal/storage/sqlite"
)

// DatabaseFile is the SQLite database under the pyquest directory
const DatabaseFile = "pyquest.db"

// App holds the wired services
type App struct {
	Config   *config.LocalConfig
	Dir      string
	Lessons  *lesson.Registry
	Progress *progress.Registry
	Sessions *session.Service

	logger    *slog.Logger
	sqlite    *sqlite.DB
	forwarder *queue.Forwarder
	closers   []func() error
}

// New builds every service described by cfg. dir is the pyquest
// directory relative paths resolve against.
func New(ctx context.Context, dir string, cfg *config.LocalConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{Config: cfg, Dir: dir, logger: logger}
	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	lessons, err := a.loadLessons()
	if err != nil {
		return err
	}
	a.Lessons = lessons

	blobs, err := a.openBlobStore(ctx)
	if err != nil {
		return err
	}

	rt := a.openRuntime()

	var opts []progress.Option
	opts = append(opts, progress.WithLogger(a.logger))

	var producer *queue.Producer
	if a.Config.Sync.Enabled {
		producer = a.openSync()
		if producer != nil {
			dispatcher := domain.NewEventDispatcher()
			a.forwarder = queue.NewForwarder(producer, a.snapshot, a.Config.Sync.Buffer, a.logger)
			dispatcher.SubscribeAll(a.forwarder.Handle)
			opts = append(opts, progress.WithEvents(dispatcher))
		}
	}

	a.Progress = progress.NewRegistry(blobs, opts...)
	a.Sessions = session.NewService(a.Lessons, a.Progress, rt, a.logger)

	history, err := a.openHistory(ctx)
	if err != nil {
		return err
	}
	if history != nil {
		a.Sessions.SetHistory(history)
	}
	if producer != nil {
		a.Sessions.SetPublisher(producer)
	}
	return nil
}

// loadLessons reads the bundled courses plus any in the courses directory
func (a *App) loadLessons() (*lesson.Registry, error) {
	loaders := []*lesson.Loader{lesson.NewBuiltinLoader()}
	if dir := config.Resolve(a.Dir, a.Config.Content.CoursesDir); dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			loaders = append(loaders, lesson.NewLoader(dir))
		}
	}

	registry := lesson.NewRegistry(loaders...)
	if err := registry.Load(); err != nil {
		return nil, fmt.Errorf("load courses: %w", err)
	}
	return registry, nil
}

func (a *App) openBlobStore(ctx context.Context) (progress.BlobStore, error) {
	if a.Config.Storage.Driver == "sqlite" {
		db, err := a.sqliteDB(ctx)
		if err != nil {
			return nil, err
		}
		return sqlite.NewBlobStore(db), nil
	}

	store, err := local.NewStore(config.Resolve(a.Dir, a.Config.Storage.Path))
	if err != nil {
		return nil, fmt.Errorf("open progress store: %w", err)
	}
	return store, nil
}

// sqliteDB opens and migrates the shared SQLite database once
func (a *App) sqliteDB(ctx context.Context) (*sqlite.DB, error) {
	if a.sqlite != nil {
		return a.sqlite, nil
	}

	db, err := sqlite.Open(filepath.Join(a.Dir, DatabaseFile))
	if err != nil {
		return nil, err
	}
	db.WithLogger(a.logger)
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	a.sqlite = db
	a.closers = append(a.closers, db.Close)
	return db, nil
}

func (a *App) openRuntime() runtime.Runtime {
	rc := a.Config.Runtime
	cfg := runtime.Config{
		Backend:    rc.Backend,
		Python:     rc.Python,
		Timeout:    rc.Timeout(),
		Image:      rc.Docker.Image,
		MemoryMB:   rc.Docker.MemoryMB,
		CPULimit:   rc.Docker.CPULimit,
		NetworkOff: rc.Docker.NetworkOff,
	}

	backend, err := runtime.NewBackend(cfg)
	if err != nil {
		a.logger.Warn("docker runtime not available, using local interpreter", "error", err)
		cfg.Backend = "local"
		backend = runtime.NewLocalBackend(cfg)
	}
	a.closers = append(a.closers, backend.Close)

	return runtime.NewResilient(runtime.NewInterpreter(backend, a.logger), runtime.ResilientConfig{
		FailureThreshold: rc.FailureThreshold,
		OpenTimeout:      rc.OpenTimeout(),
		Logger:           a.logger,
	})
}

// openHistory returns nil when history is disabled
func (a *App) openHistory(ctx context.Context) (session.History, error) {
	hc := a.Config.History

	var db *sqldb.DB
	switch {
	case hc.Driver == "none":
		return nil, nil
	case hc.Driver == "sqlite" && hc.DSN == "":
		sdb, err := a.sqliteDB(ctx)
		if err != nil {
			return nil, err
		}
		db = sqldb.Wrap(sdb.DB, sqldb.SQLite{})
	default:
		opened, err := sqldb.Open(ctx, hc.Driver, hc.DSN)
		if err != nil {
			return nil, fmt.Errorf("open history database: %w", err)
		}
		a.closers = append(a.closers, opened.Close)
		db = opened
	}

	repo := sqldb.NewAttemptRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

// openSync connects to the broker. Sync is best effort: a broker that is
// down at startup disables it for this process.
func (a *App) openSync() *queue.Producer {
	conn, err := queue.NewConnection(a.Config.Sync.AmqpURL, a.logger)
	if err != nil {
		a.logger.Warn("sync disabled, broker unreachable", "error", err)
		return nil
	}
	a.closers = append(a.closers, conn.Close)
	return queue.NewProducer(conn)
}

func (a *App) snapshot(ctx context.Context, userID string) (progress.State, error) {
	store, err := a.Progress.Get(ctx, userID)
	if err != nil {
		return progress.State{}, err
	}
	return store.Snapshot(), nil
}

// Start runs background workers until ctx is cancelled or Close is called
func (a *App) Start(ctx context.Context) {
	if a.forwarder != nil {
		a.forwarder.Start(ctx)
	}
}

// Close stops background work and releases resources in reverse order
func (a *App) Close() error {
	if a.forwarder != nil {
		a.forwarder.Stop()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
