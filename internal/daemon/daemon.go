package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"caseflow/internal/catalog"
	"caseflow/internal/config"
	"caseflow/internal/logging"
	"caseflow/internal/progress"
	"caseflow/internal/queuesvc"
	"caseflow/internal/session"
	"caseflow/internal/storage"
)

// Daemon owns the shared stores and background services and enforces
// single-instance execution through a lock file.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *storage.DB
	catalog *catalog.Store
	manager *queuesvc.Manager

	api *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status reports daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	CaseCount    int
}

// New constructs a daemon over an opened database.
func New(cfg *config.Config, db *storage.DB, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("daemon requires config and database")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	catalogStore := catalog.NewStore(db)
	ledger := progress.NewStore(db)
	sessions := session.NewStore(db)
	manager := queuesvc.NewManager(catalogStore, ledger, sessions, logger,
		queuesvc.WithSessionTTL(time.Duration(cfg.Queue.SessionTTLSeconds)*time.Second))

	lockPath := cfg.LockFilePath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.Component(logger, "daemon"),
		db:       db,
		catalog:  catalogStore,
		manager:  manager,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Manager exposes the queue manager for embedding callers.
func (d *Daemon) Manager() *queuesvc.Manager {
	return d.manager
}

// Start acquires the daemon lock and launches the API server and the
// session sweeper.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another caseflow daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}
	go d.sweepLoop(d.ctx)

	d.running.Store(true)
	d.logger.Info("caseflow daemon started", slog.String("lock", d.lockPath))
	return nil
}

// Stop shuts down background services and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release lock failed", logging.Error(err))
	}
	d.running.Store(false)
	d.ctx = nil
	d.cancel = nil
	d.logger.Info("caseflow daemon stopped")
}

// APIAddr returns the bound API address once the daemon is running.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Status reports runtime information.
func (d *Daemon) Status(ctx context.Context) Status {
	count, err := d.catalog.Count(ctx)
	if err != nil {
		d.logger.Warn("count cases failed", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.db.Path(),
		LockFilePath: d.lockPath,
		CaseCount:    count,
	}
}

func (d *Daemon) sweepLoop(ctx context.Context) {
	interval := time.Duration(d.cfg.Queue.SweepIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.manager.SweepExpiredSessions(ctx); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Warn("session sweep failed", logging.Error(err))
			}
		}
	}
}
