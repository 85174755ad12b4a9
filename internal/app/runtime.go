package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skobkin/courier/internal/bus"
	"github.com/skobkin/courier/internal/config"
	"github.com/skobkin/courier/internal/lock"
	"github.com/skobkin/courier/internal/logging"
	"github.com/skobkin/courier/internal/media"
	"github.com/skobkin/courier/internal/metrics"
	"github.com/skobkin/courier/internal/notifications"
	"github.com/skobkin/courier/internal/persistence"
)

// Runtime holds everything that does not depend on a logged in account:
// storage, the bus, metrics and the media stack.
type Runtime struct {
	mu sync.RWMutex

	Ctx    context.Context
	cancel context.CancelFunc

	Paths  Paths
	Config config.AppConfig

	dirLock lock.Lock

	LogManager *logging.Manager
	Bus        *bus.PubSubBus
	DB         *sql.DB

	MessageRepo  *persistence.MessageRepo
	DialogRepo   *persistence.DialogRepo
	SentFileRepo *persistence.SentFileRepo
	WriterQueue  *persistence.WriterQueue

	Registry      *prometheus.Registry
	Metrics       *metrics.Metrics
	MetricsServer *metrics.Server

	MediaPool *media.Pool
	Transfers *media.Pool
	Imager    *media.Imager
	Fetcher   *media.URLFetcher
	Artifacts *media.Artifacts

	Notifications *NotificationService
}

// Options override parts of the runtime environment.
type Options struct {
	Paths *Paths
	// Notifier replaces the desktop notification backend.
	Notifier notifications.Sender
	// LogManager replaces the default stderr log manager.
	LogManager *logging.Manager
}

func Initialize(parent context.Context, opts Options) (*Runtime, error) {
	var paths Paths
	if opts.Paths != nil {
		paths = *opts.Paths
	} else {
		resolved, err := ResolvePaths()
		if err != nil {
			return nil, err
		}
		paths = resolved
	}
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		Ctx:    ctx,
		cancel: cancel,
		Paths:  paths,
		Config: cfg,
	}

	logMgr := opts.LogManager
	if logMgr == nil {
		logMgr = logging.NewManager()
	}
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		_ = logMgr.Close()
		cancel()
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	slog.Info("starting courier runtime", "version", BuildVersion(), "build_date", BuildDateYMD())

	dirLock, err := lock.Acquire(paths.RootDir)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("lock data directory: %w", err)
	}
	rt.dirLock = dirLock

	db, err := persistence.Open(ctx, paths.DBFile)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.DB = db
	rt.MessageRepo = persistence.NewMessageRepo(db)
	rt.DialogRepo = persistence.NewDialogRepo(db)
	rt.SentFileRepo = persistence.NewSentFileRepo(db)

	b := bus.New(logMgr.Logger("bus"), BusCapacity)
	rt.Bus = b

	writerQueue := persistence.NewWriterQueue(logMgr.Logger("persistence"), WriterQueueSize)
	writerQueue.Start(ctx)
	rt.WriterQueue = writerQueue
	persistence.StartDialogProjection(ctx, b, writerQueue, rt.DialogRepo)

	rt.Registry = prometheus.NewRegistry()
	rt.Metrics = metrics.New(rt.Registry)
	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Addr, rt.Registry, logMgr.Logger("metrics"))
		if err := srv.Start(); err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("start metrics endpoint: %w", err)
		}
		rt.MetricsServer = srv
	}

	if err := rt.initMedia(cfg.Media); err != nil {
		_ = rt.Close()
		return nil, err
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewDesktopSender(Name, logMgr.Logger("notifications"))
	}
	rt.Notifications = NewNotificationService(b, rt.CurrentConfig, notifier, logMgr.Logger("app.notifications"))
	rt.Notifications.Start(ctx)

	return rt, nil
}

func (r *Runtime) initMedia(cfg config.MediaConfig) error {
	pool := media.NewPool(r.LogManager.Logger("media"), cfg.Workers, cfg.QueueSize)
	pool.Start(r.Ctx)
	r.MediaPool = pool

	transfers := media.NewPool(r.LogManager.Logger("media.transfers"), cfg.Transfers, cfg.QueueSize)
	transfers.Start(r.Ctx)
	r.Transfers = transfers

	imager, err := media.NewImager(r.Paths.MediaDir)
	if err != nil {
		return err
	}
	r.Imager = imager

	fetcher, err := media.NewURLFetcher(media.FetcherConfig{
		Dir:         r.Paths.MediaDir,
		Timeout:     time.Duration(cfg.DownloadTimeout) * time.Second,
		MaxBodySize: cfg.MaxDownloadSizeMB << 20,
		S3: media.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
		},
	})
	if err != nil {
		return fmt.Errorf("initialize media fetcher: %w", err)
	}
	r.Fetcher = fetcher
	r.Artifacts = media.NewArtifacts(pool, imager)

	return nil
}

func (r *Runtime) CurrentConfig() config.AppConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.Config
}

func (r *Runtime) SaveAndApplyConfig(cfg config.AppConfig) error {
	cfg.FillMissingDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if err := config.Save(r.Paths.ConfigFile, cfg); err != nil {
		r.mu.Unlock()
		return err
	}
	r.Config = cfg
	r.mu.Unlock()

	return r.LogManager.Configure(cfg.Logging, r.Paths.LogFile)
}

// ClearDatabase waits for queued writes and wipes every stored message,
// dialog and sent-file record.
func (r *Runtime) ClearDatabase() error {
	if r.DB == nil {
		return fmt.Errorf("database is not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if r.WriterQueue != nil {
		if err := r.WriterQueue.Flush(ctx); err != nil {
			return fmt.Errorf("flush pending writes: %w", err)
		}
	}
	if err := persistence.ClearDatabase(ctx, r.DB); err != nil {
		return err
	}
	slog.Info("database cleared")

	return nil
}

func (r *Runtime) Close() error {
	if r.WriterQueue != nil && r.Ctx != nil && r.Ctx.Err() == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := r.WriterQueue.Flush(ctx); err != nil {
			slog.Warn("flush writes on close", "error", err)
		}
		cancel()
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.MetricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = r.MetricsServer.Shutdown(ctx)
		cancel()
	}
	if r.Bus != nil {
		r.Bus.Close()
	}
	if r.DB != nil {
		_ = r.DB.Close()
	}
	if r.dirLock != nil {
		if err := r.dirLock.Release(); err != nil {
			slog.Warn("release data directory lock", "error", err)
		}
		r.dirLock = nil
	}
	if r.LogManager != nil {
		_ = r.LogManager.Close()
	}
	return nil
}
