package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/devcrew/internal/backup"
	"github.com/Iron-Ham/devcrew/internal/cache"
	"github.com/Iron-Ham/devcrew/internal/config"
	"github.com/Iron-Ham/devcrew/internal/errhandler"
	"github.com/Iron-Ham/devcrew/internal/errors"
	"github.com/Iron-Ham/devcrew/internal/event"
	"github.com/Iron-Ham/devcrew/internal/logging"
	"github.com/Iron-Ham/devcrew/internal/metrics"
	"github.com/Iron-Ham/devcrew/internal/registry"
)

// Service names registered with the default locator.
const (
	ServiceConfig  = "config"
	ServiceLogger  = "logger"
	ServiceBus     = "bus"
	ServiceMetrics = "metrics"
	ServiceErrors  = "errors"
	ServiceCache   = "cache"
	ServiceBackups = "backups"
)

// app holds the services shared by the commands of one invocation.
type app struct {
	root    string
	cfg     *config.Config
	logger  *logging.Logger
	bus     *event.Bus
	metrics *metrics.Metrics
	errs    *errhandler.Handler
	locator *registry.Locator

	closers []func() error
}

// active is the app built by the running command, if any.
var active *app

// appFor returns the app for the current invocation, building it on first use.
func appFor(cmd *cobra.Command) (*app, error) {
	if active != nil {
		return active, nil
	}
	a, err := newApp(cmd)
	if err != nil {
		return nil, err
	}
	active = a
	return a, nil
}

func newApp(cmd *cobra.Command) (*app, error) {
	root, err := projectRoot(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &app{
		root:    root,
		cfg:     cfg,
		bus:     event.NewBus(),
		metrics: metrics.New(),
		locator: registry.Default(),
	}

	a.logger = logging.NopLogger()
	if cfg.Logging.Enabled {
		logger, err := logging.NewRotatingLogger(cfg.LogDir(root), cfg.Logging.Level, logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			Compress:   cfg.Logging.Compress,
		})
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: debug logging disabled: %v\n", err)
		} else {
			a.logger = logger
			a.closers = append(a.closers, logger.Close)
		}
	}
	a.bus.SetLogger(a.logger.WithComponent("event").Slog())
	a.metrics.Attach(a.bus)

	a.errs = errhandler.New(errhandler.Config{
		LogFile:     cfg.ErrorLogFile(root),
		MaxRetries:  cfg.Errors.MaxRetries,
		RetryDelay:  cfg.Errors.RetryDelay(),
		DedupWindow: cfg.Errors.DedupWindow(),
	}, errhandler.WithBus(a.bus), errhandler.WithLogger(a.logger))

	a.locator.Reset()
	services := map[string]any{
		ServiceConfig:  a.cfg,
		ServiceLogger:  a.logger,
		ServiceBus:     a.bus,
		ServiceMetrics: a.metrics,
		ServiceErrors:  a.errs,
	}
	for name, svc := range services {
		if err := a.locator.Register(name, svc); err != nil {
			return nil, err
		}
	}
	if err := a.locator.RegisterFactory(ServiceCache, a.openCache); err != nil {
		return nil, err
	}
	if err := a.locator.RegisterFactory(ServiceBackups, a.openBackups); err != nil {
		return nil, err
	}

	a.logger.Debug("services registered", "root", root, "services", a.locator.Names())
	return a, nil
}

// projectRoot resolves --project, defaulting to the working directory.
func projectRoot(cmd *cobra.Command) (string, error) {
	root, _ := cmd.Flags().GetString("project")
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
		root = cwd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("project root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project root %s is not a directory", abs)
	}
	return abs, nil
}

func (a *app) dataDir() string {
	return a.cfg.Paths.ResolveDataDir(a.root)
}

func (a *app) openCache() (any, error) {
	dir := a.cfg.CacheDir(a.root)

	var store cache.Store
	switch a.cfg.Cache.Backend {
	case "badger":
		s, err := cache.OpenBadgerStore(cache.BadgerConfig{
			Dir:    dir,
			Logger: a.logger.WithComponent("badger").Slog(),
		})
		if err != nil {
			return nil, err
		}
		store = s
	default:
		s, err := cache.NewFileStore(dir, a.cfg.Cache.Compress)
		if err != nil {
			return nil, err
		}
		store = s
	}

	// The data directory changes on every run and must not move the project hash.
	exclude := slices.Clone(a.cfg.Cache.ExcludeDirs)
	if base := filepath.Base(a.dataDir()); !slices.Contains(exclude, base) {
		exclude = append(exclude, base)
	}

	c, err := cache.New(store, a.root,
		cache.WithTTL(a.cfg.Cache.TTL()),
		cache.WithExcludeDirs(exclude...),
		cache.WithMemoryEntries(a.cfg.Cache.MemoryEntries),
		cache.WithBus(a.bus),
		cache.WithLogger(a.logger),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.closers = append(a.closers, c.Close)
	return c, nil
}

func (a *app) openBackups() (any, error) {
	return backup.NewManager(a.root, a.cfg.BackupDir(a.root),
		backup.WithMaxRecords(a.cfg.Backup.MaxRecords),
		backup.WithBus(a.bus),
		backup.WithLogger(a.logger),
	)
}

func (a *app) cache() (*cache.Cache, error) {
	return registry.Lookup[*cache.Cache](a.locator, ServiceCache)
}

func (a *app) backups() (*backup.Manager, error) {
	return registry.Lookup[*backup.Manager](a.locator, ServiceBackups)
}

// errReported matches errors the handler has already recorded.
var errReported = errors.New("error already recorded")

type reportedError struct {
	err error
}

func (e reportedError) Error() string        { return e.err.Error() }
func (e reportedError) Unwrap() error        { return e.err }
func (e reportedError) Is(target error) bool { return target == errReported }

// guard runs fn under the error handler. Errors the handler recovers from
// are swallowed; everything else is recorded and returned.
func (a *app) guard(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if err := a.errs.Guard(ctx, operation, fn); err != nil {
		return reportedError{err: err}
	}
	return nil
}

// close releases services in reverse order of creation.
func (a *app) close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	a.locator.Reset()
	return firstErr
}
