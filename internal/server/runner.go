package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jroosing/hydraproxy/internal/cache"
	"github.com/jroosing/hydraproxy/internal/config"
	"github.com/jroosing/hydraproxy/internal/database"
	"github.com/jroosing/hydraproxy/internal/logging"
	"github.com/jroosing/hydraproxy/internal/metrics"
	"github.com/jroosing/hydraproxy/internal/querylog"
	"golang.org/x/sync/errgroup"
)

// Task is a long-running service started by the Runner. It must return
// once ctx is canceled.
type Task func(ctx context.Context) error

// Runner builds the proxy and its supporting services from a config and
// runs them until shutdown.
type Runner struct {
	cfg     *config.Config
	logger  *slog.Logger
	stats   *Stats
	metrics *metrics.Metrics
	proxy   *Proxy
	db      *database.DB
	qlog    *querylog.Writer
	tasks   []Task
}

// NewRunner binds the listener and opens the query log store when enabled.
// The caller must call Run or Close.
func NewRunner(cfg *config.Config, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	listen, err := cfg.ListenAddr()
	if err != nil {
		return nil, err
	}
	upstream, err := cfg.Upstream.AddrPort()
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:     cfg,
		logger:  logger,
		stats:   NewStats(),
		metrics: metrics.New(),
	}

	if cfg.QueryLog.Enabled {
		db, err := database.Open(cfg.QueryLog.Path)
		if err != nil {
			return nil, fmt.Errorf("open query log: %w", err)
		}
		qlog, err := querylog.New(db, querylog.Options{
			Buffer:        cfg.QueryLog.Buffer,
			Retention:     cfg.QueryLog.RetentionDuration(),
			PruneSchedule: cfg.QueryLog.PruneSchedule,
			Logger:        logging.Component(logger, "querylog"),
		})
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		r.db, r.qlog = db, qlog
	}

	opts := ProxyOptions{
		Listen:          listen,
		Upstream:        upstream,
		Timeout:         cfg.Upstream.TimeoutDuration(),
		MaxRequests:     cfg.Server.MaxRequests,
		ServfailOnError: cfg.Server.ServfailOnError,
		PollInterval:    cfg.Server.PollIntervalDuration(),
		RecvSize:        cfg.Upstream.RecvSize,
		Logger:          logging.Component(logger, "proxy"),
		Stats:           r.stats,
		Metrics:         r.metrics,
		Cache:           cache.New(),
	}
	if r.qlog != nil {
		opts.QueryLog = r.qlog
	}
	proxy, err := NewProxy(opts)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.proxy = proxy
	return r, nil
}

func (r *Runner) Stats() *Stats             { return r.stats }
func (r *Runner) Metrics() *metrics.Metrics { return r.metrics }
func (r *Runner) Proxy() *Proxy             { return r.proxy }

// QueryLog returns the query log store, or nil when the log is disabled.
func (r *Runner) QueryLog() *database.DB { return r.db }

// Go adds a task that runs next to the proxy, such as the management API.
func (r *Runner) Go(t Task) { r.tasks = append(r.tasks, t) }

// Run blocks until SIGINT or SIGTERM.
func (r *Runner) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return r.RunWithContext(ctx)
}

// RunWithContext runs the proxy, the query log writer and every added task
// until ctx is canceled or one of them fails. Resources are released on
// return.
func (r *Runner) RunWithContext(ctx context.Context) error {
	defer r.Close()
	r.logStartup()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.proxy.Run(gctx) })
	if r.qlog != nil {
		g.Go(func() error { return r.qlog.Run(gctx) })
	}
	for _, t := range r.tasks {
		g.Go(func() error { return t(gctx) })
	}
	return g.Wait()
}

// Close releases the proxy sockets and the query log store.
func (r *Runner) Close() {
	if r.proxy != nil {
		r.proxy.Close()
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			r.logger.Warn("closing query log failed", "err", err)
		}
		r.db = nil
	}
}

func (r *Runner) logStartup() {
	r.logger.Info("hydraproxy starting",
		"listen", r.proxy.Addr().String(),
		"upstream", r.cfg.Upstream.Server,
		"timeout", r.cfg.Upstream.Timeout,
		"querylog", r.cfg.QueryLog.Enabled,
		"api", r.cfg.API.Enabled,
		"tasks", len(r.tasks),
	)
}
