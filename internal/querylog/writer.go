// Package querylog records answered queries to the database off the hot path.
//
// The dispatch loop hands entries to Record, which never blocks: when the
// buffer is full the entry is dropped and counted. A single goroutine
// batches inserts, and a cron job prunes rows past the retention window.
package querylog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jroosing/hydraproxy/internal/database"
	"github.com/robfig/cron/v3"
)

// Store is the persistence the writer needs.
type Store interface {
	InsertQueries(ctx context.Context, entries []database.QueryEntry) error
	PruneBefore(ctx context.Context, t time.Time) (int64, error)
}

// Options configures a Writer. Zero values get defaults.
type Options struct {
	Buffer        int           // channel capacity, default 1024
	BatchSize     int           // max rows per insert, default 128
	FlushInterval time.Duration // max delay before a partial batch is written, default 1s
	Retention     time.Duration // rows older than this are pruned, default 24h
	PruneSchedule string        // cron spec with seconds, default every 10 minutes
	Logger        *slog.Logger
	Now           func() time.Time
}

// Stats counts writer activity.
type Stats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Pruned  uint64 `json:"pruned"`
	Failed  uint64 `json:"failed"`
}

// ErrAlreadyRunning is returned when Run is called more than once.
var ErrAlreadyRunning = errors.New("querylog: writer already running")

// Writer buffers query log entries and persists them in batches.
type Writer struct {
	store  Store
	opts   Options
	ch     chan database.QueryEntry
	cron   *cron.Cron
	logger *slog.Logger

	running atomic.Bool
	written atomic.Uint64
	dropped atomic.Uint64
	pruned  atomic.Uint64
	failed  atomic.Uint64
}

// New creates a writer. The prune schedule is validated here.
func New(store Store, opts Options) (*Writer, error) {
	if opts.Buffer <= 0 {
		opts.Buffer = 1024
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 128
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.Retention <= 0 {
		opts.Retention = 24 * time.Hour
	}
	if opts.PruneSchedule == "" {
		opts.PruneSchedule = "0 */10 * * * *"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Writer{
		store:  store,
		opts:   opts,
		ch:     make(chan database.QueryEntry, opts.Buffer),
		cron:   cron.New(cron.WithSeconds()),
		logger: logger,
	}
	if _, err := w.cron.AddFunc(opts.PruneSchedule, w.pruneJob); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", opts.PruneSchedule, err)
	}
	return w, nil
}

// Record queues e without blocking. It reports false when e was dropped.
func (w *Writer) Record(e database.QueryEntry) bool {
	select {
	case w.ch <- e:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

// Run writes batches until ctx is canceled, then flushes what is queued.
func (w *Writer) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	w.cron.Start()
	defer func() {
		<-w.cron.Stop().Done()
	}()

	ticker := time.NewTicker(w.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]database.QueryEntry, 0, w.opts.BatchSize)
	for {
		select {
		case <-ctx.Done():
			batch = w.drain(batch)
			w.flush(context.WithoutCancel(ctx), batch)
			return nil
		case e := <-w.ch:
			batch = append(batch, e)
			if len(batch) >= w.opts.BatchSize {
				batch = w.flush(ctx, batch)
			}
		case <-ticker.C:
			batch = w.flush(ctx, batch)
		}
	}
}

func (w *Writer) drain(batch []database.QueryEntry) []database.QueryEntry {
	for {
		select {
		case e := <-w.ch:
			batch = append(batch, e)
		default:
			return batch
		}
	}
}

func (w *Writer) flush(ctx context.Context, batch []database.QueryEntry) []database.QueryEntry {
	if len(batch) == 0 {
		return batch
	}
	if err := w.store.InsertQueries(ctx, batch); err != nil {
		w.failed.Add(uint64(len(batch)))
		w.logger.Warn("query log insert failed", "rows", len(batch), "err", err)
	} else {
		w.written.Add(uint64(len(batch)))
	}
	return batch[:0]
}

// Prune deletes rows older than the retention window.
func (w *Writer) Prune(ctx context.Context) (int64, error) {
	n, err := w.store.PruneBefore(ctx, w.opts.Now().Add(-w.opts.Retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		w.pruned.Add(uint64(n))
	}
	return n, nil
}

func (w *Writer) pruneJob() {
	n, err := w.Prune(context.Background())
	if err != nil {
		w.logger.Warn("query log prune failed", "err", err)
		return
	}
	if n > 0 {
		w.logger.Debug("query log pruned", "rows", n)
	}
}

// Stats returns the writer counters.
func (w *Writer) Stats() Stats {
	return Stats{
		Written: w.written.Load(),
		Dropped: w.dropped.Load(),
		Pruned:  w.pruned.Load(),
		Failed:  w.failed.Load(),
	}
}
