package journal

import (
	"context"
	"sync/atomic"
	"time"

	"eventtrader/pkg/exception"

	"github.com/sourcegraph/conc"
	"github.com/yanun0323/logs"
)

const (
	defaultQueueSize     = 1024
	defaultBatchSize     = 64
	defaultFlushInterval = time.Second
)

type Config struct {
	QueueSize     int           `json:"queueSize" yaml:"queueSize"`
	BatchSize     int           `json:"batchSize" yaml:"batchSize"`
	FlushInterval time.Duration `json:"flushInterval" yaml:"flushInterval"`
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}
	return c
}

// Writer batches entries from a buffered queue into a Store.
type Writer struct {
	cfg   Config
	store Store
	ch    chan Entry
	wg    conc.WaitGroup
	err   atomic.Value

	started atomic.Bool
	closed  atomic.Bool
	written atomic.Uint64
}

func NewWriter(cfg Config, store Store) *Writer {
	cfg = cfg.withDefaults()
	return &Writer{
		cfg:   cfg,
		store: store,
		ch:    make(chan Entry, cfg.QueueSize),
	}
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return exception.ErrAlreadyStarted
	}
	w.wg.Go(func() { w.run(ctx) })
	return nil
}

// Close stops the writer after the queued entries are saved.
func (w *Writer) Close() error {
	if w.closed.CompareAndSwap(false, true) {
		close(w.ch)
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the last error observed by the writer, if any.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (w *Writer) Written() uint64 {
	return w.written.Load()
}

// TryAppend enqueues an entry without blocking.
func (w *Writer) TryAppend(e Entry) error {
	if w.closed.Load() {
		return exception.ErrWriterClosed
	}
	if !w.started.Load() {
		return exception.ErrNotStarted
	}
	select {
	case w.ch <- e:
		return nil
	default:
		return exception.ErrQueueFull
	}
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, w.cfg.BatchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := w.store.Save(ctx, batch); err != nil {
			w.err.Store(err)
			logs.Errorf("save %d journal entries, err: %+v", len(batch), err)
		} else {
			w.written.Add(uint64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e, ok := <-w.ch:
					if !ok {
						flush(context.Background())
						return
					}
					batch = append(batch, e)
				default:
					flush(context.Background())
					return
				}
			}
		case e, ok := <-w.ch:
			if !ok {
				flush(ctx)
				return
			}
			batch = append(batch, e)
			if len(batch) >= w.cfg.BatchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}
