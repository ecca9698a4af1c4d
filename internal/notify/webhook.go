package notify

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"eventtrader/pkg/exception"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/sourcegraph/conc"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	defaultWebhookQueue    = 64
	defaultWebhookAttempts = 5
	defaultWebhookTimeout  = 5 * time.Second
)

type WebhookConfig struct {
	URL         string        `json:"url" yaml:"url"`
	QueueSize   int           `json:"queueSize" yaml:"queueSize"`
	MaxAttempts int           `json:"maxAttempts" yaml:"maxAttempts"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	MaxInterval time.Duration `json:"maxInterval" yaml:"maxInterval"`
}

// Webhook posts alerts as JSON from a background worker, retrying with
// exponential backoff on transport errors and 5xx responses.
type Webhook struct {
	cfg    WebhookConfig
	client *http.Client
	queue  chan Alert
	wg     conc.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

func NewWebhook(cfg WebhookConfig) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, errors.Wrap(exception.ErrConfiguration, "webhook url is empty")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultWebhookQueue
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultWebhookAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultWebhookTimeout
	}
	return &Webhook{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		queue:  make(chan Alert, cfg.QueueSize),
	}, nil
}

// Start launches the delivery worker. It stops when ctx is done or Close is called.
func (w *Webhook) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return exception.ErrAlreadyStarted
	}
	w.started = true
	w.wg.Go(func() { w.loop(ctx) })
	return nil
}

// Notify enqueues an alert, dropping it when the queue is full.
func (w *Webhook) Notify(_ context.Context, a Alert) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.dropped.Add(1)
		return
	}
	select {
	case w.queue <- a:
	default:
		w.dropped.Add(1)
		logs.Warnf("webhook queue full, drop alert: %s", a.Title)
	}
}

// Close stops accepting alerts and waits for queued ones to be delivered.
func (w *Webhook) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Webhook) Sent() uint64    { return w.sent.Load() }
func (w *Webhook) Failed() uint64  { return w.failed.Load() }
func (w *Webhook) Dropped() uint64 { return w.dropped.Load() }

func (w *Webhook) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-w.queue:
			if !ok {
				return
			}
			if err := w.deliver(ctx, a); err != nil {
				w.failed.Add(1)
				logs.Errorf("deliver alert %s, err: %+v", a.Title, err)
				continue
			}
			w.sent.Add(1)
		}
	}
}

func (w *Webhook) deliver(ctx context.Context, a Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return errors.Wrap(err, "marshal alert")
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	if w.cfg.MaxInterval > 0 {
		b.MaxInterval = w.cfg.MaxInterval
	}

	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		retry, err := w.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == w.cfg.MaxAttempts {
			break
		}
		sleep := b.NextBackOff()
		if sleep == backoff.Stop {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "deliver alert")
		case <-time.After(sleep):
		}
	}
	return errors.Wrapf(lastErr, "deliver alert after %d attempts", w.cfg.MaxAttempts)
}

// post sends one request and reports whether a failure is worth retrying.
func (w *Webhook) post(ctx context.Context, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return false, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return true, errors.Wrap(err, "post")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return true, errors.Errorf("webhook returned status: %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return false, errors.Errorf("webhook returned status: %d", resp.StatusCode)
	}
	return false, nil
}
