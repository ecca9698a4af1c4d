package order

import (
	"context"
	"hash/fnv"
	"sync/atomic"

	"eventtrader/internal/schema"
	"eventtrader/pkg/exception"

	"github.com/sourcegraph/conc"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Delegator delivers one request to a venue.
type Delegator interface {
	Send(context.Context, schema.OrderRequest) error
}

// Usecase moves order requests off the session goroutine. Requests of the
// same internal id always land on the same worker so they reach the venue
// in submission order.
type Usecase struct {
	delegators map[string]Delegator
	fallback   Delegator
	report     func(schema.OrderEvent)

	running atomic.Bool
	queues  []chan schema.OrderRequest
	wg      conc.WaitGroup
}

// NewUsecase builds a pool of workerCount workers each buffering workerCap
// requests. Failed deliveries are reported back as reject events.
func NewUsecase(workerCount, workerCap int, fallback Delegator, report func(schema.OrderEvent)) *Usecase {
	workerCount = max(workerCount, 1)
	workerCap = max(workerCap, 1)
	queues := make([]chan schema.OrderRequest, workerCount)
	for i := range queues {
		queues[i] = make(chan schema.OrderRequest, workerCap)
	}
	return &Usecase{
		delegators: make(map[string]Delegator),
		fallback:   fallback,
		report:     report,
		queues:     queues,
	}
}

// Register routes requests of exchange to d. Call before Run.
func (use *Usecase) Register(exchange string, d Delegator) {
	use.delegators[exchange] = d
}

// Send enqueues req without blocking.
func (use *Usecase) Send(ctx context.Context, req schema.OrderRequest) error {
	if !use.running.Load() {
		return exception.ErrOrderNotRunning
	}
	if use.delegator(req.Exchange) == nil {
		return errors.Wrapf(exception.ErrOrderNilDelegator, "exchange: %s", req.Exchange)
	}
	select {
	case use.queues[use.shard(req.InternalID)] <- req:
		return nil
	default:
		return errors.Wrapf(exception.ErrOrderQueueFull, "id: %s, kind: %s", req.InternalID, req.Kind)
	}
}

func (use *Usecase) Run(ctx context.Context) {
	if use.running.Swap(true) {
		return
	}

	for _, q := range use.queues {
		use.wg.Go(func() { use.work(ctx, q) })
	}
}

// Wait blocks until every worker has returned.
func (use *Usecase) Wait() {
	use.wg.Wait()
}

func (use *Usecase) work(ctx context.Context, ch chan schema.OrderRequest) {
	for {
		select {
		case req := <-ch:
			d := use.delegator(req.Exchange)
			if err := d.Send(ctx, req); err != nil {
				logs.Errorf("deliver order request, id: %s, alias: %s, kind: %s, err: %+v", req.InternalID, req.SymbolAlias, req.Kind, err)
				use.reject(req, err)
			}
		case <-ctx.Done():
			use.running.Store(false)
			return
		}
	}
}

func (use *Usecase) reject(req schema.OrderRequest, err error) {
	if use.report == nil {
		return
	}
	kind := schema.OrderReject
	switch req.Kind {
	case schema.RequestModify:
		kind = schema.ModifyReject
	case schema.RequestCancel:
		kind = schema.CancelReject
	}
	use.report(schema.OrderEvent{
		Kind:        kind,
		InternalID:  req.InternalID,
		SymbolAlias: req.SymbolAlias,
		Reason:      err.Error(),
		At:          req.At,
	})
}

func (use *Usecase) delegator(exchange string) Delegator {
	if d, ok := use.delegators[exchange]; ok && d != nil {
		return d
	}
	return use.fallback
}

func (use *Usecase) shard(id string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(len(use.queues)))
}
