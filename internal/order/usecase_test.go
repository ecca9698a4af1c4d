package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"eventtrader/internal/schema"
	"eventtrader/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

type stubDelegator struct {
	mu   sync.Mutex
	reqs []schema.OrderRequest
	fail bool
}

func (d *stubDelegator) Send(_ context.Context, req schema.OrderRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reqs = append(d.reqs, req)
	if d.fail {
		return errors.New("venue down")
	}
	return nil
}

func (d *stubDelegator) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.reqs)
}

func TestUsecaseRequiresRun(t *testing.T) {
	use := NewUsecase(1, 1, &stubDelegator{}, nil)
	err := use.Send(context.Background(), schema.OrderRequest{InternalID: "a"})
	require.ErrorIs(t, err, exception.ErrOrderNotRunning)
}

func TestUsecaseRoutesByExchange(t *testing.T) {
	cme, fallback := &stubDelegator{}, &stubDelegator{}
	use := NewUsecase(2, 8, fallback, nil)
	use.Register("CME", cme)

	ctx, cancel := context.WithCancel(context.Background())
	use.Run(ctx)

	require.NoError(t, use.Send(ctx, schema.OrderRequest{InternalID: "a", Exchange: "CME"}))
	require.NoError(t, use.Send(ctx, schema.OrderRequest{InternalID: "b", Exchange: "EUREX"}))

	assert.Eventually(t, func() bool { return cme.count() == 1 && fallback.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	use.Wait()
}

func TestUsecaseKeepsOrderPerID(t *testing.T) {
	d := &stubDelegator{}
	use := NewUsecase(4, 16, d, nil)
	ctx, cancel := context.WithCancel(context.Background())
	use.Run(ctx)

	kinds := []schema.RequestKind{schema.RequestNew, schema.RequestModify, schema.RequestCancel}
	for _, k := range kinds {
		require.NoError(t, use.Send(ctx, schema.OrderRequest{Kind: k, InternalID: "same"}))
	}
	assert.Eventually(t, func() bool { return d.count() == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	use.Wait()

	for i, k := range kinds {
		assert.Equal(t, k, d.reqs[i].Kind)
	}
}

func TestUsecaseReportsFailures(t *testing.T) {
	var mu sync.Mutex
	var events []schema.OrderEvent
	report := func(ev schema.OrderEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}
	use := NewUsecase(1, 4, &stubDelegator{fail: true}, report)
	ctx, cancel := context.WithCancel(context.Background())
	use.Run(ctx)

	require.NoError(t, use.Send(ctx, schema.OrderRequest{Kind: schema.RequestNew, InternalID: "a", SymbolAlias: "ES"}))
	require.NoError(t, use.Send(ctx, schema.OrderRequest{Kind: schema.RequestCancel, InternalID: "a", SymbolAlias: "ES"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	use.Wait()

	assert.Equal(t, schema.OrderReject, events[0].Kind)
	assert.Equal(t, schema.CancelReject, events[1].Kind)
	assert.Equal(t, "ES", events[0].SymbolAlias)
	assert.NotEmpty(t, events[0].Reason)
}

func TestUsecaseQueueFull(t *testing.T) {
	use := NewUsecase(1, 1, &stubDelegator{}, nil)
	use.running.Store(true)
	require.NoError(t, use.Send(context.Background(), schema.OrderRequest{InternalID: "a"}))
	err := use.Send(context.Background(), schema.OrderRequest{InternalID: "b"})
	require.ErrorIs(t, err, exception.ErrOrderQueueFull)
}
