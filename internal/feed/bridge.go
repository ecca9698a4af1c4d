package feed

import (
	"context"
	"sync/atomic"

	"eventtrader/internal/schema"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"
)

// Bridge is a websocket client for the upstream gateway. It implements
// route.Binder and order.Delegator.
type Bridge struct {
	wss *ws.WebSocket
	id  atomic.Int64
}

func NewBridge(ctx context.Context, url string) *Bridge {
	return &Bridge{wss: ws.New(ctx, url)}
}

func (b *Bridge) Start(ctx context.Context) error {
	if err := b.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}
	return nil
}

func (b *Bridge) Close() {
	b.wss.Close()
}

// Bind subscribes a routing key. It is replayed on reconnect.
func (b *Bridge) Bind(ctx context.Context, exchange, key string) error {
	return b.request(ctx, Frame{Type: FrameSubscribe, Exchange: exchange, Key: key}, true)
}

func (b *Bridge) Unbind(ctx context.Context, exchange, key string) error {
	return b.request(ctx, Frame{Type: FrameUnsubscribe, Exchange: exchange, Key: key}, false)
}

// Send delivers an order request and waits for the upstream ack.
func (b *Bridge) Send(ctx context.Context, req schema.OrderRequest) error {
	return b.request(ctx, Frame{Type: FrameRequest, Request: &req}, false)
}

func (b *Bridge) request(ctx context.Context, f Frame, register bool) error {
	f.ID = b.id.Add(1)
	if err := b.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, client *ws.WebSocket) error {
			if err := client.WriteJSON(f); err != nil {
				return errors.Wrapf(err, "write %s frame", f.Type)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			resp, ok := ws.ReadMessage[Frame](m)
			if !ok || resp.Type != FrameAck || resp.ID != f.ID {
				return false, nil
			}
			if resp.Error != "" {
				return false, errors.Errorf("%s rejected, id: %d, err: %s", f.Type, f.ID, resp.Error)
			}
			return true, nil
		},
	}, register); err != nil {
		return errors.Wrap(err, "send and wait")
	}
	return nil
}

// Observe decodes inbound frames into h until ctx ends or the process shuts down.
func (b *Bridge) Observe(ctx context.Context, h Handlers) (unsubscribe func()) {
	ch, cancel := b.wss.Subscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}

				f, ok := ws.ReadMessage[Frame](m)
				if !ok {
					logs.Warnf("drop undecodable frame")
					continue
				}
				if err := f.dispatch(h); err != nil {
					logs.Warnf("drop frame, err: %+v", err)
				}
			}
		}
	}()

	return cancel
}
