package main

import (
	"context"

	"eventtrader/internal/feed"
	"eventtrader/internal/schema"
	"eventtrader/pkg/exception"

	"github.com/yanun0323/logs"
)

type publisher interface {
	PublishMarket(u schema.MarketUpdate) error
	PublishOrderEvent(ctx context.Context, ev schema.OrderEvent) error
	PublishTrigger(ctx context.Context, t schema.Trigger) error
}

// inboundHandlers routes decoded frames into the session. Order frames are
// only forwarded when upstreamOrders is set: with the paper gateway the order
// lifecycle comes from the gateway itself, and recorded order events would
// collide with ids the paper session issues.
func inboundHandlers(ctx context.Context, pub publisher, onMarket func(schema.MarketUpdate), upstreamOrders bool) feed.Handlers {
	h := feed.Handlers{
		Market: func(u schema.MarketUpdate) {
			if onMarket != nil {
				onMarket(u)
			}
			if err := pub.PublishMarket(u); err != nil && !exception.Is(err, exception.ErrQueueFull) {
				logs.Warnf("drop market update, alias: %s, err: %+v", u.SymbolAlias, err)
			}
		},
		Trigger: func(t schema.Trigger) {
			if err := pub.PublishTrigger(ctx, t); err != nil {
				logs.Warnf("drop trigger, kind: %s, alias: %s, err: %+v", t.Kind, t.SymbolAlias, err)
			}
		},
	}
	if upstreamOrders {
		h.Order = func(ev schema.OrderEvent) {
			if err := pub.PublishOrderEvent(ctx, ev); err != nil {
				logs.Warnf("drop order event, id: %s, kind: %s, err: %+v", ev.InternalID, ev.Kind, err)
			}
		}
	}
	return h
}

// runReplay plays the recording and then calls flush, even when the replay
// stopped early, so events held by the paper gateway still reach the session.
func runReplay(ctx context.Context, replay *feed.Replay, h feed.Handlers, flush func()) (int, error) {
	n, err := replay.Run(ctx, h)
	if flush != nil {
		flush()
	}
	return n, err
}
