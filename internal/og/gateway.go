package og

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"eventtrader/internal/chaos"
	"eventtrader/internal/schema"
	"eventtrader/pkg/exception"

	"github.com/yanun0323/errors"
)

// GatewayConfig controls the paper gateway behavior.
type GatewayConfig struct {
	Session string
	// FillLimitOrders fills limit orders on arrival instead of resting them.
	FillLimitOrders bool
	Chaos           *chaos.Config
	Now             func() time.Time
}

// PaperGateway simulates the exchange protocol for requests it receives,
// emitting the lifecycle events a live gateway would deliver.
type PaperGateway struct {
	mu      sync.Mutex
	cfg     GatewayConfig
	emit    func(schema.OrderEvent)
	chaos   *chaos.Engine[schema.OrderEvent]
	resting map[string]schema.OrderRequest
	fillSeq uint64
}

// NewPaperGateway creates a paper gateway that reports through emit.
func NewPaperGateway(cfg GatewayConfig, emit func(schema.OrderEvent)) (*PaperGateway, error) {
	if cfg.Session == "" {
		cfg.Session = "paper"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	g := &PaperGateway{
		cfg:     cfg,
		emit:    emit,
		resting: make(map[string]schema.OrderRequest),
	}
	if cfg.Chaos != nil && cfg.Chaos.Enabled() {
		engine, err := chaos.NewEngine(*cfg.Chaos, func(ev schema.OrderEvent, d time.Duration) schema.OrderEvent {
			ev.At = ev.At.Add(d)
			return ev
		})
		if err != nil {
			return nil, errors.Wrap(err, "paper gateway chaos")
		}
		g.chaos = engine
	}
	return g, nil
}

// Send simulates one request.
func (g *PaperGateway) Send(ctx context.Context, req schema.OrderRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	switch req.Kind {
	case schema.RequestNew:
		g.placeOrder(req)
	case schema.RequestModify:
		g.modifyOrder(req)
	case schema.RequestCancel:
		g.cancelOrder(req)
	default:
		return errors.Wrapf(exception.ErrOrderInvalidRequest, "kind: %q", req.Kind)
	}
	return nil
}

// OnMarket fills resting limit orders the new touch trades through.
func (g *PaperGateway) OnMarket(u schema.MarketUpdate) {
	if u.Feed != schema.FeedBBO {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make([]string, 0, len(g.resting))
	for id := range g.resting {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		req := g.resting[id]
		if req.SymbolAlias != u.SymbolAlias {
			continue
		}
		crossed := (req.Side == schema.SideBuy && u.AskPrice.IsPositive() && req.Price.GreaterThanOrEqual(u.AskPrice)) ||
			(req.Side == schema.SideSell && u.BidPrice.IsPositive() && req.Price.LessThanOrEqual(u.BidPrice))
		if !crossed {
			continue
		}
		delete(g.resting, id)
		g.fillAndComplete(req, schema.OrderFill)
	}
}

// Flush releases events held back by reordering. Call it once no more
// requests or quotes will arrive.
func (g *PaperGateway) Flush() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ev := range g.chaos.Flush() {
		g.emit(ev)
	}
}

// Resting returns how many limit orders rest on the paper book.
func (g *PaperGateway) Resting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.resting)
}

func (g *PaperGateway) placeOrder(req schema.OrderRequest) {
	g.publish(req, schema.OrderReceivedFromClient, "")
	g.publish(req, schema.OrderSentToExchange, "")
	g.publish(req, schema.OrderReceivedByGateway, "")
	g.publish(req, schema.OrderOpen, "")
	if req.PriceType == schema.PriceTypeMarket || g.cfg.FillLimitOrders {
		g.fillAndComplete(req, schema.OrderFill)
		return
	}
	g.resting[req.InternalID] = req
}

func (g *PaperGateway) modifyOrder(req schema.OrderRequest) {
	g.publish(req, schema.ModifyReceivedFromClient, "")
	g.publish(req, schema.ModifySentToExchange, "")
	resting, ok := g.resting[req.InternalID]
	if !ok {
		g.publish(req, schema.ModifyReject, "order is not working")
		return
	}
	g.publish(req, schema.ModifyReceivedByGateway, "")
	resting.Price, resting.Qty = req.Price, req.Qty
	g.resting[req.InternalID] = resting
	g.publish(req, schema.ModifyModified, "")
}

func (g *PaperGateway) cancelOrder(req schema.OrderRequest) {
	g.publish(req, schema.CancelReceivedFromClient, "")
	g.publish(req, schema.CancelSentToExchange, "")
	if _, ok := g.resting[req.InternalID]; !ok {
		g.publish(req, schema.CancelReject, "order is not working")
		return
	}
	delete(g.resting, req.InternalID)
	g.publish(req, schema.CancelReceivedByGateway, "")
	g.publish(req, schema.CancelCancel, "")
	g.publish(req, schema.CancelComplete, "")
	g.publish(req, schema.OrderComplete, "cancelled")
}

func (g *PaperGateway) fillAndComplete(req schema.OrderRequest, kind schema.OrderEventKind) {
	g.fillSeq++
	now := g.cfg.Now()
	g.out(schema.OrderEvent{
		Kind:        kind,
		InternalID:  req.InternalID,
		SymbolAlias: req.SymbolAlias,
		FillID:      g.cfg.Session + "-F" + strconv.FormatUint(g.fillSeq, 10),
		FillQty:     req.Qty,
		FillPrice:   req.Price,
		CumQty:      req.Qty,
		At:          now,
	})
	g.publish(req, schema.OrderComplete, "filled")
}

func (g *PaperGateway) publish(req schema.OrderRequest, kind schema.OrderEventKind, reason string) {
	g.out(schema.OrderEvent{
		Kind:        kind,
		InternalID:  req.InternalID,
		SymbolAlias: req.SymbolAlias,
		Reason:      reason,
		At:          g.cfg.Now(),
	})
}

func (g *PaperGateway) out(ev schema.OrderEvent) {
	if g.emit == nil {
		return
	}
	for _, e := range g.chaos.Process(ev) {
		g.emit(e)
	}
}
