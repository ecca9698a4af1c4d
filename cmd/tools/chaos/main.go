package main

import (
	"context"
	"flag"
	"log"
	"time"

	"eventtrader/internal/chaos"
	"eventtrader/internal/feed"
	"eventtrader/internal/schema"
)

// Perturbs the order events of a recorded frame file so a session can be
// replayed against an unreliable gateway. Other frames pass through.
func main() {
	input := flag.String("input", "testdata/frames.jsonl", "Recorded frame file")
	output := flag.String("output", "testdata/frames_chaos.jsonl", "Output frame file")
	seed := flag.Int64("seed", 0, "RNG seed (0=now)")
	dropRate := flag.Float64("drop-rate", 0, "Drop probability [0-1]")
	dupRate := flag.Float64("dup-rate", 0, "Duplicate probability [0-1]")
	reorderWindow := flag.Int("reorder-window", 1, "Reorder window (>=1)")
	maxDelay := flag.Duration("max-delay", 0, "Max event time delay")
	flag.Parse()

	replay, err := feed.NewReplay(feed.ReplayConfig{Path: *input})
	if err != nil {
		log.Fatalf("replay init failed: %v", err)
	}

	engine, err := chaos.NewEngine(chaos.Config{
		Seed:          *seed,
		DropRate:      *dropRate,
		DuplicateRate: *dupRate,
		ReorderWindow: *reorderWindow,
		MaxDelay:      *maxDelay,
	}, func(ev schema.OrderEvent, d time.Duration) schema.OrderEvent {
		ev.At = ev.At.Add(d)
		return ev
	})
	if err != nil {
		log.Fatalf("chaos config invalid: %v", err)
	}

	rec, err := feed.NewRecorder(*output)
	if err != nil {
		log.Fatalf("recorder init failed: %v", err)
	}

	var in, out int
	writeOrders := func(events []schema.OrderEvent) {
		for i := range events {
			rec.Record(feed.Frame{Type: feed.FrameOrderEvent, Order: &events[i]})
			out++
		}
	}
	n, err := replay.Run(context.Background(), feed.Handlers{
		Market: func(u schema.MarketUpdate) {
			rec.Record(feed.Frame{Type: feed.FrameMarket, Market: &u})
		},
		Trigger: func(t schema.Trigger) {
			rec.Record(feed.Frame{Type: feed.FrameTrigger, Trigger: &t})
		},
		Order: func(ev schema.OrderEvent) {
			in++
			writeOrders(engine.Process(ev))
		},
	})
	if err != nil {
		log.Fatalf("replay failed after %d frames: %v", n, err)
	}
	writeOrders(engine.Flush())

	if err := rec.Close(); err != nil {
		log.Fatalf("recorder close failed: %v", err)
	}
	log.Printf("chaos completed: frames=%d order_events_in=%d order_events_out=%d", n, in, out)
}
