package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"eventtrader/internal/feed"
	"eventtrader/internal/journal"
	"eventtrader/internal/schema"
)

// Prints a recorded frame file, or a journal file with -journal.
func main() {
	path := flag.String("path", "testdata/frames.jsonl", "Recorded frame file")
	speed := flag.Float64("speed", 0, "Playback speed (1=real-time, 0=no pacing)")
	journalPath := flag.String("journal", "", "Print a journal file instead of frames")
	flag.Parse()

	if *journalPath != "" {
		printJournal(*journalPath)
		return
	}

	replay, err := feed.NewReplay(feed.ReplayConfig{Path: *path, Speed: *speed})
	if err != nil {
		log.Fatalf("replay init failed: %v", err)
	}

	var index int
	n, err := replay.Run(context.Background(), feed.Handlers{
		Market: func(u schema.MarketUpdate) {
			index++
			fmt.Printf("%06d market alias=%s feed=%s bid=%s/%d ask=%s/%d last=%s/%d at=%s\n",
				index, u.SymbolAlias, u.Feed, u.BidPrice, u.BidSize, u.AskPrice, u.AskSize, u.LastPrice, u.LastSize, stamp(u.At))
		},
		Order: func(ev schema.OrderEvent) {
			index++
			fmt.Printf("%06d order id=%s alias=%s kind=%s fill=%d@%s cum=%d reason=%q at=%s\n",
				index, ev.InternalID, ev.SymbolAlias, ev.Kind, ev.FillQty, ev.FillPrice, ev.CumQty, ev.Reason, stamp(ev.At))
		},
		Trigger: func(t schema.Trigger) {
			index++
			fmt.Printf("%06d trigger kind=%s alias=%s at=%s\n", index, t.Kind, t.SymbolAlias, stamp(t.At))
		},
	})
	if err != nil {
		log.Fatalf("replay failed after %d frames: %v", n, err)
	}
}

func printJournal(path string) {
	entries, err := journal.ReadFile(path)
	if err != nil {
		log.Fatalf("read journal failed: %v", err)
	}
	for i, e := range entries {
		fmt.Printf("%06d %s session=%s id=%s alias=%s side=%s purpose=%s price=%s qty=%d filled=%d state=%s cancelled=%t reason=%q\n",
			i+1, e.Kind, e.Session, e.InternalID, e.SymbolAlias, e.Side, e.Purpose, e.Price, e.Qty, e.FilledQty, e.State, e.Cancelled, e.Reason)
	}
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339Nano)
}
