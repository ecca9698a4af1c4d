package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"eventtrader/internal/feed"
	"eventtrader/internal/journal"
	"eventtrader/internal/notify"
	"eventtrader/internal/obs"
	"eventtrader/internal/og"
	"eventtrader/internal/ops"
	"eventtrader/internal/order"
	"eventtrader/internal/risk"
	"eventtrader/internal/route"
	"eventtrader/internal/schema"
	"eventtrader/internal/state"
	"eventtrader/internal/strategy"
	"eventtrader/pkg/conn"
	"eventtrader/pkg/exception"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

type options struct {
	configPath   string
	reload       time.Duration
	metricsAddr  string
	replayPath   string
	replaySpeed  float64
	recordPath   string
	snapshotPath string
}

func main() {
	var opt options
	flag.StringVar(&opt.configPath, "config", "trader.yaml", "Path to YAML or JSON config")
	flag.DurationVar(&opt.reload, "config-reload-interval", 2*time.Second, "Risk limit reload interval (0=disable)")
	flag.StringVar(&opt.metricsAddr, "metrics-addr", "", "Prometheus listen address (overrides config)")
	flag.StringVar(&opt.replayPath, "replay", "", "Replay recorded frames into a paper session")
	flag.Float64Var(&opt.replaySpeed, "replay-speed", 0, "Playback speed (1=real-time, 0=no pacing)")
	flag.StringVar(&opt.recordPath, "record", "", "Append inbound frames to this file")
	flag.StringVar(&opt.snapshotPath, "snapshot-path", "", "Position snapshot path (overrides config)")
	flag.Parse()

	if err := run(context.Background(), opt); err != nil {
		logs.Errorf("trader stopped, err: %+v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opt options) error {
	loaded, err := ops.Load(opt.configPath)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	if opt.metricsAddr != "" {
		loaded.MetricsAddr = opt.metricsAddr
	}
	if opt.snapshotPath != "" {
		loaded.SnapshotPath = opt.snapshotPath
	}
	if opt.replayPath != "" && loaded.Gateway.Kind != ops.GatewayPaper {
		return errors.Wrap(exception.ErrConfiguration, "replay requires the paper gateway")
	}
	if err := seedPositions(&loaded); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopProfiler, err := startProfiler(loaded.Profiling)
	if err != nil {
		return err
	}
	defer stopProfiler()

	metrics := obs.NewMetrics()
	stopMetrics := serveMetrics(loaded.MetricsAddr, metrics)
	defer stopMetrics()

	notifier := notify.Multi{notify.LogNotifier{}}
	if loaded.Webhook != nil {
		hook, err := notify.NewWebhook(*loaded.Webhook)
		if err != nil {
			return err
		}
		if err := hook.Start(runCtx); err != nil {
			return err
		}
		defer hook.Close()
		notifier = append(notifier, hook)
	}

	jr, closeJournal, err := openJournal(runCtx, loaded)
	if err != nil {
		return err
	}
	defer closeJournal()

	var session *strategy.Session
	report := func(ev schema.OrderEvent) {
		if err := session.PublishOrderEvent(runCtx, ev); err != nil {
			logs.Warnf("drop order event, id: %s, kind: %s, err: %+v", ev.InternalID, ev.Kind, err)
		}
	}

	var (
		delegator order.Delegator
		binder    route.Binder
		bridge    *feed.Bridge
		onMarket  func(schema.MarketUpdate)
		flush     func()
	)
	switch loaded.Gateway.Kind {
	case ops.GatewayBridge:
		bridge = feed.NewBridge(runCtx, loaded.Gateway.URL)
		if err := bridge.Start(runCtx); err != nil {
			return err
		}
		defer bridge.Close()
		delegator, binder = bridge, bridge
	default:
		paper, err := og.NewPaperGateway(og.GatewayConfig{
			Session:         loaded.SessionID,
			FillLimitOrders: loaded.Gateway.FillLimitOrders,
			Chaos:           loaded.Gateway.Chaos.Resolve(),
		}, report)
		if err != nil {
			return err
		}
		delegator, binder, onMarket, flush = paper, route.NewMemory(), paper.OnMarket, paper.Flush
	}

	use := order.NewUsecase(loaded.Gateway.Workers, loaded.Gateway.QueueCap, delegator, report)
	use.Run(runCtx)
	defer use.Wait()

	session = strategy.NewSession(strategy.SessionConfig{
		ID:            loaded.SessionID,
		Mode:          loaded.Mode,
		QueueCapacity: loaded.QueueCapacity,
		AckTimeout:    loaded.AckTimeout,
	}, strategy.Deps{
		Sender:   use,
		Binder:   binder,
		Notifier: notifier,
		Journal:  jr,
		Metrics:  metrics,
		Risk:     risk.NewEngine(loaded.Risk),
	})
	if err := session.Start(runCtx, loaded.Plan()); err != nil {
		return err
	}
	logs.Infof("session started, id: %s, mode: %s, announcement: %s, aliases: %d",
		session.ID(), loaded.Mode, loaded.Announcement.Format(time.RFC3339), len(loaded.Aliases))

	handlers := inboundHandlers(runCtx, session, onMarket, bridge != nil)
	if opt.recordPath != "" {
		rec, err := feed.NewRecorder(opt.recordPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := rec.Close(); err != nil {
				logs.Warnf("close recording, path: %s, err: %+v", opt.recordPath, err)
			}
		}()
		handlers = rec.Tee(handlers)
	}

	replayDone := make(chan struct{})
	switch {
	case bridge != nil:
		unsubscribe := bridge.Observe(runCtx, handlers)
		defer unsubscribe()
	case opt.replayPath != "":
		replay, err := feed.NewReplay(feed.ReplayConfig{Path: opt.replayPath, Speed: opt.replaySpeed})
		if err != nil {
			return err
		}
		go func() {
			defer close(replayDone)
			n, err := runReplay(runCtx, replay, handlers, flush)
			if err != nil {
				logs.Errorf("replay stopped, frames: %d, err: %+v", n, err)
				return
			}
			logs.Infof("replay completed, frames: %d", n)
		}()
	}

	if opt.reload > 0 {
		go watchConfig(runCtx, opt.configPath, opt.reload, loaded.Risk.Version, func(cfg risk.Config) {
			if err := session.UpdateRisk(runCtx, cfg); err != nil {
				logs.Warnf("apply risk reload, err: %+v", err)
			}
		})
	}

	select {
	case <-sys.Shutdown():
		logs.Infof("shutdown requested, session: %s", session.ID())
	case <-session.EndOfDay():
		logs.Infof("end of day reached, session: %s", session.ID())
	case <-replayDone:
	}

	return stopSession(ctx, session, loaded.SnapshotPath, metrics)
}

func stopSession(ctx context.Context, session *strategy.Session, snapshotPath string, metrics *obs.Metrics) error {
	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var snap state.Snapshot
	if err := session.Inspect(stopCtx, func(e *strategy.Engine) {
		snap = state.Take(session.ID(), e.Book().Views(), time.Now())
	}); err != nil {
		logs.Warnf("take snapshot, err: %+v", err)
	}
	if err := session.Stop(stopCtx); err != nil {
		return err
	}
	if snapshotPath != "" && snap.Session != "" {
		if err := state.WriteSnapshot(snapshotPath, snap); err != nil {
			return err
		}
		logs.Infof("snapshot written, path: %s, aliases: %d", snapshotPath, len(snap.Aliases))
	}

	s := metrics.Snapshot()
	logs.Infof("metrics: events=%v errors=%v risk_reasons=%v submitted=%d drops=%d closed=%d order_flow=%+v dispatch=%+v",
		s.EventCounts, s.ErrorCounts, s.RiskReasonCounts, s.OrdersSubmitted, s.QueueDrops, s.QueueClosed,
		s.OrderFlowLatency, s.DispatchLatency)
	return nil
}

// seedPositions carries positions from the last snapshot into today's aliases.
func seedPositions(loaded *ops.Loaded) error {
	if loaded.SnapshotPath == "" {
		return nil
	}
	if _, err := os.Stat(loaded.SnapshotPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "stat snapshot %s", loaded.SnapshotPath)
	}
	snap, err := state.ReadSnapshot(loaded.SnapshotPath)
	if err != nil {
		return err
	}
	loaded.Aliases = state.Seed(loaded.Aliases, snap)
	logs.Infof("positions seeded, snapshot: %s, session: %s, aliases: %d", loaded.SnapshotPath, snap.Session, len(snap.Aliases))
	return nil
}

func openJournal(ctx context.Context, loaded ops.Loaded) (strategy.Journal, func(), error) {
	var (
		store   journal.Store
		closers []func()
	)
	switch {
	case loaded.Journal.Postgres != nil && loaded.Journal.Postgres.Enabled():
		client, err := conn.New(ctx, *loaded.Journal.Postgres)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = client.Close() })
		gs, err := journal.NewGormStore(ctx, client)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		store = gs
	case loaded.Journal.File != "":
		fs, err := journal.NewFileStore(loaded.Journal.File)
		if err != nil {
			return nil, nil, err
		}
		store = fs
	default:
		return nil, func() {}, nil
	}

	w := journal.NewWriter(loaded.JournalQueue, store)
	if err := w.Start(ctx); err != nil {
		return nil, nil, err
	}
	return w, func() {
		if err := w.Close(); err != nil {
			logs.Warnf("close journal, written: %d, err: %+v", w.Written(), err)
		}
		for _, c := range closers {
			c()
		}
	}, nil
}

func serveMetrics(addr string, m *obs.Metrics) (stop func()) {
	if addr == "" {
		return func() {}
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(obs.NewCollector(m))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logs.Errorf("metrics server stopped, addr: %s, err: %+v", addr, err)
		}
	}()
	logs.Infof("metrics listening, addr: %s", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// watchConfig polls the config file and forwards risk limits whose version changed.
func watchConfig(ctx context.Context, path string, interval time.Duration, version uint16, apply func(risk.Config)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	if info, err := os.Stat(path); err == nil {
		lastMod = info.ModTime()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				logs.Warnf("config stat failed, path: %s, err: %+v", path, err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			lastMod = info.ModTime()
			loaded, err := ops.Load(path)
			if err != nil {
				logs.Warnf("config reload failed, path: %s, err: %+v", path, err)
				continue
			}
			if loaded.Risk.Version == version {
				continue
			}
			version = loaded.Risk.Version
			apply(loaded.Risk)
		}
	}
}
