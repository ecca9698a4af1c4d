package ops

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"eventtrader/internal/alias"
	"eventtrader/internal/calendar"
	"eventtrader/internal/chaos"
	"eventtrader/internal/journal"
	"eventtrader/internal/notify"
	"eventtrader/internal/risk"
	"eventtrader/internal/schema"
	"eventtrader/internal/strategy"
	"eventtrader/pkg/conn"
	"eventtrader/pkg/exception"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"
)

const (
	// AnnouncementPayroll resolves the announcement with the first-Friday payroll rule.
	AnnouncementPayroll = "nfp"

	DefaultSessionLength = 12 * time.Hour

	GatewayPaper  = "paper"
	GatewayBridge = "bridge"
)

// FileConfig mirrors the config file layout.
type FileConfig struct {
	Session      SessionConfig   `json:"session" yaml:"session"`
	Risk         RiskConfig      `json:"risk" yaml:"risk"`
	Aliases      []AliasConfig   `json:"aliases" yaml:"aliases"`
	Gateway      GatewayConfig   `json:"gateway" yaml:"gateway"`
	Notify       NotifyConfig    `json:"notify" yaml:"notify"`
	Journal      JournalConfig   `json:"journal" yaml:"journal"`
	Metrics      MetricsConfig   `json:"metrics" yaml:"metrics"`
	Profiling    ProfilingConfig `json:"profiling" yaml:"profiling"`
	SnapshotPath string          `json:"snapshotPath" yaml:"snapshotPath"`
}

type SessionConfig struct {
	ID       string `json:"id" yaml:"id"`
	TimeZone string `json:"timeZone" yaml:"timeZone"`
	// Date is YYYY-MM-DD. It defaults to the announcement day.
	Date string `json:"date" yaml:"date"`
	Mode strategy.Mode `json:"mode" yaml:"mode"`
	// Announcement is an RFC3339 instant, HH:MM[:SS] on Date, or "nfp".
	Announcement  string   `json:"announcement" yaml:"announcement"`
	SessionEnd    string   `json:"sessionEnd" yaml:"sessionEnd"`
	QueueCapacity int      `json:"queueCapacity" yaml:"queueCapacity"`
	AckTimeout    Duration `json:"ackTimeout" yaml:"ackTimeout"`
}

type RiskConfig struct {
	Version              uint16          `json:"version" yaml:"version"`
	KillSwitch           bool            `json:"killSwitch" yaml:"killSwitch"`
	MaxOrderQty          int64           `json:"maxOrderQty" yaml:"maxOrderQty"`
	MaxOrderNotional     decimal.Decimal `json:"maxOrderNotional" yaml:"maxOrderNotional"`
	MaxPosition          int64           `json:"maxPosition" yaml:"maxPosition"`
	OrderRateLimit       int             `json:"orderRateLimit" yaml:"orderRateLimit"`
	OrderRateWindow      Duration        `json:"orderRateWindow" yaml:"orderRateWindow"`
	MaxPriceDeviationBps int64           `json:"maxPriceDeviationBps" yaml:"maxPriceDeviationBps"`
}

func (c RiskConfig) Resolve() risk.Config {
	return risk.Config{
		Version:              c.Version,
		KillSwitch:           c.KillSwitch,
		MaxOrderQty:          c.MaxOrderQty,
		MaxOrderNotional:     c.MaxOrderNotional,
		MaxPosition:          c.MaxPosition,
		OrderRateLimit:       c.OrderRateLimit,
		OrderRateWindow:      c.OrderRateWindow.Std(),
		MaxPriceDeviationBps: c.MaxPriceDeviationBps,
	}
}

// AliasConfig is one alias as written in the file. Start times are HH:MM[:SS]
// on the session date, RFC3339, or offsets like "announcement-15m".
type AliasConfig struct {
	SymbolAlias string             `json:"symbolAlias" yaml:"symbolAlias"`
	Symbol      string             `json:"symbol" yaml:"symbol"`
	Exchange    string             `json:"exchange" yaml:"exchange"`
	Action      schema.AliasAction `json:"action" yaml:"action"`
	SideToEnter schema.Side        `json:"sideToEnter" yaml:"sideToEnter"`

	ContractSize             int64    `json:"contractSize" yaml:"contractSize"`
	EntryStart               string   `json:"entryStart" yaml:"entryStart"`
	EntryPeriod              Duration `json:"entryPeriod" yaml:"entryPeriod"`
	EntryOrderInterval       Duration `json:"entryOrderInterval" yaml:"entryOrderInterval"`
	EntryMinimumContractSize int64    `json:"entryMinimumContractSize" yaml:"entryMinimumContractSize"`

	HedgeStart               string           `json:"hedgeStart" yaml:"hedgeStart"`
	HedgePeriod              Duration         `json:"hedgePeriod" yaml:"hedgePeriod"`
	HedgeOrderInterval       Duration         `json:"hedgeOrderInterval" yaml:"hedgeOrderInterval"`
	HedgeMinimumContractSize int64            `json:"hedgeMinimumContractSize" yaml:"hedgeMinimumContractSize"`
	MinimumHedgeAttempt      int              `json:"minimumHedgeAttempt" yaml:"minimumHedgeAttempt"`
	HedgePriceType           schema.PriceType `json:"hedgePriceType" yaml:"hedgePriceType"`

	MaxPosition            int64 `json:"maxPosition" yaml:"maxPosition"`
	MaxOrderSize           int64 `json:"maxOrderSize" yaml:"maxOrderSize"`
	MaxOrdersPerPriceLevel int   `json:"maxOrdersPerPriceLevel" yaml:"maxOrdersPerPriceLevel"`

	InitialPosition int64    `json:"initialPosition" yaml:"initialPosition"`
	ToListen        bool     `json:"toListen" yaml:"toListen"`
	IsTradable      *bool    `json:"isTradable" yaml:"isTradable"`
	AliasesToListen []string `json:"aliasesToListen" yaml:"aliasesToListen"`
}

type GatewayConfig struct {
	Kind            string       `json:"kind" yaml:"kind"`
	URL             string       `json:"url" yaml:"url"`
	Workers         int          `json:"workers" yaml:"workers"`
	QueueCap        int          `json:"queueCap" yaml:"queueCap"`
	FillLimitOrders bool         `json:"fillLimitOrders" yaml:"fillLimitOrders"`
	Chaos           *ChaosConfig `json:"chaos" yaml:"chaos"`
}

type ChaosConfig struct {
	Seed          int64    `json:"seed" yaml:"seed"`
	DropRate      float64  `json:"dropRate" yaml:"dropRate"`
	DuplicateRate float64  `json:"duplicateRate" yaml:"duplicateRate"`
	ReorderWindow int      `json:"reorderWindow" yaml:"reorderWindow"`
	MaxDelay      Duration `json:"maxDelay" yaml:"maxDelay"`
}

func (c *ChaosConfig) Resolve() *chaos.Config {
	if c == nil {
		return nil
	}
	return &chaos.Config{
		Seed:          c.Seed,
		DropRate:      c.DropRate,
		DuplicateRate: c.DuplicateRate,
		ReorderWindow: c.ReorderWindow,
		MaxDelay:      c.MaxDelay.Std(),
	}
}

type NotifyConfig struct {
	Webhook *WebhookConfig `json:"webhook" yaml:"webhook"`
}

type WebhookConfig struct {
	URL         string   `json:"url" yaml:"url"`
	QueueSize   int      `json:"queueSize" yaml:"queueSize"`
	MaxAttempts int      `json:"maxAttempts" yaml:"maxAttempts"`
	Timeout     Duration `json:"timeout" yaml:"timeout"`
	MaxInterval Duration `json:"maxInterval" yaml:"maxInterval"`
}

type JournalConfig struct {
	Postgres      *conn.Option `json:"postgres" yaml:"postgres"`
	File          string       `json:"file" yaml:"file"`
	QueueSize     int          `json:"queueSize" yaml:"queueSize"`
	BatchSize     int          `json:"batchSize" yaml:"batchSize"`
	FlushInterval Duration     `json:"flushInterval" yaml:"flushInterval"`
}

type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

type ProfilingConfig struct {
	Enabled         bool   `json:"enabled" yaml:"enabled"`
	ApplicationName string `json:"applicationName" yaml:"applicationName"`
	ServerAddress   string `json:"serverAddress" yaml:"serverAddress"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	SessionID     string
	Mode          strategy.Mode
	Location      *time.Location
	Date          calendar.Date
	Announcement  time.Time
	SessionEnd    time.Time
	QueueCapacity int
	AckTimeout    time.Duration

	Risk    risk.Config
	Aliases []alias.Config

	Gateway      GatewayConfig
	Webhook      *notify.WebhookConfig
	Journal      JournalConfig
	JournalQueue journal.Config
	MetricsAddr  string
	Profiling    ProfilingConfig
	SnapshotPath string
}

// Plan is the session initialisation the loaded file describes.
func (l Loaded) Plan() calendar.Plan {
	return calendar.Plan{
		Date:         l.Date,
		Location:     l.Location,
		Announcement: l.Announcement,
		SessionEnd:   l.SessionEnd,
		Aliases:      append([]alias.Config(nil), l.Aliases...),
	}
}

// Load reads a JSON or YAML config, chosen by extension, and resolves it for
// the date the file names.
func Load(path string) (Loaded, error) {
	return LoadAt(path, calendar.Date{}, time.Now())
}

// LoadAt resolves the config for date. A zero date uses the file's date, then
// the announcement day, then the day of now.
func LoadAt(path string, date calendar.Date, now time.Time) (Loaded, error) {
	cfg, err := Read(path)
	if err != nil {
		return Loaded{}, err
	}
	loaded, err := cfg.Resolve(date, now)
	if err != nil {
		return Loaded{}, errors.Wrapf(err, "config %s", path)
	}
	return loaded, nil
}

// Read decodes the file without resolving times.
func Read(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, errors.Wrapf(err, "read config %s", path)
	}
	var cfg FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		return FileConfig{}, errors.Wrapf(exception.ErrConfiguration, "config %s: extension must be .json, .yaml or .yml", path)
	}
	if err != nil {
		return FileConfig{}, errors.Wrapf(exception.ErrConfiguration, "decode config %s: %v", path, err)
	}
	return cfg, nil
}

// Resolve turns the file layout into absolute instants and validated aliases.
func (cfg FileConfig) Resolve(date calendar.Date, now time.Time) (Loaded, error) {
	loc, err := calendar.LoadZone(cfg.Session.TimeZone)
	if err != nil {
		return Loaded{}, errors.Wrap(exception.ErrConfiguration, err.Error())
	}
	mode := cfg.Session.Mode
	if mode == "" {
		mode = strategy.ModeCombined
	}
	if !mode.Valid() {
		return Loaded{}, errors.Wrapf(exception.ErrConfiguration, "session mode %q must be combined, entry-only or hedge-only", mode)
	}

	if date.IsZero() && cfg.Session.Date != "" {
		if date, err = calendar.ParseDate(cfg.Session.Date); err != nil {
			return Loaded{}, errors.Wrap(exception.ErrConfiguration, err.Error())
		}
	}
	announcement, date, err := resolveAnnouncement(cfg.Session.Announcement, date, loc, now)
	if err != nil {
		return Loaded{}, err
	}
	r := resolver{date: date, loc: loc, announcement: announcement}

	sessionEnd, err := r.instant("sessionEnd", cfg.Session.SessionEnd)
	if err != nil {
		return Loaded{}, err
	}
	if sessionEnd.IsZero() && !announcement.IsZero() {
		sessionEnd = announcement.Add(DefaultSessionLength)
	}

	aliases := make([]alias.Config, 0, len(cfg.Aliases))
	for _, a := range cfg.Aliases {
		resolved, err := r.alias(a)
		if err != nil {
			return Loaded{}, err
		}
		aliases = append(aliases, resolved)
	}

	gateway := cfg.Gateway
	if gateway.Kind == "" {
		gateway.Kind = GatewayPaper
	}
	switch gateway.Kind {
	case GatewayPaper:
	case GatewayBridge:
		if gateway.URL == "" {
			return Loaded{}, errors.Wrap(exception.ErrConfiguration, "gateway bridge needs a url")
		}
	default:
		return Loaded{}, errors.Wrapf(exception.ErrConfiguration, "gateway kind %q must be paper or bridge", gateway.Kind)
	}

	var webhook *notify.WebhookConfig
	if w := cfg.Notify.Webhook; w != nil && w.URL != "" {
		webhook = &notify.WebhookConfig{
			URL:         w.URL,
			QueueSize:   w.QueueSize,
			MaxAttempts: w.MaxAttempts,
			Timeout:     w.Timeout.Std(),
			MaxInterval: w.MaxInterval.Std(),
		}
	}

	return Loaded{
		SessionID:     cfg.Session.ID,
		Mode:          mode,
		Location:      loc,
		Date:          date,
		Announcement:  announcement,
		SessionEnd:    sessionEnd,
		QueueCapacity: cfg.Session.QueueCapacity,
		AckTimeout:    cfg.Session.AckTimeout.Std(),
		Risk:          cfg.Risk.Resolve(),
		Aliases:       aliases,
		Gateway:       gateway,
		Webhook:       webhook,
		Journal:       cfg.Journal,
		JournalQueue: journal.Config{
			QueueSize:     cfg.Journal.QueueSize,
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval.Std(),
		},
		MetricsAddr:  cfg.Metrics.Addr,
		Profiling:    cfg.Profiling,
		SnapshotPath: cfg.SnapshotPath,
	}, nil
}

// resolveAnnouncement returns the announcement instant and the session date
// it implies when date is zero.
func resolveAnnouncement(raw string, date calendar.Date, loc *time.Location, now time.Time) (time.Time, calendar.Date, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		if date.IsZero() {
			date = calendar.DateOf(now.In(loc))
		}
		return time.Time{}, date, nil
	case strings.EqualFold(raw, AnnouncementPayroll):
		if date.IsZero() {
			at, err := calendar.NextNonfarmPayroll(now)
			if err != nil {
				return time.Time{}, date, err
			}
			return at, calendar.DateOf(at.In(loc)), nil
		}
		if date != calendar.FirstFriday(date.Year, date.Month) {
			return time.Time{}, date, errors.Wrapf(exception.ErrConfiguration, "no payroll release on %s", date)
		}
		ny, err := calendar.LoadZone(calendar.DefaultZone)
		if err != nil {
			return time.Time{}, date, err
		}
		at, err := calendar.Combine(date, calendar.PayrollTime, ny)
		return at, date, err
	}

	if at, err := time.Parse(time.RFC3339, raw); err == nil {
		if date.IsZero() {
			date = calendar.DateOf(at.In(loc))
		}
		return at, date, nil
	}
	if date.IsZero() {
		date = calendar.DateOf(now.In(loc))
	}
	tod, err := calendar.ParseTimeOfDay(raw)
	if err != nil {
		return time.Time{}, date, errors.Wrapf(exception.ErrConfiguration, "announcement %q: want RFC3339, HH:MM[:SS] or %s", raw, AnnouncementPayroll)
	}
	at, err := calendar.Combine(date, tod, loc)
	if err != nil {
		return time.Time{}, date, errors.Wrapf(exception.ErrConfiguration, "announcement: %v", err)
	}
	return at, date, nil
}

type resolver struct {
	date         calendar.Date
	loc          *time.Location
	announcement time.Time
}

const announcementRef = "announcement"

// instant parses one time field. Empty stays zero.
func (r resolver) instant(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if rest, ok := strings.CutPrefix(raw, announcementRef); ok {
		if r.announcement.IsZero() {
			return time.Time{}, errors.Wrapf(exception.ErrConfiguration, "%s %q: no announcement configured", field, raw)
		}
		if rest == "" {
			return r.announcement, nil
		}
		offset, err := time.ParseDuration(strings.TrimPrefix(rest, "+"))
		if err != nil {
			return time.Time{}, errors.Wrapf(exception.ErrConfiguration, "%s %q: %v", field, raw, err)
		}
		return r.announcement.Add(offset), nil
	}
	if at, err := time.Parse(time.RFC3339, raw); err == nil {
		return at, nil
	}
	tod, err := calendar.ParseTimeOfDay(raw)
	if err != nil {
		return time.Time{}, errors.Wrapf(exception.ErrConfiguration, "%s: %v", field, err)
	}
	at, err := calendar.Combine(r.date, tod, r.loc)
	if err != nil {
		return time.Time{}, errors.Wrapf(exception.ErrConfiguration, "%s: %v", field, err)
	}
	return at, nil
}

func (r resolver) alias(a AliasConfig) (alias.Config, error) {
	entryStart, err := r.instant(a.SymbolAlias+".entryStart", a.EntryStart)
	if err != nil {
		return alias.Config{}, err
	}
	hedgeStart, err := r.instant(a.SymbolAlias+".hedgeStart", a.HedgeStart)
	if err != nil {
		return alias.Config{}, err
	}
	tradable := true
	if a.IsTradable != nil {
		tradable = *a.IsTradable
	}
	cfg := alias.Config{
		SymbolAlias:              a.SymbolAlias,
		Symbol:                   a.Symbol,
		Exchange:                 a.Exchange,
		Action:                   a.Action,
		SideToEnter:              a.SideToEnter,
		ContractSize:             a.ContractSize,
		EntryStart:               entryStart,
		EntryPeriod:              a.EntryPeriod.Std(),
		EntryOrderInterval:       a.EntryOrderInterval.Std(),
		EntryMinimumContractSize: a.EntryMinimumContractSize,
		HedgeStart:               hedgeStart,
		HedgePeriod:              a.HedgePeriod.Std(),
		HedgeOrderInterval:       a.HedgeOrderInterval.Std(),
		HedgeMinimumContractSize: a.HedgeMinimumContractSize,
		MinimumHedgeAttempt:      a.MinimumHedgeAttempt,
		HedgePriceType:           a.HedgePriceType,
		MaxPosition:              a.MaxPosition,
		MaxOrderSize:             a.MaxOrderSize,
		MaxOrdersPerPriceLevel:   a.MaxOrdersPerPriceLevel,
		InitialPosition:          a.InitialPosition,
		ToListen:                 a.ToListen,
		IsTradable:               tradable,
		Bindings:                 append([]string(nil), a.AliasesToListen...),
	}
	if err := cfg.WithDefaults().Validate(); err != nil {
		return alias.Config{}, err
	}
	return cfg, nil
}
