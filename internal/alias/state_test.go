package alias

import (
	"testing"
	"time"

	"eventtrader/internal/schema"
	"eventtrader/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, time.October, 2, 8, 15, 0, 0, time.UTC)

func enterConfig() Config {
	return Config{
		SymbolAlias:        "ES-front",
		Symbol:             "ESZ6",
		Exchange:           "CME",
		Action:             schema.AliasActionEnter,
		SideToEnter:        schema.SideBuy,
		ContractSize:       10,
		EntryStart:         t0,
		EntryPeriod:        10 * time.Second,
		EntryOrderInterval: 2 * time.Second,
		MaxPosition:        20,
		IsTradable:         true,
	}
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		desc   string
		modify func(*Config)
		ok     bool
	}{
		{"valid enter", func(c *Config) {}, true},
		{"empty alias", func(c *Config) { c.SymbolAlias = "" }, false},
		{"bad action", func(c *Config) { c.Action = "flip" }, false},
		{"bad side", func(c *Config) { c.SideToEnter = "" }, false},
		{"target above max", func(c *Config) { c.ContractSize = 21 }, false},
		{"no max position", func(c *Config) { c.MaxPosition = 0 }, false},
		{"hedge without start", func(c *Config) { c.Action = schema.AliasActionHedge }, false},
		{"attempts overflow period", func(c *Config) {
			c.HedgeStart = t0
			c.MinimumHedgeAttempt = 3
			c.HedgeOrderInterval = 30 * time.Second
			c.HedgePeriod = time.Minute
		}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg := enterConfig()
			tc.modify(&cfg)
			_, err := New(cfg)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, exception.ErrConfiguration)
		})
	}
}

func TestDefaults(t *testing.T) {
	s, err := New(Config{
		SymbolAlias: "NQ",
		Symbol:      "NQZ6",
		Action:      schema.AliasActionHedge,
		HedgeStart:  t0,
		MaxPosition: 5,
	})
	require.NoError(t, err)
	cfg := s.Config()
	assert.Equal(t, int64(30), cfg.MaxOrderSize)
	assert.Equal(t, 1, cfg.MinimumHedgeAttempt)
	assert.Equal(t, time.Minute, cfg.HedgePeriod)
	assert.Equal(t, time.Minute, cfg.EntryPeriod)
	assert.Equal(t, 2*time.Second, cfg.EntryOrderInterval)
	assert.Equal(t, schema.PriceTypeLimit, cfg.HedgePriceType)
}

func TestUpdateEntrySizing(t *testing.T) {
	s, err := New(enterConfig())
	require.NoError(t, err)

	assert.Equal(t, int64(0), s.UpdateEntrySizing(t0), "no flag, no size")

	s.StartEntry(t0)
	require.Equal(t, int64(10), s.ContractSizeToEnter)

	// pace is 0.5 contract/s, so 10s left allows 5 and 4s left allows 2
	prev := s.ContractSizeToEnter
	for _, step := range []struct {
		elapsed  time.Duration
		expected int64
	}{
		{0, 5},
		{2 * time.Second, 4},
		{time.Second, 4},
		{6 * time.Second, 2},
		{10 * time.Second, 0},
		{20 * time.Second, 0},
	} {
		got := s.UpdateEntrySizing(t0.Add(step.elapsed))
		assert.Equal(t, step.expected, got, "elapsed %s", step.elapsed)
		assert.LessOrEqual(t, got, prev)
		prev = got
	}
}

func TestApplyFill(t *testing.T) {
	s, err := New(enterConfig())
	require.NoError(t, err)
	s.StartEntry(t0)
	s.AdjustWorking(schema.PurposeEntry, 4)
	assert.Equal(t, int64(6), s.PositionRemainingToEnter())

	require.NoError(t, s.ApplyFill(schema.PurposeEntry, schema.SideBuy, 3))
	s.AdjustWorking(schema.PurposeEntry, -3)
	assert.Equal(t, int64(3), s.NetPosition)
	assert.Equal(t, int64(7), s.ContractSizeToEnter)
	assert.Equal(t, int64(1), s.WorkingToEnter)
	assert.Equal(t, int64(6), s.PositionRemainingToEnter())

	assert.Equal(t, int64(3), s.UpdateHedgeSizing())
	assert.Equal(t, schema.SideSell, s.HedgeSide())

	require.ErrorIs(t, s.ApplyFill(schema.PurposeEntry, schema.SideBuy, 0), exception.ErrInvalidFill)

	err = s.ApplyFill(schema.PurposeEntry, schema.SideBuy, 18)
	require.ErrorIs(t, err, exception.ErrPositionLimit)
	assert.Equal(t, int64(21), s.NetPosition, "fill is never discarded")
}

func TestBook(t *testing.T) {
	b := NewBook()
	_, err := b.Add(enterConfig())
	require.NoError(t, err)
	_, err = b.Add(enterConfig())
	require.ErrorIs(t, err, exception.ErrConfiguration)

	require.ErrorIs(t, b.ApplyFill("missing", schema.PurposeEntry, schema.SideBuy, 1), exception.ErrUnknownAlias)
	require.NoError(t, b.ApplyFill("ES-front", schema.PurposeEntry, schema.SideBuy, 1))

	views := b.Views()
	require.Len(t, views, 1)
	assert.Equal(t, int64(1), views[0].NetPosition)
}
