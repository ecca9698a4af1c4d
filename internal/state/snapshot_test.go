package state

import (
	"path/filepath"
	"testing"
	"time"

	"eventtrader/internal/alias"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	at := time.Date(2026, time.October, 2, 20, 30, 0, 0, time.UTC)
	snap := Take("s1", []alias.View{
		{SymbolAlias: "NQ", NetPosition: -2},
		{SymbolAlias: "ES", NetPosition: 3, IsHedging: true},
	}, at)
	assert.Equal(t, "ES", snap.Aliases[0].SymbolAlias)

	path := filepath.Join(t.TempDir(), "state", "positions.json")
	require.NoError(t, WriteSnapshot(path, snap))

	got, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, snap.Timestamp, got.Timestamp)
	assert.Equal(t, map[string]int64{"ES": 3, "NQ": -2}, got.Positions())
	assert.True(t, got.Aliases[0].IsHedging)
}

func TestSeed(t *testing.T) {
	cfgs := []alias.Config{
		{SymbolAlias: "ES", InitialPosition: 0},
		{SymbolAlias: "CL", InitialPosition: 1},
	}
	snap := Snapshot{Aliases: []alias.View{{SymbolAlias: "ES", NetPosition: 4}}}

	got := Seed(cfgs, snap)
	assert.Equal(t, int64(4), got[0].InitialPosition)
	assert.Equal(t, int64(1), got[1].InitialPosition)
	assert.Equal(t, int64(0), cfgs[0].InitialPosition)

	_, err := ReadSnapshot(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
