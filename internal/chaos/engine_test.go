package chaos

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	testCases := []struct {
		desc string
		cfg  Config
		ok   bool
	}{
		{"zero", Config{ReorderWindow: 1}, true},
		{"drop above one", Config{DropRate: 1.5, ReorderWindow: 1}, false},
		{"negative duplicate", Config{DuplicateRate: -0.1, ReorderWindow: 1}, false},
		{"negative delay", Config{MaxDelay: -time.Second, ReorderWindow: 1}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
		})
	}
}

func TestDuplicateEverything(t *testing.T) {
	e, err := NewEngine[int](Config{Seed: 7, DuplicateRate: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3}, e.Process(3))
}

func TestReorderKeepsEveryEvent(t *testing.T) {
	e, err := NewEngine[int](Config{Seed: 42, ReorderWindow: 3}, nil)
	require.NoError(t, err)

	var out []int
	for i := range 10 {
		out = append(out, e.Process(i)...)
	}
	out = append(out, e.Flush()...)

	sort.Ints(out)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, out)
}

func TestDelayHook(t *testing.T) {
	base := time.Date(2026, time.October, 2, 8, 30, 0, 0, time.UTC)
	e, err := NewEngine(Config{Seed: 1, MaxDelay: time.Second}, func(ts time.Time, d time.Duration) time.Time {
		return ts.Add(d)
	})
	require.NoError(t, err)

	for range 20 {
		got := e.Process(base)
		require.Len(t, got, 1)
		assert.False(t, got[0].Before(base))
		assert.False(t, got[0].After(base.Add(time.Second)))
	}
}
