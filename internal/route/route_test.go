package route

import (
	"context"
	"testing"

	"eventtrader/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerUnbindsWhatItBound(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	require.NoError(t, mem.Bind(ctx, "md", "other"))

	tr := NewTracker(mem)
	require.NoError(t, tr.Bind(ctx, "md", "ES.bbo"))
	require.NoError(t, tr.Bind(ctx, "md", "ES.trade"))
	assert.Equal(t, 2, tr.Len())
	assert.Len(t, mem.Bound(), 3)

	require.NoError(t, tr.UnbindAll(ctx))
	assert.Equal(t, []Binding{{Exchange: "md", Key: "other"}}, mem.Bound())
	assert.Zero(t, tr.Len())
}

func TestMemoryRejectsEmpty(t *testing.T) {
	err := NewMemory().Bind(context.Background(), "", "ES")
	require.ErrorIs(t, err, exception.ErrInvalidArgument)
}
