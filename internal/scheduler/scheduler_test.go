package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"eventtrader/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func TestDispatchOrder(t *testing.T) {
	base := time.Date(2026, time.October, 2, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base.Add(time.Hour)}
	s := New(WithClock(clock.Now))

	s.Schedule(base.Add(2*time.Second), 1, "t2", nil)
	s.Schedule(base.Add(time.Second), 5, "t1-low", nil)
	s.Schedule(base.Add(time.Second), 1, "t1-first", nil)
	s.Schedule(base.Add(time.Second), 1, "t1-second", nil)
	s.Schedule(base, 9, "t0", nil)

	var got []Action
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := s.Run(ctx, func(ctx context.Context, ev Event) error {
		got = append(got, ev.Action)
		if s.Len() == 0 {
			cancel()
		}
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []Action{"t0", "t1-first", "t1-second", "t1-low", "t2"}, got)
}

func TestScheduleDuringHandlerIsPickedUp(t *testing.T) {
	base := time.Date(2026, time.October, 2, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	s := New(WithClock(clock.Now))
	s.Schedule(base, 0, "first", nil)
	s.Schedule(base.Add(time.Hour), 0, "later", nil)

	var got []Action
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.Run(ctx, func(ctx context.Context, ev Event) error {
		got = append(got, ev.Action)
		switch ev.Action {
		case "first":
			s.Schedule(base.Add(-time.Minute), 0, "past", nil)
		case "past":
			cancel()
		}
		return nil
	})
	assert.Equal(t, []Action{"first", "past"}, got)
	assert.Equal(t, 1, s.Len())
}

func TestFailureIsolation(t *testing.T) {
	base := time.Date(2026, time.October, 2, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}

	var failures []error
	s := New(WithClock(clock.Now), WithErrorHandler(func(ev Event, err error) {
		failures = append(failures, err)
	}))
	boom := errors.New("boom")
	s.Schedule(base, 0, "fail", nil)
	s.Schedule(base, 1, "panic", nil)
	s.Schedule(base, 2, "ok", nil)

	var ran []Action
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.Run(ctx, func(ctx context.Context, ev Event) error {
		ran = append(ran, ev.Action)
		switch ev.Action {
		case "fail":
			return boom
		case "panic":
			panic("handler exploded")
		}
		cancel()
		return nil
	})

	assert.Equal(t, []Action{"fail", "panic", "ok"}, ran)
	require.Len(t, failures, 2)
	require.ErrorIs(t, failures[0], exception.ErrSchedulerActionFailure)
	require.ErrorIs(t, failures[0], boom)
	require.ErrorIs(t, failures[1], exception.ErrSchedulerActionFailure)
	assert.Contains(t, failures[1].Error(), "handler exploded")
}

func TestFailureWrapsCause(t *testing.T) {
	base := time.Date(2026, time.October, 2, 10, 0, 0, 0, time.UTC)
	testCases := []struct {
		desc  string
		cause error
		class exception.Class
	}{
		{"plain failure", errors.New("boom"), exception.ClassSchedulerAction},
		{"escalation keeps its class", exception.ErrHedgeEscalation, exception.ClassHedgeEscalation},
		{"unknown order keeps its class", exception.ErrUnknownOrder, exception.ClassUnknownOrder},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			var failure error
			s := New(WithClock((&fakeClock{now: base}).Now), WithErrorHandler(func(ev Event, err error) {
				failure = err
			}))
			s.Schedule(base, 0, "act", nil)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = s.Run(ctx, func(context.Context, Event) error {
				cancel()
				return tc.cause
			})

			require.Error(t, failure)
			require.ErrorIs(t, failure, exception.ErrSchedulerActionFailure)
			require.ErrorIs(t, failure, tc.cause)
			assert.Equal(t, tc.class, exception.Classify(failure))
			assert.Contains(t, failure.Error(), "action: act")
		})
	}
}

func TestCancel(t *testing.T) {
	base := time.Date(2026, time.October, 2, 10, 0, 0, 0, time.UTC)
	s := New()
	s.Schedule(base, 0, "keep", "ES")
	s.Schedule(base, 0, "drop", "ES")
	s.Schedule(base, 0, "drop", "NQ")

	n := s.Cancel(func(ev Event) bool { return ev.Action == "drop" && ev.Args == "ES" })
	assert.Equal(t, 1, n)

	pending := s.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, Action("keep"), pending[0].Action)
	assert.Equal(t, Action("drop"), pending[1].Action)

	assert.Equal(t, 2, s.CancelAll())
	assert.Zero(t, s.Len())
}

func TestServeConsumesInbox(t *testing.T) {
	base := time.Date(2026, time.October, 2, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	s := New(WithClock(clock.Now))
	inbox := make(chan string, 4)
	inbox <- "a"
	inbox <- "b"

	var got []string
	s.Schedule(base, 0, "tick", nil)
	done := make(chan error, 1)
	go func() {
		done <- Serve(context.Background(), s, func(ctx context.Context, ev Event) error {
			got = append(got, string(ev.Action))
			return nil
		}, inbox, func(v string) {
			got = append(got, v)
			if v == "b" {
				close(inbox)
			}
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop after inbox closed")
	}
	assert.Equal(t, []string{"tick", "a", "b"}, got)
}
