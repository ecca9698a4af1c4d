package ops

import (
	"context"
	"time"

	"eventtrader/internal/calendar"
)

// FileSource re-reads a config file for every plan request.
type FileSource struct {
	Path string
	Now  func() time.Time
}

func (s FileSource) Plan(ctx context.Context, date calendar.Date) (calendar.Plan, error) {
	if err := ctx.Err(); err != nil {
		return calendar.Plan{}, err
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	loaded, err := LoadAt(s.Path, date, now())
	if err != nil {
		return calendar.Plan{}, err
	}
	return loaded.Plan(), nil
}
