package todos

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("todo not found")

// Store owns the todo collection. Implementations serialize mutations so a
// task's field set is never observed half-written.
type Store interface {
	List(ctx context.Context, filter Filter) ([]Task, error)
	Get(ctx context.Context, id string) (Task, error)
	Create(ctx context.Context, in CreateInput) (Task, error)
	Replace(ctx context.Context, id string, in ReplaceInput) (Task, error)
	Merge(ctx context.Context, id string, patch Patch) (Task, error)
	Remove(ctx context.Context, id string) (bool, error)
	Close() error
}

// Clock supplies creation and update timestamps.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reports UTC wall time truncated to milliseconds, the precision
// browsers produce for ISO-8601 strings.
var SystemClock Clock = ClockFunc(func() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
})

func clockOrDefault(c Clock) Clock {
	if c == nil {
		return SystemClock
	}
	return c
}
