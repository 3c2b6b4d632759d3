package todos

import (
	"fmt"
	"strings"
	"time"
)

type Filter string

const (
	FilterAll       Filter = "all"
	FilterActive    Filter = "active"
	FilterCompleted Filter = "completed"
)

// ParseFilter maps a raw status value to a Filter. Empty means FilterAll.
func ParseFilter(raw string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(raw))); f {
	case "", FilterAll:
		return FilterAll, nil
	case FilterActive, FilterCompleted:
		return f, nil
	default:
		return "", fmt.Errorf("unknown status filter %q", raw)
	}
}

func (f Filter) Match(t Task) bool {
	switch f {
	case FilterActive:
		return !t.Completed
	case FilterCompleted:
		return t.Completed
	default:
		return true
	}
}

type Task struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Note      string     `json:"note"`
	Completed bool       `json:"completed"`
	DueDate   *time.Time `json:"dueDate"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (t Task) Clone() Task {
	out := t
	if t.DueDate != nil {
		due := *t.DueDate
		out.DueDate = &due
	}
	return out
}

// CreateInput is the payload for Store.Create. A zero Note and nil DueDate
// are stored as "" and null.
type CreateInput struct {
	Title   string
	Note    string
	DueDate *time.Time
}

// ReplaceInput overwrites every mutable field of a task.
type ReplaceInput struct {
	Title     string
	Note      string
	Completed bool
	DueDate   *time.Time
}

// Field is a patch value that remembers whether the caller supplied it.
// A set field holding the zero value clears the stored field.
type Field[T any] struct {
	Value T
	Set   bool
}

func Some[T any](v T) Field[T] {
	return Field[T]{Value: v, Set: true}
}

func Null[T any]() Field[T] {
	return Field[T]{Set: true}
}

type Patch struct {
	Title     Field[string]
	Note      Field[string]
	Completed Field[bool]
	DueDate   Field[*time.Time]
}

func (p Patch) Empty() bool {
	return !p.Title.Set && !p.Note.Set && !p.Completed.Set && !p.DueDate.Set
}

func newTask(id string, in CreateInput, now time.Time) Task {
	return Task{
		ID:        id,
		Title:     in.Title,
		Note:      in.Note,
		Completed: false,
		DueDate:   copyTime(in.DueDate),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (in ReplaceInput) apply(t Task, now time.Time) Task {
	t.Title = in.Title
	t.Note = in.Note
	t.Completed = in.Completed
	t.DueDate = copyTime(in.DueDate)
	t.UpdatedAt = stamp(t, now)
	return t
}

func (p Patch) apply(t Task, now time.Time) Task {
	if p.Title.Set {
		t.Title = p.Title.Value
	}
	if p.Note.Set {
		t.Note = p.Note.Value
	}
	if p.Completed.Set {
		t.Completed = p.Completed.Value
	}
	if p.DueDate.Set {
		t.DueDate = copyTime(p.DueDate.Value)
	}
	t.UpdatedAt = stamp(t, now)
	return t
}

// stamp keeps updatedAt monotonic even when the wall clock steps backwards.
func stamp(t Task, now time.Time) time.Time {
	if now.Before(t.UpdatedAt) {
		return t.UpdatedAt
	}
	return now
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := v.UTC()
	return &c
}
