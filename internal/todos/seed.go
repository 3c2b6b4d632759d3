package todos

import (
	"context"
	"fmt"
	"time"
)

type seedTodo struct {
	title      string
	note       string
	completed  bool
	offsetDays int
}

var demoTodos = []seedTodo{
	{title: "Plan sprint demo", note: "Gather screenshots and notes", offsetDays: 2},
	{title: "Write API docs", note: "Update `/api/todos` response samples", offsetDays: 5},
	{title: "Verify production deploy", note: "Smoke test flows", completed: true, offsetDays: -1},
}

// SeedDemo inserts a few sample todos with due dates relative to now.
func SeedDemo(ctx context.Context, store Store, now time.Time) ([]Task, error) {
	out := make([]Task, 0, len(demoTodos))
	for _, d := range demoTodos {
		due := now.AddDate(0, 0, d.offsetDays)
		t, err := store.Create(ctx, CreateInput{Title: d.title, Note: d.note, DueDate: &due})
		if err != nil {
			return out, fmt.Errorf("seed %q: %w", d.title, err)
		}
		if d.completed {
			t, err = store.Merge(ctx, t.ID, Patch{Completed: Some(true)})
			if err != nil {
				return out, fmt.Errorf("seed %q: %w", d.title, err)
			}
		}
		out = append(out, t)
	}
	return out, nil
}
