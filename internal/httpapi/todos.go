package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/ent0n29/tasktrack/internal/schema"
	"github.com/ent0n29/tasktrack/internal/todos"
)

func (s *Server) handleListTodos(w http.ResponseWriter, r *http.Request, v schema.Values) error {
	filter, err := todos.ParseFilter(v.Param("status"))
	if err != nil {
		return err
	}
	list, err := s.store.List(r.Context(), filter)
	if err != nil {
		return err
	}
	if list == nil {
		list = []todos.Task{}
	}
	respondJSON(w, http.StatusOK, list)
	return nil
}

func (s *Server) handleGetTodo(w http.ResponseWriter, r *http.Request, v schema.Values) error {
	task, err := s.store.Get(r.Context(), v.Param("id"))
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, task)
	return nil
}

func (s *Server) handleCreateTodo(w http.ResponseWriter, r *http.Request, v schema.Values) error {
	task, err := s.store.Create(r.Context(), todos.CreateInput{
		Title:   v.String("title"),
		Note:    v.String("note"),
		DueDate: v.Time("dueDate"),
	})
	if err != nil {
		return err
	}
	s.recordMutation(r.Context(), "create", todos.ChangedEvent(todos.EventCreated, task, s.clock.Now()))
	respondJSON(w, http.StatusCreated, task)
	return nil
}

func (s *Server) handleReplaceTodo(w http.ResponseWriter, r *http.Request, v schema.Values) error {
	task, err := s.store.Replace(r.Context(), v.Param("id"), todos.ReplaceInput{
		Title:     v.String("title"),
		Note:      v.String("note"),
		Completed: v.Bool("completed"),
		DueDate:   v.Time("dueDate"),
	})
	if err != nil {
		return err
	}
	s.recordMutation(r.Context(), "replace", todos.ChangedEvent(todos.EventUpdated, task, s.clock.Now()))
	respondJSON(w, http.StatusOK, task)
	return nil
}

func (s *Server) handlePatchTodo(w http.ResponseWriter, r *http.Request, v schema.Values) error {
	task, err := s.store.Merge(r.Context(), v.Param("id"), patchFromValues(v))
	if err != nil {
		return err
	}
	s.recordMutation(r.Context(), "merge", todos.ChangedEvent(todos.EventUpdated, task, s.clock.Now()))
	respondJSON(w, http.StatusOK, task)
	return nil
}

func (s *Server) handleDeleteTodo(w http.ResponseWriter, r *http.Request, v schema.Values) error {
	id := v.Param("id")
	removed, err := s.store.Remove(r.Context(), id)
	if err != nil {
		return err
	}
	if !removed {
		return todos.ErrNotFound
	}
	s.recordMutation(r.Context(), "remove", todos.DeletedEvent(id, s.clock.Now()))
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// patchFromValues carries body presence into the patch: an explicit null
// note or dueDate clears the stored field. Validation has already rejected
// null for title and completed.
func patchFromValues(v schema.Values) todos.Patch {
	var p todos.Patch
	if v.Has("title") {
		p.Title = todos.Some(v.String("title"))
	}
	switch {
	case v.IsNull("note"):
		p.Note = todos.Null[string]()
	case v.Has("note"):
		p.Note = todos.Some(v.String("note"))
	}
	if v.Has("completed") {
		p.Completed = todos.Some(v.Bool("completed"))
	}
	switch {
	case v.IsNull("dueDate"):
		p.DueDate = todos.Null[*time.Time]()
	case v.Has("dueDate"):
		p.DueDate = todos.Some(v.Time("dueDate"))
	}
	return p
}

func (s *Server) recordMutation(ctx context.Context, op string, evt todos.Event) {
	s.feed.Publish(evt)
	s.logger.DebugContext(ctx, "todo mutated", "op", op, "todo_id", evt.ID)
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveMutation(op)
	s.refreshLiveGauge()
}

// refreshLiveGauge publishes the todo count. Postgres rows can change
// underneath us, so only the in-memory count is reported.
func (s *Server) refreshLiveGauge() {
	if s.metrics == nil {
		return
	}
	if counter, ok := s.store.(interface{ Len() int }); ok {
		s.metrics.LiveTodos.Set(float64(counter.Len()))
	}
}
