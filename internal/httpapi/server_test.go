package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/tasktrack/internal/config"
	"github.com/ent0n29/tasktrack/internal/observability"
	"github.com/ent0n29/tasktrack/internal/todos"
)

var (
	metricsOnce   sync.Once
	sharedMetrics *observability.Metrics
)

// testMetrics shares one registry-backed instance; promauto panics on
// duplicate registration.
func testMetrics() *observability.Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = observability.NewMetrics("test_httpapi_" + time.Now().Format("150405"))
	})
	return sharedMetrics
}

type testEnv struct {
	srv   *Server
	ts    *httptest.Server
	store todos.Store
}

func newTestEnv(t *testing.T, store todos.Store) *testEnv {
	t.Helper()
	if store == nil {
		store = todos.NewInMemoryStore(nil)
	}
	cfg := config.Config{MaxBodyBytes: 4096}
	srv := New(cfg, store, todos.NewFeed(8), testMetrics(), nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testEnv{srv: srv, ts: ts, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest(%s %s) error = %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("reading %s %s body: %v", method, path, err)
	}
	return res, raw
}

func (e *testEnv) create(t *testing.T, body string) todos.Task {
	t.Helper()
	res, raw := e.do(t, http.MethodPost, "/api/todos", body)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d: %s", res.StatusCode, http.StatusCreated, raw)
	}
	return decodeTask(t, raw)
}

func decodeTask(t *testing.T, raw []byte) todos.Task {
	t.Helper()
	var task todos.Task
	if err := json.Unmarshal(raw, &task); err != nil {
		t.Fatalf("decode task %s: %v", raw, err)
	}
	return task
}

func decodeError(t *testing.T, raw []byte) errorResponse {
	t.Helper()
	var out errorResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode error body %s: %v", raw, err)
	}
	return out
}

func hasDetail(e errorResponse, field string) bool {
	for _, d := range e.Details {
		if d.Field == field {
			return true
		}
	}
	return false
}

func TestCreateAndGetTodo(t *testing.T) {
	env := newTestEnv(t, nil)
	created := env.create(t, `{"title":"A"}`)
	if created.ID == "" {
		t.Fatalf("missing id in create response")
	}

	res, raw := env.do(t, http.MethodGet, "/api/todos/"+created.ID, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	got := decodeTask(t, raw)
	if got.Title != "A" || got.Note != "" || got.Completed || got.DueDate != nil {
		t.Fatalf("unexpected task: %+v", got)
	}

	var wire map[string]any
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatalf("decode wire task: %v", err)
	}
	for _, key := range []string{"id", "title", "note", "completed", "dueDate", "createdAt", "updatedAt"} {
		if _, ok := wire[key]; !ok {
			t.Fatalf("task JSON missing %q: %s", key, raw)
		}
	}
	if wire["dueDate"] != nil {
		t.Fatalf("dueDate = %v, want null", wire["dueDate"])
	}
}

func TestCreateTrimsTitleAndParsesDueDate(t *testing.T) {
	env := newTestEnv(t, nil)
	created := env.create(t, `{"title":"  Write docs ","note":"draft","dueDate":"2025-04-01T10:00:00.000Z"}`)
	if created.Title != "Write docs" {
		t.Fatalf("Title = %q, want %q", created.Title, "Write docs")
	}
	want := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	if created.DueDate == nil || !created.DueDate.Equal(want) {
		t.Fatalf("DueDate = %v, want %v", created.DueDate, want)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		name   string
		body   string
		fields []string
	}{
		{"missing title", `{}`, []string{"title"}},
		{"empty title", `{"title":""}`, []string{"title"}},
		{"no body", ``, []string{"title"}},
		{"every field wrong", `{"title":1,"note":2,"dueDate":"soon"}`, []string{"title", "note", "dueDate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, raw := env.do(t, http.MethodPost, "/api/todos", tt.body)
			if res.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
			}
			e := decodeError(t, raw)
			if e.Message == "" {
				t.Fatalf("error message empty")
			}
			for _, f := range tt.fields {
				if !hasDetail(e, f) {
					t.Fatalf("details missing %q: %+v", f, e.Details)
				}
			}
		})
	}

	list, _ := env.store.List(context.Background(), todos.FilterAll)
	if len(list) != 0 {
		t.Fatalf("invalid creates stored %d todos", len(list))
	}
}

func TestMalformedJSONIsBadRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	res, raw := env.do(t, http.MethodPost, "/api/todos", `{"title":`)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
	if e := decodeError(t, raw); e.Message != "Invalid JSON body" {
		t.Fatalf("message = %q, want %q", e.Message, "Invalid JSON body")
	}
}

func TestListFiltersByStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	a := env.create(t, `{"title":"a"}`)
	b := env.create(t, `{"title":"b"}`)
	if res, raw := env.do(t, http.MethodPatch, "/api/todos/"+b.ID, `{"completed":true}`); res.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d: %s", res.StatusCode, raw)
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{a.ID, b.ID}},
		{"?status=active", []string{a.ID}},
		{"?status=completed", []string{b.ID}},
	}
	for _, tt := range tests {
		res, raw := env.do(t, http.MethodGet, "/api/todos"+tt.query, "")
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d", tt.query, res.StatusCode)
		}
		var list []todos.Task
		if err := json.Unmarshal(raw, &list); err != nil {
			t.Fatalf("decode list: %v", err)
		}
		if len(list) != len(tt.want) {
			t.Fatalf("GET %s returned %d todos, want %d", tt.query, len(list), len(tt.want))
		}
		for i, id := range tt.want {
			if list[i].ID != id {
				t.Fatalf("GET %s [%d] = %q, want %q", tt.query, i, list[i].ID, id)
			}
		}
	}

	res, raw := env.do(t, http.MethodGet, "/api/todos?status=done", "")
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid status code = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
	if !hasDetail(decodeError(t, raw), "status") {
		t.Fatalf("details missing status: %s", raw)
	}
}

func TestListEmptyIsArray(t *testing.T) {
	env := newTestEnv(t, nil)
	res, raw := env.do(t, http.MethodGet, "/api/todos", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if strings.TrimSpace(string(raw)) != "[]" {
		t.Fatalf("body = %s, want []", raw)
	}
}

func TestReplaceOverwritesEveryField(t *testing.T) {
	env := newTestEnv(t, nil)
	created := env.create(t, `{"title":"A","note":"details","dueDate":"2025-04-01"}`)

	res, raw := env.do(t, http.MethodPut, "/api/todos/"+created.ID, `{"title":"B","completed":true}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", res.StatusCode, http.StatusOK, raw)
	}
	got := decodeTask(t, raw)
	if got.Title != "B" || !got.Completed || got.Note != "" || got.DueDate != nil {
		t.Fatalf("unexpected replaced task: %+v", got)
	}
	if got.UpdatedAt.Before(created.UpdatedAt) {
		t.Fatalf("UpdatedAt %v before prior %v", got.UpdatedAt, created.UpdatedAt)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) || got.ID != created.ID {
		t.Fatalf("identity fields changed: %+v vs %+v", got, created)
	}
}

func TestReplaceRequiresCompleted(t *testing.T) {
	env := newTestEnv(t, nil)
	created := env.create(t, `{"title":"A","note":"keep"}`)

	res, raw := env.do(t, http.MethodPut, "/api/todos/"+created.ID, `{"title":"B"}`)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
	if !hasDetail(decodeError(t, raw), "completed") {
		t.Fatalf("details missing completed: %s", raw)
	}

	got, err := env.store.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != "A" || got.Note != "keep" {
		t.Fatalf("rejected replace mutated the todo: %+v", got)
	}
}

func TestPatchChangesOnlyGivenFields(t *testing.T) {
	env := newTestEnv(t, nil)
	created := env.create(t, `{"title":"A","note":"details","dueDate":"2025-04-01T00:00:00Z"}`)

	res, raw := env.do(t, http.MethodPatch, "/api/todos/"+created.ID, `{"completed":true}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", res.StatusCode, http.StatusOK, raw)
	}
	got := decodeTask(t, raw)
	if !got.Completed {
		t.Fatalf("Completed = false, want true")
	}
	if got.Title != "A" || got.Note != "details" || got.DueDate == nil || !got.DueDate.Equal(*created.DueDate) {
		t.Fatalf("patch touched other fields: %+v", got)
	}
}

func TestPatchNullClearsDueDate(t *testing.T) {
	env := newTestEnv(t, nil)
	created := env.create(t, `{"title":"A","note":"details","dueDate":"2025-04-01"}`)

	res, raw := env.do(t, http.MethodPatch, "/api/todos/"+created.ID, `{"dueDate":null,"note":null}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", res.StatusCode, http.StatusOK, raw)
	}
	got := decodeTask(t, raw)
	if got.DueDate != nil || got.Note != "" || got.Title != "A" {
		t.Fatalf("unexpected patched task: %+v", got)
	}
}

func TestPatchValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	created := env.create(t, `{"title":"A"}`)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"empty object", `{}`, "body"},
		{"no body", ``, "body"},
		{"blank title", `{"title":" "}`, "title"},
		{"null title", `{"title":null}`, "title"},
		{"string completed", `{"completed":"true"}`, "completed"},
		{"bad due date", `{"dueDate":"next week"}`, "dueDate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, raw := env.do(t, http.MethodPatch, "/api/todos/"+created.ID, tt.body)
			if res.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
			}
			if !hasDetail(decodeError(t, raw), tt.field) {
				t.Fatalf("details missing %q: %s", tt.field, raw)
			}
		})
	}
}

func TestDeleteThenGetIsNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	created := env.create(t, `{"title":"A"}`)

	res, raw := env.do(t, http.MethodDelete, "/api/todos/"+created.ID, "")
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}
	if len(raw) != 0 {
		t.Fatalf("delete body = %q, want empty", raw)
	}

	res, raw = env.do(t, http.MethodGet, "/api/todos/"+created.ID, "")
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
	if e := decodeError(t, raw); e.Message != messageTodoNotFound {
		t.Fatalf("message = %q, want %q", e.Message, messageTodoNotFound)
	}

	res, _ = env.do(t, http.MethodDelete, "/api/todos/"+created.ID, "")
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestUnknownAndInvalidIDs(t *testing.T) {
	env := newTestEnv(t, nil)
	missing := "0b8f0d0e-9c1a-4f5e-8e7d-3a2b1c0d9e8f"

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/api/todos/" + missing, "", http.StatusNotFound},
		{http.MethodPut, "/api/todos/" + missing, `{"title":"x","completed":false}`, http.StatusNotFound},
		{http.MethodPatch, "/api/todos/" + missing, `{"title":"x"}`, http.StatusNotFound},
		{http.MethodDelete, "/api/todos/" + missing, "", http.StatusNotFound},
		{http.MethodGet, "/api/todos/not-a-uuid", "", http.StatusBadRequest},
		{http.MethodDelete, "/api/todos/not-a-uuid", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		res, raw := env.do(t, tt.method, tt.path, tt.body)
		if res.StatusCode != tt.want {
			t.Fatalf("%s %s status = %d, want %d: %s", tt.method, tt.path, res.StatusCode, tt.want, raw)
		}
	}
}

func TestUnsupportedMethodAndUnknownRoute(t *testing.T) {
	env := newTestEnv(t, nil)
	created := env.create(t, `{"title":"A"}`)

	res, raw := env.do(t, http.MethodPost, "/api/todos/"+created.ID, `{}`)
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusMethodNotAllowed)
	}
	if e := decodeError(t, raw); e.Message != messageMethodNotAllowed {
		t.Fatalf("message = %q, want %q", e.Message, messageMethodNotAllowed)
	}

	res, raw = env.do(t, http.MethodGet, "/api/nothing-here", "")
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
	if e := decodeError(t, raw); e.Message != messageNotFound {
		t.Fatalf("message = %q, want %q", e.Message, messageNotFound)
	}
}

func TestBodyTooLarge(t *testing.T) {
	env := newTestEnv(t, nil)
	body := `{"title":"` + strings.Repeat("x", 5000) + `"}`
	res, _ := env.do(t, http.MethodPost, "/api/todos", body)
	if res.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusRequestEntityTooLarge)
	}
}

type failingStore struct {
	todos.Store
	mutations int
}

var errBackend = errors.New("connection reset by peer at 10.0.0.7")

func (f *failingStore) List(context.Context, todos.Filter) ([]todos.Task, error) {
	return nil, errBackend
}

func (f *failingStore) Replace(context.Context, string, todos.ReplaceInput) (todos.Task, error) {
	f.mutations++
	return todos.Task{}, errBackend
}

func (f *failingStore) Merge(context.Context, string, todos.Patch) (todos.Task, error) {
	f.mutations++
	return todos.Task{}, errBackend
}

func TestStoreFailureIsGenericInternalError(t *testing.T) {
	store := &failingStore{}
	env := newTestEnv(t, store)

	res, raw := env.do(t, http.MethodGet, "/api/todos", "")
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusInternalServerError)
	}
	e := decodeError(t, raw)
	if e.Message != messageInternal || len(e.Details) != 0 {
		t.Fatalf("unexpected error body: %+v", e)
	}
	if bytes.Contains(raw, []byte("10.0.0.7")) {
		t.Fatalf("internal detail leaked to client: %s", raw)
	}
}

func TestValidationRunsBeforeStore(t *testing.T) {
	store := &failingStore{}
	env := newTestEnv(t, store)
	id := "0b8f0d0e-9c1a-4f5e-8e7d-3a2b1c0d9e8f"

	if res, _ := env.do(t, http.MethodPut, "/api/todos/"+id, `{"title":""}`); res.StatusCode != http.StatusBadRequest {
		t.Fatalf("PUT status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
	if res, _ := env.do(t, http.MethodPatch, "/api/todos/"+id, `{}`); res.StatusCode != http.StatusBadRequest {
		t.Fatalf("PATCH status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
	if store.mutations != 0 {
		t.Fatalf("store saw %d mutations, want 0", store.mutations)
	}
}

type panickingStore struct {
	todos.Store
}

func (panickingStore) Get(context.Context, string) (todos.Task, error) {
	panic("boom")
}

func TestPanicIsRecovered(t *testing.T) {
	env := newTestEnv(t, panickingStore{})
	res, raw := env.do(t, http.MethodGet, "/api/todos/0b8f0d0e-9c1a-4f5e-8e7d-3a2b1c0d9e8f", "")
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusInternalServerError)
	}
	if e := decodeError(t, raw); e.Message != messageInternal {
		t.Fatalf("message = %q, want %q", e.Message, messageInternal)
	}
}

func TestUIDocsAndInfoRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	res, raw := env.do(t, http.MethodGet, "/", "")
	if res.StatusCode != http.StatusOK || !strings.Contains(string(raw), `id="todo-app"`) {
		t.Fatalf("GET / status = %d, body missing app root", res.StatusCode)
	}
	res, _ = env.do(t, http.MethodGet, "/assets/app.js", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("GET /assets/app.js status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	res, raw = env.do(t, http.MethodGet, "/docs", "")
	if res.StatusCode != http.StatusOK || !strings.Contains(string(raw), "/openapi.json") {
		t.Fatalf("GET /docs status = %d, body missing openapi url", res.StatusCode)
	}

	res, raw = env.do(t, http.MethodGet, "/api", "")
	if res.StatusCode != http.StatusOK || !strings.Contains(string(raw), messageRunning) {
		t.Fatalf("GET /api = %d %s", res.StatusCode, raw)
	}

	res, raw = env.do(t, http.MethodGet, "/openapi.json", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("GET /openapi.json status = %d", res.StatusCode)
	}
	var doc struct {
		Paths map[string]map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode openapi: %v", err)
	}
	for path, methods := range map[string][]string{
		"/api/todos":      {"get", "post"},
		"/api/todos/{id}": {"get", "put", "patch", "delete"},
	} {
		for _, m := range methods {
			if _, ok := doc.Paths[path][m]; !ok {
				t.Fatalf("openapi missing %s %s", m, path)
			}
		}
	}
}

func TestHealthAndLatency(t *testing.T) {
	env := newTestEnv(t, nil)
	env.create(t, `{"title":"A"}`)

	res, raw := env.do(t, http.MethodGet, "/healthz", "")
	if res.StatusCode != http.StatusOK || !strings.Contains(string(raw), todos.ModeInMemory) {
		t.Fatalf("GET /healthz = %d %s", res.StatusCode, raw)
	}
	res, _ = env.do(t, http.MethodGet, "/readyz", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("GET /readyz status = %d", res.StatusCode)
	}

	res, raw = env.do(t, http.MethodGet, "/api/perf/latency", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/perf/latency status = %d", res.StatusCode)
	}
	if !strings.Contains(string(raw), "POST /api/todos") {
		t.Fatalf("latency snapshot missing create route: %s", raw)
	}
}

func TestReadyFailsWhenStoreFails(t *testing.T) {
	env := newTestEnv(t, &failingStore{})
	res, _ := env.do(t, http.MethodGet, "/readyz", "")
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestFeedBroadcastsMutations(t *testing.T) {
	env := newTestEnv(t, nil)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/api/todos/feed"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.srv.feed.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("feed subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	created := env.create(t, `{"title":"live"}`)
	env.do(t, http.MethodDelete, "/api/todos/"+created.ID, "")

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first, second todos.Event
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first event: %v", err)
	}
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read second event: %v", err)
	}
	if first.Type != todos.EventCreated || first.Todo == nil || first.Todo.Title != "live" {
		t.Fatalf("unexpected first event: %+v", first)
	}
	if second.Type != todos.EventDeleted || second.ID != created.ID {
		t.Fatalf("unexpected second event: %+v", second)
	}
}

func TestFeedRejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, nil)
	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/api/todos/feed"
	header := http.Header{"Origin": {"https://evil.example"}}
	_, res, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatalf("dial with foreign origin succeeded, want error")
	}
	if res == nil || res.StatusCode != http.StatusForbidden {
		t.Fatalf("response = %+v, want 403", res)
	}
}
