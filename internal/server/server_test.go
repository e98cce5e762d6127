package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"studyplan/internal/app"
	"studyplan/internal/config"
	"studyplan/internal/domain"
	"studyplan/internal/events"
	"studyplan/internal/extract"
	"studyplan/internal/identity"
	"studyplan/internal/store"
	studyplansdk "studyplan/sdk/go"
)

var fixedNow = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

type fakeExtractor struct {
	mu       sync.Mutex
	subjects []string
	topics   [][]string
}

func (f *fakeExtractor) AnalyzeSyllabus(_ context.Context, in extract.SyllabusInput) ([]domain.SuggestedTask, error) {
	if strings.TrimSpace(in.Text) == "" && len(in.Files) == 0 {
		return nil, domain.Invalid("syllabus", "text or at least one file is required")
	}
	return []domain.SuggestedTask{{Topic: "Kinematics", DurationMinutes: 45}, {Topic: "Optics", DurationMinutes: 30}}, nil
}

func (f *fakeExtractor) AnalyzeDatesheet(_ context.Context, files []extract.File, today time.Time) ([]domain.TestDraft, error) {
	return []domain.TestDraft{{TestName: "Unit Test 1", StartDate: today.Format(domain.DateLayout), EndDate: today.AddDate(0, 0, 4).Format(domain.DateLayout)}}, nil
}

func (f *fakeExtractor) SuggestTopics(_ context.Context, subject string, topics []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.topics = append(f.topics, topics)
	if len(topics) == 0 {
		return []string{}, nil
	}
	return topics[:1], nil
}

type testServer struct {
	URL    string
	App    *app.App
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, mutate func(*config.Config, *app.Options)) (*testServer, func()) {
	t.Helper()
	return newWrappedTestServer(t, mutate, nil)
}

// newWrappedTestServer lets wrap decorate the store the planners use.
func newWrappedTestServer(t *testing.T, mutate func(*config.Config, *app.Options), wrap func(store.Store) store.Store) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.BcryptCost = 4
	opts := app.Options{
		Workspace: workspace,
		DBPath:    filepath.Join(workspace, "test.db"),
		Now:       func() time.Time { return fixedNow },
		Extractor: &fakeExtractor{},
	}
	if mutate != nil {
		mutate(cfg, &opts)
	}
	a, err := app.Open(context.Background(), cfg, opts)
	if err != nil {
		t.Fatalf("open app: %v", err)
	}
	if wrap != nil {
		a.Store = wrap(a.Store)
	}
	handler, err := New(Config{App: a, BasePath: "/v1", WebhookInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		App:    a,
		client: &http.Client{},
		close: func() {
			handler.Close()
			a.Close()
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func signup(t *testing.T, srv *testServer, email string) (identity.Credentials, map[string]string) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/signup", map[string]any{
		"email":    email,
		"password": "secret1",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("signup status %d: %s", res.StatusCode, string(data))
	}
	var creds identity.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		t.Fatalf("unmarshal credentials: %v", err)
	}
	return creds, map[string]string{"Authorization": "Bearer " + creds.Token}
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env
}

func TestTaskLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	_, auth := signup(t, srv, "ada@example.com")

	createRes, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"subject":          "Physics",
		"topic":            "Kinematics",
		"scheduled_at":     "2026-10-16T15:00:00Z",
		"duration_minutes": 45,
	}, auth)
	if createRes.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", createRes.StatusCode, string(data))
	}
	var created domain.Task
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if created.Completed || created.ActivityType != domain.ActivityLearnConcept {
		t.Fatalf("unexpected new task %+v", created)
	}

	listRes, listBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, auth)
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", listRes.StatusCode, string(listBody))
	}
	var list taskList
	_ = json.Unmarshal(listBody, &list)
	if len(list.Items) != 1 || list.Items[0].ID != created.ID {
		t.Fatalf("expected the created task, got %+v", list.Items)
	}

	for _, want := range []bool{true, false} {
		res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+created.ID+"/toggle", nil, auth)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("toggle status %d: %s", res.StatusCode, string(body))
		}
		var toggled domain.Task
		_ = json.Unmarshal(body, &toggled)
		if toggled.Completed != want {
			t.Fatalf("expected completed=%v, got %v", want, toggled.Completed)
		}
	}

	agendaRes, agendaBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/agenda?tz=UTC", nil, auth)
	if agendaRes.StatusCode != http.StatusOK {
		t.Fatalf("agenda status %d: %s", agendaRes.StatusCode, string(agendaBody))
	}
	var agenda AgendaResponse
	_ = json.Unmarshal(agendaBody, &agenda)
	if len(agenda.Days) != 1 || agenda.Days[0].Date != "2026-10-16" || agenda.Days[0].PlannedMinutes != 45 {
		t.Fatalf("unexpected agenda %+v", agenda)
	}

	for i := 0; i < 2; i++ {
		delRes, delBody := doJSON(t, client, http.MethodDelete, srv.URL+"/v1/tasks/"+created.ID, nil, auth)
		if delRes.StatusCode != http.StatusNoContent {
			t.Fatalf("delete #%d status %d: %s", i+1, delRes.StatusCode, string(delBody))
		}
	}
	getRes, getBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/"+created.ID, nil, auth)
	if getRes.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d %s", getRes.StatusCode, string(getBody))
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Error.Code != "unauthorized" {
		t.Fatalf("unexpected error code %q", env.Error.Code)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d %s", res.StatusCode, string(data))
	}

	signup(t, srv, "ada@example.com")
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{"email": "ada@example.com", "password": "wrong-password"}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/signup", map[string]any{"email": "ada@example.com", "password": "secret1"}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate signup, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{"email": "ada@example.com", "password": "secret1"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", res.StatusCode, string(data))
	}
	var creds identity.Credentials
	_ = json.Unmarshal(data, &creds)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"Authorization": "Bearer " + creds.Token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	_ = json.Unmarshal(data, &who)
	if who.Owner != creds.Owner || who.Email != "ada@example.com" {
		t.Fatalf("unexpected principal %+v", who)
	}
}

func TestValidationEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	_, auth := signup(t, srv, "ada@example.com")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"topic":            "Kinematics",
		"scheduled_at":     "2026-10-16T15:00:00Z",
		"duration_minutes": 0,
	}, auth)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	if env.Error.Code != "validation_failed" || env.Error.Details["field"] != "duration_minutes" {
		t.Fatalf("unexpected envelope %+v", env.Error)
	}
}

func TestOwnerIsolation(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	_, alice := signup(t, srv, "alice@example.com")
	_, bob := signup(t, srv, "bob@example.com")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"topic":            "Secret topic",
		"scheduled_at":     "2026-10-17T08:00:00Z",
		"duration_minutes": 30,
	}, alice)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created domain.Task
	_ = json.Unmarshal(data, &created)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, bob)
	var list taskList
	_ = json.Unmarshal(data, &list)
	if res.StatusCode != http.StatusOK || len(list.Items) != 0 {
		t.Fatalf("bob should see no tasks, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/"+created.ID, nil, bob)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("bob should not read alice's task, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+created.ID+"/toggle", nil, bob)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("bob should not toggle alice's task, got %d %s", res.StatusCode, string(data))
	}
}

func TestTestsBatchAndClear(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	_, auth := signup(t, srv, "ada@example.com")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tests/batch", map[string]any{
		"tests": []map[string]any{
			{"test_name": "Mid Term", "start_date": "2026-11-02", "end_date": "2026-11-06"},
			{"test_name": "Quiz", "start_date": "2026-09-01", "end_date": "2026-09-01"},
		},
	}, auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("batch status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tests/batch", map[string]any{
		"tests": []map[string]any{
			{"test_name": "Finals", "start_date": "2026-12-01", "end_date": "2026-12-05"},
			{"test_name": "Broken", "start_date": "2026-12-05", "end_date": "2026-12-01"},
		},
	}, auth)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid batch, got %d %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Error.Details["field"] != "tests[1].end_date" {
		t.Fatalf("unexpected field %v", env.Error.Details["field"])
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tests?state=upcoming", nil, auth)
	var upcoming testList
	_ = json.Unmarshal(data, &upcoming)
	if res.StatusCode != http.StatusOK || len(upcoming.Items) != 1 || upcoming.Items[0].TestName != "Mid Term" {
		t.Fatalf("unexpected upcoming list %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tests/upcoming", nil, auth)
	var next UpcomingResponse
	_ = json.Unmarshal(data, &next)
	if !next.Found || next.Test.TestName != "Mid Term" || next.DaysUntil != 17 {
		t.Fatalf("unexpected next test %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/tests", nil, auth)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without confirm, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/tests?confirm=true", nil, auth)
	var cleared ClearTestsResponse
	_ = json.Unmarshal(data, &cleared)
	if res.StatusCode != http.StatusOK || cleared.Deleted != 2 {
		t.Fatalf("clear: %d %s", res.StatusCode, string(data))
	}
}

// flakyStore fails list reads or task inserts on demand.
type flakyStore struct {
	store.Store
	failReads       atomic.Bool
	failInsertAfter atomic.Int64
	inserts         atomic.Int64
}

func (f *flakyStore) ListTasks(ctx context.Context, owner string) ([]domain.Task, error) {
	if f.failReads.Load() {
		return nil, errors.New("read unavailable")
	}
	return f.Store.ListTasks(ctx, owner)
}

func (f *flakyStore) ListTests(ctx context.Context, owner string) ([]domain.Test, error) {
	if f.failReads.Load() {
		return nil, errors.New("read unavailable")
	}
	return f.Store.ListTests(ctx, owner)
}

func (f *flakyStore) InsertTask(ctx context.Context, task domain.Task) error {
	if n := f.failInsertAfter.Load(); n > 0 && f.inserts.Add(1) > n {
		return domain.ErrConflict
	}
	return f.Store.InsertTask(ctx, task)
}

func TestCommittedDeletesReportRefreshFailure(t *testing.T) {
	flaky := &flakyStore{}
	srv, cleanup := newWrappedTestServer(t, nil, func(s store.Store) store.Store {
		flaky.Store = s
		return flaky
	})
	defer cleanup()
	client := srv.Client()
	_, auth := signup(t, srv, "ada@example.com")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"topic":            "Kinematics",
		"scheduled_at":     "2026-10-16T15:00:00Z",
		"duration_minutes": 45,
	}, auth)
	var task domain.Task
	_ = json.Unmarshal(data, &task)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tests/batch", map[string]any{
		"tests": []map[string]any{
			{"test_name": "Mid Term", "start_date": "2026-11-02", "end_date": "2026-11-06"},
			{"test_name": "Quiz", "start_date": "2026-11-09", "end_date": "2026-11-09"},
		},
	}, auth)
	var tests testList
	_ = json.Unmarshal(data, &tests)
	if res.StatusCode != http.StatusCreated || len(tests.Items) != 2 {
		t.Fatalf("batch %d: %s", res.StatusCode, string(data))
	}

	flaky.failReads.Store(true)
	for _, url := range []string{"/v1/tasks/" + task.ID, "/v1/tests/" + tests.Items[0].ID} {
		res, data = doJSON(t, client, http.MethodDelete, srv.URL+url, nil, auth)
		if res.StatusCode != http.StatusNoContent {
			t.Fatalf("delete %s: %d %s", url, res.StatusCode, string(data))
		}
		if res.Header.Get("X-Studyplan-Refresh-Error") == "" {
			t.Fatalf("delete %s: expected refresh error header", url)
		}
	}
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/tests?confirm=true", nil, auth)
	var cleared ClearTestsResponse
	_ = json.Unmarshal(data, &cleared)
	if res.StatusCode != http.StatusOK || cleared.Deleted != 1 {
		t.Fatalf("clear: %d %s", res.StatusCode, string(data))
	}
	if res.Header.Get("X-Studyplan-Refresh-Error") == "" {
		t.Fatalf("clear: expected refresh error header")
	}
	flaky.failReads.Store(false)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, auth)
	var list taskList
	_ = json.Unmarshal(data, &list)
	if res.StatusCode != http.StatusOK || len(list.Items) != 0 {
		t.Fatalf("tasks after delete: %d %s", res.StatusCode, string(data))
	}
}

func TestScheduleReportsPartialCreation(t *testing.T) {
	flaky := &flakyStore{}
	srv, cleanup := newWrappedTestServer(t, nil, func(s store.Store) store.Store {
		flaky.Store = s
		return flaky
	})
	defer cleanup()
	client := srv.Client()
	_, auth := signup(t, srv, "ada@example.com")

	flaky.failInsertAfter.Store(1)
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/schedule", map[string]any{
		"subject": "Physics",
		"start":   "2026-10-17T09:00:00Z",
		"suggestions": []map[string]any{
			{"topic": "Kinematics", "duration_minutes": 45},
			{"topic": "Optics", "duration_minutes": 30},
		},
	}, auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("schedule %d: %s", res.StatusCode, string(data))
	}
	if h := res.Header.Get("X-Studyplan-Refresh-Error"); h != "" {
		t.Fatalf("insert failure must not be reported as a refresh error: %q", h)
	}
	var out scheduleResult
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal schedule result: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].Topic != "Kinematics" {
		t.Fatalf("expected the first task only, got %+v", out.Items)
	}
	if out.FailedAt == nil || *out.FailedAt != 1 {
		t.Fatalf("expected failed_at=1, got %s", string(data))
	}
	if out.Failure == nil || out.Failure.Code != "conflict" {
		t.Fatalf("expected conflict failure, got %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, auth)
	var list taskList
	_ = json.Unmarshal(data, &list)
	if len(list.Items) != 1 {
		t.Fatalf("expected one stored task, got %s", string(data))
	}
}

func TestAnalyzeAndSyllabus(t *testing.T) {
	fake := &fakeExtractor{}
	srv, cleanup := newTestServer(t, func(_ *config.Config, opts *app.Options) { opts.Extractor = fake })
	defer cleanup()
	client := srv.Client()
	_, auth := signup(t, srv, "ada@example.com")

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v1/syllabus", map[string]any{
		"topics": []string{" Optics ", "Algebra", "optics", ""},
	}, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("put syllabus %d: %s", res.StatusCode, string(data))
	}
	var syl domain.SyllabusTopics
	_ = json.Unmarshal(data, &syl)
	if strings.Join(syl.Topics, ",") != "Optics,Algebra" {
		t.Fatalf("unexpected topics %v", syl.Topics)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/analyze/topics", map[string]any{"subject": "Physics"}, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("suggest topics %d: %s", res.StatusCode, string(data))
	}
	if len(fake.topics) != 1 || strings.Join(fake.topics[0], ",") != "Optics,Algebra" {
		t.Fatalf("extractor did not receive saved topics: %v", fake.topics)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/analyze/syllabus", map[string]any{"text": "Physics: kinematics, optics"}, auth)
	var suggestions SuggestionsResponse
	_ = json.Unmarshal(data, &suggestions)
	if res.StatusCode != http.StatusOK || len(suggestions.Suggestions) != 2 {
		t.Fatalf("analyze syllabus %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/schedule", map[string]any{
		"subject":     "Physics",
		"start":       "2026-10-17T09:00:00Z",
		"suggestions": suggestions.Suggestions,
	}, auth)
	var scheduled taskList
	_ = json.Unmarshal(data, &scheduled)
	if res.StatusCode != http.StatusCreated || len(scheduled.Items) != 2 {
		t.Fatalf("schedule %d: %s", res.StatusCode, string(data))
	}
	if got := scheduled.Items[1].ScheduledAt; !got.Equal(time.Date(2026, 10, 17, 9, 45, 0, 0, time.UTC)) {
		t.Fatalf("second task should follow the first, got %v", got)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/analyze/datesheet", map[string]any{
		"files": []string{"data:text/plain;base64,aGVsbG8="},
	}, auth)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported file, got %d %s", res.StatusCode, string(data))
	}
}

func TestAnalyzeNotConfigured(t *testing.T) {
	srv, cleanup := newTestServer(t, func(_ *config.Config, opts *app.Options) { opts.Extractor = extract.Unconfigured{} })
	defer cleanup()
	_, auth := signup(t, srv, "ada@example.com")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/analyze/syllabus", map[string]any{"text": "anything"}, auth)
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Error.Code != "not_configured" {
		t.Fatalf("unexpected code %q", env.Error.Code)
	}
}

func TestChangeFeed(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	creds, auth := signup(t, srv, "ada@example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/changes?token=" + creds.Token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial change feed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tests", map[string]any{
		"test_name": "Mid Term", "start_date": "2026-11-02", "end_date": "2026-11-06",
	}, auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create test %d: %s", res.StatusCode, string(data))
	}
	_, msg, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read change: %v", err)
	}
	var change events.Change
	if err := json.Unmarshal(msg, &change); err != nil {
		t.Fatalf("unmarshal change: %v", err)
	}
	if change.Owner != creds.Owner || change.Collection != events.CollectionTests || change.Action != "create" {
		t.Fatalf("unexpected change %+v", change)
	}
}

func TestWebhookDelivery(t *testing.T) {
	type delivery struct {
		body      []byte
		signature string
		event     string
	}
	got := make(chan delivery, 8)
	recv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- delivery{body: body, signature: r.Header.Get("X-Studyplan-Signature"), event: r.Header.Get("X-Studyplan-Event")}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer recv.Close()

	srv, cleanup := newTestServer(t, func(cfg *config.Config, _ *app.Options) {
		cfg.Webhooks = []config.Webhook{{URL: recv.URL, Events: []string{"task.created"}, Secret: "hook-secret"}}
	})
	defer cleanup()
	_, auth := signup(t, srv, "ada@example.com")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"topic": "Optics", "scheduled_at": "2026-10-17T08:00:00Z", "duration_minutes": 25,
	}, auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task %d: %s", res.StatusCode, string(data))
	}

	select {
	case d := <-got:
		if d.event != "task.created" {
			t.Fatalf("unexpected event %s", d.event)
		}
		if d.signature != "sha256="+signPayload("hook-secret", d.body) {
			t.Fatalf("bad signature %s", d.signature)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}
}

func TestSDKClient(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	ctx := context.Background()
	client := studyplansdk.New(srv.URL)

	if _, err := client.ListTasks(ctx, ""); !studyplansdk.IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("expected 401 before sign up, got %v", err)
	}
	if _, err := client.SignUp(ctx, "sdk@example.com", "secret1"); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	task, err := client.CreateTask(ctx, studyplansdk.NewTask{
		Topic:           "Vectors",
		ScheduledAt:     fixedNow.Add(2 * time.Hour),
		DurationMinutes: 40,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := client.ToggleTask(ctx, task.ID); err != nil {
		t.Fatalf("toggle task: %v", err)
	}
	completed, err := client.ListTasks(ctx, "completed")
	if err != nil || len(completed) != 1 {
		t.Fatalf("expected one completed task, got %v %v", completed, err)
	}

	_, err = client.CreateTask(ctx, studyplansdk.NewTask{Topic: "Broken", ScheduledAt: fixedNow})
	var apiErr *studyplansdk.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "validation_failed" || apiErr.Field != "duration_minutes" {
		t.Fatalf("expected validation error on duration_minutes, got %v", err)
	}

	if _, err := client.ImportTests(ctx, []studyplansdk.NewTest{{TestName: "Finals", StartDate: "2026-10-20", EndDate: "2026-10-24"}}); err != nil {
		t.Fatalf("import tests: %v", err)
	}
	dash, err := client.Dashboard(ctx, "UTC")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dash.Upcoming == nil || dash.Upcoming.TestName != "Finals" || dash.DaysUntil != 4 || dash.Completed != 1 {
		t.Fatalf("unexpected dashboard %+v", dash)
	}

	page, err := client.EventsPage(ctx, 2, "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" || page.Items[0].Type != "test.created" {
		t.Fatalf("unexpected first page %+v", page)
	}
	older, err := client.EventsPage(ctx, 10, page.NextCursor)
	if err != nil {
		t.Fatalf("older events: %v", err)
	}
	// task.created then account.created
	if len(older.Items) != 2 || older.Items[0].Type != "task.created" || older.Items[1].Type != "account.created" {
		t.Fatalf("unexpected older page %+v", older)
	}
}
