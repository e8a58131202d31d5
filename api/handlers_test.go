package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"devboard/bus"
	"devboard/domain"
)

type mockStore struct {
	users map[string]*domain.User
	tasks map[string]domain.Task
	logs  []domain.LogEntry
	err   error
}

func newMockStore() *mockStore {
	return &mockStore{users: map[string]*domain.User{}, tasks: map[string]domain.Task{}}
}

func (m *mockStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return m.users[id], m.err
}

// UpsertUser mirrors the merge semantics of the real store: a login sync only
// touches profile fields and never the GitHub credential or snapshot.
func (m *mockStore) UpsertUser(ctx context.Context, u domain.User) error {
	if existing := m.users[u.ID]; existing != nil {
		existing.Email = u.Email
		existing.FirstName = u.FirstName
		existing.LastName = u.LastName
		existing.Role = u.Role
		existing.LastLogin = u.LastLogin
		return m.err
	}
	m.users[u.ID] = &u
	return m.err
}

func (m *mockStore) UpdateProfile(ctx context.Context, id string, upd domain.ProfileUpdate) error {
	if u := m.users[id]; u != nil && upd.Email != nil {
		u.Email = *upd.Email
	}
	return m.err
}

func (m *mockStore) SetGithubToken(ctx context.Context, id, token string) error {
	if u := m.users[id]; u != nil {
		u.GithubToken = token
		u.GithubConnected = token != ""
	}
	return m.err
}

func (m *mockStore) CreateTask(ctx context.Context, t domain.Task) error {
	if m.err != nil {
		return m.err
	}
	m.tasks[t.ID] = t
	return nil
}

func (m *mockStore) GetTask(ctx context.Context, userID, id string) (*domain.Task, error) {
	t, ok := m.tasks[id]
	if !ok || t.Assignee != userID {
		return nil, m.err
	}
	return &t, m.err
}

func (m *mockStore) ListTasks(ctx context.Context, userID, status, project string) ([]domain.Task, error) {
	out := []domain.Task{}
	for _, t := range m.tasks {
		if t.Assignee != userID {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, t)
	}
	return out, m.err
}

func (m *mockStore) UpdateTask(ctx context.Context, userID, id string, upd domain.TaskUpdate, now time.Time) (*domain.Task, error) {
	t, ok := m.tasks[id]
	if !ok || t.Assignee != userID {
		return nil, m.err
	}
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	t.UpdatedAt = now
	m.tasks[id] = t
	return &t, m.err
}

func (m *mockStore) DeleteTask(ctx context.Context, userID, id string) (bool, error) {
	if _, ok := m.tasks[id]; !ok {
		return false, m.err
	}
	delete(m.tasks, id)
	return true, m.err
}

func (m *mockStore) ReorderTasks(ctx context.Context, userID string, changes []domain.TaskOrderChange, now time.Time) error {
	return m.err
}

func (m *mockStore) InsertLog(ctx context.Context, l domain.LogEntry) error {
	if m.err != nil {
		return m.err
	}
	m.logs = append(m.logs, l)
	return nil
}

func (m *mockStore) ListLogs(ctx context.Context, userID, service, level string, limit, page int) ([]domain.LogEntry, int, error) {
	return m.logs, len(m.logs), m.err
}

func (m *mockStore) ListLogsSince(ctx context.Context, userID, service string, since time.Time) ([]domain.LogEntry, error) {
	return m.logs, m.err
}

func (m *mockStore) DeleteUserLogsBefore(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	kept := m.logs[:0]
	deleted := 0
	for _, l := range m.logs {
		if l.UserID == userID && l.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, l)
	}
	m.logs = kept
	return deleted, m.err
}

type mockAuth struct{ id string }

func (m mockAuth) UserIDFromAuthHeader(h string) (string, error) {
	if h == "" {
		return "", errors.New("missing authorization header")
	}
	return m.id, nil
}

type mockPublisher struct {
	rooms    []string
	names    []string
	payloads []any
}

func (m *mockPublisher) Publish(ctx context.Context, room, name string, payload any) error {
	m.rooms = append(m.rooms, room)
	m.names = append(m.names, name)
	m.payloads = append(m.payloads, payload)
	return nil
}

func newTestContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestCreateTaskAppliesDefaultsAndPublishes(t *testing.T) {
	store := newMockStore()
	pub := &mockPublisher{}
	h := createTask(store, mockAuth{id: "U1"}, pub)

	c, rec := newTestContext(http.MethodPost, "/api/tasks", `{"title":"Fix bug"}`)
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Task domain.Task `json:"task"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Task.ID == "" {
		t.Fatal("expected generated id")
	}
	if resp.Task.Status != domain.StatusTodo || resp.Task.Priority != domain.PriorityMedium || resp.Task.Order != 0 {
		t.Fatalf("defaults not applied: %+v", resp.Task)
	}
	if resp.Task.Assignee != "U1" {
		t.Fatalf("assignee must be the caller, got %s", resp.Task.Assignee)
	}
	if len(pub.rooms) != 1 || pub.rooms[0] != "user-U1" || pub.names[0] != bus.EventTaskCreated {
		t.Fatalf("unexpected publish %v %v", pub.rooms, pub.names)
	}
	published, ok := pub.payloads[0].(domain.Task)
	if !ok || published.ID != resp.Task.ID {
		t.Fatalf("published payload mismatch: %+v", pub.payloads[0])
	}
}

func TestCreateTaskRejectsMissingTitle(t *testing.T) {
	store := newMockStore()
	pub := &mockPublisher{}
	h := createTask(store, mockAuth{id: "U1"}, pub)

	c, rec := newTestContext(http.MethodPost, "/api/tasks", `{"description":"no title"}`)
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(pub.names) != 0 {
		t.Fatal("failed write must not publish")
	}
}

func TestCreateTaskPersistFailureDoesNotPublish(t *testing.T) {
	store := newMockStore()
	store.err = errors.New("table down")
	pub := &mockPublisher{}
	h := createTask(store, mockAuth{id: "U1"}, pub)

	c, rec := newTestContext(http.MethodPost, "/api/tasks", `{"title":"Fix bug"}`)
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if len(pub.names) != 0 {
		t.Fatal("failed write must not publish")
	}
}

func TestUpdateTaskNotFound(t *testing.T) {
	pub := &mockPublisher{}
	h := updateTask(newMockStore(), mockAuth{id: "U1"}, pub)

	c, rec := newTestContext(http.MethodPut, "/api/tasks/missing", `{"status":"done"}`)
	c.SetParamNames("id")
	c.SetParamValues("missing")
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if len(pub.names) != 0 {
		t.Fatal("missing task must not publish")
	}
}

func TestDeleteTaskPublishesID(t *testing.T) {
	store := newMockStore()
	store.tasks["t1"] = domain.Task{ID: "t1", Assignee: "U1", Title: "x", Status: domain.StatusTodo, Priority: domain.PriorityLow}
	pub := &mockPublisher{}
	h := deleteTask(store, mockAuth{id: "U1"}, pub)

	c, rec := newTestContext(http.MethodDelete, "/api/tasks/t1", "")
	c.SetParamNames("id")
	c.SetParamValues("t1")
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(pub.names) != 1 || pub.names[0] != bus.EventTaskDeleted {
		t.Fatalf("unexpected publishes %v", pub.names)
	}
	payload, ok := pub.payloads[0].(map[string]string)
	if !ok || payload["id"] != "t1" {
		t.Fatalf("unexpected payload %+v", pub.payloads[0])
	}
}

func TestGetTasksRejectsInvalidStatus(t *testing.T) {
	h := getTasks(newMockStore(), mockAuth{id: "U1"})
	c, rec := newTestContext(http.MethodGet, "/api/tasks?status=blocked", "")
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateLogPublishesAndDefaultsTimestamp(t *testing.T) {
	store := newMockStore()
	pub := &mockPublisher{}
	h := createLog(store, mockAuth{id: "U1"}, pub)

	c, rec := newTestContext(http.MethodPost, "/api/logs", `{"service":"api","level":"error","message":"boom"}`)
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.logs) != 1 {
		t.Fatalf("expected 1 stored log, got %d", len(store.logs))
	}
	if store.logs[0].Timestamp.IsZero() {
		t.Fatal("timestamp must default to creation time")
	}
	if store.logs[0].UserID != "U1" {
		t.Fatalf("owner must be the caller, got %s", store.logs[0].UserID)
	}
	if len(pub.names) != 1 || pub.names[0] != bus.EventNewLog || pub.rooms[0] != "user-U1" {
		t.Fatalf("unexpected publish %v %v", pub.names, pub.rooms)
	}
}

func TestCreateLogRejectsInvalidLevel(t *testing.T) {
	pub := &mockPublisher{}
	h := createLog(newMockStore(), mockAuth{id: "U1"}, pub)
	c, rec := newTestContext(http.MethodPost, "/api/logs", `{"service":"api","level":"trace","message":"x"}`)
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(pub.names) != 0 {
		t.Fatal("invalid log must not publish")
	}
}

func TestConnectGithubRequiresToken(t *testing.T) {
	store := newMockStore()
	store.users["U1"] = &domain.User{ID: "U1"}
	h := connectGithub(store, mockAuth{id: "U1"})
	c, rec := newTestContext(http.MethodPost, "/api/auth/github", `{}`)
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSyncUserPreservesGithubToken(t *testing.T) {
	store := newMockStore()
	store.users["U1"] = &domain.User{ID: "U1", GithubToken: "ghp_x", GithubConnected: true}
	h := syncUser(store, mockAuth{id: "U1"})
	c, rec := newTestContext(http.MethodPost, "/api/auth/sync", `{"email":"dev@example.com"}`)
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	u := store.users["U1"]
	if u.GithubToken != "ghp_x" {
		t.Fatalf("login sync must not touch the stored credential, got %q", u.GithubToken)
	}
	if u.Email != "dev@example.com" {
		t.Fatalf("profile fields must still update, got %q", u.Email)
	}
}

func TestGetLogsRejectsInvalidLevel(t *testing.T) {
	h := getLogs(newMockStore(), mockAuth{id: "U1"})
	c, rec := newTestContext(http.MethodGet, "/api/logs?level=x%27+or+Level+ne+%27", "")
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLogMetricsGroupsByDay(t *testing.T) {
	store := newMockStore()
	store.logs = []domain.LogEntry{
		{UserID: "U1", Service: "api", Level: domain.LevelError, Timestamp: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
		{UserID: "U1", Service: "api", Level: domain.LevelInfo, Timestamp: time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)},
		{UserID: "U1", Service: "api", Level: domain.LevelInfo, Timestamp: time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)},
	}
	h := logMetrics(store, mockAuth{id: "U1"})
	c, rec := newTestContext(http.MethodGet, "/api/logs/metrics?service=api", "")
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Metrics domain.LogMetrics `json:"metrics"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Metrics.Total != 3 || resp.Metrics.ByLevel[domain.LevelInfo] != 2 {
		t.Fatalf("unexpected metrics: %+v", resp.Metrics)
	}
	want := []domain.LogDayCount{{Date: "2024-05-01", Count: 2}, {Date: "2024-05-02", Count: 1}}
	if len(resp.Metrics.ByDay) != 2 || resp.Metrics.ByDay[0] != want[0] || resp.Metrics.ByDay[1] != want[1] {
		t.Fatalf("unexpected byDay series: %+v", resp.Metrics.ByDay)
	}
}

func TestCleanupLogsReportsCount(t *testing.T) {
	store := newMockStore()
	now := time.Now()
	store.logs = []domain.LogEntry{
		{UserID: "U1", Timestamp: now.AddDate(0, 0, -40)},
		{UserID: "U1", Timestamp: now.AddDate(0, 0, -31)},
		{UserID: "U1", Timestamp: now.AddDate(0, 0, -1)},
	}
	h := cleanupLogs(store, mockAuth{id: "U1"})
	c, rec := newTestContext(http.MethodDelete, "/api/logs/cleanup", "")
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Deleted 2 old log entries") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	if len(store.logs) != 1 {
		t.Fatalf("expected 1 entry kept, got %d", len(store.logs))
	}
}

func TestSyncUserCreatesRecord(t *testing.T) {
	store := newMockStore()
	h := syncUser(store, mockAuth{id: "U1"})
	c, rec := newTestContext(http.MethodPost, "/api/auth/sync", `{"email":"dev@example.com","firstName":"Dev"}`)
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	u := store.users["U1"]
	if u == nil || u.Email != "dev@example.com" {
		t.Fatalf("user not upserted: %+v", u)
	}
	if u.LastLogin.IsZero() {
		t.Fatal("last login must be set")
	}
}

type mockGithubClient struct {
	raw       json.RawMessage
	blob      []byte
	blobType  string
	lastPath  string
	lastQuery url.Values
}

func (m *mockGithubClient) Raw(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	m.lastPath = path
	m.lastQuery = query
	return m.raw, nil
}

func (m *mockGithubClient) Download(ctx context.Context, path string) ([]byte, string, error) {
	m.lastPath = path
	return m.blob, m.blobType, nil
}

func (m *mockGithubClient) Dispatch(ctx context.Context, path string, body any) error {
	m.lastPath = path
	return nil
}

func TestGithubProxyRequiresConnectedAccount(t *testing.T) {
	store := newMockStore()
	store.users["U1"] = &domain.User{ID: "U1"}
	h := getRepos(store, mockAuth{id: "U1"}, func(string) GithubClient { return &mockGithubClient{} })
	c, rec := newTestContext(http.MethodGet, "/api/github/repos", "")
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGithubProxyForwardsUpstream(t *testing.T) {
	store := newMockStore()
	store.users["U1"] = &domain.User{ID: "U1", GithubToken: "ghp_x"}
	cli := &mockGithubClient{raw: json.RawMessage(`[{"name":"r1"}]`)}
	var gotToken string
	h := getRepos(store, mockAuth{id: "U1"}, func(token string) GithubClient {
		gotToken = token
		return cli
	})
	c, rec := newTestContext(http.MethodGet, "/api/github/repos", "")
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotToken != "ghp_x" {
		t.Fatalf("client built with wrong token %q", gotToken)
	}
	if cli.lastPath != "/user/repos" || cli.lastQuery.Get("per_page") != "50" {
		t.Fatalf("unexpected upstream call %s %v", cli.lastPath, cli.lastQuery)
	}
	if !strings.Contains(rec.Body.String(), `"repos"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestWorkflowLogsPassThrough(t *testing.T) {
	store := newMockStore()
	store.users["U1"] = &domain.User{ID: "U1", GithubToken: "ghp_x"}
	cli := &mockGithubClient{blob: []byte("PK\x03\x04logs"), blobType: "application/zip"}
	h := getWorkflowLogs(store, mockAuth{id: "U1"}, func(string) GithubClient { return cli })
	c, rec := newTestContext(http.MethodGet, "/api/ci/o/r/runs/42/logs", "")
	c.SetParamNames("owner", "repo", "runId")
	c.SetParamValues("o", "r", "42")
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if cli.lastPath != "/repos/o/r/actions/runs/42/logs" {
		t.Fatalf("unexpected upstream path %s", cli.lastPath)
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "application/zip" {
		t.Fatalf("unexpected content type %s", got)
	}
	if rec.Body.String() != "PK\x03\x04logs" {
		t.Fatalf("body must pass through untouched, got %q", rec.Body.String())
	}
}
