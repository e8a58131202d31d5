// Package api exposes the dashboard's REST surface and the SSE live stream.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"devboard/bus"
	"devboard/domain"
)

// Store is the persistence surface the handlers depend on.
type Store interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	UpsertUser(ctx context.Context, u domain.User) error
	UpdateProfile(ctx context.Context, id string, upd domain.ProfileUpdate) error
	SetGithubToken(ctx context.Context, id, token string) error

	CreateTask(ctx context.Context, t domain.Task) error
	GetTask(ctx context.Context, userID, id string) (*domain.Task, error)
	ListTasks(ctx context.Context, userID, status, project string) ([]domain.Task, error)
	UpdateTask(ctx context.Context, userID, id string, upd domain.TaskUpdate, now time.Time) (*domain.Task, error)
	DeleteTask(ctx context.Context, userID, id string) (bool, error)
	ReorderTasks(ctx context.Context, userID string, changes []domain.TaskOrderChange, now time.Time) error

	InsertLog(ctx context.Context, l domain.LogEntry) error
	ListLogs(ctx context.Context, userID, service, level string, limit, page int) ([]domain.LogEntry, int, error)
	ListLogsSince(ctx context.Context, userID, service string, since time.Time) ([]domain.LogEntry, error)
	DeleteUserLogsBefore(ctx context.Context, userID string, cutoff time.Time) (int, error)
}

// Authenticator resolves the caller's identity from the Authorization header.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Publisher pushes events onto a user's live-update room.
type Publisher interface {
	Publish(ctx context.Context, room, name string, payload any) error
}

// Streamer hands out live event channels for stream connections.
type Streamer interface {
	Connect(id string) <-chan bus.Event
	Join(id, room string)
	Disconnect(id string)
}

// ActivityCache primes new stream connections with the latest snapshot.
type ActivityCache interface {
	LoadActivity(ctx context.Context, userID string) (*domain.ActivitySnapshot, bool)
}

// GithubClient is the per-user upstream client used by the proxy endpoints.
type GithubClient interface {
	Raw(ctx context.Context, path string, query url.Values) (json.RawMessage, error)
	Download(ctx context.Context, path string) ([]byte, string, error)
	Dispatch(ctx context.Context, path string, body any) error
}

// GithubClientFactory builds an upstream client for one user's credential.
type GithubClientFactory func(token string) GithubClient

// Config bundles the dependencies handed to Register.
type Config struct {
	Store         Store
	Auth          Authenticator
	Bus           Publisher
	Stream        Streamer
	Cache         ActivityCache
	Github        GithubClientFactory
	WebhookSecret string
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, cfg Config) {
	e.GET("/health", healthz())

	e.POST("/api/auth/sync", syncUser(cfg.Store, cfg.Auth))
	e.GET("/api/auth/profile", getProfile(cfg.Store, cfg.Auth))
	e.PUT("/api/auth/profile", updateProfile(cfg.Store, cfg.Auth))
	e.POST("/api/auth/github", connectGithub(cfg.Store, cfg.Auth))
	e.DELETE("/api/auth/github", disconnectGithub(cfg.Store, cfg.Auth))

	e.GET("/api/tasks", getTasks(cfg.Store, cfg.Auth))
	e.POST("/api/tasks", createTask(cfg.Store, cfg.Auth, cfg.Bus))
	e.GET("/api/tasks/stats", taskStats(cfg.Store, cfg.Auth))
	e.GET("/api/tasks/overdue", overdueTasks(cfg.Store, cfg.Auth))
	e.PUT("/api/tasks/order", reorderTasks(cfg.Store, cfg.Auth))
	e.GET("/api/tasks/:id", getTask(cfg.Store, cfg.Auth))
	e.PUT("/api/tasks/:id", updateTask(cfg.Store, cfg.Auth, cfg.Bus))
	e.DELETE("/api/tasks/:id", deleteTask(cfg.Store, cfg.Auth, cfg.Bus))

	e.GET("/api/logs", getLogs(cfg.Store, cfg.Auth))
	e.POST("/api/logs", createLog(cfg.Store, cfg.Auth, cfg.Bus))
	e.GET("/api/logs/metrics", logMetrics(cfg.Store, cfg.Auth))
	e.DELETE("/api/logs/cleanup", cleanupLogs(cfg.Store, cfg.Auth))
	e.GET("/api/logs/service/:service", getLogsByService(cfg.Store, cfg.Auth))

	e.GET("/api/github/repos", getRepos(cfg.Store, cfg.Auth, cfg.Github))
	e.GET("/api/github/repos/:owner/:repo", getRepoDetails(cfg.Store, cfg.Auth, cfg.Github))
	e.GET("/api/github/repos/:owner/:repo/commits", getCommits(cfg.Store, cfg.Auth, cfg.Github))
	e.GET("/api/github/repos/:owner/:repo/pulls", getPullRequests(cfg.Store, cfg.Auth, cfg.Github))
	e.GET("/api/github/repos/:owner/:repo/issues", getIssues(cfg.Store, cfg.Auth, cfg.Github))
	e.GET("/api/github/activity", getActivity(cfg.Store, cfg.Auth, cfg.Github))

	e.GET("/api/ci/:owner/:repo/runs", getWorkflowRuns(cfg.Store, cfg.Auth, cfg.Github))
	e.GET("/api/ci/:owner/:repo/runs/:runId", getWorkflowRun(cfg.Store, cfg.Auth, cfg.Github))
	e.GET("/api/ci/:owner/:repo/runs/:runId/logs", getWorkflowLogs(cfg.Store, cfg.Auth, cfg.Github))
	e.POST("/api/ci/:owner/:repo/workflows/:workflowId/dispatches", triggerWorkflow(cfg.Store, cfg.Auth, cfg.Github))

	e.POST("/api/webhooks/github", githubWebhook(cfg.WebhookSecret))

	e.GET("/api/stream", streamEvents(cfg.Auth, cfg.Stream, cfg.Cache))
}

const requestBodyMaxSize = 1 << 20

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// publishToUser runs the persist-then-publish bridge's second half. Publish
// failures only cost liveness, never correctness, so they are just logged.
func publishToUser(c echo.Context, pub Publisher, userID, name string, payload any) {
	if err := pub.Publish(c.Request().Context(), bus.RoomForUser(userID), name, payload); err != nil {
		c.Logger().Errorf("publish %s: %v", name, err)
	}
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":    "OK",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
