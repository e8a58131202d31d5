package api

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"devboard/bus"
	"devboard/domain"
)

type logsPage struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type logsResponse struct {
	Logs       []domain.LogEntry `json:"logs"`
	Pagination logsPage          `json:"pagination"`
}

func getLogs(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		level := c.QueryParam("level")
		if level != "" && !domain.ValidLogLevel(level) {
			return c.String(http.StatusBadRequest, "invalid level")
		}
		limit := intQueryParam(c, "limit", 50)
		page := intQueryParam(c, "page", 1)
		logs, total, err := store.ListLogs(ctx, userID, c.QueryParam("service"), level, limit, page)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to fetch logs")
		}
		pages := (total + limit - 1) / limit
		return c.JSON(http.StatusOK, logsResponse{
			Logs:       logs,
			Pagination: logsPage{Page: page, Limit: limit, Total: total, Pages: pages},
		})
	}
}

type logRequest struct {
	Service   string         `json:"service"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata"`
	Timestamp *time.Time     `json:"timestamp"`
}

func createLog(store Store, auth Authenticator, pub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req logRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		entry := domain.LogEntry{
			ID:        uuid.NewString(),
			Service:   req.Service,
			Level:     req.Level,
			Message:   req.Message,
			Metadata:  req.Metadata,
			Timestamp: time.Now(),
			UserID:    userID,
		}
		if req.Timestamp != nil {
			entry.Timestamp = *req.Timestamp
		}
		if err := entry.Validate(); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		if err := store.InsertLog(ctx, entry); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to create log")
		}
		publishToUser(c, pub, userID, bus.EventNewLog, entry)
		return c.JSON(http.StatusCreated, map[string]domain.LogEntry{"log": entry})
	}
}

func getLogsByService(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		limit := intQueryParam(c, "limit", 50)
		logs, _, err := store.ListLogs(ctx, userID, c.Param("service"), "", limit, 1)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to fetch logs by service")
		}
		return c.JSON(http.StatusOK, map[string][]domain.LogEntry{"logs": logs})
	}
}

func logMetrics(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		service := c.QueryParam("service")
		if service == "" {
			return c.String(http.StatusBadRequest, "service is required")
		}
		days := intQueryParam(c, "days", 7)
		since := time.Now().AddDate(0, 0, -days)
		logs, err := store.ListLogsSince(ctx, userID, service, since)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to fetch log metrics")
		}
		metrics := domain.LogMetrics{
			Total: len(logs),
			ByLevel: map[string]int{
				domain.LevelError: 0,
				domain.LevelWarn:  0,
				domain.LevelInfo:  0,
				domain.LevelDebug: 0,
			},
			ByDay: []domain.LogDayCount{},
		}
		byDay := map[string]int{}
		for _, l := range logs {
			metrics.ByLevel[l.Level]++
			byDay[l.Timestamp.UTC().Format("2006-01-02")]++
		}
		dayKeys := make([]string, 0, len(byDay))
		for day := range byDay {
			dayKeys = append(dayKeys, day)
		}
		sort.Strings(dayKeys)
		for _, day := range dayKeys {
			metrics.ByDay = append(metrics.ByDay, domain.LogDayCount{Date: day, Count: byDay[day]})
		}
		return c.JSON(http.StatusOK, map[string]domain.LogMetrics{"metrics": metrics})
	}
}

// cleanupLogs removes the caller's log entries older than the retention
// window, without waiting for the nightly sweep.
func cleanupLogs(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		cutoff := time.Now().AddDate(0, 0, -30)
		deleted, err := store.DeleteUserLogsBefore(ctx, userID, cutoff)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to cleanup old logs")
		}
		return c.JSON(http.StatusOK, map[string]string{
			"message": fmt.Sprintf("Deleted %d old log entries", deleted),
		})
	}
}

func intQueryParam(c echo.Context, name string, fallback int) int {
	v := c.QueryParam(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
