package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"devboard/bus"
	"devboard/domain"
)

type taskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	Project     string     `json:"project"`
	Tags        []string   `json:"tags"`
	DueDate     *time.Time `json:"dueDate"`
	Order       int        `json:"order"`
}

func getTasks(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics, ctx := newTaskRequestMetrics(c.Request().Context(), log.StandardLogger())
		authStart := time.Now()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			metrics.SetErrorStage("auth")
			metrics.Log(http.StatusUnauthorized, err)
			return c.String(http.StatusUnauthorized, err.Error())
		}
		metrics.ObserveAuth(time.Since(authStart))
		status := c.QueryParam("status")
		if status != "" && !domain.ValidStatus(status) {
			metrics.SetErrorStage("validate")
			metrics.Log(http.StatusBadRequest, nil)
			return c.String(http.StatusBadRequest, "invalid status")
		}
		fetchStart := time.Now()
		tasks, err := store.ListTasks(ctx, userID, status, c.QueryParam("project"))
		if err != nil {
			c.Logger().Error(err)
			metrics.SetErrorStage("storage")
			metrics.Log(http.StatusInternalServerError, err)
			return c.String(http.StatusInternalServerError, "failed to fetch tasks")
		}
		metrics.ObserveFetch(time.Since(fetchStart))
		metrics.SetTasksReturned(len(tasks))
		metrics.Log(http.StatusOK, nil)
		return c.JSON(http.StatusOK, map[string][]domain.Task{"tasks": tasks})
	}
}

func createTask(store Store, auth Authenticator, pub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req taskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		now := time.Now()
		task := domain.Task{
			ID:          uuid.NewString(),
			Title:       req.Title,
			Description: req.Description,
			Status:      req.Status,
			Priority:    req.Priority,
			Assignee:    userID,
			Project:     req.Project,
			Tags:        req.Tags,
			DueDate:     req.DueDate,
			Order:       req.Order,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		task.ApplyDefaults()
		if err := task.Validate(); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		if err := store.CreateTask(ctx, task); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to create task")
		}
		publishToUser(c, pub, userID, bus.EventTaskCreated, task)
		return c.JSON(http.StatusCreated, map[string]domain.Task{"task": task})
	}
}

func getTask(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		task, err := store.GetTask(ctx, userID, c.Param("id"))
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to fetch task")
		}
		if task == nil {
			return c.String(http.StatusNotFound, "task not found")
		}
		return c.JSON(http.StatusOK, map[string]*domain.Task{"task": task})
	}
}

func updateTask(store Store, auth Authenticator, pub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var upd domain.TaskUpdate
		if err := decodeBody(c, &upd); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := upd.Validate(); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		task, err := store.UpdateTask(ctx, userID, c.Param("id"), upd, time.Now())
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to update task")
		}
		if task == nil {
			return c.String(http.StatusNotFound, "task not found")
		}
		publishToUser(c, pub, userID, bus.EventTaskUpdated, *task)
		return c.JSON(http.StatusOK, map[string]*domain.Task{"task": task})
	}
}

func deleteTask(store Store, auth Authenticator, pub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		id := c.Param("id")
		deleted, err := store.DeleteTask(ctx, userID, id)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to delete task")
		}
		if !deleted {
			return c.String(http.StatusNotFound, "task not found")
		}
		publishToUser(c, pub, userID, bus.EventTaskDeleted, map[string]string{"id": id})
		return c.JSON(http.StatusOK, map[string]string{"message": "Task deleted successfully"})
	}
}

type reorderRequest struct {
	Tasks []domain.TaskOrderChange `json:"tasks"`
}

func reorderTasks(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req reorderRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		for _, ch := range req.Tasks {
			if ch.ID == "" {
				return c.String(http.StatusBadRequest, "task id is required")
			}
			if ch.Status != "" && !domain.ValidStatus(ch.Status) {
				return c.String(http.StatusBadRequest, "invalid status")
			}
		}
		if err := store.ReorderTasks(ctx, userID, req.Tasks, time.Now()); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to update task order")
		}
		return c.JSON(http.StatusOK, map[string]string{"message": "Task order updated successfully"})
	}
}

func taskStats(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		tasks, err := store.ListTasks(ctx, userID, "", "")
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to fetch task statistics")
		}
		stats := domain.TaskStats{Total: len(tasks)}
		for _, t := range tasks {
			switch t.Status {
			case domain.StatusTodo:
				stats.Todo++
			case domain.StatusInProgress:
				stats.InProgress++
			case domain.StatusDone:
				stats.Done++
			}
		}
		return c.JSON(http.StatusOK, map[string]domain.TaskStats{"stats": stats})
	}
}

func overdueTasks(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		tasks, err := store.ListTasks(ctx, userID, "", "")
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to fetch overdue tasks")
		}
		now := time.Now()
		overdue := []domain.Task{}
		for _, t := range tasks {
			if t.Status != domain.StatusDone && t.DueDate != nil && t.DueDate.Before(now) {
				overdue = append(overdue, t)
			}
		}
		return c.JSON(http.StatusOK, map[string][]domain.Task{"tasks": overdue})
	}
}
