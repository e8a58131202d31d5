package domain

import (
	"errors"
	"time"
)

// Task statuses.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in-progress"
	StatusDone       = "done"
)

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Task represents a single board item owned by its assignee.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	Assignee    string     `json:"assignee"`
	Project     string     `json:"project,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Order       int        `json:"order"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TaskUpdate carries a partial task mutation. Nil fields are left untouched.
type TaskUpdate struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	Project     *string    `json:"project,omitempty"`
	Tags        *[]string  `json:"tags,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Order       *int       `json:"order,omitempty"`
}

// TaskOrderChange moves one task to a new order slot and column.
type TaskOrderChange struct {
	ID     string `json:"id"`
	Order  int    `json:"order"`
	Status string `json:"status"`
}

// TaskStats counts a user's tasks per status.
type TaskStats struct {
	Todo       int `json:"todo"`
	InProgress int `json:"in-progress"`
	Done       int `json:"done"`
	Total      int `json:"total"`
}

func ValidStatus(s string) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ApplyDefaults fills the status, priority and order defaults for new tasks.
func (t *Task) ApplyDefaults() {
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
}

// Validate checks the invariants required before persisting a task.
func (t Task) Validate() error {
	if t.Title == "" {
		return errors.New("title is required")
	}
	if t.Assignee == "" {
		return errors.New("assignee is required")
	}
	if !ValidStatus(t.Status) {
		return errors.New("invalid status")
	}
	if !ValidPriority(t.Priority) {
		return errors.New("invalid priority")
	}
	return nil
}

// Validate rejects updates that would leave the task in an invalid state.
func (u TaskUpdate) Validate() error {
	if u.Title != nil && *u.Title == "" {
		return errors.New("title cannot be empty")
	}
	if u.Status != nil && !ValidStatus(*u.Status) {
		return errors.New("invalid status")
	}
	if u.Priority != nil && !ValidPriority(*u.Priority) {
		return errors.New("invalid priority")
	}
	return nil
}
