package storage

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"devboard/domain"
)

type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Status      string `json:"Status"`
	Priority    string `json:"Priority"`
	Project     string `json:"Project"`
	Tags        string `json:"Tags"`
	DueDate     string `json:"DueDate"`
	Order       int    `json:"Order"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		Status:      ent.Status,
		Priority:    ent.Priority,
		Assignee:    ent.PartitionKey,
		Project:     ent.Project,
		Order:       ent.Order,
	}
	if ent.Tags != "" {
		if err := json.Unmarshal([]byte(ent.Tags), &t.Tags); err != nil {
			return domain.Task{}, err
		}
	}
	if ent.DueDate != "" {
		if ts, err := time.Parse(time.RFC3339, ent.DueDate); err == nil {
			t.DueDate = &ts
		}
	}
	if ts, err := time.Parse(time.RFC3339, ent.CreatedAt); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, ent.UpdatedAt); err == nil {
		t.UpdatedAt = ts
	}
	return t, nil
}

func encodeTaskEntity(t domain.Task) (taskEntity, error) {
	ent := taskEntity{
		Entity:      aztables.Entity{PartitionKey: t.Assignee, RowKey: t.ID},
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		Project:     t.Project,
		Order:       t.Order,
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   t.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if len(t.Tags) > 0 {
		data, err := json.Marshal(t.Tags)
		if err != nil {
			return taskEntity{}, err
		}
		ent.Tags = string(data)
	}
	if t.DueDate != nil {
		ent.DueDate = t.DueDate.UTC().Format(time.RFC3339)
	}
	return ent, nil
}

// CreateTask persists a new task record.
func (s *Storage) CreateTask(ctx context.Context, t domain.Task) error {
	ent, err := encodeTaskEntity(t)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.taskTable.UpsertEntity(ctx, payload, nil)
	return err
}

// GetTask retrieves one of the user's tasks, or nil when it does not exist.
func (s *Storage) GetTask(ctx context.Context, userID, id string) (*domain.Task, error) {
	ent, err := s.taskTable.GetEntity(ctx, userID, id, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	t, err := decodeTaskEntity(ent.Value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTasks returns the user's tasks, optionally filtered by status and
// project, ordered by manual order then newest first.
func (s *Storage) ListTasks(ctx context.Context, userID, status, project string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + escapeFilter(userID) + "'"
	if status != "" {
		filter += " and Status eq '" + escapeFilter(status) + "'"
	}
	if project != "" {
		filter += " and Project eq '" + escapeFilter(project) + "'"
	}
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			t, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Order != tasks[j].Order {
			return tasks[i].Order < tasks[j].Order
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// UpdateTask merges the given changes into a task and returns the updated
// record, or nil when the task does not exist.
func (s *Storage) UpdateTask(ctx context.Context, userID, id string, upd domain.TaskUpdate, now time.Time) (*domain.Task, error) {
	existing, err := s.GetTask(ctx, userID, id)
	if err != nil || existing == nil {
		return nil, err
	}
	changes := map[string]any{
		"PartitionKey": userID,
		"RowKey":       id,
		"UpdatedAt":    now.UTC().Format(time.RFC3339),
	}
	if upd.Title != nil {
		changes["Title"] = *upd.Title
	}
	if upd.Description != nil {
		changes["Description"] = *upd.Description
	}
	if upd.Status != nil {
		changes["Status"] = *upd.Status
	}
	if upd.Priority != nil {
		changes["Priority"] = *upd.Priority
	}
	if upd.Project != nil {
		changes["Project"] = *upd.Project
	}
	if upd.Tags != nil {
		data, err := json.Marshal(*upd.Tags)
		if err != nil {
			return nil, err
		}
		changes["Tags"] = string(data)
	}
	if upd.DueDate != nil {
		changes["DueDate"] = upd.DueDate.UTC().Format(time.RFC3339)
	}
	if upd.Order != nil {
		changes["Order"] = *upd.Order
	}
	payload, err := json.Marshal(changes)
	if err != nil {
		return nil, err
	}
	et := azcore.ETagAny
	if _, err := s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge}); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return s.GetTask(ctx, userID, id)
}

// DeleteTask removes one of the user's tasks. It reports whether a record
// was actually deleted.
func (s *Storage) DeleteTask(ctx context.Context, userID, id string) (bool, error) {
	if _, err := s.taskTable.DeleteEntity(ctx, userID, id, nil); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReorderTasks applies a batch of manual order changes for the user's board.
func (s *Storage) ReorderTasks(ctx context.Context, userID string, changes []domain.TaskOrderChange, now time.Time) error {
	et := azcore.ETagAny
	for _, ch := range changes {
		merge := map[string]any{
			"PartitionKey": userID,
			"RowKey":       ch.ID,
			"Order":        ch.Order,
			"UpdatedAt":    now.UTC().Format(time.RFC3339),
		}
		if ch.Status != "" {
			merge["Status"] = ch.Status
		}
		payload, err := json.Marshal(merge)
		if err != nil {
			return err
		}
		if _, err := s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge}); err != nil && !isNotFound(err) {
			return err
		}
	}
	return nil
}
