package storage

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"devboard/domain"
)

type logEntity struct {
	aztables.Entity
	Service  string `json:"Service"`
	Level    string `json:"Level"`
	Message  string `json:"Message"`
	Metadata string `json:"Metadata"`
	LoggedAt int64  `json:"LoggedAt"`
}

func decodeLogEntity(data []byte) (domain.LogEntry, error) {
	var ent logEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.LogEntry{}, err
	}
	l := domain.LogEntry{
		ID:        ent.RowKey,
		Service:   ent.Service,
		Level:     ent.Level,
		Message:   ent.Message,
		Timestamp: time.Unix(ent.LoggedAt, 0).UTC(),
		UserID:    ent.PartitionKey,
	}
	if ent.Metadata != "" {
		if err := json.Unmarshal([]byte(ent.Metadata), &l.Metadata); err != nil {
			return domain.LogEntry{}, err
		}
	}
	return l, nil
}

// InsertLog appends one log entry.
func (s *Storage) InsertLog(ctx context.Context, l domain.LogEntry) error {
	ent := logEntity{
		Entity:   aztables.Entity{PartitionKey: l.UserID, RowKey: l.ID},
		Service:  l.Service,
		Level:    l.Level,
		Message:  l.Message,
		LoggedAt: l.Timestamp.Unix(),
	}
	if len(l.Metadata) > 0 {
		data, err := json.Marshal(l.Metadata)
		if err != nil {
			return err
		}
		ent.Metadata = string(data)
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.logTable.UpsertEntity(ctx, payload, nil)
	return err
}

// ListLogs returns one page of the user's log entries, newest first, plus the
// total number of entries matching the filter.
func (s *Storage) ListLogs(ctx context.Context, userID, service, level string, limit, page int) ([]domain.LogEntry, int, error) {
	filter := "PartitionKey eq '" + escapeFilter(userID) + "'"
	if service != "" {
		filter += " and Service eq '" + escapeFilter(service) + "'"
	}
	if level != "" {
		filter += " and Level eq '" + escapeFilter(level) + "'"
	}
	logs, err := s.queryLogs(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Timestamp.After(logs[j].Timestamp)
	})
	total := len(logs)
	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= total {
		return []domain.LogEntry{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return logs[start:end], total, nil
}

// ListLogsSince returns the user's entries for one service newer than the
// given time, newest first.
func (s *Storage) ListLogsSince(ctx context.Context, userID, service string, since time.Time) ([]domain.LogEntry, error) {
	filter := "PartitionKey eq '" + escapeFilter(userID) + "' and Service eq '" + escapeFilter(service) +
		"' and LoggedAt ge " + strconv.FormatInt(since.Unix(), 10)
	logs, err := s.queryLogs(ctx, filter)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Timestamp.After(logs[j].Timestamp)
	})
	return logs, nil
}

// DeleteLogsBefore removes every log entry older than the cutoff, across all
// users, and reports how many were removed.
func (s *Storage) DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	filter := "LoggedAt lt " + strconv.FormatInt(cutoff.Unix(), 10)
	return s.deleteLogsMatching(ctx, filter)
}

// DeleteUserLogsBefore removes one user's log entries older than the cutoff
// and reports how many were removed.
func (s *Storage) DeleteUserLogsBefore(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	filter := "PartitionKey eq '" + escapeFilter(userID) + "' and LoggedAt lt " +
		strconv.FormatInt(cutoff.Unix(), 10)
	return s.deleteLogsMatching(ctx, filter)
}

func (s *Storage) deleteLogsMatching(ctx context.Context, filter string) (int, error) {
	pager := s.logTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	deleted := 0
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return deleted, err
		}
		for _, e := range resp.Entities {
			var ent logEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return deleted, err
			}
			if _, err := s.logTable.DeleteEntity(ctx, ent.PartitionKey, ent.RowKey, nil); err != nil {
				if isNotFound(err) {
					continue
				}
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}

func (s *Storage) queryLogs(ctx context.Context, filter string) ([]domain.LogEntry, error) {
	pager := s.logTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	logs := []domain.LogEntry{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			l, err := decodeLogEntity(e)
			if err != nil {
				return nil, err
			}
			logs = append(logs, l)
		}
	}
	return logs, nil
}
