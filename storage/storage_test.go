package storage

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"devboard/domain"
)

func TestDecodeUserEntity(t *testing.T) {
	data := []byte(`{"PartitionKey":"user","RowKey":"u1","Email":"dev@example.com","GithubToken":"ghp_x","Activity":"{\"timestamp\":\"2024-05-01T12:00:00Z\",\"repositories\":[],\"commits\":[],\"pullRequests\":[],\"issues\":[]}","LastGithubSync":"2024-05-01T12:00:00Z","LastLogin":"2024-04-30T08:00:00Z"}`)
	u, err := decodeUserEntity(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.ID != "u1" || u.Email != "dev@example.com" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if !u.GithubConnected {
		t.Fatal("expected github connected")
	}
	if u.GithubActivity == nil || !u.GithubActivity.Timestamp.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected activity: %+v", u.GithubActivity)
	}
	if u.LastGithubSync == nil {
		t.Fatal("expected last sync time")
	}
}

func TestUserSyncPropertiesPreserveCredential(t *testing.T) {
	u := domain.User{
		ID:        "u1",
		Email:     "dev@example.com",
		FirstName: "Dev",
		LastLogin: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	props := userSyncProperties(u)
	for _, key := range []string{"GithubToken", "Activity", "LastGithubSync"} {
		if _, present := props[key]; present {
			t.Fatalf("sync merge payload must not carry %s", key)
		}
	}
	if props["Email"] != "dev@example.com" || props["RowKey"] != "u1" {
		t.Fatalf("unexpected payload: %+v", props)
	}
	if props["LastLogin"] != "2024-05-01T12:00:00Z" {
		t.Fatalf("unexpected last login: %v", props["LastLogin"])
	}
}

func TestEscapeFilter(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"api", "api"},
		{"x' or Level ne '", "x'' or Level ne ''"},
		{"o'brien", "o''brien"},
	}
	for _, tc := range cases {
		if got := escapeFilter(tc.in); got != tc.want {
			t.Fatalf("escapeFilter(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDecodeTaskEntityRoundTrip(t *testing.T) {
	due := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	task := domain.Task{
		ID:        "t1",
		Title:     "Fix bug",
		Status:    domain.StatusTodo,
		Priority:  domain.PriorityMedium,
		Assignee:  "u1",
		Tags:      []string{"backend", "urgent"},
		DueDate:   &due,
		Order:     3,
		CreatedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC),
	}
	ent, err := encodeTaskEntity(task)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if ent.PartitionKey != "u1" || ent.RowKey != "t1" {
		t.Fatalf("unexpected keys: %s/%s", ent.PartitionKey, ent.RowKey)
	}
	data := []byte(`{"PartitionKey":"u1","RowKey":"t1","Title":"Fix bug","Status":"todo","Priority":"medium","Tags":"[\"backend\",\"urgent\"]","DueDate":"2024-06-01T00:00:00Z","Order":3,"CreatedAt":"2024-05-01T09:00:00Z","UpdatedAt":"2024-05-02T09:00:00Z"}`)
	got, err := decodeTaskEntity(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Title != "Fix bug" || got.Order != 3 || len(got.Tags) != 2 {
		t.Fatalf("unexpected task: %+v", got)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Fatalf("unexpected due date: %v", got.DueDate)
	}
}

func TestDecodeLogEntity(t *testing.T) {
	data := []byte(`{"PartitionKey":"u1","RowKey":"l1","Service":"api","Level":"error","Message":"boom","Metadata":"{\"code\":500}","LoggedAt":1714557600}`)
	l, err := decodeLogEntity(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if l.UserID != "u1" || l.Service != "api" || l.Level != "error" {
		t.Fatalf("unexpected log: %+v", l)
	}
	if l.Metadata["code"] != float64(500) {
		t.Fatalf("unexpected metadata: %+v", l.Metadata)
	}
	if l.Timestamp.Unix() != 1714557600 {
		t.Fatalf("unexpected timestamp: %v", l.Timestamp)
	}
}

func TestActivityCacheRoundTrip(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer m.Close()
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rc.Close()

	cache := NewCache(rc)
	ctx := context.Background()
	snap := domain.ActivitySnapshot{
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Commits:   []domain.Commit{{SHA: "abc"}},
	}
	cache.StoreActivity(ctx, "u1", snap)
	got, ok := cache.LoadActivity(ctx, "u1")
	if !ok {
		t.Fatal("expected cached snapshot")
	}
	if len(got.Commits) != 1 || got.Commits[0].SHA != "abc" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if _, ok := cache.LoadActivity(ctx, "u2"); ok {
		t.Fatal("unexpected snapshot for unknown user")
	}
}

func TestActivityCacheCorruptValue(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer m.Close()
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rc.Close()

	m.Set("activity:u1", "not-json")
	cache := NewCache(rc)
	if _, ok := cache.LoadActivity(context.Background(), "u1"); ok {
		t.Fatal("corrupt value must miss")
	}
	if m.Exists("activity:u1") {
		t.Fatal("corrupt value must be evicted")
	}
}
