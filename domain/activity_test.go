package domain

import (
	"testing"
	"time"
)

func TestNormalizeSortsAndTruncates(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := ActivitySnapshot{}
	for i := 0; i < 15; i++ {
		s.Commits = append(s.Commits, Commit{SHA: string(rune('a' + i)), Date: base.Add(time.Duration(i%7) * time.Hour)})
		s.PullRequests = append(s.PullRequests, PullRequest{Number: i, UpdatedAt: base.Add(time.Duration((i*3)%11) * time.Minute)})
		s.Issues = append(s.Issues, Issue{Number: i, UpdatedAt: base.Add(-time.Duration(i) * time.Minute)})
	}
	s.Normalize()
	if len(s.Commits) != 10 || len(s.PullRequests) != 10 || len(s.Issues) != 10 {
		t.Fatalf("expected lists truncated to 10, got %d/%d/%d", len(s.Commits), len(s.PullRequests), len(s.Issues))
	}
	for i := 1; i < len(s.Commits); i++ {
		if s.Commits[i].Date.After(s.Commits[i-1].Date) {
			t.Fatalf("commits not sorted descending at %d", i)
		}
	}
	for i := 1; i < len(s.PullRequests); i++ {
		if s.PullRequests[i].UpdatedAt.After(s.PullRequests[i-1].UpdatedAt) {
			t.Fatalf("pull requests not sorted descending at %d", i)
		}
	}
	for i := 1; i < len(s.Issues); i++ {
		if s.Issues[i].UpdatedAt.After(s.Issues[i-1].UpdatedAt) {
			t.Fatalf("issues not sorted descending at %d", i)
		}
	}
}

func TestNormalizeShortLists(t *testing.T) {
	s := ActivitySnapshot{Commits: []Commit{{SHA: "a"}, {SHA: "b"}}}
	s.Normalize()
	if len(s.Commits) != 2 {
		t.Fatalf("short list must not be padded or trimmed, got %d", len(s.Commits))
	}
}
