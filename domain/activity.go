package domain

import (
	"sort"
	"time"
)

// Snapshots keep at most this many commits, pull requests and issues.
const maxRecentItems = 10

// Repository is one entry of a snapshot's repository list.
type Repository struct {
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"`
	Description string    `json:"description,omitempty"`
	Stars       int       `json:"stars"`
	Forks       int       `json:"forks"`
	Language    string    `json:"language,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
	URL         string    `json:"url"`
}

// Commit is one commit authored within the snapshot window.
type Commit struct {
	SHA        string    `json:"sha"`
	Message    string    `json:"message"`
	Author     string    `json:"author"`
	Date       time.Time `json:"date"`
	Repository string    `json:"repository"`
	URL        string    `json:"url"`
}

// PullRequest is one pull request in a snapshot.
type PullRequest struct {
	ID         int64     `json:"id"`
	Number     int       `json:"number"`
	Title      string    `json:"title"`
	State      string    `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Repository string    `json:"repository"`
	URL        string    `json:"url"`
	Author     string    `json:"author"`
}

// Issue has the same shape as PullRequest; GitHub models them alike.
type Issue struct {
	ID         int64     `json:"id"`
	Number     int       `json:"number"`
	Title      string    `json:"title"`
	State      string    `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Repository string    `json:"repository"`
	URL        string    `json:"url"`
	Author     string    `json:"author"`
}

// ActivitySnapshot is the complete GitHub activity summary for one user.
// It replaces any previous snapshot wholesale on every successful sync.
type ActivitySnapshot struct {
	Timestamp    time.Time     `json:"timestamp"`
	Repositories []Repository  `json:"repositories"`
	Commits      []Commit      `json:"commits"`
	PullRequests []PullRequest `json:"pullRequests"`
	Issues       []Issue       `json:"issues"`
}

// Normalize sorts commits by authored date and pull requests and issues by
// update time, newest first, then truncates each list to the ten most recent.
// Consumers rely on this ordering and must not re-sort.
func (s *ActivitySnapshot) Normalize() {
	sort.SliceStable(s.Commits, func(i, j int) bool {
		return s.Commits[i].Date.After(s.Commits[j].Date)
	})
	sort.SliceStable(s.PullRequests, func(i, j int) bool {
		return s.PullRequests[i].UpdatedAt.After(s.PullRequests[j].UpdatedAt)
	})
	sort.SliceStable(s.Issues, func(i, j int) bool {
		return s.Issues[i].UpdatedAt.After(s.Issues[j].UpdatedAt)
	})
	if len(s.Commits) > maxRecentItems {
		s.Commits = s.Commits[:maxRecentItems]
	}
	if len(s.PullRequests) > maxRecentItems {
		s.PullRequests = s.PullRequests[:maxRecentItems]
	}
	if len(s.Issues) > maxRecentItems {
		s.Issues = s.Issues[:maxRecentItems]
	}
}
