package github

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"devboard/domain"
)

// ErrNoCredential means the user has no GitHub token; callers skip the user.
var ErrNoCredential = errors.New("missing github credential")

// Fetch windows, matching the upstream rate-limit budget: repos to list,
// repos to scan for commits, repos to scan for pulls and issues.
const (
	repoListSize    = 10
	commitRepoLimit = 5
	issueRepoLimit  = 3
	perRepoPageSize = 5
	commitWindow    = 7 * 24 * time.Hour
)

// Fetcher assembles normalized activity snapshots for one credential at a
// time. It never persists or publishes; that is the scheduler's job.
type Fetcher struct {
	baseURL string
	now     func() time.Time
}

// NewFetcher creates a Fetcher against the given API base URL.
func NewFetcher(baseURL string) *Fetcher {
	return &Fetcher{baseURL: baseURL, now: time.Now}
}

// Fetch builds a snapshot of the credential owner's recent GitHub activity.
// A failing per-repository call is logged and skipped; only a failure to list
// repositories at all aborts the fetch.
func (f *Fetcher) Fetch(ctx context.Context, token string) (*domain.ActivitySnapshot, error) {
	if token == "" {
		return nil, ErrNoCredential
	}
	cli := NewClient(f.baseURL, token)
	repos, err := cli.ListUserRepos(ctx, "updated", repoListSize)
	if err != nil {
		return nil, err
	}

	snap := &domain.ActivitySnapshot{Timestamp: f.now()}
	for _, r := range repos {
		snap.Repositories = append(snap.Repositories, domain.Repository{
			Name:        r.Name,
			FullName:    r.FullName,
			Description: r.Description,
			Stars:       r.Stars,
			Forks:       r.Forks,
			Language:    r.Language,
			UpdatedAt:   r.UpdatedAt,
			URL:         r.HTMLURL,
		})
	}

	since := f.now().Add(-commitWindow)
	for _, r := range firstN(repos, commitRepoLimit) {
		commits, err := cli.ListCommits(ctx, r.Owner.Login, r.Name, perRepoPageSize, since)
		if err != nil {
			log.Errorf("fetch commits for %s: %v", r.FullName, err)
			continue
		}
		for _, c := range commits {
			snap.Commits = append(snap.Commits, domain.Commit{
				SHA:        c.SHA,
				Message:    c.Commit.Message,
				Author:     c.Commit.Author.Name,
				Date:       c.Commit.Author.Date,
				Repository: r.Name,
				URL:        c.HTMLURL,
			})
		}
	}

	for _, r := range firstN(repos, issueRepoLimit) {
		pulls, err := cli.ListPulls(ctx, r.Owner.Login, r.Name, "all", "updated", perRepoPageSize)
		if err != nil {
			log.Errorf("fetch pull requests for %s: %v", r.FullName, err)
			continue
		}
		for _, p := range pulls {
			snap.PullRequests = append(snap.PullRequests, domain.PullRequest{
				ID:         p.ID,
				Number:     p.Number,
				Title:      p.Title,
				State:      p.State,
				CreatedAt:  p.CreatedAt,
				UpdatedAt:  p.UpdatedAt,
				Repository: r.Name,
				URL:        p.HTMLURL,
				Author:     p.User.Login,
			})
		}
	}

	for _, r := range firstN(repos, issueRepoLimit) {
		issues, err := cli.ListIssues(ctx, r.Owner.Login, r.Name, "all", "updated", perRepoPageSize)
		if err != nil {
			log.Errorf("fetch issues for %s: %v", r.FullName, err)
			continue
		}
		for _, is := range issues {
			snap.Issues = append(snap.Issues, domain.Issue{
				ID:         is.ID,
				Number:     is.Number,
				Title:      is.Title,
				State:      is.State,
				CreatedAt:  is.CreatedAt,
				UpdatedAt:  is.UpdatedAt,
				Repository: r.Name,
				URL:        is.HTMLURL,
				Author:     is.User.Login,
			})
		}
	}

	snap.Normalize()
	return snap, nil
}

func firstN(repos []Repo, n int) []Repo {
	if len(repos) < n {
		return repos
	}
	return repos[:n]
}
