// Package github is a minimal client for the GitHub REST API, covering only
// the calls the dashboard consumes.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const requestTimeout = 10 * time.Second

// Client performs bearer-authenticated calls for one user.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given API base URL and access token.
func NewClient(baseURL, token string) *Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	hc := oauth2.NewClient(context.Background(), src)
	hc.Timeout = requestTimeout
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: hc}
}

// Repo is the subset of a repository response the dashboard uses.
type Repo struct {
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"`
	Description string    `json:"description"`
	Stars       int       `json:"stargazers_count"`
	Forks       int       `json:"forks_count"`
	Language    string    `json:"language"`
	UpdatedAt   time.Time `json:"updated_at"`
	HTMLURL     string    `json:"html_url"`
	Owner       struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// CommitItem is one entry of a repository commit listing.
type CommitItem struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

// IssueItem is one entry of a pull request or issue listing; GitHub returns
// the same shape for both.
type IssueItem struct {
	ID        int64     `json:"id"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	HTMLURL   string    `json:"html_url"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github: GET %s: %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ListUserRepos lists the authenticated user's repositories.
func (c *Client) ListUserRepos(ctx context.Context, sort string, perPage int) ([]Repo, error) {
	q := url.Values{"sort": {sort}, "per_page": {strconv.Itoa(perPage)}}
	var repos []Repo
	if err := c.get(ctx, "/user/repos", q, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// ListCommits lists a repository's commits authored since the given time.
func (c *Client) ListCommits(ctx context.Context, owner, repo string, perPage int, since time.Time) ([]CommitItem, error) {
	q := url.Values{
		"per_page": {strconv.Itoa(perPage)},
		"since":    {since.UTC().Format(time.RFC3339)},
	}
	var commits []CommitItem
	if err := c.get(ctx, "/repos/"+owner+"/"+repo+"/commits", q, &commits); err != nil {
		return nil, err
	}
	return commits, nil
}

// ListPulls lists a repository's pull requests.
func (c *Client) ListPulls(ctx context.Context, owner, repo, state, sort string, perPage int) ([]IssueItem, error) {
	q := url.Values{"state": {state}, "per_page": {strconv.Itoa(perPage)}}
	if sort != "" {
		q.Set("sort", sort)
	}
	var pulls []IssueItem
	if err := c.get(ctx, "/repos/"+owner+"/"+repo+"/pulls", q, &pulls); err != nil {
		return nil, err
	}
	return pulls, nil
}

// ListIssues lists a repository's issues.
func (c *Client) ListIssues(ctx context.Context, owner, repo, state, sort string, perPage int) ([]IssueItem, error) {
	q := url.Values{"state": {state}, "per_page": {strconv.Itoa(perPage)}}
	if sort != "" {
		q.Set("sort", sort)
	}
	var issues []IssueItem
	if err := c.get(ctx, "/repos/"+owner+"/"+repo+"/issues", q, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// Raw proxies an arbitrary GET and returns the upstream JSON untouched. The
// REST proxy endpoints forward responses to the browser as-is.
func (c *Client) Raw(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.get(ctx, path, query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Download fetches a non-JSON resource, following GitHub's redirect to the
// archive host, and returns the body with its content type.
func (c *Client) Download(ctx context.Context, path string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("github: GET %s: %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// Dispatch POSTs a workflow dispatch request.
func (c *Client) Dispatch(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github: POST %s: %s: %s", path, resp.Status, strings.TrimSpace(string(b)))
	}
	return nil
}
