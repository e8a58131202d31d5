package domain

import "time"

// User is the persisted identity record, keyed by the external identity id.
// GithubToken never leaves the server; clients only see GithubConnected.
type User struct {
	ID              string            `json:"id"`
	Email           string            `json:"email"`
	FirstName       string            `json:"firstName,omitempty"`
	LastName        string            `json:"lastName,omitempty"`
	Role            string            `json:"role,omitempty"`
	GithubToken     string            `json:"-"`
	GithubConnected bool              `json:"githubConnected"`
	GithubActivity  *ActivitySnapshot `json:"githubActivity,omitempty"`
	LastGithubSync  *time.Time        `json:"lastGithubSync,omitempty"`
	LastLogin       time.Time         `json:"lastLogin"`
}

// ProfileUpdate carries a partial profile mutation.
type ProfileUpdate struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
}
