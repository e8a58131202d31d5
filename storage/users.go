package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"devboard/domain"
)

// All user records share one partition; the row key is the identity id.
const userPartition = "user"

type userEntity struct {
	aztables.Entity
	Email          string `json:"Email"`
	FirstName      string `json:"FirstName"`
	LastName       string `json:"LastName"`
	Role           string `json:"Role"`
	GithubToken    string `json:"GithubToken"`
	Activity       string `json:"Activity"`
	LastGithubSync string `json:"LastGithubSync"`
	LastLogin      string `json:"LastLogin"`
}

func decodeUserEntity(data []byte) (domain.User, error) {
	var ent userEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:              ent.RowKey,
		Email:           ent.Email,
		FirstName:       ent.FirstName,
		LastName:        ent.LastName,
		Role:            ent.Role,
		GithubToken:     ent.GithubToken,
		GithubConnected: ent.GithubToken != "",
	}
	if ent.Activity != "" {
		var snap domain.ActivitySnapshot
		if err := json.Unmarshal([]byte(ent.Activity), &snap); err == nil {
			u.GithubActivity = &snap
		}
	}
	if ent.LastGithubSync != "" {
		if ts, err := time.Parse(time.RFC3339, ent.LastGithubSync); err == nil {
			u.LastGithubSync = &ts
		}
	}
	if ent.LastLogin != "" {
		if ts, err := time.Parse(time.RFC3339, ent.LastLogin); err == nil {
			u.LastLogin = ts
		}
	}
	return u, nil
}

// GetUser retrieves one user record, or nil when it does not exist.
func (s *Storage) GetUser(ctx context.Context, id string) (*domain.User, error) {
	ent, err := s.userTable.GetEntity(ctx, userPartition, id, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	u, err := decodeUserEntity(ent.Value)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// userSyncProperties lists exactly the fields a login sync may touch. Merge
// mode replaces every property present in the payload, so GithubToken,
// Activity and LastGithubSync must never appear here.
func userSyncProperties(u domain.User) map[string]any {
	return map[string]any{
		"PartitionKey": userPartition,
		"RowKey":       u.ID,
		"Email":        u.Email,
		"FirstName":    u.FirstName,
		"LastName":     u.LastName,
		"Role":         u.Role,
		"LastLogin":    u.LastLogin.UTC().Format(time.RFC3339),
	}
}

// UpsertUser creates a user record or merges the login profile fields into an
// existing one, leaving the GitHub credential and activity snapshot intact.
func (s *Storage) UpsertUser(ctx context.Context, u domain.User) error {
	payload, err := json.Marshal(userSyncProperties(u))
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.userTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if err != nil && isNotFound(err) {
		_, err = s.userTable.AddEntity(ctx, payload, nil)
	}
	return err
}

// UpdateProfile merges the provided profile fields into a user record.
func (s *Storage) UpdateProfile(ctx context.Context, id string, upd domain.ProfileUpdate) error {
	changes := map[string]any{"PartitionKey": userPartition, "RowKey": id}
	if upd.Email != nil {
		changes["Email"] = *upd.Email
	}
	if upd.FirstName != nil {
		changes["FirstName"] = *upd.FirstName
	}
	if upd.LastName != nil {
		changes["LastName"] = *upd.LastName
	}
	return s.mergeUser(ctx, changes)
}

// SetGithubToken stores or clears a user's GitHub credential.
func (s *Storage) SetGithubToken(ctx context.Context, id, token string) error {
	return s.mergeUser(ctx, map[string]any{
		"PartitionKey": userPartition,
		"RowKey":       id,
		"GithubToken":  token,
	})
}

// SaveActivity replaces a user's activity snapshot and refreshes the sync time.
func (s *Storage) SaveActivity(ctx context.Context, id string, snap domain.ActivitySnapshot, syncedAt time.Time) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.mergeUser(ctx, map[string]any{
		"PartitionKey":   userPartition,
		"RowKey":         id,
		"Activity":       string(data),
		"LastGithubSync": syncedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Storage) mergeUser(ctx context.Context, changes map[string]any) error {
	payload, err := json.Marshal(changes)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.userTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	return err
}

// ListGithubUsers returns every user holding a non-empty GitHub credential.
func (s *Storage) ListGithubUsers(ctx context.Context) ([]domain.User, error) {
	filter := "PartitionKey eq '" + userPartition + "' and GithubToken ne ''"
	pager := s.userTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	users := []domain.User{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			u, err := decodeUserEntity(e)
			if err != nil {
				return nil, err
			}
			users = append(users, u)
		}
	}
	return users, nil
}
