package storage

import (
	"errors"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
)

// Storage provides access to the users, tasks and logs tables.
type Storage struct {
	userTable *aztables.Client
	taskTable *aztables.Client
	logTable  *aztables.Client
}

// New creates a Storage instance from the given connection string.
func New(connStr, usersTable, tasksTable, logsTable string) (*Storage, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Storage{
		userTable: svc.NewClient(usersTable),
		taskTable: svc.NewClient(tasksTable),
		logTable:  svc.NewClient(logsTable),
	}, nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

// escapeFilter doubles single quotes so a value embedded in an OData filter
// string literal cannot terminate the literal and widen the query.
func escapeFilter(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
