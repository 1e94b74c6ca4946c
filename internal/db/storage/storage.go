// Package storage declares the record store contract shared by every
// backend (DynamoDB, PostgreSQL, JSON file and memory).
package storage

import (
	"context"
	"errors"

	"github.com/patric-chuzhbe/usercrud/internal/models"
)

// ErrUserNotFound is returned by GetUser and UpdateUser when no record
// is stored under the requested identifier.
var ErrUserNotFound = errors.New("user not found")

// Storage is a key-value table of users keyed by ID.
type Storage interface {
	// PutUser writes the whole record, replacing any existing one.
	PutUser(ctx context.Context, usr *models.User) error

	GetUser(ctx context.Context, userID string) (*models.User, error)

	// UpdateUser overwrites name, email, city and country of an existing
	// record. It never creates one.
	UpdateUser(ctx context.Context, usr *models.User) error

	// DeleteUser removes the record if present. Deleting an absent
	// record is not an error.
	DeleteUser(ctx context.Context, userID string) error

	// ListUsers returns every record in store-defined order.
	ListUsers(ctx context.Context) ([]models.User, error)

	Ping(ctx context.Context) error

	Close() error
}
