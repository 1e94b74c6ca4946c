// Package models holds the user record and the request/response shapes
// exchanged by the HTTP API, the Lambda entrypoint and the CLI client.
package models

import "time"

// User is the only entity of the service. ID is minted on creation and
// never reassigned.
type User struct {
	ID      string `json:"id" dynamodbav:"id"`
	Name    string `json:"name" dynamodbav:"name"`
	Email   string `json:"email" dynamodbav:"email"`
	City    string `json:"city" dynamodbav:"city"`
	Country string `json:"country" dynamodbav:"country"`
}

// UserFields is the caller-supplied part of a User, used as the body of
// both create and update requests.
type UserFields struct {
	Name    string `json:"name" validate:"required,min=2,max=50,alphaspace"`
	Email   string `json:"email" validate:"required,email"`
	City    string `json:"city" validate:"required,min=2,max=50,alphaspace"`
	Country string `json:"country" validate:"required,min=2,max=50,alphaspace"`
}

// ToUser binds the fields to the given identifier.
func (f UserFields) ToUser(id string) *User {
	return &User{
		ID:      id,
		Name:    f.Name,
		Email:   f.Email,
		City:    f.City,
		Country: f.Country,
	}
}

type MessageResponse struct {
	Message string `json:"message"`
}

type CreateUserResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// ErrorResponse carries the raw text of the underlying failure.
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

type ValidationErrorResponse struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

type UserEventType string

const (
	EventUserCreated UserEventType = "user.created"
	EventUserUpdated UserEventType = "user.updated"
	EventUserDeleted UserEventType = "user.deleted"
)

// UserEvent is published after a successful mutation. User is nil for deletions.
type UserEvent struct {
	EventID   string        `json:"event_id"`
	EventType UserEventType `json:"event_type"`
	UserID    string        `json:"user_id"`
	Timestamp time.Time     `json:"timestamp"`
	User      *User         `json:"user,omitempty"`
}
