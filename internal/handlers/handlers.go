// Package handlers implements the create, get, list, update and delete
// operations on users. Each handler validates its input, performs exactly
// one store call and returns a formatted envelope; transports (chi router,
// Lambda adapter) only translate requests and envelopes.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/patric-chuzhbe/usercrud/internal/db/storage"
	"github.com/patric-chuzhbe/usercrud/internal/logger"
	"github.com/patric-chuzhbe/usercrud/internal/models"
	"github.com/patric-chuzhbe/usercrud/internal/response"
)

const (
	MsgUserCreated        = "User created"
	MsgUserUpdated        = "User updated"
	MsgUserDeleted        = "User deleted"
	MsgUserNotFound       = "User not found"
	MsgMissingUserID      = "Missing user ID in path"
	MsgMissingFields      = "Missing required fields"
	MsgInvalidUserData    = "Invalid user data"
	MsgInvalidRequestBody = "Invalid request body"
	MsgFailedToCreateUser = "Failed to create user"
	MsgFailedToGetUser    = "Failed to get user"
	MsgFailedToGetUsers   = "Failed to get users"
	MsgFailedToUpdateUser = "Failed to update user"
	MsgFailedToDeleteUser = "Failed to delete user"
	MsgStorageUnavailable = "Storage unavailable"
	MsgRouteNotFound      = "Route not found"
	MsgMethodNotAllowed   = "Method not allowed"
	MsgInternalError      = "Internal server error"
)

type userStore interface {
	PutUser(ctx context.Context, usr *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpdateUser(ctx context.Context, usr *models.User) error
	DeleteUser(ctx context.Context, userID string) error
	ListUsers(ctx context.Context) ([]models.User, error)
	Ping(ctx context.Context) error
}

type changeNotifier interface {
	Notify(ctx context.Context, event models.UserEvent)
}

// Request is what a handler needs from the inbound call, whatever the transport.
type Request struct {
	// ID is the {id} path parameter, empty when absent.
	ID     string
	Body   []byte
	Origin string
}

type Handlers struct {
	db        userStore
	formatter *response.Formatter
	notifier  changeNotifier
	newID     func() string
	now       func() time.Time
}

type Option func(*Handlers)

// WithNotifier publishes a UserEvent after every successful mutation.
func WithNotifier(notifier changeNotifier) Option {
	return func(h *Handlers) {
		h.notifier = notifier
	}
}

// WithIDGenerator overrides the UUID v4 generator.
func WithIDGenerator(newID func() string) Option {
	return func(h *Handlers) {
		h.newID = newID
	}
}

func New(db userStore, formatter *response.Formatter, optionsProto ...Option) *Handlers {
	h := &Handlers{
		db:        db,
		formatter: formatter,
		newID:     func() string { return uuid.New().String() },
		now:       time.Now,
	}
	for _, protoOption := range optionsProto {
		protoOption(h)
	}

	return h
}

// Formatter exposes the envelope builder so transports can format their own
// routing errors the same way.
func (h *Handlers) Formatter() *response.Formatter {
	return h.formatter
}

func (h *Handlers) notify(ctx context.Context, eventType models.UserEventType, userID string, usr *models.User) {
	if h.notifier == nil {
		return
	}
	h.notifier.Notify(ctx, models.UserEvent{
		EventID:   h.newID(),
		EventType: eventType,
		UserID:    userID,
		Timestamp: h.now().UTC(),
		User:      usr,
	})
}

func (h *Handlers) storeFailure(req Request, message string, err error) response.Envelope {
	logger.Log.Errorw(message, "id", req.ID, "error", err)

	return h.formatter.Format(
		http.StatusInternalServerError,
		models.ErrorResponse{Message: message, Error: err.Error()},
		req.Origin,
	)
}

// parseUserFields decodes and validates the body. A non-nil envelope means
// the request must be rejected with it.
func (h *Handlers) parseUserFields(req Request) (models.UserFields, *response.Envelope) {
	var fields models.UserFields

	if len(req.Body) > 0 {
		if err := json.Unmarshal(req.Body, &fields); err != nil {
			envelope := h.formatter.Format(
				http.StatusBadRequest,
				models.ErrorResponse{Message: MsgInvalidRequestBody, Error: err.Error()},
				req.Origin,
			)
			return fields, &envelope
		}
	}

	err := models.ValidateUserFields(fields)
	if err == nil {
		return fields, nil
	}

	var validationErr *models.ValidationError
	if errors.As(err, &validationErr) && validationErr.Missing {
		envelope := h.formatter.Format(
			http.StatusBadRequest,
			models.MessageResponse{Message: MsgMissingFields},
			req.Origin,
		)
		return fields, &envelope
	}

	problems := []string{err.Error()}
	if validationErr != nil {
		problems = validationErr.Problems
	}
	envelope := h.formatter.Format(
		http.StatusBadRequest,
		models.ValidationErrorResponse{Message: MsgInvalidUserData, Errors: problems},
		req.Origin,
	)

	return fields, &envelope
}

func (h *Handlers) missingID(req Request) response.Envelope {
	logger.Log.Debugw("request without user ID", "origin", req.Origin)

	return h.formatter.Format(
		http.StatusBadRequest,
		models.MessageResponse{Message: MsgMissingUserID},
		req.Origin,
	)
}

// CreateUser mints a fresh ID and writes the record unconditionally.
func (h *Handlers) CreateUser(ctx context.Context, req Request) response.Envelope {
	fields, rejection := h.parseUserFields(req)
	if rejection != nil {
		return *rejection
	}

	usr := fields.ToUser(h.newID())
	if err := h.db.PutUser(ctx, usr); err != nil {
		return h.storeFailure(Request{ID: usr.ID, Origin: req.Origin}, MsgFailedToCreateUser, err)
	}

	h.notify(ctx, models.EventUserCreated, usr.ID, usr)

	return h.formatter.Format(
		http.StatusCreated,
		models.CreateUserResponse{Message: MsgUserCreated, ID: usr.ID},
		req.Origin,
	)
}

func (h *Handlers) GetUser(ctx context.Context, req Request) response.Envelope {
	if req.ID == "" {
		return h.missingID(req)
	}

	usr, err := h.db.GetUser(ctx, req.ID)
	if errors.Is(err, storage.ErrUserNotFound) {
		return h.formatter.Format(http.StatusNotFound, models.MessageResponse{Message: MsgUserNotFound}, req.Origin)
	}
	if err != nil {
		return h.storeFailure(req, MsgFailedToGetUser, err)
	}

	return h.formatter.Format(http.StatusOK, usr, req.Origin)
}

// ListUsers returns every record; an empty table yields an empty array.
func (h *Handlers) ListUsers(ctx context.Context, req Request) response.Envelope {
	users, err := h.db.ListUsers(ctx)
	if err != nil {
		return h.storeFailure(req, MsgFailedToGetUsers, err)
	}
	if users == nil {
		users = []models.User{}
	}

	return h.formatter.Format(http.StatusOK, users, req.Origin)
}

// UpdateUser requires all four fields and never creates a record: an
// unknown ID yields 404.
func (h *Handlers) UpdateUser(ctx context.Context, req Request) response.Envelope {
	if req.ID == "" {
		return h.formatter.Format(http.StatusBadRequest, models.MessageResponse{Message: MsgMissingFields}, req.Origin)
	}

	fields, rejection := h.parseUserFields(req)
	if rejection != nil {
		return *rejection
	}

	usr := fields.ToUser(req.ID)
	err := h.db.UpdateUser(ctx, usr)
	if errors.Is(err, storage.ErrUserNotFound) {
		return h.formatter.Format(http.StatusNotFound, models.MessageResponse{Message: MsgUserNotFound}, req.Origin)
	}
	if err != nil {
		return h.storeFailure(req, MsgFailedToUpdateUser, err)
	}

	h.notify(ctx, models.EventUserUpdated, usr.ID, usr)

	return h.formatter.Format(http.StatusOK, models.MessageResponse{Message: MsgUserUpdated}, req.Origin)
}

// DeleteUser succeeds whether or not the record existed.
func (h *Handlers) DeleteUser(ctx context.Context, req Request) response.Envelope {
	if req.ID == "" {
		return h.missingID(req)
	}

	if err := h.db.DeleteUser(ctx, req.ID); err != nil {
		return h.storeFailure(req, MsgFailedToDeleteUser, err)
	}

	h.notify(ctx, models.EventUserDeleted, req.ID, nil)

	return h.formatter.Format(http.StatusOK, models.MessageResponse{Message: MsgUserDeleted}, req.Origin)
}

// Preflight answers CORS OPTIONS requests.
func (h *Handlers) Preflight(ctx context.Context, req Request) response.Envelope {
	return h.formatter.Format(http.StatusOK, nil, req.Origin)
}

func (h *Handlers) Ping(ctx context.Context, req Request) response.Envelope {
	if err := h.db.Ping(ctx); err != nil {
		return h.storeFailure(req, MsgStorageUnavailable, err)
	}

	return h.formatter.Format(http.StatusOK, models.MessageResponse{Message: "OK"}, req.Origin)
}

// NotFound and MethodNotAllowed format routing failures of the transports.
func (h *Handlers) NotFound(ctx context.Context, req Request) response.Envelope {
	return h.formatter.Format(http.StatusNotFound, models.MessageResponse{Message: MsgRouteNotFound}, req.Origin)
}

func (h *Handlers) MethodNotAllowed(ctx context.Context, req Request) response.Envelope {
	return h.formatter.Format(http.StatusMethodNotAllowed, models.MessageResponse{Message: MsgMethodNotAllowed}, req.Origin)
}
