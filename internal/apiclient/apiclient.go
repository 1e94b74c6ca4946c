// Package apiclient is an HTTP client for the users API.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/patric-chuzhbe/usercrud/internal/models"
)

const defaultTimeout = 10 * time.Second

// APIError is returned for every non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

type Client struct {
	http *resty.Client
}

func New(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(defaultTimeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
	}
}

// toAPIError extracts the message field of an error body, falling back to "HTTP <status>".
func toAPIError(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}

	var body models.MessageResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil || body.Message == "" {
		body.Message = fmt.Sprintf("HTTP %d", resp.StatusCode())
	}

	return &APIError{StatusCode: resp.StatusCode(), Message: body.Message}
}

func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	resp, err := c.http.R().SetContext(ctx).SetResult(&users).Get("/users")
	if err != nil {
		return nil, err
	}
	if err := toAPIError(resp); err != nil {
		return nil, err
	}

	return users, nil
}

func (c *Client) GetUser(ctx context.Context, id string) (*models.User, error) {
	var usr models.User
	resp, err := c.http.R().SetContext(ctx).SetResult(&usr).SetPathParam("id", id).Get("/users/{id}")
	if err != nil {
		return nil, err
	}
	if err := toAPIError(resp); err != nil {
		return nil, err
	}

	return &usr, nil
}

// CreateUser returns the ID minted by the server.
func (c *Client) CreateUser(ctx context.Context, fields models.UserFields) (string, error) {
	var created models.CreateUserResponse
	resp, err := c.http.R().SetContext(ctx).SetBody(fields).SetResult(&created).Post("/users")
	if err != nil {
		return "", err
	}
	if err := toAPIError(resp); err != nil {
		return "", err
	}

	return created.ID, nil
}

func (c *Client) UpdateUser(ctx context.Context, id string, fields models.UserFields) error {
	resp, err := c.http.R().SetContext(ctx).SetBody(fields).SetPathParam("id", id).Put("/users/{id}")
	if err != nil {
		return err
	}

	return toAPIError(resp)
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	resp, err := c.http.R().SetContext(ctx).SetPathParam("id", id).Delete("/users/{id}")
	if err != nil {
		return err
	}

	return toAPIError(resp)
}
