// Package lambdaadapter serves the user handlers behind an API Gateway
// proxy integration.
package lambdaadapter

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/patric-chuzhbe/usercrud/internal/handlers"
	"github.com/patric-chuzhbe/usercrud/internal/logger"
	"github.com/patric-chuzhbe/usercrud/internal/models"
	"github.com/patric-chuzhbe/usercrud/internal/response"
)

const (
	resourceUsers = "/users"
	resourceUser  = "/users/{id}"
)

type userHandlers interface {
	CreateUser(ctx context.Context, req handlers.Request) response.Envelope
	GetUser(ctx context.Context, req handlers.Request) response.Envelope
	ListUsers(ctx context.Context, req handlers.Request) response.Envelope
	UpdateUser(ctx context.Context, req handlers.Request) response.Envelope
	DeleteUser(ctx context.Context, req handlers.Request) response.Envelope
	Preflight(ctx context.Context, req handlers.Request) response.Envelope
	NotFound(ctx context.Context, req handlers.Request) response.Envelope
	Formatter() *response.Formatter
}

type handlerFunc func(ctx context.Context, req handlers.Request) response.Envelope

type routeKey struct {
	resource string
	method   string
}

type Adapter struct {
	handlers userHandlers
	routes   map[routeKey]handlerFunc
}

func New(h userHandlers) *Adapter {
	return &Adapter{
		handlers: h,
		routes: map[routeKey]handlerFunc{
			{resourceUsers, http.MethodPost}:    h.CreateUser,
			{resourceUsers, http.MethodGet}:     h.ListUsers,
			{resourceUsers, http.MethodOptions}: h.Preflight,
			{resourceUser, http.MethodGet}:      h.GetUser,
			{resourceUser, http.MethodPut}:      h.UpdateUser,
			{resourceUser, http.MethodDelete}:   h.DeleteUser,
			{resourceUser, http.MethodOptions}:  h.Preflight,
		},
	}
}

// originOf looks the Origin header up case-insensitively. REST proxy events
// keep the client's casing; multi-value headers are the fallback.
func originOf(event events.APIGatewayProxyRequest) string {
	for name, value := range event.Headers {
		if strings.EqualFold(name, "Origin") {
			return value
		}
	}
	for name, values := range event.MultiValueHeaders {
		if strings.EqualFold(name, "Origin") && len(values) > 0 {
			return values[0]
		}
	}

	return ""
}

func toProxyResponse(envelope response.Envelope) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: envelope.StatusCode,
		Headers:    envelope.Headers,
		Body:       envelope.Body,
	}
}

// Handle is the Lambda function handler. Errors are always expressed as
// envelopes, so the returned error is always nil.
func (a *Adapter) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	request := handlers.Request{
		ID:     event.PathParameters["id"],
		Origin: originOf(event),
	}

	body := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			envelope := a.handlers.Formatter().Format(
				http.StatusBadRequest,
				models.ErrorResponse{Message: handlers.MsgInvalidRequestBody, Error: err.Error()},
				request.Origin,
			)
			return toProxyResponse(envelope), nil
		}
		body = decoded
	}
	request.Body = body

	handle, found := a.routes[routeKey{event.Resource, event.HTTPMethod}]
	if !found {
		logger.Log.Debugw("no route", "resource", event.Resource, "method", event.HTTPMethod)
		handle = a.handlers.NotFound
	}

	return toProxyResponse(handle(ctx, request)), nil
}
