// Package router exposes the user handlers over HTTP with chi.
//
// Every response, including routing errors and recovered panics, is an
// Envelope produced by the response formatter and written by writeEnvelope.
package router

import (
	"context"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/patric-chuzhbe/usercrud/internal/gzippedhttp"
	"github.com/patric-chuzhbe/usercrud/internal/handlers"
	"github.com/patric-chuzhbe/usercrud/internal/logger"
	"github.com/patric-chuzhbe/usercrud/internal/models"
	"github.com/patric-chuzhbe/usercrud/internal/response"
)

const (
	compressionLevel = 5
	maxBodyBytes     = 1 << 20
)

type userHandlers interface {
	CreateUser(ctx context.Context, req handlers.Request) response.Envelope
	GetUser(ctx context.Context, req handlers.Request) response.Envelope
	ListUsers(ctx context.Context, req handlers.Request) response.Envelope
	UpdateUser(ctx context.Context, req handlers.Request) response.Envelope
	DeleteUser(ctx context.Context, req handlers.Request) response.Envelope
	Preflight(ctx context.Context, req handlers.Request) response.Envelope
	Ping(ctx context.Context, req handlers.Request) response.Envelope
	NotFound(ctx context.Context, req handlers.Request) response.Envelope
	MethodNotAllowed(ctx context.Context, req handlers.Request) response.Envelope
	Formatter() *response.Formatter
}

type Router struct {
	handlers userHandlers
}

func writeEnvelope(res http.ResponseWriter, envelope response.Envelope) {
	for name, value := range envelope.Headers {
		res.Header().Set(name, value)
	}
	res.WriteHeader(envelope.StatusCode)

	if _, err := res.Write([]byte(envelope.Body)); err != nil {
		logger.Log.Debugw("cannot write response body", "error", err)
	}
}

func toRequest(req *http.Request) handlers.Request {
	return handlers.Request{
		ID:     chi.URLParam(req, "id"),
		Origin: req.Header.Get("Origin"),
	}
}

func (rtr *Router) invalidBody(origin string, err error) response.Envelope {
	return rtr.handlers.Formatter().Format(
		http.StatusBadRequest,
		models.ErrorResponse{Message: handlers.MsgInvalidRequestBody, Error: err.Error()},
		origin,
	)
}

func (rtr *Router) rejectBody(res http.ResponseWriter, req *http.Request, err error) {
	writeEnvelope(res, rtr.invalidBody(req.Header.Get("Origin"), err))
}

// toRequestWithBody also reads the body. A non-nil envelope means the body
// could not be read and must be returned as is.
func (rtr *Router) toRequestWithBody(res http.ResponseWriter, req *http.Request) (handlers.Request, *response.Envelope) {
	request := toRequest(req)

	body, err := io.ReadAll(http.MaxBytesReader(res, req.Body, maxBodyBytes))
	if err != nil {
		envelope := rtr.invalidBody(request.Origin, err)
		return request, &envelope
	}
	request.Body = body

	return request, nil
}

// recoverer answers a panic with a 500 envelope. http.ErrAbortHandler is
// re-raised so net/http can abort the connection.
func (rtr *Router) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}

			logger.Log.Errorw(
				"panic while serving request",
				"uri", req.RequestURI,
				"panic", rvr,
				"stack", string(debug.Stack()),
			)
			writeEnvelope(res, rtr.handlers.Formatter().Format(
				http.StatusInternalServerError,
				models.MessageResponse{Message: handlers.MsgInternalError},
				req.Header.Get("Origin"),
			))
		}()

		next.ServeHTTP(res, req)
	})
}

func (rtr *Router) PostUsers(res http.ResponseWriter, req *http.Request) {
	request, rejection := rtr.toRequestWithBody(res, req)
	if rejection != nil {
		writeEnvelope(res, *rejection)
		return
	}

	writeEnvelope(res, rtr.handlers.CreateUser(req.Context(), request))
}

func (rtr *Router) GetUsers(res http.ResponseWriter, req *http.Request) {
	writeEnvelope(res, rtr.handlers.ListUsers(req.Context(), toRequest(req)))
}

func (rtr *Router) GetUser(res http.ResponseWriter, req *http.Request) {
	writeEnvelope(res, rtr.handlers.GetUser(req.Context(), toRequest(req)))
}

func (rtr *Router) PutUser(res http.ResponseWriter, req *http.Request) {
	request, rejection := rtr.toRequestWithBody(res, req)
	if rejection != nil {
		writeEnvelope(res, *rejection)
		return
	}

	writeEnvelope(res, rtr.handlers.UpdateUser(req.Context(), request))
}

func (rtr *Router) DeleteUser(res http.ResponseWriter, req *http.Request) {
	writeEnvelope(res, rtr.handlers.DeleteUser(req.Context(), toRequest(req)))
}

func (rtr *Router) OptionsUsers(res http.ResponseWriter, req *http.Request) {
	writeEnvelope(res, rtr.handlers.Preflight(req.Context(), toRequest(req)))
}

func (rtr *Router) GetPing(res http.ResponseWriter, req *http.Request) {
	writeEnvelope(res, rtr.handlers.Ping(req.Context(), toRequest(req)))
}

func (rtr *Router) notFound(res http.ResponseWriter, req *http.Request) {
	writeEnvelope(res, rtr.handlers.NotFound(req.Context(), toRequest(req)))
}

func (rtr *Router) methodNotAllowed(res http.ResponseWriter, req *http.Request) {
	writeEnvelope(res, rtr.handlers.MethodNotAllowed(req.Context(), toRequest(req)))
}

// New builds the HTTP surface:
//
//	POST, GET, OPTIONS        /users
//	GET, PUT, DELETE, OPTIONS /users/{id}
//	GET                       /ping
//
// PUT and DELETE on /users are routed too so that a missing ID is reported as 400.
func New(h userHandlers) *chi.Mux {
	myRouter := Router{
		handlers: h,
	}

	router := chi.NewRouter()
	router.Use(
		logger.WithLoggingHTTPMiddleware,
		myRouter.recoverer,
		gzippedhttp.UngzipRequest(myRouter.rejectBody),
		middleware.Compress(compressionLevel, "application/json"),
	)
	router.NotFound(myRouter.notFound)
	router.MethodNotAllowed(myRouter.methodNotAllowed)

	router.Get(`/ping`, myRouter.GetPing)

	router.Route(`/users`, func(r chi.Router) {
		r.Post(`/`, myRouter.PostUsers)
		r.Get(`/`, myRouter.GetUsers)
		r.Put(`/`, myRouter.PutUser)
		r.Delete(`/`, myRouter.DeleteUser)
		r.Options(`/`, myRouter.OptionsUsers)

		r.Get(`/{id}`, myRouter.GetUser)
		r.Put(`/{id}`, myRouter.PutUser)
		r.Delete(`/{id}`, myRouter.DeleteUser)
		r.Options(`/{id}`, myRouter.OptionsUsers)
	})

	return router
}
