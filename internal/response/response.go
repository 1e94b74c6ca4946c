// Package response builds the uniform envelope every handler returns:
// a status code, the CORS header set and a JSON body.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/thoas/go-funk"
)

const (
	HeaderAllowOrigin  = "Access-Control-Allow-Origin"
	HeaderAllowHeaders = "Access-Control-Allow-Headers"
	HeaderAllowMethods = "Access-Control-Allow-Methods"
	HeaderContentType  = "Content-Type"

	AllowedHeaders = "*"
	AllowedMethods = "GET,POST,PUT,DELETE,OPTIONS"
)

// Envelope is the transport-independent result of a handler.
type Envelope struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

// Formatter renders envelopes against a fixed allow-list of client origins.
type Formatter struct {
	allowedOrigins []string
}

func NewFormatter(allowedOrigins []string) *Formatter {
	return &Formatter{
		allowedOrigins: append([]string(nil), allowedOrigins...),
	}
}

// IsAllowedOrigin reports whether origin is exactly one of the allow-listed values.
func (f *Formatter) IsAllowedOrigin(origin string) bool {
	return origin != "" && funk.ContainsString(f.allowedOrigins, origin)
}

// Format serializes body as JSON. The allow-origin header is set to origin
// only when the origin is allow-listed and is omitted otherwise. A nil body
// is rendered as an empty object.
func (f *Formatter) Format(statusCode int, body any, origin string) Envelope {
	if body == nil {
		body = struct{}{}
	}

	headers := map[string]string{
		HeaderAllowHeaders: AllowedHeaders,
		HeaderAllowMethods: AllowedMethods,
		HeaderContentType:  "application/json",
	}
	if f.IsAllowedOrigin(origin) {
		headers[HeaderAllowOrigin] = origin
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		statusCode = http.StatusInternalServerError
		encoded = []byte(`{"message":"Failed to encode response"}`)
	}

	return Envelope{
		StatusCode: statusCode,
		Headers:    headers,
		Body:       string(encoded),
	}
}
