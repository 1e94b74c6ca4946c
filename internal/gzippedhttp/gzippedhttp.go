// Package gzippedhttp decompresses gzip-encoded request bodies.
//
// Response compression is left to chi's middleware.Compress.
package gzippedhttp

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
)

// CompressedReader wraps an io.ReadCloser and decompresses its input using gzip.
type CompressedReader struct {
	r  io.ReadCloser
	zr *gzip.Reader
}

func NewCompressedReader(requestBody io.ReadCloser) (*CompressedReader, error) {
	zippedRequestBody, err := gzip.NewReader(requestBody)
	if err != nil {
		return nil, err
	}

	return &CompressedReader{
		r:  requestBody,
		zr: zippedRequestBody,
	}, nil
}

func (c *CompressedReader) Read(p []byte) (n int, err error) {
	return c.zr.Read(p)
}

// Close closes both the gzip reader and the underlying body.
func (c *CompressedReader) Close() error {
	if err := c.r.Close(); err != nil {
		return err
	}
	return c.zr.Close()
}

// RejectFunc answers a request whose body claims gzip but is not.
type RejectFunc func(res http.ResponseWriter, req *http.Request, err error)

// UngzipRequest replaces the body of a request sent with Content-Encoding: gzip
// by a decompressing reader. Broken gzip headers are handed to reject.
func UngzipRequest(reject RejectFunc) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		middleware := func(response http.ResponseWriter, request *http.Request) {
			if !strings.Contains(request.Header.Get("Content-Encoding"), "gzip") {
				h.ServeHTTP(response, request)
				return
			}

			requestBodyWithCompression, err := NewCompressedReader(request.Body)
			if err != nil {
				reject(response, request, err)
				return
			}
			defer requestBodyWithCompression.Close()

			request.Body = requestBodyWithCompression
			request.Header.Del("Content-Encoding")
			request.ContentLength = -1

			h.ServeHTTP(response, request)
		}

		return http.HandlerFunc(middleware)
	}
}
