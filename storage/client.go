// Package storage provides access to the objects holding alignment data.
package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
)

// ErrMissingOrInvalidToken is returned when a request carries no usable
// bearer token.
var ErrMissingOrInvalidToken = errors.New("missing or invalid bearer token")

// Client is an interface to the storage engine.
type Client interface {
	// NewObjectHandle returns a handle to a specified object in
	// the storage engine.
	NewObjectHandle(bucket, object string) ObjectHandle
}

// ObjectHandle is an interface to the actual storage engine in use.
type ObjectHandle interface {
	// NewRangeReader returns a reader that reads from a specified
	// range. Length of -1 means to capture everything until the
	// end.
	NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error)
}

// Factory returns the client serving req, along with the headers that must
// accompany follow-up requests made on behalf of the caller.
type Factory func(req *http.Request) (Client, http.Header, error)
