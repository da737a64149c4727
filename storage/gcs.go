package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

// ErrObjectNotExist is returned by every client when an object is missing.
var ErrObjectNotExist = storage.ErrObjectNotExist

// GCSClient is Client for accessing Google Cloud Storage.
type GCSClient struct {
	*storage.Client
}

// NewObjectHandle returns a handle to a specified object in the
// storage engine.
func (c GCSClient) NewObjectHandle(bucket, object string) ObjectHandle {
	return gcsObjectHandle{c.Bucket(bucket).Object(object)}
}

type gcsObjectHandle struct {
	*storage.ObjectHandle
}

func (h gcsObjectHandle) NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	return h.ObjectHandle.NewRangeReader(ctx, offset, length)
}

var (
	defaultClients   = make(map[string]*storage.Client)
	defaultClientErr = make(map[string]error)
	defaultClientsMu sync.Mutex
)

// cachedClient returns the client created for key, creating it with opts on
// first use.
func cachedClient(key string, opts ...option.ClientOption) (Client, http.Header, error) {
	defaultClientsMu.Lock()
	defer defaultClientsMu.Unlock()
	if err, ok := defaultClientErr[key]; ok {
		return nil, nil, err
	}
	if gcs, ok := defaultClients[key]; ok {
		return GCSClient{gcs}, nil, nil
	}
	gcs, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		err = fmt.Errorf("creating %s storage client: %v", key, err)
		defaultClientErr[key] = err
		return nil, nil, err
	}
	defaultClients[key] = gcs
	return GCSClient{gcs}, nil, nil
}

// NewDefaultClient returns a storage client that uses the application default
// credentials.  It caches the storage client for efficiency.
func NewDefaultClient(_ *http.Request) (Client, http.Header, error) {
	return cachedClient("default")
}

// NewPublicClient returns a storage client that does not use any form of
// client authorization.  It can only be used to read publicly-readable
// objects. It caches the storage client for efficiency.
func NewPublicClient(_ *http.Request) (Client, http.Header, error) {
	return cachedClient("public", option.WithHTTPClient(http.DefaultClient))
}

// NewClientFromBearerToken constructs a storage client that uses the OAuth2
// bearer token found in req to make storage requests.  It returns the
// authorization header containing the bearer token as well to allow subsequent
// requests to be authenticated correctly.
func NewClientFromBearerToken(req *http.Request) (Client, http.Header, error) {
	authorization := req.Header.Get("Authorization")

	fields := strings.Split(authorization, " ")
	if len(fields) != 2 || fields[0] != "Bearer" {
		return nil, nil, ErrMissingOrInvalidToken
	}

	token := oauth2.Token{
		TokenType:   fields[0],
		AccessToken: fields[1],
	}
	client, err := storage.NewClient(req.Context(), option.WithTokenSource(oauth2.StaticTokenSource(&token)))
	if err != nil {
		return nil, nil, fmt.Errorf("creating client with token source: %v", err)
	}

	return GCSClient{client}, http.Header{
		"Authorization": []string{authorization},
	}, nil
}
