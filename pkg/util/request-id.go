package util

import (
	"context"
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

type ctxKey string

const requestIDKey = ctxKey("x-request-id")

// WithRequestID returns a context carrying the given request id.
// It generates a new id when the provided one is empty.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = generate()
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the request id stored in ctx, or an empty string.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// generate returns a ULID string to use as request id.
func generate() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
