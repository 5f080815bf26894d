// Package correlation carries a correlation id through a request and into
// the events it publishes.
package correlation

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header a caller can use to supply its own id.
const Header = "X-Request-ID"

type ctxKey struct{}

// NewID returns a fresh correlation id.
func NewID() string {
	return uuid.NewString()
}

// WithID stores id in ctx.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the id stored in ctx, or "" if there is none.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Ensure returns ctx unchanged if it already carries an id, otherwise a
// child context with a new one.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := NewID()
	return WithID(ctx, id), id
}
