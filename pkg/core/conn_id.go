package core

import (
	"context"

	"github.com/google/uuid"
)

type connIDKey struct{}

// WithConnID returns a copy of ctx carrying the connection id.
func WithConnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, connIDKey{}, id)
}

// ConnID returns the connection id stored in ctx, or "" if there is none.
func ConnID(ctx context.Context) string {
	if id, ok := ctx.Value(connIDKey{}).(string); ok {
		return id
	}
	return ""
}

// NewConnID generates a random connection id.
func NewConnID() string {
	return uuid.NewString()
}
