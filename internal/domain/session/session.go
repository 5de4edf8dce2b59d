package session

import (
	"context"
	"errors"
)

var ErrUnauthenticated = errors.New("no authenticated user")

// Provider exposes the cached identity of the logged-in user.
type Provider interface {
	UserID(ctx context.Context) (string, bool)
}
