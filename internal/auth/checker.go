package auth

import "context"

var _ Checker = (*Service)(nil)

// Checker validates a session token. Implemented by the auth service,
// consumed by the HTTP middleware and the events hub.
type Checker interface {
	Validate(ctx context.Context, token string) (*Session, error)
}
