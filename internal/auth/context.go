package auth

import (
	"context"

	"github.com/vbonduro/homeinv/internal/domain"
)

// NotAuthenticatedError is returned when an operation needs a signed-in user
// and none is attached to the context.
type NotAuthenticatedError struct {
	Op string
}

func (e *NotAuthenticatedError) Error() string {
	if e.Op == "" {
		return "not authenticated"
	}
	return e.Op + ": not authenticated"
}

type userKey struct{}

// WithUser attaches the signed-in user to ctx.
func WithUser(ctx context.Context, u domain.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// CurrentUser returns the user attached by WithUser.
func CurrentUser(ctx context.Context) (domain.User, error) {
	u, ok := ctx.Value(userKey{}).(domain.User)
	if !ok || u.ID == "" {
		return domain.User{}, &NotAuthenticatedError{}
	}
	return u, nil
}

// CurrentUserID is CurrentUser for callers that only stamp audit columns.
func CurrentUserID(ctx context.Context) (string, error) {
	u, err := CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}
