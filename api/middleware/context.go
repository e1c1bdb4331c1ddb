package middleware

import (
	"context"

	"github.com/google/uuid"
)

type identityKey struct{}

type requestIDKey struct{}

// identity is what Auth learned from a verified bearer token.
type identity struct {
	email      string
	role       string
	customerID *uuid.UUID
}

func identityFrom(ctx context.Context) identity {
	if ctx == nil {
		return identity{}
	}
	id, _ := ctx.Value(identityKey{}).(identity)
	return id
}

// WithIdentity seeds the request context with the authenticated identity.
func WithIdentity(ctx context.Context, email, role string, customerID *uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	id := identity{email: email, role: role}
	if customerID != nil {
		copied := *customerID
		id.customerID = &copied
	}
	return context.WithValue(ctx, identityKey{}, id)
}

// CustomerIDFromContext returns the authenticated customer id, if the token carried one.
func CustomerIDFromContext(ctx context.Context) *uuid.UUID {
	if id := identityFrom(ctx).customerID; id != nil {
		copied := *id
		return &copied
	}
	return nil
}

// EmailFromContext returns the verified requester email.
func EmailFromContext(ctx context.Context) string { return identityFrom(ctx).email }

func RoleFromContext(ctx context.Context) string { return identityFrom(ctx).role }

// RequestIDFromContext returns the id RequestID assigned, or "" outside a request.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}
