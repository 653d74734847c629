package api

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperengineering/csab/internal/ingest"
)

// credentialsContextKey is the context key for the admin credentials.
type credentialsContextKey struct{}

// Query parameter names for admin credentials.
const (
	AdminNameParam     = "Admin_name"
	AdminPasswordParam = "Admin_password"
)

// WithCredentials returns a new context with the admin credentials attached.
func WithCredentials(ctx context.Context, creds ingest.Credentials) context.Context {
	return context.WithValue(ctx, credentialsContextKey{}, creds)
}

// CredentialsFromContext extracts the admin credentials from the context.
// Returns zero Credentials if none are present, which the service treats as
// missing.
func CredentialsFromContext(ctx context.Context) ingest.Credentials {
	creds, _ := ctx.Value(credentialsContextKey{}).(ingest.Credentials)
	return creds
}

// GetRequestID returns the chi request ID, or "" if none is set.
func GetRequestID(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}
