package identity

import "context"

type Role string

const (
	RoleStudent    Role = "STUDENT"
	RoleInstructor Role = "INSTRUCTOR"
	RoleAdmin      Role = "ADMIN"
)

// Context is the authenticated caller as asserted by the upstream gateway.
// The scheduling service trusts it completely and performs no credential
// checks of its own.
type Context struct {
	TenantID      string
	UserID        string
	Role          Role
	Approved      bool
	CorrelationID string
}

type ctxKey int

const identityKey ctxKey = iota

func NewContext(ctx context.Context, id Context) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func FromContext(ctx context.Context) (Context, bool) {
	id, ok := ctx.Value(identityKey).(Context)
	return id, ok
}
