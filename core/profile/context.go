package profile

import "context"

// Caller identifies who is performing an operation on the profile
// collections. The access policy layer evaluates every read/write against
// it; never populate it from client-cached role data.
type Caller struct {
	ID   string
	Role string
}

func (c Caller) IsAdmin() bool   { return c.Role == RoleAdmin }
func (c Caller) IsTeacher() bool { return c.Role == RoleTeacher }

// SystemCaller is the core acting on its own behalf (provisioning at signup
// or on a confirmation callback).
var SystemCaller = Caller{ID: SystemApprover}

func (c Caller) IsSystem() bool { return c.ID == SystemApprover }

type callerCtxKey struct{}

// WithCaller returns a ctx carrying the authenticated caller.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerCtxKey{}, c)
}

// CallerFrom extracts the authenticated caller from ctx.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerCtxKey{}).(Caller)
	return c, ok
}
