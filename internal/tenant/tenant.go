// Package tenant carries the per-request tenant context that every core
// entry point accepts or derives: tenant key, authenticated actor, role set,
// budget snapshot, information-class policy, request id, and deadline. The
// context is immutable for the duration of one request and is threaded
// through every downstream call.
package tenant

import (
	"context"
	"time"

	raeerrors "github.com/dreamsoft-pro/rae/infrastructure/errors"
)

type contextKey struct{}

// Context is the immutable per-request tenant context. It is never mutated
// after construction; a derived value (e.g. a tightened deadline) needs a
// new Context built with New.
type Context struct {
	Key       string
	Actor     string
	Roles     []string
	RequestID string
	Deadline  time.Time

	// Policy is the tenant's information-class policy snapshot used by the
	// policy guard to decide scrub/reject/allow for this request.
	Policy InfoClassPolicy

	// Budget is a point-in-time snapshot of the tenant's spend; callers
	// needing a live view should consult the cost guard, not this snapshot.
	Budget BudgetSnapshot
}

// InfoClassPolicy names the maximum information class the caller may
// receive on read, and whether layer containment is strictly enforced.
type InfoClassPolicy struct {
	MaxReadClass   InfoClass
	ContainStrict  bool
}

// InfoClass is the confidentiality label attached to memory content.
type InfoClass string

const (
	Public       InfoClass = "public"
	Internal     InfoClass = "internal"
	Confidential InfoClass = "confidential"
	Restricted   InfoClass = "restricted"
)

var infoClassRank = map[InfoClass]int{
	Public:       0,
	Internal:     1,
	Confidential: 2,
	Restricted:   3,
}

// Exceeds reports whether class c is stricter than the policy's max readable class.
func (p InfoClassPolicy) Exceeds(c InfoClass) bool {
	return infoClassRank[c] > infoClassRank[p.MaxReadClass]
}

// BudgetSnapshot is a point-in-time view of a tenant's spend.
type BudgetSnapshot struct {
	DailyUSD     float64
	DailyLimit   float64
	MonthlyUSD   float64
	MonthlyLimit float64
}

// New constructs a Context. Callers typically obtain one from the engine's
// tenant config loader rather than building it by hand.
func New(key, actor string, roles []string, requestID string, deadline time.Time) *Context {
	return &Context{
		Key:       key,
		Actor:     actor,
		Roles:     append([]string(nil), roles...),
		RequestID: requestID,
		Deadline:  deadline,
		Policy:    InfoClassPolicy{MaxReadClass: Confidential},
	}
}

// WithContext attaches the tenant context to a stdlib context.Context.
func WithContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

// FromContext extracts the tenant context, returning ErrMissingTenant if absent.
func FromContext(ctx context.Context) (*Context, error) {
	tc, ok := ctx.Value(contextKey{}).(*Context)
	if !ok || tc == nil || tc.Key == "" {
		return nil, raeerrors.MissingTenant()
	}
	return tc, nil
}

// RequireMatch returns ErrTenantMismatch if tc's tenant key does not match
// the tenant that owns recordID. The adapter maps this to 404, not 403, so
// the existence of another tenant's record is never leaked.
func RequireMatch(tc *Context, ownerKey, recordID string) error {
	if tc.Key != ownerKey {
		return raeerrors.TenantMismatch(recordID)
	}
	return nil
}

// HasRole reports whether the tenant context's actor carries the given role.
func (tc *Context) HasRole(role string) bool {
	for _, r := range tc.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Remaining returns the time left until the context's deadline, or a large
// value if no deadline was set.
func (tc *Context) Remaining() time.Duration {
	if tc.Deadline.IsZero() {
		return 24 * time.Hour
	}
	return time.Until(tc.Deadline)
}

// SessionMarker is the RLS assertion value a pooled connection must carry
// for the duration of a tenant-scoped query: `SET LOCAL app.current_tenant_id`.
// Backends that cannot honor this marker must not register as tenant-capable.
func (tc *Context) SessionMarker() string {
	return tc.Key
}
