package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToConfidentialReadCeiling(t *testing.T) {
	tc := New("acme", "actor", []string{"admin"}, "req-1", time.Time{})
	require.Equal(t, Confidential, tc.Policy.MaxReadClass)
	require.True(t, tc.HasRole("admin"))
	require.False(t, tc.HasRole("superuser"))
}

func TestInfoClassPolicyExceeds(t *testing.T) {
	p := InfoClassPolicy{MaxReadClass: Internal}
	require.False(t, p.Exceeds(Public))
	require.False(t, p.Exceeds(Internal))
	require.True(t, p.Exceeds(Confidential))
	require.True(t, p.Exceeds(Restricted))
}

func TestWithContextAndFromContextRoundTrip(t *testing.T) {
	tc := New("acme", "actor", nil, "req-1", time.Time{})
	ctx := WithContext(context.Background(), tc)

	got, err := FromContext(ctx)
	require.NoError(t, err)
	require.Same(t, tc, got)
}

func TestFromContextFailsWhenAbsent(t *testing.T) {
	_, err := FromContext(context.Background())
	require.Error(t, err)
}

func TestFromContextFailsOnEmptyTenantKey(t *testing.T) {
	tc := &Context{}
	ctx := WithContext(context.Background(), tc)
	_, err := FromContext(ctx)
	require.Error(t, err)
}

func TestRequireMatchRejectsCrossTenantAccess(t *testing.T) {
	tc := New("acme", "actor", nil, "", time.Time{})
	require.NoError(t, RequireMatch(tc, "acme", "rec-1"))
	require.Error(t, RequireMatch(tc, "globex", "rec-1"))
}

func TestRemainingDefaultsWhenNoDeadline(t *testing.T) {
	tc := New("acme", "actor", nil, "", time.Time{})
	require.Equal(t, 24*time.Hour, tc.Remaining())
}

func TestRemainingReflectsSetDeadline(t *testing.T) {
	deadline := time.Now().Add(5 * time.Second)
	tc := New("acme", "actor", nil, "", deadline)
	require.LessOrEqual(t, tc.Remaining(), 5*time.Second)
	require.Greater(t, tc.Remaining(), time.Duration(0))
}

func TestSessionMarkerIsTheTenantKey(t *testing.T) {
	tc := New("acme", "actor", nil, "", time.Time{})
	require.Equal(t, "acme", tc.SessionMarker())
}
