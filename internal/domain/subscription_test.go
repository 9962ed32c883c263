package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name       string
		sub        Subscription
		wantActive bool
	}{
		{name: "active in period", sub: Subscription{Status: SubscriptionStatusActive, CurrentPeriodEnd: future}, wantActive: true},
		{name: "trialing in period", sub: Subscription{Status: SubscriptionStatusTrialing, CurrentPeriodEnd: future}, wantActive: true},
		{name: "active but lapsed", sub: Subscription{Status: SubscriptionStatusActive, CurrentPeriodEnd: past}},
		{name: "period ends now", sub: Subscription{Status: SubscriptionStatusActive, CurrentPeriodEnd: now}},
		{name: "canceled", sub: Subscription{Status: SubscriptionStatusCanceled, CurrentPeriodEnd: future}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StatusOf(tt.sub, now)
			assert.Equal(t, tt.sub.Status, got.Status)
			assert.Equal(t, tt.wantActive, got.IsActive)
			if tt.wantActive {
				require.NotNil(t, got.CurrentPeriodEnd)
				assert.True(t, got.CurrentPeriodEnd.Equal(tt.sub.CurrentPeriodEnd))
			} else {
				assert.Nil(t, got.CurrentPeriodEnd)
			}
		})
	}
}

func TestIdentityState_Authenticated(t *testing.T) {
	_, ok := IdentityState{User: &UserRef{ID: "user_A"}}.Authenticated()
	assert.False(t, ok, "unloaded identity must not authenticate")

	_, ok = SignedOut().Authenticated()
	assert.False(t, ok)

	_, ok = SignedIn(UserRef{}).Authenticated()
	assert.False(t, ok)

	user, ok := SignedIn(UserRef{ID: "user_A", Name: "Alice"}).Authenticated()
	require.True(t, ok)
	assert.Equal(t, "Alice", user.Name)
}

func TestInterval_Valid(t *testing.T) {
	assert.True(t, IntervalMonth.Valid())
	assert.True(t, IntervalYear.Valid())
	assert.False(t, Interval("week").Valid())
}
