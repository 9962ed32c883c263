package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempo/storefront-service/internal/domain"
)

func TestStatusHub_PublishReachesOnlyThatUser(t *testing.T) {
	hub := NewStatusHub()
	alice, stopAlice := hub.Subscribe("alice")
	defer stopAlice()
	bob, stopBob := hub.Subscribe("bob")
	defer stopBob()

	assert.Equal(t, 1, hub.Publish("alice", domain.SubscriptionStatus{Status: "active", IsActive: true}))

	got := <-alice
	assert.True(t, got.IsActive)
	select {
	case status := <-bob:
		t.Fatalf("bob received %+v", status)
	default:
	}
}

func TestStatusHub_LatestPendingStatusWins(t *testing.T) {
	hub := NewStatusHub()
	ch, stop := hub.Subscribe("alice")
	defer stop()

	hub.Publish("alice", domain.SubscriptionStatus{Status: "trialing"})
	hub.Publish("alice", domain.SubscriptionStatus{Status: "active"})
	hub.Publish("alice", domain.SubscriptionStatus{Status: "canceled"})

	got := <-ch
	assert.Equal(t, "canceled", got.Status)
	select {
	case status := <-ch:
		t.Fatalf("unexpected extra status %+v", status)
	default:
	}
}

func TestStatusHub_UnsubscribeClosesAndForgets(t *testing.T) {
	hub := NewStatusHub()
	first, stopFirst := hub.Subscribe("alice")
	second, stopSecond := hub.Subscribe("alice")
	require.Equal(t, 2, hub.Publish("alice", domain.InactiveStatus()))

	stopFirst()
	stopFirst()
	_, open := <-first
	assert.True(t, open, "pending status is still readable after unsubscribe")
	_, open = <-first
	assert.False(t, open)
	assert.Equal(t, 1, hub.Publish("alice", domain.InactiveStatus()))

	stopSecond()
	_, open = <-second
	assert.True(t, open, "pending status is still readable after unsubscribe")
	_, open = <-second
	assert.False(t, open)
	assert.Equal(t, 0, hub.Publish("alice", domain.InactiveStatus()))
}
