/**
 * @description
 * This file defines the subscription models shared by the storefront-service.
 * It includes the Subscription struct that maps to the database table, the
 * status projection consumed by the checkout view, and the event payload that
 * pushes status changes to connected sessions.
 */
package domain

import "time"

// Subscription statuses as stored in the subscriptions table.
const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusInactive = "inactive"
	SubscriptionStatusCanceled = "canceled"
)

// Subscription represents the structure of a user's subscription in the database.
type Subscription struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"user_id"`
	StripeSubscriptionID *string   `json:"stripe_subscription_id,omitempty"`
	StripePriceID        *string   `json:"stripe_price_id,omitempty"`
	Status               string    `json:"status"` // 'active', 'trialing', 'inactive', 'canceled'
	CurrentPeriodStart   time.Time `json:"current_period_start"`
	CurrentPeriodEnd     time.Time `json:"current_period_end"`
	AutoRenew            bool      `json:"auto_renew"`
}

// SubscriptionStatus is the projection of a subscription that the checkout view
// and the JSON API expose. A nil *SubscriptionStatus means the status is still
// pending.
type SubscriptionStatus struct {
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	AutoRenew        bool       `json:"auto_renew"`
	IsActive         bool       `json:"is_active"`
}

// InactiveStatus is the status reported for users without a subscription record.
func InactiveStatus() SubscriptionStatus {
	return SubscriptionStatus{Status: SubscriptionStatusInactive}
}

// StatusOf projects a stored subscription onto its status at the given instant.
func StatusOf(sub Subscription, now time.Time) SubscriptionStatus {
	status := SubscriptionStatus{
		Status:    sub.Status,
		AutoRenew: sub.AutoRenew,
		IsActive: (sub.Status == SubscriptionStatusActive || sub.Status == SubscriptionStatusTrialing) &&
			sub.CurrentPeriodEnd.After(now),
	}
	if status.IsActive {
		end := sub.CurrentPeriodEnd
		status.CurrentPeriodEnd = &end
	}
	return status
}

// SubscriptionEvent is published on the message bus whenever a user's
// subscription changes upstream (for example after a payment webhook).
type SubscriptionEvent struct {
	ClerkUserID          string    `json:"clerk_user_id"`
	StripeSubscriptionID string    `json:"stripe_subscription_id,omitempty"`
	StripePriceID        string    `json:"stripe_price_id,omitempty"`
	Status               string    `json:"status"`
	CurrentPeriodStart   time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd     time.Time `json:"current_period_end"`
	AutoRenew            bool      `json:"auto_renew"`
}
