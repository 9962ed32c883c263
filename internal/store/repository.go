/**
 * @description
 * This file implements the data access layer for the storefront-service.
 * It contains all the SQL queries for users and their subscriptions.
 */
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tempo/storefront-service/internal/domain"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrSubscriptionNotFound is returned when the user has no subscription row.
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Repository handles database operations for users and subscriptions.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// UpsertUser inserts the user or refreshes name and email on an existing record.
// Empty fields never erase stored values, and updated_at only moves when
// something actually changed, so repeating the call is a no-op.
func (r *Repository) UpsertUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	var stored domain.User
	query := `
        INSERT INTO users (clerk_user_id, name, email)
        VALUES ($1, $2, $3)
        ON CONFLICT (clerk_user_id) DO UPDATE SET
            name = COALESCE(EXCLUDED.name, users.name),
            email = COALESCE(EXCLUDED.email, users.email),
            updated_at = CASE
                WHEN users.name IS DISTINCT FROM COALESCE(EXCLUDED.name, users.name)
                  OR users.email IS DISTINCT FROM COALESCE(EXCLUDED.email, users.email)
                THEN NOW()
                ELSE users.updated_at
            END
        RETURNING id::text, clerk_user_id, name, email, created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query, user.ClerkUserID, user.Name, user.Email).Scan(
		&stored.ID,
		&stored.ClerkUserID,
		&stored.Name,
		&stored.Email,
		&stored.CreatedAt,
		&stored.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// FindUserIDByClerkUserID resolves the internal user ID for a Clerk user.
func (r *Repository) FindUserIDByClerkUserID(ctx context.Context, clerkUserID string) (string, error) {
	var userID string
	query := `SELECT id::text FROM users WHERE clerk_user_id = $1`
	if err := r.db.QueryRow(ctx, query, clerkUserID).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return userID, nil
}

// GetSubscriptionByUserID retrieves a subscription for a given user ID.
func (r *Repository) GetSubscriptionByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	query := `
        SELECT id::text, user_id::text, stripe_subscription_id, stripe_price_id,
               status, current_period_start, current_period_end, auto_renew
        FROM subscriptions
        WHERE user_id = $1
    `
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&sub.ID,
		&sub.UserID,
		&sub.StripeSubscriptionID,
		&sub.StripePriceID,
		&sub.Status,
		&sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd,
		&sub.AutoRenew,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// CreateOrUpdateSubscription creates a new subscription or updates an existing one for a user.
func (r *Repository) CreateOrUpdateSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	var saved domain.Subscription
	query := `
        INSERT INTO subscriptions (user_id, stripe_subscription_id, stripe_price_id, status,
                                   current_period_start, current_period_end, auto_renew)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (user_id) DO UPDATE SET
            stripe_subscription_id = COALESCE(EXCLUDED.stripe_subscription_id, subscriptions.stripe_subscription_id),
            stripe_price_id = COALESCE(EXCLUDED.stripe_price_id, subscriptions.stripe_price_id),
            status = EXCLUDED.status,
            current_period_start = EXCLUDED.current_period_start,
            current_period_end = EXCLUDED.current_period_end,
            auto_renew = EXCLUDED.auto_renew,
            updated_at = NOW()
        RETURNING id::text, user_id::text, stripe_subscription_id, stripe_price_id,
                  status, current_period_start, current_period_end, auto_renew
    `
	err := r.db.QueryRow(ctx, query,
		sub.UserID,
		sub.StripeSubscriptionID,
		sub.StripePriceID,
		sub.Status,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.AutoRenew,
	).Scan(
		&saved.ID,
		&saved.UserID,
		&saved.StripeSubscriptionID,
		&saved.StripePriceID,
		&saved.Status,
		&saved.CurrentPeriodStart,
		&saved.CurrentPeriodEnd,
		&saved.AutoRenew,
	)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}
