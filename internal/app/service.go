/**
 * @description
 * This file contains the backend data layer of the storefront: user upserts,
 * subscription status (queried and pushed), the product catalog, and checkout
 * session creation. The checkout view and the JSON API both call into it.
 */
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/tempo/storefront-service/internal/domain"
	"github.com/tempo/storefront-service/internal/metrics"
	"github.com/tempo/storefront-service/internal/store"
)

var (
	// ErrMissingUserID is returned when an operation needs a Clerk user ID and got none.
	ErrMissingUserID = errors.New("user ID cannot be empty")
	// ErrInvalidPriceID is returned for checkout requests without a price.
	ErrInvalidPriceID = errors.New("price ID cannot be empty")
	// ErrUnknownPrice is returned when the price is not part of the catalog.
	ErrUnknownPrice = errors.New("price is not offered")
)

// Repository defines the database operations that the service needs.
type Repository interface {
	UpsertUser(ctx context.Context, user *domain.User) (*domain.User, error)
	FindUserIDByClerkUserID(ctx context.Context, clerkUserID string) (string, error)
	GetSubscriptionByUserID(ctx context.Context, userID string) (*domain.Subscription, error)
	CreateOrUpdateSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)
}

// Catalog returns the current list of purchasable plans.
type Catalog interface {
	Plans(ctx context.Context) ([]domain.PricePlan, error)
}

// CheckoutProvider creates hosted checkout sessions at the payment provider.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, user domain.UserRef, priceID string) (*domain.CheckoutSession, error)
}

// Service provides the storefront's backend operations.
type Service struct {
	repo     Repository
	catalog  Catalog
	payments CheckoutProvider
	hub      *StatusHub
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a new storefront service.
func NewService(repo Repository, catalog Catalog, payments CheckoutProvider, hub *StatusHub, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if hub == nil {
		hub = NewStatusHub()
	}
	return &Service{
		repo:     repo,
		catalog:  catalog,
		payments: payments,
		hub:      hub,
		logger:   logger,
		now:      time.Now,
	}
}

// StoreUser creates or refreshes the user record for a Clerk identity.
// Repeated calls with the same identity leave the record unchanged.
func (s *Service) StoreUser(ctx context.Context, ref domain.UserRef) (*domain.User, error) {
	clerkUserID := strings.TrimSpace(ref.ID)
	if clerkUserID == "" {
		return nil, ErrMissingUserID
	}

	user := &domain.User{
		ClerkUserID: clerkUserID,
		Name:        optionalString(ref.Name),
		Email:       optionalString(strings.ToLower(ref.Email)),
	}
	stored, err := s.repo.UpsertUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("store user %s: %w", clerkUserID, err)
	}
	return stored, nil
}

// GetStatus retrieves the subscription status for a Clerk user. Users without
// a record or without a subscription are reported as inactive.
func (s *Service) GetStatus(ctx context.Context, clerkUserID string) (*domain.SubscriptionStatus, error) {
	if strings.TrimSpace(clerkUserID) == "" {
		return nil, ErrMissingUserID
	}

	internalUserID, err := s.repo.FindUserIDByClerkUserID(ctx, clerkUserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			status := domain.InactiveStatus()
			return &status, nil
		}
		return nil, fmt.Errorf("resolve user %s: %w", clerkUserID, err)
	}

	sub, err := s.repo.GetSubscriptionByUserID(ctx, internalUserID)
	if err != nil {
		if errors.Is(err, store.ErrSubscriptionNotFound) {
			status := domain.InactiveStatus()
			return &status, nil
		}
		return nil, fmt.Errorf("load subscription for user %s: %w", internalUserID, err)
	}

	status := domain.StatusOf(*sub, s.now())
	return &status, nil
}

// WatchSubscription streams the user's status: first the stored value, then
// every pushed change, until ctx is done. The channel is closed on return.
func (s *Service) WatchSubscription(ctx context.Context, clerkUserID string) <-chan domain.SubscriptionStatus {
	out := make(chan domain.SubscriptionStatus, 1)
	updates, unsubscribe := s.hub.Subscribe(clerkUserID)

	go func() {
		defer close(out)
		defer unsubscribe()

		status, err := s.GetStatus(ctx, clerkUserID)
		switch {
		case err != nil && ctx.Err() != nil:
			return
		case err != nil:
			// Leave the status pending; a pushed update can still resolve it.
			s.logger.Warn("failed to load subscription status", "clerk_user_id", clerkUserID, "error", err)
		default:
			select {
			case out <- *status:
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case out <- update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// HandleSubscriptionEvent persists a pushed subscription change and fans it out
// to watchers of that user. It reports false when the event should be redelivered.
// Malformed payloads are dropped so they are not redelivered forever.
func (s *Service) HandleSubscriptionEvent(ctx context.Context, body []byte) bool {
	var event domain.SubscriptionEvent
	if err := json.Unmarshal(body, &event); err != nil {
		metrics.SubscriptionEvents.WithLabelValues("malformed").Inc()
		s.logger.Warn("dropping malformed subscription event", "error", err)
		return true
	}
	if strings.TrimSpace(event.ClerkUserID) == "" || strings.TrimSpace(event.Status) == "" {
		metrics.SubscriptionEvents.WithLabelValues("malformed").Inc()
		s.logger.Warn("dropping incomplete subscription event", "clerk_user_id", event.ClerkUserID)
		return true
	}

	sub := domain.Subscription{
		StripeSubscriptionID: optionalString(event.StripeSubscriptionID),
		StripePriceID:        optionalString(event.StripePriceID),
		Status:               event.Status,
		CurrentPeriodStart:   event.CurrentPeriodStart,
		CurrentPeriodEnd:     event.CurrentPeriodEnd,
		AutoRenew:            event.AutoRenew,
	}
	if sub.CurrentPeriodStart.IsZero() {
		sub.CurrentPeriodStart = s.now()
	}

	userID, err := s.repo.FindUserIDByClerkUserID(ctx, event.ClerkUserID)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		// The upsert may still be in flight; watchers get the push, the row is not persisted.
		s.logger.Warn("subscription event for unknown user", "clerk_user_id", event.ClerkUserID)
	case err != nil:
		metrics.SubscriptionEvents.WithLabelValues("error").Inc()
		s.logger.Error("failed to resolve user for subscription event", "clerk_user_id", event.ClerkUserID, "error", err)
		return false
	default:
		sub.UserID = userID
		if _, err := s.repo.CreateOrUpdateSubscription(ctx, &sub); err != nil {
			metrics.SubscriptionEvents.WithLabelValues("error").Inc()
			s.logger.Error("failed to persist subscription event", "clerk_user_id", event.ClerkUserID, "error", err)
			return false
		}
	}

	status := domain.StatusOf(sub, s.now())
	delivered := s.hub.Publish(event.ClerkUserID, status)

	metrics.SubscriptionEvents.WithLabelValues("published").Inc()
	s.logger.Info("subscription status pushed", "clerk_user_id", event.ClerkUserID, "status", status.Status, "watchers", delivered)
	return true
}

// FetchCatalog returns the purchasable plans.
func (s *Service) FetchCatalog(ctx context.Context) ([]domain.PricePlan, error) {
	return s.catalog.Plans(ctx)
}

// CreateCheckoutSession opens a hosted checkout for one of the catalog prices.
func (s *Service) CreateCheckoutSession(ctx context.Context, user domain.UserRef, req domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	if strings.TrimSpace(user.ID) == "" {
		return nil, ErrMissingUserID
	}
	priceID := strings.TrimSpace(req.PriceID)
	if priceID == "" {
		return nil, ErrInvalidPriceID
	}

	// The provider validates prices as well; a catalog outage must not block checkout.
	if plans, err := s.catalog.Plans(ctx); err == nil && !containsPrice(plans, priceID) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPrice, priceID)
	}

	session, err := s.payments.CreateCheckoutSession(ctx, user, priceID)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return session, nil
}

func containsPrice(plans []domain.PricePlan, priceID string) bool {
	for _, p := range plans {
		if p.ID == priceID {
			return true
		}
	}
	return false
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
