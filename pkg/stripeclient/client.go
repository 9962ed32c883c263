/**
 * @description
 * Stripe client for the storefront: lists the recurring prices that make up the
 * catalog and opens hosted checkout sessions. Every call runs behind a circuit
 * breaker so a Stripe outage fails fast instead of piling up page renders.
 */
package stripeclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	stripe "github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/price"

	"github.com/tempo/storefront-service/internal/domain"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("stripe is temporarily unavailable")

// Config configures the Stripe client.
type Config struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
	Logger     *slog.Logger
}

// Client talks to the Stripe API.
type Client struct {
	successURL string
	cancelURL  string
	logger     *slog.Logger
	breaker    *gobreaker.CircuitBreaker[any]

	listPrices            func(params *stripe.PriceListParams) ([]*stripe.Price, error)
	createCheckoutSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	newIdempotencyKey     func() string
}

// New creates a Stripe client and sets the package-level API key.
func New(cfg Config) *Client {
	stripe.Key = strings.TrimSpace(cfg.SecretKey)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		successURL:            cfg.SuccessURL,
		cancelURL:             cfg.CancelURL,
		logger:                logger,
		listPrices:            listAllPrices,
		createCheckoutSession: stripesession.New,
		newIdempotencyKey:     uuid.NewString,
	}
	c.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Card and request errors are the caller's problem, not an outage.
			var stripeErr *stripe.Error
			if errors.As(err, &stripeErr) {
				return stripeErr.Type == stripe.ErrorTypeCard || stripeErr.Type == stripe.ErrorTypeInvalidRequest
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

func listAllPrices(params *stripe.PriceListParams) ([]*stripe.Price, error) {
	var prices []*stripe.Price
	it := price.List(params)
	for it.Next() {
		prices = append(prices, it.Price())
	}
	return prices, it.Err()
}

// ListPrices returns the active recurring prices as plans, monthly before
// yearly and cheapest first. Prices billed on other intervals are skipped.
func (c *Client) ListPrices(ctx context.Context) ([]domain.PricePlan, error) {
	params := &stripe.PriceListParams{
		Active: stripe.Bool(true),
		Type:   stripe.String(string(stripe.PriceTypeRecurring)),
	}
	params.Context = ctx

	result, err := c.execute(func() (any, error) {
		return c.listPrices(params)
	})
	if err != nil {
		return nil, fmt.Errorf("list stripe prices: %w", err)
	}

	prices, _ := result.([]*stripe.Price)
	plans := make([]domain.PricePlan, 0, len(prices))
	for _, p := range prices {
		plan, ok := toPricePlan(p)
		if !ok {
			continue
		}
		plans = append(plans, plan)
	}

	sort.SliceStable(plans, func(i, j int) bool {
		if plans[i].Interval != plans[j].Interval {
			return plans[i].Interval == domain.IntervalMonth
		}
		return plans[i].Amount < plans[j].Amount
	})
	return plans, nil
}

func toPricePlan(p *stripe.Price) (domain.PricePlan, bool) {
	if p == nil || p.Recurring == nil {
		return domain.PricePlan{}, false
	}
	interval := domain.Interval(p.Recurring.Interval)
	if !interval.Valid() {
		return domain.PricePlan{}, false
	}
	plan := domain.PricePlan{
		ID:       p.ID,
		Amount:   p.UnitAmount,
		Interval: interval,
		Currency: string(p.Currency),
	}
	if p.Product != nil {
		plan.ProductID = p.Product.ID
	}
	return plan, true
}

// CreateCheckoutSession opens a subscription checkout for the user. Each call
// uses a fresh idempotency key, so a retry after a failure is a new attempt.
func (c *Client) CreateCheckoutSession(ctx context.Context, user domain.UserRef, priceID string) (*domain.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(c.successURL),
		CancelURL:         stripe.String(c.cancelURL),
		ClientReferenceID: stripe.String(user.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	if email := strings.TrimSpace(user.Email); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	params.AddMetadata("clerk_user_id", user.ID)
	params.Context = ctx
	params.SetIdempotencyKey(c.newIdempotencyKey())

	result, err := c.execute(func() (any, error) {
		return c.createCheckoutSession(params)
	})
	if err != nil {
		return nil, fmt.Errorf("create stripe checkout session: %w", err)
	}

	session, _ := result.(*stripe.CheckoutSession)
	if session == nil {
		return nil, errors.New("stripe returned no checkout session")
	}
	return &domain.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

func (c *Client) execute(fn func() (any, error)) (any, error) {
	result, err := c.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrUnavailable
	}
	return result, err
}
