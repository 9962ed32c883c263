package stripeclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v82"

	"github.com/tempo/storefront-service/internal/domain"
)

func newTestClient() *Client {
	return New(Config{
		SecretKey:  "sk_test_123",
		SuccessURL: "https://shop.example.com/dashboard-paid",
		CancelURL:  "https://shop.example.com/#pricing",
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func recurring(id string, amount int64, interval stripe.PriceRecurringInterval) *stripe.Price {
	return &stripe.Price{
		ID:         id,
		UnitAmount: amount,
		Currency:   stripe.CurrencyUSD,
		Product:    &stripe.Product{ID: "prod_1"},
		Recurring:  &stripe.PriceRecurring{Interval: interval},
	}
}

func TestClient_ListPrices(t *testing.T) {
	c := newTestClient()
	var got *stripe.PriceListParams
	c.listPrices = func(params *stripe.PriceListParams) ([]*stripe.Price, error) {
		got = params
		return []*stripe.Price{
			recurring("price_year", 10000, stripe.PriceRecurringIntervalYear),
			recurring("price_week", 300, stripe.PriceRecurringIntervalWeek),
			{ID: "price_once", UnitAmount: 500, Currency: stripe.CurrencyUSD},
			recurring("price_month", 1000, stripe.PriceRecurringIntervalMonth),
		}, nil
	}

	plans, err := c.ListPrices(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, *got.Active)

	assert.Equal(t, []domain.PricePlan{
		{ID: "price_month", ProductID: "prod_1", Amount: 1000, Interval: domain.IntervalMonth, Currency: "usd"},
		{ID: "price_year", ProductID: "prod_1", Amount: 10000, Interval: domain.IntervalYear, Currency: "usd"},
	}, plans)
}

func TestClient_ListPricesEmpty(t *testing.T) {
	c := newTestClient()
	c.listPrices = func(params *stripe.PriceListParams) ([]*stripe.Price, error) {
		return nil, nil
	}

	plans, err := c.ListPrices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestClient_CreateCheckoutSession(t *testing.T) {
	c := newTestClient()
	c.newIdempotencyKey = func() string { return "key-1" }
	var got *stripe.CheckoutSessionParams
	c.createCheckoutSession = func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		got = params
		return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1"}, nil
	}

	session, err := c.CreateCheckoutSession(context.Background(), domain.UserRef{ID: "user_A", Email: "a@example.com"}, "price_month")
	require.NoError(t, err)
	assert.Equal(t, &domain.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1"}, session)

	require.NotNil(t, got)
	assert.Equal(t, string(stripe.CheckoutSessionModeSubscription), *got.Mode)
	assert.Equal(t, "user_A", *got.ClientReferenceID)
	assert.Equal(t, "a@example.com", *got.CustomerEmail)
	assert.Equal(t, "https://shop.example.com/dashboard-paid", *got.SuccessURL)
	assert.Equal(t, "https://shop.example.com/#pricing", *got.CancelURL)
	require.Len(t, got.LineItems, 1)
	assert.Equal(t, "price_month", *got.LineItems[0].Price)
	assert.Equal(t, int64(1), *got.LineItems[0].Quantity)
	assert.Equal(t, "key-1", *got.IdempotencyKey)
	assert.Equal(t, "user_A", got.Metadata["clerk_user_id"])
}

func TestClient_CreateCheckoutSessionWithoutEmail(t *testing.T) {
	c := newTestClient()
	var got *stripe.CheckoutSessionParams
	c.createCheckoutSession = func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		got = params
		return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1"}, nil
	}

	_, err := c.CreateCheckoutSession(context.Background(), domain.UserRef{ID: "user_A"}, "price_month")
	require.NoError(t, err)
	assert.Nil(t, got.CustomerEmail)
}

func TestClient_CircuitOpensAfterRepeatedOutages(t *testing.T) {
	c := newTestClient()
	calls := 0
	c.listPrices = func(params *stripe.PriceListParams) ([]*stripe.Price, error) {
		calls++
		return nil, errors.New("connection refused")
	}

	for i := 0; i < 5; i++ {
		_, err := c.ListPrices(context.Background())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}

	_, err := c.ListPrices(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 5, calls)
}

func TestClient_RequestErrorsDoNotTripBreaker(t *testing.T) {
	c := newTestClient()
	c.createCheckoutSession = func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		return nil, &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, Msg: "No such price"}
	}

	for i := 0; i < 10; i++ {
		_, err := c.CreateCheckoutSession(context.Background(), domain.UserRef{ID: "user_A"}, "price_missing")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}
}
