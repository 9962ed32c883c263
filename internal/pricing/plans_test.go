package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempo/storefront-service/internal/domain"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		input int64
		want  string
	}{
		{input: 1999, want: "19.99"},
		{input: 999, want: "9.99"},
		{input: 9999, want: "99.99"},
		{input: 100, want: "1.00"},
		{input: 5, want: "0.05"},
		{input: 0, want: "0.00"},
		{input: -250, want: "-2.50"},
		{input: 123456789, want: "1234567.89"},
		{input: math.MinInt64, want: "-92233720368547758.08"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAmount(tt.input))
		})
	}
}

func TestProductPlanFor(t *testing.T) {
	monthly := domain.PricePlan{ID: "price_m", ProductID: "prod_1", Amount: 1999, Interval: domain.IntervalMonth, Currency: "usd"}
	yearly := domain.PricePlan{ID: "price_y", ProductID: "prod_1", Amount: 19990, Interval: domain.IntervalYear, Currency: "eur"}

	got := ProductPlanFor(monthly)
	assert.Equal(t, domain.ProductPlan{ID: "prod_1", Name: "Monthly Plan", Description: "USD 19.99/month"}, got)

	got = ProductPlanFor(yearly)
	assert.Equal(t, "Yearly Plan", got.Name)
	assert.Equal(t, "EUR 199.90/year", got.Description)
}

func TestDisplayPrice(t *testing.T) {
	tests := []struct {
		name string
		plan domain.PricePlan
		want string
	}{
		{name: "usd", plan: domain.PricePlan{Amount: 1999, Currency: "usd"}, want: "$19.99"},
		{name: "upper case code", plan: domain.PricePlan{Amount: 1999, Currency: "USD"}, want: "$19.99"},
		{name: "gbp", plan: domain.PricePlan{Amount: 500, Currency: "gbp"}, want: "£5.00"},
		{name: "unknown code", plan: domain.PricePlan{Amount: 1050, Currency: "sek"}, want: "SEK 10.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayPrice(tt.plan))
		})
	}
}

func TestFeaturesAndBadge(t *testing.T) {
	assert.Equal(t, []string{"Full access to all features", "Priority support", "Regular updates"}, Features(domain.IntervalMonth))
	assert.Equal(t, []string{"Everything in monthly", "2 months free", "Early access to new features"}, Features(domain.IntervalYear))
	assert.Empty(t, Badge(domain.IntervalMonth))
	assert.Equal(t, "Save 17%", Badge(domain.IntervalYear))
	assert.Nil(t, Features(domain.Interval("week")), "unknown intervals must not borrow the monthly bullets")
}

func TestCards_SkipsUnsellableIntervals(t *testing.T) {
	plans := []domain.PricePlan{
		{ID: "p_week", Amount: 199, Interval: domain.Interval("week"), Currency: "usd"},
		{ID: "p1", Amount: 999, Interval: domain.IntervalMonth, Currency: "usd"},
	}

	cards := Cards(plans, domain.CardActionSignIn)
	require.Len(t, cards, 1)
	assert.Equal(t, "p1", cards[0].PriceID)
}

func TestCards(t *testing.T) {
	plans := []domain.PricePlan{
		{ID: "p1", Amount: 999, Interval: domain.IntervalMonth, Currency: "usd"},
		{ID: "p2", Amount: 9999, Interval: domain.IntervalYear, Currency: "usd"},
	}

	cards := Cards(plans, domain.CardActionCheckout)
	require.Len(t, cards, 2)

	assert.Equal(t, "p1", cards[0].PriceID)
	assert.Equal(t, "$9.99", cards[0].DisplayPrice)
	assert.Equal(t, "Get Started Monthly", cards[0].ButtonLabel)
	assert.False(t, cards[0].Highlighted)
	assert.Empty(t, cards[0].Badge)

	assert.Equal(t, "p2", cards[1].PriceID)
	assert.Equal(t, "$99.99", cards[1].DisplayPrice)
	assert.Equal(t, "Get Started Yearly", cards[1].ButtonLabel)
	assert.Equal(t, "Best value for long-term commitment", cards[1].Tagline)
	assert.True(t, cards[1].Highlighted)
	assert.Equal(t, "Save 17%", cards[1].Badge)
	assert.Equal(t, domain.CardActionCheckout, cards[1].Action)

	assert.Empty(t, Cards(nil, domain.CardActionCheckout))
}
