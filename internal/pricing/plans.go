// Package pricing turns provider price plans into what the pricing section shows.
// Everything here is a pure function of its input.
package pricing

import (
	"fmt"
	"strings"

	"github.com/tempo/storefront-service/internal/domain"
)

const (
	monthlyPlanName = "Monthly Plan"
	yearlyPlanName  = "Yearly Plan"

	// YearlyBadge marks the best-value plan.
	YearlyBadge = "Save 17%"
)

var currencySymbols = map[string]string{
	"usd": "$",
	"cad": "$",
	"aud": "$",
	"nzd": "$",
	"eur": "€",
	"gbp": "£",
}

// ProductPlanFor derives the display plan for a price.
func ProductPlanFor(p domain.PricePlan) domain.ProductPlan {
	name := yearlyPlanName
	if p.Interval == domain.IntervalMonth {
		name = monthlyPlanName
	}
	return domain.ProductPlan{
		ID:          p.ProductID,
		Name:        name,
		Description: fmt.Sprintf("%s %s/%s", strings.ToUpper(p.Currency), FormatAmount(p.Amount), p.Interval),
	}
}

// FormatAmount renders minor units as a decimal with exactly two places.
func FormatAmount(minor int64) string {
	sign := ""
	// Work in uint64 so the most negative int64 does not overflow on negation.
	u := uint64(minor)
	if minor < 0 {
		sign = "-"
		u = uint64(-(minor + 1)) + 1
	}
	return fmt.Sprintf("%s%d.%02d", sign, u/100, u%100)
}

// DisplayPrice is the headline price of a card, e.g. "$19.99".
func DisplayPrice(p domain.PricePlan) string {
	code := strings.ToLower(strings.TrimSpace(p.Currency))
	if symbol, ok := currencySymbols[code]; ok {
		return symbol + FormatAmount(p.Amount)
	}
	return strings.ToUpper(code) + " " + FormatAmount(p.Amount)
}

// Features returns the bullet list for an interval. Intervals outside the
// closed set have no bullets.
func Features(interval domain.Interval) []string {
	switch interval {
	case domain.IntervalMonth:
		return []string{"Full access to all features", "Priority support", "Regular updates"}
	case domain.IntervalYear:
		return []string{"Everything in monthly", "2 months free", "Early access to new features"}
	}
	return nil
}

// Badge returns the highlight badge for an interval, or "".
func Badge(interval domain.Interval) string {
	if interval == domain.IntervalYear {
		return YearlyBadge
	}
	return ""
}

func title(interval domain.Interval) string {
	if interval == domain.IntervalYear {
		return "Yearly"
	}
	return "Monthly"
}

func tagline(interval domain.Interval) string {
	if interval == domain.IntervalYear {
		return "Best value for long-term commitment"
	}
	return "Perfect for getting started with our platform"
}

// Card assembles a plan card for a price with the given call-to-action.
func Card(p domain.PricePlan, action domain.CardAction) domain.PlanCard {
	t := title(p.Interval)
	return domain.PlanCard{
		PriceID:      p.ID,
		Product:      ProductPlanFor(p),
		Interval:     p.Interval,
		Title:        t,
		DisplayPrice: DisplayPrice(p),
		Tagline:      tagline(p.Interval),
		Features:     Features(p.Interval),
		Badge:        Badge(p.Interval),
		Highlighted:  p.Interval == domain.IntervalYear,
		ButtonLabel:  "Get Started " + t,
		Action:       action,
	}
}

// Cards builds one card per plan, preserving catalog order. Plans with an
// interval the storefront cannot sell are skipped.
func Cards(plans []domain.PricePlan, action domain.CardAction) []domain.PlanCard {
	cards := make([]domain.PlanCard, 0, len(plans))
	for _, p := range plans {
		if !p.Interval.Valid() {
			continue
		}
		cards = append(cards, Card(p, action))
	}
	return cards
}
