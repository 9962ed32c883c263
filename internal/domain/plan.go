/**
 * @description
 * Catalog and checkout models. Amounts are always carried in minor currency
 * units (cents) and only converted to decimals at display time.
 */
package domain

// Interval is the billing interval of a price. The set is closed.
type Interval string

const (
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// Valid reports whether the interval is one the storefront can sell.
func (i Interval) Valid() bool {
	return i == IntervalMonth || i == IntervalYear
}

// PricePlan is a purchasable billing option fetched from the payment provider.
type PricePlan struct {
	ID        string   `json:"id"`
	ProductID string   `json:"product"`
	Amount    int64    `json:"amount"`
	Interval  Interval `json:"interval"`
	Currency  string   `json:"currency"`
}

// ProductPlan is the display-only derivation of a PricePlan.
type ProductPlan struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CardAction is what the call-to-action button on a plan card does.
type CardAction string

const (
	CardActionNone     CardAction = "none"
	CardActionSignIn   CardAction = "sign_in"
	CardActionCheckout CardAction = "checkout"
)

// PlanCard is everything the pricing section renders for a single plan.
type PlanCard struct {
	PriceID      string      `json:"price_id"`
	Product      ProductPlan `json:"product"`
	Interval     Interval    `json:"interval"`
	Title        string      `json:"title"`
	DisplayPrice string      `json:"display_price"`
	Tagline      string      `json:"tagline"`
	Features     []string    `json:"features"`
	Badge        string      `json:"badge,omitempty"`
	Highlighted  bool        `json:"highlighted"`
	ButtonLabel  string      `json:"button_label"`
	Action       CardAction  `json:"action"`
}

// CheckoutRequest asks the payment provider for a hosted checkout page.
type CheckoutRequest struct {
	PriceID string `json:"priceId"`
}

// CheckoutSession is the provider's answer to a CheckoutRequest.
type CheckoutSession struct {
	ID  string `json:"id,omitempty"`
	URL string `json:"url"`
}
