package pricing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Line is one cart selection.
type Line struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

// QuoteInput is everything needed to price an order for one store.
type QuoteInput struct {
	StoreID       uuid.UUID
	DestinationID string
	Lines         []Line
	Carrier       string
	Service       string
}

// PricedLine is a line with the unit price read at quote time.
type PricedLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Option is one carrier service with its cost and estimated delivery time.
type Option struct {
	Carrier     string          `json:"carrier"`
	CarrierName string          `json:"carrier_name"`
	Service     string          `json:"service"`
	Description string          `json:"description"`
	Cost        decimal.Decimal `json:"cost"`
	ETD         string          `json:"etd"`
}

// Quote is the full price breakdown of an order.
type Quote struct {
	Lines        []PricedLine    `json:"lines"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Weight       int             `json:"weight"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	Tax          decimal.Decimal `json:"tax"`
	GrandTotal   decimal.Decimal `json:"grand_total"`
	Option       Option          `json:"option"`
}

// OptionList is the cart-page shipping display.
type OptionList struct {
	Options  []Option        `json:"options"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Weight   int             `json:"weight"`
}
