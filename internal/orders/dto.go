package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-core/internal/pricing"
	"github.com/angelmondragon/settlement-core/pkg/db/models"
	"github.com/angelmondragon/settlement-core/pkg/enums"
	"github.com/angelmondragon/settlement-core/pkg/types"
)

// BuyerContact is forwarded to the payment gateway as customer details.
type BuyerContact struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email" validate:"omitempty,email"`
}

// CreateOrderInput is a buyer checkout against one store.
type CreateOrderInput struct {
	StoreID  uuid.UUID             `json:"store_id" validate:"required"`
	Shipping types.AddressSnapshot `json:"shipping_address" validate:"required"`
	Lines    []pricing.Line        `json:"lines" validate:"required,min=1,dive"`
	Carrier  string                `json:"shipping_carrier" validate:"required"`
	Service  string                `json:"shipping_service" validate:"required"`
	Buyer    BuyerContact          `json:"buyer" validate:"required"`
}

// UpdateDeliveryInput moves an order one step along its delivery track.
type UpdateDeliveryInput struct {
	Status         enums.DeliveryStatus `json:"status" validate:"required"`
	TrackingNumber *string              `json:"tracking_number,omitempty" validate:"omitempty,max=64"`
	Proof          *string              `json:"proof,omitempty" validate:"omitempty,max=2048"`
}

// ListQuery selects a page of the caller's orders, optionally by payment status.
type ListQuery struct {
	PaymentStatus enums.PaymentStatus
	Page          types.Page
}

// ListFilter scopes a listing. Nil fields are not applied.
type ListFilter struct {
	BuyerID       *uuid.UUID
	StoreID       *uuid.UUID
	PaymentStatus *enums.PaymentStatus
}

// List is one page of orders, newest first.
type List struct {
	Items []models.Order `json:"items"`
	Total int64          `json:"total"`
	Page  types.Page     `json:"page"`
}

// TransitionDetails explains a rejected delivery transition.
type TransitionDetails struct {
	From enums.DeliveryStatus `json:"from"`
	To   enums.DeliveryStatus `json:"to"`
}
