package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-core/pkg/enums"
	"github.com/angelmondragon/settlement-core/pkg/types"
)

// Order is one buyer checkout against one store.
type Order struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Code               string                `gorm:"column:code;not null;uniqueIndex" json:"code"`
	BuyerID            uuid.UUID             `gorm:"column:buyer_id;type:uuid;not null;index" json:"buyer_id"`
	StoreID            uuid.UUID             `gorm:"column:store_id;type:uuid;not null;index" json:"store_id"`
	Shipping           types.AddressSnapshot `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping_address"`
	ShippingCarrier    string                `gorm:"column:shipping_carrier;not null" json:"shipping_carrier"`
	ShippingService    string                `gorm:"column:shipping_service;not null" json:"shipping_service"`
	Weight             int                   `gorm:"column:weight;not null" json:"weight"`
	Subtotal           decimal.Decimal       `gorm:"column:subtotal;type:numeric(14,2);not null" json:"subtotal"`
	ShippingCost       decimal.Decimal       `gorm:"column:shipping_cost;type:numeric(14,2);not null" json:"shipping_cost"`
	Tax                decimal.Decimal       `gorm:"column:tax;type:numeric(14,2);not null" json:"tax"`
	AdminFee           decimal.Decimal       `gorm:"column:admin_fee;type:numeric(14,2);not null;default:0" json:"admin_fee"`
	GrandTotal         decimal.Decimal       `gorm:"column:grand_total;type:numeric(14,2);not null" json:"grand_total"`
	TrackingNumber     *string               `gorm:"column:tracking_number" json:"tracking_number,omitempty"`
	DeliveryProof      *string               `gorm:"column:delivery_proof" json:"delivery_proof,omitempty"`
	ReceivingProof     *string               `gorm:"column:receiving_proof" json:"receiving_proof,omitempty"`
	PaymentStatus      enums.PaymentStatus   `gorm:"column:payment_status;not null;index" json:"payment_status"`
	DeliveryStatus     enums.DeliveryStatus  `gorm:"column:delivery_status;not null" json:"delivery_status"`
	PaymentIntentToken *string               `gorm:"column:payment_intent_token" json:"payment_intent_token,omitempty"`
	Lines              []OrderLine           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"lines,omitempty"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// NetSales is the store's share of the order before the admin fee.
func (o Order) NetSales() decimal.Decimal {
	return o.GrandTotal.Sub(o.ShippingCost)
}

// OrderLine captures price and quantity at creation time and never changes.
type OrderLine struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID   uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null" json:"product_id"`
	Quantity  int             `gorm:"column:quantity;not null;check:quantity > 0" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(14,2);not null" json:"unit_price"`
	Subtotal  decimal.Decimal `gorm:"column:subtotal;type:numeric(14,2);not null" json:"subtotal"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (l *OrderLine) BeforeCreate(*gorm.DB) error {
	assignID(&l.ID)
	return nil
}
