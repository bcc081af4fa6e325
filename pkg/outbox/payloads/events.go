package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/settlement-core/pkg/enums"
)

// OrderCreatedEvent is emitted once the order and its reservations commit.
type OrderCreatedEvent struct {
	OrderID    uuid.UUID       `json:"order_id"`
	Code       string          `json:"code"`
	BuyerID    uuid.UUID       `json:"buyer_id"`
	StoreID    uuid.UUID       `json:"store_id"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	LineCount  int             `json:"line_count"`
}

// OrderPaidEvent carries the settlement amounts posted to the store balance.
type OrderPaidEvent struct {
	OrderID        uuid.UUID       `json:"order_id"`
	Code           string          `json:"code"`
	StoreID        uuid.UUID       `json:"store_id"`
	StoreBalanceID uuid.UUID       `json:"store_balance_id"`
	NetSales       decimal.Decimal `json:"net_sales"`
	AdminFee       decimal.Decimal `json:"admin_fee"`
}

// OrderFailedEvent reports a terminal payment failure and the release of stock.
type OrderFailedEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	Code    string    `json:"code"`
	StoreID uuid.UUID `json:"store_id"`
	Reason  string    `json:"reason"`
}

// OrderDeliveryEvent is emitted on delivering and completed transitions.
type OrderDeliveryEvent struct {
	OrderID        uuid.UUID            `json:"order_id"`
	Code           string               `json:"code"`
	StoreID        uuid.UUID            `json:"store_id"`
	BuyerID        uuid.UUID            `json:"buyer_id"`
	Status         enums.DeliveryStatus `json:"status"`
	TrackingNumber *string              `json:"tracking_number,omitempty"`
}

// WithdrawalRequestedEvent is emitted after the balance is debited.
type WithdrawalRequestedEvent struct {
	WithdrawalID   uuid.UUID       `json:"withdrawal_id"`
	StoreBalanceID uuid.UUID       `json:"store_balance_id"`
	Amount         decimal.Decimal `json:"amount"`
	BankName       enums.Bank      `json:"bank_name"`
}

// WithdrawalApprovedEvent is emitted when an admin attaches the transfer proof.
type WithdrawalApprovedEvent struct {
	WithdrawalID   uuid.UUID       `json:"withdrawal_id"`
	StoreBalanceID uuid.UUID       `json:"store_balance_id"`
	Amount         decimal.Decimal `json:"amount"`
	ApprovedBy     uuid.UUID       `json:"approved_by"`
}
