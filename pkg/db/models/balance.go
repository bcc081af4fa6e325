package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-core/pkg/enums"
)

// StoreBalance holds a store's running balance. It is only written through
// the balances service.
type StoreBalance struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	StoreID   uuid.UUID       `gorm:"column:store_id;type:uuid;not null;uniqueIndex" json:"store_id"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(14,2);not null;default:0" json:"balance"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (b *StoreBalance) BeforeCreate(*gorm.DB) error {
	assignID(&b.ID)
	return nil
}

// LedgerEntry is an append-only store balance history row.
type LedgerEntry struct {
	ID                  uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	StoreBalanceID      uuid.UUID                 `gorm:"column:store_balance_id;type:uuid;not null;index" json:"store_balance_id"`
	Type                enums.LedgerEntryType     `gorm:"column:type;not null" json:"type"`
	Amount              decimal.Decimal           `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	ReferenceType       enums.LedgerReferenceType `gorm:"column:reference_type;not null" json:"reference_type"`
	ReferenceID         uuid.UUID                 `gorm:"column:reference_id;type:uuid;not null;index" json:"reference_id"`
	Remark              string                    `gorm:"column:remark;not null" json:"remark"`
	CountsTowardBalance bool                      `gorm:"column:counts_toward_balance;not null;default:true" json:"counts_toward_balance"`
	CreatedAt           time.Time                 `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}

// Withdrawal is a store payout request awaiting manual approval.
type Withdrawal struct {
	ID                uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	StoreBalanceID    uuid.UUID              `gorm:"column:store_balance_id;type:uuid;not null;index" json:"store_balance_id"`
	Amount            decimal.Decimal        `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	BankName          enums.Bank             `gorm:"column:bank_name;not null" json:"bank_name"`
	BankAccountName   string                 `gorm:"column:bank_account_name;not null" json:"bank_account_name"`
	BankAccountNumber string                 `gorm:"column:bank_account_number;not null" json:"bank_account_number"`
	Status            enums.WithdrawalStatus `gorm:"column:status;not null" json:"status"`
	Proof             *string                `gorm:"column:proof" json:"proof,omitempty"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (w *Withdrawal) BeforeCreate(*gorm.DB) error {
	assignID(&w.ID)
	return nil
}
