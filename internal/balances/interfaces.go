package balances

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-core/pkg/db/models"
	"github.com/angelmondragon/settlement-core/pkg/types"
)

// Repository persists store balances and their ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.StoreBalance, error)
	FindByStoreID(ctx context.Context, storeID uuid.UUID) (*models.StoreBalance, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.StoreBalance, error)
	LockByStoreID(ctx context.Context, storeID uuid.UUID) (*models.StoreBalance, error)
	CreateIfMissing(ctx context.Context, storeID uuid.UUID) error
	UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
	InsertEntry(ctx context.Context, entry *models.LedgerEntry) error
	ListEntries(ctx context.Context, balanceID uuid.UUID, page types.Page) ([]models.LedgerEntry, int64, error)
	SumCountingEntries(ctx context.Context, balanceID uuid.UUID) (decimal.Decimal, error)
}
