package withdrawals

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-core/internal/balances"
	"github.com/angelmondragon/settlement-core/pkg/db/models"
	"github.com/angelmondragon/settlement-core/pkg/types"
)

// Repository persists withdrawal requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, w *models.Withdrawal) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListByBalance(ctx context.Context, storeBalanceID uuid.UUID, page types.Page) ([]models.Withdrawal, int64, error)
}

// BalanceLedger is the balance surface a withdrawal needs.
type BalanceLedger interface {
	balances.Ledger
	Get(ctx context.Context, storeBalanceID uuid.UUID) (*models.StoreBalance, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
