package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-core/pkg/db/models"
)

// Repository is the product stock persistence used by the ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	Decrement(ctx context.Context, id uuid.UUID, qty int) (bool, error)
	Increment(ctx context.Context, id uuid.UUID, qty int) error
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}
