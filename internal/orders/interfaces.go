package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-core/pkg/db/models"
	"github.com/angelmondragon/settlement-core/pkg/types"
)

// Repository defines persistence operations for orders and their lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	CodeExists(ctx context.Context, code string) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByCode(ctx context.Context, code string) (*models.Order, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockByCode(ctx context.Context, code string) (*models.Order, error)
	FindLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	FindOpenCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	List(ctx context.Context, filter ListFilter, page types.Page) ([]models.Order, int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PaymentIntents requests a hosted payment page for a committed order.
type PaymentIntents interface {
	CreateIntent(ctx context.Context, order *models.Order, buyer BuyerContact) (string, error)
}
