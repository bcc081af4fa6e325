package withdrawals

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/settlement-core/pkg/db"
	"github.com/angelmondragon/settlement-core/pkg/db/models"
	"github.com/angelmondragon/settlement-core/pkg/types"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, w *models.Withdrawal) error {
	return r.db.WithContext(ctx).Create(w).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	return first(r.db.WithContext(ctx), id)
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	return first(dbpkg.ForUpdate(r.db.WithContext(ctx)), id)
}

func first(q *gorm.DB, id uuid.UUID) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := q.Where("id = ?", id).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Withdrawal{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) ListByBalance(ctx context.Context, storeBalanceID uuid.UUID, page types.Page) ([]models.Withdrawal, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Withdrawal{}).Where("store_balance_id = ?", storeBalanceID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []models.Withdrawal
	err := q.Order("created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&items).Error
	return items, total, err
}
