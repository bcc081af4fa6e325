package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/settlement-core/pkg/db"
	"github.com/angelmondragon/settlement-core/pkg/db/models"
	"github.com/angelmondragon/settlement-core/pkg/enums"
	"github.com/angelmondragon/settlement-core/pkg/types"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order together with its lines.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Order{}).Where("code = ?", code).Count(&count).Error
	return count > 0, err
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return first(r.db.WithContext(ctx).Preload("Lines"), "id = ?", id)
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.Order, error) {
	return first(r.db.WithContext(ctx).Preload("Lines"), "code = ?", code)
}

// LockByID locks the order row. Lines are not loaded; use FindLines.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return first(dbpkg.ForUpdate(r.db.WithContext(ctx)), "id = ?", id)
}

func (r *repository) LockByCode(ctx context.Context, code string) (*models.Order, error) {
	return first(dbpkg.ForUpdate(r.db.WithContext(ctx)), "code = ?", code)
}

func first(q *gorm.DB, where string, arg any) (*models.Order, error) {
	var order models.Order
	if err := q.Where(where, arg).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("product_id ASC").
		Find(&lines).Error
	return lines, err
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// FindOpenCreatedBefore returns ids of orders still awaiting payment that
// were created at or before cutoff, oldest first.
func (r *repository) FindOpenCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	q := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("payment_status IN ?", enums.OpenPaymentStatuses()).
		Where("created_at <= ?", cutoff).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Pluck("id", &ids).Error
	return ids, err
}

func (r *repository) List(ctx context.Context, filter ListFilter, page types.Page) ([]models.Order, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{})
	if filter.BuyerID != nil {
		q = q.Where("buyer_id = ?", *filter.BuyerID)
	}
	if filter.StoreID != nil {
		q = q.Where("store_id = ?", *filter.StoreID)
	}
	if filter.PaymentStatus != nil {
		q = q.Where("payment_status = ?", *filter.PaymentStatus)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []models.Order
	err := q.Preload("Lines").
		Order("created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&items).Error
	return items, total, err
}
