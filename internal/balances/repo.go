package balances

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/settlement-core/pkg/db"
	"github.com/angelmondragon/settlement-core/pkg/db/models"
	"github.com/angelmondragon/settlement-core/pkg/types"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a balance repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.StoreBalance, error) {
	return r.first(r.db.WithContext(ctx), "id = ?", id)
}

func (r *repository) FindByStoreID(ctx context.Context, storeID uuid.UUID) (*models.StoreBalance, error) {
	return r.first(r.db.WithContext(ctx), "store_id = ?", storeID)
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.StoreBalance, error) {
	return r.first(dbpkg.ForUpdate(r.db.WithContext(ctx)), "id = ?", id)
}

func (r *repository) LockByStoreID(ctx context.Context, storeID uuid.UUID) (*models.StoreBalance, error) {
	return r.first(dbpkg.ForUpdate(r.db.WithContext(ctx)), "store_id = ?", storeID)
}

func (r *repository) first(q *gorm.DB, where string, arg any) (*models.StoreBalance, error) {
	var balance models.StoreBalance
	if err := q.Where(where, arg).First(&balance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

func (r *repository) CreateIfMissing(ctx context.Context, storeID uuid.UUID) error {
	row := models.StoreBalance{StoreID: storeID, Balance: decimal.Zero}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "store_id"}}, DoNothing: true}).
		Create(&row).Error
}

func (r *repository) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.StoreBalance{}).
		Where("id = ?", id).
		Update("balance", balance).Error
}

func (r *repository) InsertEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListEntries(ctx context.Context, balanceID uuid.UUID, page types.Page) ([]models.LedgerEntry, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.LedgerEntry{}).Where("store_balance_id = ?", balanceID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var entries []models.LedgerEntry
	err := q.Order("created_at DESC").Order("id DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&entries).Error
	return entries, total, err
}

func (r *repository) SumCountingEntries(ctx context.Context, balanceID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("SUM(amount)").
		Where("store_balance_id = ? AND counts_toward_balance = ?", balanceID, true).
		Row().
		Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal.Round(2), nil
}
