package pricing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-core/pkg/db/models"
)

// Catalog reads the store and product rows a quote is priced from.
type Catalog interface {
	FindStore(ctx context.Context, id uuid.UUID) (*models.Store, error)
	FindProducts(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

type catalog struct {
	db *gorm.DB
}

// NewCatalog builds a read-only catalog repository.
func NewCatalog(db *gorm.DB) Catalog {
	return &catalog{db: db}
}

func (c *catalog) FindStore(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	var store models.Store
	if err := c.db.WithContext(ctx).First(&store, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &store, nil
}

func (c *catalog) FindProducts(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []models.Product
	err := c.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error
	return products, err
}
