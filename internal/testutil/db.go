// Package testutil provides database fixtures shared by service tests.
package testutil

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/settlement-core/pkg/db"
	"github.com/angelmondragon/settlement-core/pkg/db/models"
	"github.com/angelmondragon/settlement-core/pkg/logger"
)

// NewSQLiteDB opens an isolated in-memory database with every model migrated.
// The pool is capped at one connection so transactions serialize like row
// locks would.
func NewSQLiteDB(t testing.TB) *db.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:settle_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db.Wrap(conn)
}

// NewLogger returns a logger that discards output.
func NewLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

// SeedStore inserts a store with a fake name and shipping origin id.
func SeedStore(t testing.TB, conn *gorm.DB, ownerID uuid.UUID) models.Store {
	t.Helper()
	store := models.Store{
		OwnerID:   ownerID,
		Name:      gofakeit.Company(),
		AddressID: fmt.Sprintf("%d", gofakeit.Number(100, 9999)),
	}
	if err := conn.Create(&store).Error; err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

// SeedProduct inserts a product for the store.
func SeedProduct(t testing.TB, conn *gorm.DB, storeID uuid.UUID, price string, weight, stock int) models.Product {
	t.Helper()
	product := models.Product{
		StoreID: storeID,
		Name:    gofakeit.ProductName(),
		Price:   decimal.RequireFromString(price),
		Weight:  weight,
		Stock:   stock,
	}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

// SeedBalance provisions the store balance row with an opening amount.
func SeedBalance(t testing.TB, conn *gorm.DB, storeID uuid.UUID, amount string) models.StoreBalance {
	t.Helper()
	balance := models.StoreBalance{
		StoreID: storeID,
		Balance: decimal.RequireFromString(amount),
	}
	if err := conn.Create(&balance).Error; err != nil {
		t.Fatalf("seed balance: %v", err)
	}
	return balance
}

// ReloadProduct reads the current product row.
func ReloadProduct(t testing.TB, conn *gorm.DB, id uuid.UUID) models.Product {
	t.Helper()
	var product models.Product
	if err := conn.First(&product, "id = ?", id).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	return product
}

// ReloadOrder reads the current order row with its lines.
func ReloadOrder(t testing.TB, conn *gorm.DB, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	if err := conn.Preload("Lines").First(&order, "id = ?", id).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return order
}

// ReloadBalance reads the current store balance row.
func ReloadBalance(t testing.TB, conn *gorm.DB, id uuid.UUID) models.StoreBalance {
	t.Helper()
	var balance models.StoreBalance
	if err := conn.First(&balance, "id = ?", id).Error; err != nil {
		t.Fatalf("reload balance: %v", err)
	}
	return balance
}

// CountEvents counts outbox rows of the given type for an aggregate.
func CountEvents(t testing.TB, conn *gorm.DB, eventType string, aggregateID uuid.UUID) int64 {
	t.Helper()
	var count int64
	if err := conn.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", eventType, aggregateID).
		Count(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	return count
}
