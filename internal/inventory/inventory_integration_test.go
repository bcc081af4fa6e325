//go:build integration

package inventory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-core/internal/testutil"
	pkgerrors "github.com/angelmondragon/settlement-core/pkg/errors"
)

// Two buyers race for the last unit; exactly one wins and stock never
// goes negative.
func TestConcurrentReserveLastUnit(t *testing.T) {
	client := testutil.NewPostgresDB(t)
	conn := client.DB()
	ctx := context.Background()
	svc := newTestService(t, conn)

	store := testutil.SeedStore(t, conn, uuid.New())
	product := testutil.SeedProduct(t, conn, store.ID, "10000", 100, 1)

	var wins, shortages atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := client.WithTx(ctx, func(tx *gorm.DB) error {
				_, err := svc.Reserve(ctx, tx, []Request{{ProductID: product.ID, Quantity: 1}})
				return err
			})
			switch {
			case err == nil:
				wins.Add(1)
			case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
				shortages.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(1), shortages.Load())
	assert.Equal(t, 0, testutil.ReloadProduct(t, conn, product.ID).Stock)
}

// Opposite request orders are normalized, so crossing carts never deadlock.
func TestConcurrentReserveCrossingOrders(t *testing.T) {
	client := testutil.NewPostgresDB(t)
	conn := client.DB()
	ctx := context.Background()
	svc := newTestService(t, conn)

	store := testutil.SeedStore(t, conn, uuid.New())
	a := testutil.SeedProduct(t, conn, store.ID, "1000", 10, 50)
	b := testutil.SeedProduct(t, conn, store.ID, "1000", 10, 50)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		reqs := []Request{{ProductID: a.ID, Quantity: 1}, {ProductID: b.ID, Quantity: 1}}
		if i%2 == 1 {
			reqs[0], reqs[1] = reqs[1], reqs[0]
		}
		go func(reqs []Request) {
			defer wg.Done()
			err := client.WithTx(ctx, func(tx *gorm.DB) error {
				_, err := svc.Reserve(ctx, tx, reqs)
				return err
			})
			assert.NoError(t, err)
		}(reqs)
	}
	wg.Wait()

	assert.Equal(t, 30, testutil.ReloadProduct(t, conn, a.ID).Stock)
	assert.Equal(t, 30, testutil.ReloadProduct(t, conn, b.ID).Stock)
}
