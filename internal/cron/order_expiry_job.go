package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-core/pkg/logger"
	"github.com/angelmondragon/settlement-core/pkg/metrics"
)

const (
	defaultOrderTTL    = 15 * time.Minute
	defaultExpiryBatch = 200
	expiryReason       = "payment window expired"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// expiringOrders is the slice of the orders service the reaper needs.
type expiringOrders interface {
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	FailPending(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (bool, error)
}

// OrderExpiryJobParams configure the stale order reaper.
type OrderExpiryJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Orders    expiringOrders
	Metrics   *metrics.CronJobMetrics
	TTL       time.Duration
	BatchSize int
}

// NewOrderExpiryJob builds the job that fails orders left unpaid past the TTL
// and returns their reserved stock.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultOrderTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &orderExpiryJob{
		logg:    params.Logger,
		db:      params.DB,
		orders:  params.Orders,
		metrics: params.Metrics,
		ttl:     ttl,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg    *logger.Logger
	db      txRunner
	orders  expiringOrders
	metrics *metrics.CronJobMetrics
	ttl     time.Duration
	batch   int
	now     func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

// Run reaps each candidate in its own transaction. One failing order does not
// stop the rest; every failure is returned together.
func (j *orderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	ids, err := j.orders.ListExpired(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list expired orders: %w", err)
	}

	var (
		errs   error
		reaped int
	)
	for _, id := range ids {
		if ctxErr := ctx.Err(); ctxErr != nil {
			errs = multierr.Append(errs, ctxErr)
			break
		}
		changed, err := j.expire(ctx, id)
		if err != nil {
			j.logg.Error(j.logg.WithField(ctx, "order_id", id.String()), "order expiry failed", err)
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", id, err))
			continue
		}
		if changed {
			reaped++
		}
	}
	j.metrics.AddProcessed(j.Name(), reaped)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(ids),
		"reaped":     reaped,
		"errors":     len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "order expiry sweep complete")
	return errs
}

func (j *orderExpiryJob) expire(ctx context.Context, id uuid.UUID) (bool, error) {
	var changed bool
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		changed, err = j.orders.FailPending(ctx, tx, id, expiryReason)
		return err
	})
	return changed, err
}
