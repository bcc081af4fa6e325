package inventory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-core/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlement-core/pkg/errors"
	"github.com/angelmondragon/settlement-core/pkg/logger"
)

// Request asks for qty units of a product.
type Request struct {
	ProductID uuid.UUID
	Quantity  int
}

// Reservation is a successful decrement. Product is the row as read under
// the lock, before the decrement.
type Reservation struct {
	Product  models.Product
	Quantity int
}

// StockShortage describes why a reservation failed.
type StockShortage struct {
	ProductID uuid.UUID `json:"product_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// Ledger reserves and releases product stock inside a caller's transaction.
type Ledger interface {
	Reserve(ctx context.Context, tx *gorm.DB, reqs []Request) ([]Reservation, error)
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	ReleaseLines(ctx context.Context, tx *gorm.DB, lines []models.OrderLine) error
}

type Service struct {
	repo Repository
	logg *logger.Logger
}

var _ Ledger = (*Service)(nil)

func NewService(repo Repository, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("inventory repository required")
	}
	return &Service{repo: repo, logg: logg}, nil
}

// Normalize merges duplicate products and orders requests by ascending
// product id so every transaction acquires row locks in the same order.
func Normalize(reqs []Request) ([]Request, error) {
	if len(reqs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	for _, req := range reqs {
		if req.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if req.Quantity <= 0 {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "quantity for product %s must be positive", req.ProductID)
		}
	}

	grouped := lo.GroupBy(reqs, func(r Request) uuid.UUID { return r.ProductID })
	merged := lo.MapToSlice(grouped, func(id uuid.UUID, group []Request) Request {
		return Request{
			ProductID: id,
			Quantity:  lo.SumBy(group, func(r Request) int { return r.Quantity }),
		}
	})
	sort.Slice(merged, func(i, j int) bool {
		return bytes.Compare(merged[i].ProductID[:], merged[j].ProductID[:]) < 0
	})
	return merged, nil
}

// Reserve locks each product, verifies availability and decrements stock.
// Any failure leaves the caller's transaction to roll back every decrement.
func (s *Service) Reserve(ctx context.Context, tx *gorm.DB, reqs []Request) ([]Reservation, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	normalized, err := Normalize(reqs)
	if err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	reservations := make([]Reservation, 0, len(normalized))
	for _, req := range normalized {
		product, err := repo.LockProduct(ctx, req.ProductID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock product")
		}
		if product == nil {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", req.ProductID)
		}
		if product.Stock < req.Quantity {
			return nil, shortage(req, product.Stock)
		}
		ok, err := repo.Decrement(ctx, req.ProductID, req.Quantity)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrement stock")
		}
		if !ok {
			return nil, shortage(req, product.Stock)
		}
		reservations = append(reservations, Reservation{Product: *product, Quantity: req.Quantity})
	}
	return reservations, nil
}

func shortage(req Request, available int) error {
	return pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "insufficient stock for product %s", req.ProductID).
		WithDetails(StockShortage{ProductID: req.ProductID, Requested: req.Quantity, Available: available})
}

// Release adds qty back to the product. It is unconditional; callers guard
// against releasing the same reservation twice.
func (s *Service) Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "release quantity must be positive")
	}
	if err := s.repo.WithTx(tx).Increment(ctx, productID, qty); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("release stock for %s", productID))
	}
	return nil
}

// ReleaseLines returns the stock of every order line.
func (s *Service) ReleaseLines(ctx context.Context, tx *gorm.DB, lines []models.OrderLine) error {
	for _, line := range lines {
		if err := s.Release(ctx, tx, line.ProductID, line.Quantity); err != nil {
			return err
		}
	}
	if s.logg != nil && len(lines) > 0 {
		s.logg.Info(s.logg.WithField(ctx, "lines", len(lines)), "order stock released")
	}
	return nil
}
