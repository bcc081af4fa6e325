package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-core/internal/balances"
	"github.com/angelmondragon/settlement-core/internal/orders"
	"github.com/angelmondragon/settlement-core/pkg/auth"
	"github.com/angelmondragon/settlement-core/pkg/db/models"
	"github.com/angelmondragon/settlement-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-core/pkg/errors"
	"github.com/angelmondragon/settlement-core/pkg/gateway"
	"github.com/angelmondragon/settlement-core/pkg/logger"
	"github.com/angelmondragon/settlement-core/pkg/outbox"
	"github.com/angelmondragon/settlement-core/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OrderFailer is the shared terminal guard for unpaid orders.
type OrderFailer interface {
	FailPending(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (bool, error)
}

// Outcome describes what a status update did to an order.
type Outcome struct {
	OrderID uuid.UUID
	Code    string
	Target  enums.PaymentStatus
	Applied bool
}

type ServiceParams struct {
	Orders       orders.Repository
	Tx           txRunner
	Gateway      Gateway
	Balances     balances.Ledger
	Failer       OrderFailer
	Outbox       outbox.Emitter
	AdminFeeRate decimal.Decimal
	Logger       *logger.Logger
}

// Service applies gateway payment results to orders and settles paid
// orders into the store balance.
type Service struct {
	orders       orders.Repository
	tx           txRunner
	gateway      Gateway
	balances     balances.Ledger
	failer       OrderFailer
	outbox       outbox.Emitter
	adminFeeRate decimal.Decimal
	logg         *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Orders == nil:
		return nil, errors.New("orders repository required")
	case params.Tx == nil:
		return nil, errors.New("transaction runner required")
	case params.Gateway == nil:
		return nil, errors.New("payment gateway required")
	case params.Balances == nil:
		return nil, errors.New("balance ledger required")
	case params.Failer == nil:
		return nil, errors.New("order failer required")
	case params.Outbox == nil:
		return nil, errors.New("outbox emitter required")
	}
	if params.AdminFeeRate.IsNegative() || params.AdminFeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, errors.New("admin fee rate must be in [0, 1)")
	}
	return &Service{
		orders:       params.Orders,
		tx:           params.Tx,
		gateway:      params.Gateway,
		balances:     params.Balances,
		failer:       params.Failer,
		outbox:       params.Outbox,
		adminFeeRate: params.AdminFeeRate,
		logg:         params.Logger,
	}, nil
}

// IngestCallback verifies and applies a pushed gateway notification.
// Nothing is read or written before the signature checks out. Repeated
// deliveries are no-ops.
func (s *Service) IngestCallback(ctx context.Context, n gateway.Notification) error {
	if !n.VerifySignature(s.gateway.ServerKey()) {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithOrderCode(ctx, n.OrderID), "gateway callback signature mismatch")
		}
		return pkgerrors.New(pkgerrors.CodeInvalidSignature, "callback signature mismatch")
	}
	_, err := s.applyStatus(ctx, n)
	return err
}

// CheckStatus polls the gateway for an order the caller may read and applies
// whatever it reports.
func (s *Service) CheckStatus(ctx context.Context, authz auth.Authorization, orderID uuid.UUID) (*models.Order, error) {
	if authz == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if !authz.IsUser(order.BuyerID) && !authz.OwnsStore(order.StoreID) && !authz.IsRole(enums.RoleAdmin) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another account")
	}
	if !order.PaymentStatus.IsOpen() {
		return order, nil
	}

	n, err := s.gateway.Status(ctx, order.Code)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return order, nil
		}
		return nil, err
	}
	n.OrderID = order.Code
	if _, err := s.applyStatus(ctx, *n); err != nil {
		return nil, err
	}

	reloaded, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
	}
	return reloaded, nil
}

func (s *Service) applyStatus(ctx context.Context, n gateway.Notification) (Outcome, error) {
	target := n.MapStatus()
	outcome := Outcome{Code: n.OrderID, Target: target}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := repo.LockByCode(ctx, n.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock order")
		}
		if order == nil {
			return pkgerrors.Newf(pkgerrors.CodeNotFound, "order %s not found", n.OrderID)
		}
		outcome.OrderID = order.ID

		switch target {
		case enums.PaymentStatusPaid:
			if !order.PaymentStatus.IsOpen() {
				return nil
			}
			if err := s.settle(ctx, tx, repo, order); err != nil {
				return err
			}
			outcome.Applied = true
		case enums.PaymentStatusUnpaid:
			if order.PaymentStatus != enums.PaymentStatusPending {
				return nil
			}
			if err := repo.Update(ctx, order.ID, map[string]any{"payment_status": enums.PaymentStatusUnpaid}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order unpaid")
			}
			outcome.Applied = true
		default:
			changed, err := s.failer.FailPending(ctx, tx, order.ID, "payment "+n.TransactionStatus)
			if err != nil {
				return err
			}
			outcome.Applied = changed
		}
		return nil
	})
	if err != nil {
		return outcome, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderCode(ctx, n.OrderID), map[string]any{
			"transaction_status": n.TransactionStatus,
			"payment_status":     target,
			"applied":            outcome.Applied,
		})
		s.logg.Info(logCtx, "gateway status applied")
	}
	return outcome, nil
}

// settle marks the order paid and posts net sales minus the admin fee to
// the store balance, each movement with its ledger entry.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, repo orders.Repository, order *models.Order) error {
	netSales := order.NetSales().Round(2)
	adminFee := netSales.Mul(s.adminFeeRate).Round(2)

	if err := repo.Update(ctx, order.ID, map[string]any{
		"payment_status": enums.PaymentStatusPaid,
		"admin_fee":      adminFee,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order paid")
	}

	balance, err := s.balances.EnsureForStore(ctx, tx, order.StoreID)
	if err != nil {
		return err
	}
	ref := balances.ForOrder(order.ID)

	if netSales.IsPositive() {
		if _, err := s.balances.Credit(ctx, tx, balance.ID, netSales); err != nil {
			return err
		}
		if _, err := s.balances.Record(ctx, tx, balances.Entry{
			StoreBalanceID: balance.ID,
			Type:           enums.LedgerEntryIncome,
			Amount:         netSales,
			Ref:            ref,
			Remark:         "Income from order " + order.Code,
		}); err != nil {
			return err
		}
	}
	if adminFee.IsPositive() {
		if _, err := s.balances.Debit(ctx, tx, balance.ID, adminFee); err != nil {
			return err
		}
		if _, err := s.balances.Record(ctx, tx, balances.Entry{
			StoreBalanceID: balance.ID,
			Type:           enums.LedgerEntryExpense,
			Amount:         adminFee.Neg(),
			Ref:            ref,
			Remark:         "Admin fee for order " + order.Code,
		}); err != nil {
			return err
		}
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderPaidEvent{
			OrderID:        order.ID,
			Code:           order.Code,
			StoreID:        order.StoreID,
			StoreBalanceID: balance.ID,
			NetSales:       netSales,
			AdminFee:       adminFee,
		},
	}); err != nil {
		return err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderCode(ctx, order.Code), map[string]any{
			"net_sales": netSales.StringFixed(2),
			"admin_fee": adminFee.StringFixed(2),
		})
		s.logg.Info(logCtx, "settlement posted")
	}
	return nil
}
