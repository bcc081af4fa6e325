package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-core/internal/inventory"
	"github.com/angelmondragon/settlement-core/internal/pricing"
	"github.com/angelmondragon/settlement-core/pkg/auth"
	dbpkg "github.com/angelmondragon/settlement-core/pkg/db"
	"github.com/angelmondragon/settlement-core/pkg/db/models"
	"github.com/angelmondragon/settlement-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-core/pkg/errors"
	"github.com/angelmondragon/settlement-core/pkg/logger"
	"github.com/angelmondragon/settlement-core/pkg/outbox"
	"github.com/angelmondragon/settlement-core/pkg/outbox/payloads"
)

// Service is the order lifecycle.
type Service interface {
	Create(ctx context.Context, authz auth.Authorization, in CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, authz auth.Authorization, id uuid.UUID) (*models.Order, error)
	GetByCode(ctx context.Context, authz auth.Authorization, code string) (*models.Order, error)
	List(ctx context.Context, authz auth.Authorization, q ListQuery) (*List, error)
	UpdateDeliveryStatus(ctx context.Context, authz auth.Authorization, orderID uuid.UUID, in UpdateDeliveryInput) (*models.Order, error)
	Cancel(ctx context.Context, authz auth.Authorization, orderID uuid.UUID) (*models.Order, error)
	RetryPayment(ctx context.Context, authz auth.Authorization, orderID uuid.UUID, buyer BuyerContact) (*models.Order, error)
	FailPending(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (bool, error)
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Pricing   pricing.Quoter
	Inventory inventory.Ledger
	Outbox    outbox.Emitter
	Payments  PaymentIntents
	Logger    *logger.Logger
	Codes     CodeGenerator
}

type service struct {
	repo      Repository
	tx        txRunner
	pricing   pricing.Quoter
	inventory inventory.Ledger
	outbox    outbox.Emitter
	payments  PaymentIntents
	logg      *logger.Logger
	codes     CodeGenerator
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("orders repository required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Pricing == nil {
		return nil, errors.New("pricing quoter required")
	}
	if params.Inventory == nil {
		return nil, errors.New("inventory ledger required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	if params.Payments == nil {
		return nil, errors.New("payment intents required")
	}
	codes := params.Codes
	if codes == nil {
		codes = RandomCode
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		pricing:   params.Pricing,
		inventory: params.Inventory,
		outbox:    params.Outbox,
		payments:  params.Payments,
		logg:      params.Logger,
		codes:     codes,
	}, nil
}

// Create quotes the order, then reserves stock and persists the order in one
// transaction. The payment intent is requested after commit; when it fails
// the order stays pending without a token.
func (s *service) Create(ctx context.Context, authz auth.Authorization, in CreateOrderInput) (*models.Order, error) {
	if authz == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if authz.IsRole(enums.RoleAdmin) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admins cannot place orders")
	}
	shippingAddr := in.Shipping.Normalize()
	if missing := shippingAddr.Missing(); len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	if len(in.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	for _, line := range in.Lines {
		if line.Quantity <= 0 {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "quantity for product %s must be positive", line.ProductID)
		}
	}

	quote, err := s.pricing.Quote(ctx, pricing.QuoteInput{
		StoreID:       in.StoreID,
		DestinationID: shippingAddr.DestinationID,
		Lines:         in.Lines,
		Carrier:       in.Carrier,
		Service:       in.Service,
	})
	if err != nil {
		return nil, err
	}

	buyerID := authz.ActorID()
	var order *models.Order
	for attempt := 1; ; attempt++ {
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			code, err := s.nextCode(ctx, repo)
			if err != nil {
				return err
			}

			reqs := lo.Map(in.Lines, func(l pricing.Line, _ int) inventory.Request {
				return inventory.Request{ProductID: l.ProductID, Quantity: l.Quantity}
			})
			reservations, err := s.inventory.Reserve(ctx, tx, reqs)
			if err != nil {
				return err
			}

			priced := make([]pricing.PricedLine, 0, len(reservations))
			weight := 0
			for _, r := range reservations {
				if r.Product.StoreID != in.StoreID {
					return pkgerrors.Newf(pkgerrors.CodeValidation, "product %s does not belong to store %s", r.Product.ID, in.StoreID)
				}
				priced = append(priced, pricing.PriceLine(pricing.Line{ProductID: r.Product.ID, Quantity: r.Quantity}, r.Product.Price))
				weight += r.Product.Weight * r.Quantity
			}
			if weight < 1 {
				weight = 1
			}
			totals := pricing.ComputeTotals(priced, quote.ShippingCost, s.pricing.VATRate())

			order = &models.Order{
				Code:            code,
				BuyerID:         buyerID,
				StoreID:         in.StoreID,
				Shipping:        shippingAddr,
				ShippingCarrier: quote.Option.Carrier,
				ShippingService: quote.Option.Service,
				Weight:          weight,
				Subtotal:        totals.Subtotal,
				ShippingCost:    totals.Shipping,
				Tax:             totals.Tax,
				GrandTotal:      totals.GrandTotal,
				PaymentStatus:   enums.PaymentStatusPending,
				DeliveryStatus:  enums.DeliveryStatusProcessing,
				Lines: lo.Map(priced, func(p pricing.PricedLine, _ int) models.OrderLine {
					return models.OrderLine{
						ProductID: p.ProductID,
						Quantity:  p.Quantity,
						UnitPrice: p.UnitPrice,
						Subtotal:  p.Subtotal,
					}
				}),
			}
			if err := repo.Create(ctx, order); err != nil {
				if dbpkg.IsUniqueViolation(err, orderCodeConstraint) {
					return errCodeTaken
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
			}

			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         outbox.ActorFrom(authz),
				Data: payloads.OrderCreatedEvent{
					OrderID:    order.ID,
					Code:       order.Code,
					BuyerID:    order.BuyerID,
					StoreID:    order.StoreID,
					GrandTotal: order.GrandTotal,
					LineCount:  len(order.Lines),
				},
			})
		})
		if !errors.Is(err, errCodeTaken) || attempt == maxCreateAttempts {
			break
		}
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "order code taken at insert, retrying")
		}
	}
	if errors.Is(err, errCodeTaken) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique order code")
	}
	if err != nil {
		return nil, err
	}

	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithOrderCode(ctx, order.Code)
		s.logg.Info(s.logg.WithField(logCtx, "grand_total", order.GrandTotal.StringFixed(2)), "order created")
	}
	s.attachIntent(logCtx, order, in.Buyer)
	return order, nil
}

// attachIntent requests a payment token and stores it. Failures are logged
// and leave the order without a token.
func (s *service) attachIntent(ctx context.Context, order *models.Order, buyer BuyerContact) {
	token, err := s.payments.CreateIntent(ctx, order, buyer)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "payment intent failed", err)
		}
		return
	}
	if err := s.repo.Update(ctx, order.ID, map[string]any{"payment_intent_token": token}); err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "persist payment intent token", err)
		}
		return
	}
	order.PaymentIntentToken = &token
}

func (s *service) Get(ctx context.Context, authz auth.Authorization, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return readable(authz, order)
}

func (s *service) GetByCode(ctx context.Context, authz auth.Authorization, code string) (*models.Order, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order code is required")
	}
	order, err := s.repo.FindByCode(ctx, trimmed)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return readable(authz, order)
}

// List pages through the orders visible to the caller: a buyer sees their
// purchases, a store its sales and an admin everything.
func (s *service) List(ctx context.Context, authz auth.Authorization, q ListQuery) (*List, error) {
	if authz == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	var filter ListFilter
	switch {
	case authz.IsRole(enums.RoleAdmin):
	case authz.IsRole(enums.RoleStore):
		storeID, ok := authz.ActingStore()
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "store actor has no store")
		}
		filter.StoreID = &storeID
	default:
		buyerID := authz.ActorID()
		filter.BuyerID = &buyerID
	}
	if q.PaymentStatus != "" {
		if !q.PaymentStatus.IsValid() {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payment status %q", q.PaymentStatus)
		}
		status := q.PaymentStatus
		filter.PaymentStatus = &status
	}

	page := q.Page.Normalize()
	items, total, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	return &List{Items: items, Total: total, Page: page}, nil
}

func readable(authz auth.Authorization, order *models.Order) (*models.Order, error) {
	if authz == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if authz.IsUser(order.BuyerID) || authz.OwnsStore(order.StoreID) || authz.IsRole(enums.RoleAdmin) {
		return order, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another account")
}

// UpdateDeliveryStatus applies processing->delivering by the store once the
// order is paid, and delivering->completed by the buyer.
func (s *service) UpdateDeliveryStatus(ctx context.Context, authz auth.Authorization, orderID uuid.UUID, in UpdateDeliveryInput) (*models.Order, error) {
	if authz == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !in.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid delivery status %q", in.Status)
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}

		next, ok := order.DeliveryStatus.Next()
		if !ok || next != in.Status {
			return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "cannot move delivery from %s to %s", order.DeliveryStatus, in.Status).
				WithDetails(TransitionDetails{From: order.DeliveryStatus, To: in.Status})
		}

		updates := map[string]any{"delivery_status": next}
		var eventType enums.OutboxEventType
		switch next {
		case enums.DeliveryStatusDelivering:
			if !authz.OwnsStore(order.StoreID) {
				return pkgerrors.New(pkgerrors.CodeForbidden, "only the store can ship this order")
			}
			if order.PaymentStatus != enums.PaymentStatusPaid {
				return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "order is %s, not paid", order.PaymentStatus).
					WithDetails(TransitionDetails{From: order.DeliveryStatus, To: next})
			}
			tracking := trimmed(in.TrackingNumber)
			if tracking == nil {
				return pkgerrors.New(pkgerrors.CodeValidation, "tracking number is required")
			}
			updates["tracking_number"] = *tracking
			order.TrackingNumber = tracking
			if proof := trimmed(in.Proof); proof != nil {
				updates["delivery_proof"] = *proof
				order.DeliveryProof = proof
			}
			eventType = enums.EventOrderDelivering
		case enums.DeliveryStatusCompleted:
			if !authz.IsUser(order.BuyerID) {
				return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can confirm receipt")
			}
			proof := trimmed(in.Proof)
			if proof == nil {
				return pkgerrors.New(pkgerrors.CodeValidation, "receiving proof is required")
			}
			updates["receiving_proof"] = *proof
			order.ReceivingProof = proof
			eventType = enums.EventOrderCompleted
		}

		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update delivery status")
		}
		order.DeliveryStatus = next

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.ActorFrom(authz),
			Data: payloads.OrderDeliveryEvent{
				OrderID:        order.ID,
				Code:           order.Code,
				StoreID:        order.StoreID,
				BuyerID:        order.BuyerID,
				Status:         next,
				TrackingNumber: order.TrackingNumber,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "delivery_status", in.Status), "order delivery updated")
	}
	return s.reload(ctx, orderID)
}

// Cancel fails an order that is still awaiting payment and returns its stock.
func (s *service) Cancel(ctx context.Context, authz auth.Authorization, orderID uuid.UUID) (*models.Order, error) {
	if authz == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	isAdmin := authz.IsRole(enums.RoleAdmin)
	if !isAdmin && !authz.IsUser(order.BuyerID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another buyer")
	}

	reason := "cancelled by buyer"
	if isAdmin {
		reason = "cancelled by admin"
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		changed, err := s.FailPending(ctx, tx, orderID, reason)
		if err != nil {
			return err
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order is no longer awaiting payment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, orderID)
}

// RetryPayment requests a fresh intent for an order still awaiting payment.
func (s *service) RetryPayment(ctx context.Context, authz auth.Authorization, orderID uuid.UUID, buyer BuyerContact) (*models.Order, error) {
	if authz == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if !authz.IsUser(order.BuyerID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another buyer")
	}
	if !order.PaymentStatus.IsOpen() {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "order is already %s", order.PaymentStatus)
	}

	token, err := s.payments.CreateIntent(ctx, order, buyer)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, order.ID, map[string]any{"payment_intent_token": token}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment intent token")
	}
	order.PaymentIntentToken = &token
	return order, nil
}

// FailPending is the single guard that terminates an unpaid order. Inside
// tx it locks the order and, only while the payment is pending or unpaid,
// marks it failed, releases every line and emits order.failed. It reports
// whether this call made the change.
func (s *service) FailPending(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	repo := s.repo.WithTx(tx)
	order, err := repo.LockByID(ctx, orderID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock order")
	}
	if order == nil {
		return false, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if !order.PaymentStatus.IsOpen() {
		return false, nil
	}

	if err := repo.Update(ctx, order.ID, map[string]any{"payment_status": enums.PaymentStatusFailed}); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order failed")
	}
	lines, err := repo.FindLines(ctx, order.ID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order lines")
	}
	if err := s.inventory.ReleaseLines(ctx, tx, lines); err != nil {
		return false, err
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderFailed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderFailedEvent{
			OrderID: order.ID,
			Code:    order.Code,
			StoreID: order.StoreID,
			Reason:  reason,
		},
	}); err != nil {
		return false, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderCode(ctx, order.Code), map[string]any{
			"reason":      reason,
			"from_status": order.PaymentStatus,
		})
		s.logg.Info(logCtx, "order payment failed")
	}
	return true, nil
}

// ListExpired returns orders awaiting payment created at or before cutoff.
func (s *service) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	ids, err := s.repo.FindOpenCreatedBefore(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list expired orders")
	}
	return ids, nil
}

func (s *service) reload(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
