package orders

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-core/internal/inventory"
	"github.com/angelmondragon/settlement-core/internal/pricing"
	"github.com/angelmondragon/settlement-core/internal/testutil"
	"github.com/angelmondragon/settlement-core/pkg/db"
	"github.com/angelmondragon/settlement-core/pkg/db/models"
	"github.com/angelmondragon/settlement-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-core/pkg/errors"
	"github.com/angelmondragon/settlement-core/pkg/outbox"
	"github.com/angelmondragon/settlement-core/pkg/shipping"
	"github.com/angelmondragon/settlement-core/pkg/types"
)

type fakeRates struct{}

func (fakeRates) Rates(context.Context, shipping.RateRequest) ([]shipping.Rate, error) {
	return []shipping.Rate{
		{Carrier: "jne", Service: "REG", Cost: decimal.NewFromInt(15000), ETD: "2-3"},
		{Carrier: "jne", Service: "YES", Cost: decimal.NewFromInt(30000), ETD: "1"},
	}, nil
}

type fakeIntents struct {
	token string
	err   error
	calls int
}

func (f *fakeIntents) CreateIntent(context.Context, *models.Order, BuyerContact) (string, error) {
	f.calls++
	return f.token, f.err
}

type fixture struct {
	client  *db.Client
	conn    *gorm.DB
	svc     Service
	params  ServiceParams
	intents *fakeIntents
	ownerID uuid.UUID
	store   models.Store
	product models.Product
}

func newFixture(t *testing.T, codes CodeGenerator) *fixture {
	t.Helper()
	client := testutil.NewSQLiteDB(t)
	conn := client.DB()
	logg := testutil.NewLogger()

	quoter, err := pricing.NewService(pricing.ServiceParams{
		Catalog: pricing.NewCatalog(conn),
		Rates:   fakeRates{},
		VATRate: decimal.RequireFromString("0.11"),
		Logger:  logg,
	})
	require.NoError(t, err)
	stock, err := inventory.NewService(inventory.NewRepository(conn), logg)
	require.NoError(t, err)
	intents := &fakeIntents{token: "snap-token"}

	params := ServiceParams{
		Repo:      NewRepository(conn),
		Tx:        client,
		Pricing:   quoter,
		Inventory: stock,
		Outbox:    outbox.NewService(outbox.NewRepository(conn), logg),
		Payments:  intents,
		Logger:    logg,
		Codes:     codes,
	}
	svc, err := NewService(params)
	require.NoError(t, err)

	ownerID := uuid.New()
	store := testutil.SeedStore(t, conn, ownerID)
	product := testutil.SeedProduct(t, conn, store.ID, "10000", 500, 10)
	return &fixture{
		client:  client,
		conn:    conn,
		svc:     svc,
		params:  params,
		intents: intents,
		ownerID: ownerID,
		store:   store,
		product: product,
	}
}

func (f *fixture) input(qty int) CreateOrderInput {
	return CreateOrderInput{
		StoreID: f.store.ID,
		Shipping: types.AddressSnapshot{
			RecipientName: "Rina",
			Phone:         "08123456789",
			AddressLine:   "Jl. Merdeka 1",
			City:          "Bandung",
			PostalCode:    "40111",
			DestinationID: "501",
		},
		Lines:   []pricing.Line{{ProductID: f.product.ID, Quantity: qty}},
		Carrier: "jne",
		Service: "REG",
		Buyer:   BuyerContact{Name: "Rina", Email: "rina@example.com"},
	}
}

func (f *fixture) setPaymentStatus(t *testing.T, orderID uuid.UUID, status enums.PaymentStatus) {
	t.Helper()
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", orderID).Update("payment_status", status).Error)
}

func TestCreateOrderPricesReservesAndEmits(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	buyer := testutil.BuyerActor(uuid.New())

	order, err := f.svc.Create(ctx, buyer, f.input(2))
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^BLUE\d{5}$`), order.Code)
	assert.Equal(t, buyer.UserID, order.BuyerID)
	assert.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, enums.DeliveryStatusProcessing, order.DeliveryStatus)
	assert.True(t, order.Subtotal.Equal(decimal.NewFromInt(20000)))
	assert.True(t, order.Tax.Equal(decimal.NewFromInt(2200)))
	assert.True(t, order.ShippingCost.Equal(decimal.NewFromInt(15000)))
	assert.True(t, order.GrandTotal.Equal(decimal.NewFromInt(37200)))
	assert.True(t, order.GrandTotal.Equal(order.Subtotal.Add(order.Tax).Add(order.ShippingCost)))
	assert.Equal(t, 1000, order.Weight)
	require.NotNil(t, order.PaymentIntentToken)
	assert.Equal(t, "snap-token", *order.PaymentIntentToken)

	stored := testutil.ReloadOrder(t, f.conn, order.ID)
	require.Len(t, stored.Lines, 1)
	assert.Equal(t, 2, stored.Lines[0].Quantity)
	assert.True(t, stored.Lines[0].UnitPrice.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, "501", stored.Shipping.DestinationID)
	require.NotNil(t, stored.PaymentIntentToken)

	assert.Equal(t, 8, testutil.ReloadProduct(t, f.conn, f.product.ID).Stock)
	assert.EqualValues(t, 1, testutil.CountEvents(t, f.conn, string(enums.EventOrderCreated), order.ID))
}

func TestCreateOrderIntentFailureKeepsPendingOrder(t *testing.T) {
	f := newFixture(t, nil)
	f.intents.err = pkgerrors.New(pkgerrors.CodeExternalService, "gateway down")

	order, err := f.svc.Create(context.Background(), testutil.BuyerActor(uuid.New()), f.input(1))
	require.NoError(t, err)
	assert.Nil(t, order.PaymentIntentToken)

	stored := testutil.ReloadOrder(t, f.conn, order.ID)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
	assert.Nil(t, stored.PaymentIntentToken)
	assert.Equal(t, 9, testutil.ReloadProduct(t, f.conn, f.product.ID).Stock)
}

func TestCreateOrderInsufficientStockRollsBack(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Create(context.Background(), testutil.BuyerActor(uuid.New()), f.input(11))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	var count int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, 10, testutil.ReloadProduct(t, f.conn, f.product.ID).Stock)
	assert.Zero(t, f.intents.calls)
}

func TestCreateOrderRejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, testutil.AdminActor(), f.input(1))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	in := f.input(1)
	in.Service = "OKE"
	_, err = f.svc.Create(ctx, testutil.BuyerActor(uuid.New()), in)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeQuote))

	in = f.input(0)
	_, err = f.svc.Create(ctx, testutil.BuyerActor(uuid.New()), in)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	in = f.input(1)
	in.Shipping.City = " "
	_, err = f.svc.Create(ctx, testutil.BuyerActor(uuid.New()), in)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	assert.Equal(t, 10, testutil.ReloadProduct(t, f.conn, f.product.ID).Stock)
}

func TestCreateOrderRetriesCodeCollision(t *testing.T) {
	seq := []string{"BLUE00001", "BLUE00001", "BLUE00001", "BLUE00002"}
	next := 0
	f := newFixture(t, func() string {
		code := seq[next]
		next++
		return code
	})
	ctx := context.Background()

	first, err := f.svc.Create(ctx, testutil.BuyerActor(uuid.New()), f.input(1))
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, testutil.BuyerActor(uuid.New()), f.input(1))
	require.NoError(t, err)

	assert.Equal(t, "BLUE00001", first.Code)
	assert.Equal(t, "BLUE00002", second.Code)
}

// staleCodeRepo reports every code as free, as a concurrent creator would
// see it before the other insert commits.
type staleCodeRepo struct {
	Repository
}

func (r staleCodeRepo) WithTx(tx *gorm.DB) Repository {
	return staleCodeRepo{Repository: r.Repository.WithTx(tx)}
}

func (staleCodeRepo) CodeExists(context.Context, string) (bool, error) {
	return false, nil
}

func TestCreateOrderRetriesCodeTakenAtInsert(t *testing.T) {
	seq := []string{"BLUE00001", "BLUE00001", "BLUE00002"}
	next := 0
	f := newFixture(t, func() string {
		code := seq[next]
		next++
		return code
	})
	ctx := context.Background()

	params := f.params
	params.Repo = staleCodeRepo{Repository: NewRepository(f.conn)}
	racy, err := NewService(params)
	require.NoError(t, err)

	first, err := racy.Create(ctx, testutil.BuyerActor(uuid.New()), f.input(1))
	require.NoError(t, err)
	second, err := racy.Create(ctx, testutil.BuyerActor(uuid.New()), f.input(1))
	require.NoError(t, err)

	assert.Equal(t, "BLUE00001", first.Code)
	assert.Equal(t, "BLUE00002", second.Code)
	// the rolled back attempt released its reservation
	assert.Equal(t, 8, testutil.ReloadProduct(t, f.conn, f.product.ID).Stock)
}

func TestCreateOrderCodeTakenEveryAttempt(t *testing.T) {
	f := newFixture(t, func() string { return "BLUE00001" })
	ctx := context.Background()

	params := f.params
	params.Repo = staleCodeRepo{Repository: NewRepository(f.conn)}
	racy, err := NewService(params)
	require.NoError(t, err)

	_, err = racy.Create(ctx, testutil.BuyerActor(uuid.New()), f.input(1))
	require.NoError(t, err)
	_, err = racy.Create(ctx, testutil.BuyerActor(uuid.New()), f.input(1))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, 9, testutil.ReloadProduct(t, f.conn, f.product.ID).Stock)
}

func TestDeliveryTransitions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	buyer := testutil.BuyerActor(uuid.New())
	store := testutil.StoreActor(f.ownerID, f.store.ID)
	tracking := "JNE123"
	proof := "https://proofs.example.com/receipt.jpg"

	order, err := f.svc.Create(ctx, buyer, f.input(1))
	require.NoError(t, err)

	_, err = f.svc.UpdateDeliveryStatus(ctx, buyer, order.ID, UpdateDeliveryInput{Status: enums.DeliveryStatusCompleted, Proof: &proof})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	_, err = f.svc.UpdateDeliveryStatus(ctx, store, order.ID, UpdateDeliveryInput{Status: enums.DeliveryStatusDelivering, TrackingNumber: &tracking})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition), "unpaid order cannot ship")

	f.setPaymentStatus(t, order.ID, enums.PaymentStatusPaid)

	_, err = f.svc.UpdateDeliveryStatus(ctx, buyer, order.ID, UpdateDeliveryInput{Status: enums.DeliveryStatusDelivering, TrackingNumber: &tracking})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.UpdateDeliveryStatus(ctx, store, order.ID, UpdateDeliveryInput{Status: enums.DeliveryStatusDelivering})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	updated, err := f.svc.UpdateDeliveryStatus(ctx, store, order.ID, UpdateDeliveryInput{Status: enums.DeliveryStatusDelivering, TrackingNumber: &tracking})
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusDelivering, updated.DeliveryStatus)
	require.NotNil(t, updated.TrackingNumber)
	assert.Equal(t, tracking, *updated.TrackingNumber)

	_, err = f.svc.UpdateDeliveryStatus(ctx, buyer, order.ID, UpdateDeliveryInput{Status: enums.DeliveryStatusCompleted})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.UpdateDeliveryStatus(ctx, store, order.ID, UpdateDeliveryInput{Status: enums.DeliveryStatusCompleted, Proof: &proof})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	done, err := f.svc.UpdateDeliveryStatus(ctx, buyer, order.ID, UpdateDeliveryInput{Status: enums.DeliveryStatusCompleted, Proof: &proof})
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusCompleted, done.DeliveryStatus)
	require.NotNil(t, done.ReceivingProof)
	assert.Equal(t, proof, *done.ReceivingProof)

	_, err = f.svc.UpdateDeliveryStatus(ctx, buyer, order.ID, UpdateDeliveryInput{Status: enums.DeliveryStatusCompleted, Proof: &proof})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	assert.EqualValues(t, 1, testutil.CountEvents(t, f.conn, string(enums.EventOrderDelivering), order.ID))
	assert.EqualValues(t, 1, testutil.CountEvents(t, f.conn, string(enums.EventOrderCompleted), order.ID))
}

func TestCancelReleasesStockOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	buyer := testutil.BuyerActor(uuid.New())

	order, err := f.svc.Create(ctx, buyer, f.input(3))
	require.NoError(t, err)
	assert.Equal(t, 7, testutil.ReloadProduct(t, f.conn, f.product.ID).Stock)

	_, err = f.svc.Cancel(ctx, testutil.BuyerActor(uuid.New()), order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	cancelled, err := f.svc.Cancel(ctx, buyer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFailed, cancelled.PaymentStatus)
	assert.Equal(t, 10, testutil.ReloadProduct(t, f.conn, f.product.ID).Stock)

	_, err = f.svc.Cancel(ctx, testutil.AdminActor(), order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
	assert.Equal(t, 10, testutil.ReloadProduct(t, f.conn, f.product.ID).Stock)
	assert.EqualValues(t, 1, testutil.CountEvents(t, f.conn, string(enums.EventOrderFailed), order.ID))
}

func TestFailPendingLeavesSettledOrders(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, testutil.BuyerActor(uuid.New()), f.input(1))
	require.NoError(t, err)
	f.setPaymentStatus(t, order.ID, enums.PaymentStatusPaid)

	var changed bool
	require.NoError(t, f.client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		changed, err = f.svc.FailPending(ctx, tx, order.ID, "expired")
		return err
	}))
	assert.False(t, changed)
	assert.Equal(t, enums.PaymentStatusPaid, testutil.ReloadOrder(t, f.conn, order.ID).PaymentStatus)
	assert.Equal(t, 9, testutil.ReloadProduct(t, f.conn, f.product.ID).Stock)

	err = f.client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := f.svc.FailPending(ctx, tx, uuid.New(), "expired")
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestReadAccess(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	buyer := testutil.BuyerActor(uuid.New())

	order, err := f.svc.Create(ctx, buyer, f.input(1))
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, buyer, order.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, testutil.StoreActor(f.ownerID, f.store.ID), order.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetByCode(ctx, testutil.AdminActor(), order.Code)
	assert.NoError(t, err)

	_, err = f.svc.Get(ctx, testutil.BuyerActor(uuid.New()), order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = f.svc.Get(ctx, buyer, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListScopesByRole(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	buyer := testutil.BuyerActor(uuid.New())

	mine, err := f.svc.Create(ctx, buyer, f.input(1))
	require.NoError(t, err)
	paid, err := f.svc.Create(ctx, buyer, f.input(1))
	require.NoError(t, err)
	f.setPaymentStatus(t, paid.ID, enums.PaymentStatusPaid)
	other, err := f.svc.Create(ctx, testutil.BuyerActor(uuid.New()), f.input(1))
	require.NoError(t, err)

	ids := func(l *List) []uuid.UUID {
		return lo.Map(l.Items, func(o models.Order, _ int) uuid.UUID { return o.ID })
	}

	list, err := f.svc.List(ctx, buyer, ListQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, list.Total)
	assert.ElementsMatch(t, []uuid.UUID{mine.ID, paid.ID}, ids(list))
	assert.Equal(t, types.DefaultPageLimit, list.Page.Limit)

	list, err = f.svc.List(ctx, buyer, ListQuery{PaymentStatus: enums.PaymentStatusPaid})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{paid.ID}, ids(list))

	list, err = f.svc.List(ctx, testutil.StoreActor(f.ownerID, f.store.ID), ListQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, list.Total)
	assert.Contains(t, ids(list), other.ID)

	list, err = f.svc.List(ctx, testutil.StoreActor(uuid.New(), uuid.New()), ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, list.Items)

	list, err = f.svc.List(ctx, testutil.AdminActor(), ListQuery{Page: types.Page{Limit: 1}})
	require.NoError(t, err)
	assert.EqualValues(t, 3, list.Total)
	assert.Len(t, list.Items, 1)

	_, err = f.svc.List(ctx, buyer, ListQuery{PaymentStatus: "refunded"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.List(ctx, nil, ListQuery{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestRetryPayment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	buyer := testutil.BuyerActor(uuid.New())
	f.intents.err = errors.New("timeout")

	order, err := f.svc.Create(ctx, buyer, f.input(1))
	require.NoError(t, err)
	require.Nil(t, order.PaymentIntentToken)

	f.intents.err = nil
	f.intents.token = "retry-token"
	retried, err := f.svc.RetryPayment(ctx, buyer, order.ID, BuyerContact{Name: "Rina"})
	require.NoError(t, err)
	require.NotNil(t, retried.PaymentIntentToken)
	assert.Equal(t, "retry-token", *retried.PaymentIntentToken)

	f.setPaymentStatus(t, order.ID, enums.PaymentStatusFailed)
	_, err = f.svc.RetryPayment(ctx, buyer, order.ID, BuyerContact{Name: "Rina"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
}

func TestListExpired(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	stale, err := f.svc.Create(ctx, testutil.BuyerActor(uuid.New()), f.input(1))
	require.NoError(t, err)
	fresh, err := f.svc.Create(ctx, testutil.BuyerActor(uuid.New()), f.input(1))
	require.NoError(t, err)
	paid, err := f.svc.Create(ctx, testutil.BuyerActor(uuid.New()), f.input(1))
	require.NoError(t, err)

	old := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id IN ?", []uuid.UUID{stale.ID, paid.ID}).Update("created_at", old).Error)
	f.setPaymentStatus(t, paid.ID, enums.PaymentStatusPaid)

	ids, err := f.svc.ListExpired(ctx, time.Now().UTC().Add(-15*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{stale.ID}, ids)
	assert.NotContains(t, ids, fresh.ID)
}
