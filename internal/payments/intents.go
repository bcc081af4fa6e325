package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/settlement-core/internal/orders"
	"github.com/angelmondragon/settlement-core/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlement-core/pkg/errors"
	"github.com/angelmondragon/settlement-core/pkg/gateway"
	"github.com/angelmondragon/settlement-core/pkg/logger"
)

// Gateway is the payment provider surface used by this package.
type Gateway interface {
	CreateTransaction(ctx context.Context, req gateway.TransactionRequest) (*gateway.Transaction, error)
	Status(ctx context.Context, orderID string) (*gateway.Notification, error)
	ServerKey() string
}

var _ Gateway = (*gateway.Client)(nil)

// Intents opens hosted payment pages for orders.
type Intents struct {
	gateway Gateway
	logg    *logger.Logger
}

var _ orders.PaymentIntents = (*Intents)(nil)

func NewIntents(gw Gateway, logg *logger.Logger) (*Intents, error) {
	if gw == nil {
		return nil, errors.New("payment gateway required")
	}
	return &Intents{gateway: gw, logg: logg}, nil
}

// CreateIntent requests a payment token keyed by the order code for the
// order's grand total.
func (i *Intents) CreateIntent(ctx context.Context, order *models.Order, buyer orders.BuyerContact) (string, error) {
	if order == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	name := strings.TrimSpace(buyer.Name)
	if name == "" {
		name = order.Shipping.RecipientName
	}
	tx, err := i.gateway.CreateTransaction(ctx, gateway.TransactionRequest{
		OrderID:     order.Code,
		GrossAmount: order.GrandTotal,
		Customer: gateway.Customer{
			FirstName: name,
			Email:     strings.TrimSpace(buyer.Email),
		},
	})
	if err != nil {
		return "", err
	}
	if i.logg != nil {
		i.logg.Info(i.logg.WithOrderCode(ctx, order.Code), "payment intent created")
	}
	return tx.Token, nil
}
