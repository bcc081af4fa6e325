// Package app assembles the settlement services shared by the binaries.
package app

import (
	"fmt"

	"github.com/angelmondragon/settlement-core/internal/balances"
	"github.com/angelmondragon/settlement-core/internal/inventory"
	"github.com/angelmondragon/settlement-core/internal/orders"
	"github.com/angelmondragon/settlement-core/internal/payments"
	"github.com/angelmondragon/settlement-core/internal/pricing"
	"github.com/angelmondragon/settlement-core/internal/withdrawals"
	"github.com/angelmondragon/settlement-core/pkg/config"
	"github.com/angelmondragon/settlement-core/pkg/db"
	"github.com/angelmondragon/settlement-core/pkg/gateway"
	"github.com/angelmondragon/settlement-core/pkg/logger"
	"github.com/angelmondragon/settlement-core/pkg/outbox"
	"github.com/angelmondragon/settlement-core/pkg/shipping"
)

// Core holds the wired domain services.
type Core struct {
	Inventory   *inventory.Service
	Pricing     *pricing.Service
	Orders      orders.Service
	Payments    *payments.Service
	Balances    *balances.Service
	Withdrawals *withdrawals.Service
	Outbox      *outbox.Service
	OutboxRepo  *outbox.Repository
	Gateway     *gateway.Client
}

// NewCore builds the external clients from cfg and wires every service over
// the shared database client.
func NewCore(cfg *config.Config, dbClient *db.Client, logg *logger.Logger) (*Core, error) {
	conn := dbClient.DB()
	vat, adminFee, minWithdrawal := cfg.Settlement.Rates()

	rates, err := shipping.NewClient(cfg.Shipping.APIKey,
		shipping.WithBaseURL(cfg.Shipping.BaseURL),
		shipping.WithCouriers(cfg.Shipping.Couriers),
		shipping.WithTimeout(cfg.Shipping.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("shipping client: %w", err)
	}
	gw, err := gateway.NewClient(cfg.Gateway.ServerKey,
		gateway.WithSnapURL(cfg.Gateway.SnapURL),
		gateway.WithAPIURL(cfg.Gateway.APIURL),
		gateway.WithTimeout(cfg.Gateway.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("gateway client: %w", err)
	}

	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logg)

	stock, err := inventory.NewService(inventory.NewRepository(conn), logg)
	if err != nil {
		return nil, fmt.Errorf("inventory service: %w", err)
	}
	quoter, err := pricing.NewService(pricing.ServiceParams{
		Catalog: pricing.NewCatalog(conn),
		Rates:   rates,
		VATRate: vat,
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("pricing service: %w", err)
	}
	intents, err := payments.NewIntents(gw, logg)
	if err != nil {
		return nil, fmt.Errorf("payment intents: %w", err)
	}
	orderRepo := orders.NewRepository(conn)
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:      orderRepo,
		Tx:        dbClient,
		Pricing:   quoter,
		Inventory: stock,
		Outbox:    emitter,
		Payments:  intents,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}
	ledger, err := balances.NewService(balances.NewRepository(conn), logg)
	if err != nil {
		return nil, fmt.Errorf("balances service: %w", err)
	}
	paySvc, err := payments.NewService(payments.ServiceParams{
		Orders:       orderRepo,
		Tx:           dbClient,
		Gateway:      gw,
		Balances:     ledger,
		Failer:       orderSvc,
		Outbox:       emitter,
		AdminFeeRate: adminFee,
		Logger:       logg,
	})
	if err != nil {
		return nil, fmt.Errorf("payments service: %w", err)
	}
	withdrawSvc, err := withdrawals.NewService(withdrawals.ServiceParams{
		Repo:     withdrawals.NewRepository(conn),
		Tx:       dbClient,
		Balances: ledger,
		Outbox:   emitter,
		Minimum:  minWithdrawal,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("withdrawals service: %w", err)
	}

	return &Core{
		Inventory:   stock,
		Pricing:     quoter,
		Orders:      orderSvc,
		Payments:    paySvc,
		Balances:    ledger,
		Withdrawals: withdrawSvc,
		Outbox:      emitter,
		OutboxRepo:  outboxRepo,
		Gateway:     gw,
	}, nil
}
