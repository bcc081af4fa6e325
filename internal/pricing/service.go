package pricing

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/settlement-core/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlement-core/pkg/errors"
	"github.com/angelmondragon/settlement-core/pkg/logger"
	"github.com/angelmondragon/settlement-core/pkg/shipping"
)

// Quoter is the pricing surface consumed by order creation.
type Quoter interface {
	Quote(ctx context.Context, in QuoteInput) (*Quote, error)
	VATRate() decimal.Decimal
}

type ServiceParams struct {
	Catalog Catalog
	Rates   shipping.RateProvider
	VATRate decimal.Decimal
	Logger  *logger.Logger
}

type Service struct {
	catalog Catalog
	rates   shipping.RateProvider
	vatRate decimal.Decimal
	logg    *logger.Logger
}

var _ Quoter = (*Service)(nil)

func NewService(params ServiceParams) (*Service, error) {
	if params.Catalog == nil {
		return nil, errors.New("catalog required")
	}
	if params.Rates == nil {
		return nil, errors.New("shipping rate provider required")
	}
	if params.VATRate.IsNegative() {
		return nil, errors.New("vat rate must not be negative")
	}
	return &Service{
		catalog: params.Catalog,
		rates:   params.Rates,
		vatRate: params.VATRate,
		logg:    params.Logger,
	}, nil
}

func (s *Service) VATRate() decimal.Decimal {
	return s.vatRate
}

// Quote prices the lines and resolves the selected carrier service. There is
// no fallback: an unmatched service fails the quote.
func (s *Service) Quote(ctx context.Context, in QuoteInput) (*Quote, error) {
	if strings.TrimSpace(in.Carrier) == "" || strings.TrimSpace(in.Service) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping carrier and service are required")
	}
	store, priced, weight, err := s.priceLines(ctx, in.StoreID, in.DestinationID, in.Lines)
	if err != nil {
		return nil, err
	}
	subtotal := ComputeTotals(priced, decimal.Zero, s.vatRate).Subtotal

	rates, err := s.rates.Rates(ctx, shipping.RateRequest{
		OriginID:      store.AddressID,
		DestinationID: in.DestinationID,
		Weight:        weight,
		DeclaredValue: subtotal,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeQuote, err, "shipping rates unavailable")
	}
	if len(rates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeQuote, "no shipping options for destination")
	}

	match, ok := lo.Find(rates, func(r shipping.Rate) bool {
		return strings.EqualFold(r.Carrier, strings.TrimSpace(in.Carrier)) &&
			strings.EqualFold(r.Service, strings.TrimSpace(in.Service))
	})
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeQuote, "shipping option %s %s not offered", in.Carrier, in.Service).
			WithDetails(map[string]any{"available": lo.Map(rates, func(r shipping.Rate, _ int) string {
				return r.Carrier + ":" + r.Service
			})})
	}

	totals := ComputeTotals(priced, match.Cost, s.vatRate)
	quote := &Quote{
		Lines:        priced,
		Subtotal:     totals.Subtotal,
		Weight:       weight,
		ShippingCost: totals.Shipping,
		Tax:          totals.Tax,
		GrandTotal:   totals.GrandTotal,
		Option:       toOption(match),
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"store_id":    in.StoreID.String(),
			"carrier":     match.Carrier,
			"service":     match.Service,
			"grand_total": quote.GrandTotal.StringFixed(2),
		})
		s.logg.Info(logCtx, "order quoted")
	}
	return quote, nil
}

// ListOptions returns every offered carrier service, cheapest first, for
// display. Implausible costs are normalized.
func (s *Service) ListOptions(ctx context.Context, storeID uuid.UUID, destinationID string, lines []Line) (*OptionList, error) {
	store, priced, weight, err := s.priceLines(ctx, storeID, destinationID, lines)
	if err != nil {
		return nil, err
	}
	subtotal := ComputeTotals(priced, decimal.Zero, s.vatRate).Subtotal

	rates, err := s.rates.Rates(ctx, shipping.RateRequest{
		OriginID:      store.AddressID,
		DestinationID: destinationID,
		Weight:        weight,
		DeclaredValue: subtotal,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeQuote, err, "shipping rates unavailable")
	}

	options := lo.Map(rates, func(r shipping.Rate, _ int) Option {
		opt := toOption(r)
		opt.Cost = normalizeCost(r.Cost, subtotal)
		return opt
	})
	sort.SliceStable(options, func(i, j int) bool {
		return options[i].Cost.LessThan(options[j].Cost)
	})
	return &OptionList{Options: options, Subtotal: subtotal, Weight: weight}, nil
}

func (s *Service) priceLines(ctx context.Context, storeID uuid.UUID, destinationID string, lines []Line) (*models.Store, []PricedLine, int, error) {
	if storeID == uuid.Nil {
		return nil, nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if strings.TrimSpace(destinationID) == "" {
		return nil, nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "destination is required")
	}
	if len(lines) == 0 {
		return nil, nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, nil, 0, pkgerrors.Newf(pkgerrors.CodeValidation, "quantity for product %s must be positive", line.ProductID)
		}
	}

	store, err := s.catalog.FindStore(ctx, storeID)
	if err != nil {
		return nil, nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load store")
	}
	if store == nil {
		return nil, nil, 0, pkgerrors.Newf(pkgerrors.CodeNotFound, "store %s not found", storeID)
	}

	ids := lo.Uniq(lo.Map(lines, func(l Line, _ int) uuid.UUID { return l.ProductID }))
	products, err := s.catalog.FindProducts(ctx, ids)
	if err != nil {
		return nil, nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load products")
	}
	byID := lo.KeyBy(products, func(p models.Product) uuid.UUID { return p.ID })

	priced := make([]PricedLine, 0, len(lines))
	weight := 0
	for _, line := range lines {
		product, ok := byID[line.ProductID]
		if !ok {
			return nil, nil, 0, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", line.ProductID)
		}
		if product.StoreID != storeID {
			return nil, nil, 0, pkgerrors.Newf(pkgerrors.CodeValidation, "product %s does not belong to store %s", line.ProductID, storeID)
		}
		priced = append(priced, PriceLine(line, product.Price))
		weight += product.Weight * line.Quantity
	}
	if weight < 1 {
		weight = 1
	}
	return store, priced, weight, nil
}

func toOption(r shipping.Rate) Option {
	return Option{
		Carrier:     r.Carrier,
		CarrierName: r.CarrierName,
		Service:     r.Service,
		Description: r.Description,
		Cost:        r.Cost,
		ETD:         r.ETD,
	}
}
