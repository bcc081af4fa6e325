package pricing

import "github.com/shopspring/decimal"

// Totals is the money identity shared by quoting and order creation:
// grand = subtotal + tax + shipping, each rounded to cents.
type Totals struct {
	Subtotal   decimal.Decimal
	Tax        decimal.Decimal
	Shipping   decimal.Decimal
	GrandTotal decimal.Decimal
}

// ComputeTotals prices the lines and derives tax and grand total.
func ComputeTotals(lines []PricedLine, shipping, vatRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.Subtotal)
	}
	subtotal = subtotal.Round(2)
	shipping = shipping.Round(2)
	tax := subtotal.Mul(vatRate).Round(2)
	return Totals{
		Subtotal:   subtotal,
		Tax:        tax,
		Shipping:   shipping,
		GrandTotal: subtotal.Add(tax).Add(shipping).Round(2),
	}
}

// PriceLine computes a line subtotal from the unit price.
func PriceLine(line Line, unitPrice decimal.Decimal) PricedLine {
	return PricedLine{
		ProductID: line.ProductID,
		Quantity:  line.Quantity,
		UnitPrice: unitPrice,
		Subtotal:  unitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2),
	}
}

// normalizeCost corrects provider costs that arrive in the wrong unit. Costs
// above twice the subtotal are divided by 1000 when that lands in range,
// otherwise by 100 until plausible, at most three times.
func normalizeCost(cost, subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return cost
	}
	limit := subtotal.Mul(decimal.NewFromInt(2))
	if cost.LessThanOrEqual(limit) {
		return cost
	}
	if byThousand := cost.Div(decimal.NewFromInt(1000)); byThousand.LessThanOrEqual(limit) {
		return byThousand.Round(2)
	}
	hundred := decimal.NewFromInt(100)
	for i := 0; i < 3 && cost.GreaterThan(limit); i++ {
		cost = cost.Div(hundred)
	}
	return cost.Round(2)
}
