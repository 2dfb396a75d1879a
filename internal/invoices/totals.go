package invoices

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/invoice-ledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/invoice-ledger/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// LineInput is one requested invoice line before arithmetic.
type LineInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity" validate:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice" validate:"money"`
	Discount    decimal.Decimal `json:"discount" validate:"money"`
	VATRate     decimal.Decimal `json:"vatRate" validate:"money"`
}

// Totals are the invoice header amounts derived from its lines.
type Totals struct {
	Subtotal   decimal.Decimal
	VATTotal   decimal.Decimal
	Discount   decimal.Decimal
	GrandTotal decimal.Decimal
}

// ComputeLines validates the inputs and derives each line's VAT and total plus
// the header totals:
//
//	gross = qty × unitPrice, net = gross − discount, vat = round2(net × rate / 100)
//	grandTotal = Σgross + Σvat − Σdiscount
func ComputeLines(inputs []LineInput) ([]models.InvoiceLine, Totals, error) {
	if len(inputs) == 0 {
		return nil, Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "at least one invoice line is required")
	}

	totals := Totals{Subtotal: decimal.Zero, VATTotal: decimal.Zero, Discount: decimal.Zero}
	lines := make([]models.InvoiceLine, 0, len(inputs))
	for i, in := range inputs {
		position := i + 1
		if err := validateLine(position, in); err != nil {
			return nil, Totals{}, err
		}

		qty := in.Quantity.Round(3)
		gross := qty.Mul(in.UnitPrice.Round(2)).Round(2)
		discount := in.Discount.Round(2)
		if discount.GreaterThan(gross) {
			return nil, Totals{}, lineError(position, "discount exceeds line amount")
		}
		net := gross.Sub(discount)
		vat := net.Mul(in.VATRate).Div(hundred).Round(2)

		lines = append(lines, models.InvoiceLine{
			Position:    position,
			Description: strings.TrimSpace(in.Description),
			Quantity:    qty,
			UnitPrice:   in.UnitPrice.Round(2),
			Discount:    discount,
			VATRate:     in.VATRate.Round(2),
			VATAmount:   vat,
			LineTotal:   net.Add(vat),
		})
		totals.Subtotal = totals.Subtotal.Add(gross)
		totals.Discount = totals.Discount.Add(discount)
		totals.VATTotal = totals.VATTotal.Add(vat)
	}
	totals.GrandTotal = totals.Subtotal.Add(totals.VATTotal).Sub(totals.Discount)
	return lines, totals, nil
}

func validateLine(position int, in LineInput) error {
	switch {
	case !in.Quantity.IsPositive():
		return lineError(position, "quantity must be positive")
	case in.UnitPrice.IsNegative():
		return lineError(position, "unit price must not be negative")
	case in.Discount.IsNegative():
		return lineError(position, "discount must not be negative")
	case in.VATRate.IsNegative() || in.VATRate.GreaterThan(hundred):
		return lineError(position, "vat rate must be between 0 and 100")
	}
	return nil
}

func lineError(position int, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: %s", position, msg)).
		WithDetails(map[string]any{"line": position})
}
