package invoices

import (
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/invoice-ledger/pkg/errors"
)

func TestComputeLines(t *testing.T) {
	lines, totals, err := ComputeLines([]LineInput{
		{Quantity: dec("2"), UnitPrice: dec("50"), VATRate: dec("5")},
		{Quantity: dec("1"), UnitPrice: dec("100"), Discount: dec("10"), VATRate: dec("20")},
		{Quantity: dec("3"), UnitPrice: dec("0.333"), VATRate: dec("0")},
	})
	require.NoError(t, err)
	require.Len(t, lines, 3)

	require.Equal(t, "5.00", lines[0].VATAmount.StringFixed(2))
	require.Equal(t, "18.00", lines[1].VATAmount.StringFixed(2))
	require.Equal(t, "108.00", lines[1].LineTotal.StringFixed(2))
	require.Equal(t, "0.99", lines[2].LineTotal.StringFixed(2))
	require.Equal(t, 3, lines[2].Position)

	require.Equal(t, "200.99", totals.Subtotal.StringFixed(2))
	require.Equal(t, "23.00", totals.VATTotal.StringFixed(2))
	require.Equal(t, "10.00", totals.Discount.StringFixed(2))
	require.Equal(t, "213.99", totals.GrandTotal.StringFixed(2))
	require.True(t, totals.GrandTotal.Equal(totals.Subtotal.Add(totals.VATTotal).Sub(totals.Discount)))
}

func TestComputeLinesRejects(t *testing.T) {
	cases := map[string][]LineInput{
		"empty":             nil,
		"zero quantity":     {{Quantity: dec("0"), UnitPrice: dec("1")}},
		"negative price":    {{Quantity: dec("1"), UnitPrice: dec("-1")}},
		"negative discount": {{Quantity: dec("1"), UnitPrice: dec("1"), Discount: dec("-1")}},
		"discount too big":  {{Quantity: dec("1"), UnitPrice: dec("1"), Discount: dec("2")}},
		"vat above 100":     {{Quantity: dec("1"), UnitPrice: dec("1"), VATRate: dec("101")}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := ComputeLines(in)
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}
