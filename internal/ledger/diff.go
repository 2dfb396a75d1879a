package ledger

import (
	"fmt"
	"strings"
)

const initialSummary = "initial version"

// Diff renders a short human summary of what changed between two snapshots,
// e.g. "GrandTotal 500.00 → 480.00; Lines 2 → 3". It is advisory only.
func Diff(prev *Snapshot, next Snapshot) string {
	if prev == nil {
		return initialSummary
	}

	var parts []string
	add := func(field, from, to string) {
		if from != to {
			parts = append(parts, fmt.Sprintf("%s %s → %s", field, from, to))
		}
	}

	p, n := prev.Invoice, next.Invoice
	add("State", string(p.State), string(n.State))
	add("Subtotal", p.Subtotal, n.Subtotal)
	add("VatTotal", p.VATTotal, n.VATTotal)
	add("Discount", p.Discount, n.Discount)
	add("GrandTotal", p.GrandTotal, n.GrandTotal)
	add("PaidAmount", p.PaidAmount, n.PaidAmount)
	add("Lines", fmt.Sprint(len(prev.Lines)), fmt.Sprint(len(next.Lines)))

	byPosition := make(map[int]LineSnapshot, len(prev.Lines))
	for _, line := range prev.Lines {
		byPosition[line.Position] = line
	}
	for _, line := range next.Lines {
		old, ok := byPosition[line.Position]
		if !ok {
			continue
		}
		label := fmt.Sprintf("Line %d", line.Position)
		add(label+" qty", old.Quantity, line.Quantity)
		add(label+" price", old.UnitPrice, line.UnitPrice)
		add(label+" total", old.LineTotal, line.LineTotal)
	}

	if len(parts) == 0 {
		return "no field changes"
	}
	return strings.Join(parts, "; ")
}
