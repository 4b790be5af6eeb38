package invoice

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopdesk/backoffice/internal/ledger"
)

const noteToken = "#secondary="

// DraftLine is user input for one invoice line. An empty Currency means the
// primary currency; Rate converts one unit of Currency into the primary currency.
type DraftLine struct {
	ProductID   string
	Description string
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	Currency    string
	Rate        decimal.Decimal
}

// Draft is user input for a purchase invoice.
type Draft struct {
	WholesalerID      string
	Number            string
	IssuedAt          time.Time
	SecondaryCurrency string
	Note              string
	Lines             []DraftLine
}

// Build validates a draft and computes line and invoice totals. Lines may be
// billed in the primary currency or in the wholesaler's secondary currency.
func Build(d Draft, primaryCurrency string, now time.Time) (PurchaseInvoice, error) {
	if d.WholesalerID == "" {
		return PurchaseInvoice{}, ledger.NewValidationError("wholesaler_id", "wholesaler is required")
	}
	if len(d.Lines) == 0 {
		return PurchaseInvoice{}, ledger.NewValidationError("lines", "invoice needs at least one line")
	}
	primary := strings.ToUpper(strings.TrimSpace(primaryCurrency))
	secondary := strings.ToUpper(strings.TrimSpace(d.SecondaryCurrency))

	inv := PurchaseInvoice{
		ID:                uuid.Must(uuid.NewV7()).String(),
		WholesalerID:      d.WholesalerID,
		Number:            strings.TrimSpace(d.Number),
		IssuedAt:          d.IssuedAt.UTC(),
		SecondaryCurrency: secondary,
		CreatedAt:         now.UTC(),
	}
	if inv.IssuedAt.IsZero() {
		inv.IssuedAt = inv.CreatedAt
	}

	for i, dl := range d.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		if !dl.Quantity.IsPositive() {
			return PurchaseInvoice{}, ledger.NewValidationError(field+".quantity", "quantity must be positive")
		}
		if dl.UnitCost.IsNegative() {
			return PurchaseInvoice{}, ledger.NewValidationError(field+".unit_cost", "unit cost cannot be negative")
		}
		line := Line{
			Description: strings.TrimSpace(dl.Description),
			Quantity:    dl.Quantity,
			UnitCost:    dl.UnitCost,
			Currency:    strings.ToUpper(strings.TrimSpace(dl.Currency)),
			Rate:        dl.Rate,
		}
		if dl.ProductID != "" {
			id := dl.ProductID
			line.ProductID = &id
		}
		switch {
		case line.Currency == "" || line.Currency == primary:
			line.Currency = primary
			line.Rate = decimal.NewFromInt(1)
		case line.Currency == secondary:
			if !line.Rate.IsPositive() {
				return PurchaseInvoice{}, ledger.NewValidationError(field+".rate", "exchange rate must be positive")
			}
		default:
			return PurchaseInvoice{}, ledger.NewValidationError(field+".currency",
				fmt.Sprintf("currency %q is neither %s nor the wholesaler's %q", line.Currency, primary, secondary))
		}
		line.LineTotal = line.Cost().Mul(line.Rate)
		inv.TotalPrimary = inv.TotalPrimary.Add(line.LineTotal)
		inv.Lines = append(inv.Lines, line)
	}

	if !inv.TotalPrimary.IsPositive() {
		return PurchaseInvoice{}, ledger.NewValidationError("lines", "invoice total must be positive")
	}

	total := SecondaryFromLines(inv)
	inv.TotalSecondary = &total
	inv.Note = WithNoteToken(d.Note, total)
	return inv, nil
}

// SecondaryFromLines sums the cost of every line billed in the invoice's secondary currency.
func SecondaryFromLines(inv PurchaseInvoice) decimal.Decimal {
	total := decimal.Zero
	if inv.SecondaryCurrency == "" {
		return total
	}
	for _, l := range inv.Lines {
		if l.Currency == inv.SecondaryCurrency {
			total = total.Add(l.Cost())
		}
	}
	return total
}

// SecondaryFromNote reads the structured secondary total token from a note.
func SecondaryFromNote(note string) (decimal.Decimal, bool, error) {
	idx := strings.LastIndex(note, noteToken)
	if idx < 0 {
		return decimal.Zero, false, nil
	}
	raw := note[idx+len(noteToken):]
	if end := strings.IndexAny(raw, " \t\n;,"); end >= 0 {
		raw = raw[:end]
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parse secondary total %q: %w", raw, err)
	}
	return v, true, nil
}

// WithNoteToken replaces any secondary total token in note with amount.
func WithNoteToken(note string, amount decimal.Decimal) string {
	note = strings.TrimSpace(note)
	if idx := strings.LastIndex(note, noteToken); idx >= 0 {
		rest := note[idx+len(noteToken):]
		tail := ""
		if end := strings.IndexAny(rest, " \t\n;,"); end >= 0 {
			tail = rest[end:]
		}
		note = strings.TrimSpace(note[:idx] + strings.TrimLeft(tail, " \t\n;,"))
	}
	token := noteToken + amount.String()
	if note == "" {
		return token
	}
	return note + " " + token
}

// SecondaryTotal recovers the secondary-currency total charged by an invoice:
// the stored field first, then the note token, then the line items.
func SecondaryTotal(inv PurchaseInvoice) decimal.Decimal {
	if inv.TotalSecondary != nil {
		return *inv.TotalSecondary
	}
	if v, ok, err := SecondaryFromNote(inv.Note); err == nil && ok {
		return v
	}
	return SecondaryFromLines(inv)
}
