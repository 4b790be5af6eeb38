package debt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shopdesk/backoffice/internal/ledger"
)

// Scale is the number of decimal places kept on a proportional secondary reduction.
const Scale = 4

// Mode selects how a payment is treated when secondary debt is outstanding while
// primary debt is already zero or negative.
type Mode string

const (
	// ModeReject refuses the payment so an operator can reconcile the wholesaler first.
	ModeReject Mode = "reject"
	// ModeClear clears the whole secondary debt, treating the payment as a full settlement.
	ModeClear Mode = "clear"
)

// ErrAnomalousDebt is returned in ModeReject when secondary debt exists without primary debt.
var ErrAnomalousDebt = &ledger.ValidationError{
	Field:   "amount",
	Message: "secondary debt is outstanding while primary debt is not positive",
}

// ParseMode converts a configuration value into a Mode. Empty means ModeReject.
func ParseMode(v string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(v))); m {
	case "":
		return ModeReject, nil
	case ModeReject, ModeClear:
		return m, nil
	default:
		return "", fmt.Errorf("unknown debt anomaly mode %q", v)
	}
}

// Policy computes how a primary-currency payment reduces a wholesaler's
// secondary-currency debt.
type Policy struct {
	mode Mode
}

// NewPolicy builds a policy. An empty mode behaves as ModeReject.
func NewPolicy(mode Mode) Policy {
	if mode == "" {
		mode = ModeReject
	}
	return Policy{mode: mode}
}

// Mode reports the configured anomaly handling.
func (p Policy) Mode() Mode { return p.mode }

// SecondaryReduction returns the positive amount by which secondary debt S
// shrinks when payment P is applied against primary debt D.
func (p Policy) SecondaryReduction(payment, primaryDebt, secondaryDebt decimal.Decimal) (decimal.Decimal, error) {
	if !payment.IsPositive() {
		return decimal.Zero, ledger.NewValidationError("amount", "payment must be positive")
	}
	if !secondaryDebt.IsPositive() {
		return decimal.Zero, nil
	}
	if !primaryDebt.IsPositive() {
		if p.mode == ModeClear {
			return secondaryDebt, nil
		}
		return decimal.Zero, ErrAnomalousDebt
	}
	if payment.GreaterThanOrEqual(primaryDebt) {
		return secondaryDebt, nil
	}
	reduction := secondaryDebt.Mul(payment).Div(primaryDebt).Round(Scale)
	// rounding can only overshoot by half a unit of the last place
	if reduction.GreaterThan(secondaryDebt) {
		reduction = secondaryDebt
	}
	return reduction, nil
}

// IsAnomaly reports whether err came from the anomalous-debt guard.
func IsAnomaly(err error) bool {
	return errors.Is(err, ErrAnomalousDebt)
}
