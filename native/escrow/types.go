package escrow

import (
	"fmt"
	"math/big"
	"strings"
)

// Supported settlement currencies.
const (
	CurrencyPAY  = "PAY"
	CurrencyZPAY = "ZPAY"
)

// MaxFeeRatePercent caps the configurable platform fee.
const MaxFeeRatePercent = 10

// Status represents the lifecycle states of an escrow. Released, Refunded
// and Resolved are terminal.
type Status uint8

const (
	StatusActive Status = iota
	StatusReleased
	StatusRefunded
	StatusDisputed
	StatusResolved
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusReleased, StatusRefunded, StatusDisputed, StatusResolved:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition may leave the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusReleased, StatusRefunded, StatusResolved:
		return true
	default:
		return false
	}
}

// String returns the canonical lowercase name for the status.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusReleased:
		return "released"
	case StatusRefunded:
		return "refunded"
	case StatusDisputed:
		return "disputed"
	case StatusResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Escrow holds custodied funds tied 1:1 to a request. The depositor is
// charged Amount+FeePaid at creation; settlement splits the custodied total
// according to the outcome.
type Escrow struct {
	ID        uint64
	RequestID uint64
	Depositor [20]byte
	Provider  [20]byte
	Amount    *big.Int
	Currency  string
	FeePaid   *big.Int
	Status    Status
	CreatedAt int64
	DisputeID string
}

// Clone returns a deep copy of the escrow so callers can safely mutate the
// copy without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Amount != nil {
		clone.Amount = new(big.Int).Set(e.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	if e.FeePaid != nil {
		clone.FeePaid = new(big.Int).Set(e.FeePaid)
	} else {
		clone.FeePaid = big.NewInt(0)
	}
	return &clone
}

// NormalizeCurrency ensures the provided symbol matches a supported value
// and returns the canonical uppercase form.
func NormalizeCurrency(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	switch trimmed {
	case CurrencyPAY, CurrencyZPAY:
		return trimmed, nil
	default:
		return "", ErrInvalidCurrency
	}
}

// Sanitize validates and normalises the supplied escrow, returning a cloned
// instance with canonical currency casing and non-nil amount fields. The
// original value is not mutated.
func Sanitize(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("escrow: nil escrow")
	}
	clone := e.Clone()
	currency, err := NormalizeCurrency(clone.Currency)
	if err != nil {
		return nil, err
	}
	clone.Currency = currency
	if clone.Amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if clone.FeePaid.Sign() < 0 {
		return nil, fmt.Errorf("escrow: negative fee")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("escrow: invalid escrow status: %d", clone.Status)
	}
	return clone, nil
}

// Fee computes the platform fee for the given principal amount and fee rate
// expressed as a whole percentage. The result rounds down.
func Fee(amount *big.Int, ratePercent uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || ratePercent == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(ratePercent))
	return fee.Div(fee, big.NewInt(100))
}
