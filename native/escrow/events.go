package escrow

import (
	"encoding/hex"
	"strconv"

	"matchpay/core/types"
)

const (
	EventTypeEscrowDeposited = "escrow.deposited"
	EventTypeEscrowReleased  = "escrow.released"
	EventTypeEscrowRefunded  = "escrow.refunded"
	EventTypeEscrowDisputed  = "escrow.disputed"
	EventTypeEscrowResolved  = "escrow.resolved"
)

// NewDepositedEvent returns the canonical event payload for a newly funded
// escrow.
func NewDepositedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowDeposited, e) }

// NewReleasedEvent returns the canonical event payload for a release of
// escrowed funds to the provider.
func NewReleasedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowReleased, e) }

// NewRefundedEvent returns the canonical event payload for an escrow refund
// to the depositor.
func NewRefundedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowRefunded, e) }

// NewDisputedEvent returns the canonical event payload emitted when an
// escrow is frozen pending dispute resolution.
func NewDisputedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowDisputed, e) }

// NewResolvedEvent returns the canonical event payload emitted when the
// authority settles a dispute.
func NewResolvedEvent(e *Escrow, toProvider bool) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowResolved, e)
	outcome := "refund"
	if toProvider {
		outcome = "release"
	}
	evt.Attributes["outcome"] = outcome
	return evt
}

func newEscrowEvent(eventType string, e *Escrow) *types.Event {
	attrs := make(map[string]string)
	if e == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := Sanitize(e)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(sanitized.ID, 10)
	attrs["requestId"] = strconv.FormatUint(sanitized.RequestID, 10)
	attrs["depositor"] = hex.EncodeToString(sanitized.Depositor[:])
	attrs["provider"] = hex.EncodeToString(sanitized.Provider[:])
	attrs["currency"] = sanitized.Currency
	attrs["amount"] = sanitized.Amount.String()
	attrs["fee"] = sanitized.FeePaid.String()
	attrs["status"] = sanitized.Status.String()
	attrs["createdAt"] = strconv.FormatInt(sanitized.CreatedAt, 10)
	if sanitized.DisputeID != "" {
		attrs["disputeId"] = sanitized.DisputeID
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
