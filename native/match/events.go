package match

import (
	"encoding/hex"
	"strconv"

	"matchpay/core/types"
)

const (
	EventTypeMatchProposed = "match.proposed"
	EventTypeMatchAccepted = "match.accepted"
	EventTypeMatchRejected = "match.rejected"
	EventTypeMatchUpdated  = "match.updated"
)

// NewProposedEvent returns the canonical event payload for a freshly minted
// proposal.
func NewProposedEvent(p *Proposal) *types.Event {
	attrs := make(map[string]string)
	if p != nil {
		attrs["proposalId"] = strconv.FormatUint(p.ID, 10)
		attrs["requestId"] = strconv.FormatUint(p.RequestID, 10)
		attrs["provider"] = hex.EncodeToString(p.Provider[:])
		attrs["amount"] = strconv.FormatInt(p.ProposedAmount, 10)
		attrs["expiry"] = strconv.FormatInt(p.Expiry, 10)
	}
	return &types.Event{Type: EventTypeMatchProposed, Attributes: attrs}
}

// NewRejectedEvent returns the payload emitted when a proposal is deleted
// by the request creator.
func NewRejectedEvent(p *Proposal) *types.Event {
	attrs := make(map[string]string)
	if p != nil {
		attrs["proposalId"] = strconv.FormatUint(p.ID, 10)
		attrs["requestId"] = strconv.FormatUint(p.RequestID, 10)
		attrs["provider"] = hex.EncodeToString(p.Provider[:])
	}
	return &types.Event{Type: EventTypeMatchRejected, Attributes: attrs}
}

// NewAcceptedEvent returns the payload emitted when a proposal converts
// into a match.
func NewAcceptedEvent(m *Match) *types.Event {
	return newMatchEvent(EventTypeMatchAccepted, m, nil)
}

// NewUpdatedEvent returns the payload emitted on a match status change.
func NewUpdatedEvent(m *Match, updater [20]byte) *types.Event {
	return newMatchEvent(EventTypeMatchUpdated, m, &updater)
}

func newMatchEvent(eventType string, m *Match, updater *[20]byte) *types.Event {
	attrs := make(map[string]string)
	if m == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["requestId"] = strconv.FormatUint(m.RequestID, 10)
	attrs["provider"] = hex.EncodeToString(m.Provider[:])
	attrs["status"] = m.Status
	attrs["amount"] = strconv.FormatInt(m.Amount, 10)
	attrs["tagOverlap"] = strconv.FormatInt(m.TagOverlap, 10)
	attrs["reputationScore"] = strconv.FormatInt(m.ReputationScore, 10)
	attrs["timestamp"] = strconv.FormatInt(m.Timestamp, 10)
	if updater != nil {
		attrs["updater"] = hex.EncodeToString(updater[:])
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
