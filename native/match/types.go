package match

import "strings"

// Scoring weights. A proposal is priced from the request urgency and the
// weighted count of request tags present in the provider's skills.
const (
	UrgencyWeight    = 10
	OverlapWeight    = 5
	TagOverlapPoints = 10
)

// ProposalIndexCap bounds the per-request proposal index. Older entries are
// evicted from the index but stay resolvable by proposal id.
const ProposalIndexCap = 10

// Urgency bounds accepted by the coordinator.
const (
	MinUrgency = 1
	MaxUrgency = 10
)

// Match statuses. StatusCompleted is terminal and is applied by the
// post-settlement workflow, not by UpdateStatus.
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusRejected  = "rejected"
	StatusCompleted = "completed"
)

// UpdatableStatus reports whether a status may be set through UpdateStatus.
func UpdatableStatus(status string) bool {
	switch status {
	case StatusPending, StatusAccepted, StatusRejected:
		return true
	default:
		return false
	}
}

// Proposal is a time-boxed, priced offer pairing a provider to a request.
type Proposal struct {
	ID             uint64
	RequestID      uint64
	Provider       [20]byte
	ProposedAmount int64
	CreatedAt      int64
	Expiry         int64
}

// Clone returns a copy of the proposal.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// Match is the accepted pairing of a request and a provider. Tag overlap
// and reputation are snapshots captured at acceptance time, never live
// references.
type Match struct {
	RequestID       uint64
	Provider        [20]byte
	Status          string
	Timestamp       int64
	Amount          int64
	Urgency         int64
	TagOverlap      int64
	ReputationScore int64
}

// Clone returns a copy of the match.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}

// Update is an audit record appended on every match status change.
type Update struct {
	Status    string
	Timestamp int64
	Updater   [20]byte
}

// TagOverlap scores how well a provider's skills cover a request's tags:
// each covered tag contributes TagOverlapPoints.
func TagOverlap(tags, skills []string) int64 {
	if len(tags) == 0 || len(skills) == 0 {
		return 0
	}
	skillSet := make(map[string]struct{}, len(skills))
	for _, skill := range skills {
		skillSet[strings.TrimSpace(skill)] = struct{}{}
	}
	var overlap int64
	for _, tag := range tags {
		if _, ok := skillSet[strings.TrimSpace(tag)]; ok {
			overlap += TagOverlapPoints
		}
	}
	return overlap
}

// ProposedAmount prices a proposal from urgency and tag overlap.
func ProposedAmount(urgency, overlap int64) int64 {
	return urgency*UrgencyWeight + overlap*OverlapWeight
}
