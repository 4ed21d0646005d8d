// Package registry holds the simple intake-side collaborators the
// settlement core consumes: a request store, a provider directory and a
// reputation ledger. Content validation and richer intake workflows live
// outside this module; the registry only keeps the records the coordinator
// reads.
package registry

import (
	"errors"

	"matchpay/core/types"
)

var (
	// ErrRequestNotFound indicates no request is stored under the id.
	ErrRequestNotFound = errors.New("registry: request not found")
	// ErrProviderNotFound indicates no provider is stored under the
	// address.
	ErrProviderNotFound = errors.New("registry: provider not found")
	// ErrInvalidScore indicates a reputation score outside [0,100].
	ErrInvalidScore = errors.New("registry: score out of range")

	errNilState = errors.New("registry: state not configured")
)

type storage interface {
	RequestPut(*types.Request) error
	RequestGet(id uint64) (*types.Request, bool)
	ProviderPut(*types.Provider) error
	ProviderGet(addr [20]byte) (*types.Provider, bool)
	ActiveProviderList() ([][20]byte, error)
	ReputationSet(addr [20]byte, score int64) error
	ReputationGet(addr [20]byte) (int64, bool)
}

// Ledger wraps the persistence layer so intake surfaces and the matching
// coordinator share one view of requests, providers and reputations.
type Ledger struct {
	state storage
}

// NewLedger constructs a registry ledger backed by the provided storage.
func NewLedger(state storage) *Ledger {
	return &Ledger{state: state}
}

// PutRequest stores or replaces a request record. New requests default to
// open.
func (l *Ledger) PutRequest(req *types.Request) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if req == nil {
		return ErrRequestNotFound
	}
	clone := req.Clone()
	if clone.Status == "" {
		clone.Status = types.RequestStatusOpen
	}
	return l.state.RequestPut(clone)
}

// RequestGet implements the coordinator's RequestStore contract.
func (l *Ledger) RequestGet(id uint64) (*types.Request, bool, error) {
	if l == nil || l.state == nil {
		return nil, false, errNilState
	}
	req, ok := l.state.RequestGet(id)
	return req, ok, nil
}

// RequestSetStatus updates the stored status of a request.
func (l *Ledger) RequestSetStatus(id uint64, status string) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	req, ok := l.state.RequestGet(id)
	if !ok {
		return ErrRequestNotFound
	}
	req.Status = status
	return l.state.RequestPut(req)
}

// PutProvider stores or replaces a provider record and maintains the
// ordered active list.
func (l *Ledger) PutProvider(prov *types.Provider) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if prov == nil {
		return ErrProviderNotFound
	}
	return l.state.ProviderPut(prov.Clone())
}

// ProviderGet implements the coordinator's ProviderDirectory contract.
func (l *Ledger) ProviderGet(addr [20]byte) (*types.Provider, bool, error) {
	if l == nil || l.state == nil {
		return nil, false, errNilState
	}
	prov, ok := l.state.ProviderGet(addr)
	return prov, ok, nil
}

// ActiveProviders returns active provider addresses in registration order.
// The coordinator truncates but never re-ranks this list.
func (l *Ledger) ActiveProviders() ([][20]byte, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	return l.state.ActiveProviderList()
}

// SetScore records a provider's reputation score in [0,100]. Score
// computation happens off-platform; the ledger only stores the result.
func (l *Ledger) SetScore(addr [20]byte, score int64) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if score < 0 || score > 100 {
		return ErrInvalidScore
	}
	return l.state.ReputationSet(addr, score)
}

// Score implements the coordinator's ReputationSource contract. Unknown
// providers score zero.
func (l *Ledger) Score(addr [20]byte) (int64, error) {
	if l == nil || l.state == nil {
		return 0, errNilState
	}
	score, ok := l.state.ReputationGet(addr)
	if !ok {
		return 0, nil
	}
	return score, nil
}
