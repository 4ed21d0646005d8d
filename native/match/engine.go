package match

import (
	"math/big"
	"time"

	"matchpay/core/events"
	"matchpay/core/types"
	"matchpay/native/escrow"
)

type engineState interface {
	ProposalPut(*Proposal) error
	ProposalGet(id uint64) (*Proposal, bool)
	ProposalDelete(id uint64) error
	ProposalNextID() (uint64, error)
	ProposalCount() uint64
	ProposalIndexAppend(requestID, proposalID uint64, limit int) error
	ProposalIDsByRequest(requestID uint64) []uint64
	MatchPut(*Match) error
	MatchGet(requestID uint64) (*Match, bool)
	MatchUpdateAppend(requestID uint64, update *Update) error
	MatchUpdates(requestID uint64) []*Update
}

// Params exposes the coordinator's governed configuration.
type Params interface {
	MinReputation() (uint64, error)
	MinTagOverlap() (uint64, error)
	MaxProvidersPerMatch() (uint64, error)
	MaxProposals() (uint64, error)
	ProposalExpiryWindow() (int64, error)
}

// RequestStore is the intake collaborator the coordinator reads requests
// from and reports matches back to.
type RequestStore interface {
	RequestGet(id uint64) (*types.Request, bool, error)
	RequestSetStatus(id uint64, status string) error
}

// ProviderDirectory lists providers in its own order; the coordinator never
// re-ranks.
type ProviderDirectory interface {
	ProviderGet(addr [20]byte) (*types.Provider, bool, error)
	ActiveProviders() ([][20]byte, error)
}

// ReputationSource reports a provider's score in [0,100].
type ReputationSource interface {
	Score(addr [20]byte) (int64, error)
}

// EscrowLedger is the custody collaborator invoked on acceptance.
type EscrowLedger interface {
	Deposit(requestID uint64, depositor, provider [20]byte, amount *big.Int, currency string) (uint64, error)
}

type matchEvent struct {
	evt *types.Event
}

func (e matchEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e matchEvent) Event() *types.Event { return e.evt }

// Engine coordinates matching: it fans proposals out to eligible providers,
// drives accept/reject of individual proposals, and tracks the resulting
// match records.
type Engine struct {
	state      engineState
	params     Params
	requests   RequestStore
	providers  ProviderDirectory
	reputation ReputationSource
	ledger     EscrowLedger
	emitter    events.Emitter
	nowFn      func() int64
}

// NewEngine creates a matching engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetParams configures the governed parameter source.
func (e *Engine) SetParams(params Params) { e.params = params }

// SetCollaborators wires the intake-side request, provider and reputation
// stores.
func (e *Engine) SetCollaborators(requests RequestStore, providers ProviderDirectory, reputation ReputationSource) {
	e.requests = requests
	e.providers = providers
	e.reputation = reputation
}

// SetEscrowLedger wires the custody ledger invoked on acceptance.
func (e *Engine) SetEscrowLedger(ledger EscrowLedger) { e.ledger = ledger }

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(matchEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.params == nil {
		return errNilParams
	}
	if e.requests == nil || e.providers == nil || e.reputation == nil {
		return errNilCollaborators
	}
	return nil
}

// Propose scores the provider against the request and mints a priced,
// time-boxed proposal. Each call allocates a fresh proposal id; proposing
// twice for the same pair yields two independent proposals.
func (e *Engine) Propose(provider [20]byte, requestID uint64, urgency int64) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	req, ok, err := e.requests.RequestGet(requestID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrRequestNotFound
	}
	prov, ok, err := e.providers.ProviderGet(provider)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrProviderNotFound
	}
	if !prov.Active {
		return 0, ErrProviderInactive
	}
	score, err := e.reputation.Score(provider)
	if err != nil {
		return 0, err
	}
	minReputation, err := e.params.MinReputation()
	if err != nil {
		return 0, err
	}
	if score < int64(minReputation) {
		return 0, ErrReputationTooLow
	}
	overlap := TagOverlap(req.Tags, prov.Skills)
	minOverlap, err := e.params.MinTagOverlap()
	if err != nil {
		return 0, err
	}
	if overlap < int64(minOverlap) {
		return 0, ErrTagOverlapTooLow
	}
	amount := ProposedAmount(urgency, overlap)
	if amount <= 0 {
		return 0, ErrInvalidProposedAmount
	}
	maxProposals, err := e.params.MaxProposals()
	if err != nil {
		return 0, err
	}
	if e.state.ProposalCount() >= maxProposals {
		return 0, ErrCapacityExceeded
	}
	window, err := e.params.ProposalExpiryWindow()
	if err != nil {
		return 0, err
	}
	id, err := e.state.ProposalNextID()
	if err != nil {
		return 0, err
	}
	now := e.now()
	proposal := &Proposal{
		ID:             id,
		RequestID:      requestID,
		Provider:       provider,
		ProposedAmount: amount,
		CreatedAt:      now,
		Expiry:         now + window,
	}
	if err := e.state.ProposalPut(proposal); err != nil {
		return 0, err
	}
	if err := e.state.ProposalIndexAppend(requestID, id, ProposalIndexCap); err != nil {
		return 0, err
	}
	e.emit(NewProposedEvent(proposal))
	return id, nil
}

// RequestMatch fans proposals out to every eligible provider for an open
// request. The candidate set is the directory's active list truncated to
// the configured maximum, in directory order. Individual proposal failures
// are skipped; they do not abort the remaining fan-out.
func (e *Engine) RequestMatch(requestID uint64) ([]uint64, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	req, ok, err := e.requests.RequestGet(requestID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRequestNotFound
	}
	if req.Status != types.RequestStatusOpen {
		return nil, ErrRequestNotOpen
	}
	if req.Urgency < MinUrgency || req.Urgency > MaxUrgency {
		return nil, ErrInvalidUrgency
	}
	candidates, err := e.providers.ActiveProviders()
	if err != nil {
		return nil, err
	}
	maxProviders, err := e.params.MaxProvidersPerMatch()
	if err != nil {
		return nil, err
	}
	if uint64(len(candidates)) > maxProviders {
		candidates = candidates[:maxProviders]
	}
	if len(candidates) == 0 {
		return nil, ErrNoProviders
	}
	minReputation, err := e.params.MinReputation()
	if err != nil {
		return nil, err
	}
	minOverlap, err := e.params.MinTagOverlap()
	if err != nil {
		return nil, err
	}
	eligible := make([][20]byte, 0, len(candidates))
	for _, addr := range candidates {
		prov, ok, err := e.providers.ProviderGet(addr)
		if err != nil {
			return nil, err
		}
		if !ok || !prov.Active {
			continue
		}
		score, err := e.reputation.Score(addr)
		if err != nil {
			return nil, err
		}
		if score < int64(minReputation) {
			continue
		}
		if TagOverlap(req.Tags, prov.Skills) < int64(minOverlap) {
			continue
		}
		eligible = append(eligible, addr)
	}
	if len(eligible) == 0 {
		return nil, ErrNoEligibleProviders
	}
	proposalIDs := make([]uint64, 0, len(eligible))
	for _, addr := range eligible {
		id, err := e.Propose(addr, requestID, req.Urgency)
		if err != nil {
			continue
		}
		proposalIDs = append(proposalIDs, id)
	}
	return proposalIDs, nil
}

// AcceptMatch converts a live proposal into a match: it escrows the
// proposed amount, marks the request matched, and records the match keyed
// by request id with eligibility snapshots taken now. Only the request
// creator may accept, and only before expiry. Accepting a second proposal
// for a request replaces the prior match record.
func (e *Engine) AcceptMatch(proposalID uint64, caller [20]byte) (*Match, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.ledger == nil {
		return nil, errNilEscrow
	}
	proposal, ok := e.state.ProposalGet(proposalID)
	if !ok {
		return nil, ErrProposalNotFound
	}
	req, ok, err := e.requests.RequestGet(proposal.RequestID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRequestNotFound
	}
	if caller != req.Creator {
		return nil, ErrNotAuthorized
	}
	if e.now() >= proposal.Expiry {
		return nil, ErrProposalExpired
	}
	prov, ok, err := e.providers.ProviderGet(proposal.Provider)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProviderNotFound
	}
	score, err := e.reputation.Score(proposal.Provider)
	if err != nil {
		return nil, err
	}
	overlap := TagOverlap(req.Tags, prov.Skills)
	if _, err := e.ledger.Deposit(req.ID, caller, proposal.Provider, big.NewInt(proposal.ProposedAmount), escrow.CurrencyPAY); err != nil {
		return nil, err
	}
	if err := e.requests.RequestSetStatus(req.ID, types.RequestStatusMatched); err != nil {
		return nil, err
	}
	now := e.now()
	record := &Match{
		RequestID:       req.ID,
		Provider:        proposal.Provider,
		Status:          StatusAccepted,
		Timestamp:       now,
		Amount:          proposal.ProposedAmount,
		Urgency:         req.Urgency,
		TagOverlap:      overlap,
		ReputationScore: score,
	}
	if err := e.state.MatchPut(record); err != nil {
		return nil, err
	}
	if err := e.state.MatchUpdateAppend(req.ID, &Update{Status: StatusAccepted, Timestamp: now, Updater: caller}); err != nil {
		return nil, err
	}
	if err := e.state.ProposalDelete(proposalID); err != nil {
		return nil, err
	}
	e.emit(NewAcceptedEvent(record))
	return record.Clone(), nil
}

// RejectMatch deletes the proposal without moving funds or creating a
// match. Only the request creator may reject.
func (e *Engine) RejectMatch(proposalID uint64, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	proposal, ok := e.state.ProposalGet(proposalID)
	if !ok {
		return ErrProposalNotFound
	}
	req, ok, err := e.requests.RequestGet(proposal.RequestID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRequestNotFound
	}
	if caller != req.Creator {
		return ErrNotAuthorized
	}
	if err := e.state.ProposalDelete(proposalID); err != nil {
		return err
	}
	e.emit(NewRejectedEvent(proposal))
	return nil
}

// UpdateStatus moves a match among the updatable statuses and appends an
// audit record. A completed match rejects every update, regardless of
// caller or target status. Only the match's provider may update.
func (e *Engine) UpdateStatus(requestID uint64, newStatus string, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	record, ok := e.state.MatchGet(requestID)
	if !ok {
		return ErrMatchNotFound
	}
	if record.Status == StatusCompleted {
		return ErrUpdateNotAllowed
	}
	if caller != record.Provider {
		return ErrNotAuthorized
	}
	if !UpdatableStatus(newStatus) {
		return ErrInvalidStatus
	}
	now := e.now()
	record.Status = newStatus
	record.Timestamp = now
	if err := e.state.MatchPut(record); err != nil {
		return err
	}
	if err := e.state.MatchUpdateAppend(requestID, &Update{Status: newStatus, Timestamp: now, Updater: caller}); err != nil {
		return err
	}
	e.emit(NewUpdatedEvent(record, caller))
	return nil
}

// GetProposal returns a copy of the proposal with the given identifier.
func (e *Engine) GetProposal(id uint64) (*Proposal, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	proposal, ok := e.state.ProposalGet(id)
	if !ok {
		return nil, ErrProposalNotFound
	}
	return proposal, nil
}

// ProposalsForRequest returns the ids held by the bounded per-request
// index, oldest first.
func (e *Engine) ProposalsForRequest(requestID uint64) []uint64 {
	if e == nil || e.state == nil {
		return nil
	}
	return e.state.ProposalIDsByRequest(requestID)
}

// GetMatch returns the match record for the request, if any.
func (e *Engine) GetMatch(requestID uint64) (*Match, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	record, ok := e.state.MatchGet(requestID)
	if !ok {
		return nil, ErrMatchNotFound
	}
	return record, nil
}

// MatchHistory returns the audit trail for the match, oldest first.
func (e *Engine) MatchHistory(requestID uint64) []*Update {
	if e == nil || e.state == nil {
		return nil
	}
	return e.state.MatchUpdates(requestID)
}
