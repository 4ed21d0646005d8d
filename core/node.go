package core

import (
	"math/big"
	"sync"

	"matchpay/core/events"
	"matchpay/core/state"
	"matchpay/core/types"
	"matchpay/native/escrow"
	"matchpay/native/match"
	"matchpay/native/params"
	"matchpay/native/registry"
	"matchpay/observability/metrics"
	"matchpay/storage"
)

// eventCarrier is implemented by engine events that wrap a typed payload.
type eventCarrier interface {
	Event() *types.Event
}

// eventBufferCap bounds the in-memory event history served over RPC.
const eventBufferCap = 4096

// Node wires the settlement engines to shared state and serializes every
// public operation under a single lock. That gives each operation the
// run-to-completion semantics the engines assume: no operation observes a
// partially applied effect of another.
type Node struct {
	mu sync.Mutex

	db       storage.Database
	state    *state.Manager
	params   *params.Store
	ledger   *escrow.Engine
	matcher  *match.Engine
	registry *registry.Ledger

	events []types.Event
}

// NewNode constructs a node over the provided database and wires the
// escrow ledger, matching coordinator, registry and parameter store
// together.
func NewNode(db storage.Database) *Node {
	manager := state.NewManager(db)
	n := &Node{
		db:       db,
		state:    manager,
		params:   params.NewStore(manager),
		ledger:   escrow.NewEngine(),
		matcher:  match.NewEngine(),
		registry: registry.NewLedger(manager),
	}
	n.ledger.SetState(manager)
	n.ledger.SetParams(n.params)
	n.ledger.SetEmitter(n)
	n.matcher.SetState(manager)
	n.matcher.SetParams(n.params)
	n.matcher.SetCollaborators(n.registry, n.registry, n.registry)
	n.matcher.SetEscrowLedger(n.ledger)
	n.matcher.SetEmitter(n)
	return n
}

// SetNowFunc overrides the logical clock of both engines, primarily for
// tests.
func (n *Node) SetNowFunc(now func() int64) {
	n.ledger.SetNowFunc(now)
	n.matcher.SetNowFunc(now)
}

// Emit implements events.Emitter, buffering typed engine events for the
// RPC surface. The buffer keeps the most recent entries.
func (n *Node) Emit(evt events.Event) {
	carrier, ok := evt.(eventCarrier)
	if !ok || carrier.Event() == nil {
		return
	}
	n.events = append(n.events, *carrier.Event())
	if len(n.events) > eventBufferCap {
		n.events = n.events[len(n.events)-eventBufferCap:]
	}
}

// Events returns a copy of the buffered event history, oldest first.
func (n *Node) Events() []types.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]types.Event, len(n.events))
	copy(out, n.events)
	return out
}

// Close releases the underlying database.
func (n *Node) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.db.Close()
}

// --- Intake collaborators ---

// SubmitRequest stores an intake request record.
func (n *Node) SubmitRequest(req *types.Request) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.PutRequest(req)
}

// GetRequest loads a request record.
func (n *Node) GetRequest(id uint64) (*types.Request, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.RequestGet(id)
}

// RegisterProvider stores a provider record.
func (n *Node) RegisterProvider(prov *types.Provider) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.PutProvider(prov)
}

// GetProvider loads a provider record.
func (n *Node) GetProvider(addr [20]byte) (*types.Provider, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.ProviderGet(addr)
}

// SetReputation records an externally computed reputation score.
func (n *Node) SetReputation(addr [20]byte, score int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.SetScore(addr, score)
}

// --- Funding ---

// Credit mints balance into an account. Only the authority may fund
// accounts; production deployments replace this with a payment on-ramp.
func (n *Node) Credit(caller, addr [20]byte, currency string, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	authority, ok, err := n.params.Authority()
	if err != nil {
		return err
	}
	if !ok || caller != authority {
		return params.ErrNotAuthorized
	}
	normalized, err := escrow.NormalizeCurrency(currency)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return escrow.ErrInvalidAmount
	}
	account, err := n.state.GetAccount(addr)
	if err != nil {
		return err
	}
	if normalized == escrow.CurrencyZPAY {
		account.BalanceZPAY = new(big.Int).Add(account.BalanceZPAY, amount)
	} else {
		account.BalancePAY = new(big.Int).Add(account.BalancePAY, amount)
	}
	return n.state.PutAccount(addr, account)
}

// GetAccount returns the balances stored for addr.
func (n *Node) GetAccount(addr [20]byte) (*types.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.GetAccount(addr)
}

// --- Matching ---

// RequestMatch fans proposals out to eligible providers for the request.
func (n *Node) RequestMatch(requestID uint64) ([]uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids, err := n.matcher.RequestMatch(requestID)
	if err != nil {
		return nil, err
	}
	for range ids {
		metrics.Settlement().ObserveProposal()
	}
	return ids, nil
}

// AcceptMatch converts a proposal into a funded match.
func (n *Node) AcceptMatch(proposalID uint64, caller [20]byte) (*match.Match, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	record, err := n.matcher.AcceptMatch(proposalID, caller)
	if err != nil {
		return nil, err
	}
	metrics.Settlement().ObserveMatchAccepted()
	metrics.Settlement().ObserveDeposit(n.ledger.Count())
	return record, nil
}

// RejectMatch deletes a proposal on behalf of the request creator.
func (n *Node) RejectMatch(proposalID uint64, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.matcher.RejectMatch(proposalID, caller)
}

// UpdateMatchStatus moves a match among its updatable statuses.
func (n *Node) UpdateMatchStatus(requestID uint64, status string, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.matcher.UpdateStatus(requestID, status, caller); err != nil {
		return err
	}
	metrics.Settlement().ObserveMatchUpdate(status)
	return nil
}

// GetProposal loads a proposal by id.
func (n *Node) GetProposal(id uint64) (*match.Proposal, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.matcher.GetProposal(id)
}

// ProposalsForRequest returns the bounded per-request proposal index.
func (n *Node) ProposalsForRequest(requestID uint64) []uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.matcher.ProposalsForRequest(requestID)
}

// GetMatch loads the match record for a request.
func (n *Node) GetMatch(requestID uint64) (*match.Match, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.matcher.GetMatch(requestID)
}

// MatchHistory returns the audit trail for a match.
func (n *Node) MatchHistory(requestID uint64) []*match.Update {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.matcher.MatchHistory(requestID)
}

// --- Escrow ---

// Deposit escrows funds for a request outside the accept flow.
func (n *Node) Deposit(requestID uint64, depositor, provider [20]byte, amount *big.Int, currency string) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id, err := n.ledger.Deposit(requestID, depositor, provider, amount, currency)
	if err != nil {
		return 0, err
	}
	metrics.Settlement().ObserveDeposit(n.ledger.Count())
	return id, nil
}

// ReleaseEscrow settles an escrow in favour of the provider.
func (n *Node) ReleaseEscrow(id uint64, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ledger.Release(id, caller); err != nil {
		return err
	}
	metrics.Settlement().ObserveSettlement("release")
	return nil
}

// RefundEscrow returns escrowed funds to the depositor.
func (n *Node) RefundEscrow(id uint64, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ledger.Refund(id, caller); err != nil {
		return err
	}
	metrics.Settlement().ObserveSettlement("refund")
	return nil
}

// InitiateDispute freezes an active escrow pending resolution.
func (n *Node) InitiateDispute(id uint64) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	disputeID, err := n.ledger.InitiateDispute(id)
	if err != nil {
		return "", err
	}
	metrics.Settlement().ObserveDisputeOpened()
	return disputeID, nil
}

// ResolveDispute settles a disputed escrow according to the authority's
// ruling.
func (n *Node) ResolveDispute(id uint64, toProvider bool, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ledger.ResolveDispute(id, toProvider, caller); err != nil {
		return err
	}
	ruling := "refund"
	if toProvider {
		ruling = "release"
	}
	metrics.Settlement().ObserveDisputeResolved(ruling)
	return nil
}

// GetEscrow loads an escrow by id.
func (n *Node) GetEscrow(id uint64) (*escrow.Escrow, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.Get(id)
}

// GetEscrowByRequest loads the escrow attached to a request.
func (n *Node) GetEscrowByRequest(requestID uint64) (*escrow.Escrow, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.GetByRequest(requestID)
}

// EscrowCount reports how many escrows the ledger has created.
func (n *Node) EscrowCount() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.Count()
}

// --- Governed configuration ---

// Authority returns the configured authority, if any.
func (n *Node) Authority() ([20]byte, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.params.Authority()
}

// SetAuthority claims or reassigns the authority role.
func (n *Node) SetAuthority(caller, authority [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.params.SetAuthority(caller, authority)
}

// SetFeeRate sets the platform fee percentage.
func (n *Node) SetFeeRate(caller [20]byte, percent uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.params.SetFeeRate(caller, percent)
}

// SetMaxEscrows bounds the escrow table.
func (n *Node) SetMaxEscrows(caller [20]byte, v uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.params.SetMaxEscrows(caller, v)
}

// SetMaxProposals bounds the proposal table.
func (n *Node) SetMaxProposals(caller [20]byte, v uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.params.SetMaxProposals(caller, v)
}

// SetMinReputation sets the provider eligibility floor.
func (n *Node) SetMinReputation(caller [20]byte, v uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.params.SetMinReputation(caller, v)
}

// SetMinTagOverlap sets the tag overlap eligibility floor.
func (n *Node) SetMinTagOverlap(caller [20]byte, v uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.params.SetMinTagOverlap(caller, v)
}

// SetMaxProvidersPerMatch bounds the candidate set per match request.
func (n *Node) SetMaxProvidersPerMatch(caller [20]byte, v uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.params.SetMaxProvidersPerMatch(caller, v)
}

// SetProposalExpiryWindow sets the proposal validity window in seconds.
func (n *Node) SetProposalExpiryWindow(caller [20]byte, seconds int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.params.SetProposalExpiryWindow(caller, seconds)
}
