package match

import (
	"errors"
	"math/big"
	"testing"

	"matchpay/core/types"
)

type mockState struct {
	proposals map[uint64]*Proposal
	index     map[uint64][]uint64
	matches   map[uint64]*Match
	updates   map[uint64][]*Update
	seq       uint64
}

func newMockState() *mockState {
	return &mockState{
		proposals: make(map[uint64]*Proposal),
		index:     make(map[uint64][]uint64),
		matches:   make(map[uint64]*Match),
		updates:   make(map[uint64][]*Update),
	}
}

func (m *mockState) ProposalPut(p *Proposal) error {
	m.proposals[p.ID] = p.Clone()
	return nil
}

func (m *mockState) ProposalGet(id uint64) (*Proposal, bool) {
	p, ok := m.proposals[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

func (m *mockState) ProposalDelete(id uint64) error {
	p, ok := m.proposals[id]
	if !ok {
		return nil
	}
	delete(m.proposals, id)
	ids := m.index[p.RequestID]
	for i, candidate := range ids {
		if candidate == id {
			m.index[p.RequestID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (m *mockState) ProposalNextID() (uint64, error) {
	m.seq++
	return m.seq, nil
}

func (m *mockState) ProposalCount() uint64 { return uint64(len(m.proposals)) }

func (m *mockState) ProposalIndexAppend(requestID, proposalID uint64, limit int) error {
	ids := append(m.index[requestID], proposalID)
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	m.index[requestID] = ids
	return nil
}

func (m *mockState) ProposalIDsByRequest(requestID uint64) []uint64 {
	return append([]uint64(nil), m.index[requestID]...)
}

func (m *mockState) MatchPut(record *Match) error {
	m.matches[record.RequestID] = record.Clone()
	return nil
}

func (m *mockState) MatchGet(requestID uint64) (*Match, bool) {
	record, ok := m.matches[requestID]
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

func (m *mockState) MatchUpdateAppend(requestID uint64, update *Update) error {
	m.updates[requestID] = append(m.updates[requestID], update)
	return nil
}

func (m *mockState) MatchUpdates(requestID uint64) []*Update {
	return append([]*Update(nil), m.updates[requestID]...)
}

// mockWorld backs the request store, provider directory and reputation
// source in one place.
type mockWorld struct {
	requests  map[uint64]*types.Request
	providers map[[20]byte]*types.Provider
	order     [][20]byte
	scores    map[[20]byte]int64
}

func newMockWorld() *mockWorld {
	return &mockWorld{
		requests:  make(map[uint64]*types.Request),
		providers: make(map[[20]byte]*types.Provider),
		scores:    make(map[[20]byte]int64),
	}
}

func (m *mockWorld) RequestGet(id uint64) (*types.Request, bool, error) {
	req, ok := m.requests[id]
	if !ok {
		return nil, false, nil
	}
	return req.Clone(), true, nil
}

func (m *mockWorld) RequestSetStatus(id uint64, status string) error {
	req, ok := m.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	req.Status = status
	return nil
}

func (m *mockWorld) ProviderGet(addr [20]byte) (*types.Provider, bool, error) {
	prov, ok := m.providers[addr]
	if !ok {
		return nil, false, nil
	}
	return prov.Clone(), true, nil
}

func (m *mockWorld) ActiveProviders() ([][20]byte, error) {
	active := make([][20]byte, 0, len(m.order))
	for _, addr := range m.order {
		if prov, ok := m.providers[addr]; ok && prov.Active {
			active = append(active, addr)
		}
	}
	return active, nil
}

func (m *mockWorld) Score(addr [20]byte) (int64, error) {
	return m.scores[addr], nil
}

func (m *mockWorld) addRequest(id uint64, creator [20]byte, tags []string, urgency int64) {
	m.requests[id] = &types.Request{
		ID:      id,
		Creator: creator,
		Tags:    tags,
		Urgency: urgency,
		Status:  types.RequestStatusOpen,
	}
}

func (m *mockWorld) addProvider(addr [20]byte, skills []string, active bool, score int64) {
	m.providers[addr] = &types.Provider{Address: addr, Skills: skills, Active: active}
	m.order = append(m.order, addr)
	m.scores[addr] = score
}

type depositCall struct {
	requestID uint64
	depositor [20]byte
	provider  [20]byte
	amount    *big.Int
	currency  string
}

type mockLedger struct {
	calls []depositCall
	err   error
	seq   uint64
}

func (m *mockLedger) Deposit(requestID uint64, depositor, provider [20]byte, amount *big.Int, currency string) (uint64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.calls = append(m.calls, depositCall{requestID, depositor, provider, amount, currency})
	m.seq++
	return m.seq, nil
}

type mockParams struct {
	minReputation        uint64
	minTagOverlap        uint64
	maxProvidersPerMatch uint64
	maxProposals         uint64
	expiryWindow         int64
}

func (m *mockParams) MinReputation() (uint64, error)        { return m.minReputation, nil }
func (m *mockParams) MinTagOverlap() (uint64, error)        { return m.minTagOverlap, nil }
func (m *mockParams) MaxProvidersPerMatch() (uint64, error) { return m.maxProvidersPerMatch, nil }
func (m *mockParams) MaxProposals() (uint64, error)         { return m.maxProposals, nil }
func (m *mockParams) ProposalExpiryWindow() (int64, error)  { return m.expiryWindow, nil }

func defaultParams() *mockParams {
	return &mockParams{
		minReputation:        70,
		minTagOverlap:        50,
		maxProvidersPerMatch: 10,
		maxProposals:         100,
		expiryWindow:         3_600,
	}
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func newTestEngine(state *mockState, world *mockWorld, params *mockParams, ledger *mockLedger) *Engine {
	engine := NewEngine()
	engine.SetState(state)
	engine.SetParams(params)
	engine.SetCollaborators(world, world, world)
	engine.SetEscrowLedger(ledger)
	engine.SetNowFunc(func() int64 { return 1_000 })
	return engine
}

func TestTagOverlap(t *testing.T) {
	cases := []struct {
		tags   []string
		skills []string
		want   int64
	}{
		{[]string{"a", "b", "c", "d", "e"}, []string{"a", "b", "c", "d", "e"}, 50},
		{[]string{"a", "b"}, []string{"b"}, 10},
		{[]string{"a"}, []string{"b"}, 0},
		{nil, []string{"a"}, 0},
		{[]string{"a"}, nil, 0},
		{[]string{" a "}, []string{"a"}, 10},
	}
	for _, tc := range cases {
		if got := TagOverlap(tc.tags, tc.skills); got != tc.want {
			t.Fatalf("TagOverlap(%v, %v) = %d, want %d", tc.tags, tc.skills, got, tc.want)
		}
	}
}

func TestProposedAmount(t *testing.T) {
	if got := ProposedAmount(3, 50); got != 280 {
		t.Fatalf("ProposedAmount(3, 50) = %d, want 280", got)
	}
	if got := ProposedAmount(10, 0); got != 100 {
		t.Fatalf("ProposedAmount(10, 0) = %d, want 100", got)
	}
}

func TestProposeEligibilityGates(t *testing.T) {
	state := newMockState()
	world := newMockWorld()
	params := defaultParams()
	engine := newTestEngine(state, world, params, &mockLedger{})

	creator := addr(1)
	provider := addr(2)
	world.addRequest(1, creator, []string{"plumbing", "electrical", "tiling", "painting", "roofing"}, 3)

	if _, err := engine.Propose(provider, 99, 3); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}
	if _, err := engine.Propose(provider, 1, 3); !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}

	world.addProvider(provider, []string{"plumbing", "electrical", "tiling", "painting", "roofing"}, false, 80)
	if _, err := engine.Propose(provider, 1, 3); !errors.Is(err, ErrProviderInactive) {
		t.Fatalf("expected ErrProviderInactive, got %v", err)
	}

	world.providers[provider].Active = true
	world.scores[provider] = 60
	if _, err := engine.Propose(provider, 1, 3); !errors.Is(err, ErrReputationTooLow) {
		t.Fatalf("expected ErrReputationTooLow, got %v", err)
	}

	world.scores[provider] = 80
	world.providers[provider].Skills = []string{"plumbing"}
	if _, err := engine.Propose(provider, 1, 3); !errors.Is(err, ErrTagOverlapTooLow) {
		t.Fatalf("expected ErrTagOverlapTooLow, got %v", err)
	}

	world.providers[provider].Skills = []string{"plumbing", "electrical", "tiling", "painting", "roofing"}
	params.maxProposals = 0
	if _, err := engine.Propose(provider, 1, 3); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}

	params.maxProposals = 100
	id, err := engine.Propose(provider, 1, 3)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	proposal, err := engine.GetProposal(id)
	if err != nil {
		t.Fatalf("get proposal: %v", err)
	}
	if proposal.ProposedAmount != 280 {
		t.Fatalf("expected proposed amount 280, got %d", proposal.ProposedAmount)
	}
	if proposal.Expiry != 1_000+params.expiryWindow {
		t.Fatalf("unexpected expiry %d", proposal.Expiry)
	}
}

func TestRequestMatchFanOut(t *testing.T) {
	state := newMockState()
	world := newMockWorld()
	params := defaultParams()
	engine := newTestEngine(state, world, params, &mockLedger{})

	tags := []string{"plumbing", "electrical", "tiling", "painting", "roofing"}
	world.addRequest(1, addr(1), tags, 3)
	world.addProvider(addr(2), tags, true, 80)
	world.addProvider(addr(3), tags, true, 75)
	world.addProvider(addr(4), tags, true, 40)          // below minimum reputation
	world.addProvider(addr(5), []string{"a"}, true, 90) // below minimum overlap
	world.addProvider(addr(6), tags, false, 90)         // inactive

	ids, err := engine.RequestMatch(1)
	if err != nil {
		t.Fatalf("request match: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 proposals, got %d", len(ids))
	}
	for _, id := range ids {
		proposal, err := engine.GetProposal(id)
		if err != nil {
			t.Fatalf("get proposal %d: %v", id, err)
		}
		if proposal.ProposedAmount != 280 {
			t.Fatalf("expected amount 280, got %d", proposal.ProposedAmount)
		}
	}
	if got := engine.ProposalsForRequest(1); len(got) != 2 {
		t.Fatalf("expected 2 indexed proposals, got %d", len(got))
	}
}

func TestRequestMatchValidation(t *testing.T) {
	state := newMockState()
	world := newMockWorld()
	params := defaultParams()
	engine := newTestEngine(state, world, params, &mockLedger{})

	if _, err := engine.RequestMatch(99); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}

	tags := []string{"plumbing", "electrical", "tiling", "painting", "roofing"}
	world.addRequest(1, addr(1), tags, 3)
	world.requests[1].Status = types.RequestStatusMatched
	if _, err := engine.RequestMatch(1); !errors.Is(err, ErrRequestNotOpen) {
		t.Fatalf("expected ErrRequestNotOpen, got %v", err)
	}

	world.requests[1].Status = types.RequestStatusOpen
	world.requests[1].Urgency = 11
	if _, err := engine.RequestMatch(1); !errors.Is(err, ErrInvalidUrgency) {
		t.Fatalf("expected ErrInvalidUrgency for urgency 11, got %v", err)
	}
	world.requests[1].Urgency = 0
	if _, err := engine.RequestMatch(1); !errors.Is(err, ErrInvalidUrgency) {
		t.Fatalf("expected ErrInvalidUrgency for urgency 0, got %v", err)
	}

	world.requests[1].Urgency = 3
	if _, err := engine.RequestMatch(1); !errors.Is(err, ErrNoProviders) {
		t.Fatalf("expected ErrNoProviders, got %v", err)
	}

	world.addProvider(addr(2), []string{"a"}, true, 90)
	if _, err := engine.RequestMatch(1); !errors.Is(err, ErrNoEligibleProviders) {
		t.Fatalf("expected ErrNoEligibleProviders, got %v", err)
	}
}

func TestRequestMatchSkipsIndividualFailures(t *testing.T) {
	state := newMockState()
	world := newMockWorld()
	params := defaultParams()
	params.maxProposals = 1
	engine := newTestEngine(state, world, params, &mockLedger{})

	tags := []string{"plumbing", "electrical", "tiling", "painting", "roofing"}
	world.addRequest(1, addr(1), tags, 3)
	world.addProvider(addr(2), tags, true, 80)
	world.addProvider(addr(3), tags, true, 75)

	// Capacity admits one proposal; the second mint fails and is skipped
	// rather than aborting the fan-out.
	ids, err := engine.RequestMatch(1)
	if err != nil {
		t.Fatalf("request match: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 proposal, got %d", len(ids))
	}
}

func TestRequestMatchTruncatesCandidates(t *testing.T) {
	state := newMockState()
	world := newMockWorld()
	params := defaultParams()
	params.maxProvidersPerMatch = 2
	engine := newTestEngine(state, world, params, &mockLedger{})

	tags := []string{"plumbing", "electrical", "tiling", "painting", "roofing"}
	world.addRequest(1, addr(1), tags, 3)
	world.addProvider(addr(2), tags, true, 80)
	world.addProvider(addr(3), tags, true, 75)
	world.addProvider(addr(4), tags, true, 90)

	ids, err := engine.RequestMatch(1)
	if err != nil {
		t.Fatalf("request match: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected truncation to 2 proposals, got %d", len(ids))
	}
}

func acceptFixture(t *testing.T) (*Engine, *mockState, *mockWorld, *mockLedger, uint64) {
	t.Helper()
	state := newMockState()
	world := newMockWorld()
	params := defaultParams()
	ledger := &mockLedger{}
	engine := newTestEngine(state, world, params, ledger)

	tags := []string{"plumbing", "electrical", "tiling", "painting", "roofing"}
	world.addRequest(1, addr(1), tags, 3)
	world.addProvider(addr(2), tags, true, 80)

	id, err := engine.Propose(addr(2), 1, 3)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	return engine, state, world, ledger, id
}

func TestAcceptMatch(t *testing.T) {
	engine, state, world, ledger, proposalID := acceptFixture(t)
	creator := addr(1)

	record, err := engine.AcceptMatch(proposalID, creator)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if record.Status != StatusAccepted {
		t.Fatalf("expected accepted status, got %s", record.Status)
	}
	if record.Amount != 280 || record.Urgency != 3 || record.TagOverlap != 50 || record.ReputationScore != 80 {
		t.Fatalf("unexpected match snapshot: %+v", record)
	}
	if len(ledger.calls) != 1 {
		t.Fatalf("expected one deposit, got %d", len(ledger.calls))
	}
	call := ledger.calls[0]
	if call.requestID != 1 || call.depositor != creator || call.provider != addr(2) {
		t.Fatalf("unexpected deposit call: %+v", call)
	}
	if call.amount.Cmp(big.NewInt(280)) != 0 || call.currency != "PAY" {
		t.Fatalf("unexpected deposit terms: %s %s", call.amount, call.currency)
	}
	if world.requests[1].Status != types.RequestStatusMatched {
		t.Fatalf("request not marked matched: %s", world.requests[1].Status)
	}
	if _, ok := state.ProposalGet(proposalID); ok {
		t.Fatal("accepted proposal must be deleted")
	}
	history := engine.MatchHistory(1)
	if len(history) != 1 || history[0].Status != StatusAccepted || history[0].Updater != creator {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestAcceptMatchAuthorizationAndExpiry(t *testing.T) {
	engine, _, _, _, proposalID := acceptFixture(t)

	if _, err := engine.AcceptMatch(proposalID, addr(5)); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if _, err := engine.AcceptMatch(99, addr(1)); !errors.Is(err, ErrProposalNotFound) {
		t.Fatalf("expected ErrProposalNotFound, got %v", err)
	}

	// Acceptance exactly at expiry already fails.
	engine.SetNowFunc(func() int64 { return 1_000 + 3_600 })
	if _, err := engine.AcceptMatch(proposalID, addr(1)); !errors.Is(err, ErrProposalExpired) {
		t.Fatalf("expected ErrProposalExpired, got %v", err)
	}
}

func TestAcceptMatchDepositFailureLeavesProposal(t *testing.T) {
	engine, state, world, ledger, proposalID := acceptFixture(t)
	ledger.err = errors.New("escrow: insufficient balance")

	if _, err := engine.AcceptMatch(proposalID, addr(1)); err == nil {
		t.Fatal("expected deposit failure to propagate")
	}
	if _, ok := state.ProposalGet(proposalID); !ok {
		t.Fatal("proposal must survive a failed acceptance")
	}
	if world.requests[1].Status != types.RequestStatusOpen {
		t.Fatalf("request status mutated on failed acceptance: %s", world.requests[1].Status)
	}
}

func TestRejectMatch(t *testing.T) {
	engine, state, _, ledger, proposalID := acceptFixture(t)

	if err := engine.RejectMatch(proposalID, addr(5)); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := engine.RejectMatch(proposalID, addr(1)); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if len(ledger.calls) != 0 {
		t.Fatal("reject must not move funds")
	}
	if _, ok := state.ProposalGet(proposalID); ok {
		t.Fatal("rejected proposal must be deleted")
	}
	if err := engine.RejectMatch(proposalID, addr(1)); !errors.Is(err, ErrProposalNotFound) {
		t.Fatalf("expected ErrProposalNotFound on double reject, got %v", err)
	}
}

func TestUpdateStatus(t *testing.T) {
	engine, _, _, _, proposalID := acceptFixture(t)
	creator := addr(1)
	provider := addr(2)

	if err := engine.UpdateStatus(1, StatusPending, provider); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}
	if _, err := engine.AcceptMatch(proposalID, creator); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if err := engine.UpdateStatus(1, StatusPending, creator); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for creator update, got %v", err)
	}
	if err := engine.UpdateStatus(1, StatusCompleted, provider); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus for completed target, got %v", err)
	}
	if err := engine.UpdateStatus(1, "bogus", provider); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus for unknown target, got %v", err)
	}
	if err := engine.UpdateStatus(1, StatusPending, provider); err != nil {
		t.Fatalf("update: %v", err)
	}
	record, err := engine.GetMatch(1)
	if err != nil {
		t.Fatalf("get match: %v", err)
	}
	if record.Status != StatusPending {
		t.Fatalf("expected pending, got %s", record.Status)
	}
	history := engine.MatchHistory(1)
	if len(history) != 2 || history[1].Status != StatusPending || history[1].Updater != provider {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestUpdateStatusCompletedIsTerminal(t *testing.T) {
	engine, state, _, _, proposalID := acceptFixture(t)
	creator := addr(1)
	provider := addr(2)

	if _, err := engine.AcceptMatch(proposalID, creator); err != nil {
		t.Fatalf("accept: %v", err)
	}
	record, _ := state.MatchGet(1)
	record.Status = StatusCompleted
	if err := state.MatchPut(record); err != nil {
		t.Fatalf("seed completed match: %v", err)
	}

	// A completed match rejects every update before any other check runs.
	if err := engine.UpdateStatus(1, StatusPending, provider); !errors.Is(err, ErrUpdateNotAllowed) {
		t.Fatalf("expected ErrUpdateNotAllowed for provider, got %v", err)
	}
	if err := engine.UpdateStatus(1, "bogus", addr(5)); !errors.Is(err, ErrUpdateNotAllowed) {
		t.Fatalf("expected ErrUpdateNotAllowed for stranger with bad status, got %v", err)
	}
}

func TestProposalIndexBounded(t *testing.T) {
	state := newMockState()
	world := newMockWorld()
	params := defaultParams()
	engine := newTestEngine(state, world, params, &mockLedger{})

	tags := []string{"plumbing", "electrical", "tiling", "painting", "roofing"}
	world.addRequest(1, addr(1), tags, 3)
	world.addProvider(addr(2), tags, true, 80)

	ids := make([]uint64, 0, ProposalIndexCap+2)
	for i := 0; i < ProposalIndexCap+2; i++ {
		id, err := engine.Propose(addr(2), 1, 3)
		if err != nil {
			t.Fatalf("propose %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	indexed := engine.ProposalsForRequest(1)
	if len(indexed) != ProposalIndexCap {
		t.Fatalf("expected index bounded at %d, got %d", ProposalIndexCap, len(indexed))
	}
	if indexed[0] != ids[2] || indexed[len(indexed)-1] != ids[len(ids)-1] {
		t.Fatalf("expected oldest entries evicted, got %v", indexed)
	}
	// Evicted proposals remain resolvable by id.
	if _, err := engine.GetProposal(ids[0]); err != nil {
		t.Fatalf("evicted proposal must stay resolvable: %v", err)
	}
}
