package core

import (
	"errors"
	"math/big"
	"testing"

	"matchpay/core/types"
	"matchpay/native/escrow"
	"matchpay/native/match"
	"matchpay/native/params"
	"matchpay/storage"
)

func testAddr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func newTestNode(t *testing.T) *Node {
	t.Helper()
	node := NewNode(storage.NewMemDB())
	node.SetNowFunc(func() int64 { return 1_000 })
	t.Cleanup(node.Close)
	return node
}

func seedMarketplace(t *testing.T, node *Node, authority, creator, provider [20]byte) {
	t.Helper()
	if err := node.SetAuthority(authority, authority); err != nil {
		t.Fatalf("set authority: %v", err)
	}
	if err := node.Credit(authority, creator, "PAY", big.NewInt(10_000)); err != nil {
		t.Fatalf("credit creator: %v", err)
	}
	tags := []string{"plumbing", "electrical", "tiling", "painting", "roofing"}
	if err := node.SubmitRequest(&types.Request{ID: 1, Creator: creator, Tags: tags, Urgency: 3}); err != nil {
		t.Fatalf("submit request: %v", err)
	}
	if err := node.RegisterProvider(&types.Provider{Address: provider, Skills: tags, Active: true}); err != nil {
		t.Fatalf("register provider: %v", err)
	}
	if err := node.SetReputation(provider, 80); err != nil {
		t.Fatalf("set reputation: %v", err)
	}
}

func TestCreditRequiresAuthority(t *testing.T) {
	node := newTestNode(t)
	authority := testAddr(9)
	stranger := testAddr(5)

	if err := node.Credit(stranger, testAddr(1), "PAY", big.NewInt(100)); !errors.Is(err, params.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized before authority claimed, got %v", err)
	}
	if err := node.SetAuthority(authority, authority); err != nil {
		t.Fatalf("set authority: %v", err)
	}
	if err := node.Credit(stranger, testAddr(1), "PAY", big.NewInt(100)); !errors.Is(err, params.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for stranger, got %v", err)
	}
	if err := node.Credit(authority, testAddr(1), "PAY", big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	acc, err := node.GetAccount(testAddr(1))
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acc.BalancePAY.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected balance 100, got %s", acc.BalancePAY)
	}
}

func TestMatchLifecycleEndToEnd(t *testing.T) {
	node := newTestNode(t)
	authority := testAddr(9)
	creator := testAddr(1)
	provider := testAddr(2)
	seedMarketplace(t, node, authority, creator, provider)

	ids, err := node.RequestMatch(1)
	if err != nil {
		t.Fatalf("request match: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected one proposal, got %d", len(ids))
	}
	proposal, err := node.GetProposal(ids[0])
	if err != nil {
		t.Fatalf("get proposal: %v", err)
	}
	// urgency 3, five shared tags: 3*10 + 50*5.
	if proposal.ProposedAmount != 280 {
		t.Fatalf("expected proposed amount 280, got %d", proposal.ProposedAmount)
	}

	record, err := node.AcceptMatch(ids[0], creator)
	if err != nil {
		t.Fatalf("accept match: %v", err)
	}
	if record.Status != match.StatusAccepted {
		t.Fatalf("expected accepted, got %s", record.Status)
	}

	req, ok, err := node.GetRequest(1)
	if err != nil || !ok {
		t.Fatalf("get request: ok=%v err=%v", ok, err)
	}
	if req.Status != types.RequestStatusMatched {
		t.Fatalf("expected matched request, got %s", req.Status)
	}

	esc, err := node.GetEscrowByRequest(1)
	if err != nil {
		t.Fatalf("get escrow: %v", err)
	}
	if esc.Amount.Cmp(big.NewInt(280)) != 0 || esc.FeePaid.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("unexpected escrow terms: amount=%s fee=%s", esc.Amount, esc.FeePaid)
	}
	acc, _ := node.GetAccount(creator)
	if acc.BalancePAY.Cmp(big.NewInt(10_000-285)) != 0 {
		t.Fatalf("expected creator debited 285, balance %s", acc.BalancePAY)
	}

	if err := node.UpdateMatchStatus(1, match.StatusPending, provider); err != nil {
		t.Fatalf("update status: %v", err)
	}
	history := node.MatchHistory(1)
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}

	if err := node.ReleaseEscrow(esc.ID, provider); err != nil {
		t.Fatalf("release: %v", err)
	}
	provAcc, _ := node.GetAccount(provider)
	if provAcc.BalancePAY.Cmp(big.NewInt(275)) != 0 {
		t.Fatalf("expected provider paid 275, got %s", provAcc.BalancePAY)
	}
	authAcc, _ := node.GetAccount(authority)
	if authAcc.BalancePAY.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected authority fee 5, got %s", authAcc.BalancePAY)
	}

	evts := node.Events()
	if len(evts) == 0 {
		t.Fatal("expected buffered events")
	}
	seen := make(map[string]bool, len(evts))
	for _, evt := range evts {
		seen[evt.Type] = true
	}
	for _, want := range []string{
		match.EventTypeMatchProposed,
		match.EventTypeMatchAccepted,
		match.EventTypeMatchUpdated,
		escrow.EventTypeEscrowDeposited,
		escrow.EventTypeEscrowReleased,
	} {
		if !seen[want] {
			t.Fatalf("missing event %s in %v", want, evts)
		}
	}
}

func TestDisputeFlowThroughNode(t *testing.T) {
	node := newTestNode(t)
	authority := testAddr(9)
	depositor := testAddr(1)
	provider := testAddr(2)

	if err := node.SetAuthority(authority, authority); err != nil {
		t.Fatalf("set authority: %v", err)
	}
	if err := node.Credit(authority, depositor, "PAY", big.NewInt(2_000)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	id, err := node.Deposit(7, depositor, provider, big.NewInt(1_000), "PAY")
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	disputeID, err := node.InitiateDispute(id)
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if disputeID == "" {
		t.Fatal("expected dispute id")
	}
	if err := node.ResolveDispute(id, false, authority); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	acc, _ := node.GetAccount(depositor)
	if acc.BalancePAY.Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("expected depositor made whole, got %s", acc.BalancePAY)
	}
	esc, err := node.GetEscrow(id)
	if err != nil {
		t.Fatalf("get escrow: %v", err)
	}
	if esc.Status != escrow.StatusResolved {
		t.Fatalf("expected resolved, got %s", esc.Status)
	}
}

func TestGovernedParametersFlow(t *testing.T) {
	node := newTestNode(t)
	authority := testAddr(9)
	if err := node.SetAuthority(authority, authority); err != nil {
		t.Fatalf("set authority: %v", err)
	}
	if err := node.SetFeeRate(testAddr(5), 3); !errors.Is(err, params.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := node.SetFeeRate(authority, 11); !errors.Is(err, params.ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue above cap, got %v", err)
	}
	if err := node.SetFeeRate(authority, 0); err != nil {
		t.Fatalf("set zero fee: %v", err)
	}

	// Zero fee: deposit charges exactly the principal.
	depositor := testAddr(1)
	if err := node.Credit(authority, depositor, "PAY", big.NewInt(1_000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := node.Deposit(1, depositor, testAddr(2), big.NewInt(1_000), "PAY"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	acc, _ := node.GetAccount(depositor)
	if acc.BalancePAY.Sign() != 0 {
		t.Fatalf("expected zero balance under zero fee, got %s", acc.BalancePAY)
	}
}
