package rpc

import (
	"fmt"
	"math/big"
	"strings"

	"matchpay/core/types"
	"matchpay/crypto"
	"matchpay/native/escrow"
	"matchpay/native/match"
)

type requestPayload struct {
	ID      uint64   `json:"id"`
	Creator string   `json:"creator"`
	Tags    []string `json:"tags"`
	Urgency int64    `json:"urgency"`
}

type providerPayload struct {
	Address string   `json:"address"`
	Skills  []string `json:"skills"`
	Active  bool     `json:"active"`
}

type reputationPayload struct {
	Score int64 `json:"score"`
}

type creditPayload struct {
	Caller   string `json:"caller"`
	Address  string `json:"address"`
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

type matchRequestPayload struct {
	RequestID uint64 `json:"requestId"`
}

type proposalActionPayload struct {
	ProposalID uint64 `json:"proposalId"`
	Caller     string `json:"caller"`
}

type statusUpdatePayload struct {
	Status string `json:"status"`
	Caller string `json:"caller"`
}

type depositPayload struct {
	RequestID uint64 `json:"requestId"`
	Depositor string `json:"depositor"`
	Provider  string `json:"provider"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

type callerPayload struct {
	Caller string `json:"caller"`
}

type resolvePayload struct {
	ToProvider bool   `json:"toProvider"`
	Caller     string `json:"caller"`
}

type authorityPayload struct {
	Caller    string `json:"caller"`
	Authority string `json:"authority"`
}

type paramsPayload struct {
	Caller               string  `json:"caller"`
	FeeRatePercent       *uint64 `json:"feeRatePercent,omitempty"`
	MaxEscrows           *uint64 `json:"maxEscrows,omitempty"`
	MaxProposals         *uint64 `json:"maxProposals,omitempty"`
	MinReputation        *uint64 `json:"minReputation,omitempty"`
	MinTagOverlap        *uint64 `json:"minTagOverlap,omitempty"`
	MaxProvidersPerMatch *uint64 `json:"maxProvidersPerMatch,omitempty"`
	ProposalExpirySecs   *int64  `json:"proposalExpirySeconds,omitempty"`
}

type requestView struct {
	ID      uint64   `json:"id"`
	Creator string   `json:"creator"`
	Tags    []string `json:"tags"`
	Urgency int64    `json:"urgency"`
	Status  string   `json:"status"`
}

type providerView struct {
	Address string   `json:"address"`
	Skills  []string `json:"skills"`
	Active  bool     `json:"active"`
}

type accountView struct {
	Address     string `json:"address"`
	Nonce       uint64 `json:"nonce"`
	BalancePAY  string `json:"balancePay"`
	BalanceZPAY string `json:"balanceZpay"`
}

type proposalView struct {
	ID             uint64 `json:"id"`
	RequestID      uint64 `json:"requestId"`
	Provider       string `json:"provider"`
	ProposedAmount int64  `json:"proposedAmount"`
	CreatedAt      int64  `json:"createdAt"`
	Expiry         int64  `json:"expiry"`
}

type matchView struct {
	RequestID       uint64 `json:"requestId"`
	Provider        string `json:"provider"`
	Status          string `json:"status"`
	Timestamp       int64  `json:"timestamp"`
	Amount          int64  `json:"amount"`
	Urgency         int64  `json:"urgency"`
	TagOverlap      int64  `json:"tagOverlap"`
	ReputationScore int64  `json:"reputationScore"`
}

type updateView struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
	Updater   string `json:"updater"`
}

type escrowView struct {
	ID        uint64 `json:"id"`
	RequestID uint64 `json:"requestId"`
	Depositor string `json:"depositor"`
	Provider  string `json:"provider"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	FeePaid   string `json:"feePaid"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`
	DisputeID string `json:"disputeId,omitempty"`
}

type eventView struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func formatAddress(b [20]byte) string {
	return crypto.NewAddress(crypto.PayPrefix, b[:]).String()
}

func parseAddress(s string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(s))
	if err != nil {
		return out, fmt.Errorf("invalid address %q: %w", s, err)
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return amount, nil
}

func newRequestView(req *types.Request) requestView {
	return requestView{
		ID:      req.ID,
		Creator: formatAddress(req.Creator),
		Tags:    req.Tags,
		Urgency: req.Urgency,
		Status:  req.Status,
	}
}

func newProviderView(prov *types.Provider) providerView {
	return providerView{
		Address: formatAddress(prov.Address),
		Skills:  prov.Skills,
		Active:  prov.Active,
	}
}

func newProposalView(p *match.Proposal) proposalView {
	return proposalView{
		ID:             p.ID,
		RequestID:      p.RequestID,
		Provider:       formatAddress(p.Provider),
		ProposedAmount: p.ProposedAmount,
		CreatedAt:      p.CreatedAt,
		Expiry:         p.Expiry,
	}
}

func newMatchView(m *match.Match) matchView {
	return matchView{
		RequestID:       m.RequestID,
		Provider:        formatAddress(m.Provider),
		Status:          m.Status,
		Timestamp:       m.Timestamp,
		Amount:          m.Amount,
		Urgency:         m.Urgency,
		TagOverlap:      m.TagOverlap,
		ReputationScore: m.ReputationScore,
	}
}

func newUpdateView(u *match.Update) updateView {
	return updateView{
		Status:    u.Status,
		Timestamp: u.Timestamp,
		Updater:   formatAddress(u.Updater),
	}
}

func newEscrowView(e *escrow.Escrow) escrowView {
	return escrowView{
		ID:        e.ID,
		RequestID: e.RequestID,
		Depositor: formatAddress(e.Depositor),
		Provider:  formatAddress(e.Provider),
		Amount:    e.Amount.String(),
		Currency:  e.Currency,
		FeePaid:   e.FeePaid.String(),
		Status:    e.Status.String(),
		CreatedAt: e.CreatedAt,
		DisputeID: e.DisputeID,
	}
}
