package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"matchpay/core/types"
	"matchpay/native/escrow"
	"matchpay/native/match"
)

// RLP has no signed integer support, so records mirror the domain types
// with unsigned fields; timestamps and scores in this system are never
// negative.

type accountRecord struct {
	Nonce       uint64
	BalancePAY  *big.Int
	BalanceZPAY *big.Int
}

type escrowRecord struct {
	ID        uint64
	RequestID uint64
	Depositor [20]byte
	Provider  [20]byte
	Amount    *big.Int
	Currency  string
	FeePaid   *big.Int
	Status    uint8
	CreatedAt uint64
	DisputeID string
}

type proposalRecord struct {
	ID             uint64
	RequestID      uint64
	Provider       [20]byte
	ProposedAmount uint64
	CreatedAt      uint64
	Expiry         uint64
}

type matchRecord struct {
	RequestID       uint64
	Provider        [20]byte
	Status          string
	Timestamp       uint64
	Amount          uint64
	Urgency         uint64
	TagOverlap      uint64
	ReputationScore uint64
}

type matchUpdateRecord struct {
	Status    string
	Timestamp uint64
	Updater   [20]byte
}

type requestRecord struct {
	ID      uint64
	Creator [20]byte
	Tags    []string
	Urgency uint64
	Status  string
}

type providerRecord struct {
	Address [20]byte
	Skills  []string
	Active  bool
}

func encodeAccount(acc *types.Account) ([]byte, error) {
	acc = types.EnsureAccount(acc)
	return rlp.EncodeToBytes(&accountRecord{
		Nonce:       acc.Nonce,
		BalancePAY:  acc.BalancePAY,
		BalanceZPAY: acc.BalanceZPAY,
	})
}

func decodeAccount(raw []byte) (*types.Account, error) {
	var rec accountRecord
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, err
	}
	return types.EnsureAccount(&types.Account{
		Nonce:       rec.Nonce,
		BalancePAY:  rec.BalancePAY,
		BalanceZPAY: rec.BalanceZPAY,
	}), nil
}

func encodeEscrow(esc *escrow.Escrow) ([]byte, error) {
	sanitized, err := escrow.Sanitize(esc)
	if err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(&escrowRecord{
		ID:        sanitized.ID,
		RequestID: sanitized.RequestID,
		Depositor: sanitized.Depositor,
		Provider:  sanitized.Provider,
		Amount:    sanitized.Amount,
		Currency:  sanitized.Currency,
		FeePaid:   sanitized.FeePaid,
		Status:    uint8(sanitized.Status),
		CreatedAt: uint64(sanitized.CreatedAt),
		DisputeID: sanitized.DisputeID,
	})
}

func decodeEscrow(raw []byte) (*escrow.Escrow, error) {
	var rec escrowRecord
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, err
	}
	return &escrow.Escrow{
		ID:        rec.ID,
		RequestID: rec.RequestID,
		Depositor: rec.Depositor,
		Provider:  rec.Provider,
		Amount:    rec.Amount,
		Currency:  rec.Currency,
		FeePaid:   rec.FeePaid,
		Status:    escrow.Status(rec.Status),
		CreatedAt: int64(rec.CreatedAt),
		DisputeID: rec.DisputeID,
	}, nil
}

func encodeProposal(p *match.Proposal) ([]byte, error) {
	return rlp.EncodeToBytes(&proposalRecord{
		ID:             p.ID,
		RequestID:      p.RequestID,
		Provider:       p.Provider,
		ProposedAmount: uint64(p.ProposedAmount),
		CreatedAt:      uint64(p.CreatedAt),
		Expiry:         uint64(p.Expiry),
	})
}

func decodeProposal(raw []byte) (*match.Proposal, error) {
	var rec proposalRecord
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, err
	}
	return &match.Proposal{
		ID:             rec.ID,
		RequestID:      rec.RequestID,
		Provider:       rec.Provider,
		ProposedAmount: int64(rec.ProposedAmount),
		CreatedAt:      int64(rec.CreatedAt),
		Expiry:         int64(rec.Expiry),
	}, nil
}

func encodeMatch(m *match.Match) ([]byte, error) {
	return rlp.EncodeToBytes(&matchRecord{
		RequestID:       m.RequestID,
		Provider:        m.Provider,
		Status:          m.Status,
		Timestamp:       uint64(m.Timestamp),
		Amount:          uint64(m.Amount),
		Urgency:         uint64(m.Urgency),
		TagOverlap:      uint64(m.TagOverlap),
		ReputationScore: uint64(m.ReputationScore),
	})
}

func decodeMatch(raw []byte) (*match.Match, error) {
	var rec matchRecord
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, err
	}
	return &match.Match{
		RequestID:       rec.RequestID,
		Provider:        rec.Provider,
		Status:          rec.Status,
		Timestamp:       int64(rec.Timestamp),
		Amount:          int64(rec.Amount),
		Urgency:         int64(rec.Urgency),
		TagOverlap:      int64(rec.TagOverlap),
		ReputationScore: int64(rec.ReputationScore),
	}, nil
}

func encodeMatchUpdates(updates []*match.Update) ([]byte, error) {
	recs := make([]matchUpdateRecord, 0, len(updates))
	for _, upd := range updates {
		if upd == nil {
			continue
		}
		recs = append(recs, matchUpdateRecord{
			Status:    upd.Status,
			Timestamp: uint64(upd.Timestamp),
			Updater:   upd.Updater,
		})
	}
	return rlp.EncodeToBytes(recs)
}

func decodeMatchUpdates(raw []byte) ([]*match.Update, error) {
	var recs []matchUpdateRecord
	if err := rlp.DecodeBytes(raw, &recs); err != nil {
		return nil, err
	}
	updates := make([]*match.Update, 0, len(recs))
	for _, rec := range recs {
		updates = append(updates, &match.Update{
			Status:    rec.Status,
			Timestamp: int64(rec.Timestamp),
			Updater:   rec.Updater,
		})
	}
	return updates, nil
}

func encodeRequest(req *types.Request) ([]byte, error) {
	return rlp.EncodeToBytes(&requestRecord{
		ID:      req.ID,
		Creator: req.Creator,
		Tags:    req.Tags,
		Urgency: uint64(req.Urgency),
		Status:  req.Status,
	})
}

func decodeRequest(raw []byte) (*types.Request, error) {
	var rec requestRecord
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, err
	}
	return &types.Request{
		ID:      rec.ID,
		Creator: rec.Creator,
		Tags:    rec.Tags,
		Urgency: int64(rec.Urgency),
		Status:  rec.Status,
	}, nil
}

func encodeProvider(prov *types.Provider) ([]byte, error) {
	return rlp.EncodeToBytes(&providerRecord{
		Address: prov.Address,
		Skills:  prov.Skills,
		Active:  prov.Active,
	})
}

func decodeProvider(raw []byte) (*types.Provider, error) {
	var rec providerRecord
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, err
	}
	return &types.Provider{
		Address: rec.Address,
		Skills:  rec.Skills,
		Active:  rec.Active,
	}, nil
}
