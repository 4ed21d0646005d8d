package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"matchpay/core/types"
	"matchpay/native/escrow"
	"matchpay/native/match"
	"matchpay/storage"
)

// Key prefixes for the settlement tables. Numeric keys are big-endian so
// iteration order matches id order.
const (
	prefixAccount        = "account/"
	prefixEscrow         = "escrow/id/"
	prefixEscrowByReq    = "escrow/request/"
	prefixProposal       = "proposal/id/"
	prefixProposalByReq  = "proposal/request/"
	prefixMatch          = "match/request/"
	prefixMatchLog       = "match/log/"
	prefixRequest        = "request/id/"
	prefixProvider       = "provider/addr/"
	prefixReputation     = "reputation/addr/"
	prefixParam          = "params/"
	keyEscrowSequence    = "escrow/seq"
	keyEscrowCount       = "escrow/count"
	keyProposalSequence  = "proposal/seq"
	keyProposalCount     = "proposal/count"
	keyActiveProviders   = "provider/active"
	vaultAddressDomain   = "matchpay/vault/"
)

// Manager provides typed access to the settlement tables over a raw
// key-value database. It is not safe for concurrent use; the node
// serializes every operation that reaches it.
type Manager struct {
	db storage.Database
}

// NewManager wraps the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func u64Key(prefix string, id uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], id)
	return key
}

func addrKey(prefix string, addr [20]byte) []byte {
	key := make([]byte, len(prefix)+20)
	copy(key, prefix)
	copy(key[len(prefix):], addr[:])
	return key
}

func (m *Manager) getRaw(key []byte) ([]byte, bool) {
	raw, err := m.db.Get(key)
	if err != nil {
		return nil, false
	}
	return raw, true
}

func (m *Manager) readCounter(key string) uint64 {
	raw, ok := m.getRaw([]byte(key))
	if !ok || len(raw) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}

func (m *Manager) writeCounter(key string, value uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)
	return m.db.Put([]byte(key), buf)
}

func (m *Manager) nextSequence(key string) (uint64, error) {
	next := m.readCounter(key) + 1
	if err := m.writeCounter(key, next); err != nil {
		return 0, err
	}
	return next, nil
}

// --- Accounts ---

// GetAccount loads the account stored for addr, returning a zeroed account
// when none exists yet.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	raw, err := m.db.Get(addrKey(prefixAccount, addr))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return types.EnsureAccount(nil), nil
	}
	if err != nil {
		return nil, err
	}
	return decodeAccount(raw)
}

// PutAccount persists the account under addr.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	encoded, err := encodeAccount(account)
	if err != nil {
		return err
	}
	return m.db.Put(addrKey(prefixAccount, addr), encoded)
}

// VaultAddress derives the deterministic custody address for a currency.
func (m *Manager) VaultAddress(currency string) ([20]byte, error) {
	normalized, err := escrow.NormalizeCurrency(currency)
	if err != nil {
		return [20]byte{}, err
	}
	hash := ethcrypto.Keccak256([]byte(vaultAddressDomain + normalized))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr, nil
}

// --- Escrows ---

// EscrowPut persists the escrow and, for a new escrow, its request index
// and the table counter.
func (m *Manager) EscrowPut(esc *escrow.Escrow) error {
	encoded, err := encodeEscrow(esc)
	if err != nil {
		return err
	}
	_, existed := m.getRaw(u64Key(prefixEscrow, esc.ID))
	if err := m.db.Put(u64Key(prefixEscrow, esc.ID), encoded); err != nil {
		return err
	}
	if existed {
		return nil
	}
	idBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(idBuf, esc.ID)
	if err := m.db.Put(u64Key(prefixEscrowByReq, esc.RequestID), idBuf); err != nil {
		return err
	}
	return m.writeCounter(keyEscrowCount, m.readCounter(keyEscrowCount)+1)
}

// EscrowGet loads the escrow with the given identifier.
func (m *Manager) EscrowGet(id uint64) (*escrow.Escrow, bool) {
	raw, ok := m.getRaw(u64Key(prefixEscrow, id))
	if !ok {
		return nil, false
	}
	esc, err := decodeEscrow(raw)
	if err != nil {
		return nil, false
	}
	return esc, true
}

// EscrowByRequest resolves the secondary request index.
func (m *Manager) EscrowByRequest(requestID uint64) (*escrow.Escrow, bool) {
	raw, ok := m.getRaw(u64Key(prefixEscrowByReq, requestID))
	if !ok || len(raw) != 8 {
		return nil, false
	}
	return m.EscrowGet(binary.BigEndian.Uint64(raw))
}

// EscrowCount reports how many escrows the ledger has created.
func (m *Manager) EscrowCount() uint64 {
	return m.readCounter(keyEscrowCount)
}

// EscrowNextID allocates the next escrow sequence number.
func (m *Manager) EscrowNextID() (uint64, error) {
	return m.nextSequence(keyEscrowSequence)
}

// --- Proposals ---

// ProposalPut persists the proposal, bumping the live count for a new id.
func (m *Manager) ProposalPut(p *match.Proposal) error {
	encoded, err := encodeProposal(p)
	if err != nil {
		return err
	}
	_, existed := m.getRaw(u64Key(prefixProposal, p.ID))
	if err := m.db.Put(u64Key(prefixProposal, p.ID), encoded); err != nil {
		return err
	}
	if existed {
		return nil
	}
	return m.writeCounter(keyProposalCount, m.readCounter(keyProposalCount)+1)
}

// ProposalGet loads the proposal with the given identifier.
func (m *Manager) ProposalGet(id uint64) (*match.Proposal, bool) {
	raw, ok := m.getRaw(u64Key(prefixProposal, id))
	if !ok {
		return nil, false
	}
	p, err := decodeProposal(raw)
	if err != nil {
		return nil, false
	}
	return p, true
}

// ProposalDelete removes the proposal and drops its id from the request
// index.
func (m *Manager) ProposalDelete(id uint64) error {
	p, ok := m.ProposalGet(id)
	if !ok {
		return nil
	}
	if err := m.db.Delete(u64Key(prefixProposal, id)); err != nil {
		return err
	}
	ids := m.ProposalIDsByRequest(p.RequestID)
	filtered := ids[:0]
	for _, existing := range ids {
		if existing != id {
			filtered = append(filtered, existing)
		}
	}
	if err := m.writeProposalIndex(p.RequestID, filtered); err != nil {
		return err
	}
	count := m.readCounter(keyProposalCount)
	if count > 0 {
		count--
	}
	return m.writeCounter(keyProposalCount, count)
}

// ProposalNextID allocates the next proposal sequence number.
func (m *Manager) ProposalNextID() (uint64, error) {
	return m.nextSequence(keyProposalSequence)
}

// ProposalCount reports the number of live proposals.
func (m *Manager) ProposalCount() uint64 {
	return m.readCounter(keyProposalCount)
}

func (m *Manager) writeProposalIndex(requestID uint64, ids []uint64) error {
	encoded, err := rlp.EncodeToBytes(ids)
	if err != nil {
		return err
	}
	return m.db.Put(u64Key(prefixProposalByReq, requestID), encoded)
}

// ProposalIndexAppend appends a proposal id to the bounded per-request
// index, evicting the oldest entry on overflow.
func (m *Manager) ProposalIndexAppend(requestID, proposalID uint64, limit int) error {
	ids := m.ProposalIDsByRequest(requestID)
	ids = append(ids, proposalID)
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	return m.writeProposalIndex(requestID, ids)
}

// ProposalIDsByRequest returns the per-request index, oldest first.
func (m *Manager) ProposalIDsByRequest(requestID uint64) []uint64 {
	raw, ok := m.getRaw(u64Key(prefixProposalByReq, requestID))
	if !ok {
		return nil
	}
	var ids []uint64
	if err := rlp.DecodeBytes(raw, &ids); err != nil {
		return nil
	}
	return ids
}

// --- Matches ---

// MatchPut persists the match record keyed by its request id.
func (m *Manager) MatchPut(record *match.Match) error {
	encoded, err := encodeMatch(record)
	if err != nil {
		return err
	}
	return m.db.Put(u64Key(prefixMatch, record.RequestID), encoded)
}

// MatchGet loads the match record for the request.
func (m *Manager) MatchGet(requestID uint64) (*match.Match, bool) {
	raw, ok := m.getRaw(u64Key(prefixMatch, requestID))
	if !ok {
		return nil, false
	}
	record, err := decodeMatch(raw)
	if err != nil {
		return nil, false
	}
	return record, true
}

// MatchUpdateAppend appends an audit record to the match history.
func (m *Manager) MatchUpdateAppend(requestID uint64, update *match.Update) error {
	updates := m.MatchUpdates(requestID)
	updates = append(updates, update)
	encoded, err := encodeMatchUpdates(updates)
	if err != nil {
		return err
	}
	return m.db.Put(u64Key(prefixMatchLog, requestID), encoded)
}

// MatchUpdates returns the audit history for the match, oldest first.
func (m *Manager) MatchUpdates(requestID uint64) []*match.Update {
	raw, ok := m.getRaw(u64Key(prefixMatchLog, requestID))
	if !ok {
		return nil
	}
	updates, err := decodeMatchUpdates(raw)
	if err != nil {
		return nil
	}
	return updates
}

// --- Requests / providers / reputation (registry tables) ---

// RequestPut persists an intake request record.
func (m *Manager) RequestPut(req *types.Request) error {
	encoded, err := encodeRequest(req)
	if err != nil {
		return err
	}
	return m.db.Put(u64Key(prefixRequest, req.ID), encoded)
}

// RequestGet loads the request with the given identifier.
func (m *Manager) RequestGet(id uint64) (*types.Request, bool) {
	raw, ok := m.getRaw(u64Key(prefixRequest, id))
	if !ok {
		return nil, false
	}
	req, err := decodeRequest(raw)
	if err != nil {
		return nil, false
	}
	return req, true
}

// ProviderPut persists a provider record and keeps the ordered active list
// consistent: active providers join the tail once, inactive providers are
// removed.
func (m *Manager) ProviderPut(prov *types.Provider) error {
	encoded, err := encodeProvider(prov)
	if err != nil {
		return err
	}
	if err := m.db.Put(addrKey(prefixProvider, prov.Address), encoded); err != nil {
		return err
	}
	list, err := m.ActiveProviderList()
	if err != nil {
		return err
	}
	filtered := make([][20]byte, 0, len(list)+1)
	present := false
	for _, addr := range list {
		if addr == prov.Address {
			present = true
			if !prov.Active {
				continue
			}
		}
		filtered = append(filtered, addr)
	}
	if prov.Active && !present {
		filtered = append(filtered, prov.Address)
	}
	encodedList, err := rlp.EncodeToBytes(filtered)
	if err != nil {
		return err
	}
	return m.db.Put([]byte(keyActiveProviders), encodedList)
}

// ProviderGet loads the provider stored under addr.
func (m *Manager) ProviderGet(addr [20]byte) (*types.Provider, bool) {
	raw, ok := m.getRaw(addrKey(prefixProvider, addr))
	if !ok {
		return nil, false
	}
	prov, err := decodeProvider(raw)
	if err != nil {
		return nil, false
	}
	return prov, true
}

// ActiveProviderList returns active provider addresses in registration
// order.
func (m *Manager) ActiveProviderList() ([][20]byte, error) {
	raw, err := m.db.Get([]byte(keyActiveProviders))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var list [][20]byte
	if err := rlp.DecodeBytes(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ReputationSet stores a provider's reputation score.
func (m *Manager) ReputationSet(addr [20]byte, score int64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(score))
	return m.db.Put(addrKey(prefixReputation, addr), buf)
}

// ReputationGet loads a provider's reputation score.
func (m *Manager) ReputationGet(addr [20]byte) (int64, bool) {
	raw, ok := m.getRaw(addrKey(prefixReputation, addr))
	if !ok || len(raw) != 8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(raw)), true
}

// --- Parameter store ---

// ParamStoreSet persists a raw parameter value under the canonical key.
func (m *Manager) ParamStoreSet(name string, value []byte) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("state: params key must not be empty")
	}
	return m.db.Put([]byte(prefixParam+trimmed), value)
}

// ParamStoreGet loads a raw parameter value.
func (m *Manager) ParamStoreGet(name string) ([]byte, bool, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, false, fmt.Errorf("state: params key must not be empty")
	}
	raw, err := m.db.Get([]byte(prefixParam + trimmed))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}
