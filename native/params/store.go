package params

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"matchpay/native/escrow"
)

var (
	// ErrNotAuthorized indicates the caller does not hold the authority
	// role required to mutate configuration.
	ErrNotAuthorized = errors.New("params: caller is not the authority")
	// ErrInvalidValue indicates a parameter value outside its allowed
	// range.
	ErrInvalidValue = errors.New("params: invalid parameter value")
)

// StoreState captures the subset of state manager capabilities required by
// the parameter helpers.
type StoreState interface {
	ParamStoreSet(name string, value []byte) error
	ParamStoreGet(name string) ([]byte, bool, error)
}

// Store provides typed accessors for the authority-governed settlement
// parameters. The authority itself is first-write-wins: anyone may claim an
// unset authority, and only the current holder may reassign it or change
// any other parameter.
type Store struct {
	state StoreState
}

// NewStore constructs a parameter store wrapper using the supplied state
// backend.
func NewStore(state StoreState) *Store {
	return &Store{state: state}
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("params: state not configured")
	}
	return s.state, nil
}

// Authority returns the configured authority address, reporting ok=false
// when none has been claimed yet.
func (s *Store) Authority() ([20]byte, bool, error) {
	state, err := s.withState()
	if err != nil {
		return [20]byte{}, false, err
	}
	raw, ok, err := state.ParamStoreGet(KeyAuthority)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return [20]byte{}, false, fmt.Errorf("params: decode authority: %w", err)
	}
	decoded, err := hex.DecodeString(encoded)
	if err != nil || len(decoded) != 20 {
		return [20]byte{}, false, fmt.Errorf("params: malformed authority value")
	}
	var addr [20]byte
	copy(addr[:], decoded)
	return addr, true, nil
}

// SetAuthority claims or reassigns the authority role. An unset authority
// may be claimed by anyone; once set, only the current holder may hand it
// over.
func (s *Store) SetAuthority(caller, authority [20]byte) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	if authority == ([20]byte{}) {
		return ErrInvalidValue
	}
	current, ok, err := s.Authority()
	if err != nil {
		return err
	}
	if ok && current != caller {
		return ErrNotAuthorized
	}
	encoded, err := json.Marshal(hex.EncodeToString(authority[:]))
	if err != nil {
		return fmt.Errorf("params: encode authority: %w", err)
	}
	return state.ParamStoreSet(KeyAuthority, encoded)
}

func (s *Store) ensureAuthority(caller [20]byte) error {
	current, ok, err := s.Authority()
	if err != nil {
		return err
	}
	if !ok || current != caller {
		return ErrNotAuthorized
	}
	return nil
}

func (s *Store) setUint(caller [20]byte, key string, value uint64) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	if err := s.ensureAuthority(caller); err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("params: encode %s: %w", key, err)
	}
	return state.ParamStoreSet(key, encoded)
}

func (s *Store) getUint(key string, fallback uint64) (uint64, error) {
	state, err := s.withState()
	if err != nil {
		return 0, err
	}
	raw, ok, err := state.ParamStoreGet(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return fallback, nil
	}
	var value uint64
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, fmt.Errorf("params: decode %s: %w", key, err)
	}
	return value, nil
}

// SetFeeRate sets the platform fee as a whole percentage, capped at the
// ledger maximum.
func (s *Store) SetFeeRate(caller [20]byte, percent uint64) error {
	if percent > escrow.MaxFeeRatePercent {
		return ErrInvalidValue
	}
	return s.setUint(caller, KeyFeeRate, percent)
}

// FeeRate returns the configured fee percentage.
func (s *Store) FeeRate() (uint64, error) {
	return s.getUint(KeyFeeRate, DefaultFeeRate)
}

// SetMaxEscrows bounds the escrow table.
func (s *Store) SetMaxEscrows(caller [20]byte, n uint64) error {
	if n == 0 {
		return ErrInvalidValue
	}
	return s.setUint(caller, KeyMaxEscrows, n)
}

// MaxEscrows returns the configured escrow capacity.
func (s *Store) MaxEscrows() (uint64, error) {
	return s.getUint(KeyMaxEscrows, DefaultMaxEscrows)
}

// SetMaxProposals bounds the proposal table.
func (s *Store) SetMaxProposals(caller [20]byte, n uint64) error {
	if n == 0 {
		return ErrInvalidValue
	}
	return s.setUint(caller, KeyMaxProposals, n)
}

// MaxProposals returns the configured proposal capacity.
func (s *Store) MaxProposals() (uint64, error) {
	return s.getUint(KeyMaxProposals, DefaultMaxProposals)
}

// SetMinReputation sets the eligibility floor for provider reputation.
func (s *Store) SetMinReputation(caller [20]byte, n uint64) error {
	if n == 0 {
		return ErrInvalidValue
	}
	return s.setUint(caller, KeyMinReputation, n)
}

// MinReputation returns the reputation floor.
func (s *Store) MinReputation() (uint64, error) {
	return s.getUint(KeyMinReputation, DefaultMinReputation)
}

// SetMinTagOverlap sets the eligibility floor for tag overlap.
func (s *Store) SetMinTagOverlap(caller [20]byte, n uint64) error {
	if n == 0 {
		return ErrInvalidValue
	}
	return s.setUint(caller, KeyMinTagOverlap, n)
}

// MinTagOverlap returns the tag overlap floor.
func (s *Store) MinTagOverlap() (uint64, error) {
	return s.getUint(KeyMinTagOverlap, DefaultMinTagOverlap)
}

// SetMaxProvidersPerMatch bounds the candidate set considered per match
// request.
func (s *Store) SetMaxProvidersPerMatch(caller [20]byte, n uint64) error {
	if n == 0 {
		return ErrInvalidValue
	}
	return s.setUint(caller, KeyMaxProvidersPerMatch, n)
}

// MaxProvidersPerMatch returns the candidate set bound.
func (s *Store) MaxProvidersPerMatch() (uint64, error) {
	return s.getUint(KeyMaxProvidersPerMatch, DefaultMaxProvidersPerMatch)
}

// SetProposalExpiryWindow sets the proposal validity window in seconds.
func (s *Store) SetProposalExpiryWindow(caller [20]byte, seconds int64) error {
	if seconds <= 0 {
		return ErrInvalidValue
	}
	return s.setUint(caller, KeyProposalExpiry, uint64(seconds))
}

// ProposalExpiryWindow returns the proposal validity window in seconds.
func (s *Store) ProposalExpiryWindow() (int64, error) {
	value, err := s.getUint(KeyProposalExpiry, uint64(DefaultProposalExpiry))
	if err != nil {
		return 0, err
	}
	return int64(value), nil
}
