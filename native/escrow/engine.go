package escrow

import (
	"math/big"
	"time"

	"github.com/google/uuid"

	"matchpay/core/events"
	"matchpay/core/types"
)

type engineState interface {
	EscrowPut(*Escrow) error
	EscrowGet(id uint64) (*Escrow, bool)
	EscrowByRequest(requestID uint64) (*Escrow, bool)
	EscrowCount() uint64
	EscrowNextID() (uint64, error)
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
	VaultAddress(currency string) ([20]byte, error)
}

// Params exposes the ledger's governed configuration. The authority address
// doubles as the fee recipient and the only identity allowed to resolve
// disputes.
type Params interface {
	FeeRate() (uint64, error)
	MaxEscrows() (uint64, error)
	Authority() ([20]byte, bool, error)
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine owns escrow custody: deposits, settlement to either side, and the
// dispute lifecycle. Every public operation validates its preconditions
// before the first write, so a failed call leaves no partial effect.
type Engine struct {
	state   engineState
	params  Params
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates an escrow engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
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

// SetNowFunc overrides the time source used by the engine. Primarily
// intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
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
	e.emitter.Emit(escrowEvent{evt: event})
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
	return nil
}

func (e *Engine) loadEscrow(id uint64) (*Escrow, error) {
	esc, ok := e.state.EscrowGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	return esc, nil
}

func (e *Engine) authority() ([20]byte, error) {
	addr, ok, err := e.params.Authority()
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, ErrAuthorityUnset
	}
	return addr, nil
}

// Deposit escrows amount plus the platform fee for requestID, charging the
// depositor and crediting the module vault. A request can hold at most one
// escrow for its lifetime.
func (e *Engine) Deposit(requestID uint64, depositor, provider [20]byte, amount *big.Int, currency string) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	normalized, err := NormalizeCurrency(currency)
	if err != nil {
		return 0, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	maxEscrows, err := e.params.MaxEscrows()
	if err != nil {
		return 0, err
	}
	if e.state.EscrowCount() >= maxEscrows {
		return 0, ErrCapacityExceeded
	}
	if _, exists := e.state.EscrowByRequest(requestID); exists {
		return 0, ErrDuplicateRequest
	}
	feeRate, err := e.params.FeeRate()
	if err != nil {
		return 0, err
	}
	fee := Fee(amount, feeRate)
	vault, err := e.state.VaultAddress(normalized)
	if err != nil {
		return 0, err
	}
	sheet := newBalanceSheet(e.state)
	total := new(big.Int).Add(amount, fee)
	if err := sheet.move(depositor, vault, normalized, total); err != nil {
		return 0, err
	}
	id, err := e.state.EscrowNextID()
	if err != nil {
		return 0, err
	}
	esc := &Escrow{
		ID:        id,
		RequestID: requestID,
		Depositor: depositor,
		Provider:  provider,
		Amount:    new(big.Int).Set(amount),
		Currency:  normalized,
		FeePaid:   fee,
		Status:    StatusActive,
		CreatedAt: e.now(),
	}
	if err := sheet.commit(); err != nil {
		return 0, err
	}
	if err := e.state.EscrowPut(esc); err != nil {
		return 0, err
	}
	e.emit(NewDepositedEvent(esc))
	return id, nil
}

// Release settles an active escrow in favour of the provider: the provider
// receives the principal minus the fee and the authority receives the fee.
// Only the provider may release.
func (e *Engine) Release(id uint64, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if esc.Status != StatusActive {
		return ErrInvalidStatus
	}
	if caller != esc.Provider {
		return ErrNotAuthorized
	}
	if err := e.settleRelease(esc); err != nil {
		return err
	}
	esc.Status = StatusReleased
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	e.emit(NewReleasedEvent(esc))
	return nil
}

// Refund returns the principal plus the fee to the depositor. Only the
// depositor may refund, and only while the escrow is active.
func (e *Engine) Refund(id uint64, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if esc.Status != StatusActive {
		return ErrInvalidStatus
	}
	if caller != esc.Depositor {
		return ErrNotAuthorized
	}
	if err := e.settleRefund(esc); err != nil {
		return err
	}
	esc.Status = StatusRefunded
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	e.emit(NewRefundedEvent(esc))
	return nil
}

// InitiateDispute flags an active escrow as disputed and attaches a dispute
// identifier. No caller identity is enforced: either party, or anyone
// acting for them, may freeze settlement pending resolution.
func (e *Engine) InitiateDispute(id uint64) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return "", err
	}
	if esc.Status != StatusActive {
		return "", ErrInvalidStatus
	}
	if esc.DisputeID != "" {
		return "", ErrDisputeInProgress
	}
	esc.DisputeID = uuid.NewString()
	esc.Status = StatusDisputed
	if err := e.state.EscrowPut(esc); err != nil {
		return "", err
	}
	e.emit(NewDisputedEvent(esc))
	return esc.DisputeID, nil
}

// ResolveDispute settles a disputed escrow according to the authority's
// ruling: toProvider pays out as a release, otherwise the depositor is
// made whole as a refund. A failed settlement leaves the escrow disputed
// and surfaces the inner failure unchanged.
func (e *Engine) ResolveDispute(id uint64, toProvider bool, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if esc.Status != StatusDisputed {
		return ErrInvalidStatus
	}
	authority, err := e.authority()
	if err != nil {
		return err
	}
	if caller != authority {
		return ErrNotAuthorized
	}
	if toProvider {
		err = e.settleRelease(esc)
	} else {
		err = e.settleRefund(esc)
	}
	if err != nil {
		return err
	}
	esc.Status = StatusResolved
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	e.emit(NewResolvedEvent(esc, toProvider))
	return nil
}

// settleRelease moves amount-fee to the provider and the fee to the
// authority. Both legs are staged and committed together.
func (e *Engine) settleRelease(esc *Escrow) error {
	authority, err := e.authority()
	if err != nil {
		return err
	}
	vault, err := e.state.VaultAddress(esc.Currency)
	if err != nil {
		return err
	}
	payout := new(big.Int).Sub(esc.Amount, esc.FeePaid)
	sheet := newBalanceSheet(e.state)
	if err := sheet.move(vault, esc.Provider, esc.Currency, payout); err != nil {
		return err
	}
	if err := sheet.move(vault, authority, esc.Currency, esc.FeePaid); err != nil {
		return err
	}
	return sheet.commit()
}

// settleRefund returns amount+fee to the depositor; the platform retains
// nothing on a refund.
func (e *Engine) settleRefund(esc *Escrow) error {
	vault, err := e.state.VaultAddress(esc.Currency)
	if err != nil {
		return err
	}
	total := new(big.Int).Add(esc.Amount, esc.FeePaid)
	sheet := newBalanceSheet(e.state)
	if err := sheet.move(vault, esc.Depositor, esc.Currency, total); err != nil {
		return err
	}
	return sheet.commit()
}

// Get returns a copy of the escrow with the given identifier.
func (e *Engine) Get(id uint64) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadEscrow(id)
}

// GetByRequest returns the escrow attached to the request, if any.
func (e *Engine) GetByRequest(requestID uint64) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	esc, ok := e.state.EscrowByRequest(requestID)
	if !ok {
		return nil, ErrNotFound
	}
	return esc, nil
}

// Count reports the number of escrows the ledger has created.
func (e *Engine) Count() uint64 {
	if e == nil || e.state == nil {
		return 0
	}
	return e.state.EscrowCount()
}
