package escrow

import (
	"math/big"

	"matchpay/core/types"
)

// balanceSheet stages fund movements across a set of accounts so a
// settlement either commits every leg or none of them. Accounts are loaded
// once per address, mutated in memory, and written back together.
type balanceSheet struct {
	state    engineState
	accounts map[[20]byte]*types.Account
	order    [][20]byte
}

func newBalanceSheet(state engineState) *balanceSheet {
	return &balanceSheet{
		state:    state,
		accounts: make(map[[20]byte]*types.Account),
	}
}

func (b *balanceSheet) account(addr [20]byte) (*types.Account, error) {
	if acc, ok := b.accounts[addr]; ok {
		return acc, nil
	}
	acc, err := b.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	acc = types.EnsureAccount(acc)
	b.accounts[addr] = acc
	b.order = append(b.order, addr)
	return acc, nil
}

func balanceFor(acc *types.Account, currency string) *big.Int {
	if currency == CurrencyZPAY {
		return acc.BalanceZPAY
	}
	return acc.BalancePAY
}

func setBalance(acc *types.Account, currency string, v *big.Int) {
	if currency == CurrencyZPAY {
		acc.BalanceZPAY = v
		return
	}
	acc.BalancePAY = v
}

// move debits from and credits to in the staged accounts. Zero amounts are
// a no-op so fee-free settlements skip the treasury leg naturally.
func (b *balanceSheet) move(from, to [20]byte, currency string, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	normalized, err := NormalizeCurrency(currency)
	if err != nil {
		return err
	}
	fromAcc, err := b.account(from)
	if err != nil {
		return err
	}
	toAcc, err := b.account(to)
	if err != nil {
		return err
	}
	fromBal := balanceFor(fromAcc, normalized)
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	setBalance(fromAcc, normalized, new(big.Int).Sub(fromBal, amount))
	setBalance(toAcc, normalized, new(big.Int).Add(balanceFor(toAcc, normalized), amount))
	return nil
}

// commit writes every staged account back in load order.
func (b *balanceSheet) commit() error {
	for _, addr := range b.order {
		if err := b.state.PutAccount(addr, b.accounts[addr]); err != nil {
			return err
		}
	}
	return nil
}
