package types

import "math/big"

// Account tracks the spendable balances for a marketplace participant in
// each supported settlement currency. Balances are never nil after passing
// through EnsureAccount.
type Account struct {
	Nonce       uint64   `json:"nonce"`
	BalancePAY  *big.Int `json:"balancePAY"`
	BalanceZPAY *big.Int `json:"balanceZPAY"`
}

// EnsureAccount normalises a possibly-nil account into a usable value with
// zeroed balances.
func EnsureAccount(acc *Account) *Account {
	if acc == nil {
		return &Account{BalancePAY: big.NewInt(0), BalanceZPAY: big.NewInt(0)}
	}
	if acc.BalancePAY == nil {
		acc.BalancePAY = big.NewInt(0)
	}
	if acc.BalanceZPAY == nil {
		acc.BalanceZPAY = big.NewInt(0)
	}
	return acc
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return EnsureAccount(nil)
	}
	clone := &Account{Nonce: a.Nonce, BalancePAY: big.NewInt(0), BalanceZPAY: big.NewInt(0)}
	if a.BalancePAY != nil {
		clone.BalancePAY = new(big.Int).Set(a.BalancePAY)
	}
	if a.BalanceZPAY != nil {
		clone.BalanceZPAY = new(big.Int).Set(a.BalanceZPAY)
	}
	return clone
}
