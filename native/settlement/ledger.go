package settlement

import (
	"fmt"
	"math/big"
)

// Ledger operations mutate a staged State and return the resulting balance so
// the engine can record a balance-updated event. Balances never go negative:
// debit rejects before mutating anything.

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (s *State) balance(addr [20]byte, token TokenID) *big.Int {
	acc, ok := s.Accounts[addr]
	if !ok {
		return big.NewInt(0)
	}
	if token.IsNative() {
		return cloneBigInt(acc.BalanceNative)
	}
	bal, ok := acc.Tokens[token]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(bal)
}

func (s *State) credit(addr [20]byte, token TokenID, amount *big.Int) (*big.Int, error) {
	amt := cloneBigInt(amount)
	if amt.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative credit", ErrInvalidAmount)
	}
	acc := s.account(addr)
	var updated *big.Int
	if token.IsNative() {
		acc.BalanceNative = new(big.Int).Add(acc.BalanceNative, amt)
		updated = acc.BalanceNative
	} else {
		current, ok := acc.Tokens[token]
		if !ok {
			current = big.NewInt(0)
		}
		acc.Tokens[token] = new(big.Int).Add(current, amt)
		updated = acc.Tokens[token]
		s.registerToken(token)
	}
	return new(big.Int).Set(updated), nil
}

func (s *State) debit(addr [20]byte, token TokenID, amount *big.Int) (*big.Int, error) {
	amt := cloneBigInt(amount)
	if amt.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative debit", ErrInvalidAmount)
	}
	acc := s.account(addr)
	if token.IsNative() {
		if acc.BalanceNative.Cmp(amt) < 0 {
			return nil, ErrInsufficientBalance
		}
		acc.BalanceNative = new(big.Int).Sub(acc.BalanceNative, amt)
		return new(big.Int).Set(acc.BalanceNative), nil
	}
	current, ok := acc.Tokens[token]
	if !ok || current.Cmp(amt) < 0 {
		return nil, ErrInsufficientBalance
	}
	acc.Tokens[token] = new(big.Int).Sub(current, amt)
	return new(big.Int).Set(acc.Tokens[token]), nil
}

func (s *State) setAbsolute(addr [20]byte, token TokenID, newBalance *big.Int) (*big.Int, error) {
	bal := cloneBigInt(newBalance)
	if bal.Sign() < 0 {
		return nil, fmt.Errorf("%w: balance must not be negative", ErrInvalidAmount)
	}
	acc := s.account(addr)
	if token.IsNative() {
		acc.BalanceNative = bal
	} else {
		acc.Tokens[token] = bal
		s.registerToken(token)
	}
	return new(big.Int).Set(bal), nil
}
