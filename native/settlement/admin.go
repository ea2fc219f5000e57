package settlement

import (
	"math/big"

	"turingarena/core/events"
)

// requireOwner is the single admin capability check, applied at the top of
// every admin entry point.
func requireOwner(st *State, caller [20]byte) error {
	if caller != st.Owner {
		return ErrNotOwner
	}
	return nil
}

// Ban flags an account so it can no longer deposit, withdraw or submit game
// results. Idempotent.
func (e *Engine) Ban(caller, account [20]byte) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	st := e.state.Clone()
	if err := requireOwner(st, caller); err != nil {
		return err
	}
	if st.Banned[account] {
		return nil
	}
	st.Banned[account] = true
	return e.commit(st, []events.Event{events.AccountBanned{Account: account}}, nil)
}

// Unban clears an account's ban flag. Idempotent.
func (e *Engine) Unban(caller, account [20]byte) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	st := e.state.Clone()
	if err := requireOwner(st, caller); err != nil {
		return err
	}
	if !st.Banned[account] {
		return nil
	}
	delete(st.Banned, account)
	return e.commit(st, []events.Event{events.AccountUnbanned{Account: account}}, nil)
}

// SetAuthorityKey rotates the address authorizations must recover to. All
// signatures issued under the previous key become invalid immediately.
func (e *Engine) SetAuthorityKey(caller, newKey [20]byte) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	st := e.state.Clone()
	if err := requireOwner(st, caller); err != nil {
		return err
	}
	if newKey == ([20]byte{}) {
		return ErrZeroAuthority
	}
	previous := st.Authority
	st.Authority = newKey
	return e.commit(st, []events.Event{events.AuthorityRotated{Previous: previous, Current: newKey}}, nil)
}

// Pause halts all non-admin, non-view entry points.
func (e *Engine) Pause(caller [20]byte) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	st := e.state.Clone()
	if err := requireOwner(st, caller); err != nil {
		return err
	}
	if st.Paused {
		return nil
	}
	st.Paused = true
	return e.commit(st, []events.Event{events.Paused{}}, nil)
}

// Unpause resumes normal operation.
func (e *Engine) Unpause(caller [20]byte) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	st := e.state.Clone()
	if err := requireOwner(st, caller); err != nil {
		return err
	}
	if !st.Paused {
		return nil
	}
	st.Paused = false
	return e.commit(st, []events.Event{events.Unpaused{}}, nil)
}

// EmergencyWithdraw sweeps custody funds to the owner unconditionally. This is
// an operational escape hatch, not part of normal settlement: it bypasses all
// per-account ledger accounting, so using it while player balances are live
// breaks the ledger/custody correspondence.
func (e *Engine) EmergencyWithdraw(caller [20]byte, token TokenID, amount *big.Int) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	st := e.state.Clone()
	if err := requireOwner(st, caller); err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if e.vault == nil {
		return ErrTransferFailed
	}
	owner := st.Owner
	staged := []events.Event{
		events.EmergencyWithdrawal{Owner: owner, Token: token.String(), Amount: amt},
	}
	return e.commit(st, staged, func() error {
		if token.IsNative() {
			return e.vault.NativeTransfer(owner, amt)
		}
		return e.vault.TokenTransfer(token, owner, amt)
	})
}
