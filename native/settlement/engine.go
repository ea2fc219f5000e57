package settlement

import (
	"fmt"
	"math/big"
	"time"

	"turingarena/core/events"
)

// FundsVault is the engine's boundary for external value movement: the native
// currency custody and every fungible-token contract. Implementations may call
// arbitrary external code, so the engine treats every vault call as hostile
// with respect to reentrancy and commits ledger state before paying out.
type FundsVault interface {
	// NativeTransfer pays out custodied native currency.
	NativeTransfer(to [20]byte, amount *big.Int) error
	// NativeBalance reports the custody's native holdings.
	NativeBalance() (*big.Int, error)
	// TokenPull moves tokens from the depositor into custody.
	TokenPull(token TokenID, from [20]byte, amount *big.Int) error
	// TokenTransfer pays out custodied tokens.
	TokenTransfer(token TokenID, to [20]byte, amount *big.Int) error
	// TokenBalance reports the custody's holdings of the given token.
	TokenBalance(token TokenID) (*big.Int, error)
}

// Store persists committed settlement state. Nil disables persistence.
type Store interface {
	SaveState(*State) error
	LoadState() (*State, bool, error)
}

// SignedDeposit bundles a deposit pre-approval with the authority signature,
// consulted only under RequireDepositApproval.
type SignedDeposit struct {
	Authorization DepositAuthorization
	Signature     []byte
}

// Engine is the settlement state machine. Calls are expected to be serialized
// by the host (the RPC layer does so); the engine adds no locking of its own.
// Every state-changing entry point stages its mutations on a clone of the
// current state and swaps it in only when the full transition succeeds, so a
// failed signature, nonce, consistency check or transfer leaves no trace.
type Engine struct {
	params  Params
	state   *State
	store   Store
	vault   FundsVault
	emitter events.Emitter
	nowFn   func() int64
	entered bool
}

// NewEngine constructs an engine over the given initial state with a no-op
// emitter. Callers wire the vault, store and emitter via the setters.
func NewEngine(params Params, state *State) *Engine {
	if state == nil {
		state = NewState([20]byte{}, [20]byte{})
	}
	return &Engine{
		params:  params,
		state:   state,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetVault configures the external funds boundary.
func (e *Engine) SetVault(vault FundsVault) { e.vault = vault }

// SetStore configures state persistence. Committed transitions are saved after
// their external transfers succeed.
func (e *Engine) SetStore(store Store) { e.store = store }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Params returns the engine's deployment configuration.
func (e *Engine) Params() Params { return e.params }

func (e *Engine) now() int64 { return e.nowFn() }

// begin marks the engine as mid-transition. Any nested call from a vault
// callback into a state-changing entry point fails instead of observing or
// mutating half-committed state.
func (e *Engine) begin() error {
	if e.entered {
		return ErrReentrantCall
	}
	e.entered = true
	return nil
}

func (e *Engine) end() { e.entered = false }

// commit swaps in the staged state, runs the outbound transfer if any, and
// emits the staged events. A failed transfer restores the previous state in
// full, nonce consumption included.
func (e *Engine) commit(st *State, staged []events.Event, transfer func() error) error {
	prev := e.state
	e.state = st
	if transfer != nil {
		if err := transfer(); err != nil {
			e.state = prev
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}
	if e.store != nil {
		if err := e.store.SaveState(st); err != nil {
			// Funds may already have moved; the in-memory state stays
			// committed and the persistence error surfaces to the host.
			return fmt.Errorf("settlement: persist state: %w", err)
		}
	}
	for _, ev := range staged {
		e.emitter.Emit(ev)
	}
	return nil
}

func (e *Engine) guardCaller(st *State, caller [20]byte) error {
	if st.Paused {
		return ErrPaused
	}
	if st.Banned[caller] {
		return ErrBanned
	}
	return nil
}

// DepositNative credits attached native value to the caller's ledger entry.
// Under RequireDepositApproval the deposit must carry a server co-signature
// binding the exact amount and a fresh nonce.
func (e *Engine) DepositNative(caller [20]byte, amount *big.Int, approval *SignedDeposit) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return ErrInvalidAmount
	}
	st := e.state.Clone()
	if err := e.guardCaller(st, caller); err != nil {
		return err
	}
	staged := make([]events.Event, 0, 3)
	if e.params.RequireDepositApproval {
		if approval == nil {
			return ErrInvalidSignature
		}
		auth := approval.Authorization
		if auth.ExpectedAmount == nil || auth.ExpectedAmount.Cmp(amt) != 0 {
			return ErrAmountMismatch
		}
		if err := e.consumeNonce(st, caller, auth.Nonce); err != nil {
			return err
		}
		digest := auth.Digest(e.params.ChainID, caller, e.params.Contract)
		if err := verifyAuthority(st, digest, approval.Signature); err != nil {
			return err
		}
		staged = append(staged, events.NonceUsed{Account: caller, Nonce: auth.Nonce})
	}
	updated, err := st.credit(caller, NativeToken, amt)
	if err != nil {
		return err
	}
	staged = append(staged,
		events.SettlementDeposited{Account: caller, Token: NativeToken.String(), Amount: amt, NewBalance: updated},
		events.BalanceUpdated{Account: caller, Token: NativeToken.String(), NewBalance: updated},
	)
	return e.commit(st, staged, nil)
}

// DepositToken pulls tokens from the caller into custody and credits the
// observed balance delta, defending against fee-on-transfer and short
// transfers by never trusting the caller-supplied amount.
func (e *Engine) DepositToken(caller [20]byte, token TokenID, amount *big.Int) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	if token.IsNative() {
		return ErrInvalidToken
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return ErrInvalidAmount
	}
	st := e.state.Clone()
	if err := e.guardCaller(st, caller); err != nil {
		return err
	}
	if e.vault == nil {
		return ErrTransferFailed
	}
	before, err := e.vault.TokenBalance(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.vault.TokenPull(token, caller, amt); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	after, err := e.vault.TokenBalance(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	received := new(big.Int).Sub(after, before)
	if received.Sign() <= 0 {
		return ErrTransferFailed
	}
	updated, err := st.credit(caller, token, received)
	if err != nil {
		return err
	}
	staged := []events.Event{
		events.SettlementDeposited{Account: caller, Token: token.String(), Amount: received, NewBalance: updated},
		events.BalanceUpdated{Account: caller, Token: token.String(), NewBalance: updated},
	}
	return e.commit(st, staged, nil)
}

// Withdraw pays out custodied funds against a server-issued authorization.
// Guard order: access flags, the optimistic-concurrency balance check, payload
// arithmetic, nonce, signature. The ledger commits before the outbound
// transfer, and a failed transfer rolls the whole transition back.
func (e *Engine) Withdraw(caller [20]byte, auth *WithdrawalAuthorization, sig []byte) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	if auth == nil {
		return ErrInvalidSignature
	}
	amt := cloneBigInt(auth.Amount)
	if amt.Sign() <= 0 {
		return ErrInvalidAmount
	}
	st := e.state.Clone()
	if err := e.guardCaller(st, caller); err != nil {
		return err
	}
	recorded := st.balance(caller, auth.Token)
	if auth.CurrentBalance == nil || recorded.Cmp(auth.CurrentBalance) != 0 {
		return ErrBalanceChanged
	}
	if recorded.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	expected := new(big.Int).Sub(recorded, amt)
	if auth.NewBalance == nil || expected.Cmp(auth.NewBalance) != 0 {
		return ErrAmountMismatch
	}
	if err := e.consumeNonce(st, caller, auth.Nonce); err != nil {
		return err
	}
	digest := auth.Digest(e.params.ChainID, caller, e.params.Contract)
	if err := verifyAuthority(st, digest, sig); err != nil {
		return err
	}
	updated, err := st.debit(caller, auth.Token, amt)
	if err != nil {
		return err
	}
	staged := []events.Event{
		events.NonceUsed{Account: caller, Nonce: auth.Nonce},
		events.SettlementWithdrawn{Account: caller, Token: auth.Token.String(), Amount: amt, NewBalance: updated, ActivityHash: auth.ActivityHash},
		events.BalanceUpdated{Account: caller, Token: auth.Token.String(), NewBalance: updated},
	}
	if e.vault == nil {
		return ErrTransferFailed
	}
	token := auth.Token
	return e.commit(st, staged, func() error {
		if token.IsNative() {
			return e.vault.NativeTransfer(caller, amt)
		}
		return e.vault.TokenTransfer(token, caller, amt)
	})
}

// Balance returns the recorded ledger balance for (account, token).
func (e *Engine) Balance(account [20]byte, token TokenID) *big.Int {
	return e.state.balance(account, token)
}

// ContractBalance reports the custody's actual holdings of the given token,
// read through the vault. It can drift from the ledger sum only after an
// emergency withdrawal.
func (e *Engine) ContractBalance(token TokenID) (*big.Int, error) {
	if e.vault == nil {
		return big.NewInt(0), nil
	}
	if token.IsNative() {
		return e.vault.NativeBalance()
	}
	return e.vault.TokenBalance(token)
}

// IsBanned reports the account's ban flag.
func (e *Engine) IsBanned(account [20]byte) bool { return e.state.Banned[account] }

// IsPaused reports the process-wide pause flag.
func (e *Engine) IsPaused() bool { return e.state.Paused }

// AuthorityKey returns the address all authorizations must recover to.
func (e *Engine) AuthorityKey() [20]byte { return e.state.Authority }

// Owner returns the admin capability holder.
func (e *Engine) Owner() [20]byte { return e.state.Owner }

// RegisteredTokens returns the append-only token registry in first-seen order.
func (e *Engine) RegisteredTokens() []TokenID {
	return append([]TokenID{}, e.state.TokenRegistry...)
}
