package settlement

import (
	"errors"
	"math/big"
)

var errVaultFunds = errors.New("vault: insufficient funds")

// MemoryVault models the external funds boundary in-process: per-account
// balances outside custody plus the custody holdings themselves. The daemon
// runs on it directly; tests use it to observe transfer effects and to
// simulate non-standard token behaviour such as fee-on-transfer.
type MemoryVault struct {
	externalNative map[[20]byte]*big.Int
	custodyNative  *big.Int

	externalTokens map[TokenID]map[[20]byte]*big.Int
	custodyTokens  map[TokenID]*big.Int

	// transferFeeBps simulates fee-on-transfer tokens: the custody receives
	// the pulled amount minus the fee.
	transferFeeBps map[TokenID]uint64
	// failTransfers forces every outbound transfer to fail, for rollback tests.
	failTransfers bool
}

// NewMemoryVault returns an empty vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		externalNative: make(map[[20]byte]*big.Int),
		custodyNative:  big.NewInt(0),
		externalTokens: make(map[TokenID]map[[20]byte]*big.Int),
		custodyTokens:  make(map[TokenID]*big.Int),
		transferFeeBps: make(map[TokenID]uint64),
	}
}

// MintNative grants an account external native funds.
func (v *MemoryVault) MintNative(account [20]byte, amount *big.Int) {
	current, ok := v.externalNative[account]
	if !ok {
		current = big.NewInt(0)
	}
	v.externalNative[account] = new(big.Int).Add(current, amount)
}

// MintToken grants an account external token funds.
func (v *MemoryVault) MintToken(token TokenID, account [20]byte, amount *big.Int) {
	holders, ok := v.externalTokens[token]
	if !ok {
		holders = make(map[[20]byte]*big.Int)
		v.externalTokens[token] = holders
	}
	current, ok := holders[account]
	if !ok {
		current = big.NewInt(0)
	}
	holders[account] = new(big.Int).Add(current, amount)
}

// SetTokenFeeBps configures a fee-on-transfer rate for the token.
func (v *MemoryVault) SetTokenFeeBps(token TokenID, bps uint64) {
	v.transferFeeBps[token] = bps
}

// FailTransfers toggles forced failure of outbound transfers.
func (v *MemoryVault) FailTransfers(fail bool) { v.failTransfers = fail }

// ReceiveNative moves attached native value from the caller into custody. The
// host calls this before crediting a native deposit.
func (v *MemoryVault) ReceiveNative(from [20]byte, amount *big.Int) error {
	current, ok := v.externalNative[from]
	if !ok || current.Cmp(amount) < 0 {
		return errVaultFunds
	}
	v.externalNative[from] = new(big.Int).Sub(current, amount)
	v.custodyNative = new(big.Int).Add(v.custodyNative, amount)
	return nil
}

// NativeTransfer pays custodied native currency out to an external account.
func (v *MemoryVault) NativeTransfer(to [20]byte, amount *big.Int) error {
	if v.failTransfers {
		return errors.New("vault: transfer rejected")
	}
	if v.custodyNative.Cmp(amount) < 0 {
		return errVaultFunds
	}
	v.custodyNative = new(big.Int).Sub(v.custodyNative, amount)
	current, ok := v.externalNative[to]
	if !ok {
		current = big.NewInt(0)
	}
	v.externalNative[to] = new(big.Int).Add(current, amount)
	return nil
}

// NativeBalance reports custody's native holdings.
func (v *MemoryVault) NativeBalance() (*big.Int, error) {
	return new(big.Int).Set(v.custodyNative), nil
}

// TokenPull moves tokens from an external holder into custody, applying any
// configured fee-on-transfer.
func (v *MemoryVault) TokenPull(token TokenID, from [20]byte, amount *big.Int) error {
	holders, ok := v.externalTokens[token]
	if !ok {
		return errVaultFunds
	}
	current, ok := holders[from]
	if !ok || current.Cmp(amount) < 0 {
		return errVaultFunds
	}
	holders[from] = new(big.Int).Sub(current, amount)
	received := new(big.Int).Set(amount)
	if bps := v.transferFeeBps[token]; bps > 0 {
		fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
		fee.Div(fee, big.NewInt(10000))
		received.Sub(received, fee)
	}
	custody, ok := v.custodyTokens[token]
	if !ok {
		custody = big.NewInt(0)
	}
	v.custodyTokens[token] = new(big.Int).Add(custody, received)
	return nil
}

// TokenTransfer pays custodied tokens out to an external account.
func (v *MemoryVault) TokenTransfer(token TokenID, to [20]byte, amount *big.Int) error {
	if v.failTransfers {
		return errors.New("vault: transfer rejected")
	}
	custody, ok := v.custodyTokens[token]
	if !ok || custody.Cmp(amount) < 0 {
		return errVaultFunds
	}
	v.custodyTokens[token] = new(big.Int).Sub(custody, amount)
	holders, ok := v.externalTokens[token]
	if !ok {
		holders = make(map[[20]byte]*big.Int)
		v.externalTokens[token] = holders
	}
	current, ok := holders[to]
	if !ok {
		current = big.NewInt(0)
	}
	holders[to] = new(big.Int).Add(current, amount)
	return nil
}

// TokenBalance reports custody's holdings of the token.
func (v *MemoryVault) TokenBalance(token TokenID) (*big.Int, error) {
	custody, ok := v.custodyTokens[token]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(custody), nil
}

// ExternalNative reports an account's native funds outside custody.
func (v *MemoryVault) ExternalNative(account [20]byte) *big.Int {
	current, ok := v.externalNative[account]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(current)
}

// ExternalToken reports an account's token funds outside custody.
func (v *MemoryVault) ExternalToken(token TokenID, account [20]byte) *big.Int {
	holders, ok := v.externalTokens[token]
	if !ok {
		return big.NewInt(0)
	}
	current, ok := holders[account]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(current)
}
