package settlement

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// TokenID identifies a custodied asset: the zero value is the native currency
// sentinel, any other value is the 20-byte address of a fungible token contract.
type TokenID [20]byte

// NativeToken is the ledger key used for native-currency balances.
var NativeToken = TokenID{}

// IsNative reports whether the identifier is the native-currency sentinel.
func (t TokenID) IsNative() bool { return t == NativeToken }

func (t TokenID) String() string {
	if t.IsNative() {
		return "NATIVE"
	}
	return "0x" + hex.EncodeToString(t[:])
}

// ParseTokenID decodes the string form produced by String.
func ParseTokenID(s string) (TokenID, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || strings.EqualFold(trimmed, "NATIVE") {
		return NativeToken, nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(trimmed), "0x"))
	if err != nil {
		return TokenID{}, fmt.Errorf("settlement: invalid token %q: %w", s, err)
	}
	if len(raw) != 20 {
		return TokenID{}, fmt.Errorf("settlement: invalid token %q: expected 20 bytes", s)
	}
	var id TokenID
	copy(id[:], raw)
	return id, nil
}

// NoncePolicy selects the replay-protection scheme applied to authorization nonces.
type NoncePolicy uint8

const (
	// NonceSequential requires every nonce to be strictly greater than the
	// account's last consumed nonce.
	NonceSequential NoncePolicy = iota
	// NonceSet accepts arbitrary nonce values, each usable at most once.
	NonceSet
)

// ResultMode selects how game-result payloads assert the account's new balance.
type ResultMode uint8

const (
	// ResultDelta validates the asserted balance against the recorded balance
	// plus the signed delta minus any fee.
	ResultDelta ResultMode = iota
	// ResultAbsolute takes the asserted balance as-is once the signature checks out.
	ResultAbsolute
)

// PrizeSource selects what funds a tournament sweep on finalization.
type PrizeSource uint8

const (
	// PrizeContractBalance sweeps the entire custody balance, native plus every
	// registered token.
	PrizeContractBalance PrizeSource = iota
	// PrizeFundedPool sweeps only the explicitly funded prize pool.
	PrizeFundedPool
)

// Scoring selects the tournament ranking formula.
type Scoring uint8

const (
	// ScoreCumulative ranks participants by their accumulated signed score.
	ScoreCumulative Scoring = iota
	// ScoreWinsSquared ranks by wins squared divided by games played, rewarding
	// both volume and win rate. Zero games played scores zero.
	ScoreWinsSquared
)

// Params carries the deployment-time configuration of the settlement engine.
// These are fixed for the lifetime of an engine instance; mutable authority
// state (owner, authority key, pause flag) lives in State.
type Params struct {
	// ChainID is embedded in every signed authorization to prevent cross-chain replay.
	ChainID uint64
	// Contract is the engine's own address, embedded in signed authorizations to
	// prevent cross-instance replay.
	Contract [20]byte
	// House receives the fee portion of game-result settlements.
	House [20]byte

	NoncePolicy NoncePolicy
	ResultMode  ResultMode
	PrizeSource PrizeSource
	Scoring     Scoring

	// RequireDepositApproval demands a server co-signature on native deposits,
	// capping off-chain exposure to pre-approved amounts.
	RequireDepositApproval bool
}
