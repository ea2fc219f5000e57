package events

import (
	"encoding/hex"
	"math/big"
	"strings"

	"turingarena/core/types"
	"turingarena/crypto"
)

const (
	// TypeSettlementDeposited is emitted for every accepted deposit.
	TypeSettlementDeposited = "settlement.deposited"
	// TypeSettlementWithdrawn is emitted for every authorized withdrawal.
	TypeSettlementWithdrawn = "settlement.withdrawn"
	// TypeBalanceUpdated mirrors every ledger mutation for off-chain caches.
	TypeBalanceUpdated = "settlement.balance.updated"
	// TypeNonceUsed records each consumed authorization nonce.
	TypeNonceUsed = "settlement.nonce.used"
	// TypeGameResultUpdated is emitted when a signed match outcome settles.
	TypeGameResultUpdated = "settlement.game.result"
	// TypeFeeAccrued records the house-fee portion of a settled match.
	TypeFeeAccrued = "settlement.fee.accrued"
)

func renderAccount(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return crypto.NewAddress(crypto.ArenaPrefix, addr[:]).String()
}

func renderAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type SettlementDeposited struct {
	Account    [20]byte
	Token      string
	Amount     *big.Int
	NewBalance *big.Int
}

func (SettlementDeposited) EventType() string { return TypeSettlementDeposited }

func (e SettlementDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeSettlementDeposited,
		Attributes: map[string]string{
			"account":    renderAccount(e.Account),
			"token":      strings.TrimSpace(e.Token),
			"amount":     renderAmount(e.Amount),
			"newBalance": renderAmount(e.NewBalance),
		},
	}
}

type SettlementWithdrawn struct {
	Account      [20]byte
	Token        string
	Amount       *big.Int
	NewBalance   *big.Int
	ActivityHash [32]byte
}

func (SettlementWithdrawn) EventType() string { return TypeSettlementWithdrawn }

func (e SettlementWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeSettlementWithdrawn,
		Attributes: map[string]string{
			"account":      renderAccount(e.Account),
			"token":        strings.TrimSpace(e.Token),
			"amount":       renderAmount(e.Amount),
			"newBalance":   renderAmount(e.NewBalance),
			"activityHash": hex.EncodeToString(e.ActivityHash[:]),
		},
	}
}

type BalanceUpdated struct {
	Account    [20]byte
	Token      string
	NewBalance *big.Int
}

func (BalanceUpdated) EventType() string { return TypeBalanceUpdated }

func (e BalanceUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeBalanceUpdated,
		Attributes: map[string]string{
			"account":    renderAccount(e.Account),
			"token":      strings.TrimSpace(e.Token),
			"newBalance": renderAmount(e.NewBalance),
		},
	}
}

type NonceUsed struct {
	Account [20]byte
	Nonce   uint64
}

func (NonceUsed) EventType() string { return TypeNonceUsed }

func (e NonceUsed) Event() *types.Event {
	return &types.Event{
		Type: TypeNonceUsed,
		Attributes: map[string]string{
			"account": renderAccount(e.Account),
			"nonce":   strconvUint(e.Nonce),
		},
	}
}

type GameResultUpdated struct {
	Account          [20]byte
	Token            string
	GameID           string
	Delta            *big.Int
	NewBalance       *big.Int
	VerificationHash [32]byte
}

func (GameResultUpdated) EventType() string { return TypeGameResultUpdated }

func (e GameResultUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeGameResultUpdated,
		Attributes: map[string]string{
			"account":          renderAccount(e.Account),
			"token":            strings.TrimSpace(e.Token),
			"gameId":           strings.TrimSpace(e.GameID),
			"delta":            renderAmount(e.Delta),
			"newBalance":       renderAmount(e.NewBalance),
			"verificationHash": hex.EncodeToString(e.VerificationHash[:]),
		},
	}
}

type FeeAccrued struct {
	Account [20]byte
	House   [20]byte
	Token   string
	GameID  string
	Fee     *big.Int
}

func (FeeAccrued) EventType() string { return TypeFeeAccrued }

func (e FeeAccrued) Event() *types.Event {
	return &types.Event{
		Type: TypeFeeAccrued,
		Attributes: map[string]string{
			"account": renderAccount(e.Account),
			"house":   renderAccount(e.House),
			"token":   strings.TrimSpace(e.Token),
			"gameId":  strings.TrimSpace(e.GameID),
			"fee":     renderAmount(e.Fee),
		},
	}
}
