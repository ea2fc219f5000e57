package events

import (
	"math/big"
	"strings"

	"turingarena/core/types"
)

const (
	// TypeAccountBanned and TypeAccountUnbanned track the per-account ban flag.
	TypeAccountBanned   = "settlement.account.banned"
	TypeAccountUnbanned = "settlement.account.unbanned"
	// TypeAuthorityRotated is emitted when the owner rotates the authority key.
	TypeAuthorityRotated = "settlement.authority.rotated"
	// TypePaused / TypeUnpaused track the process-wide pause flag.
	TypePaused   = "settlement.paused"
	TypeUnpaused = "settlement.unpaused"
	// TypeEmergencyWithdrawal records an owner-initiated escape-hatch sweep.
	TypeEmergencyWithdrawal = "settlement.emergency.withdrawal"
)

type AccountBanned struct {
	Account [20]byte
}

func (AccountBanned) EventType() string { return TypeAccountBanned }

func (e AccountBanned) Event() *types.Event {
	return &types.Event{
		Type:       TypeAccountBanned,
		Attributes: map[string]string{"account": renderAccount(e.Account)},
	}
}

type AccountUnbanned struct {
	Account [20]byte
}

func (AccountUnbanned) EventType() string { return TypeAccountUnbanned }

func (e AccountUnbanned) Event() *types.Event {
	return &types.Event{
		Type:       TypeAccountUnbanned,
		Attributes: map[string]string{"account": renderAccount(e.Account)},
	}
}

type AuthorityRotated struct {
	Previous [20]byte
	Current  [20]byte
}

func (AuthorityRotated) EventType() string { return TypeAuthorityRotated }

func (e AuthorityRotated) Event() *types.Event {
	return &types.Event{
		Type: TypeAuthorityRotated,
		Attributes: map[string]string{
			"previous": renderAccount(e.Previous),
			"current":  renderAccount(e.Current),
		},
	}
}

type Paused struct{}

func (Paused) EventType() string { return TypePaused }

func (Paused) Event() *types.Event {
	return &types.Event{Type: TypePaused, Attributes: map[string]string{}}
}

type Unpaused struct{}

func (Unpaused) EventType() string { return TypeUnpaused }

func (Unpaused) Event() *types.Event {
	return &types.Event{Type: TypeUnpaused, Attributes: map[string]string{}}
}

type EmergencyWithdrawal struct {
	Owner  [20]byte
	Token  string
	Amount *big.Int
}

func (EmergencyWithdrawal) EventType() string { return TypeEmergencyWithdrawal }

func (e EmergencyWithdrawal) Event() *types.Event {
	return &types.Event{
		Type: TypeEmergencyWithdrawal,
		Attributes: map[string]string{
			"owner":  renderAccount(e.Owner),
			"token":  strings.TrimSpace(e.Token),
			"amount": renderAmount(e.Amount),
		},
	}
}
