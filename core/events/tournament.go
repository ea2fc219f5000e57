package events

import (
	"math/big"
	"strings"

	"turingarena/core/types"
)

const (
	// TypeTournamentStarted opens a competition window.
	TypeTournamentStarted = "tournament.started"
	// TypeTournamentEnded closes the window and names the prize winner.
	TypeTournamentEnded = "tournament.ended"
	// TypePrizePoolFunded records an explicit admin contribution to the pool.
	TypePrizePoolFunded = "tournament.pool.funded"
)

type TournamentStarted struct {
	StartedAt int64
	EndsAt    int64
}

func (TournamentStarted) EventType() string { return TypeTournamentStarted }

func (e TournamentStarted) Event() *types.Event {
	return &types.Event{
		Type: TypeTournamentStarted,
		Attributes: map[string]string{
			"startedAt": strconvInt(e.StartedAt),
			"endsAt":    strconvInt(e.EndsAt),
		},
	}
}

type TournamentEnded struct {
	EndedAt     int64
	Winner      [20]byte
	PrizeNative *big.Int
}

func (TournamentEnded) EventType() string { return TypeTournamentEnded }

func (e TournamentEnded) Event() *types.Event {
	return &types.Event{
		Type: TypeTournamentEnded,
		Attributes: map[string]string{
			"endedAt":     strconvInt(e.EndedAt),
			"winner":      renderAccount(e.Winner),
			"prizeNative": renderAmount(e.PrizeNative),
		},
	}
}

type PrizePoolFunded struct {
	Funder [20]byte
	Token  string
	Amount *big.Int
}

func (PrizePoolFunded) EventType() string { return TypePrizePoolFunded }

func (e PrizePoolFunded) Event() *types.Event {
	return &types.Event{
		Type: TypePrizePoolFunded,
		Attributes: map[string]string{
			"funder": renderAccount(e.Funder),
			"token":  strings.TrimSpace(e.Token),
			"amount": renderAmount(e.Amount),
		},
	}
}
