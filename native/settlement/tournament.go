package settlement

import (
	"math/big"
	"time"

	"turingarena/core/events"
)

// StartTournament opens a competition window of the given duration. Owner-only.
// Any standing from a previous tournament is wiped: the participant registry is
// cleared and every counter starts from zero.
func (e *Engine) StartTournament(caller [20]byte, duration time.Duration) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	st := e.state.Clone()
	if err := requireOwner(st, caller); err != nil {
		return err
	}
	if st.Tournament.Active {
		return ErrTournamentActive
	}
	if duration <= 0 {
		return ErrInvalidDuration
	}
	now := e.now()
	st.Tournament = Tournament{
		Active:    true,
		StartedAt: now,
		EndsAt:    now + int64(duration/time.Second),
		Perf:      make(map[[20]byte]*Performance),
	}
	staged := []events.Event{
		events.TournamentStarted{StartedAt: now, EndsAt: st.Tournament.EndsAt},
	}
	return e.commit(st, staged, nil)
}

// FundPrizePool adds funds to the separately-funded prize pool. Owner-only.
// Native contributions are assumed to arrive as attached value; token
// contributions are pulled into custody and the observed delta is recorded.
func (e *Engine) FundPrizePool(caller [20]byte, token TokenID, amount *big.Int) error {
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
	recorded := amt
	if !token.IsNative() {
		if e.vault == nil {
			return ErrTransferFailed
		}
		before, err := e.vault.TokenBalance(token)
		if err != nil {
			return ErrTransferFailed
		}
		if err := e.vault.TokenPull(token, caller, amt); err != nil {
			return ErrTransferFailed
		}
		after, err := e.vault.TokenBalance(token)
		if err != nil {
			return ErrTransferFailed
		}
		recorded = new(big.Int).Sub(after, before)
		if recorded.Sign() <= 0 {
			return ErrTransferFailed
		}
		st.registerToken(token)
	}
	current, ok := st.PrizePool[token]
	if !ok {
		current = big.NewInt(0)
	}
	st.PrizePool[token] = new(big.Int).Add(current, recorded)
	staged := []events.Event{
		events.PrizePoolFunded{Funder: caller, Token: token.String(), Amount: recorded},
	}
	return e.commit(st, staged, nil)
}

// FinalizeTournament closes the window and sweeps the prize source to the
// top-ranked participant. Permissionless, but callable only once per window:
// it fails if no tournament is active, if the end time has not elapsed, or if
// nobody participated. Ledger state commits before the transfers run, and a
// failed transfer rolls the finalization back so it can be retried.
func (e *Engine) FinalizeTournament() error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	st := e.state.Clone()
	if !st.Tournament.Active {
		return ErrTournamentNotActive
	}
	if e.now() < st.Tournament.EndsAt {
		return ErrTournamentRunning
	}
	if len(st.Tournament.Participants) == 0 {
		return ErrNoParticipants
	}
	winner := st.rankWinner(e.params.Scoring)
	st.Tournament.Active = false

	endedAt := e.now()
	var prizeNative *big.Int
	var transfer func() error
	switch e.params.PrizeSource {
	case PrizeFundedPool:
		pool := st.PrizePool
		st.PrizePool = make(map[TokenID]*big.Int)
		prizeNative = cloneBigInt(pool[NativeToken])
		transfer = func() error {
			return e.sweepPool(winner, pool)
		}
	default:
		balance, err := e.ContractBalance(NativeToken)
		if err != nil {
			return ErrTransferFailed
		}
		prizeNative = balance
		tokens := append([]TokenID{}, st.TokenRegistry...)
		transfer = func() error {
			return e.sweepCustody(winner, tokens)
		}
	}
	staged := []events.Event{
		events.TournamentEnded{EndedAt: endedAt, Winner: winner, PrizeNative: prizeNative},
	}
	return e.commit(st, staged, transfer)
}

// rankWinner returns the highest-ranked participant under the configured
// scoring formula. Ties resolve to the participant registered first.
func (s *State) rankWinner(scoring Scoring) [20]byte {
	winner := s.Tournament.Participants[0]
	switch scoring {
	case ScoreWinsSquared:
		best := new(big.Rat)
		for i, addr := range s.Tournament.Participants {
			score := winsSquaredScore(s.Tournament.Perf[addr])
			if i == 0 || score.Cmp(best) > 0 {
				winner = addr
				best = score
			}
		}
	default:
		best := new(big.Int)
		for i, addr := range s.Tournament.Participants {
			score := cumulativeScore(s.Tournament.Perf[addr])
			if i == 0 || score.Cmp(best) > 0 {
				winner = addr
				best = score
			}
		}
	}
	return winner
}

func cumulativeScore(perf *Performance) *big.Int {
	if perf == nil || perf.Score == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(perf.Score)
}

// winsSquaredScore computes wins²/gamesPlayed, rewarding both volume and win
// rate. Zero games played scores zero.
func winsSquaredScore(perf *Performance) *big.Rat {
	if perf == nil || perf.Games == 0 {
		return new(big.Rat)
	}
	wins := new(big.Int).SetUint64(perf.Wins)
	numerator := new(big.Int).Mul(wins, wins)
	return new(big.Rat).SetFrac(numerator, new(big.Int).SetUint64(perf.Games))
}

func (e *Engine) sweepPool(winner [20]byte, pool map[TokenID]*big.Int) error {
	if e.vault == nil {
		return ErrTransferFailed
	}
	if native, ok := pool[NativeToken]; ok && native.Sign() > 0 {
		if err := e.vault.NativeTransfer(winner, native); err != nil {
			return err
		}
	}
	for token, amount := range pool {
		if token.IsNative() || amount.Sign() == 0 {
			continue
		}
		if err := e.vault.TokenTransfer(token, winner, amount); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) sweepCustody(winner [20]byte, tokens []TokenID) error {
	if e.vault == nil {
		return ErrTransferFailed
	}
	native, err := e.vault.NativeBalance()
	if err != nil {
		return err
	}
	if native.Sign() > 0 {
		if err := e.vault.NativeTransfer(winner, native); err != nil {
			return err
		}
	}
	for _, token := range tokens {
		balance, err := e.vault.TokenBalance(token)
		if err != nil {
			return err
		}
		if balance.Sign() == 0 {
			continue
		}
		if err := e.vault.TokenTransfer(token, winner, balance); err != nil {
			return err
		}
	}
	return nil
}

// TournamentInfo is the read-only view of the current window.
type TournamentInfo struct {
	Active       bool
	StartedAt    int64
	EndsAt       int64
	Participants int
}

// TournamentState returns the current window's summary.
func (e *Engine) TournamentState() TournamentInfo {
	t := e.state.Tournament
	return TournamentInfo{
		Active:       t.Active,
		StartedAt:    t.StartedAt,
		EndsAt:       t.EndsAt,
		Participants: len(t.Participants),
	}
}
