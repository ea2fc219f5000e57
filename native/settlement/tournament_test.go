package settlement

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
	"time"
)

func setClock(engine *Engine, unix int64) {
	engine.SetNowFunc(func() int64 { return unix })
}

// playMatch settles a signed delta for the account, registering it in any
// active tournament.
func playMatch(t *testing.T, engine *Engine, key *ecdsa.PrivateKey, account [20]byte, delta int64, nonce uint64) {
	t.Helper()
	current := engine.Balance(account, NativeToken)
	result := &GameResult{
		GameID:     "t-game",
		NewBalance: new(big.Int).Add(current, big.NewInt(delta)),
		Delta:      big.NewInt(delta),
		Fee:        big.NewInt(0),
	}
	if err := engine.SubmitGameResult(account, NativeToken, result, nonce, signResult(t, engine, key, account, NativeToken, result, nonce)); err != nil {
		t.Fatalf("play match for %x: %v", account, err)
	}
}

func TestStartTournamentGuards(t *testing.T) {
	engine, _, _ := newTestEngine(t, Params{})
	setClock(engine, 1000)
	if err := engine.StartTournament(player, time.Hour); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected owner check, got %v", err)
	}
	if err := engine.StartTournament(testOwner, 0); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected duration check, got %v", err)
	}
	if err := engine.StartTournament(testOwner, -time.Minute); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected duration check, got %v", err)
	}
	if err := engine.StartTournament(testOwner, time.Hour); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := engine.StartTournament(testOwner, time.Hour); !errors.Is(err, ErrTournamentActive) {
		t.Fatalf("expected active rejection, got %v", err)
	}
	info := engine.TournamentState()
	if !info.Active || info.StartedAt != 1000 || info.EndsAt != 1000+3600 {
		t.Fatalf("unexpected tournament state %+v", info)
	}
}

func TestFinalizeTournamentGuards(t *testing.T) {
	engine, vault, key := newTestEngine(t, Params{})
	setClock(engine, 1000)
	if err := engine.FinalizeTournament(); !errors.Is(err, ErrTournamentNotActive) {
		t.Fatalf("expected not active, got %v", err)
	}
	if err := engine.StartTournament(testOwner, time.Hour); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := engine.FinalizeTournament(); !errors.Is(err, ErrTournamentRunning) {
		t.Fatalf("expected still running, got %v", err)
	}
	setClock(engine, 1000+3600)
	if err := engine.FinalizeTournament(); !errors.Is(err, ErrNoParticipants) {
		t.Fatalf("expected no participants, got %v", err)
	}

	depositNative(t, engine, vault, player, 10)
	// The deposit happened outside a match, so the player is still not
	// registered; a settled match is what registers.
	setClock(engine, 1000)
	playMatch(t, engine, key, player, 5, 1)
	setClock(engine, 1000+3600)
	if err := engine.FinalizeTournament(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := engine.FinalizeTournament(); !errors.Is(err, ErrTournamentNotActive) {
		t.Fatalf("second finalize must fail, got %v", err)
	}
}

func TestTournamentCumulativeWinnerSweepsCustody(t *testing.T) {
	engine, vault, key := newTestEngine(t, Params{Scoring: ScoreCumulative})
	setClock(engine, 1000)
	depositNative(t, engine, vault, player, 100)
	depositNative(t, engine, vault, playerTwo, 100)
	if err := engine.StartTournament(testOwner, time.Hour); err != nil {
		t.Fatalf("start: %v", err)
	}
	playMatch(t, engine, key, player, 5, 1)
	playMatch(t, engine, key, playerTwo, 30, 1)
	playMatch(t, engine, key, player, -5, 2)

	setClock(engine, 1000+3600)
	if err := engine.FinalizeTournament(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	// playerTwo leads on cumulative score (+30 vs 0) and receives the entire
	// custody balance.
	if got := vault.ExternalNative(playerTwo); got.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("winner payout %s, want 200", got)
	}
	if got := vault.ExternalNative(player); got.Sign() != 0 {
		t.Fatalf("loser received payout %s", got)
	}
	custody, _ := engine.ContractBalance(NativeToken)
	if custody.Sign() != 0 {
		t.Fatalf("custody not swept: %s", custody)
	}
}

func TestTournamentWinsSquaredScoring(t *testing.T) {
	engine, vault, key := newTestEngine(t, Params{Scoring: ScoreWinsSquared})
	setClock(engine, 1000)
	depositNative(t, engine, vault, player, 100)
	depositNative(t, engine, vault, playerTwo, 100)
	if err := engine.StartTournament(testOwner, time.Hour); err != nil {
		t.Fatalf("start: %v", err)
	}
	// player: 2 wins in 2 games, score 4/2 = 2.
	playMatch(t, engine, key, player, 5, 1)
	playMatch(t, engine, key, player, 5, 2)
	// playerTwo: 2 wins in 3 games, score 4/3, despite a larger cumulative delta.
	playMatch(t, engine, key, playerTwo, 40, 1)
	playMatch(t, engine, key, playerTwo, 40, 2)
	playMatch(t, engine, key, playerTwo, -1, 3)

	setClock(engine, 1000+3600)
	if err := engine.FinalizeTournament(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if got := vault.ExternalNative(player); got.Sign() == 0 {
		t.Fatal("wins-squared leader received nothing")
	}
	if got := vault.ExternalNative(playerTwo); got.Sign() != 0 {
		t.Fatalf("cumulative leader must not win under wins-squared, got %s", got)
	}
}

func TestTournamentTieBreaksToFirstRegistered(t *testing.T) {
	engine, vault, key := newTestEngine(t, Params{Scoring: ScoreCumulative})
	setClock(engine, 1000)
	depositNative(t, engine, vault, player, 100)
	depositNative(t, engine, vault, playerTwo, 100)
	if err := engine.StartTournament(testOwner, time.Hour); err != nil {
		t.Fatalf("start: %v", err)
	}
	// playerTwo registers first; identical scores must resolve to it.
	playMatch(t, engine, key, playerTwo, 10, 1)
	playMatch(t, engine, key, player, 10, 1)

	setClock(engine, 1000+3600)
	if err := engine.FinalizeTournament(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if got := vault.ExternalNative(playerTwo); got.Sign() == 0 {
		t.Fatal("tie must resolve to the first registered participant")
	}
	if got := vault.ExternalNative(player); got.Sign() != 0 {
		t.Fatalf("second registrant must not win a tie, got %s", got)
	}
}

func TestTournamentFundedPoolSweep(t *testing.T) {
	engine, vault, key := newTestEngine(t, Params{PrizeSource: PrizeFundedPool})
	setClock(engine, 1000)
	depositNative(t, engine, vault, player, 100)

	// The owner funds the native pool with attached value.
	vault.MintNative(testOwner, big.NewInt(500))
	if err := vault.ReceiveNative(testOwner, big.NewInt(500)); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if err := engine.FundPrizePool(testOwner, NativeToken, big.NewInt(500)); err != nil {
		t.Fatalf("fund pool: %v", err)
	}
	if err := engine.FundPrizePool(player, NativeToken, big.NewInt(1)); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("non-owner funding must fail, got %v", err)
	}

	if err := engine.StartTournament(testOwner, time.Hour); err != nil {
		t.Fatalf("start: %v", err)
	}
	playMatch(t, engine, key, player, 5, 1)
	setClock(engine, 1000+3600)
	if err := engine.FinalizeTournament(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	// Only the funded pool is swept; the player's own custodied deposit stays.
	if got := vault.ExternalNative(player); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("pool payout %s, want 500", got)
	}
	custody, _ := engine.ContractBalance(NativeToken)
	if custody.Cmp(big.NewInt(105)) != 0 {
		t.Fatalf("custody %s, want 105", custody)
	}
}

func TestTournamentRollsBackOnFailedSweep(t *testing.T) {
	engine, vault, key := newTestEngine(t, Params{PrizeSource: PrizeFundedPool})
	setClock(engine, 1000)
	depositNative(t, engine, vault, player, 100)
	vault.MintNative(testOwner, big.NewInt(500))
	if err := vault.ReceiveNative(testOwner, big.NewInt(500)); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if err := engine.FundPrizePool(testOwner, NativeToken, big.NewInt(500)); err != nil {
		t.Fatalf("fund pool: %v", err)
	}
	if err := engine.StartTournament(testOwner, time.Hour); err != nil {
		t.Fatalf("start: %v", err)
	}
	playMatch(t, engine, key, player, 5, 1)
	setClock(engine, 1000+3600)

	vault.FailTransfers(true)
	if err := engine.FinalizeTournament(); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failure, got %v", err)
	}
	if !engine.TournamentState().Active {
		t.Fatal("failed sweep must leave the tournament active for retry")
	}
	vault.FailTransfers(false)
	if err := engine.FinalizeTournament(); err != nil {
		t.Fatalf("retry finalize: %v", err)
	}
	if got := vault.ExternalNative(player); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("pool payout after retry %s, want 500", got)
	}
}
