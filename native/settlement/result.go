package settlement

import (
	"math/big"

	"turingarena/core/events"
)

// SubmitGameResult applies a server-attested match outcome to the caller's
// ledger entry. Under ResultDelta the asserted balance must follow from the
// recorded balance plus the signed delta minus the fee, so the caller can never
// assert an arbitrary absolute value unconnected to their prior balance. Under
// ResultAbsolute the asserted balance is taken as-is once the signature checks
// out. Any fee accrues to the house account. An active tournament registers the
// caller and updates their standing.
func (e *Engine) SubmitGameResult(caller [20]byte, token TokenID, result *GameResult, nonce uint64, sig []byte) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	if result == nil {
		return ErrInvalidSignature
	}
	newBalance := cloneBigInt(result.NewBalance)
	if newBalance.Sign() < 0 {
		return ErrInvalidAmount
	}
	st := e.state.Clone()
	if err := e.guardCaller(st, caller); err != nil {
		return err
	}
	delta := cloneBigInt(result.Delta)
	fee := cloneBigInt(result.Fee)
	if fee.Sign() < 0 {
		return ErrInvalidAmount
	}
	if e.params.ResultMode == ResultDelta {
		recorded := st.balance(caller, token)
		expected := new(big.Int).Add(recorded, delta)
		expected.Sub(expected, fee)
		if expected.Cmp(newBalance) != 0 {
			return ErrBalanceMismatch
		}
	}
	if err := e.consumeNonce(st, caller, nonce); err != nil {
		return err
	}
	digest := result.Digest(e.params.ChainID, caller, e.params.Contract, token, nonce)
	if err := verifyAuthority(st, digest, sig); err != nil {
		return err
	}
	updated, err := st.setAbsolute(caller, token, newBalance)
	if err != nil {
		return err
	}
	staged := []events.Event{
		events.NonceUsed{Account: caller, Nonce: nonce},
		events.GameResultUpdated{
			Account:          caller,
			Token:            token.String(),
			GameID:           result.GameID,
			Delta:            delta,
			NewBalance:       updated,
			VerificationHash: result.VerificationHash,
		},
		events.BalanceUpdated{Account: caller, Token: token.String(), NewBalance: updated},
	}
	if fee.Sign() > 0 {
		houseBalance, err := st.credit(e.params.House, token, fee)
		if err != nil {
			return err
		}
		staged = append(staged,
			events.FeeAccrued{Account: caller, House: e.params.House, Token: token.String(), GameID: result.GameID, Fee: fee},
			events.BalanceUpdated{Account: e.params.House, Token: token.String(), NewBalance: houseBalance},
		)
	}
	if st.Tournament.Active {
		st.recordPerformance(caller, delta)
	}
	return e.commit(st, staged, nil)
}

// recordPerformance registers the account on first sight and folds the match
// delta into its standing: the cumulative score accumulates the delta, and a
// positive delta counts as a win for the wins-squared formula.
func (s *State) recordPerformance(account [20]byte, delta *big.Int) {
	perf, ok := s.Tournament.Perf[account]
	if !ok {
		perf = newPerformance()
		s.Tournament.Perf[account] = perf
		s.Tournament.Participants = append(s.Tournament.Participants, account)
	}
	perf.Score = new(big.Int).Add(perf.Score, delta)
	perf.Games++
	if delta != nil && delta.Sign() > 0 {
		perf.Wins++
	}
}
