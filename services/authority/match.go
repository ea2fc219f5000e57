package authority

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"turingarena/native/settlement"
)

// MatchOutcome is what the external matching/reporting collaborator hands
// over once a session concludes: who guessed right, who lost the wager, and
// the stake at play.
type MatchOutcome struct {
	Winner    [20]byte
	Loser     [20]byte
	Token     settlement.TokenID
	Stake     *big.Int
	SessionID string
}

// SignedResult bundles a game-result payload with everything the player's
// client needs to submit it to the engine.
type SignedResult struct {
	Account   [20]byte
	Token     settlement.TokenID
	Result    *settlement.GameResult
	Nonce     uint64
	Signature []byte
}

// SettleMatch turns a concluded match into the pair of signed game-result
// payloads: the loser's balance drops by the full stake, the winner's rises by
// the stake minus the house fee, and the fee accrues to the house account on
// the winner's settlement. Both payloads share one game identifier and a
// verification hash derived from the session.
func (s *Signer) SettleMatch(outcome MatchOutcome) (winner, loser *SignedResult, err error) {
	if err := s.rules.ValidateStake(outcome.Stake); err != nil {
		return nil, nil, err
	}
	if outcome.Winner == outcome.Loser {
		return nil, nil, fmt.Errorf("authority: winner and loser must differ")
	}
	stake := new(big.Int).Set(outcome.Stake)
	fee := new(big.Int).Mul(stake, new(big.Int).SetUint64(s.rules.HouseFeeBps))
	fee.Div(fee, big.NewInt(10_000))

	gameID := uuid.NewString()
	var verification [32]byte
	copy(verification[:], ethcrypto.Keccak256([]byte(outcome.SessionID), []byte(gameID)))

	loser, err = s.issueResult(outcome.Loser, outcome.Token, gameID, new(big.Int).Neg(stake), big.NewInt(0), verification)
	if err != nil {
		return nil, nil, err
	}
	winner, err = s.issueResult(outcome.Winner, outcome.Token, gameID, stake, fee, verification)
	if err != nil {
		return nil, nil, err
	}
	return winner, loser, nil
}

func (s *Signer) issueResult(account [20]byte, token settlement.TokenID, gameID string, delta, fee *big.Int, verification [32]byte) (*SignedResult, error) {
	iss := s.issuer(account)
	iss.mu.Lock()
	defer iss.mu.Unlock()

	current := s.balances.Balance(account, token)
	newBalance := new(big.Int).Add(current, delta)
	newBalance.Sub(newBalance, fee)
	if newBalance.Sign() < 0 {
		return nil, fmt.Errorf("authority: account %x cannot cover delta %s", account, delta)
	}
	nonce, err := s.nextNonce(iss)
	if err != nil {
		return nil, err
	}
	result := &settlement.GameResult{
		GameID:           gameID,
		NewBalance:       newBalance,
		Delta:            new(big.Int).Set(delta),
		Fee:              new(big.Int).Set(fee),
		VerificationHash: verification,
	}
	sig, err := settlement.SignDigest(result.Digest(s.chainID, account, s.contract, token, nonce), s.key.PrivateKey)
	if err != nil {
		return nil, err
	}
	return &SignedResult{Account: account, Token: token, Result: result, Nonce: nonce, Signature: sig}, nil
}
