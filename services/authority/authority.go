package authority

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"turingarena/crypto"
	"turingarena/native/settlement"
)

// BalanceReader exposes the recorded ledger view the authority prices
// authorizations against. The settlement engine satisfies it directly; a
// deployment may substitute a mirrored balance cache.
type BalanceReader interface {
	Balance(account [20]byte, token settlement.TokenID) *big.Int
}

// Signer is the match settlement authority: it holds the authority private key
// and issues the signed payloads the engine verifies. Issuance is serialized
// per account so two outstanding authorizations can never race each other into
// the engine's optimistic-concurrency balance check.
type Signer struct {
	key      *crypto.PrivateKey
	chainID  uint64
	contract [20]byte
	policy   settlement.NoncePolicy
	rules    *Policy
	balances BalanceReader

	mu      sync.Mutex
	issuers map[[20]byte]*accountIssuer
}

type accountIssuer struct {
	mu        sync.Mutex
	lastNonce uint64
}

// NewSigner constructs an authority bound to the given key and engine
// identity. Nil rules fall back to the default policy.
func NewSigner(key *crypto.PrivateKey, chainID uint64, contract [20]byte, policy settlement.NoncePolicy, rules *Policy, balances BalanceReader) (*Signer, error) {
	if key == nil {
		return nil, fmt.Errorf("authority: signing key required")
	}
	if balances == nil {
		return nil, fmt.Errorf("authority: balance reader required")
	}
	if rules == nil {
		rules = DefaultPolicy()
	}
	if rules.HouseFeeBps > 10_000 {
		return nil, fmt.Errorf("authority: fee bps out of range")
	}
	return &Signer{
		key:      key,
		chainID:  chainID,
		contract: contract,
		policy:   policy,
		rules:    rules,
		balances: balances,
		issuers:  make(map[[20]byte]*accountIssuer),
	}, nil
}

// Address returns the authority's on-ledger signer address.
func (s *Signer) Address() [20]byte {
	var addr [20]byte
	copy(addr[:], s.key.PubKey().Address().Bytes())
	return addr
}

func (s *Signer) issuer(account [20]byte) *accountIssuer {
	s.mu.Lock()
	defer s.mu.Unlock()
	iss, ok := s.issuers[account]
	if !ok {
		iss = &accountIssuer{}
		s.issuers[account] = iss
	}
	return iss
}

func (s *Signer) nextNonce(iss *accountIssuer) (uint64, error) {
	if s.policy == settlement.NonceSet {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("authority: nonce entropy: %w", err)
		}
		return binary.BigEndian.Uint64(buf[:]), nil
	}
	iss.lastNonce++
	return iss.lastNonce, nil
}

// IssueWithdrawal prices and signs a withdrawal authorization against the
// account's current recorded balance. If the engine later rejects it with a
// balance-changed error, the caller simply requests a fresh one; this method
// always reads the balance at issuance time.
func (s *Signer) IssueWithdrawal(account [20]byte, token settlement.TokenID, amount *big.Int, activityHash [32]byte) (*settlement.WithdrawalAuthorization, []byte, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, fmt.Errorf("authority: amount must be positive")
	}
	iss := s.issuer(account)
	iss.mu.Lock()
	defer iss.mu.Unlock()

	current := s.balances.Balance(account, token)
	if current.Cmp(amount) < 0 {
		return nil, nil, fmt.Errorf("authority: balance %s below requested %s", current, amount)
	}
	nonce, err := s.nextNonce(iss)
	if err != nil {
		return nil, nil, err
	}
	auth := &settlement.WithdrawalAuthorization{
		Token:          token,
		Amount:         new(big.Int).Set(amount),
		CurrentBalance: current,
		NewBalance:     new(big.Int).Sub(current, amount),
		ActivityHash:   activityHash,
		Nonce:          nonce,
	}
	sig, err := settlement.SignDigest(auth.Digest(s.chainID, account, s.contract), s.key.PrivateKey)
	if err != nil {
		return nil, nil, err
	}
	return auth, sig, nil
}

// IssueDepositApproval signs a pre-approval for a native deposit of the exact
// amount, for engines running with deposit approval required.
func (s *Signer) IssueDepositApproval(account [20]byte, amount *big.Int) (*settlement.SignedDeposit, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("authority: amount must be positive")
	}
	iss := s.issuer(account)
	iss.mu.Lock()
	defer iss.mu.Unlock()

	nonce, err := s.nextNonce(iss)
	if err != nil {
		return nil, err
	}
	auth := settlement.DepositAuthorization{
		ExpectedAmount: new(big.Int).Set(amount),
		Nonce:          nonce,
	}
	sig, err := settlement.SignDigest(auth.Digest(s.chainID, account, s.contract), s.key.PrivateKey)
	if err != nil {
		return nil, err
	}
	return &settlement.SignedDeposit{Authorization: auth, Signature: sig}, nil
}
