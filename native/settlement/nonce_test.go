package settlement

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
)

// submitNonce issues and submits a minimal 1-unit withdrawal carrying the
// given nonce.
func submitNonce(t *testing.T, engine *Engine, key *ecdsa.PrivateKey, account [20]byte, nonce uint64) error {
	t.Helper()
	current := engine.Balance(account, NativeToken)
	auth := &WithdrawalAuthorization{
		Token:          NativeToken,
		Amount:         big.NewInt(1),
		CurrentBalance: current,
		NewBalance:     new(big.Int).Sub(current, big.NewInt(1)),
		Nonce:          nonce,
	}
	return engine.Withdraw(account, auth, signWithdrawal(t, engine, key, account, auth))
}

func TestSequentialNoncesMustIncrease(t *testing.T) {
	engine, vault, key := newTestEngine(t, Params{NoncePolicy: NonceSequential})
	depositNative(t, engine, vault, player, 100)

	if err := submitNonce(t, engine, key, player, 5); err != nil {
		t.Fatalf("nonce 5: %v", err)
	}
	if err := submitNonce(t, engine, key, player, 5); !errors.Is(err, ErrNonceNotIncreasing) {
		t.Fatalf("replayed nonce: expected rejection, got %v", err)
	}
	if err := submitNonce(t, engine, key, player, 3); !errors.Is(err, ErrNonceNotIncreasing) {
		t.Fatalf("lower nonce: expected rejection, got %v", err)
	}
	if err := submitNonce(t, engine, key, player, 6); err != nil {
		t.Fatalf("nonce 6: %v", err)
	}
}

func TestSetNoncesSingleUseAnyOrder(t *testing.T) {
	engine, vault, key := newTestEngine(t, Params{NoncePolicy: NonceSet})
	depositNative(t, engine, vault, player, 100)

	for _, nonce := range []uint64{42, 7, 1000} {
		if err := submitNonce(t, engine, key, player, nonce); err != nil {
			t.Fatalf("nonce %d: %v", nonce, err)
		}
	}
	if err := submitNonce(t, engine, key, player, 42); !errors.Is(err, ErrNonceAlreadyUsed) {
		t.Fatalf("reused nonce: expected rejection, got %v", err)
	}
}

func TestNoncesScopedPerAccount(t *testing.T) {
	engine, vault, key := newTestEngine(t, Params{NoncePolicy: NonceSequential})
	depositNative(t, engine, vault, player, 100)
	depositNative(t, engine, vault, playerTwo, 100)

	if err := submitNonce(t, engine, key, player, 1); err != nil {
		t.Fatalf("player nonce 1: %v", err)
	}
	if err := submitNonce(t, engine, key, playerTwo, 1); err != nil {
		t.Fatalf("second account must have its own sequence: %v", err)
	}
}
