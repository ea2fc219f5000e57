package settlement

import "errors"

var (
	// ErrInvalidSignature indicates the authorization signature could not be
	// recovered or did not match the current authority key.
	ErrInvalidSignature = errors.New("settlement: invalid authority signature")
	// ErrNonceAlreadyUsed indicates a set-policy nonce was consumed before.
	ErrNonceAlreadyUsed = errors.New("settlement: nonce already used")
	// ErrNonceNotIncreasing indicates a sequential-policy nonce did not exceed
	// the account's last consumed nonce.
	ErrNonceNotIncreasing = errors.New("settlement: nonce not increasing")

	// ErrBalanceChanged indicates the recorded balance no longer matches the
	// balance asserted when the authorization was issued. The caller must
	// re-fetch state and request a fresh authorization.
	ErrBalanceChanged = errors.New("settlement: recorded balance changed since authorization")
	// ErrAmountMismatch indicates the withdrawal payload's amounts are not
	// arithmetically consistent.
	ErrAmountMismatch = errors.New("settlement: authorization amounts inconsistent")
	// ErrBalanceMismatch indicates a game result's asserted balance does not
	// follow from the recorded balance and the signed delta.
	ErrBalanceMismatch = errors.New("settlement: result balance inconsistent with delta")

	// ErrInsufficientBalance indicates a debit exceeding the recorded balance.
	ErrInsufficientBalance = errors.New("settlement: insufficient balance")
	// ErrTransferFailed indicates an external value transfer failed; the
	// surrounding transition is fully rolled back.
	ErrTransferFailed = errors.New("settlement: external transfer failed")

	// ErrBanned indicates the calling account is banned.
	ErrBanned = errors.New("settlement: account banned")
	// ErrPaused indicates the engine is paused for non-admin operations.
	ErrPaused = errors.New("settlement: engine paused")
	// ErrNotOwner indicates an admin entry point was called by a non-owner.
	ErrNotOwner = errors.New("settlement: caller is not the owner")
	// ErrReentrantCall indicates a state-changing entry point was re-entered
	// while an external transfer was in flight.
	ErrReentrantCall = errors.New("settlement: reentrant call")

	// ErrZeroAuthority rejects rotating the authority key to the zero address.
	ErrZeroAuthority = errors.New("settlement: authority key must not be zero")
	// ErrInvalidAmount rejects zero or negative amounts.
	ErrInvalidAmount = errors.New("settlement: amount must be positive")
	// ErrInvalidToken rejects the native sentinel where a token is required.
	ErrInvalidToken = errors.New("settlement: token address required")
	// ErrInvalidDuration rejects zero or negative tournament durations.
	ErrInvalidDuration = errors.New("settlement: duration must be positive")
	// ErrTournamentActive rejects starting a tournament while one is running.
	ErrTournamentActive = errors.New("settlement: tournament already active")
	// ErrTournamentNotActive rejects finalizing when no tournament is running.
	ErrTournamentNotActive = errors.New("settlement: no active tournament")
	// ErrTournamentRunning rejects finalizing before the end time has elapsed.
	ErrTournamentRunning = errors.New("settlement: tournament still running")
	// ErrNoParticipants rejects finalizing an empty tournament.
	ErrNoParticipants = errors.New("settlement: tournament has no participants")
)
