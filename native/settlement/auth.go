package settlement

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Domain strings separate the signed message space per operation. A signature
// over one domain can never authorize another operation.
const (
	WithdrawDomainV1 = "TURING_WITHDRAW_V1"
	ResultDomainV1   = "TURING_RESULT_V1"
	DepositDomainV1  = "TURING_DEPOSIT_V1"
)

// WithdrawalAuthorization is the server-issued, single-use payload authorizing
// an outbound transfer. CurrentBalance pins the recorded balance at issuance
// time; a transition rejects the payload if the balance moved since.
type WithdrawalAuthorization struct {
	Token          TokenID
	Amount         *big.Int
	CurrentBalance *big.Int
	NewBalance     *big.Int
	ActivityHash   [32]byte
	Nonce          uint64
}

// Digest reconstructs the canonical message digest signed by the authority.
// Every field of the payload is bound, so tampering with any of them
// invalidates the signature.
func (a *WithdrawalAuthorization) Digest(chainID uint64, account, contract [20]byte) []byte {
	payload := fmt.Sprintf("%s|chain=%d|account=%s|contract=%s|token=%s|amount=%s|current=%s|new=%s|activity=%s|nonce=%d",
		WithdrawDomainV1,
		chainID,
		hex.EncodeToString(account[:]),
		hex.EncodeToString(contract[:]),
		a.Token.String(),
		bigIntString(a.Amount),
		bigIntString(a.CurrentBalance),
		bigIntString(a.NewBalance),
		hex.EncodeToString(a.ActivityHash[:]),
		a.Nonce,
	)
	return personalDigest([]byte(payload))
}

// GameResult is the server-attested outcome of a single match. Delta is the
// signed balance change, Fee the portion accrued to the house account, and
// VerificationHash an opaque digest of the match activity recorded for audit.
type GameResult struct {
	GameID           string
	NewBalance       *big.Int
	Delta            *big.Int
	Fee              *big.Int
	VerificationHash [32]byte
}

// Digest reconstructs the canonical message digest signed by the authority for
// a game-result settlement.
func (r *GameResult) Digest(chainID uint64, account, contract [20]byte, token TokenID, nonce uint64) []byte {
	payload := fmt.Sprintf("%s|chain=%d|account=%s|contract=%s|token=%s|game=%s|new=%s|delta=%s|fee=%s|verify=%s|nonce=%d",
		ResultDomainV1,
		chainID,
		hex.EncodeToString(account[:]),
		hex.EncodeToString(contract[:]),
		token.String(),
		r.GameID,
		bigIntString(r.NewBalance),
		bigIntString(r.Delta),
		bigIntString(r.Fee),
		hex.EncodeToString(r.VerificationHash[:]),
		nonce,
	)
	return personalDigest([]byte(payload))
}

// DepositAuthorization pre-approves a native deposit of an exact amount. Only
// consulted when the engine runs with RequireDepositApproval.
type DepositAuthorization struct {
	ExpectedAmount *big.Int
	Nonce          uint64
}

// Digest reconstructs the canonical message digest for a pre-approved deposit.
func (d *DepositAuthorization) Digest(chainID uint64, account, contract [20]byte) []byte {
	payload := fmt.Sprintf("%s|chain=%d|account=%s|contract=%s|amount=%s|nonce=%d",
		DepositDomainV1,
		chainID,
		hex.EncodeToString(account[:]),
		hex.EncodeToString(contract[:]),
		bigIntString(d.ExpectedAmount),
		d.Nonce,
	)
	return personalDigest([]byte(payload))
}

// personalDigest applies the standard personal-message prefix over the keccak
// hash of the canonical payload, matching what wallet signers produce.
func personalDigest(payload []byte) []byte {
	inner := ethcrypto.Keccak256(payload)
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(inner))
	return ethcrypto.Keccak256([]byte(prefix), inner)
}

// SignDigest signs a canonical digest with the supplied authority secret. The
// off-chain authority service uses this; the engine itself only verifies.
func SignDigest(digest []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	return ethcrypto.Sign(digest, key)
}

// verifyAuthority recovers the signer of the digest and compares it against the
// authority key currently recorded in state. Stale signatures from a rotated
// key fail here.
func verifyAuthority(st *State, digest, sig []byte) error {
	if len(sig) != 65 {
		return ErrInvalidSignature
	}
	pubKey, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return ErrInvalidSignature
	}
	recovered := ethcrypto.PubkeyToAddress(*pubKey)
	if recovered != ethcommon.BytesToAddress(st.Authority[:]) {
		return ErrInvalidSignature
	}
	return nil
}

func bigIntString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
