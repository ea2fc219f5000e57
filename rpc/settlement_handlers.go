package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"turingarena/crypto"
	"turingarena/native/settlement"
	"turingarena/services/authority"
)

func (s *Server) dispatch(req *RPCRequest) (interface{}, *RPCError) {
	switch req.Method {
	case "arena_depositNative":
		return s.handleDepositNative(req)
	case "arena_depositToken":
		return s.handleDepositToken(req)
	case "arena_withdraw":
		return s.handleWithdraw(req)
	case "arena_submitResult":
		return s.handleSubmitResult(req)
	case "arena_balance":
		return s.handleBalance(req)
	case "arena_contractBalance":
		return s.handleContractBalance(req)
	case "arena_tournament":
		return s.handleTournamentInfo(req)
	case "arena_tournamentFinalize":
		return s.handleTournamentFinalize(req)
	case "arena_requestWithdrawal":
		return s.handleRequestWithdrawal(req)
	case "arena_reportMatch":
		return s.handleReportMatch(req)
	case "admin_ban":
		return s.handleBan(req, true)
	case "admin_unban":
		return s.handleBan(req, false)
	case "admin_setAuthority":
		return s.handleSetAuthority(req)
	case "admin_pause":
		return s.handlePause(req, true)
	case "admin_unpause":
		return s.handlePause(req, false)
	case "admin_emergencyWithdraw":
		return s.handleEmergencyWithdraw(req)
	case "admin_tournamentStart":
		return s.handleTournamentStart(req)
	case "admin_fundPrizePool":
		return s.handleFundPrizePool(req)
	default:
		return nil, &RPCError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method %s", req.Method)}
	}
}

func parseAccount(field, value string) ([20]byte, *RPCError) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("%s: %v", field, err)}
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func parseAmount(field, value string) (*big.Int, *RPCError) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("%s: invalid amount %q", field, value)}
	}
	return amount, nil
}

func parseToken(value string) (settlement.TokenID, *RPCError) {
	token, err := settlement.ParseTokenID(value)
	if err != nil {
		return settlement.TokenID{}, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	return token, nil
}

func parseSignature(value string) ([]byte, *RPCError) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("signature: %v", err)}
	}
	return raw, nil
}

func parseHash32(field, value string) ([32]byte, *RPCError) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return out, nil
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != 32 {
		return out, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("%s: expected 32-byte hex", field)}
	}
	copy(out[:], raw)
	return out, nil
}

type depositApprovalParam struct {
	ExpectedAmount string `json:"expectedAmount"`
	Nonce          uint64 `json:"nonce"`
	Signature      string `json:"signature"`
}

type depositNativeParams struct {
	Account  string                `json:"account"`
	Amount   string                `json:"amount"`
	Approval *depositApprovalParam `json:"approval,omitempty"`
}

func (s *Server) handleDepositNative(req *RPCRequest) (interface{}, *RPCError) {
	var params depositNativeParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	account, rpcErr := parseAccount("account", params.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var approval *settlement.SignedDeposit
	if params.Approval != nil {
		expected, rpcErr := parseAmount("approval.expectedAmount", params.Approval.ExpectedAmount)
		if rpcErr != nil {
			return nil, rpcErr
		}
		sig, rpcErr := parseSignature(params.Approval.Signature)
		if rpcErr != nil {
			return nil, rpcErr
		}
		approval = &settlement.SignedDeposit{
			Authorization: settlement.DepositAuthorization{ExpectedAmount: expected, Nonce: params.Approval.Nonce},
			Signature:     sig,
		}
	}
	if rpcErr := s.transition("deposit_native", func() error {
		if s.vault != nil {
			if err := s.vault.ReceiveNative(account, amount); err != nil {
				return fmt.Errorf("%w: %v", settlement.ErrTransferFailed, err)
			}
		}
		if err := s.engine.DepositNative(account, amount, approval); err != nil {
			// The attached value already reached custody; hand it back.
			if s.vault != nil {
				if refundErr := s.vault.NativeTransfer(account, amount); refundErr != nil {
					return fmt.Errorf("%w: refund after %v: %v", settlement.ErrTransferFailed, err, refundErr)
				}
			}
			return err
		}
		return nil
	}); rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]string{"balance": s.balanceView(account, settlement.NativeToken)}, nil
}

type depositTokenParams struct {
	Account string `json:"account"`
	Token   string `json:"token"`
	Amount  string `json:"amount"`
}

func (s *Server) handleDepositToken(req *RPCRequest) (interface{}, *RPCError) {
	var params depositTokenParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	account, rpcErr := parseAccount("account", params.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := parseToken(params.Token)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := s.transition("deposit_token", func() error {
		return s.engine.DepositToken(account, token, amount)
	}); rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]string{"balance": s.balanceView(account, token)}, nil
}

type withdrawalParam struct {
	Token          string `json:"token"`
	Amount         string `json:"amount"`
	CurrentBalance string `json:"currentBalance"`
	NewBalance     string `json:"newBalance"`
	ActivityHash   string `json:"activityHash"`
	Nonce          uint64 `json:"nonce"`
}

type withdrawParams struct {
	Account       string          `json:"account"`
	Authorization withdrawalParam `json:"authorization"`
	Signature     string          `json:"signature"`
}

func (p *withdrawalParam) decode() (*settlement.WithdrawalAuthorization, *RPCError) {
	token, rpcErr := parseToken(p.Token)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("authorization.amount", p.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	current, rpcErr := parseAmount("authorization.currentBalance", p.CurrentBalance)
	if rpcErr != nil {
		return nil, rpcErr
	}
	next, rpcErr := parseAmount("authorization.newBalance", p.NewBalance)
	if rpcErr != nil {
		return nil, rpcErr
	}
	activity, rpcErr := parseHash32("authorization.activityHash", p.ActivityHash)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &settlement.WithdrawalAuthorization{
		Token:          token,
		Amount:         amount,
		CurrentBalance: current,
		NewBalance:     next,
		ActivityHash:   activity,
		Nonce:          p.Nonce,
	}, nil
}

func (s *Server) handleWithdraw(req *RPCRequest) (interface{}, *RPCError) {
	var params withdrawParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	account, rpcErr := parseAccount("account", params.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	auth, rpcErr := params.Authorization.decode()
	if rpcErr != nil {
		return nil, rpcErr
	}
	sig, rpcErr := parseSignature(params.Signature)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := s.transition("withdraw", func() error {
		return s.engine.Withdraw(account, auth, sig)
	}); rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]string{"balance": s.balanceView(account, auth.Token)}, nil
}

type gameResultParam struct {
	GameID           string `json:"gameId"`
	NewBalance       string `json:"newBalance"`
	Delta            string `json:"delta"`
	Fee              string `json:"fee"`
	VerificationHash string `json:"verificationHash"`
}

type submitResultParams struct {
	Account   string          `json:"account"`
	Token     string          `json:"token"`
	Result    gameResultParam `json:"result"`
	Nonce     uint64          `json:"nonce"`
	Signature string          `json:"signature"`
}

func (s *Server) handleSubmitResult(req *RPCRequest) (interface{}, *RPCError) {
	var params submitResultParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	account, rpcErr := parseAccount("account", params.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := parseToken(params.Token)
	if rpcErr != nil {
		return nil, rpcErr
	}
	newBalance, rpcErr := parseAmount("result.newBalance", params.Result.NewBalance)
	if rpcErr != nil {
		return nil, rpcErr
	}
	delta, rpcErr := parseAmount("result.delta", params.Result.Delta)
	if rpcErr != nil {
		return nil, rpcErr
	}
	fee := big.NewInt(0)
	if strings.TrimSpace(params.Result.Fee) != "" {
		if fee, rpcErr = parseAmount("result.fee", params.Result.Fee); rpcErr != nil {
			return nil, rpcErr
		}
	}
	verification, rpcErr := parseHash32("result.verificationHash", params.Result.VerificationHash)
	if rpcErr != nil {
		return nil, rpcErr
	}
	sig, rpcErr := parseSignature(params.Signature)
	if rpcErr != nil {
		return nil, rpcErr
	}
	result := &settlement.GameResult{
		GameID:           params.Result.GameID,
		NewBalance:       newBalance,
		Delta:            delta,
		Fee:              fee,
		VerificationHash: verification,
	}
	if rpcErr := s.transition("submit_result", func() error {
		return s.engine.SubmitGameResult(account, token, result, params.Nonce, sig)
	}); rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]string{"balance": s.balanceView(account, token)}, nil
}

type balanceParams struct {
	Account string `json:"account"`
	Token   string `json:"token"`
}

func (s *Server) balanceView(account [20]byte, token settlement.TokenID) string {
	var balance string
	s.view(func() { balance = s.engine.Balance(account, token).String() })
	return balance
}

func (s *Server) handleBalance(req *RPCRequest) (interface{}, *RPCError) {
	var params balanceParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	account, rpcErr := parseAccount("account", params.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := parseToken(params.Token)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]string{"balance": s.balanceView(account, token)}, nil
}

type tokenParams struct {
	Token string `json:"token"`
}

func (s *Server) handleContractBalance(req *RPCRequest) (interface{}, *RPCError) {
	var params tokenParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := parseToken(params.Token)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var (
		balance *big.Int
		err     error
	)
	s.view(func() { balance, err = s.engine.ContractBalance(token) })
	if err != nil {
		return nil, &RPCError{Code: codeServerError, Message: err.Error()}
	}
	return map[string]string{"balance": balance.String()}, nil
}

func (s *Server) handleTournamentInfo(req *RPCRequest) (interface{}, *RPCError) {
	var info settlement.TournamentInfo
	s.view(func() { info = s.engine.TournamentState() })
	return map[string]interface{}{
		"active":       info.Active,
		"startedAt":    info.StartedAt,
		"endsAt":       info.EndsAt,
		"participants": info.Participants,
	}, nil
}

func (s *Server) handleTournamentFinalize(req *RPCRequest) (interface{}, *RPCError) {
	if rpcErr := s.transition("tournament_finalize", func() error {
		return s.engine.FinalizeTournament()
	}); rpcErr != nil {
		return nil, rpcErr
	}
	s.metrics.Finalized.Inc()
	return map[string]bool{"finalized": true}, nil
}

type requestWithdrawalParams struct {
	Account string `json:"account"`
	Token   string `json:"token"`
	Amount  string `json:"amount"`
}

func (s *Server) handleRequestWithdrawal(req *RPCRequest) (interface{}, *RPCError) {
	if s.signer == nil {
		return nil, &RPCError{Code: codeServerError, Message: "authority signer not configured"}
	}
	var params requestWithdrawalParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	account, rpcErr := parseAccount("account", params.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := parseToken(params.Token)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var (
		auth *settlement.WithdrawalAuthorization
		sig  []byte
		err  error
	)
	// The signer prices against the recorded balance; hold the read lock so
	// it never observes a mid-commit ledger.
	s.view(func() { auth, sig, err = s.signer.IssueWithdrawal(account, token, amount, [32]byte{}) })
	if err != nil {
		return nil, &RPCError{Code: codeServerError, Message: err.Error()}
	}
	return map[string]interface{}{
		"authorization": withdrawalParam{
			Token:          auth.Token.String(),
			Amount:         auth.Amount.String(),
			CurrentBalance: auth.CurrentBalance.String(),
			NewBalance:     auth.NewBalance.String(),
			ActivityHash:   hex.EncodeToString(auth.ActivityHash[:]),
			Nonce:          auth.Nonce,
		},
		"signature": hex.EncodeToString(sig),
	}, nil
}

type reportMatchParams struct {
	Winner    string `json:"winner"`
	Loser     string `json:"loser"`
	Token     string `json:"token"`
	Stake     string `json:"stake"`
	SessionID string `json:"sessionId"`
}

func signedResultJSON(r *authority.SignedResult) map[string]interface{} {
	return map[string]interface{}{
		"account": crypto.NewAddress(crypto.ArenaPrefix, r.Account[:]).String(),
		"token":   r.Token.String(),
		"result": gameResultParam{
			GameID:           r.Result.GameID,
			NewBalance:       r.Result.NewBalance.String(),
			Delta:            r.Result.Delta.String(),
			Fee:              r.Result.Fee.String(),
			VerificationHash: hex.EncodeToString(r.Result.VerificationHash[:]),
		},
		"nonce":     r.Nonce,
		"signature": hex.EncodeToString(r.Signature),
	}
}

func (s *Server) handleReportMatch(req *RPCRequest) (interface{}, *RPCError) {
	if s.signer == nil {
		return nil, &RPCError{Code: codeServerError, Message: "authority signer not configured"}
	}
	var params reportMatchParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	winner, rpcErr := parseAccount("winner", params.Winner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	loser, rpcErr := parseAccount("loser", params.Loser)
	if rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := parseToken(params.Token)
	if rpcErr != nil {
		return nil, rpcErr
	}
	stake, rpcErr := parseAmount("stake", params.Stake)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var (
		winnerResult *authority.SignedResult
		loserResult  *authority.SignedResult
		err          error
	)
	s.view(func() {
		winnerResult, loserResult, err = s.signer.SettleMatch(authority.MatchOutcome{
			Winner:    winner,
			Loser:     loser,
			Token:     token,
			Stake:     stake,
			SessionID: params.SessionID,
		})
	})
	if err != nil {
		return nil, &RPCError{Code: codeServerError, Message: err.Error()}
	}
	return map[string]interface{}{
		"winner": signedResultJSON(winnerResult),
		"loser":  signedResultJSON(loserResult),
	}, nil
}

type accountParams struct {
	Account string `json:"account"`
}

func (s *Server) handleBan(req *RPCRequest, ban bool) (interface{}, *RPCError) {
	var params accountParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	account, rpcErr := parseAccount("account", params.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	op := "unban"
	fn := func() error { return s.engine.Unban(s.owner, account) }
	if ban {
		op = "ban"
		fn = func() error { return s.engine.Ban(s.owner, account) }
	}
	if rpcErr := s.transition(op, fn); rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]bool{"banned": ban}, nil
}

type setAuthorityParams struct {
	Address string `json:"address"`
}

func (s *Server) handleSetAuthority(req *RPCRequest) (interface{}, *RPCError) {
	var params setAuthorityParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	newKey, rpcErr := parseAccount("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := s.transition("set_authority", func() error {
		return s.engine.SetAuthorityKey(s.owner, newKey)
	}); rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]bool{"rotated": true}, nil
}

func (s *Server) handlePause(req *RPCRequest, pause bool) (interface{}, *RPCError) {
	op := "unpause"
	fn := func() error { return s.engine.Unpause(s.owner) }
	if pause {
		op = "pause"
		fn = func() error { return s.engine.Pause(s.owner) }
	}
	if rpcErr := s.transition(op, fn); rpcErr != nil {
		return nil, rpcErr
	}
	if pause {
		s.metrics.Paused.Set(1)
	} else {
		s.metrics.Paused.Set(0)
	}
	return map[string]bool{"paused": pause}, nil
}

type emergencyWithdrawParams struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func (s *Server) handleEmergencyWithdraw(req *RPCRequest) (interface{}, *RPCError) {
	var params emergencyWithdrawParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := parseToken(params.Token)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := s.transition("emergency_withdraw", func() error {
		return s.engine.EmergencyWithdraw(s.owner, token, amount)
	}); rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]bool{"withdrawn": true}, nil
}

type tournamentStartParams struct {
	DurationSeconds int64 `json:"durationSeconds"`
}

func (s *Server) handleTournamentStart(req *RPCRequest) (interface{}, *RPCError) {
	var params tournamentStartParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := s.transition("tournament_start", func() error {
		return s.engine.StartTournament(s.owner, time.Duration(params.DurationSeconds)*time.Second)
	}); rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]bool{"started": true}, nil
}

func (s *Server) handleFundPrizePool(req *RPCRequest) (interface{}, *RPCError) {
	var params emergencyWithdrawParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := parseToken(params.Token)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := s.transition("fund_prize_pool", func() error {
		if token.IsNative() && s.vault != nil {
			// Native contributions arrive as attached value; move them into
			// custody before the engine records the pool.
			if err := s.vault.ReceiveNative(s.owner, amount); err != nil {
				return fmt.Errorf("%w: %v", settlement.ErrTransferFailed, err)
			}
			if err := s.engine.FundPrizePool(s.owner, token, amount); err != nil {
				if refundErr := s.vault.NativeTransfer(s.owner, amount); refundErr != nil {
					return fmt.Errorf("%w: refund after %v: %v", settlement.ErrTransferFailed, err, refundErr)
				}
				return err
			}
			return nil
		}
		return s.engine.FundPrizePool(s.owner, token, amount)
	}); rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]bool{"funded": true}, nil
}
