package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"turingarena/crypto"
	"turingarena/native/settlement"
	"turingarena/services/authority"
)

func testAddr(b byte) [20]byte {
	var addr [20]byte
	addr[19] = b
	return addr
}

func bech(addr [20]byte) string {
	return crypto.NewAddress(crypto.ArenaPrefix, addr[:]).String()
}

var (
	rpcOwner     = testAddr(0xaa)
	rpcPlayer    = testAddr(0x01)
	rpcPlayerTwo = testAddr(0x02)
)

func newTestServer(t *testing.T) (*Server, *httptest.Server, *settlement.MemoryVault) {
	t.Helper()
	return newTestServerParams(t, settlement.Params{})
}

func newTestServerParams(t *testing.T, params settlement.Params) (*Server, *httptest.Server, *settlement.MemoryVault) {
	t.Helper()
	t.Setenv("ARENA_RPC_TOKEN", "test-token")

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var authorityAddr [20]byte
	copy(authorityAddr[:], key.PubKey().Address().Bytes())

	params.ChainID = 8714
	params.Contract = testAddr(0xcc)
	params.House = testAddr(0xbb)
	engine := settlement.NewEngine(params, settlement.NewState(rpcOwner, authorityAddr))
	vault := settlement.NewMemoryVault()
	engine.SetVault(vault)

	signer, err := authority.NewSigner(key, params.ChainID, params.Contract, params.NoncePolicy, nil, engine)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	server := NewServer(engine, vault, signer, rpcOwner, nil)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return server, ts, vault
}

func call(t *testing.T, ts *httptest.Server, token, method string, params interface{}) *RPCResponse {
	t.Helper()
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		body["params"] = []interface{}{params}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, ts.URL, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var decoded RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return &decoded
}

// post fires a request without touching testing.T, so it is safe to use from
// spawned goroutines.
func post(ts *httptest.Server, method string, params interface{}) error {
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		body["params"] = []interface{}{params}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(ts.URL, "application/json", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func resultField(t *testing.T, resp *RPCResponse, field string) string {
	t.Helper()
	m, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result shape: %+v", resp.Result)
	}
	v, ok := m[field].(string)
	if !ok {
		t.Fatalf("missing field %q in %+v", field, m)
	}
	return v
}

func TestDepositAndBalanceOverRPC(t *testing.T) {
	_, ts, vault := newTestServer(t)
	vault.MintNative(rpcPlayer, big.NewInt(100))

	resp := call(t, ts, "", "arena_depositNative", map[string]interface{}{
		"account": bech(rpcPlayer),
		"amount":  "100",
	})
	if resp.Error != nil {
		t.Fatalf("deposit error: %+v", resp.Error)
	}
	if got := resultField(t, resp, "balance"); got != "100" {
		t.Fatalf("deposit balance %s", got)
	}

	resp = call(t, ts, "", "arena_balance", map[string]interface{}{
		"account": bech(rpcPlayer),
		"token":   "NATIVE",
	})
	if resp.Error != nil {
		t.Fatalf("balance error: %+v", resp.Error)
	}
	if got := resultField(t, resp, "balance"); got != "100" {
		t.Fatalf("balance %s", got)
	}
}

func TestRequestedWithdrawalRoundTrip(t *testing.T) {
	_, ts, vault := newTestServer(t)
	vault.MintNative(rpcPlayer, big.NewInt(100))
	if resp := call(t, ts, "", "arena_depositNative", map[string]interface{}{
		"account": bech(rpcPlayer),
		"amount":  "100",
	}); resp.Error != nil {
		t.Fatalf("deposit: %+v", resp.Error)
	}

	issued := call(t, ts, "", "arena_requestWithdrawal", map[string]interface{}{
		"account": bech(rpcPlayer),
		"token":   "NATIVE",
		"amount":  "40",
	})
	if issued.Error != nil {
		t.Fatalf("request withdrawal: %+v", issued.Error)
	}
	payload, ok := issued.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result %+v", issued.Result)
	}
	resp := call(t, ts, "", "arena_withdraw", map[string]interface{}{
		"account":       bech(rpcPlayer),
		"authorization": payload["authorization"],
		"signature":     payload["signature"],
	})
	if resp.Error != nil {
		t.Fatalf("withdraw: %+v", resp.Error)
	}
	if got := resultField(t, resp, "balance"); got != "60" {
		t.Fatalf("post-withdraw balance %s", got)
	}
	if got := vault.ExternalNative(rpcPlayer); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("payout %s", got)
	}
}

func TestAdminMethodsRequireBearerToken(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp := call(t, ts, "", "admin_pause", nil)
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", resp.Error)
	}
	resp = call(t, ts, "wrong-token", "admin_pause", nil)
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", resp.Error)
	}
	resp = call(t, ts, "test-token", "admin_pause", nil)
	if resp.Error != nil {
		t.Fatalf("authorized pause failed: %+v", resp.Error)
	}

	// While paused, player mutations fail but admin unpause works.
	deposit := call(t, ts, "", "arena_depositNative", map[string]interface{}{
		"account": bech(rpcPlayer),
		"amount":  "1",
	})
	if deposit.Error == nil {
		t.Fatal("deposit must fail while paused")
	}
	resp = call(t, ts, "test-token", "admin_unpause", nil)
	if resp.Error != nil {
		t.Fatalf("unpause: %+v", resp.Error)
	}
}

func TestFundPrizePoolMovesValueIntoCustody(t *testing.T) {
	server, ts, vault := newTestServerParams(t, settlement.Params{PrizeSource: settlement.PrizeFundedPool})
	var now atomic.Int64
	now.Store(1000)
	server.engine.SetNowFunc(now.Load)

	vault.MintNative(rpcOwner, big.NewInt(600))
	vault.MintNative(rpcPlayer, big.NewInt(100))
	vault.MintNative(rpcPlayerTwo, big.NewInt(100))
	for _, p := range [][20]byte{rpcPlayer, rpcPlayerTwo} {
		if resp := call(t, ts, "", "arena_depositNative", map[string]interface{}{
			"account": bech(p),
			"amount":  "100",
		}); resp.Error != nil {
			t.Fatalf("deposit %x: %+v", p, resp.Error)
		}
	}

	if resp := call(t, ts, "test-token", "admin_fundPrizePool", map[string]interface{}{
		"token":  "NATIVE",
		"amount": "500",
	}); resp.Error != nil {
		t.Fatalf("fund pool: %+v", resp.Error)
	}
	// The contribution must actually move into custody, not just be recorded.
	if got := vault.ExternalNative(rpcOwner); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("owner external after funding %s", got)
	}
	resp := call(t, ts, "", "arena_contractBalance", map[string]interface{}{"token": "NATIVE"})
	if resp.Error != nil {
		t.Fatalf("contract balance: %+v", resp.Error)
	}
	if got := resultField(t, resp, "balance"); got != "700" {
		t.Fatalf("custody after funding %s", got)
	}

	if resp := call(t, ts, "test-token", "admin_tournamentStart", map[string]interface{}{
		"durationSeconds": 3600,
	}); resp.Error != nil {
		t.Fatalf("start tournament: %+v", resp.Error)
	}
	match := call(t, ts, "", "arena_reportMatch", map[string]interface{}{
		"winner":    bech(rpcPlayer),
		"loser":     bech(rpcPlayerTwo),
		"token":     "NATIVE",
		"stake":     "50",
		"sessionId": "s-1",
	})
	if match.Error != nil {
		t.Fatalf("report match: %+v", match.Error)
	}
	outcome, ok := match.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected match result %+v", match.Result)
	}
	for _, side := range []string{"loser", "winner"} {
		if resp := call(t, ts, "", "arena_submitResult", outcome[side]); resp.Error != nil {
			t.Fatalf("submit %s result: %+v", side, resp.Error)
		}
	}

	now.Add(3601)
	if resp := call(t, ts, "", "arena_tournamentFinalize", nil); resp.Error != nil {
		t.Fatalf("finalize: %+v", resp.Error)
	}
	// Funded pool pays the winner; player custody stays on the ledger.
	if got := vault.ExternalNative(rpcPlayer); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("winner payout %s", got)
	}
	if got, err := vault.NativeBalance(); err != nil || got.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("custody after finalize %s (%v)", got, err)
	}
}

func TestConcurrentQueriesDuringDeposits(t *testing.T) {
	_, ts, vault := newTestServer(t)
	accounts := make([][20]byte, 8)
	for i := range accounts {
		accounts[i] = testAddr(byte(0x10 + i))
		vault.MintNative(accounts[i], big.NewInt(1000))
	}

	var wg sync.WaitGroup
	for _, account := range accounts {
		wg.Add(2)
		go func(a [20]byte) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if err := post(ts, "arena_depositNative", map[string]interface{}{
					"account": bech(a),
					"amount":  "50",
				}); err != nil {
					t.Errorf("deposit %x: %v", a, err)
					return
				}
			}
		}(account)
		go func(a [20]byte) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if err := post(ts, "arena_balance", map[string]interface{}{
					"account": bech(a),
					"token":   "NATIVE",
				}); err != nil {
					t.Errorf("balance %x: %v", a, err)
					return
				}
				if err := post(ts, "arena_contractBalance", map[string]interface{}{"token": "NATIVE"}); err != nil {
					t.Errorf("contract balance: %v", err)
					return
				}
				if err := post(ts, "arena_tournament", nil); err != nil {
					t.Errorf("tournament info: %v", err)
					return
				}
			}
		}(account)
	}
	wg.Wait()

	for _, account := range accounts {
		resp := call(t, ts, "", "arena_balance", map[string]interface{}{
			"account": bech(account),
			"token":   "NATIVE",
		})
		if resp.Error != nil {
			t.Fatalf("balance: %+v", resp.Error)
		}
		if got := resultField(t, resp, "balance"); got != "1000" {
			t.Fatalf("account %x balance %s", account, got)
		}
	}
}

func TestUnknownMethodRejected(t *testing.T) {
	_, ts, _ := newTestServer(t)
	resp := call(t, ts, "", "arena_unknown", nil)
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp.Error)
	}
}

func TestInvalidParamsRejected(t *testing.T) {
	_, ts, _ := newTestServer(t)
	resp := call(t, ts, "", "arena_balance", map[string]interface{}{
		"account": "not-an-address",
		"token":   "NATIVE",
	})
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", resp.Error)
	}
}
