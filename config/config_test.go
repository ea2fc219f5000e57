package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"turingarena/crypto"
	"turingarena/native/settlement"
)

func testAddrString(b byte) string {
	var addr [20]byte
	addr[19] = b
	return crypto.NewAddress(crypto.ArenaPrefix, addr[:]).String()
}

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8585" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.ChainID != 8714 {
		t.Fatalf("unexpected chain id %d", cfg.ChainID)
	}
	if cfg.NoncePolicy != "sequential" || cfg.ResultMode != "delta" {
		t.Fatalf("unexpected policy defaults %q/%q", cfg.NoncePolicy, cfg.ResultMode)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	// A second load reads the file it just wrote.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.ListenAddress != cfg.ListenAddress || again.ChainID != cfg.ChainID {
		t.Fatalf("reload mismatch: %+v", again)
	}
}

func TestEngineParamsParsesPolicies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := fmt.Sprintf(`ListenAddress = ":9000"
DataDir = %q
ChainID = 99
ContractAddress = %q
OwnerAddress = %q
HouseAddress = %q
NoncePolicy = "set"
ResultMode = "absolute"
PrizeSource = "pool"
Scoring = "cumulative"
RequireDepositApproval = true
`, dir, testAddrString(0x01), testAddrString(0x02), testAddrString(0x03))
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	params, err := cfg.EngineParams()
	if err != nil {
		t.Fatalf("engine params: %v", err)
	}
	if params.ChainID != 99 {
		t.Fatalf("chain id %d", params.ChainID)
	}
	if params.NoncePolicy != settlement.NonceSet {
		t.Fatalf("nonce policy %v", params.NoncePolicy)
	}
	if params.ResultMode != settlement.ResultAbsolute {
		t.Fatalf("result mode %v", params.ResultMode)
	}
	if params.PrizeSource != settlement.PrizeFundedPool {
		t.Fatalf("prize source %v", params.PrizeSource)
	}
	if params.Scoring != settlement.ScoreCumulative {
		t.Fatalf("scoring %v", params.Scoring)
	}
	if !params.RequireDepositApproval {
		t.Fatal("deposit approval flag lost")
	}
	owner, err := cfg.Owner()
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if owner[19] != 0x02 {
		t.Fatalf("unexpected owner %x", owner)
	}
}

func TestEngineParamsRejectsUnknownEnums(t *testing.T) {
	cfg := &Config{
		ContractAddress: testAddrString(0x01),
		OwnerAddress:    testAddrString(0x02),
		HouseAddress:    testAddrString(0x03),
		NoncePolicy:     "random",
	}
	if _, err := cfg.EngineParams(); err == nil {
		t.Fatal("expected unknown nonce policy error")
	}
}

func TestEngineParamsRequiresAddresses(t *testing.T) {
	cfg := &Config{}
	if _, err := cfg.EngineParams(); err == nil {
		t.Fatal("expected missing contract address error")
	}
}
