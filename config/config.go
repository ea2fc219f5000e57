package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"turingarena/crypto"
	"turingarena/native/settlement"
)

// Config is the arenad daemon configuration.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	NetworkName   string `toml:"NetworkName"`

	ChainID         uint64 `toml:"ChainID"`
	ContractAddress string `toml:"ContractAddress"`
	OwnerAddress    string `toml:"OwnerAddress"`
	HouseAddress    string `toml:"HouseAddress"`

	AuthorityKeystorePath string `toml:"AuthorityKeystorePath"`
	AuthorityPolicyPath   string `toml:"AuthorityPolicyPath"`

	NoncePolicy            string `toml:"NoncePolicy"`
	ResultMode             string `toml:"ResultMode"`
	PrizeSource            string `toml:"PrizeSource"`
	Scoring                string `toml:"Scoring"`
	RequireDepositApproval bool   `toml:"RequireDepositApproval"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8585"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./arena-data"
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "arena-local"
	}
	if c.ChainID == 0 {
		c.ChainID = 8714
	}
	if strings.TrimSpace(c.NoncePolicy) == "" {
		c.NoncePolicy = "sequential"
	}
	if strings.TrimSpace(c.ResultMode) == "" {
		c.ResultMode = "delta"
	}
	if strings.TrimSpace(c.PrizeSource) == "" {
		c.PrizeSource = "contract"
	}
	if strings.TrimSpace(c.Scoring) == "" {
		c.Scoring = "wins-squared"
	}
	if strings.TrimSpace(c.AuthorityKeystorePath) == "" {
		c.AuthorityKeystorePath = filepath.Join(c.DataDir, "authority.keystore")
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeAccount(field, value string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return out, fmt.Errorf("config: %s required", field)
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return out, fmt.Errorf("config: %s: %w", field, err)
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

// EngineParams resolves the configured addresses and policy enums into
// settlement parameters.
func (c *Config) EngineParams() (settlement.Params, error) {
	params := settlement.Params{
		ChainID:                c.ChainID,
		RequireDepositApproval: c.RequireDepositApproval,
	}
	var err error
	if params.Contract, err = decodeAccount("ContractAddress", c.ContractAddress); err != nil {
		return params, err
	}
	if params.House, err = decodeAccount("HouseAddress", c.HouseAddress); err != nil {
		return params, err
	}
	switch strings.ToLower(strings.TrimSpace(c.NoncePolicy)) {
	case "", "sequential":
		params.NoncePolicy = settlement.NonceSequential
	case "set":
		params.NoncePolicy = settlement.NonceSet
	default:
		return params, fmt.Errorf("config: unknown NoncePolicy %q", c.NoncePolicy)
	}
	switch strings.ToLower(strings.TrimSpace(c.ResultMode)) {
	case "", "delta":
		params.ResultMode = settlement.ResultDelta
	case "absolute":
		params.ResultMode = settlement.ResultAbsolute
	default:
		return params, fmt.Errorf("config: unknown ResultMode %q", c.ResultMode)
	}
	switch strings.ToLower(strings.TrimSpace(c.PrizeSource)) {
	case "", "contract":
		params.PrizeSource = settlement.PrizeContractBalance
	case "pool":
		params.PrizeSource = settlement.PrizeFundedPool
	default:
		return params, fmt.Errorf("config: unknown PrizeSource %q", c.PrizeSource)
	}
	switch strings.ToLower(strings.TrimSpace(c.Scoring)) {
	case "", "wins-squared":
		params.Scoring = settlement.ScoreWinsSquared
	case "cumulative":
		params.Scoring = settlement.ScoreCumulative
	default:
		return params, fmt.Errorf("config: unknown Scoring %q", c.Scoring)
	}
	return params, nil
}

// Owner resolves the configured owner address.
func (c *Config) Owner() ([20]byte, error) {
	return decodeAccount("OwnerAddress", c.OwnerAddress)
}
