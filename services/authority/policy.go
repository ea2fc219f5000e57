package authority

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy captures the operator-tunable settlement rules the authority applies
// when pricing matches: the house cut and the stake band it will attest.
type Policy struct {
	HouseFeeBps uint64 `yaml:"houseFeeBps"`
	MinStake    string `yaml:"minStake"`
	MaxStake    string `yaml:"maxStake"`

	minStake *big.Int
	maxStake *big.Int
}

// DefaultPolicy mirrors the historical contract behaviour: a 10% house fee and
// no stake limits.
func DefaultPolicy() *Policy {
	return &Policy{HouseFeeBps: 1000}
}

// LoadPolicy reads and validates a YAML policy file. A missing file yields the
// default policy.
func LoadPolicy(path string) (*Policy, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPolicy(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return nil, err
	}
	policy := &Policy{}
	if err := yaml.Unmarshal(raw, policy); err != nil {
		return nil, fmt.Errorf("authority: parse policy: %w", err)
	}
	if err := policy.normalize(); err != nil {
		return nil, err
	}
	return policy, nil
}

func (p *Policy) normalize() error {
	if p.HouseFeeBps > 10_000 {
		return fmt.Errorf("authority: houseFeeBps %d out of range", p.HouseFeeBps)
	}
	parse := func(field, value string) (*big.Int, error) {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return nil, nil
		}
		v, ok := new(big.Int).SetString(trimmed, 10)
		if !ok || v.Sign() < 0 {
			return nil, fmt.Errorf("authority: invalid %s %q", field, value)
		}
		return v, nil
	}
	var err error
	if p.minStake, err = parse("minStake", p.MinStake); err != nil {
		return err
	}
	if p.maxStake, err = parse("maxStake", p.MaxStake); err != nil {
		return err
	}
	if p.minStake != nil && p.maxStake != nil && p.minStake.Cmp(p.maxStake) > 0 {
		return fmt.Errorf("authority: minStake exceeds maxStake")
	}
	return nil
}

// ValidateStake rejects stakes outside the configured band.
func (p *Policy) ValidateStake(stake *big.Int) error {
	if stake == nil || stake.Sign() <= 0 {
		return fmt.Errorf("authority: stake must be positive")
	}
	if p.minStake != nil && stake.Cmp(p.minStake) < 0 {
		return fmt.Errorf("authority: stake below minimum %s", p.minStake)
	}
	if p.maxStake != nil && stake.Cmp(p.maxStake) > 0 {
		return fmt.Errorf("authority: stake above maximum %s", p.maxStake)
	}
	return nil
}
