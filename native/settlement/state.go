package settlement

import "math/big"

// Account is a single ledger entry: the custodied native balance plus a balance
// per fungible-token contract. Accounts are created implicitly on first credit
// and never deleted, only zeroed.
type Account struct {
	BalanceNative *big.Int
	Tokens        map[TokenID]*big.Int
}

func newAccount() *Account {
	return &Account{BalanceNative: big.NewInt(0), Tokens: make(map[TokenID]*big.Int)}
}

func (a *Account) clone() *Account {
	if a == nil {
		return newAccount()
	}
	c := newAccount()
	if a.BalanceNative != nil {
		c.BalanceNative = new(big.Int).Set(a.BalanceNative)
	}
	for token, bal := range a.Tokens {
		c.Tokens[token] = new(big.Int).Set(bal)
	}
	return c
}

// Performance accumulates a participant's tournament standing. Score backs the
// cumulative scoring formula; Wins and Games back the wins-squared formula.
type Performance struct {
	Score *big.Int
	Wins  uint64
	Games uint64
}

func newPerformance() *Performance {
	return &Performance{Score: big.NewInt(0)}
}

func (p *Performance) clone() *Performance {
	if p == nil {
		return newPerformance()
	}
	c := &Performance{Wins: p.Wins, Games: p.Games, Score: big.NewInt(0)}
	if p.Score != nil {
		c.Score = new(big.Int).Set(p.Score)
	}
	return c
}

// Tournament is the process-wide competition window. Participants is ordered by
// first registration; that order breaks ranking ties deterministically.
type Tournament struct {
	Active       bool
	StartedAt    int64
	EndsAt       int64
	Participants [][20]byte
	Perf         map[[20]byte]*Performance
}

func (t Tournament) clone() Tournament {
	c := Tournament{
		Active:    t.Active,
		StartedAt: t.StartedAt,
		EndsAt:    t.EndsAt,
		Perf:      make(map[[20]byte]*Performance, len(t.Perf)),
	}
	c.Participants = append([][20]byte{}, t.Participants...)
	for addr, perf := range t.Perf {
		c.Perf[addr] = perf.clone()
	}
	return c
}

// State holds every durable record of the settlement core: ledger entries,
// nonce bookkeeping, access flags, the token registry and tournament standing.
// Transitions work on a deep clone and swap it in only on full success, so any
// failure leaves the previous state untouched.
type State struct {
	Owner     [20]byte
	Authority [20]byte
	Paused    bool

	Banned     map[[20]byte]bool
	Accounts   map[[20]byte]*Account
	LastNonce  map[[20]byte]uint64
	UsedNonces map[[20]byte]map[uint64]bool

	// TokenRegistry is append-only: every token ever deposited, in first-seen
	// order. Whole-balance tournament sweeps iterate it.
	TokenRegistry []TokenID
	PrizePool     map[TokenID]*big.Int

	Tournament Tournament
}

// NewState returns an empty state owned and authorized by the given keys.
func NewState(owner, authority [20]byte) *State {
	return &State{
		Owner:      owner,
		Authority:  authority,
		Banned:     make(map[[20]byte]bool),
		Accounts:   make(map[[20]byte]*Account),
		LastNonce:  make(map[[20]byte]uint64),
		UsedNonces: make(map[[20]byte]map[uint64]bool),
		PrizePool:  make(map[TokenID]*big.Int),
		Tournament: Tournament{Perf: make(map[[20]byte]*Performance)},
	}
}

// Clone produces a deep copy suitable for staging a transition.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := NewState(s.Owner, s.Authority)
	c.Paused = s.Paused
	for addr, banned := range s.Banned {
		c.Banned[addr] = banned
	}
	for addr, acc := range s.Accounts {
		c.Accounts[addr] = acc.clone()
	}
	for addr, nonce := range s.LastNonce {
		c.LastNonce[addr] = nonce
	}
	for addr, used := range s.UsedNonces {
		set := make(map[uint64]bool, len(used))
		for nonce := range used {
			set[nonce] = true
		}
		c.UsedNonces[addr] = set
	}
	c.TokenRegistry = append([]TokenID{}, s.TokenRegistry...)
	for token, amount := range s.PrizePool {
		c.PrizePool[token] = new(big.Int).Set(amount)
	}
	c.Tournament = s.Tournament.clone()
	return c
}

func (s *State) account(addr [20]byte) *Account {
	acc, ok := s.Accounts[addr]
	if !ok {
		acc = newAccount()
		s.Accounts[addr] = acc
	}
	return acc
}

func (s *State) registerToken(token TokenID) {
	if token.IsNative() {
		return
	}
	for _, known := range s.TokenRegistry {
		if known == token {
			return
		}
	}
	s.TokenRegistry = append(s.TokenRegistry, token)
}
