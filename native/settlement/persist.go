package settlement

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"

	"turingarena/storage"
)

var stateKey = []byte("settlement/state")

// KVStore persists the full settlement state as a single versioned record in
// the underlying key-value store. State snapshots are small (one entry per
// account) and written once per committed transition.
type KVStore struct {
	db storage.Database
}

// NewKVStore binds a store to the given database backend.
func NewKVStore(db storage.Database) *KVStore {
	return &KVStore{db: db}
}

// SaveState serializes and writes the committed state.
func (s *KVStore) SaveState(state *State) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("settlement: store not initialised")
	}
	if state == nil {
		return fmt.Errorf("settlement: nil state")
	}
	encoded, err := json.Marshal(toStoredState(state))
	if err != nil {
		return err
	}
	return s.db.Put(stateKey, encoded)
}

// LoadState reads the persisted state. The second return value is false when
// no state has been written yet.
func (s *KVStore) LoadState() (*State, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, fmt.Errorf("settlement: store not initialised")
	}
	ok, err := s.db.Has(stateKey)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	raw, err := s.db.Get(stateKey)
	if err != nil {
		return nil, false, err
	}
	var stored storedState
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, false, err
	}
	state, err := fromStoredState(&stored)
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}

type storedAccount struct {
	Native string            `json:"native"`
	Tokens map[string]string `json:"tokens,omitempty"`
}

type storedPerformance struct {
	Score string `json:"score"`
	Wins  uint64 `json:"wins"`
	Games uint64 `json:"games"`
}

type storedTournament struct {
	Active       bool                         `json:"active"`
	StartedAt    int64                        `json:"startedAt"`
	EndsAt       int64                        `json:"endsAt"`
	Participants []string                     `json:"participants,omitempty"`
	Perf         map[string]storedPerformance `json:"perf,omitempty"`
}

type storedState struct {
	Owner         string            `json:"owner"`
	Authority     string            `json:"authority"`
	Paused        bool              `json:"paused"`
	Banned        []string          `json:"banned,omitempty"`
	Accounts      map[string]storedAccount `json:"accounts,omitempty"`
	LastNonce     map[string]uint64 `json:"lastNonce,omitempty"`
	UsedNonces    map[string][]uint64 `json:"usedNonces,omitempty"`
	TokenRegistry []string          `json:"tokenRegistry,omitempty"`
	PrizePool     map[string]string `json:"prizePool,omitempty"`
	Tournament    storedTournament  `json:"tournament"`
}

func addrHex(addr [20]byte) string {
	return hex.EncodeToString(addr[:])
}

func parseAddr(s string) ([20]byte, error) {
	var addr [20]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return addr, fmt.Errorf("settlement: invalid address %q: %w", s, err)
	}
	if len(raw) != 20 {
		return addr, fmt.Errorf("settlement: invalid address %q: expected 20 bytes", s)
	}
	copy(addr[:], raw)
	return addr, nil
}

func parseStoredAmount(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("settlement: invalid stored amount %q", s)
	}
	return v, nil
}

func toStoredState(state *State) *storedState {
	stored := &storedState{
		Owner:      addrHex(state.Owner),
		Authority:  addrHex(state.Authority),
		Paused:     state.Paused,
		Accounts:   make(map[string]storedAccount, len(state.Accounts)),
		LastNonce:  make(map[string]uint64, len(state.LastNonce)),
		UsedNonces: make(map[string][]uint64, len(state.UsedNonces)),
		PrizePool:  make(map[string]string, len(state.PrizePool)),
	}
	for addr, banned := range state.Banned {
		if banned {
			stored.Banned = append(stored.Banned, addrHex(addr))
		}
	}
	sort.Strings(stored.Banned)
	for addr, acc := range state.Accounts {
		entry := storedAccount{Native: bigIntString(acc.BalanceNative)}
		if len(acc.Tokens) > 0 {
			entry.Tokens = make(map[string]string, len(acc.Tokens))
			for token, bal := range acc.Tokens {
				entry.Tokens[token.String()] = bigIntString(bal)
			}
		}
		stored.Accounts[addrHex(addr)] = entry
	}
	for addr, nonce := range state.LastNonce {
		stored.LastNonce[addrHex(addr)] = nonce
	}
	for addr, used := range state.UsedNonces {
		nonces := make([]uint64, 0, len(used))
		for nonce := range used {
			nonces = append(nonces, nonce)
		}
		sort.Slice(nonces, func(i, j int) bool { return nonces[i] < nonces[j] })
		stored.UsedNonces[addrHex(addr)] = nonces
	}
	for _, token := range state.TokenRegistry {
		stored.TokenRegistry = append(stored.TokenRegistry, token.String())
	}
	for token, amount := range state.PrizePool {
		stored.PrizePool[token.String()] = bigIntString(amount)
	}
	stored.Tournament = storedTournament{
		Active:    state.Tournament.Active,
		StartedAt: state.Tournament.StartedAt,
		EndsAt:    state.Tournament.EndsAt,
		Perf:      make(map[string]storedPerformance, len(state.Tournament.Perf)),
	}
	for _, addr := range state.Tournament.Participants {
		stored.Tournament.Participants = append(stored.Tournament.Participants, addrHex(addr))
	}
	for addr, perf := range state.Tournament.Perf {
		stored.Tournament.Perf[addrHex(addr)] = storedPerformance{
			Score: bigIntString(perf.Score),
			Wins:  perf.Wins,
			Games: perf.Games,
		}
	}
	return stored
}

func fromStoredState(stored *storedState) (*State, error) {
	owner, err := parseAddr(stored.Owner)
	if err != nil {
		return nil, err
	}
	authority, err := parseAddr(stored.Authority)
	if err != nil {
		return nil, err
	}
	state := NewState(owner, authority)
	state.Paused = stored.Paused
	for _, s := range stored.Banned {
		addr, err := parseAddr(s)
		if err != nil {
			return nil, err
		}
		state.Banned[addr] = true
	}
	for s, entry := range stored.Accounts {
		addr, err := parseAddr(s)
		if err != nil {
			return nil, err
		}
		acc := newAccount()
		if acc.BalanceNative, err = parseStoredAmount(entry.Native); err != nil {
			return nil, err
		}
		for tokenStr, balStr := range entry.Tokens {
			token, err := ParseTokenID(tokenStr)
			if err != nil {
				return nil, err
			}
			bal, err := parseStoredAmount(balStr)
			if err != nil {
				return nil, err
			}
			acc.Tokens[token] = bal
		}
		state.Accounts[addr] = acc
	}
	for s, nonce := range stored.LastNonce {
		addr, err := parseAddr(s)
		if err != nil {
			return nil, err
		}
		state.LastNonce[addr] = nonce
	}
	for s, nonces := range stored.UsedNonces {
		addr, err := parseAddr(s)
		if err != nil {
			return nil, err
		}
		used := make(map[uint64]bool, len(nonces))
		for _, nonce := range nonces {
			used[nonce] = true
		}
		state.UsedNonces[addr] = used
	}
	for _, tokenStr := range stored.TokenRegistry {
		token, err := ParseTokenID(tokenStr)
		if err != nil {
			return nil, err
		}
		state.TokenRegistry = append(state.TokenRegistry, token)
	}
	for tokenStr, amountStr := range stored.PrizePool {
		token, err := ParseTokenID(tokenStr)
		if err != nil {
			return nil, err
		}
		amount, err := parseStoredAmount(amountStr)
		if err != nil {
			return nil, err
		}
		state.PrizePool[token] = amount
	}
	state.Tournament = Tournament{
		Active:    stored.Tournament.Active,
		StartedAt: stored.Tournament.StartedAt,
		EndsAt:    stored.Tournament.EndsAt,
		Perf:      make(map[[20]byte]*Performance, len(stored.Tournament.Perf)),
	}
	for _, s := range stored.Tournament.Participants {
		addr, err := parseAddr(s)
		if err != nil {
			return nil, err
		}
		state.Tournament.Participants = append(state.Tournament.Participants, addr)
	}
	for s, perf := range stored.Tournament.Perf {
		addr, err := parseAddr(s)
		if err != nil {
			return nil, err
		}
		score, err := parseStoredAmount(perf.Score)
		if err != nil {
			return nil, err
		}
		state.Tournament.Perf[addr] = &Performance{Score: score, Wins: perf.Wins, Games: perf.Games}
	}
	return state, nil
}
