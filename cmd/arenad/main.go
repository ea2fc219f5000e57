package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"turingarena/config"
	"turingarena/core/events"
	"turingarena/core/types"
	"turingarena/crypto"
	"turingarena/native/settlement"
	"turingarena/observability/logging"
	"turingarena/rpc"
	"turingarena/services/authority"
	"turingarena/storage"
)

const authorityPassEnv = "ARENA_AUTHORITY_PASS"

// logEmitter mirrors settlement events onto the structured log so operators
// can follow ledger mutations without an indexer attached.
type logEmitter struct {
	log *slog.Logger
}

func (e *logEmitter) Emit(ev events.Event) {
	attrs := []any{"type", ev.EventType()}
	if rendered, ok := ev.(interface{ Event() *types.Event }); ok {
		for k, v := range rendered.Event().Attributes {
			attrs = append(attrs, k, v)
		}
	}
	e.log.Info("settlement event", attrs...)
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("ARENA_ENV"))
	logger := logging.Setup("arenad", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	params, err := cfg.EngineParams()
	if err != nil {
		logger.Error("invalid engine parameters", "err", err)
		os.Exit(1)
	}
	owner, err := cfg.Owner()
	if err != nil {
		logger.Error("invalid owner address", "err", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data directory", "err", err)
		os.Exit(1)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "settlement"))
	if err != nil {
		logger.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	authorityKey, err := loadOrCreateAuthorityKey(cfg, logger)
	if err != nil {
		logger.Error("failed to load authority key", "err", err)
		os.Exit(1)
	}
	var authorityAddr [20]byte
	copy(authorityAddr[:], authorityKey.PubKey().Address().Bytes())

	store := settlement.NewKVStore(db)
	state, found, err := store.LoadState()
	if err != nil {
		logger.Error("failed to load settlement state", "err", err)
		os.Exit(1)
	}
	if !found {
		state = settlement.NewState(owner, authorityAddr)
		logger.Info("initialized fresh settlement state",
			"owner", crypto.NewAddress(crypto.ArenaPrefix, owner[:]).String(),
			"authority", authorityKey.PubKey().Address().String())
	}

	engine := settlement.NewEngine(params, state)
	engine.SetStore(store)
	engine.SetEmitter(&logEmitter{log: logger})

	vault := settlement.NewMemoryVault()
	engine.SetVault(vault)

	policy, err := authority.LoadPolicy(cfg.AuthorityPolicyPath)
	if err != nil {
		logger.Error("failed to load authority policy", "err", err)
		os.Exit(1)
	}
	signer, err := authority.NewSigner(authorityKey, cfg.ChainID, params.Contract, params.NoncePolicy, policy, engine)
	if err != nil {
		logger.Error("failed to build authority signer", "err", err)
		os.Exit(1)
	}
	if signer.Address() != engine.AuthorityKey() {
		logger.Warn("keystore authority differs from recorded authority; signed payloads will be rejected until rotated",
			"keystore", authorityKey.PubKey().Address().String(),
			"recorded", crypto.NewAddress(crypto.ArenaPrefix, func() []byte { a := engine.AuthorityKey(); return a[:] }()).String())
	}

	server := rpc.NewServer(engine, vault, signer, owner, logger)
	logger.Info("arena settlement daemon ready",
		"network", cfg.NetworkName,
		"chain_id", cfg.ChainID,
		"listen", cfg.ListenAddress)
	if err := server.Start(cfg.ListenAddress); err != nil {
		logger.Error("rpc server stopped", "err", err)
		os.Exit(1)
	}
}

func loadOrCreateAuthorityKey(cfg *config.Config, logger *slog.Logger) (*crypto.PrivateKey, error) {
	passphrase := os.Getenv(authorityPassEnv)
	if passphrase == "" {
		return nil, fmt.Errorf("%s must be set to unlock the authority keystore", authorityPassEnv)
	}
	path := cfg.AuthorityKeystorePath
	if _, err := os.Stat(path); err == nil {
		return crypto.LoadFromKeystore(path, passphrase)
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	if err := crypto.SaveToKeystore(path, key, passphrase); err != nil {
		return nil, err
	}
	logger.Info("generated new authority key", "path", path, "address", key.PubKey().Address().String())
	return key, nil
}
