package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"findprotocol/config"
	"findprotocol/crypto"
	"findprotocol/native/fees"
	"findprotocol/native/launch"
	"findprotocol/native/mortgage"
	"findprotocol/native/position"
	"findprotocol/native/swaprouter"
	"findprotocol/native/token"
	"findprotocol/observability/logging"
	"findprotocol/rpc"
	"findprotocol/state"
	"findprotocol/storage"
)

const (
	rpcTokenEnv     = "FIND_RPC_TOKEN"
	environmentEnv  = "FIND_ENV"
	baseTokenSeed   = "findprotocol/token/find"
	mortgageSeed    = "findprotocol/module/mortgage"
	swapCustodySeed = "findprotocol/module/swap"
	feeSinkSeed     = "findprotocol/module/feesink"
)

// moduleAddress derives a deterministic address for protocol-owned accounts.
func moduleAddress(seed string) [20]byte {
	digest := ethcrypto.Keccak256([]byte(seed))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(environmentEnv))
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup("findd", env)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	tokens := token.NewLedger(manager)
	positions := position.NewLedger(manager)
	sink := fees.NewSink(manager)

	operatorKey, err := crypto.ReadKeystore(cfg.OperatorKeystore, "")
	if err != nil {
		logger.Error("failed to load operator key", "error", err)
		os.Exit(1)
	}
	operatorAddr := operatorKey.PubKey().Address().Raw()

	baseToken := moduleAddress(baseTokenSeed)
	mortgageAddr := moduleAddress(mortgageSeed)
	swapCustody := moduleAddress(swapCustodySeed)

	feeSink := moduleAddress(feeSinkSeed)
	if trimmed := strings.TrimSpace(cfg.FeeSink); trimmed != "" {
		decoded, err := crypto.DecodeAddress(trimmed)
		if err != nil {
			logger.Error("invalid fee sink address", "error", err)
			os.Exit(1)
		}
		feeSink = decoded.Raw()
	}
	authorizer := operatorAddr
	if trimmed := strings.TrimSpace(cfg.LaunchAuthorizer); trimmed != "" {
		decoded, err := crypto.DecodeAddress(trimmed)
		if err != nil {
			logger.Error("invalid launch authorizer address", "error", err)
			os.Exit(1)
		}
		authorizer = decoded.Raw()
	}

	if _, ok, err := tokens.Metadata(baseToken); err != nil {
		logger.Error("failed to read base token metadata", "error", err)
		os.Exit(1)
	} else if !ok {
		if err := tokens.Register(token.Metadata{
			Address:  baseToken,
			Symbol:   cfg.BaseTokenSymbol,
			Name:     cfg.BaseTokenName,
			Decimals: 18,
		}); err != nil {
			logger.Error("failed to register base token", "error", err)
			os.Exit(1)
		}
		logger.Info("registered base token", "symbol", cfg.BaseTokenSymbol)
	}

	pool := swaprouter.NewPoolRouter(manager, tokens, swapCustody)

	launcher := launch.NewEngine(baseToken, mortgageAddr)
	launcher.SetState(manager)
	launcher.SetCollaborators(tokens, pool)
	launcher.SetAuthorizer(authorizer)
	launcher.SetPoolFeePpm(cfg.PoolFeePpm)

	engine := mortgage.NewEngine(baseToken, mortgageAddr)
	engine.SetLedgers(tokens, positions)
	engine.SetRouter(pool, swapCustody)
	engine.SetFeeSink(feeSink, sink)
	engine.SetCurveRegistry(launcher)
	engine.SetPoolFeePpm(cfg.PoolFeePpm)
	if err := engine.SetFeeBps(cfg.FeeBps); err != nil {
		logger.Error("invalid fee rate", "error", err)
		os.Exit(1)
	}

	authToken := strings.TrimSpace(os.Getenv(rpcTokenEnv))
	if authToken == "" {
		authToken = strings.TrimSpace(cfg.RPCAuthToken)
	}
	server := rpc.NewServer(rpc.Dependencies{
		Engine:    engine,
		Launcher:  launcher,
		Tokens:    tokens,
		Positions: positions,
		Sink:      sink,
		Pool:      pool,
	}, rpc.Options{
		AuthToken:       authToken,
		RequestsPerMin:  cfg.RPCRateLimit,
		Burst:           cfg.RPCBurst,
		MaxRequestBytes: cfg.MaxRequestBodyBytes,
		Logger:          logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.RPCAddress)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("rpc server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}
}
