package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tenexium/tenex-core/internal/config"
	"github.com/tenexium/tenex-core/internal/gateway"
	"github.com/tenexium/tenex-core/internal/logger"
	"github.com/tenexium/tenex-core/internal/orchestrator"
	"github.com/tenexium/tenex-core/internal/protocol"
	"github.com/tenexium/tenex-core/internal/state"
	"github.com/tenexium/tenex-core/internal/types"
	"github.com/tenexium/tenex-core/internal/web"

	sdkmath "cosmossdk.io/math"
)

const (
	// BUYBACK_POLL_INTERVAL is how often the buyback loop checks whether a
	// window is due; the window length itself is a protocol parameter.
	BUYBACK_POLL_INTERVAL = 1 * time.Minute

	// SIM_PARITY_PRICE is the simulator's fixed token price in paper mode.
	SIM_PARITY_PRICE = 1_000_000_000
)

// main is the entry point for the tenex node.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Tenex Core Starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: config.DBHost, Port: config.DBPort,
		User: config.DBUser, Password: config.DBPassword,
		DBName: config.DBName, SSLMode: config.DBSSLMode,
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// Load Protocol Parameters
	params, err := state.LoadActiveParams()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load active protocol parameters")
	}
	if params == nil {
		log.Info().Msg("No active protocol parameters found, saving defaults.")
		defaults := config.DefaultProtocolParams()
		if _, err := state.SaveProtocolParams(defaults, 1, true); err != nil {
			log.Fatal().Err(err).Msg("Failed to save initial default protocol parameters.")
		}
		params = &defaults
	}
	log.Info().Msg("Protocol parameters loaded successfully.")

	// --- 2. Gateway Initialization (with Safety Switch) ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var gw gateway.StakingGateway
	switch config.Mode {
	case "live":
		log.Warn().Msg("Initializing in LIVE mode. Real staking transactions will be broadcast.")
		evmGateway, err := gateway.NewEVMGateway(ctx, config.EVMEndpoint, config.SignerKeyHex, config.NetUID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize EVM gateway")
		}
		gw = evmGateway
	case "sim":
		log.Info().Msg("Initializing in SIM mode against the in-memory gateway.")
		gw = gateway.NewSimulator(sdkmath.NewInt(SIM_PARITY_PRICE))
	default:
		log.Fatal().Str("mode", config.Mode).Msg("TENEX_MODE must be 'live' or 'sim'. Halting to prevent accidental execution.")
	}

	validator := types.HotkeyFromBytes(common.FromHex(config.ValidatorHotkey))
	if validator.IsZero() {
		log.Fatal().Msg("TENEX_VALIDATOR_HOTKEY is not a valid hotkey")
	}
	beneficiary := common.HexToAddress(config.VestingBeneficiary)

	// --- 3. Build the Protocol ---
	st := protocol.NewState(*params)
	orch := orchestrator.New(st, gw, validator, beneficiary)

	if err := orch.AddPair(ctx, types.PairID(config.NetUID), params.Tiers[0].MaxLeverage); err != nil {
		log.Fatal().Err(err).Msg("Failed to register the trading pair")
	}
	log.Info().Uint64("netuid", config.NetUID).Msg("Trading pair registered")

	// --- 4. Start Web Server ---
	webPort := strconv.Itoa(config.WebPort)
	webServer := web.NewWebServer(orch, webPort)
	go func() {
		log.Info().Str("port", webPort).Msg("Starting web API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 5. Start Buyback Loop ---
	go orch.RunBuybackLoop(ctx, BUYBACK_POLL_INTERVAL)

	// --- 6. Wait for Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")
	cancel()
}
