package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/tenexium/tenex-core/internal/config"
	"github.com/tenexium/tenex-core/internal/logger"
	"github.com/tenexium/tenex-core/internal/orchestrator"
	"github.com/tenexium/tenex-core/internal/protocol"
	"github.com/tenexium/tenex-core/internal/state"
	"github.com/tenexium/tenex-core/internal/types"
	"github.com/tenexium/tenex-core/internal/utils"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the protocol entry points over HTTP.
type WebServer struct {
	router *mux.Router
	orch   *orchestrator.Orchestrator
	port   string
}

// NewWebServer creates a new web server instance
func NewWebServer(orch *orchestrator.Orchestrator, port string) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router: mux.NewRouter(),
		orch:   orch,
		port:   port,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/stats", ws.handleGetStats).Methods("GET")
	api.HandleFunc("/parameters", ws.handleGetParameters).Methods("GET")
	api.HandleFunc("/lp/{address}", ws.handleGetLpInfo).Methods("GET")
	api.HandleFunc("/positions/{address}", ws.handleGetPositions).Methods("GET")
	api.HandleFunc("/liquidator/{address}", ws.handleGetLiquidator).Methods("GET")
	api.HandleFunc("/vesting/{address}", ws.handleGetVesting).Methods("GET")
	api.HandleFunc("/events", ws.handleGetEvents).Methods("GET")
	api.HandleFunc("/buybacks", ws.handleGetBuybacks).Methods("GET")

	api.HandleFunc("/associate", ws.handleAssociate).Methods("POST")
	api.HandleFunc("/positions/open", ws.handleOpenPosition).Methods("POST")
	api.HandleFunc("/positions/close", ws.handleClosePosition).Methods("POST")
	api.HandleFunc("/positions/collateral", ws.handleAddCollateral).Methods("POST")
	api.HandleFunc("/positions/liquidate", ws.handleLiquidate).Methods("POST")
	api.HandleFunc("/liquidity/add", ws.handleAddLiquidity).Methods("POST")
	api.HandleFunc("/liquidity/remove", ws.handleRemoveLiquidity).Methods("POST")
	api.HandleFunc("/rewards/lp/claim", ws.handleClaimLpRewards).Methods("POST")
	api.HandleFunc("/rewards/liquidator/claim", ws.handleClaimLiquidatorRewards).Methods("POST")
	api.HandleFunc("/vesting/claim", ws.handleClaimVested).Methods("POST")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/pause", ws.handlePause).Methods("POST")
	admin.HandleFunc("/unpause", ws.handleUnpause).Methods("POST")
	admin.HandleFunc("/parameters", ws.handleSetParameters).Methods("POST")
	admin.HandleFunc("/pairs", ws.handleAddPair).Methods("POST")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// statusForError maps protocol sentinels to HTTP status codes so callers
// can distinguish retryable states from bad requests.
func statusForError(err error) int {
	switch {
	case errors.Is(err, protocol.ErrPositionNotFound),
		errors.Is(err, protocol.ErrPairNotFound),
		errors.Is(err, protocol.ErrNoVestingSchedules):
		return http.StatusNotFound
	case errors.Is(err, protocol.ErrAmountZero),
		errors.Is(err, protocol.ErrBelowMinimum),
		errors.Is(err, protocol.ErrAmountTooLarge),
		errors.Is(err, protocol.ErrLeverageTooHigh),
		errors.Is(err, protocol.ErrLeverageTooLow),
		errors.Is(err, protocol.ErrPositionExists),
		errors.Is(err, protocol.ErrPairInactive),
		errors.Is(err, protocol.ErrInvalidJustification),
		errors.Is(err, protocol.ErrSelfLiquidation),
		errors.Is(err, protocol.ErrNoAssociation),
		errors.Is(err, protocol.ErrNothingToClaim):
		return http.StatusBadRequest
	case errors.Is(err, protocol.ErrPaused),
		errors.Is(err, protocol.ErrBreakerOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, protocol.ErrCooldown),
		errors.Is(err, protocol.ErrReentrantCall),
		errors.Is(err, protocol.ErrInsufficientLiquidity),
		errors.Is(err, protocol.ErrUtilizationTooHigh),
		errors.Is(err, protocol.ErrInsufficientStake),
		errors.Is(err, protocol.ErrSlippageExceeded),
		errors.Is(err, protocol.ErrInsufficientProceeds),
		errors.Is(err, protocol.ErrNotLiquidatable),
		errors.Is(err, protocol.ErrBuybackNotDue),
		errors.Is(err, protocol.ErrBuybackEmpty):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func parseAmount(s string) (sdkmath.Int, bool) {
	if s == "" {
		return sdkmath.Int{}, false
	}
	return sdkmath.NewIntFromString(s)
}

// handleHealth returns server and database health
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := ws.orch.ProtocolStats()

	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
	}

	status := "OK"
	statusCode := http.StatusOK
	if stats.Paused || stats.CircuitBreaker {
		status = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"protocol": map[string]interface{}{
			"paused":          stats.Paused,
			"circuit_breaker": stats.CircuitBreaker,
			"open_positions":  stats.OpenPositions,
		},
		"database_healthy": dbHealthy,
	})
}

// handleGetStats returns the protocol-wide totals
func (ws *WebServer) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats := ws.orch.ProtocolStats()

	display := map[string]float64{}
	if tao, err := utils.WeiToTao(stats.TotalLpStakes); err == nil {
		display["total_lp_stakes_tao"] = tao
	}
	if tao, err := utils.WeiToTao(stats.TotalBorrowed); err == nil {
		display["total_borrowed_tao"] = tao
	}
	if tao, err := utils.WeiToTao(stats.ProtocolFees); err == nil {
		display["protocol_fees_tao"] = tao
	}
	if tokens, err := utils.RaoToToken(stats.CumulativeBuyback); err == nil {
		display["cumulative_buyback_tokens"] = tokens
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"stats":   stats,
		"display": display,
	})
}

// handleGetParameters returns the active parameter set
func (ws *WebServer) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"parameters": ws.orch.Params(),
		"timestamp":  time.Now().UTC(),
	})
}

// handleGetLpInfo returns a provider's stake, shares and claimable rewards
func (ws *WebServer) handleGetLpInfo(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(mux.Vars(r)["address"])
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid address")
		return
	}

	info, err := ws.orch.LpInfo(addr)
	if err != nil {
		webLogger.Error().Err(err).Str("address", addr.Hex()).Msg("Failed to get LP info")
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, info)
}

// handleGetPositions returns a user's open positions
func (ws *WebServer) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(mux.Vars(r)["address"])
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid address")
		return
	}

	positions := ws.orch.Positions(addr)
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"positions": positions,
		"count":     len(positions),
	})
}

// handleGetLiquidator returns a liquidator's score and claimable rewards
func (ws *WebServer) handleGetLiquidator(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(mux.Vars(r)["address"])
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid address")
		return
	}

	score, claimable, err := ws.orch.LiquidatorScore(addr)
	if err != nil {
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"score":         score,
		"claimable_wei": claimable,
	})
}

// handleGetVesting returns a beneficiary's vesting schedules
func (ws *WebServer) handleGetVesting(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(mux.Vars(r)["address"])
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid address")
		return
	}

	schedules, vested, err := ws.orch.VestingSchedules(r.Context(), addr)
	if err != nil {
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"schedules":  schedules,
		"vested_rao": vested,
	})
}

// handleGetEvents returns recent operation events from the database
func (ws *WebServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	kind := r.URL.Query().Get("kind")

	events, err := state.RecentEvents(kind, limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent events")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve events")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  limit,
	})
}

// handleGetBuybacks returns recent buyback executions from the database
func (ws *WebServer) handleGetBuybacks(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	buybacks, err := state.RecentBuybacks(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent buybacks")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve buybacks")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"buybacks": buybacks,
		"count":    len(buybacks),
	})
}

type associateRequest struct {
	User   string `json:"user"`
	Hotkey string `json:"hotkey"`
}

func (ws *WebServer) handleAssociate(w http.ResponseWriter, r *http.Request) {
	var req associateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	user, ok := parseAddress(req.User)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid user address")
		return
	}
	hotkey := types.HotkeyFromBytes(common.FromHex(req.Hotkey))

	if err := ws.orch.Associate(r.Context(), user, hotkey); err != nil {
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"user":   user.Hex(),
		"hotkey": hotkey.String(),
	})
}

type openPositionRequest struct {
	User          string `json:"user"`
	PairID        uint16 `json:"pair_id"`
	CollateralWei string `json:"collateral_wei"`
	Leverage      string `json:"leverage"`
	MaxSlippage   string `json:"max_slippage,omitempty"`
}

func (ws *WebServer) handleOpenPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	user, ok := parseAddress(req.User)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid user address")
		return
	}
	collateral, ok := parseAmount(req.CollateralWei)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid collateral amount")
		return
	}
	leverage, ok := parseAmount(req.Leverage)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid leverage")
		return
	}
	maxSlippage := sdkmath.ZeroInt()
	if req.MaxSlippage != "" {
		if maxSlippage, ok = parseAmount(req.MaxSlippage); !ok {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid max slippage")
			return
		}
	}

	pos, err := ws.orch.OpenPosition(r.Context(), user, types.PairID(req.PairID), collateral, leverage, maxSlippage)
	if err != nil {
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, pos)
}

type closePositionRequest struct {
	User        string `json:"user"`
	PairID      uint16 `json:"pair_id"`
	AmountRao   string `json:"amount_rao,omitempty"` // empty or zero closes fully
	MaxSlippage string `json:"max_slippage,omitempty"`
}

func (ws *WebServer) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	var req closePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	user, ok := parseAddress(req.User)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid user address")
		return
	}
	amount := sdkmath.ZeroInt()
	if req.AmountRao != "" {
		if amount, ok = parseAmount(req.AmountRao); !ok {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid close amount")
			return
		}
	}
	maxSlippage := sdkmath.ZeroInt()
	if req.MaxSlippage != "" {
		if maxSlippage, ok = parseAmount(req.MaxSlippage); !ok {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid max slippage")
			return
		}
	}

	res, err := ws.orch.ClosePosition(r.Context(), user, types.PairID(req.PairID), amount, maxSlippage)
	if err != nil {
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, res)
}

type addCollateralRequest struct {
	User      string `json:"user"`
	PairID    uint16 `json:"pair_id"`
	AmountWei string `json:"amount_wei"`
}

func (ws *WebServer) handleAddCollateral(w http.ResponseWriter, r *http.Request) {
	var req addCollateralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	user, ok := parseAddress(req.User)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid user address")
		return
	}
	amount, ok := parseAmount(req.AmountWei)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	if err := ws.orch.AddCollateral(r.Context(), user, types.PairID(req.PairID), amount); err != nil {
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"user":       user.Hex(),
		"pair_id":    req.PairID,
		"amount_wei": amount,
	})
}

type liquidateRequest struct {
	Liquidator    string `json:"liquidator"`
	User          string `json:"user"`
	PairID        uint16 `json:"pair_id"`
	Justification string `json:"justification"`
	ContentHash   string `json:"content_hash"`
}

func (ws *WebServer) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	liquidator, ok := parseAddress(req.Liquidator)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid liquidator address")
		return
	}
	user, ok := parseAddress(req.User)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid user address")
		return
	}

	res, err := ws.orch.LiquidatePosition(r.Context(), liquidator, user, types.PairID(req.PairID), req.Justification, common.HexToHash(req.ContentHash))
	if err != nil {
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, res)
}

type liquidityRequest struct {
	Provider  string `json:"provider"`
	AmountWei string `json:"amount_wei"`
}

func (ws *WebServer) handleAddLiquidity(w http.ResponseWriter, r *http.Request) {
	ws.handleLiquidityChange(w, r, ws.orch.AddLiquidity)
}

func (ws *WebServer) handleRemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	ws.handleLiquidityChange(w, r, ws.orch.RemoveLiquidity)
}

func (ws *WebServer) handleLiquidityChange(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, provider common.Address, amountWei sdkmath.Int) error) {
	var req liquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	provider, ok := parseAddress(req.Provider)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid provider address")
		return
	}
	amount, ok := parseAmount(req.AmountWei)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	if err := op(r.Context(), provider, amount); err != nil {
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"provider":   provider.Hex(),
		"amount_wei": amount,
	})
}

type claimRequest struct {
	Address string `json:"address"`
}

func (ws *WebServer) handleClaimLpRewards(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	addr, ok := parseAddress(req.Address)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid address")
		return
	}

	claimed, err := ws.orch.ClaimLpRewards(r.Context(), addr)
	if err != nil {
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"address":     addr.Hex(),
		"claimed_wei": claimed,
	})
}

func (ws *WebServer) handleClaimLiquidatorRewards(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	addr, ok := parseAddress(req.Address)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid address")
		return
	}

	claimed, err := ws.orch.ClaimLiquidatorRewards(r.Context(), addr)
	if err != nil {
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"address":     addr.Hex(),
		"claimed_wei": claimed,
	})
}

func (ws *WebServer) handleClaimVested(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	addr, ok := parseAddress(req.Address)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid address")
		return
	}

	claimed, err := ws.orch.ClaimVested(r.Context(), addr)
	if err != nil {
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"address":     addr.Hex(),
		"claimed_rao": claimed,
	})
}

func (ws *WebServer) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := ws.orch.Pause(r.Context()); err != nil {
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]bool{"paused": true})
}

func (ws *WebServer) handleUnpause(w http.ResponseWriter, r *http.Request) {
	if err := ws.orch.Unpause(r.Context()); err != nil {
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]bool{"paused": false})
}

func (ws *WebServer) handleSetParameters(w http.ResponseWriter, r *http.Request) {
	var params config.ProtocolParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := ws.orch.SetParameters(r.Context(), params); err != nil {
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"parameters": params,
	})
}

type addPairRequest struct {
	PairID      uint16 `json:"pair_id"`
	MaxLeverage string `json:"max_leverage"`
	Active      *bool  `json:"active,omitempty"`
}

func (ws *WebServer) handleAddPair(w http.ResponseWriter, r *http.Request) {
	var req addPairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Active-only toggle when no leverage is supplied.
	if req.MaxLeverage == "" && req.Active != nil {
		if err := ws.orch.SetPairActive(r.Context(), types.PairID(req.PairID), *req.Active); err != nil {
			ws.writeErrorResponse(w, statusForError(err), err.Error())
			return
		}
		ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
			"pair_id":   req.PairID,
			"is_active": *req.Active,
		})
		return
	}

	maxLeverage, ok := parseAmount(req.MaxLeverage)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid max leverage")
		return
	}
	if err := ws.orch.AddPair(r.Context(), types.PairID(req.PairID), maxLeverage); err != nil {
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pair_id":      req.PairID,
		"max_leverage": maxLeverage,
	})
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
