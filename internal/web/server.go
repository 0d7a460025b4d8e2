package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"

	"github.com/elys-network/hedgefund/internal/codec"
	"github.com/elys-network/hedgefund/internal/logger"
	"github.com/elys-network/hedgefund/internal/metrics"
	"github.com/elys-network/hedgefund/internal/state"
	"github.com/elys-network/hedgefund/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// Chain is the part of the runtime exposed over HTTP.
type Chain interface {
	Balance(addr common.Address) sdkmath.Int
	Fund(addr common.Address, amount sdkmath.Int) error
	SendTransaction(ctx context.Context, tx types.Transaction) (*types.TransactionResult, error)
	Call(ctx context.Context, from, to common.Address, data []byte) ([]byte, error)
}

// Ledger answers vault queries without going through the call codec.
type Ledger interface {
	UserInfo(addr common.Address) types.UserInfo
	State() types.LedgerState
}

// Persister saves state changed outside a transaction, such as faucet funding.
type Persister interface {
	Persist(ctx context.Context) error
}

// Config holds the web server dependencies. Metrics and Persister are optional. TxEnabled and
// FaucetEnabled turn on unauthenticated development endpoints and default to off.
type Config struct {
	Port          string
	Chain         Chain
	Ledger        Ledger
	VaultAddress  common.Address
	Metrics       *metrics.Metrics
	Persister     Persister
	TxEnabled     bool
	FaucetEnabled bool
	FaucetMaxWei  sdkmath.Int
}

// WebServer serves the vault API
type WebServer struct {
	router *mux.Router
	port   string
	cfg    Config
	server *http.Server
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) *WebServer {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.FaucetMaxWei.IsNil() {
		cfg.FaucetMaxWei = sdkmath.ZeroInt()
	}

	server := &WebServer{
		router: mux.NewRouter(),
		port:   cfg.Port,
		cfg:    cfg,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	if ws.cfg.Metrics != nil {
		ws.router.Handle("/metrics", ws.cfg.Metrics.Handler()).Methods("GET")
	}

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/users/{address}", ws.handleGetUser).Methods("GET")
	api.HandleFunc("/agent", ws.handleGetAgent).Methods("GET")
	api.HandleFunc("/selectors", ws.handleGetSelectors).Methods("GET")
	api.HandleFunc("/tx", ws.handleSendTransaction).Methods("POST", "OPTIONS")
	api.HandleFunc("/call", ws.handleCall).Methods("POST", "OPTIONS")
	api.HandleFunc("/faucet", ws.handleFaucet).Methods("POST", "OPTIONS")
	api.HandleFunc("/transactions", ws.handleGetTransactions).Methods("GET")
	api.HandleFunc("/transactions/{hash}", ws.handleGetTransaction).Methods("GET")
	api.HandleFunc("/cycles", ws.handleGetCycles).Methods("GET")
	api.HandleFunc("/cycles/{id:[0-9]+}", ws.handleGetCycle).Methods("GET")
	api.HandleFunc("/summary", ws.handleGetVaultSummary).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
	if ws.cfg.Metrics != nil {
		ws.router.Use(ws.cfg.Metrics.Middleware)
	}
}

// Handler returns the configured router.
func (ws *WebServer) Handler() http.Handler { return ws.router }

// Start starts the web server and blocks until it stops.
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	err := ws.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops a started server.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	return ws.server.Shutdown(ctx)
}

// handleHealth reports runtime, vault and database status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	ledger := ws.cfg.Ledger.State()

	dbStatus := "disabled"
	healthy := true
	if state.DB != nil {
		dbStatus = "ok"
		if err := state.TestDBConnection(); err != nil {
			dbStatus = "unreachable"
			healthy = false
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !healthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"gc_cycles":        memStats.NumGC,
		},
		"vault": map[string]interface{}{
			"address":      ws.cfg.VaultAddress.Hex(),
			"initialized":  ledger.Initialized,
			"total_shares": ledger.TotalShares.String(),
			"custody":      ws.cfg.Chain.Balance(ws.cfg.VaultAddress).String(),
		},
		"database": dbStatus,
	}
	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetUser returns the get_user_info view of an address
func (ws *WebServer) handleGetUser(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid address")
		return
	}
	info := ws.cfg.Ledger.UserInfo(common.HexToAddress(raw))
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"address":      info.Address,
		"shares":       info.Shares,
		"total_shares": info.TotalShares,
		"info":         info.String(),
	})
}

// handleGetAgent returns the get_agent_invests view
func (ws *WebServer) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	ledger := ws.cfg.Ledger.State()
	invests := types.AgentInvests{
		TotalShares:    ledger.TotalShares,
		CustodyBalance: ws.cfg.Chain.Balance(ws.cfg.VaultAddress),
		IdleBalance:    ledger.IdleBalance,
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"total_shares":    invests.TotalShares,
		"custody_balance": invests.CustodyBalance,
		"idle_balance":    invests.IdleBalance,
		"info":            invests.String(),
	})
}

// handleGetSelectors lists the vault and venue interfaces
func (ws *WebServer) handleGetSelectors(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"vault": codec.Vault.Methods(),
		"venue": codec.Venue.Methods(),
	})
}

type txRequest struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"` // Defaults to the vault
	Value sdkmath.Int     `json:"value"`
	Data  hexutil.Bytes   `json:"data"`
}

// handleSendTransaction executes raw calldata as a transaction from any sender. Dev only.
func (ws *WebServer) handleSendTransaction(w http.ResponseWriter, r *http.Request) {
	if !ws.cfg.TxEnabled {
		ws.writeErrorResponse(w, http.StatusForbidden, "Transaction endpoint is disabled")
		return
	}
	var req txRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.From == (common.Address{}) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Missing sender")
		return
	}
	to := ws.cfg.VaultAddress
	if req.To != nil {
		to = *req.To
	}

	result, err := ws.cfg.Chain.SendTransaction(r.Context(), types.Transaction{
		From:  req.From,
		To:    to,
		Value: req.Value,
		Data:  req.Data,
	})
	if result == nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, result)
}

type callRequest struct {
	From common.Address  `json:"from"`
	To   *common.Address `json:"to,omitempty"`
	Data hexutil.Bytes   `json:"data"`
}

// handleCall executes a read-only call and decodes string results of vault views
func (ws *WebServer) handleCall(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	to := ws.cfg.VaultAddress
	if req.To != nil {
		to = *req.To
	}

	out, err := ws.cfg.Chain.Call(r.Context(), req.From, to, req.Data)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	response := map[string]interface{}{"data": hexutil.Bytes(out)}
	if to == ws.cfg.VaultAddress {
		method := codec.Vault.MethodName(req.Data)
		if codec.Vault.IsView(method) {
			if decoded, err := codec.Vault.UnpackString(method, out); err == nil {
				response["method"] = method
				response["decoded"] = decoded
			}
		}
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

type faucetRequest struct {
	Address common.Address `json:"address"`
	Amount  sdkmath.Int    `json:"amount"`
}

// handleFaucet mints development funds into an account
func (ws *WebServer) handleFaucet(w http.ResponseWriter, r *http.Request) {
	if !ws.cfg.FaucetEnabled {
		ws.writeErrorResponse(w, http.StatusForbidden, "Faucet is disabled")
		return
	}
	var req faucetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Address == (common.Address{}) || req.Amount.IsNil() || !req.Amount.IsPositive() {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Address and a positive amount are required")
		return
	}
	if req.Amount.GT(ws.cfg.FaucetMaxWei) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Amount exceeds faucet limit of "+ws.cfg.FaucetMaxWei.String())
		return
	}

	if err := ws.cfg.Chain.Fund(req.Address, req.Amount); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if ws.cfg.Persister != nil {
		if err := ws.cfg.Persister.Persist(r.Context()); err != nil {
			webLogger.Error().Err(err).Msg("Failed to persist faucet funding")
		}
	}

	webLogger.Info().Str("address", req.Address.Hex()).Str("amount", req.Amount.String()).Msg("Faucet funded account")
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"address": req.Address,
		"balance": ws.cfg.Chain.Balance(req.Address),
	})
}

// handleGetTransactions returns recent receipts
func (ws *WebServer) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	receipts, err := state.ListReceipts(r.Context(), parseLimit(r))
	if err != nil {
		ws.writeStoreError(w, err, "Failed to retrieve transactions")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"transactions": receipts,
		"count":        len(receipts),
	})
}

// handleGetTransaction returns one receipt by hash
func (ws *WebServer) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	hash := mux.Vars(r)["hash"]
	receipt, err := state.GetReceipt(r.Context(), hash)
	if errors.Is(err, state.ErrReceiptNotFound) {
		ws.writeErrorResponse(w, http.StatusNotFound, "Transaction not found")
		return
	}
	if err != nil {
		ws.writeStoreError(w, err, "Failed to retrieve transaction")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, receipt)
}

// handleGetCycles returns recent keeper cycles
func (ws *WebServer) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)
	cycles, err := state.GetRecentCycles(r.Context(), limit)
	if err != nil {
		ws.writeStoreError(w, err, "Failed to retrieve cycles")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"cycles": cycles,
		"count":  len(cycles),
		"limit":  limit,
	})
}

// handleGetCycle returns a specific cycle by ID
func (ws *WebServer) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid cycle ID")
		return
	}
	cycle, err := state.GetCycleByID(r.Context(), id)
	if errors.Is(err, state.ErrCycleNotFound) {
		ws.writeErrorResponse(w, http.StatusNotFound, "Cycle not found")
		return
	}
	if err != nil {
		ws.writeStoreError(w, err, "Failed to retrieve cycle")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, cycle)
}

// handleGetVaultSummary returns vault summary statistics
func (ws *WebServer) handleGetVaultSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := state.GetVaultSummary(r.Context())
	if err != nil {
		ws.writeStoreError(w, err, "Failed to retrieve vault summary")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}

func parseLimit(r *http.Request) int {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}
	return limit
}

// writeStoreError maps persistence errors to responses
func (ws *WebServer) writeStoreError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, state.ErrDatabaseNotInitialized) {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Database is not configured")
		return
	}
	webLogger.Error().Err(err).Msg(message)
	ws.writeErrorResponse(w, http.StatusInternalServerError, message)
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

// WriteHeader captures the status code
func (rw *responseWriterWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

