package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ahmadzakiakmal/iota-tx-service/authenticator"
	"github.com/ahmadzakiakmal/iota-tx-service/domain"
	"github.com/ahmadzakiakmal/iota-tx-service/service"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/rs/cors"
)

// MaxBodyBytes bounds POST bodies.
const MaxBodyBytes = 1 << 20

// TransactionService is what the routes need from the service layer.
type TransactionService interface {
	AddTransaction(ctx context.Context, envelope string, description *string) (*service.AddResult, error)
	GetTransaction(ctx context.Context, digest string) (*service.TransactionView, error)
	ListBySender(ctx context.Context, address string, limit int) ([]service.TransactionSummary, error)
	Ready(ctx context.Context) error
}

// Deriver produces authenticators for shared objects.
type Deriver interface {
	DeriveFromText(ctx context.Context, address string) (*authenticator.SignaturePayload, error)
}

type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// WebServer handles HTTP requests
type WebServer struct {
	httpAddr  string
	server    *http.Server
	handler   http.Handler
	logger    cmtlog.Logger
	startTime time.Time
	txs       TransactionService
	deriver   Deriver
}

// AddTransactionRequest is the body of POST /add_transaction
type AddTransactionRequest struct {
	TxBytes     string  `json:"tx_bytes"`
	Description *string `json:"description,omitempty"`
}

// NewWebServer creates a new web server
func NewWebServer(cfg Config, txs TransactionService, deriver Deriver, logger cmtlog.Logger) *WebServer {
	mux := http.NewServeMux()

	ws := &WebServer{
		httpAddr:  ":" + cfg.Port,
		logger:    logger.With("module", "server"),
		startTime: time.Now(),
		txs:       txs,
		deriver:   deriver,
	}

	// Register routes
	mux.HandleFunc("GET /health", ws.handleHealth)
	mux.HandleFunc("GET /ready", ws.handleReady)
	mux.HandleFunc("GET /transaction/{digest}", ws.handleGetTransaction)
	mux.HandleFunc("POST /add_transaction", ws.handleAddTransaction)
	mux.HandleFunc("GET /derive_auth_signature/{address}", ws.handleDeriveAuthSignature)
	mux.HandleFunc("GET /transactions/sender/{address}", ws.handleListBySender)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
			http.MethodDelete, http.MethodConnect, http.MethodOptions, http.MethodTrace,
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{RequestIDHeader},
	})
	ws.handler = c.Handler(ws.withRequestID(mux))

	ws.server = &http.Server{
		Addr:         ws.httpAddr,
		Handler:      ws.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return ws
}

// Handler exposes the full middleware chain
func (ws *WebServer) Handler() http.Handler {
	return ws.handler
}

// Start starts the web server
func (ws *WebServer) Start() error {
	ws.logger.Info("Starting web server", "addr", ws.httpAddr)
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ws.logger.Error("web server error: ", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the web server
func (ws *WebServer) Shutdown(ctx context.Context) error {
	ws.logger.Info("Shutting down web server", "uptime", time.Since(ws.startTime).String())
	return ws.server.Shutdown(ctx)
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (ws *WebServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := ws.txs.Ready(r.Context()); err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"uptime": time.Since(ws.startTime).Round(time.Second).String(),
	})
}

func (ws *WebServer) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	view, err := ws.txs.GetTransaction(r.Context(), r.PathValue("digest"))
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (ws *WebServer) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	var req AddTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeError(w, r, domain.Wrap(domain.CodeInvalidInput, "Invalid request body", err))
		return
	}

	res, err := ws.txs.AddTransaction(r.Context(), req.TxBytes, req.Description)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (ws *WebServer) handleDeriveAuthSignature(w http.ResponseWriter, r *http.Request) {
	payload, err := ws.deriver.DeriveFromText(r.Context(), r.PathValue("address"))
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (ws *WebServer) handleListBySender(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			ws.writeError(w, r, domain.New(domain.CodeInvalidInput, "Invalid limit"))
			return
		}
		limit = n
	}

	txs, err := ws.txs.ListBySender(r.Context(), r.PathValue("address"), limit)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
	})
}

// StatusFor maps an error code onto the HTTP status returned for it
func StatusFor(code domain.Code) int {
	switch code {
	case domain.CodeInvalidInput, domain.CodeObjectNotFound, domain.CodeNotSharedObject:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs the full error and sends only its category message
func (ws *WebServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.CodeOf(err)
	status := StatusFor(code)
	logger := ws.logger.With("request_id", RequestIDFrom(r.Context()), "path", r.URL.Path)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "code", string(code), "err", err)
	} else {
		logger.Debug("Request rejected", "code", string(code), "err", err)
	}
	JSONError(w, domain.MessageOf(err), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		JSONError(w, "Error encoding response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// JSONError sends a JSON formatted error response with the given status code and message
func JSONError(w http.ResponseWriter, message string, statusCode int) {
	errorResponse := struct {
		Error string `json:"error"`
	}{
		Error: message,
	}
	jsonBytes, err := json.Marshal(errorResponse)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(jsonBytes)
}
