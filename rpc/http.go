package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"salechain/core"
	"salechain/integrations/reporting"
	"salechain/observability"
)

const (
	defaultMaxBodyBytes = 1 << 20
	requestIDHeader     = "X-Request-ID"
)

type contextKey string

const requestIDKey contextKey = "rpc.request_id"

// Config tunes the JSON-RPC server.
type Config struct {
	MaxBodyBytes      int64
	RateLimitPerSec   float64
	RateLimitBurst    int
	TrustedProxies    []string
	JWTSecret         string
	JWTIssuer         string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	TLSCertFile       string
	TLSKeyFile        string
}

// Server exposes a node over JSON-RPC and a websocket event stream.
type Server struct {
	node    *core.Node
	cfg     Config
	logger  *slog.Logger
	limiter *rateLimiter
	auth    *authenticator
	proxies *proxyList
	stats   SaleStats
}

// SaleStats answers aggregate queries over indexed sale activity.
type SaleStats interface {
	Summary(ctx context.Context, saleID string) (*reporting.SaleSummary, error)
	TopBuyers(ctx context.Context, saleID string, limit int) ([]reporting.BuyerTotal, error)
}

// SetSaleStats enables sale_stats backed by stats.
func (s *Server) SetSaleStats(stats SaleStats) {
	s.stats = stats
}

// NewServer builds a server for node.
func NewServer(node *core.Node, cfg Config, logger *slog.Logger) (*Server, error) {
	if node == nil {
		return nil, fmt.Errorf("rpc: node required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	proxies, err := newProxyList(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	return &Server{
		node:    node,
		cfg:     cfg,
		logger:  logger.With("component", "rpc"),
		limiter: newRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst),
		auth:    newAuthenticator(cfg.JWTSecret, cfg.JWTIssuer),
		proxies: proxies,
	}, nil
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleEventsWS)
	r.Post("/rpc", s.handle)
	r.Post("/", s.handle)
	return otelhttp.NewHandler(r, "rpc")
}

// Serve listens on addr until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener serves on an existing listener until ctx ends.
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("json-rpc listening", slog.String("address", listener.Addr().String()))
		if s.cfg.TLSCertFile != "" {
			errCh <- srv.ServeTLS(listener, s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
			return
		}
		errCh <- srv.Serve(listener)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	head := s.node.Head()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"slot":      head.Slot,
		"stateRoot": head.StateRoot.Hex(),
	})
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

type methodHandler func(s *Server, r *http.Request, req *RPCRequest) (interface{}, *rpcFailure)

type method struct {
	module  string
	handler methodHandler
	scope   string
	limited bool
}

var methods = map[string]method{
	"ledger_sendTransaction": {module: "ledger", handler: (*Server).sendTransaction, limited: true},
	"ledger_getAccount":      {module: "ledger", handler: (*Server).getAccount},
	"ledger_getTokenAccount": {module: "ledger", handler: (*Server).getTokenAccount},
	"ledger_getMint":         {module: "ledger", handler: (*Server).getMint},
	"ledger_getReceipt":      {module: "ledger", handler: (*Server).getReceipt},
	"ledger_minimumBalance":  {module: "ledger", handler: (*Server).minimumBalance},
	"ledger_head":            {module: "ledger", handler: (*Server).head},
	"ledger_airdrop":         {module: "ledger", handler: (*Server).airdrop, scope: ScopeAirdrop, limited: true},
	"sale_get":               {module: "sale", handler: (*Server).saleGet},
	"sale_listPurchases":     {module: "sale", handler: (*Server).saleListPurchases},
	"sale_stats":             {module: "sale", handler: (*Server).saleStats},
}

// handle decodes one JSON-RPC request and dispatches it.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer func() {
		_ = reader.Close()
	}()
	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxBodyBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}
	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	m, ok := methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		return
	}

	start := time.Now()
	code := 0
	defer func() {
		observability.ModuleMetrics().Observe(m.module, req.Method, code, time.Since(start))
	}()

	if m.scope != "" {
		if authErr := s.auth.require(r, m.scope); authErr != nil {
			code = authErr.Code
			s.logger.Warn("rpc auth rejected",
				slog.String("request_id", requestIDFrom(r.Context())),
				slog.String("method", req.Method),
				slog.String("error", authErr.Message))
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}
	if m.limited {
		source := s.proxies.clientSource(r)
		if !s.limiter.allow(source) {
			code = codeRateLimited
			observability.ModuleMetrics().RecordThrottle(m.module, "rate_limit")
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", source)
			return
		}
	}

	result, failure := m.handler(s, r, req)
	if failure != nil {
		code = failure.err.Code
		if failure.status >= http.StatusInternalServerError {
			s.logger.Error("rpc handler failed",
				slog.String("request_id", requestIDFrom(r.Context())),
				slog.String("method", req.Method),
				slog.String("error", failure.err.Message))
		}
		writeError(w, failure.status, req.ID, failure.err.Code, failure.err.Message, failure.err.Data)
		return
	}
	writeResult(w, req.ID, result)
}
