// Package sandbox serves a Backpack-compatible REST API over an in-memory paper venue.
// Signed routes verify ED25519 signatures and the request window like the real venue.
package sandbox

import (
	"context"
	"crypto/ed25519"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/tradedriver/pkg/cex/backpack"
	"github.com/uhyunpark/tradedriver/pkg/core"
	"github.com/uhyunpark/tradedriver/pkg/crypto"
	"github.com/uhyunpark/tradedriver/pkg/orderparam"
	"github.com/uhyunpark/tradedriver/pkg/paper"
	"github.com/uhyunpark/tradedriver/pkg/util"
)

// ErrorResponse mirrors the venue error body
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type fault struct {
	method, path string
	status       int
}

// Server handles the REST surface
type Server struct {
	venue    *paper.Venue
	router   *mux.Router
	apiKey   ed25519.PublicKey // nil accepts any signature
	clock    util.Clock
	log      *zap.SugaredLogger
	requests atomic.Int64

	mu     sync.Mutex
	faults []fault
}

type Option func(*Server)

// WithAPIKey enables signature verification against pub
func WithAPIKey(pub ed25519.PublicKey) Option { return func(s *Server) { s.apiKey = pub } }

func WithClock(c util.Clock) Option { return func(s *Server) { s.clock = c } }

func WithLogger(l *zap.SugaredLogger) Option { return func(s *Server) { s.log = l } }

// NewServer creates a sandbox API server backed by venue
func NewServer(venue *paper.Venue, opts ...Option) *Server {
	s := &Server{
		venue:  venue,
		router: mux.NewRouter(),
		clock:  util.RealClock{},
	}
	for _, o := range opts {
		o(s)
	}
	s.log = util.OrNop(s.log)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.countRequests)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Public
	api.HandleFunc("/ticker", s.handleTicker).Methods("GET")
	api.HandleFunc("/markets", s.handleMarkets).Methods("GET")

	// Signed
	api.Handle("/order", s.signed(backpack.InstructionOrderExecute, s.handlePlace)).Methods("POST")
	api.Handle("/order", s.signed(backpack.InstructionOrderCancel, s.handleCancel)).Methods("DELETE")
	api.Handle("/order", s.signed(backpack.InstructionOrderQuery, s.handleQuery)).Methods("GET")
	api.Handle("/orders", s.signed(backpack.InstructionOrderQueryAll, s.handleQueryAll)).Methods("GET")
	api.Handle("/orders", s.signed(backpack.InstructionOrderCancelAll, s.handleCancelAll)).Methods("DELETE")
	api.Handle("/position", s.signed(backpack.InstructionPositionQuery, s.handlePositions)).Methods("GET")
	api.Handle("/capital", s.signed(backpack.InstructionBalanceQuery, s.handleCapital)).Methods("GET")

	wapi := s.router.PathPrefix("/wapi/v1").Subrouter()
	wapi.Handle("/history/orders", s.signed(backpack.InstructionOrderHistory, s.handleHistory)).Methods("GET")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the CORS-wrapped router
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", backpack.HeaderAPIKey, backpack.HeaderSignature, backpack.HeaderTimestamp, backpack.HeaderWindow},
	})
	return c.Handler(s.router)
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Infow("sandbox_listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Requests is the number of requests received so far
func (s *Server) Requests() int64 { return s.requests.Load() }

// FailNext makes the next request matching method and path answer with status
func (s *Server) FailNext(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, fault{method: method, path: path, status: status})
}

func (s *Server) takeFault(r *http.Request) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.faults {
		if f.method == r.Method && f.path == r.URL.Path {
			s.faults = append(s.faults[:i], s.faults[i+1:]...)
			return f.status, true
		}
	}
	return 0, false
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		if status, ok := s.takeFault(r); ok {
			respondError(w, status, "INJECTED_FAULT", "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// signed verifies auth headers, the receive window and the signature before calling h
func (s *Server) signed(instruction string, h func(http.ResponseWriter, *http.Request, map[string]string)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, err := requestParams(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_CLIENT_REQUEST", err.Error())
			return
		}
		ts, err1 := strconv.ParseInt(r.Header.Get(backpack.HeaderTimestamp), 10, 64)
		window, err2 := strconv.ParseInt(r.Header.Get(backpack.HeaderWindow), 10, 64)
		sig := r.Header.Get(backpack.HeaderSignature)
		if err1 != nil || err2 != nil || sig == "" || r.Header.Get(backpack.HeaderAPIKey) == "" {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or malformed auth headers")
			return
		}
		now := s.clock.Now().UnixMilli()
		if now-ts > window || ts-now > window {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "request outside receive window")
			return
		}
		if s.apiKey != nil && !crypto.VerifyInstruction(s.apiKey, instruction, params, ts, window, sig) {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid signature")
			return
		}
		h(w, r, params)
	})
}

func requestParams(r *http.Request) (map[string]string, error) {
	if r.Method == http.MethodGet {
		out := make(map[string]string)
		for k, v := range r.URL.Query() {
			if len(v) > 0 {
				out[k] = v[0]
			}
		}
		return out, nil
	}
	body := make(map[string]any)
	if r.Body != nil && r.ContentLength != 0 {
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	}
	return backpack.SigningParams(body), nil
}

// ==============================
// Handlers
// ==============================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleTicker(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	px, err := s.venue.PriceNow(r.Context(), symbol)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_MARKET", err.Error())
		return
	}
	respondJSON(w, backpack.Ticker{Symbol: strings.ToUpper(symbol), LastPrice: decimal.NewNullDecimal(px)})
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	symbols, _ := s.venue.Markets(r.Context())
	out := make([]backpack.Market, 0, len(symbols))
	for _, sym := range symbols {
		parts := strings.Split(sym, "_")
		m := backpack.Market{Symbol: sym, BaseSymbol: parts[0], MarketType: "SPOT"}
		if len(parts) > 1 {
			m.QuoteSymbol = parts[1]
		}
		if strings.HasSuffix(sym, "_PERP") {
			m.MarketType = "PERP"
		}
		out = append(out, m)
	}
	respondJSON(w, out)
}

func (s *Server) handlePlace(w http.ResponseWriter, r *http.Request, p map[string]string) {
	o := core.Order{
		Symbol:      p["symbol"],
		Side:        backpack.ParseSide(p["side"]),
		Type:        orderparam.OrderType(p["orderType"]),
		TimeInForce: orderparam.TimeInForce(p["timeInForce"]),
		ReduceOnly:  p["reduceOnly"] == "true",
	}
	if p["postOnly"] == "true" {
		o.TimeInForce = core.PostOnly
	}
	qty, err := decimal.NewFromString(p["quantity"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_CLIENT_REQUEST", "invalid quantity")
		return
	}
	o.Quantity = qty
	if raw := p["price"]; raw != "" {
		px, err := decimal.NewFromString(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_CLIENT_REQUEST", "invalid price")
			return
		}
		o.Price = decimal.NewNullDecimal(px)
	}
	if raw := p["clientId"]; raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_CLIENT_REQUEST", "invalid clientId")
			return
		}
		o.ClientID = uint32(id)
	}

	id, err := s.venue.Place(r.Context(), o)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	placed, err := s.venue.Order(r.Context(), core.OrderRef{OrderID: id})
	if err != nil {
		respondCoreError(w, err)
		return
	}
	s.log.Infow("sandbox_order_placed", "id", id, "symbol", placed.Symbol, "status", placed.Status)
	respondJSON(w, backpack.EncodeOrder(placed))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, p map[string]string) {
	ref, ok := orderRef(w, p)
	if !ok {
		return
	}
	id, err := s.venue.Cancel(r.Context(), ref)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	o, _ := s.venue.Order(r.Context(), core.OrderRef{OrderID: id})
	respondJSON(w, backpack.EncodeOrder(o))
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, p map[string]string) {
	ref, ok := orderRef(w, p)
	if !ok {
		return
	}
	o, err := s.venue.OpenOrder(r.Context(), ref)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, backpack.EncodeOrder(o))
}

func (s *Server) handleQueryAll(w http.ResponseWriter, r *http.Request, p map[string]string) {
	orders, _ := s.venue.OpenOrderList(r.Context(), p["symbol"])
	out := make([]backpack.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, backpack.EncodeOrder(o))
	}
	respondJSON(w, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, p map[string]string) {
	limit := 0
	if raw := p["limit"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "INVALID_CLIENT_REQUEST", "invalid limit")
			return
		}
		limit = n
	}
	out := []backpack.Order{}
	for _, o := range s.venue.History(r.Context(), p["symbol"], 0) {
		if id := p["orderId"]; id != "" && o.ID != id {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, backpack.EncodeOrder(o))
	}
	respondJSON(w, out)
}

func (s *Server) handleCancelAll(w http.ResponseWriter, r *http.Request, p map[string]string) {
	ids, _ := s.venue.CancelAll(r.Context(), p["symbol"])
	out := make([]backpack.Order, 0, len(ids))
	for _, id := range ids {
		o, err := s.venue.Order(r.Context(), core.OrderRef{OrderID: id})
		if err == nil {
			out = append(out, backpack.EncodeOrder(o))
		}
	}
	respondJSON(w, out)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	positions, _ := s.venue.Positions(r.Context())
	out := make([]backpack.Position, 0, len(positions))
	for _, p := range positions {
		out = append(out, backpack.Position{
			Symbol:        p.Symbol,
			NetQuantity:   p.Size,
			EntryPrice:    p.EntryPrice,
			MarkPrice:     p.MarkPrice,
			PnlUnrealized: p.UnrealizedPnL,
		})
	}
	respondJSON(w, out)
}

func (s *Server) handleCapital(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	balances, _ := s.venue.Balances(r.Context())
	out := make(map[string]backpack.Capital, len(balances))
	for asset, b := range balances {
		out[asset] = backpack.Capital{Available: b.Available, Locked: b.Locked}
	}
	respondJSON(w, out)
}

func orderRef(w http.ResponseWriter, p map[string]string) (core.OrderRef, bool) {
	ref := core.OrderRef{Symbol: p["symbol"], OrderID: p["orderId"]}
	if raw := p["clientId"]; raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_CLIENT_REQUEST", "invalid clientId")
			return ref, false
		}
		ref.ClientID = uint32(id)
	}
	if err := ref.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_CLIENT_REQUEST", err.Error())
		return ref, false
	}
	return ref, true
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Code: code, Message: message})
}

func respondCoreError(w http.ResponseWriter, err error) {
	switch core.KindOf(err) {
	case core.KindNotFound:
		respondError(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Order not found")
	case core.KindValidation, core.KindUnsupportedSymbol:
		respondError(w, http.StatusBadRequest, "INVALID_ORDER", err.Error())
	case core.KindInsufficientBalance:
		respondError(w, http.StatusBadRequest, "INSUFFICIENT_FUNDS", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}
