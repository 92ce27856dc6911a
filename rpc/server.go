package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"stablenet/crypto"
	"stablenet/native/liquidation"
	"stablenet/native/oracle"
	"stablenet/native/stability"
	"stablenet/native/vault"
)

// Server exposes the protocol engines over HTTP. Handlers translate JSON
// payloads into engine calls and engine errors into status codes; no business
// logic lives here.
type Server struct {
	// mu serializes the /v1 surface so flows that cross engines, such as a
	// settlement burning pool stable while a vault borrow mints it, observe
	// a consistent account ledger.
	mu     sync.Mutex
	vaults *vault.Engine
	liq    *liquidation.Engine
	pool   *stability.Pool
	feed   *oracle.Feed
	log    *slog.Logger
}

// NewServer wires the HTTP surface to the given engines.
func NewServer(vaults *vault.Engine, liq *liquidation.Engine, pool *stability.Pool, feed *oracle.Feed, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{vaults: vaults, liq: liq, pool: pool, feed: feed, log: log}
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.serialized)
		r.Route("/vaults", func(r chi.Router) {
			r.Post("/", s.handleOpenVault)
			r.Get("/{id}", s.handleVaultSnapshot)
			r.Get("/{id}/health", s.handleVaultHealth)
			r.Post("/{id}/deposit", s.handleDeposit)
			r.Post("/{id}/withdraw", s.handleWithdraw)
			r.Post("/{id}/borrow", s.handleBorrow)
			r.Post("/{id}/repay", s.handleRepay)
			r.Post("/{id}/flag", s.handleFlag)
		})
		r.Route("/liquidation", func(r chi.Router) {
			r.Get("/queue", s.handleQueue)
			r.Post("/commitment-hash", s.handleCommitmentHash)
			r.Post("/batches", s.handleStartBatch)
			r.Get("/batches/{id}", s.handleGetBatch)
			r.Post("/batches/{id}/commit", s.handleCommitBid)
			r.Post("/batches/{id}/reveal", s.handleRevealBid)
			r.Post("/batches/{id}/settle", s.handleSettle)
		})
		r.Route("/stability", func(r chi.Router) {
			r.Get("/available", s.handleAvailable)
			r.Post("/deposit", s.handlePoolDeposit)
			r.Post("/withdraw", s.handlePoolWithdraw)
		})
		r.Route("/oracle", func(r chi.Router) {
			r.Get("/price/{asset}", s.handleGetPrice)
			r.Post("/quotes", s.handleSubmitQuote)
		})
	})
	return r
}

func (s *Server) serialized(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "err", err)
	}
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}

type errorBody struct {
	Error string `json:"error"`
}

func decodeBody(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return badRequestf("invalid request body: %v", err)
	}
	return nil
}

func pathID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, badRequestf("invalid identifier %q", raw)
	}
	return id, nil
}

func parseAddress(field, raw string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return crypto.Address{}, badRequestf("invalid %s: %v", field, err)
	}
	return addr, nil
}

func parseAmount(field, raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, badRequestf("invalid %s %q", field, raw)
	}
	return value, nil
}

func parseHash32(field, raw string) ([32]byte, error) {
	var out [32]byte
	decoded, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil || len(decoded) != 32 {
		return out, badRequestf("invalid %s: want 32 hex bytes", field)
	}
	copy(out[:], decoded)
	return out, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type badRequestError struct {
	msg string
}

func (e badRequestError) Error() string { return e.msg }

func badRequestf(format string, args ...interface{}) error {
	return badRequestError{msg: fmt.Sprintf(format, args...)}
}
