package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"yieldgotchi/internal/guardian"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const ownerContextKey contextKey = "owner"

const maxOwnerLength = 128

type Server struct {
	log *slog.Logger
	svc *guardian.Service
	mux *chi.Mux
}

// Outcome is the body returned by every mutating endpoint. Account is absent
// after a reset.
type Outcome struct {
	Result  guardian.Result `json:"result"`
	Account *guardian.View  `json:"account,omitempty"`
}

func New(logger *slog.Logger, svc *guardian.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log: logger,
		svc: svc,
		mux: chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/catalog", s.handleCatalog)

		r.Group(func(r chi.Router) {
			r.Use(ownerMiddleware)
			r.Get("/guardian", s.handleAccount)
			r.Post("/guardian", s.handleMint)
			r.Delete("/guardian", s.handleReset)

			r.Post("/vault/deposit", s.handleDeposit)
			r.Post("/vault/withdraw", s.handleWithdraw)
			r.Post("/vault/claim", s.handleClaim)

			r.Post("/armory/{item_id}/toggle", s.handleToggleEquip)
		})
	})
}

// ownerMiddleware reads the simulated wallet address from X-Owner.
func ownerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get("X-Owner"))
		if owner == "" {
			writeError(w, http.StatusUnauthorized, "missing X-Owner header")
			return
		}
		if len(owner) > maxOwnerLength {
			writeError(w, http.StatusBadRequest, "X-Owner header too long")
			return
		}
		ctx := context.WithValue(r.Context(), ownerContextKey, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerContextKey).(string)
	return owner
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	rules := s.svc.Rules()
	writeJSON(w, http.StatusOK, map[string]any{
		"items":            s.svc.Catalog(),
		"rarity_weights":   rules.RarityWeights,
		"unlock_threshold": rules.UnlockThreshold,
		"stages":           rules.Stages,
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Account(r.Context(), ownerFromContext(r.Context()))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	owner := ownerFromContext(r.Context())
	res, err := s.svc.Mint(r.Context(), owner, in.Name, idempotencyKey(r))
	s.respond(w, r, http.StatusCreated, owner, res, err)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	owner := ownerFromContext(r.Context())
	res, err := s.svc.Deposit(r.Context(), owner, amount, idempotencyKey(r))
	s.respond(w, r, http.StatusOK, owner, res, err)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	owner := ownerFromContext(r.Context())
	res, err := s.svc.Withdraw(r.Context(), owner, amount, idempotencyKey(r))
	s.respond(w, r, http.StatusOK, owner, res, err)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())
	res, err := s.svc.Claim(r.Context(), owner, idempotencyKey(r))
	s.respond(w, r, http.StatusOK, owner, res, err)
}

func (s *Server) handleToggleEquip(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())
	itemID := chi.URLParam(r, "item_id")
	res, err := s.svc.ToggleEquip(r.Context(), owner, itemID, idempotencyKey(r))
	s.respond(w, r, http.StatusOK, owner, res, err)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Reset(r.Context(), ownerFromContext(r.Context()), idempotencyKey(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Outcome{Result: res})
}

// respond writes the operation result together with the refreshed account.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, owner string, res guardian.Result, err error) {
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := Outcome{Result: res}
	view, err := s.svc.Account(r.Context(), owner)
	switch {
	case err == nil:
		out.Account = &view
	case !errors.Is(err, guardian.ErrNoAccount):
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, status, out)
}

func decodeAmount(w http.ResponseWriter, r *http.Request) (float64, bool) {
	var in struct {
		Amount float64 `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return in.Amount, true
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, guardian.ErrNoAccount), errors.Is(err, guardian.ErrItemNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, guardian.ErrAlreadyMinted), errors.Is(err, guardian.ErrDuplicateIdempotency):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, guardian.ErrInvalidAmount), errors.Is(err, guardian.ErrInvalidName),
		errors.Is(err, guardian.ErrInsufficientPrincipal):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, guardian.ErrTxConflict):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

// writeJSON answers 500 when payload cannot be encoded.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"response encoding failed"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(raw, '\n'))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}
