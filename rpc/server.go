package rpc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"farmchain/native/farming"
	"farmchain/observability/logging"
	"farmchain/storage"
)

// Server exposes the read-only query surface of the farming engine over HTTP,
// plus the operator-guarded lost-and-found sweep. Mutating operations enter
// through the engine API, so the server serialises the few calls it forwards.
type Server struct {
	engine        *farming.Engine
	state         *storage.State
	log           *slog.Logger
	operatorToken string
	limiter       *rate.Limiter

	mu sync.Mutex
}

// NewServer wires the query server. A zero rps disables rate limiting.
func NewServer(engine *farming.Engine, state *storage.State, log *slog.Logger, operatorToken string, rps float64, burst int) *Server {
	s := &Server{
		engine:        engine,
		state:         state,
		log:           log,
		operatorToken: strings.TrimSpace(operatorToken),
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if rps > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return s
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.rateLimit)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/farm", s.handleFarm)
		v1.Get("/farms", s.handleFarmsBySeed)
		v1.Get("/seed", s.handleSeed)
		v1.Get("/seeds", s.handleSeeds)
		v1.Get("/strategies", s.handleStrategies)
		v1.Get("/lostfound", s.handleLostFound)
		v1.Route("/account/{account}", func(a chi.Router) {
			a.Get("/seeds", s.handleUserSeeds)
			a.Get("/powers", s.handleUserPowers)
			a.Get("/rewards", s.handleUserRewards)
			a.Get("/unclaimed", s.handleUnclaimed)
			a.Get("/cd", s.handleUserCD)
			a.Get("/storage", s.handleUserStorage)
		})
		v1.Route("/admin", func(admin chi.Router) {
			admin.Use(s.requireOperator)
			admin.Post("/sweep", s.handleSweep)
		})
	})
	return r
}

// ListenAndServe blocks serving the router until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.operatorToken == "" {
			writeError(w, http.StatusForbidden, errors.New("admin endpoints disabled"))
			return
		}
		supplied := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer"))
		if supplied != s.operatorToken {
			s.log.Warn("admin auth rejected",
				slog.String("path", r.URL.Path),
				slog.String("token", logging.MaskValue(supplied)),
			)
			writeError(w, http.StatusUnauthorized, errors.New("invalid operator token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps engine errors onto HTTP statuses. Coded taxonomy errors are
// client mistakes; everything else is a server fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, farming.ErrFarmNotExist),
		errors.Is(err, farming.ErrSeedNotExist),
		errors.Is(err, farming.ErrAccountNotRegistered):
		return http.StatusNotFound
	case farming.IsTaxonomyError(err):
		return http.StatusBadRequest
	case errors.Is(err, farming.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, farming.ErrNothingToSweep):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
