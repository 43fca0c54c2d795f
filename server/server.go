package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Ashenafi-pixel/casino-settlement/auth"
	"github.com/Ashenafi-pixel/casino-settlement/config"
	"github.com/Ashenafi-pixel/casino-settlement/feed"
	"github.com/Ashenafi-pixel/casino-settlement/gamemath"
	"github.com/Ashenafi-pixel/casino-settlement/games"
	"github.com/Ashenafi-pixel/casino-settlement/ledger"
	"github.com/Ashenafi-pixel/casino-settlement/lock"
	"github.com/Ashenafi-pixel/casino-settlement/money"
	"github.com/Ashenafi-pixel/casino-settlement/reconcile"
	"github.com/Ashenafi-pixel/casino-settlement/round"
	"github.com/Ashenafi-pixel/casino-settlement/settlement"
)

const maxBody = 1 << 20

type Server struct {
	cfg        *config.Config
	log        *zap.Logger
	ledger     *ledger.Ledger
	settlement *settlement.Service
	registry   *games.Registry
	settings   *gamemath.SettingsStore
	gameMath   *gamemath.Store
	reconciler *reconcile.Reconciler
	hub        *feed.Hub
	auth       *auth.Issuer
	limiter    *limiter
	validate   *validator.Validate
	redis      *redis.Client
}

// New wires the server's components on db. The schema must already exist.
func New(cfg *config.Config, db *sqlx.DB, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	settings, err := gamemath.NewSettingsStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("rtp settings: %w", err)
	}
	tables, err := gamemath.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("prize tables: %w", err)
	}
	s := &Server{
		cfg:      cfg,
		log:      log,
		ledger:   ledger.New(db, log.Named("ledger")),
		registry: games.NewRegistry(settings),
		settings: settings,
		gameMath: tables,
		hub:      feed.NewHub(log.Named("feed")),
		auth:     auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL),
		limiter:  newLimiter(cfg.BetRate, cfg.BetBurst),
		validate: validator.New(),
	}

	var locker lock.Locker = lock.NewMemory()
	if cfg.RedisAddr != "" {
		s.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		locker = lock.NewRedis(s.redis, 30*time.Second)
	}
	s.settlement = settlement.New(settlement.Options{
		Ledger:        s.ledger,
		Rounds:        round.NewStore(db),
		Games:         s.registry,
		Tables:        s.gameMath,
		Locks:         locker,
		Feed:          s.hub,
		Log:           log.Named("settlement"),
		CrashMaxRound: cfg.CrashMaxRound,
	})
	workers := cfg.ReconcileWorkers
	if workers <= 0 {
		workers = 4
	}
	s.reconciler = reconcile.New(s.ledger, money.Amount(cfg.ReconcileTolerance), workers, log.Named("reconcile"))
	return s, nil
}

// Ledger exposes the ledger for tooling that shares the server's wiring.
func (s *Server) Ledger() *ledger.Ledger { return s.ledger }

func (s *Server) Auth() *auth.Issuer { return s.auth }

// Handler returns the full HTTP handler with middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /api/games", s.handleGamesList)
	mux.HandleFunc("POST /api/fair/verify", s.handleFairVerify)
	mux.HandleFunc("POST /api/gateway/postback", s.handleGatewayPostback)
	mux.Handle("GET /ws/feed", s.hub)

	player := s.auth.Middleware("", s.fail)
	bets := func(h http.HandlerFunc) http.Handler { return player(s.rateLimit(h)) }
	mux.Handle("GET /api/balance", player(http.HandlerFunc(s.handleBalance)))
	mux.Handle("GET /api/bets", player(http.HandlerFunc(s.handleBets)))
	mux.Handle("GET /api/transactions", player(http.HandlerFunc(s.handleTransactions)))
	mux.Handle("GET /api/fair/seed", player(http.HandlerFunc(s.handleSeed)))
	mux.Handle("POST /api/fair/rotate", player(http.HandlerFunc(s.handleRotate)))

	mux.Handle("POST /api/games/roulette/spin", bets(s.handleRoulette))
	mux.Handle("POST /api/games/slots/spin", bets(s.handleSlots))
	mux.Handle("POST /api/games/mines/start", bets(s.handleMinesStart))
	mux.Handle("GET /api/games/mines/active", player(http.HandlerFunc(s.handleMinesActive)))
	mux.Handle("POST /api/games/mines/{betId}/reveal", bets(s.handleMinesReveal))
	mux.Handle("POST /api/games/mines/{betId}/cashout", bets(s.handleMinesCashout))
	mux.Handle("POST /api/games/blackjack/start", bets(s.handleBlackjackStart))
	mux.Handle("POST /api/games/blackjack/{betId}/{action}", bets(s.handleBlackjackAct))
	mux.Handle("POST /api/games/crash/start", bets(s.handleCrashStart))
	mux.Handle("GET /api/games/crash/{betId}", player(http.HandlerFunc(s.handleCrashStatus)))
	mux.Handle("POST /api/games/crash/{betId}/cashout", bets(s.handleCrashCashout))

	mux.Handle("POST /api/payments/deposits", player(http.HandlerFunc(s.handleDeposit)))
	mux.Handle("POST /api/payments/withdrawals", player(http.HandlerFunc(s.handleWithdrawal)))
	mux.Handle("GET /api/payments", player(http.HandlerFunc(s.handlePayments)))

	admin := s.auth.Middleware(auth.RoleAdmin, s.fail)
	mux.Handle("POST /api/admin/users", admin(http.HandlerFunc(s.handleCreateUser)))
	mux.Handle("GET /api/admin/payments", admin(http.HandlerFunc(s.handleAdminPayments)))
	mux.Handle("POST /api/admin/payments/{id}/approve", admin(http.HandlerFunc(s.handleApprovePayment)))
	mux.Handle("POST /api/admin/payments/{id}/reject", admin(http.HandlerFunc(s.handleRejectPayment)))
	mux.Handle("GET /api/admin/rtp", admin(http.HandlerFunc(s.handleListRTP)))
	mux.Handle("PUT /api/admin/rtp/{game}", admin(http.HandlerFunc(s.handleSetRTP)))
	mux.Handle("GET /api/admin/tables", admin(http.HandlerFunc(s.handleListGameMath)))
	mux.Handle("POST /api/admin/tables", admin(http.HandlerFunc(s.handleRegisterGameMath)))
	mux.Handle("DELETE /api/admin/tables/{modelId}", admin(http.HandlerFunc(s.handleRemoveGameMath)))
	mux.Handle("POST /api/admin/bets/{betId}/void", admin(http.HandlerFunc(s.handleVoidBet)))
	mux.Handle("POST /api/admin/reconcile", admin(http.HandlerFunc(s.handleReconcile)))

	return cors(s.requestLogger(mux))
}

// Run serves until ctx is cancelled. The reconcile schedule, the crash
// sweeper and the rtp.yaml watcher run alongside.
func (s *Server) Run(ctx context.Context) error {
	port := s.cfg.Port
	if port <= 0 {
		port = 8080
	}
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", zap.String("addr", srv.Addr), zap.String("db", s.cfg.DatabaseDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.hub.Close()
		if s.redis != nil {
			defer s.redis.Close()
		}
		return srv.Shutdown(shutdownCtx)
	})
	if s.cfg.ReconcileInterval > 0 {
		g.Go(func() error {
			s.reconciler.Schedule(ctx, s.cfg.ReconcileInterval)
			return nil
		})
	}
	g.Go(func() error {
		s.sweepCrash(ctx)
		return nil
	})
	g.Go(func() error {
		if err := s.settings.Watch(ctx, s.log.Named("rtp")); err != nil {
			s.log.Warn("rtp file watch disabled", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) sweepCrash(ctx context.Context) {
	every := s.cfg.CrashSweep
	if every <= 0 {
		every = 5 * time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.settlement.SweepCrash(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("crash sweep failed", zap.Error(err))
			}
		}
	}
}

func cors(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets the websocket upgrader reach the underlying Hijacker.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// requestLogger logs method, path, status and duration (no body or secrets).
func (s *Server) requestLogger(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func zapRequest(r *http.Request, err error) []zap.Field {
	fields := []zap.Field{zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err)}
	if c, ok := auth.FromContext(r.Context()); ok {
		fields = append(fields, zap.String("user_id", c.Subject))
	}
	return fields
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "casino"})
}

func (s *Server) handleGamesList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"games": s.registry.ListGames()})
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error(), "INVALID_BODY")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_FAILED")
		return false
	}
	return true
}

// userID is the authenticated subject. Routes behind the auth middleware
// always have one.
func userID(r *http.Request) string {
	c, _ := auth.FromContext(r.Context())
	if c == nil {
		return ""
	}
	return c.Subject
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
