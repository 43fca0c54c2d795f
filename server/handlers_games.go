package server

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Ashenafi-pixel/casino-settlement/games/roulette"
	"github.com/Ashenafi-pixel/casino-settlement/money"
)

const idempotencyHeader = "Idempotency-Key"

// idempotencyKey prefers the header over the body field.
func idempotencyKey(w http.ResponseWriter, r *http.Request, body string) (string, bool) {
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if key == "" {
		key = strings.TrimSpace(body)
	}
	if key == "" || len(key) > 128 {
		writeError(w, http.StatusBadRequest, "idempotency key required (1-128 chars)", "IDEMPOTENCY_KEY_REQUIRED")
		return "", false
	}
	return key, true
}

type rouletteRequest struct {
	Bets           []roulette.Bet `json:"bets" validate:"required,min=1,max=50,dive"`
	IdempotencyKey string         `json:"idempotencyKey"`
}

func (s *Server) handleRoulette(w http.ResponseWriter, r *http.Request) {
	var req rouletteRequest
	if !s.decode(w, r, &req) {
		return
	}
	key, ok := idempotencyKey(w, r, req.IdempotencyKey)
	if !ok {
		return
	}
	play, err := s.settlement.Roulette(r.Context(), userID(r), req.Bets, key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, play)
}

type stakeRequest struct {
	Stake          money.Amount `json:"stake" validate:"gt=0"`
	IdempotencyKey string       `json:"idempotencyKey"`
}

func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if !s.decode(w, r, &req) {
		return
	}
	key, ok := idempotencyKey(w, r, req.IdempotencyKey)
	if !ok {
		return
	}
	play, err := s.settlement.Slots(r.Context(), userID(r), req.Stake, key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, play)
}

type minesStartRequest struct {
	Stake          money.Amount `json:"stake" validate:"gt=0"`
	Mines          int          `json:"mines" validate:"min=1,max=24"`
	IdempotencyKey string       `json:"idempotencyKey"`
}

func (s *Server) handleMinesStart(w http.ResponseWriter, r *http.Request) {
	var req minesStartRequest
	if !s.decode(w, r, &req) {
		return
	}
	key, ok := idempotencyKey(w, r, req.IdempotencyKey)
	if !ok {
		return
	}
	play, err := s.settlement.MinesStart(r.Context(), userID(r), req.Stake, req.Mines, key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, play)
}

func (s *Server) handleMinesActive(w http.ResponseWriter, r *http.Request) {
	play, err := s.settlement.MinesActive(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, play)
}

type revealRequest struct {
	Tile *int `json:"tile" validate:"required,min=0,max=24"`
}

func (s *Server) handleMinesReveal(w http.ResponseWriter, r *http.Request) {
	var req revealRequest
	if !s.decode(w, r, &req) {
		return
	}
	play, err := s.settlement.MinesReveal(r.Context(), userID(r), r.PathValue("betId"), *req.Tile)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, play)
}

func (s *Server) handleMinesCashout(w http.ResponseWriter, r *http.Request) {
	play, err := s.settlement.MinesCashout(r.Context(), userID(r), r.PathValue("betId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, play)
}

func (s *Server) handleBlackjackStart(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if !s.decode(w, r, &req) {
		return
	}
	key, ok := idempotencyKey(w, r, req.IdempotencyKey)
	if !ok {
		return
	}
	play, err := s.settlement.BlackjackStart(r.Context(), userID(r), req.Stake, key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, play)
}

func (s *Server) handleBlackjackAct(w http.ResponseWriter, r *http.Request) {
	play, err := s.settlement.BlackjackAct(r.Context(), userID(r), r.PathValue("betId"), r.PathValue("action"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, play)
}

type crashStartRequest struct {
	Stake          money.Amount    `json:"stake" validate:"gt=0"`
	AutoCashout    decimal.Decimal `json:"autoCashout"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

func (s *Server) handleCrashStart(w http.ResponseWriter, r *http.Request) {
	var req crashStartRequest
	if !s.decode(w, r, &req) {
		return
	}
	key, ok := idempotencyKey(w, r, req.IdempotencyKey)
	if !ok {
		return
	}
	play, err := s.settlement.CrashStart(r.Context(), userID(r), req.Stake, req.AutoCashout, key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, play)
}

func (s *Server) handleCrashStatus(w http.ResponseWriter, r *http.Request) {
	play, err := s.settlement.CrashStatus(r.Context(), userID(r), r.PathValue("betId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, play)
}

type crashCashoutRequest struct {
	// At is the multiplier to cash out at; zero means the current one.
	At decimal.Decimal `json:"at"`
}

func (s *Server) handleCrashCashout(w http.ResponseWriter, r *http.Request) {
	var req crashCashoutRequest
	if !s.decode(w, r, &req) {
		return
	}
	play, err := s.settlement.CrashCashout(r.Context(), userID(r), r.PathValue("betId"), req.At)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, play)
}
