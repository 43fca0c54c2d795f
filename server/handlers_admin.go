package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/Ashenafi-pixel/casino-settlement/gamemath"
	"github.com/Ashenafi-pixel/casino-settlement/ledger"
	"github.com/Ashenafi-pixel/casino-settlement/money"
)

type createUserRequest struct {
	Username       string       `json:"username" validate:"required,min=3,max=32,alphanum"`
	InitialBalance money.Amount `json:"initialBalance" validate:"gte=0"`
	Role           string       `json:"role" validate:"omitempty,oneof=player admin"`
}

type createUserResponse struct {
	User  *ledger.User `json:"user"`
	Token string       `json:"token"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	u, err := s.ledger.CreateUser(r.Context(), req.Username, req.InitialBalance, req.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tok, err := s.auth.Issue(u.ID, u.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("user created", zap.String("user_id", u.ID), zap.String("username", u.Username),
		zap.String("by", userID(r)))
	writeJSON(w, http.StatusCreated, createUserResponse{User: u, Token: tok})
}

func (s *Server) handleAdminPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.ledger.Payments(r.Context(), ledger.PaymentFilter{
		UserID: q.Get("user"),
		Status: q.Get("status"),
		Kind:   q.Get("kind"),
		Limit:  queryInt(r, "limit", 100),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payments": list})
}

func (s *Server) handleApprovePayment(w http.ResponseWriter, r *http.Request) {
	p, err := s.ledger.ApprovePayment(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type rejectRequest struct {
	Note string `json:"note" validate:"max=256"`
}

func (s *Server) handleRejectPayment(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.ledger.RejectPayment(r.Context(), r.PathValue("id"), userID(r), req.Note)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListRTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"settings": s.settings.List()})
}

// rtpRequest changes only the fields it carries.
type rtpRequest struct {
	RTP     *float64      `json:"rtp" validate:"omitempty,gt=0,lte=1"`
	Enabled *bool         `json:"enabled"`
	MinBet  *money.Amount `json:"minBet" validate:"omitempty,gt=0"`
	MaxBet  *money.Amount `json:"maxBet" validate:"omitempty,gt=0"`
}

func (s *Server) handleSetRTP(w http.ResponseWriter, r *http.Request) {
	game := r.PathValue("game")
	st, ok := s.settings.Get(game)
	if !ok {
		writeError(w, http.StatusNotFound, "game not found", "GAME_NOT_FOUND")
		return
	}
	var req rtpRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.RTP != nil {
		st.RTP = *req.RTP
	}
	if req.Enabled != nil {
		st.Enabled = *req.Enabled
	}
	if req.MinBet != nil {
		st.MinBet = *req.MinBet
	}
	if req.MaxBet != nil {
		st.MaxBet = *req.MaxBet
	}
	if err := s.settings.Set(st); err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("game settings changed", zap.String("game", game), zap.Float64("rtp", st.RTP),
		zap.Bool("enabled", st.Enabled), zap.String("by", userID(r)))
	writeJSON(w, http.StatusOK, st)
}

// handleRegisterGameMath stores a prize table (body = full game math JSON).
// A table registered under model_id "slots" replaces the default slots table.
func (s *Server) handleRegisterGameMath(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	var math gamemath.GameMath
	if err := json.NewDecoder(r.Body).Decode(&math); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body", "INVALID_BODY")
		return
	}
	if len(math.PrizeTable) == 0 {
		writeError(w, http.StatusBadRequest, "prize_table required", "INVALID_BODY")
		return
	}
	stored, err := s.gameMath.Register(&math)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("prize table registered", zap.String("model_id", stored.ModelID),
		zap.Float64("computed_rtp", stored.Stats.ComputedRTP), zap.String("admin_id", userID(r)))
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleListGameMath(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"tables": s.gameMath.List()})
}

func (s *Server) handleRemoveGameMath(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("modelId")
	removed, err := s.gameMath.Remove(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "no prize table "+id, "TABLE_NOT_FOUND")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	rep, err := s.reconciler.Run(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleVoidBet(w http.ResponseWriter, r *http.Request) {
	bet, err := s.settlement.Void(r.Context(), r.PathValue("betId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("admin voided bet", zap.String("bet_id", bet.ID), zap.String("admin_id", userID(r)))
	writeJSON(w, http.StatusOK, bet)
}
