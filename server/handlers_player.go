package server

import (
	"errors"
	"net/http"

	"github.com/Ashenafi-pixel/casino-settlement/fair"
	"github.com/Ashenafi-pixel/casino-settlement/ledger"
)

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	u, err := s.ledger.User(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"userId":   u.ID,
		"username": u.Username,
		"balance":  u.Balance,
	})
}

func (s *Server) handleBets(w http.ResponseWriter, r *http.Request) {
	list, err := s.ledger.Bets(r.Context(), userID(r), queryInt(r, "limit", 50))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bets": list})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	list, err := s.ledger.Transactions(r.Context(), userID(r), queryInt(r, "limit", 50))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": list})
}

// handleSeed shows the active commitment. The server seed itself stays hidden.
func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	seed, err := s.ledger.ActiveSeed(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seed)
}

type rotateRequest struct {
	ClientSeed string `json:"clientSeed" validate:"omitempty,max=64,printascii"`
}

func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) {
	var req rotateRequest
	if !s.decode(w, r, &req) {
		return
	}
	revealed, next, err := s.settlement.RotateSeed(r.Context(), userID(r), req.ClientSeed)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"revealed": revealed, "active": next})
}

type verifyRequest struct {
	ServerSeed     string `json:"serverSeed" validate:"required,hexadecimal"`
	ServerSeedHash string `json:"serverSeedHash" validate:"required,len=64,hexadecimal"`
	ClientSeed     string `json:"clientSeed"`
	Nonce          uint64 `json:"nonce"`
}

type verifyResponse struct {
	Valid     bool    `json:"valid"`
	Published bool    `json:"published"`
	FirstDraw float64 `json:"firstDraw"`
}

// handleFairVerify checks a revealed server seed against its commitment and
// returns the first value the seed pair draws at nonce. Published reports
// whether this server revealed the same seed for that hash.
func (s *Server) handleFairVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp := verifyResponse{
		Valid:     fair.Verify(req.ServerSeed, req.ServerSeedHash),
		FirstDraw: fair.NewStream(req.ServerSeed, req.ClientSeed, req.Nonce).Float64(),
	}
	rev, err := s.ledger.RevealedSeed(r.Context(), req.ServerSeedHash)
	switch {
	case err == nil:
		resp.Published = rev.ServerSeed == req.ServerSeed
	case !errors.Is(err, ledger.ErrSeedNotFound):
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
