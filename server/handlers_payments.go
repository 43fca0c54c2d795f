package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/Ashenafi-pixel/casino-settlement/gateway"
	"github.com/Ashenafi-pixel/casino-settlement/ledger"
	"github.com/Ashenafi-pixel/casino-settlement/money"
)

type depositRequest struct {
	Amount    money.Amount `json:"amount" validate:"gt=0"`
	Reference string       `json:"reference" validate:"required,max=128"`
}

// handleDeposit records a manual deposit for an admin to approve.
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.ledger.RequestDeposit(r.Context(), userID(r), req.Amount, req.Reference)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type withdrawalRequest struct {
	Amount      money.Amount `json:"amount" validate:"gt=0"`
	Destination string       `json:"destination" validate:"required,max=256"`
}

// handleWithdrawal debits at once; a rejection refunds.
func (s *Server) handleWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.ledger.RequestWithdrawal(r.Context(), userID(r), req.Amount, req.Destination)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	list, err := s.ledger.Payments(r.Context(), ledger.PaymentFilter{
		UserID: userID(r),
		Status: r.URL.Query().Get("status"),
		Kind:   r.URL.Query().Get("kind"),
		Limit:  queryInt(r, "limit", 50),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payments": list})
}

// handleGatewayPostback credits a deposit confirmed by the payment gateway.
// Repeated postbacks for one reference credit once.
func (s *Server) handleGatewayPostback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	pb, err := gateway.ParsePostback(r, s.cfg.GatewaySecret)
	if err != nil {
		s.log.Warn("gateway postback rejected", zap.Error(err))
		s.fail(w, r, err)
		return
	}
	p, created, err := s.ledger.RecordGatewayDeposit(r.Context(), pb.UserID, pb.Amount, pb.Reference)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payment": p, "created": created})
}
