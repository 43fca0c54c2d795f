package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Ashenafi-pixel/casino-settlement/auth"
	"github.com/Ashenafi-pixel/casino-settlement/gamemath"
	"github.com/Ashenafi-pixel/casino-settlement/games/blackjack"
	"github.com/Ashenafi-pixel/casino-settlement/games/crash"
	"github.com/Ashenafi-pixel/casino-settlement/games/mines"
	"github.com/Ashenafi-pixel/casino-settlement/games/roulette"
	"github.com/Ashenafi-pixel/casino-settlement/gateway"
	"github.com/Ashenafi-pixel/casino-settlement/ledger"
	"github.com/Ashenafi-pixel/casino-settlement/lock"
	"github.com/Ashenafi-pixel/casino-settlement/round"
	"github.com/Ashenafi-pixel/casino-settlement/settlement"
)

// APIError is the standard error response.
type APIError struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, code int, errMsg, codeStr string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(APIError{
		Error:   errMsg,
		Code:    codeStr,
		Message: errMsg,
	})
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{ledger.ErrInsufficientFunds, http.StatusPaymentRequired, "INSUFFICIENT_FUNDS"},
	{ledger.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
	{ledger.ErrBetNotFound, http.StatusNotFound, "BET_NOT_FOUND"},
	{ledger.ErrPaymentNotFound, http.StatusNotFound, "PAYMENT_NOT_FOUND"},
	{ledger.ErrSeedNotFound, http.StatusNotFound, "SEED_NOT_FOUND"},
	{settlement.ErrRoundNotFound, http.StatusNotFound, "ROUND_NOT_FOUND"},
	{round.ErrNotFound, http.StatusNotFound, "ROUND_NOT_FOUND"},
	{gamemath.ErrUnknownGame, http.StatusNotFound, "GAME_NOT_FOUND"},
	{ledger.ErrAlreadySettled, http.StatusConflict, "ALREADY_SETTLED"},
	{ledger.ErrAlreadyDecided, http.StatusConflict, "ALREADY_DECIDED"},
	{ledger.ErrDuplicateReference, http.StatusConflict, "DUPLICATE_REFERENCE"},
	{ledger.ErrUserExists, http.StatusConflict, "USER_EXISTS"},
	{settlement.ErrRoundInProgress, http.StatusConflict, "ROUND_IN_PROGRESS"},
	{round.ErrConflict, http.StatusConflict, "ROUND_CONFLICT"},
	{crash.ErrNotRunning, http.StatusConflict, "ROUND_OVER"},
	{mines.ErrNotPlaying, http.StatusConflict, "ROUND_OVER"},
	{blackjack.ErrNotYourTurn, http.StatusConflict, "ROUND_OVER"},
	{lock.ErrTimeout, http.StatusConflict, "BUSY"},
	{gamemath.ErrGameDisabled, http.StatusForbidden, "GAME_DISABLED"},
	{ledger.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT"},
	{gamemath.ErrStakeOutOfRange, http.StatusBadRequest, "STAKE_OUT_OF_RANGE"},
	{gamemath.ErrInvalidSettings, http.StatusBadRequest, "INVALID_SETTINGS"},
	{gamemath.ErrInvalidTable, http.StatusBadRequest, "INVALID_TABLE"},
	{gamemath.ErrUnreachableRTP, http.StatusBadRequest, "INVALID_TABLE"},
	{roulette.ErrInvalidBet, http.StatusBadRequest, "INVALID_BET"},
	{mines.ErrInvalidMines, http.StatusBadRequest, "INVALID_BET"},
	{mines.ErrInvalidTile, http.StatusBadRequest, "INVALID_TILE"},
	{mines.ErrTileRevealed, http.StatusBadRequest, "TILE_REVEALED"},
	{mines.ErrNothingToCash, http.StatusBadRequest, "NOTHING_TO_CASH"},
	{blackjack.ErrInvalidAction, http.StatusBadRequest, "INVALID_ACTION"},
	{blackjack.ErrCannotDouble, http.StatusBadRequest, "CANNOT_DOUBLE"},
	{crash.ErrStepNotReached, http.StatusBadRequest, "STEP_NOT_REACHED"},
	{crash.ErrInvalidAutoStep, http.StatusBadRequest, "INVALID_AUTO_CASHOUT"},
	{auth.ErrMissingToken, http.StatusUnauthorized, "TOKEN_REQUIRED"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "TOKEN_INVALID"},
	{auth.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{gateway.ErrUnsigned, http.StatusUnauthorized, "SIGNATURE_REQUIRED"},
	{gateway.ErrBadSignature, http.StatusUnauthorized, "SIGNATURE_INVALID"},
	{gateway.ErrMalformed, http.StatusBadRequest, "INVALID_BODY"},
	{gateway.ErrNotConfigured, http.StatusServiceUnavailable, "GATEWAY_DISABLED"},
}

// statusFor maps an error to its HTTP status and code. Unknown errors are 500.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// fail writes err. Internal errors are logged and not echoed to the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zapRequest(r, err)...)
		msg = "internal error"
	}
	writeError(w, status, msg, code)
}
