// Package client calls the casino HTTP API with a player or admin token.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Ashenafi-pixel/casino-settlement/gamemath"
	"github.com/Ashenafi-pixel/casino-settlement/games"
	"github.com/Ashenafi-pixel/casino-settlement/games/roulette"
	"github.com/Ashenafi-pixel/casino-settlement/ledger"
	"github.com/Ashenafi-pixel/casino-settlement/money"
	"github.com/Ashenafi-pixel/casino-settlement/reconcile"
)

// Error is a non-2xx API response.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("casino api: %d %s: %s", e.Status, e.Code, e.Message)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

// WithToken returns a copy of c that sends token as a bearer token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// Play mirrors a betting response. Round is the game-specific view.
type Play struct {
	Bet      ledger.Bet      `json:"bet"`
	Replayed bool            `json:"replayed"`
	Balance  money.Amount    `json:"balance"`
	Round    json.RawMessage `json:"round"`
}

// DecodeRound unmarshals the round view into v.
func (p *Play) DecodeRound(v interface{}) error {
	return json.Unmarshal(p.Round, v)
}

func (c *Client) play(ctx context.Context, path, key string, in interface{}) (*Play, error) {
	var headers map[string]string
	if key != "" {
		headers = map[string]string{"Idempotency-Key": key}
	}
	var p Play
	if err := c.do(ctx, http.MethodPost, path, headers, in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) Games(ctx context.Context) ([]games.Game, error) {
	var out struct {
		Games []games.Game `json:"games"`
	}
	err := c.do(ctx, http.MethodGet, "/api/games", nil, nil, &out)
	return out.Games, err
}

func (c *Client) Balance(ctx context.Context) (money.Amount, error) {
	var out struct {
		Balance money.Amount `json:"balance"`
	}
	err := c.do(ctx, http.MethodGet, "/api/balance", nil, nil, &out)
	return out.Balance, err
}

func (c *Client) Bets(ctx context.Context, limit int) ([]ledger.Bet, error) {
	var out struct {
		Bets []ledger.Bet `json:"bets"`
	}
	err := c.do(ctx, http.MethodGet, "/api/bets?limit="+strconv.Itoa(limit), nil, nil, &out)
	return out.Bets, err
}

func (c *Client) Transactions(ctx context.Context, limit int) ([]ledger.Transaction, error) {
	var out struct {
		Transactions []ledger.Transaction `json:"transactions"`
	}
	err := c.do(ctx, http.MethodGet, "/api/transactions?limit="+strconv.Itoa(limit), nil, nil, &out)
	return out.Transactions, err
}

func (c *Client) Seed(ctx context.Context) (*ledger.Seed, error) {
	var s ledger.Seed
	if err := c.do(ctx, http.MethodGet, "/api/fair/seed", nil, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// RotateSeed reveals the current server seed and starts a new pair. The
// server refuses with ROUND_IN_PROGRESS while a stateful round is open.
func (c *Client) RotateSeed(ctx context.Context, clientSeed string) (*ledger.RevealedSeed, *ledger.Seed, error) {
	var out struct {
		Revealed *ledger.RevealedSeed `json:"revealed"`
		Active   *ledger.Seed         `json:"active"`
	}
	err := c.do(ctx, http.MethodPost, "/api/fair/rotate", nil, map[string]string{"clientSeed": clientSeed}, &out)
	return out.Revealed, out.Active, err
}

type Verification struct {
	Valid     bool    `json:"valid"`
	Published bool    `json:"published"`
	FirstDraw float64 `json:"firstDraw"`
}

func (c *Client) Verify(ctx context.Context, serverSeed, serverSeedHash, clientSeed string, nonce uint64) (*Verification, error) {
	in := map[string]interface{}{
		"serverSeed": serverSeed, "serverSeedHash": serverSeedHash, "clientSeed": clientSeed, "nonce": nonce,
	}
	var v Verification
	if err := c.do(ctx, http.MethodPost, "/api/fair/verify", nil, in, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) Roulette(ctx context.Context, key string, bets []roulette.Bet) (*Play, error) {
	return c.play(ctx, "/api/games/roulette/spin", key, map[string]interface{}{"bets": bets})
}

func (c *Client) Slots(ctx context.Context, key string, stake money.Amount) (*Play, error) {
	return c.play(ctx, "/api/games/slots/spin", key, map[string]interface{}{"stake": stake})
}

func (c *Client) MinesStart(ctx context.Context, key string, stake money.Amount, mines int) (*Play, error) {
	return c.play(ctx, "/api/games/mines/start", key, map[string]interface{}{"stake": stake, "mines": mines})
}

func (c *Client) MinesReveal(ctx context.Context, betID string, tile int) (*Play, error) {
	return c.play(ctx, "/api/games/mines/"+url.PathEscape(betID)+"/reveal", "", map[string]interface{}{"tile": tile})
}

func (c *Client) MinesCashout(ctx context.Context, betID string) (*Play, error) {
	return c.play(ctx, "/api/games/mines/"+url.PathEscape(betID)+"/cashout", "", nil)
}

func (c *Client) MinesActive(ctx context.Context) (*Play, error) {
	var p Play
	if err := c.do(ctx, http.MethodGet, "/api/games/mines/active", nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) BlackjackStart(ctx context.Context, key string, stake money.Amount) (*Play, error) {
	return c.play(ctx, "/api/games/blackjack/start", key, map[string]interface{}{"stake": stake})
}

func (c *Client) BlackjackAct(ctx context.Context, betID, action string) (*Play, error) {
	return c.play(ctx, "/api/games/blackjack/"+url.PathEscape(betID)+"/"+url.PathEscape(action), "", nil)
}

// CrashStart opens a round; autoCashout "" disables auto cashout.
func (c *Client) CrashStart(ctx context.Context, key string, stake money.Amount, autoCashout string) (*Play, error) {
	in := map[string]interface{}{"stake": stake}
	if autoCashout != "" {
		in["autoCashout"] = autoCashout
	}
	return c.play(ctx, "/api/games/crash/start", key, in)
}

func (c *Client) CrashStatus(ctx context.Context, betID string) (*Play, error) {
	var p Play
	if err := c.do(ctx, http.MethodGet, "/api/games/crash/"+url.PathEscape(betID), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CrashCashout cashes out at the multiplier at, or now when at is "".
func (c *Client) CrashCashout(ctx context.Context, betID, at string) (*Play, error) {
	in := map[string]interface{}{}
	if at != "" {
		in["at"] = at
	}
	return c.play(ctx, "/api/games/crash/"+url.PathEscape(betID)+"/cashout", "", in)
}

func (c *Client) Deposit(ctx context.Context, amount money.Amount, reference string) (*ledger.Payment, error) {
	var p ledger.Payment
	in := map[string]interface{}{"amount": amount, "reference": reference}
	if err := c.do(ctx, http.MethodPost, "/api/payments/deposits", nil, in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) Withdraw(ctx context.Context, amount money.Amount, destination string) (*ledger.Payment, error) {
	var p ledger.Payment
	in := map[string]interface{}{"amount": amount, "destination": destination}
	if err := c.do(ctx, http.MethodPost, "/api/payments/withdrawals", nil, in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) Payments(ctx context.Context) ([]ledger.Payment, error) {
	var out struct {
		Payments []ledger.Payment `json:"payments"`
	}
	err := c.do(ctx, http.MethodGet, "/api/payments", nil, nil, &out)
	return out.Payments, err
}

// Admin calls.

// CreateUser returns the new user and a token for them.
func (c *Client) CreateUser(ctx context.Context, username string, initial money.Amount, role string) (*ledger.User, string, error) {
	var out struct {
		User  *ledger.User `json:"user"`
		Token string       `json:"token"`
	}
	in := map[string]interface{}{"username": username, "initialBalance": initial, "role": role}
	err := c.do(ctx, http.MethodPost, "/api/admin/users", nil, in, &out)
	return out.User, out.Token, err
}

// PendingPayments lists payments waiting for a decision.
func (c *Client) PendingPayments(ctx context.Context) ([]ledger.Payment, error) {
	var out struct {
		Payments []ledger.Payment `json:"payments"`
	}
	err := c.do(ctx, http.MethodGet, "/api/admin/payments?status="+ledger.PaymentPending, nil, nil, &out)
	return out.Payments, err
}

func (c *Client) ApprovePayment(ctx context.Context, id string) (*ledger.Payment, error) {
	var p ledger.Payment
	if err := c.do(ctx, http.MethodPost, "/api/admin/payments/"+url.PathEscape(id)+"/approve", nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) RejectPayment(ctx context.Context, id, note string) (*ledger.Payment, error) {
	var p ledger.Payment
	in := map[string]string{"note": note}
	if err := c.do(ctx, http.MethodPost, "/api/admin/payments/"+url.PathEscape(id)+"/reject", nil, in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) RTP(ctx context.Context) ([]gamemath.Settings, error) {
	var out struct {
		Settings []gamemath.Settings `json:"settings"`
	}
	err := c.do(ctx, http.MethodGet, "/api/admin/rtp", nil, nil, &out)
	return out.Settings, err
}

// SetRTP updates the fields of change that are non-nil.
func (c *Client) SetRTP(ctx context.Context, game string, change map[string]interface{}) (*gamemath.Settings, error) {
	var st gamemath.Settings
	if err := c.do(ctx, http.MethodPut, "/api/admin/rtp/"+url.PathEscape(game), nil, change, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// RegisterTable uploads a prize table; the stored copy carries computed stats.
func (c *Client) RegisterTable(ctx context.Context, m *gamemath.GameMath) (*gamemath.GameMath, error) {
	var out gamemath.GameMath
	if err := c.do(ctx, http.MethodPost, "/api/admin/tables", nil, m, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Tables(ctx context.Context) ([]gamemath.GameMath, error) {
	var out struct {
		Tables []gamemath.GameMath `json:"tables"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/admin/tables", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Tables, nil
}

func (c *Client) RemoveTable(ctx context.Context, modelID string) error {
	return c.do(ctx, http.MethodDelete, "/api/admin/tables/"+url.PathEscape(modelID), nil, nil, nil)
}

// VoidBet refunds an open bet and discards its round.
func (c *Client) VoidBet(ctx context.Context, betID string) (*ledger.Bet, error) {
	var b ledger.Bet
	if err := c.do(ctx, http.MethodPost, "/api/admin/bets/"+url.PathEscape(betID)+"/void", nil, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) Reconcile(ctx context.Context) (*reconcile.Report, error) {
	var rep reconcile.Report
	if err := c.do(ctx, http.MethodPost, "/api/admin/reconcile", nil, nil, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}
