package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	casino "github.com/Ashenafi-pixel/casino-settlement"
	"github.com/Ashenafi-pixel/casino-settlement/client"
	"github.com/Ashenafi-pixel/casino-settlement/config"
	"github.com/Ashenafi-pixel/casino-settlement/feed"
	"github.com/Ashenafi-pixel/casino-settlement/gamemath"
	"github.com/Ashenafi-pixel/casino-settlement/games/mines"
	"github.com/Ashenafi-pixel/casino-settlement/games/roulette"
	"github.com/Ashenafi-pixel/casino-settlement/games/slots"
	"github.com/Ashenafi-pixel/casino-settlement/gateway"
	"github.com/Ashenafi-pixel/casino-settlement/ledger"
	"github.com/Ashenafi-pixel/casino-settlement/money"
)

type harness struct {
	srv   *Server
	ts    *httptest.Server
	admin *client.Client
}

func newHarness(t *testing.T, tweak func(*config.Config)) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		DatabaseDriver:   casino.DriverSQLite,
		DataDir:          dir,
		JWTSecret:        "test-secret",
		TokenTTL:         time.Hour,
		GatewaySecret:    "gw-secret",
		BetRate:          1000,
		BetBurst:         1000,
		ReconcileWorkers: 2,
		CrashMaxRound:    time.Minute,
	}
	if tweak != nil {
		tweak(cfg)
	}
	db, err := casino.Open(casino.DriverSQLite, filepath.Join(dir, "casino.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, ledger.New(db, nil).Migrate(context.Background()))

	srv, err := New(cfg, db, zap.NewNop())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(srv.hub.Close)

	boss, err := srv.Ledger().CreateUser(context.Background(), "admin", 0, ledger.RoleAdmin)
	require.NoError(t, err)
	tok, err := srv.Auth().Issue(boss.ID, boss.Role)
	require.NoError(t, err)
	return &harness{srv: srv, ts: ts, admin: client.New(ts.URL).WithToken(tok)}
}

func (h *harness) player(t *testing.T, name, balance string) *client.Client {
	t.Helper()
	_, tok, err := h.admin.CreateUser(context.Background(), name, money.MustParse(balance), ledger.RolePlayer)
	require.NoError(t, err)
	return client.New(h.ts.URL).WithToken(tok)
}

func apiError(t *testing.T, err error) *client.Error {
	t.Helper()
	var e *client.Error
	require.ErrorAs(t, err, &e)
	return e
}

func TestAPI_PlayerFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	p := h.player(t, "alice", "100")

	require.NoError(t, client.New(h.ts.URL).Health(ctx))
	list, err := p.Games(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 5)

	bal, err := p.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("100"), bal)

	bets := []roulette.Bet{{Kind: roulette.Black, Stake: 1000}}
	spin, err := p.Roulette(ctx, "spin-1", bets)
	require.NoError(t, err)
	assert.Equal(t, ledger.BetSettled, spin.Bet.Status)
	var out roulette.Outcome
	require.NoError(t, spin.DecodeRound(&out))
	assert.Equal(t, money.Amount(10000-1000)+out.Payout, spin.Balance)

	again, err := p.Roulette(ctx, "spin-1", bets)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, spin.Bet.ID, again.Bet.ID)

	_, err = p.Slots(ctx, "slot-1", 500)
	require.NoError(t, err)

	dep, err := p.Deposit(ctx, money.MustParse("50"), "bank-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.PaymentPending, dep.Status)
	before, err := p.Balance(ctx)
	require.NoError(t, err)
	pending, err := h.admin.PendingPayments(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	_, err = h.admin.ApprovePayment(ctx, dep.ID)
	require.NoError(t, err)
	after, err := p.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+money.MustParse("50"), after)

	wd, err := p.Withdraw(ctx, money.MustParse("10"), "iban-1")
	require.NoError(t, err)
	_, err = h.admin.RejectPayment(ctx, wd.ID, "kyc")
	require.NoError(t, err)
	final, err := p.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, after, final)

	mine, err := p.Payments(ctx)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	txs, err := p.Transactions(ctx, 100)
	require.NoError(t, err)
	assert.NotEmpty(t, txs)
	history, err := p.Bets(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	rep, err := h.admin.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Checked)
	assert.Empty(t, rep.Mismatches)
}

func TestAPI_ErrorMapping(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	p := h.player(t, "bob", "1")

	_, err := client.New(h.ts.URL).Balance(ctx)
	assert.Equal(t, http.StatusUnauthorized, apiError(t, err).Status)

	_, err = p.RTP(ctx)
	assert.Equal(t, http.StatusForbidden, apiError(t, err).Status)

	_, err = p.Slots(ctx, "big", money.MustParse("5"))
	e := apiError(t, err)
	assert.Equal(t, http.StatusPaymentRequired, e.Status)
	assert.Equal(t, "INSUFFICIENT_FUNDS", e.Code)

	_, err = p.MinesStart(ctx, "m", 100, 30)
	assert.Equal(t, http.StatusBadRequest, apiError(t, err).Status)

	_, err = p.Slots(ctx, "", 100)
	assert.Equal(t, "IDEMPOTENCY_KEY_REQUIRED", apiError(t, err).Code)

	_, err = p.MinesReveal(ctx, "no-such-bet", 3)
	assert.Equal(t, http.StatusNotFound, apiError(t, err).Status)

	dep, err := p.Deposit(ctx, 100, "ref")
	require.NoError(t, err)
	_, err = h.admin.ApprovePayment(ctx, dep.ID)
	require.NoError(t, err)
	_, err = h.admin.ApprovePayment(ctx, dep.ID)
	assert.Equal(t, http.StatusConflict, apiError(t, err).Status)
}

func TestAPI_RateLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(c *config.Config) {
		c.BetRate = 0.001
		c.BetBurst = 2
	})
	p := h.player(t, "carol", "100")

	_, err := p.Slots(ctx, "a", 100)
	require.NoError(t, err)
	_, err = p.Slots(ctx, "b", 100)
	require.NoError(t, err)
	_, err = p.Slots(ctx, "c", 100)
	assert.Equal(t, http.StatusTooManyRequests, apiError(t, err).Status)

	// Reads are not limited.
	_, err = p.Balance(ctx)
	require.NoError(t, err)
}

func TestAPI_GatewayPostback(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	u, _, err := h.admin.CreateUser(ctx, "dave", 0, ledger.RolePlayer)
	require.NoError(t, err)

	gw := gateway.NewClient(h.ts.URL+"/api/gateway/postback", "gw-secret")
	pb := gateway.Postback{UserID: u.ID, Amount: money.MustParse("20"), Reference: "psp-1"}
	resp, err := gw.Deposit(ctx, pb)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(resp.Body), `"created":true`)

	resp, err = gw.Deposit(ctx, pb)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(resp.Body), `"created":false`)

	bad, err := gateway.NewClient(h.ts.URL+"/api/gateway/postback", "wrong").Deposit(ctx, pb)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, bad.StatusCode)

	bal, err := h.srv.Ledger().Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("20"), bal)
}

func TestAPI_Mines(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	p := h.player(t, "erin", "100")

	start, err := p.MinesStart(ctx, "m1", 1000, 1)
	require.NoError(t, err)
	assert.Equal(t, ledger.BetOpen, start.Bet.Status)

	active, err := p.MinesActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, start.Bet.ID, active.Bet.ID)

	_, err = p.MinesCashout(ctx, start.Bet.ID)
	assert.Equal(t, "NOTHING_TO_CASH", apiError(t, err).Code)

	res, err := p.MinesReveal(ctx, start.Bet.ID, 0)
	require.NoError(t, err)
	var view mines.View
	require.NoError(t, res.DecodeRound(&view))
	if view.State == mines.StateBusted {
		assert.Equal(t, ledger.BetSettled, res.Bet.Status)
		assert.Equal(t, []int{0}, view.Mines)
	} else {
		done, err := p.MinesCashout(ctx, start.Bet.ID)
		require.NoError(t, err)
		require.NoError(t, done.DecodeRound(&view))
		assert.Equal(t, mines.StateCashedOut, view.State)
		assert.Equal(t, ledger.BetSettled, done.Bet.Status)
		assert.True(t, done.Bet.Payout > 0)
	}

	rep, err := h.admin.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, rep.Mismatches)
}

func TestAPI_VoidBet(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	p := h.player(t, "ivy", "100")

	start, err := p.MinesStart(ctx, "m1", 1000, 3)
	require.NoError(t, err)

	_, err = p.VoidBet(ctx, start.Bet.ID)
	assert.Equal(t, "FORBIDDEN", apiError(t, err).Code)

	bet, err := h.admin.VoidBet(ctx, start.Bet.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.BetVoid, bet.Status)
	bal, err := p.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("100"), bal)

	_, err = p.MinesActive(ctx)
	assert.Equal(t, "ROUND_NOT_FOUND", apiError(t, err).Code)
	_, err = h.admin.VoidBet(ctx, start.Bet.ID)
	assert.Equal(t, "ALREADY_SETTLED", apiError(t, err).Code)
}

func TestAPI_PrizeTables(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	p := h.player(t, "jules", "100")

	_, err := h.admin.RegisterTable(ctx, &gamemath.GameMath{ModelID: gamemath.Slots})
	assert.Equal(t, "INVALID_BODY", apiError(t, err).Code)
	_, err = h.admin.RegisterTable(ctx, &gamemath.GameMath{ModelID: gamemath.Slots,
		PrizeTable: []gamemath.PrizeTier{{Tier: "seven", Multiplier: -2, Weight: 1}}})
	assert.Equal(t, "INVALID_TABLE", apiError(t, err).Code)

	stored, err := h.admin.RegisterTable(ctx, &gamemath.GameMath{ModelID: gamemath.Slots,
		PrizeTable: []gamemath.PrizeTier{{Tier: slots.SymbolSeven, Multiplier: 1.5, Weight: 1}}})
	require.NoError(t, err)
	require.NotNil(t, stored.Stats)
	assert.Equal(t, 1.5, stored.Stats.ComputedRTP)

	for i := 0; i < 5; i++ {
		spin, err := p.Slots(ctx, "s"+strconv.Itoa(i), 100)
		require.NoError(t, err)
		var out slots.Outcome
		require.NoError(t, spin.DecodeRound(&out))
		assert.Contains(t, []string{slots.SymbolSeven, gamemath.LoseTier}, out.Tier)
	}

	list, err := h.admin.Tables(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NoError(t, h.admin.RemoveTable(ctx, gamemath.Slots))
	err = h.admin.RemoveTable(ctx, gamemath.Slots)
	assert.Equal(t, "TABLE_NOT_FOUND", apiError(t, err).Code)
	err = p.RemoveTable(ctx, gamemath.Slots)
	assert.Equal(t, "FORBIDDEN", apiError(t, err).Code)
}

func TestAPI_RTPAdmin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	p := h.player(t, "frank", "100")

	st, err := h.admin.SetRTP(ctx, "slots", map[string]interface{}{"enabled": false})
	require.NoError(t, err)
	assert.False(t, st.Enabled)
	assert.Equal(t, 0.96, st.RTP)

	_, err = p.Slots(ctx, "s", 100)
	assert.Equal(t, "GAME_DISABLED", apiError(t, err).Code)

	_, err = h.admin.SetRTP(ctx, "slots", map[string]interface{}{"rtp": 1.5})
	assert.Equal(t, http.StatusBadRequest, apiError(t, err).Status)
	_, err = h.admin.SetRTP(ctx, "poker", map[string]interface{}{"rtp": 0.9})
	assert.Equal(t, http.StatusNotFound, apiError(t, err).Status)

	all, err := h.admin.RTP(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestAPI_SeedRotateAndVerify(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	p := h.player(t, "gina", "100")

	seed, err := p.Seed(ctx)
	require.NoError(t, err)
	play, err := p.Slots(ctx, "s1", 100)
	require.NoError(t, err)
	assert.Equal(t, seed.ServerSeedHash, play.Bet.ServerSeedHash)
	assert.EqualValues(t, 1, play.Bet.Nonce)

	revealed, next, err := p.RotateSeed(ctx, "my-seed")
	require.NoError(t, err)
	assert.Equal(t, seed.ServerSeedHash, revealed.ServerSeedHash)
	assert.EqualValues(t, 1, revealed.FinalNonce)
	assert.Equal(t, "my-seed", next.ClientSeed)
	assert.NotEqual(t, seed.ServerSeedHash, next.ServerSeedHash)

	v, err := client.New(h.ts.URL).Verify(ctx, revealed.ServerSeed, revealed.ServerSeedHash, revealed.ClientSeed, 1)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.True(t, v.Published)

	v, err = client.New(h.ts.URL).Verify(ctx, next.ServerSeedHash, revealed.ServerSeedHash, "", 1)
	require.NoError(t, err)
	assert.False(t, v.Valid)
}

func TestAPI_RotateWaitsForOpenRound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	p := h.player(t, "kim", "100")

	start, err := p.MinesStart(ctx, "m1", 100, 24)
	require.NoError(t, err)

	_, _, err = p.RotateSeed(ctx, "")
	e := apiError(t, err)
	assert.Equal(t, http.StatusConflict, e.Status)
	assert.Equal(t, "ROUND_IN_PROGRESS", e.Code)

	active, err := p.MinesActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, start.Bet.ID, active.Bet.ID)

	_, err = h.admin.VoidBet(ctx, start.Bet.ID)
	require.NoError(t, err)
	revealed, _, err := p.RotateSeed(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, start.Bet.ServerSeedHash, revealed.ServerSeedHash)
}

func TestAPI_Feed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	p := h.player(t, "hank", "100")

	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws/feed"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return h.srv.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	play, err := p.Slots(ctx, "s1", 100)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev feed.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, play.Bet.ID, ev.BetID)
	assert.Equal(t, "hank", ev.Username)
	assert.Equal(t, "slots", ev.Game)
}
