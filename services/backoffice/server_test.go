package backoffice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"nhooyr.io/websocket"

	"fundcore/config"
	"fundcore/core"
	"fundcore/crypto"
	"fundcore/observability/audit"
	"fundcore/storage"
)

const fundToken = "FND1"

func testAddr(last byte) crypto.Address {
	var a crypto.Address
	a[19] = last
	return a
}

var (
	admin    = testAddr(0xa1)
	treasury = testAddr(0xa2)
	feeder   = testAddr(0xa4)
	ownerA   = testAddr(0xc1)
	ownerB   = testAddr(0xc2)
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func ledgerConfig(withCouncil bool) *config.Config {
	cfg := config.Default()
	cfg.Bootstrap = config.Bootstrap{
		Admin:         admin.Hex(),
		CreditReserve: "500000000000",
		Funds: []config.Fund{{
			ID:       "fund-1",
			Name:     "Test Income Fund",
			Token:    fundToken,
			NAV:      "10000000000",
			Treasury: treasury.Hex(),
		}},
	}
	if withCouncil {
		cfg.Governance.Owners = []string{ownerA.Hex(), ownerB.Hex()}
		cfg.Governance.Threshold = 2
	}
	return cfg
}

type harness struct {
	core  *core.Core
	store *audit.Store
	srv   *httptest.Server
}

func newHarness(t *testing.T, cfg Config, withCouncil bool) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	store, err := audit.NewStore(db)
	require.NoError(t, err)

	clock := time.Unix(1_700_000_000, 0)
	c, err := core.New(storage.NewMemDB(), ledgerConfig(withCouncil),
		core.WithEmitter(audit.NewSink(store, quietLogger())),
		core.WithClock(func() time.Time { return clock }),
		core.WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	require.NoError(t, c.ApplyBootstrap())

	server, err := New(cfg, c, store, quietLogger())
	require.NoError(t, err)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return &harness{core: c, store: store, srv: ts}
}

func (h *harness) get(t *testing.T, path string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(h.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, Config{}, false)
	var health map[string]string
	require.Equal(t, http.StatusOK, h.get(t, "/healthz", &health))
	require.Equal(t, "ok", health["status"])

	// Touch an API route so the request counter exists.
	require.Equal(t, http.StatusOK, h.get(t, "/v1/funds", nil))
	resp, err := http.Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "fundcore_api_requests_total")
}

func TestFundAndNAVRoutes(t *testing.T) {
	h := newHarness(t, Config{}, false)

	var list []fundView
	require.Equal(t, http.StatusOK, h.get(t, "/v1/funds", &list))
	require.Len(t, list, 1)
	require.Equal(t, fundToken, list[0].Token)

	var one fundView
	require.Equal(t, http.StatusOK, h.get(t, "/v1/funds/fund-1", &one))
	require.Equal(t, list[0].PoolAccount, one.PoolAccount)

	var missing errorResponse
	require.Equal(t, http.StatusNotFound, h.get(t, "/v1/funds/nope", &missing))
	require.Equal(t, "not_found", missing.Kind)

	var nav navView
	require.Equal(t, http.StatusOK, h.get(t, "/v1/nav/fnd1", &nav))
	require.Equal(t, "10000000000", nav.NAV)
	require.True(t, nav.Fresh)
	require.Equal(t, uint64(1_700_000_000), nav.UpdatedAt)

	var reserve reserveView
	require.Equal(t, http.StatusOK, h.get(t, "/v1/reserves/FND1", &reserve))
	require.Equal(t, treasury.String(), reserve.Treasury)
	require.Equal(t, "0", reserve.Cash)
}

func TestAccountRoutes(t *testing.T) {
	h := newHarness(t, Config{}, false)

	var bad errorResponse
	require.Equal(t, http.StatusBadRequest, h.get(t, "/v1/profiles/not-an-address", &bad))

	var profile profileView
	require.Equal(t, http.StatusOK, h.get(t, "/v1/profiles/"+feeder.String(), &profile))
	require.False(t, profile.Whitelisted)
	require.Equal(t, "bronze", strings.ToLower(profile.Tier))

	var locks []lockView
	require.Equal(t, http.StatusOK, h.get(t, "/v1/locks/"+feeder.Hex(), &locks))
	require.Empty(t, locks)

	var balance map[string]string
	require.Equal(t, http.StatusOK, h.get(t, "/v1/balances/"+treasury.String()+"/TND", &balance))
	require.Equal(t, "0", balance["balance"])
}

func TestFeesAndBreakerRoutes(t *testing.T) {
	h := newHarness(t, Config{}, false)

	var fees feesView
	require.Equal(t, http.StatusOK, h.get(t, "/v1/fees", &fees))
	require.Contains(t, fees.Domains, "pool")
	require.Contains(t, fees.Domains, "p2p")
	require.Equal(t, "500000000000", fees.Compartments["credit_reserve"])

	var unknown errorResponse
	require.Equal(t, http.StatusBadRequest, h.get(t, "/v1/fees?domain=otc", &unknown))
	require.Equal(t, "validation", unknown.Kind)

	var st breakerView
	require.Equal(t, http.StatusOK, h.get(t, "/v1/breakers/FND1", &st))
	require.False(t, st.Tripped)
	require.Equal(t, uint32(2_000), st.ThresholdBps)
}

func TestAdvanceAndOrderRoutes(t *testing.T) {
	h := newHarness(t, Config{}, false)

	require.Equal(t, http.StatusBadRequest, h.get(t, "/v1/advances/abc", nil))
	require.Equal(t, http.StatusBadRequest, h.get(t, "/v1/advances/1?model=z", nil))
	require.Equal(t, http.StatusNotFound, h.get(t, "/v1/advances/1?model=b", nil))

	var book map[string]json.RawMessage
	require.Equal(t, http.StatusOK, h.get(t, "/v1/orders/FND1", &book))
	require.JSONEq(t, `[]`, string(book["bids"]))
	require.JSONEq(t, `[]`, string(book["asks"]))
}

func TestGovernanceRoute(t *testing.T) {
	h := newHarness(t, Config{}, false)
	require.Equal(t, http.StatusNotFound, h.get(t, "/v1/governance/transactions", nil))

	h = newHarness(t, Config{}, true)
	data, err := json.Marshal(core.TokenArgs{Token: fundToken})
	require.NoError(t, err)
	id, err := h.core.SubmitTransaction(ownerA, core.MethodResetBreaker, big.NewInt(0), data)
	require.NoError(t, err)

	var out struct {
		Council      councilView       `json:"council"`
		Transactions []transactionView `json:"transactions"`
	}
	require.Equal(t, http.StatusOK, h.get(t, "/v1/governance/transactions?status=pending", &out))
	require.Equal(t, uint32(2), out.Council.Threshold)
	require.Len(t, out.Transactions, 1)
	require.Equal(t, id, out.Transactions[0].ID)
	require.Equal(t, core.MethodResetBreaker, out.Transactions[0].Method)

	require.Equal(t, http.StatusOK, h.get(t, "/v1/governance/transactions?status=executed", &out))
	require.Empty(t, out.Transactions)
}

func TestRateLimitPerClient(t *testing.T) {
	h := newHarness(t, Config{RateLimitPerSecond: 0.001, RateBurst: 2}, false)
	require.Equal(t, http.StatusOK, h.get(t, "/v1/funds", nil))
	require.Equal(t, http.StatusOK, h.get(t, "/v1/funds", nil))
	require.Equal(t, http.StatusTooManyRequests, h.get(t, "/v1/funds", nil))

	// Another client has its own bucket.
	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/v1/funds", nil)
	require.NoError(t, err)
	req.Header.Set("X-Real-IP", "203.0.113.9")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Health checks are never throttled.
	require.Equal(t, http.StatusOK, h.get(t, "/healthz", nil))
}

func readRecord(t *testing.T, ctx context.Context, conn *websocket.Conn) audit.Record {
	t.Helper()
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)
	var rec audit.Record
	require.NoError(t, json.Unmarshal(data, &rec))
	return rec
}

func TestAuditStreamReplaysThenFollows(t *testing.T) {
	h := newHarness(t, Config{StreamBacklog: 2}, false)
	head, _ := h.store.Head()
	require.Greater(t, head, uint64(2))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/v1/audit/stream?after=1"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	for seq := uint64(2); seq <= head; seq++ {
		rec := readRecord(t, ctx, conn)
		require.Equal(t, seq, rec.Seq)
	}

	require.NoError(t, h.core.GrantRole(admin, "oracle", feeder))
	rec := readRecord(t, ctx, conn)
	require.Equal(t, head+1, rec.Seq)
	require.Equal(t, "roles.grant", rec.Kind)
	require.Equal(t, admin.String(), rec.Caller)
	require.NoError(t, h.store.Verify(ctx))
}

func TestAuditStreamRejectsBadCursor(t *testing.T) {
	h := newHarness(t, Config{}, false)
	require.Equal(t, http.StatusBadRequest, h.get(t, "/v1/audit/stream?after=x", nil))
}
