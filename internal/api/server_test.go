package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"yieldgotchi/internal/guardian"
)

type testEnv struct {
	srv   *httptest.Server
	clock *guardian.FakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := guardian.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := guardian.NewEngine(guardian.DefaultRules(), guardian.DefaultCatalog(), func() float64 { return 0 })
	svc := guardian.NewService(guardian.NewMemoryStore(), engine, clock, logger)
	srv := httptest.NewServer(New(logger, svc).Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, clock: clock}
}

func (e *testEnv) do(t *testing.T, method, path, owner, idem string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if owner != "" {
		req.Header.Set("X-Owner", owner)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func TestHealthAndCatalog(t *testing.T) {
	env := newTestEnv(t)
	if status, body := env.do(t, http.MethodGet, "/healthz", "", "", nil); status != http.StatusOK || body["ok"] != true {
		t.Fatalf("healthz: %d %v", status, body)
	}
	status, body := env.do(t, http.MethodGet, "/v1/catalog", "", "", nil)
	if status != http.StatusOK {
		t.Fatalf("catalog: %d %v", status, body)
	}
	items, _ := body["items"].([]any)
	if len(items) != 28 {
		t.Fatalf("catalog items: got %d want 28", len(items))
	}
	stages, _ := body["stages"].([]any)
	last, _ := stages[len(stages)-1].(map[string]any)
	if last["max"] != nil {
		t.Fatalf("top stage should be unbounded, got %v", last["max"])
	}
}

func TestOwnerHeaderRequired(t *testing.T) {
	env := newTestEnv(t)
	if status, _ := env.do(t, http.MethodGet, "/v1/guardian", "", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("missing owner: got %d", status)
	}
}

func TestGuardianLifecycle(t *testing.T) {
	env := newTestEnv(t)
	const owner = "0x1111"

	if status, _ := env.do(t, http.MethodGet, "/v1/guardian", owner, "", nil); status != http.StatusNotFound {
		t.Fatalf("account before mint: got %d", status)
	}

	status, body := env.do(t, http.MethodPost, "/v1/guardian", owner, "", map[string]any{"name": "Ember"})
	if status != http.StatusCreated {
		t.Fatalf("mint: %d %v", status, body)
	}
	acct := body["account"].(map[string]any)
	if g := acct["guardian"].(map[string]any); g["stage"] != "egg" || g["mood"].(float64) != 50 {
		t.Fatalf("minted guardian: %v", g)
	}

	if status, _ := env.do(t, http.MethodPost, "/v1/guardian", owner, "", map[string]any{"name": "Again"}); status != http.StatusConflict {
		t.Fatalf("second mint: got %d", status)
	}
	if status, _ := env.do(t, http.MethodPost, "/v1/guardian", "0x2222", "", map[string]any{"name": ""}); status != http.StatusBadRequest {
		t.Fatalf("blank name: got %d", status)
	}

	status, body = env.do(t, http.MethodPost, "/v1/vault/deposit", owner, "dep-1", map[string]any{"amount": 1000})
	if status != http.StatusOK {
		t.Fatalf("deposit: %d %v", status, body)
	}
	if status, _ := env.do(t, http.MethodPost, "/v1/vault/deposit", owner, "dep-1", map[string]any{"amount": 1000}); status != http.StatusConflict {
		t.Fatalf("replayed deposit: got %d", status)
	}
	if status, _ := env.do(t, http.MethodPost, "/v1/vault/deposit", owner, "", map[string]any{"amount": -1}); status != http.StatusBadRequest {
		t.Fatalf("negative deposit: got %d", status)
	}
	if status, body := env.do(t, http.MethodPost, "/v1/vault/deposit", owner, "", map[string]any{"amount": 1e308}); status != http.StatusBadRequest {
		t.Fatalf("deposit past the principal cap: %d %v", status, body)
	}
	if status, _ := env.do(t, http.MethodPost, "/v1/vault/withdraw", owner, "", map[string]any{"amount": 5000}); status != http.StatusBadRequest {
		t.Fatalf("overdraw: got %d", status)
	}
	if status, _ := env.do(t, http.MethodPost, "/v1/vault/deposit", owner, "", map[string]any{"amount": 1, "memo": "x"}); status != http.StatusBadRequest {
		t.Fatalf("unknown field: got %d", status)
	}

	env.clock.Advance(400 * 24 * time.Hour)
	status, body = env.do(t, http.MethodPost, "/v1/vault/claim", owner, "", nil)
	if status != http.StatusOK {
		t.Fatalf("claim: %d %v", status, body)
	}
	res := body["result"].(map[string]any)
	if res["claim"] != "unlocked" || res["unlocks_owed"].(float64) != 17 {
		t.Fatalf("claim result: %v", res)
	}
	item := res["item"].(map[string]any)
	itemID := item["id"].(string)

	status, body = env.do(t, http.MethodPost, "/v1/armory/"+itemID+"/toggle", owner, "", nil)
	if status != http.StatusOK {
		t.Fatalf("toggle: %d %v", status, body)
	}
	if got := body["result"].(map[string]any)["item"].(map[string]any)["equipped"]; got != true {
		t.Fatalf("item not equipped: %v", got)
	}
	if status, _ := env.do(t, http.MethodPost, "/v1/armory/missing/toggle", owner, "", nil); status != http.StatusNotFound {
		t.Fatalf("unknown item: got %d", status)
	}

	status, body = env.do(t, http.MethodGet, "/v1/guardian", owner, "", nil)
	if status != http.StatusOK {
		t.Fatalf("account: %d %v", status, body)
	}
	vault := body["vault"].(map[string]any)
	if vault["accrued_yield"].(float64) != 0 || vault["total_yield_claimed"].(float64) < 87 {
		t.Fatalf("vault after claim: %v", vault)
	}

	status, body = env.do(t, http.MethodDelete, "/v1/guardian", owner, "", nil)
	if status != http.StatusOK {
		t.Fatalf("reset: %d %v", status, body)
	}
	if _, ok := body["account"]; ok {
		t.Fatalf("reset should not return an account: %v", body)
	}
	if status, _ := env.do(t, http.MethodGet, "/v1/guardian", owner, "", nil); status != http.StatusNotFound {
		t.Fatalf("account after reset: got %d", status)
	}
}

func TestWriteJSONUnencodablePayload(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]any{"principal": math.Inf(1)})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d want 500", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == nil {
		t.Fatalf("body %q: %v", rec.Body.String(), err)
	}
}

func TestWithdrawAllReportsDeath(t *testing.T) {
	env := newTestEnv(t)
	const owner = "0x3333"
	env.do(t, http.MethodPost, "/v1/guardian", owner, "", map[string]any{"name": "Ember"})
	env.do(t, http.MethodPost, "/v1/vault/deposit", owner, "", map[string]any{"amount": 100})

	status, body := env.do(t, http.MethodPost, "/v1/vault/withdraw", owner, "", map[string]any{"amount": 100})
	if status != http.StatusOK {
		t.Fatalf("withdraw: %d %v", status, body)
	}
	if body["result"].(map[string]any)["died"] != true {
		t.Fatalf("expected death: %v", body["result"])
	}
	g := body["account"].(map[string]any)["guardian"].(map[string]any)
	if g["stage"] != "dead" || g["mood"].(float64) != 0 {
		t.Fatalf("guardian after withdraw: %v", g)
	}
}
