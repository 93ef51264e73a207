package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"yieldgotchi/internal/api"
	"yieldgotchi/internal/guardian"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := guardian.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	engine := guardian.NewEngine(guardian.DefaultRules(), nil, func() float64 { return 0.5 })
	svc := guardian.NewService(guardian.NewMemoryStore(), engine, clock, logger)
	srv := httptest.NewServer(api.New(logger, svc).Handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/")
}

func TestClientFlow(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	owner := NewWalletAddress()

	if err := c.Health(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
	if _, err := c.Account(ctx, owner); StatusOf(err) != http.StatusNotFound {
		t.Fatalf("account before mint: %v", err)
	}

	out, err := c.Mint(ctx, owner, "Ember", "mint-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if out.Account == nil || out.Account.Guardian.Name != "Ember" {
		t.Fatalf("unexpected mint outcome: %+v", out)
	}

	if _, err := c.Deposit(ctx, owner, 250, "dep-1"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	_, err = c.Replay(ctx, owner, http.MethodPost, "/v1/vault/deposit", map[string]any{"amount": 250}, "dep-1")
	if StatusOf(err) != http.StatusConflict {
		t.Fatalf("replay of applied command: %v", err)
	}

	out, err = c.Withdraw(ctx, owner, 50, "")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if out.Account.Vault.Principal != 200 {
		t.Fatalf("principal: %f", out.Account.Vault.Principal)
	}

	out, err = c.Claim(ctx, owner, "")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if out.Result.Claim != guardian.ClaimNothing {
		t.Fatalf("claim outcome: %s", out.Result.Claim)
	}

	cat, err := c.Catalog(ctx)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if len(cat.Items) != 28 || cat.UnlockThreshold != 5 || cat.Stages[len(cat.Stages)-1].Max != nil {
		t.Fatalf("unexpected catalog: %+v", cat)
	}

	_, err = c.ToggleEquip(ctx, owner, "missing", "")
	var apiErr *APIError
	if StatusOf(err) != http.StatusNotFound {
		t.Fatalf("toggle unknown: %v", err)
	}
	if !errors.As(err, &apiErr) || apiErr.Message != guardian.ErrItemNotFound.Error() {
		t.Fatalf("error message not unwrapped: %v", err)
	}

	out, err = c.Reset(ctx, owner, "")
	if err != nil || !out.Result.Reset || out.Account != nil {
		t.Fatalf("reset: %+v %v", out, err)
	}
}
