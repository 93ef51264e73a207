package guardian

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func newTestService(t *testing.T) (*Service, *FakeClock, *MemoryStore) {
	t.Helper()
	clock := NewFakeClock(t0)
	store := NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, newTestEngine(nil), clock, logger), clock, store
}

func TestServiceIdempotencyKey(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Mint(ctx, "0xabc", "Ember", "k1"); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := svc.Deposit(ctx, "0xabc", 100, "k2"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := svc.Deposit(ctx, "0xabc", 100, "k2"); !errors.Is(err, ErrDuplicateIdempotency) {
		t.Fatalf("replayed deposit: got %v want ErrDuplicateIdempotency", err)
	}
	// Keys are scoped per owner.
	if _, err := svc.Mint(ctx, "0xdef", "Other", "k1"); err != nil {
		t.Fatalf("mint for second owner: %v", err)
	}

	view, err := svc.Account(ctx, "0xabc")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if view.Vault.Principal != 100 {
		t.Fatalf("principal: got %f want 100", view.Vault.Principal)
	}
}

func TestServiceFailedOperationDoesNotBurnKey(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Mint(ctx, "0xabc", "Ember", "")

	if _, err := svc.Withdraw(ctx, "0xabc", 50, "w1"); !errors.Is(err, ErrInsufficientPrincipal) {
		t.Fatalf("withdraw: got %v", err)
	}
	_, _ = svc.Deposit(ctx, "0xabc", 100, "")
	if _, err := svc.Withdraw(ctx, "0xabc", 50, "w1"); err != nil {
		t.Fatalf("retry with same key: %v", err)
	}
}

func TestServiceAccountRefreshes(t *testing.T) {
	svc, clock, store := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Account(ctx, "0xabc"); !errors.Is(err, ErrNoAccount) {
		t.Fatalf("account before mint: got %v", err)
	}
	_, _ = svc.Mint(ctx, "0xabc", "Ember", "")
	_, _ = svc.Deposit(ctx, "0xabc", 1000, "")

	clock.Advance(2*day + 6*time.Hour)
	view, err := svc.Account(ctx, "0xabc")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if view.Guardian.Mood != 70 {
		t.Fatalf("mood: got %d want 70", view.Guardian.Mood)
	}
	if !approx(view.Vault.RealTimeYield, 1000*0.08*2.25/365) {
		t.Fatalf("real-time yield: %f", view.Vault.RealTimeYield)
	}
	if !view.AsOf.Equal(clock.Now()) {
		t.Fatalf("asOf: %v", view.AsOf)
	}

	stored, _ := store.Load(ctx, "0xabc")
	if stored.Guardian.Mood != 70 || !stored.Vault.LastUpdatedAt.Equal(t0.Add(2*day)) {
		t.Fatalf("refresh not persisted: %+v %+v", stored.Guardian, stored.Vault)
	}
}

func TestServiceRefreshAll(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Mint(ctx, "0xa", "Alpha", "")
	_, _ = svc.Deposit(ctx, "0xa", 500, "")
	_, _ = svc.Mint(ctx, "0xb", "Beta", "")
	_, _ = svc.Mint(ctx, "0xc", "Gamma", "")
	_, _ = svc.Deposit(ctx, "0xc", 50, "")
	_, _ = svc.Withdraw(ctx, "0xc", 50, "")

	clock.Advance(3 * day)
	changed, err := svc.RefreshAll(ctx)
	if err != nil {
		t.Fatalf("refresh all: %v", err)
	}
	// 0xa gains mood, 0xb advances its accrual clock, 0xc is dead.
	if changed != 2 {
		t.Fatalf("changed: got %d want 2", changed)
	}

	changed, _ = svc.RefreshAll(ctx)
	if changed != 0 {
		t.Fatalf("second pass changed %d accounts", changed)
	}
}

func TestServiceReset(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Mint(ctx, "0xabc", "Ember", "")
	_, _ = svc.Deposit(ctx, "0xabc", 10, "")

	res, err := svc.Reset(ctx, "0xabc", "")
	if err != nil || !res.Reset {
		t.Fatalf("reset: %+v %v", res, err)
	}
	owners, _ := store.Owners(ctx)
	if len(owners) != 0 {
		t.Fatalf("owners after reset: %v", owners)
	}
	if _, err := svc.Mint(ctx, "0xabc", "Phoenix", ""); err != nil {
		t.Fatalf("mint after reset: %v", err)
	}
}

func TestServiceEmptyOwner(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Mint(context.Background(), "   ", "Ember", ""); !errors.Is(err, ErrNoAccount) {
		t.Fatalf("blank owner: got %v", err)
	}
}

func TestServiceConcurrentDeposits(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Mint(ctx, "0xabc", "Ember", "")

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Deposit(ctx, "0xabc", 2.5, ""); err != nil {
				t.Errorf("deposit: %v", err)
			}
		}()
	}
	wg.Wait()

	view, err := svc.Account(ctx, "0xabc")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if !approx(view.Vault.Principal, 100) {
		t.Fatalf("principal: got %f want 100", view.Vault.Principal)
	}
	if view.Guardian.Mood != 100 {
		t.Fatalf("mood: got %d want 100", view.Guardian.Mood)
	}
}
