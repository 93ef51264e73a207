package guardian

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Service serializes operations per owner and persists each one atomically.
type Service struct {
	store  Store
	engine *Engine
	clock  Clock
	log    *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(store Store, engine *Engine, clock Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Service{
		store:  store,
		engine: engine,
		clock:  clock,
		log:    logger,
		locks:  map[string]*sync.Mutex{},
	}
}

func (s *Service) Rules() Rules { return s.engine.Rules }

func (s *Service) Catalog() Catalog { return s.engine.Catalog }

// Account refreshes passive state and returns the owner's current view.
func (s *Service) Account(ctx context.Context, owner string) (View, error) {
	owner = strings.TrimSpace(owner)
	unlock := s.lockOwner(owner)
	defer unlock()

	now := s.clock.Now()
	if _, err := s.applyLocked(ctx, owner, "", "refresh", func(a Account) (Account, Result, error) {
		return s.engine.Refresh(a, now)
	}); err != nil {
		return View{}, err
	}
	acct, err := s.store.Load(ctx, owner)
	if err != nil {
		return View{}, err
	}
	if !acct.Exists() {
		return View{}, ErrNoAccount
	}
	return s.engine.View(acct, now), nil
}

func (s *Service) Mint(ctx context.Context, owner, name, idemKey string) (Result, error) {
	owner = strings.TrimSpace(owner)
	return s.apply(ctx, owner, idemKey, "mint", func(a Account, now time.Time) (Account, Result, error) {
		return s.engine.Mint(a, now, owner, name)
	})
}

func (s *Service) Deposit(ctx context.Context, owner string, amount float64, idemKey string) (Result, error) {
	return s.apply(ctx, owner, idemKey, "deposit", func(a Account, now time.Time) (Account, Result, error) {
		return s.engine.Deposit(a, now, amount)
	})
}

func (s *Service) Withdraw(ctx context.Context, owner string, amount float64, idemKey string) (Result, error) {
	return s.apply(ctx, owner, idemKey, "withdraw", func(a Account, now time.Time) (Account, Result, error) {
		return s.engine.Withdraw(a, now, amount)
	})
}

func (s *Service) Claim(ctx context.Context, owner, idemKey string) (Result, error) {
	return s.apply(ctx, owner, idemKey, "claim", s.engine.Claim)
}

func (s *Service) ToggleEquip(ctx context.Context, owner, itemID, idemKey string) (Result, error) {
	itemID = strings.TrimSpace(itemID)
	return s.apply(ctx, owner, idemKey, "toggle_equip", func(a Account, now time.Time) (Account, Result, error) {
		return s.engine.ToggleEquip(a, now, itemID)
	})
}

func (s *Service) Reset(ctx context.Context, owner, idemKey string) (Result, error) {
	return s.apply(ctx, owner, idemKey, "reset", s.engine.Reset)
}

// RefreshAll runs Refresh for every stored account and reports how many changed.
func (s *Service) RefreshAll(ctx context.Context) (int, error) {
	owners, err := s.store.Owners(ctx)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		res, err := s.apply(ctx, owner, "", "refresh", s.engine.Refresh)
		if errors.Is(err, ErrNoAccount) {
			continue
		}
		if err != nil {
			s.log.Error("refresh failed", "owner", owner, "err", err)
			continue
		}
		if res.Mutated {
			changed++
		}
	}
	return changed, nil
}

func (s *Service) apply(ctx context.Context, owner, idemKey, op string, fn func(Account, time.Time) (Account, Result, error)) (Result, error) {
	owner = strings.TrimSpace(owner)
	unlock := s.lockOwner(owner)
	defer unlock()
	return s.applyLocked(ctx, owner, idemKey, op, func(a Account) (Account, Result, error) {
		return fn(a, s.clock.Now())
	})
}

func (s *Service) applyLocked(ctx context.Context, owner, idemKey, op string, fn Mutation) (Result, error) {
	if owner == "" {
		return Result{}, ErrNoAccount
	}
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		res, err := s.store.Apply(ctx, owner, strings.TrimSpace(idemKey), op, fn)
		if err == nil {
			if res.Mutated {
				s.log.Info("account updated", "owner", owner, "op", op, "events", len(res.Events))
			}
			return res, nil
		}
		if !isSerializationError(err) {
			return res, err
		}
		if attempt == maxAttempts-1 {
			break
		}
		s.log.Warn("serialization conflict, retrying", "owner", owner, "op", op, "attempt", attempt+1)
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return Result{}, err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return Result{}, ErrTxConflict
}

func (s *Service) lockOwner(owner string) func() {
	s.mu.Lock()
	l, ok := s.locks[owner]
	if !ok {
		l = &sync.Mutex{}
		s.locks[owner] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
