package guardian

import (
	"context"
	"sort"
	"sync"
)

// Mutation computes the next snapshot of an account. The store persists the
// returned account only when the result reports Mutated.
type Mutation func(acct Account) (Account, Result, error)

type Store interface {
	Load(ctx context.Context, owner string) (Account, error)
	// Apply runs fn against the owner's current account inside one atomic
	// unit of work. A non-empty idemKey is claimed in that same unit, and a
	// key that was already claimed fails with ErrDuplicateIdempotency.
	Apply(ctx context.Context, owner, idemKey, action string, fn Mutation) (Result, error)
	Owners(ctx context.Context) ([]string, error)
}

type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]Account
	keys     map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: map[string]Account{},
		keys:     map[string]string{},
	}
}

func (m *MemoryStore) Load(_ context.Context, owner string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[owner].Clone(), nil
}

func (m *MemoryStore) Apply(_ context.Context, owner, idemKey, action string, fn Mutation) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	scoped := owner + "\x00" + idemKey
	if idemKey != "" {
		if _, used := m.keys[scoped]; used {
			return Result{}, ErrDuplicateIdempotency
		}
	}
	next, res, err := fn(m.accounts[owner].Clone())
	if err != nil {
		return res, err
	}
	if idemKey != "" {
		m.keys[scoped] = action
	}
	if !res.Mutated {
		return res, nil
	}
	if next.Guardian == nil {
		delete(m.accounts, owner)
		return res, nil
	}
	m.accounts[owner] = next.Clone()
	return res, nil
}

func (m *MemoryStore) Owners(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.accounts))
	for owner := range m.accounts {
		out = append(out, owner)
	}
	sort.Strings(out)
	return out, nil
}
