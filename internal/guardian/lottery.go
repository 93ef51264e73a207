package guardian

import (
	mathrand "math/rand"
	"sync"
	"time"
)

// DrawReward picks one catalog entry the inventory does not already own,
// weighted by rarity. rng must return a uniform value in [0, 1).
func (r Rules) DrawReward(catalog Catalog, inventory []RewardItem, rng func() float64) (CatalogEntry, bool) {
	owned := make(map[string]struct{}, len(inventory))
	for _, it := range inventory {
		owned[it.Name] = struct{}{}
	}

	var pool []int
	for i, e := range catalog {
		if _, ok := owned[e.Name]; ok {
			continue
		}
		for w := r.RarityWeights[e.Rarity]; w > 0; w-- {
			pool = append(pool, i)
		}
	}
	if len(pool) == 0 {
		return CatalogEntry{}, false
	}

	idx := int(rng() * float64(len(pool)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(pool) {
		idx = len(pool) - 1
	}
	return catalog[pool[idx]], true
}

type lockedRand struct {
	mu   sync.Mutex
	rand *mathrand.Rand
}

// NewRandSource returns a goroutine-safe uniform source. A zero seed uses the clock.
func NewRandSource(seed int64) func() float64 {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	lr := &lockedRand{rand: mathrand.New(mathrand.NewSource(seed))}
	return lr.nextFloat
}

func (l *lockedRand) nextFloat() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rand.Float64()
}
