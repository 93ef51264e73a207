package guardian

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Engine applies account operations. It holds no account state: every method
// takes a snapshot and returns the next one, leaving the input untouched.
type Engine struct {
	Rules   Rules
	Catalog Catalog
	Rand    func() float64
	NewID   func() string
}

func NewEngine(rules Rules, catalog Catalog, rng func() float64) *Engine {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if rng == nil {
		rng = NewRandSource(0)
	}
	return &Engine{
		Rules:   rules,
		Catalog: catalog,
		Rand:    rng,
		NewID:   uuid.NewString,
	}
}

func (e *Engine) Mint(acct Account, now time.Time, owner, name string) (Account, Result, error) {
	res := Result{Op: "mint"}
	if acct.Guardian != nil {
		return acct, res, ErrAlreadyMinted
	}
	name, err := validateName(name)
	if err != nil {
		return acct, res, err
	}

	next := Account{
		Guardian: &Guardian{
			ID:        e.NewID(),
			Owner:     owner,
			Name:      name,
			Stage:     StageEgg,
			Mood:      ClampMood(e.Rules.MintMood),
			CreatedAt: now,
			LastFedAt: now,
		},
		Vault: &Vault{
			APY:           e.Rules.DefaultAPY,
			DepositedAt:   now,
			LastUpdatedAt: now,
		},
		Inventory: []RewardItem{},
	}
	e.record(&next, &res, now, EventMint, nil, fmt.Sprintf("Guardian %q was born!", name))
	res.Mutated = true
	return next, res, nil
}

func (e *Engine) Deposit(acct Account, now time.Time, amount float64) (Account, Result, error) {
	res := Result{Op: "deposit"}
	if !validAmount(amount) {
		return acct, res, ErrInvalidAmount
	}
	if !acct.Exists() {
		return acct, res, ErrNoAccount
	}
	// Principal is capped so the vault stays finite.
	if total := acct.Vault.Principal + amount; math.IsInf(total, 0) || total > e.Rules.MaxPrincipal {
		return acct, res, ErrInvalidAmount
	}

	next := acct.Clone()
	g, v := next.Guardian, next.Vault
	prevStage := g.Stage
	wasDead := prevStage == StageDead
	risingFromZero := v.Principal <= 0 || v.DepositedAt.IsZero()

	v.fold(now)
	v.Principal += amount
	v.LastUpdatedAt = now
	if risingFromZero {
		v.DepositedAt = now
	}

	resolved := e.Rules.StageFromScore(GrowthScore(v.Principal, v.DepositedAt, now))
	if wasDead {
		g.Stage = StageEgg
		g.Mood = ClampMood(e.Rules.ReviveMood)
		res.Revived = true
	} else {
		g.Stage = resolved
		g.Mood = ClampMood(g.Mood + e.Rules.DepositMoodBoost)
	}
	g.LastFedAt = now

	e.record(&next, &res, now, EventDeposit, &amount, fmt.Sprintf("Deposited $%.2f into vault", amount))
	if resolved != prevStage && !wasDead {
		res.LeveledUp = true
		e.record(&next, &res, now, EventLevelUp, nil, fmt.Sprintf("Guardian evolved to %s!", resolved))
	}
	res.Mutated = true
	return next, res, nil
}

func (e *Engine) Withdraw(acct Account, now time.Time, amount float64) (Account, Result, error) {
	res := Result{Op: "withdraw"}
	if !validAmount(amount) {
		return acct, res, ErrInvalidAmount
	}
	if !acct.Exists() {
		return acct, res, ErrNoAccount
	}
	if amount > acct.Vault.Principal {
		return acct, res, ErrInsufficientPrincipal
	}

	next := acct.Clone()
	g, v := next.Guardian, next.Vault
	prevStage := g.Stage

	v.fold(now)
	v.Principal -= amount
	v.LastUpdatedAt = now

	e.record(&next, &res, now, EventWithdraw, &amount, fmt.Sprintf("Withdrew $%.2f from vault", amount))
	if v.Principal <= 0 {
		v.Principal = 0
		g.Stage = StageDead
		g.Mood = MinMood
		res.Died = true
		e.record(&next, &res, now, EventDeath, nil, fmt.Sprintf("Guardian %s has perished", g.Name))
		res.Mutated = true
		return next, res, nil
	}

	// Partial withdrawals keep the cohort clock.
	resolved := e.Rules.StageFromScore(GrowthScore(v.Principal, v.DepositedAt, now))
	g.Stage = resolved
	g.Mood = ClampMood(g.Mood - e.Rules.WithdrawMoodPenalty)
	if resolved != prevStage {
		res.LeveledDown = true
		e.record(&next, &res, now, EventLevelDown, nil, fmt.Sprintf("Guardian regressed to %s", resolved))
	}
	res.Mutated = true
	return next, res, nil
}

// Claim converts accrued yield into one reward draw when a draw is owed.
// When nothing is owed, or the catalog has nothing left to give, the input
// account is returned unchanged and the yield stays pending.
func (e *Engine) Claim(acct Account, now time.Time) (Account, Result, error) {
	res := Result{Op: "claim", Claim: ClaimNothing}
	if !acct.Exists() {
		return acct, res, ErrNoAccount
	}

	next := acct.Clone()
	v := next.Vault
	v.fold(now)
	available := v.AccruedYield

	res.UnlocksOwed = e.Rules.UnlocksOwed(v.TotalYieldClaimed+available, len(next.Inventory))
	if res.UnlocksOwed == 0 {
		return acct, res, nil
	}

	entry, ok := e.Rules.DrawReward(e.Catalog, next.Inventory, e.Rand)
	if !ok {
		res.Claim = ClaimExhausted
		return acct, res, nil
	}

	item := RewardItem{
		ID:         e.NewID(),
		Name:       entry.Name,
		Rarity:     entry.Rarity,
		Slot:       entry.Slot,
		UnlockedAt: now,
	}
	next.Inventory = append(next.Inventory, item)
	v.AccruedYield = 0
	v.TotalYieldClaimed += available
	v.LastUpdatedAt = now

	res.Claim = ClaimUnlocked
	res.Item = &item
	e.record(&next, &res, now, EventArmorUnlock, nil, fmt.Sprintf("Unlocked %s %s!", item.Rarity, item.Name))
	res.Mutated = true
	return next, res, nil
}

func (e *Engine) ToggleEquip(acct Account, _ time.Time, itemID string) (Account, Result, error) {
	res := Result{Op: "toggle_equip"}
	if !acct.Exists() {
		return acct, res, ErrNoAccount
	}
	idx := -1
	for i, it := range acct.Inventory {
		if it.ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return acct, res, ErrItemNotFound
	}

	next := acct.Clone()
	target := next.Inventory[idx]
	equip := !target.Equipped
	if equip {
		for i := range next.Inventory {
			if next.Inventory[i].Slot == target.Slot {
				next.Inventory[i].Equipped = false
			}
		}
	}
	next.Inventory[idx].Equipped = equip

	item := next.Inventory[idx]
	res.Item = &item
	res.Mutated = true
	return next, res, nil
}

// Refresh materializes passive state: mood gained over whole elapsed days
// and stage drift from the growing score. Dead guardians stay dead.
func (e *Engine) Refresh(acct Account, now time.Time) (Account, Result, error) {
	res := Result{Op: "refresh"}
	if !acct.Exists() {
		return acct, res, ErrNoAccount
	}
	if acct.Guardian.Stage == StageDead {
		return acct, res, nil
	}

	next := acct.Clone()
	g, v := next.Guardian, next.Vault

	days := math.Floor(ElapsedDays(v.LastUpdatedAt, now))
	if days >= 1 {
		cut := v.LastUpdatedAt.Add(time.Duration(days) * day)
		g.Mood = e.Rules.AdvanceMood(g.Mood, v.Principal, v.LastUpdatedAt, cut)
		v.fold(cut)
		res.Mutated = true
	}

	if v.Principal > 0 {
		prevStage := g.Stage
		resolved := e.Rules.StageFromScore(GrowthScore(v.Principal, v.DepositedAt, now))
		if resolved != prevStage {
			g.Stage = resolved
			res.Mutated = true
			if resolved.Rank() > prevStage.Rank() {
				res.LeveledUp = true
				e.record(&next, &res, now, EventLevelUp, nil, fmt.Sprintf("Guardian evolved to %s!", resolved))
			} else {
				res.LeveledDown = true
				e.record(&next, &res, now, EventLevelDown, nil, fmt.Sprintf("Guardian regressed to %s", resolved))
			}
		}
	}

	if !res.Mutated {
		return acct, res, nil
	}
	return next, res, nil
}

// Reset drops the account entirely.
func (e *Engine) Reset(acct Account, _ time.Time) (Account, Result, error) {
	return Account{}, Result{Op: "reset", Mutated: acct.Guardian != nil || acct.Vault != nil, Reset: true}, nil
}

func (e *Engine) View(acct Account, now time.Time) View {
	out := View{
		Guardian:  acct.Guardian,
		Inventory: acct.Inventory,
		Activity:  acct.Activity,
		AsOf:      now,
	}
	if acct.Vault != nil {
		v := *acct.Vault
		realTime := v.RealTimeYield(now)
		total := v.TotalYieldClaimed + realTime
		out.Vault = &VaultView{
			Vault:             v,
			RealTimeYield:     realTime,
			GrowthScore:       GrowthScore(v.Principal, v.DepositedAt, now),
			UnlocksOwed:       e.Rules.UnlocksOwed(total, len(acct.Inventory)),
			UnlockProgress:    e.Rules.UnlockProgress(v.TotalYieldClaimed),
			YieldToNextUnlock: e.Rules.YieldToNextUnlock(v.TotalYieldClaimed),
		}
	}
	if out.Inventory == nil {
		out.Inventory = []RewardItem{}
	}
	if out.Activity == nil {
		out.Activity = []Event{}
	}
	return out
}

// record prepends an event to the activity log, evicting past the cap, and
// tracks it as new on the result.
func (e *Engine) record(acct *Account, res *Result, now time.Time, typ EventType, amount *float64, desc string) {
	ev := Event{
		ID:          e.NewID(),
		Type:        typ,
		Timestamp:   now,
		Description: desc,
	}
	if amount != nil {
		amt := *amount
		ev.Amount = &amt
	}
	entries := make([]Event, 0, len(acct.Activity)+1)
	entries = append(entries, ev)
	entries = append(entries, acct.Activity...)
	if limit := e.Rules.ActivityCap; limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	acct.Activity = entries
	res.Events = append(res.Events, ev)
}
