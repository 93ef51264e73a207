package guardian

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

type Stage string

const (
	StageEgg       Stage = "egg"
	StageBaby      Stage = "baby"
	StageTeen      Stage = "teen"
	StageAdult     Stage = "adult"
	StageLegendary Stage = "legendary"
	StageDead      Stage = "dead"
)

// Rank orders live stages from egg (0) to legendary (4). Dead ranks -1.
func (s Stage) Rank() int {
	switch s {
	case StageEgg:
		return 0
	case StageBaby:
		return 1
	case StageTeen:
		return 2
	case StageAdult:
		return 3
	case StageLegendary:
		return 4
	default:
		return -1
	}
}

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

type Slot string

const (
	SlotHead   Slot = "head"
	SlotBody   Slot = "body"
	SlotWeapon Slot = "weapon"
	SlotPet    Slot = "pet"
)

func (r Rarity) valid() bool {
	switch r {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	}
	return false
}

func (s Slot) valid() bool {
	switch s {
	case SlotHead, SlotBody, SlotWeapon, SlotPet:
		return true
	}
	return false
}

// EventType names an activity log entry. Besides the per-operation events
// (mint, deposit, withdraw, armor_unlock, level_up, level_down) the log also
// carries EventDeath, written when a withdrawal empties the vault. The same
// signal is reported on Result.Died.
type EventType string

const (
	EventMint        EventType = "mint"
	EventDeposit     EventType = "deposit"
	EventWithdraw    EventType = "withdraw"
	EventArmorUnlock EventType = "armor_unlock"
	EventLevelUp     EventType = "level_up"
	EventLevelDown   EventType = "level_down"
	EventDeath       EventType = "death"
)

const (
	MinMood = 0
	MaxMood = 100

	MaxNameLength = 32

	// DrawReward expands weights into a pool, one slot per unit.
	MaxRarityWeight = 10000
)

var (
	ErrNoAccount             = errors.New("no guardian or vault found")
	ErrAlreadyMinted         = errors.New("guardian already minted")
	ErrInvalidAmount         = errors.New("amount must be > 0")
	ErrInsufficientPrincipal = errors.New("insufficient principal")
	ErrItemNotFound          = errors.New("armor not found")
	ErrInvalidName           = errors.New("guardian name must be 1-32 characters")
	ErrInvalidCatalog        = errors.New("invalid reward catalog")
	ErrDuplicateIdempotency  = errors.New("duplicate idempotency key")
	ErrTxConflict            = errors.New("transaction conflict, retry")
)

// StageThreshold is a half-open [Min, Max) growth score interval.
type StageThreshold struct {
	Stage Stage   `json:"stage"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// MarshalJSON writes an unbounded Max as null.
func (t StageThreshold) MarshalJSON() ([]byte, error) {
	out := struct {
		Stage Stage    `json:"stage"`
		Min   float64  `json:"min"`
		Max   *float64 `json:"max"`
	}{Stage: t.Stage, Min: t.Min}
	if !math.IsInf(t.Max, 1) {
		bound := t.Max
		out.Max = &bound
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a null or missing Max as unbounded.
func (t *StageThreshold) UnmarshalJSON(raw []byte) error {
	var in struct {
		Stage Stage    `json:"stage"`
		Min   float64  `json:"min"`
		Max   *float64 `json:"max"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return err
	}
	t.Stage, t.Min, t.Max = in.Stage, in.Min, math.Inf(1)
	if in.Max != nil {
		t.Max = *in.Max
	}
	return nil
}

// Rules holds every tunable constant of the simulation.
type Rules struct {
	DefaultAPY          float64
	UnlockThreshold     float64
	MinPrincipalForMood float64
	MoodDailyGain       int
	DepositMoodBoost    int
	WithdrawMoodPenalty int
	MintMood            int
	ReviveMood          int
	ActivityCap         int
	MaxPrincipal        float64
	Stages              []StageThreshold
	RarityWeights       map[Rarity]int
}

func DefaultStages() []StageThreshold {
	return []StageThreshold{
		{Stage: StageEgg, Min: 0, Max: 5},
		{Stage: StageBaby, Min: 5, Max: 20},
		{Stage: StageTeen, Min: 20, Max: 50},
		{Stage: StageAdult, Min: 50, Max: 100},
		{Stage: StageLegendary, Min: 100, Max: math.Inf(1)},
	}
}

func DefaultRarityWeights() map[Rarity]int {
	return map[Rarity]int{
		RarityCommon:    50,
		RarityRare:      30,
		RarityEpic:      15,
		RarityLegendary: 5,
	}
}

func DefaultRules() Rules {
	return Rules{
		DefaultAPY:          0.08,
		UnlockThreshold:     5,
		MinPrincipalForMood: 100,
		MoodDailyGain:       5,
		DepositMoodBoost:    10,
		WithdrawMoodPenalty: 20,
		MintMood:            50,
		ReviveMood:          30,
		ActivityCap:         50,
		MaxPrincipal:        1e15,
		Stages:              DefaultStages(),
		RarityWeights:       DefaultRarityWeights(),
	}
}

func (r Rules) Validate() error {
	if r.DefaultAPY < 0 || math.IsNaN(r.DefaultAPY) || math.IsInf(r.DefaultAPY, 0) {
		return fmt.Errorf("default apy must be a non-negative number")
	}
	if !(r.UnlockThreshold > 0) || math.IsInf(r.UnlockThreshold, 0) {
		return fmt.Errorf("unlock threshold must be > 0")
	}
	if !(r.MaxPrincipal > 0) || math.IsInf(r.MaxPrincipal, 0) {
		return fmt.Errorf("max principal must be a positive finite number")
	}
	if r.ActivityCap < 1 {
		return fmt.Errorf("activity cap must be >= 1")
	}
	for name, v := range map[string]int{
		"mood daily gain":       r.MoodDailyGain,
		"deposit mood boost":    r.DepositMoodBoost,
		"withdraw mood penalty": r.WithdrawMoodPenalty,
		"mint mood":             r.MintMood,
		"revive mood":           r.ReviveMood,
	} {
		if v < MinMood || v > MaxMood {
			return fmt.Errorf("%s must be within [%d, %d]", name, MinMood, MaxMood)
		}
	}
	for rarity, w := range r.RarityWeights {
		if !rarity.valid() {
			return fmt.Errorf("unknown rarity %q in weights", rarity)
		}
		if w < 0 || w > MaxRarityWeight {
			return fmt.Errorf("rarity %s weight must be within [0, %d]", rarity, MaxRarityWeight)
		}
	}
	if len(r.Stages) == 0 {
		return fmt.Errorf("stage table is empty")
	}
	for i, st := range r.Stages {
		if st.Stage == StageDead || st.Stage.Rank() < 0 {
			return fmt.Errorf("stage table entry %d has invalid stage %q", i, st.Stage)
		}
		if !(st.Min < st.Max) {
			return fmt.Errorf("stage %s: min must be < max", st.Stage)
		}
		if i > 0 && st.Min != r.Stages[i-1].Max {
			return fmt.Errorf("stage %s does not start where %s ends", st.Stage, r.Stages[i-1].Stage)
		}
	}
	return nil
}

func validateName(name string) (string, error) {
	clean := strings.TrimSpace(name)
	if clean == "" || len([]rune(clean)) > MaxNameLength {
		return "", ErrInvalidName
	}
	return clean, nil
}

func validAmount(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
