package guardian

import "time"

type Guardian struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	Stage     Stage     `json:"stage"`
	Mood      int       `json:"mood"`
	CreatedAt time.Time `json:"created_at"`
	LastFedAt time.Time `json:"last_fed_at"`
}

type Vault struct {
	Principal         float64   `json:"principal"`
	APY               float64   `json:"apy"`
	DepositedAt       time.Time `json:"deposited_at"`
	LastUpdatedAt     time.Time `json:"last_updated_at"`
	AccruedYield      float64   `json:"accrued_yield"`
	TotalYieldClaimed float64   `json:"total_yield_claimed"`
}

type RewardItem struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Rarity     Rarity    `json:"rarity"`
	Slot       Slot      `json:"slot"`
	Equipped   bool      `json:"equipped"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Amount      *float64  `json:"amount,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
}

// Account is the aggregate every operation reads and returns. A nil Guardian
// means nothing has been minted yet.
type Account struct {
	Guardian  *Guardian    `json:"guardian"`
	Vault     *Vault       `json:"vault"`
	Inventory []RewardItem `json:"inventory"`
	Activity  []Event      `json:"activity"`
}

func (a Account) Exists() bool {
	return a.Guardian != nil && a.Vault != nil
}

// Clone returns a deep copy so callers can mutate the result freely.
func (a Account) Clone() Account {
	out := Account{}
	if a.Guardian != nil {
		g := *a.Guardian
		out.Guardian = &g
	}
	if a.Vault != nil {
		v := *a.Vault
		out.Vault = &v
	}
	if a.Inventory != nil {
		out.Inventory = append([]RewardItem(nil), a.Inventory...)
	}
	if a.Activity != nil {
		out.Activity = make([]Event, len(a.Activity))
		for i, ev := range a.Activity {
			if ev.Amount != nil {
				amt := *ev.Amount
				ev.Amount = &amt
			}
			out.Activity[i] = ev
		}
	}
	return out
}

type ClaimOutcome string

const (
	ClaimNothing   ClaimOutcome = "nothing"
	ClaimUnlocked  ClaimOutcome = "unlocked"
	ClaimExhausted ClaimOutcome = "exhausted"
)

// Result describes what one operation did. Mutated is false when the
// returned account is identical to the input and nothing needs persisting.
type Result struct {
	Op          string       `json:"op"`
	Mutated     bool         `json:"-"`
	Events      []Event      `json:"events"`
	LeveledUp   bool         `json:"leveled_up,omitempty"`
	LeveledDown bool         `json:"leveled_down,omitempty"`
	Died        bool         `json:"died,omitempty"`
	Revived     bool         `json:"revived,omitempty"`
	Claim       ClaimOutcome `json:"claim,omitempty"`
	UnlocksOwed int          `json:"unlocks_owed,omitempty"`
	Item        *RewardItem  `json:"item,omitempty"`
	Reset       bool         `json:"reset,omitempty"`
}

// VaultView is a vault plus the values derived from it at a point in time.
type VaultView struct {
	Vault
	RealTimeYield     float64 `json:"real_time_yield"`
	GrowthScore       float64 `json:"growth_score"`
	UnlocksOwed       int     `json:"unlocks_owed"`
	UnlockProgress    float64 `json:"unlock_progress"`
	YieldToNextUnlock float64 `json:"yield_to_next_unlock"`
}

type View struct {
	Guardian  *Guardian    `json:"guardian"`
	Vault     *VaultView   `json:"vault"`
	Inventory []RewardItem `json:"inventory"`
	Activity  []Event      `json:"activity"`
	AsOf      time.Time    `json:"as_of"`
}
