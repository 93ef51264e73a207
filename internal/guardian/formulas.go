package guardian

import (
	"math"
	"time"
)

// AccruedYield is simple interest on principal between since and now.
func AccruedYield(principal, apy float64, since, now time.Time) float64 {
	if principal <= 0 {
		return 0
	}
	return principal * apy * (ElapsedDays(since, now) / 365)
}

func GrowthScore(principal float64, depositedAt, now time.Time) float64 {
	if principal <= 0 {
		return 0
	}
	return math.Log10(1+principal) * ElapsedDays(depositedAt, now)
}

// StageFromScore never returns StageDead; death is decided by the caller.
func (r Rules) StageFromScore(score float64) Stage {
	for _, t := range r.Stages {
		if score >= t.Min && score < t.Max {
			return t.Stage
		}
	}
	return StageEgg
}

func ClampMood(mood int) int {
	if mood < MinMood {
		return MinMood
	}
	if mood > MaxMood {
		return MaxMood
	}
	return mood
}

// AdvanceMood applies passive recovery for every whole day since lastUpdatedAt.
func (r Rules) AdvanceMood(mood int, principal float64, lastUpdatedAt, now time.Time) int {
	if principal >= r.MinPrincipalForMood {
		days := int(math.Floor(ElapsedDays(lastUpdatedAt, now)))
		mood += r.MoodDailyGain * days
	}
	return ClampMood(mood)
}

func (r Rules) UnlocksOwed(totalClaimed float64, inventorySize int) int {
	if !(totalClaimed > 0) || r.UnlockThreshold <= 0 {
		return 0
	}
	// Stay in float64 until clamped: the quotient can exceed any int.
	owed := math.Floor(totalClaimed/r.UnlockThreshold) - float64(inventorySize)
	switch {
	case !(owed > 0):
		return 0
	case owed > math.MaxInt32:
		return math.MaxInt32
	}
	return int(owed)
}

// UnlockProgress is the percent (0-100) of the way to the next unlock.
func (r Rules) UnlockProgress(totalClaimed float64) float64 {
	if totalClaimed <= 0 {
		return 0
	}
	return math.Mod(totalClaimed, r.UnlockThreshold) / r.UnlockThreshold * 100
}

func (r Rules) YieldToNextUnlock(totalClaimed float64) float64 {
	if totalClaimed <= 0 {
		return r.UnlockThreshold
	}
	return r.UnlockThreshold - math.Mod(totalClaimed, r.UnlockThreshold)
}

// fold materializes pending accrual into AccruedYield and moves the
// accrual clock to at.
func (v *Vault) fold(at time.Time) {
	v.AccruedYield += AccruedYield(v.Principal, v.APY, v.LastUpdatedAt, at)
	if at.After(v.LastUpdatedAt) {
		v.LastUpdatedAt = at
	}
}

// RealTimeYield is the claimable yield as of now without materializing it.
func (v Vault) RealTimeYield(now time.Time) float64 {
	return v.AccruedYield + AccruedYield(v.Principal, v.APY, v.LastUpdatedAt, now)
}
