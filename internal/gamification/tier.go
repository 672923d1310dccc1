// Package gamification holds the pure progression rules: badge tiers and their
// thresholds, leaderboard scoring, and sequential lesson unlocking.
package gamification

import "math"

// Tier is a badge level awarded per student per course.
type Tier string

const (
	TierBronze Tier = "BRONZE"
	TierSilver Tier = "SILVER"
	TierGold   Tier = "GOLD"
	TierMaster Tier = "MASTER"
)

// Threshold pairs a tier with the completion percent that earns it.
type Threshold struct {
	Tier    Tier
	Percent float64
}

// thresholds is ascending by Percent.
var thresholds = [...]Threshold{
	{Tier: TierBronze, Percent: 25},
	{Tier: TierSilver, Percent: 50},
	{Tier: TierGold, Percent: 90},
	{Tier: TierMaster, Percent: 100},
}

// Thresholds returns the badge thresholds in ascending order.
func Thresholds() []Threshold {
	out := make([]Threshold, len(thresholds))
	copy(out, thresholds[:])
	return out
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	for _, th := range thresholds {
		if th.Tier == t {
			return true
		}
	}
	return false
}

// CompletionPercent returns completed/total*100 using real division. A course without lessons is 0%.
// The multiplication happens first so exact ratios such as 9/10 land exactly on their threshold.
func CompletionPercent(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(completed) * 100 / float64(total)
}

// RoundPercent rounds a percent for presentation.
func RoundPercent(percent float64) int {
	return int(math.Round(percent))
}

// IsComplete reports whether percent is exactly 100.
func IsComplete(percent float64) bool {
	return percent == 100
}

// TiersReached lists, ascending, every tier whose threshold is at or below percent.
// Thresholds are independent so a jump from 0 to 100 reaches all four.
func TiersReached(percent float64) []Tier {
	reached := make([]Tier, 0, len(thresholds))
	for _, th := range thresholds {
		if th.Percent <= percent {
			reached = append(reached, th.Tier)
		}
	}
	return reached
}

// PointTable maps tiers to leaderboard points. The zero value scores nothing;
// use StandardPoints for the published scoring.
type PointTable struct {
	bronze, silver, gold, master int
}

// StandardPoints returns BRONZE=25, SILVER=50, GOLD=100, MASTER=200.
func StandardPoints() PointTable {
	return PointTable{bronze: 25, silver: 50, gold: 100, master: 200}
}

// Points returns the value of a single badge of tier t.
func (p PointTable) Points(t Tier) int {
	switch t {
	case TierBronze:
		return p.bronze
	case TierSilver:
		return p.silver
	case TierGold:
		return p.gold
	case TierMaster:
		return p.master
	default:
		return 0
	}
}
