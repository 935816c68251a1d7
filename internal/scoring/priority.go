package scoring

import (
	"math"
	"time"
)

// RecencyDecay returns exp(-age / halfLife). Negative ages (clock skew) are
// clamped to zero so a post never gets a boost for being from the future.
func (p Params) RecencyDecay(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	return math.Exp(-age.Hours() / p.HalfLife.Hours())
}

// VelocityMultiplier rewards posts gaining organic engagement without letting
// runaway velocity dominate the relevance score.
func (p Params) VelocityMultiplier(velocity float64) float64 {
	v := math.Min(math.Max(velocity, 0), p.VelocityMax)
	return 1 + v*p.VelocityBoost
}

// Velocity computes the decayed engagement rate: weighted edge counts divided
// by post age in hours, floored so very new posts do not divide by ~zero.
func (p Params) Velocity(likes, reposts, replies int, age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	weighted := float64(likes)*p.EngagementWeights.Like +
		float64(reposts)*p.EngagementWeights.Repost +
		float64(replies)*p.EngagementWeights.Reply
	return weighted / math.Max(age.Hours(), p.VelocityAgeFloorHours)
}

// PriorityInput bundles everything the priority formula depends on.
type PriorityInput struct {
	FinalScore    float64
	Age           time.Duration
	Velocity      float64
	PostType      PostType
	AuthorFlagged bool
}

// Priority computes the ranking key:
//
//	final_score × recency_decay(age) × velocity_multiplier(velocity)
//
// Promotional posts take a multiplicative penalty on top. A flagged author
// gets priority 0 outright; spam suppression is hard, not a soft penalty.
func (p Params) Priority(in PriorityInput) float64 {
	if in.AuthorFlagged {
		return 0
	}
	priority := in.FinalScore * p.RecencyDecay(in.Age) * p.VelocityMultiplier(in.Velocity)
	if in.PostType == PostTypePromotional {
		priority *= p.PromoPenalty
	}
	return priority
}
