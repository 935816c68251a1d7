// Package scoring computes relevance scores, post classifications, and
// ranking priorities from externally produced component signals. Every
// function here is pure: the same inputs always produce the same outputs.
package scoring

import (
	"math"
	"time"
)

// PostType classifies what kind of content a post is.
type PostType string

const (
	PostTypeDevlog      PostType = "devlog"
	PostTypePromotional PostType = "promotional"
	PostTypeOther       PostType = "other"
)

// Confidence describes how much the component signals agree with each other.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ComponentScores are the four extractor outputs for a post. Each is expected
// in [0,1]; out-of-range values are clamped, never rejected.
type ComponentScores struct {
	Keyword        float64
	Hashtag        float64
	Semantic       float64
	Classification float64
}

// Clamped returns a copy with every component clamped to [0,1].
func (c ComponentScores) Clamped() ComponentScores {
	return ComponentScores{
		Keyword:        clamp01(c.Keyword),
		Hashtag:        clamp01(c.Hashtag),
		Semantic:       clamp01(c.Semantic),
		Classification: clamp01(c.Classification),
	}
}

// Spread is the max-min distance across the four components, used as the
// disagreement measure for confidence classification.
func (c ComponentScores) Spread() float64 {
	lo := math.Min(math.Min(c.Keyword, c.Hashtag), math.Min(c.Semantic, c.Classification))
	hi := math.Max(math.Max(c.Keyword, c.Hashtag), math.Max(c.Semantic, c.Classification))
	return hi - lo
}

// Weights is the component weight vector used by the aggregator. The weights
// must sum to 1; config validation enforces this at startup.
type Weights struct {
	Keyword        float64
	Hashtag        float64
	Semantic       float64
	Classification float64
}

// EngagementWeights weight each edge kind in the velocity formula.
type EngagementWeights struct {
	Like   float64
	Repost float64
	Reply  float64
}

// Params carries every tunable scoring constant. Defaults come from config;
// nothing in this package reads configuration directly.
type Params struct {
	Weights Weights

	// DevlogThreshold is the minimum keyword score for a first-person post
	// to classify as a devlog.
	DevlogThreshold float64

	// HighSpread and LowSpread bound the confidence tiers: spread at or
	// below HighSpread means high confidence, at or above LowSpread means
	// low, anything between is medium.
	HighSpread float64
	LowSpread  float64

	// HalfLife controls exponential recency decay of priority.
	HalfLife time.Duration

	// VelocityBoost and VelocityMax shape the engagement multiplier:
	// 1 + clamp(v, 0, VelocityMax) * VelocityBoost.
	VelocityBoost float64
	VelocityMax   float64

	// PromoPenalty multiplies the priority of promotional posts. Must be < 1.
	PromoPenalty float64

	EngagementWeights EngagementWeights

	// VelocityAgeFloorHours is the minimum post age used as the velocity
	// denominator, preventing blow-up for very new posts.
	VelocityAgeFloorHours float64
}

// FinalScore aggregates the four component scores into a single weighted
// relevance score. Inputs are clamped to [0,1] first.
func (p Params) FinalScore(c ComponentScores) float64 {
	c = c.Clamped()
	return c.Keyword*p.Weights.Keyword +
		c.Hashtag*p.Weights.Hashtag +
		c.Semantic*p.Weights.Semantic +
		c.Classification*p.Weights.Classification
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
