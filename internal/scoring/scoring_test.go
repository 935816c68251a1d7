package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() Params {
	return Params{
		Weights: Weights{
			Keyword:        0.25,
			Hashtag:        0.25,
			Semantic:       0.25,
			Classification: 0.25,
		},
		DevlogThreshold: 0.5,
		HighSpread:      0.15,
		LowSpread:       0.40,
		HalfLife:        24 * time.Hour,
		VelocityBoost:   0.1,
		VelocityMax:     5.0,
		PromoPenalty:    0.5,
		EngagementWeights: EngagementWeights{
			Like:   1.0,
			Repost: 2.0,
			Reply:  3.0,
		},
		VelocityAgeFloorHours: 0.5,
	}
}

func TestFinalScoreWeightedAverage(t *testing.T) {
	p := testParams()

	scores := ComponentScores{
		Keyword:        0.9,
		Hashtag:        0.8,
		Semantic:       0.85,
		Classification: 0.9,
	}

	assert.InDelta(t, 0.8625, p.FinalScore(scores), 1e-9)
}

func TestFinalScoreDeterministic(t *testing.T) {
	p := testParams()
	scores := ComponentScores{Keyword: 0.33, Hashtag: 0.71, Semantic: 0.5, Classification: 0.12}

	first := p.FinalScore(scores)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, p.FinalScore(scores))
	}
}

func TestFinalScoreClampsOutOfRangeInputs(t *testing.T) {
	p := testParams()

	got := p.FinalScore(ComponentScores{Keyword: 1.7, Hashtag: -0.3, Semantic: 1.0, Classification: 0.0})
	// 0.25*1 + 0.25*0 + 0.25*1 + 0.25*0
	assert.InDelta(t, 0.5, got, 1e-9)
}

func TestFinalScoreMonotonic(t *testing.T) {
	p := testParams()
	base := ComponentScores{Keyword: 0.4, Hashtag: 0.4, Semantic: 0.4, Classification: 0.4}

	higher := base
	higher.Semantic = 0.6
	assert.Greater(t, p.FinalScore(higher), p.FinalScore(base))
}

func TestClassifyConfidence(t *testing.T) {
	p := testParams()

	tests := []struct {
		name   string
		scores ComponentScores
		want   Confidence
	}{
		{
			name:   "agreeing signals",
			scores: ComponentScores{Keyword: 0.9, Hashtag: 0.8, Semantic: 0.85, Classification: 0.9},
			want:   ConfidenceHigh,
		},
		{
			name:   "disagreeing signals",
			scores: ComponentScores{Keyword: 0.9, Hashtag: 0.2, Semantic: 0.5, Classification: 0.5},
			want:   ConfidenceLow,
		},
		{
			name:   "moderate disagreement",
			scores: ComponentScores{Keyword: 0.6, Hashtag: 0.4, Semantic: 0.5, Classification: 0.5},
			want:   ConfidenceMedium,
		},
		{
			name:   "spread exactly at high bound",
			scores: ComponentScores{Keyword: 0.5, Hashtag: 0.65, Semantic: 0.5, Classification: 0.5},
			want:   ConfidenceHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ClassifyConfidence(tt.scores))
		})
	}
}

func TestClassifyType(t *testing.T) {
	p := testParams()

	tests := []struct {
		name string
		in   ClassifyInput
		want PostType
	}{
		{
			name: "first person with strong keyword signal",
			in: ClassifyInput{
				Scores:        ComponentScores{Keyword: 0.9},
				IsFirstPerson: true,
			},
			want: PostTypeDevlog,
		},
		{
			name: "first person below keyword threshold",
			in: ClassifyInput{
				Scores:        ComponentScores{Keyword: 0.3},
				IsFirstPerson: true,
			},
			want: PostTypeOther,
		},
		{
			name: "strong keyword without first person",
			in: ClassifyInput{
				Scores: ComponentScores{Keyword: 0.9},
			},
			want: PostTypeOther,
		},
		{
			name: "majority promo links",
			in: ClassifyInput{
				Scores:         ComponentScores{Keyword: 0.9},
				IsFirstPerson:  true,
				LinkCount:      4,
				PromoLinkCount: 3,
			},
			want: PostTypePromotional,
		},
		{
			name: "promo links exactly half",
			in: ClassifyInput{
				LinkCount:      4,
				PromoLinkCount: 2,
			},
			want: PostTypePromotional,
		},
		{
			name: "minority promo links",
			in: ClassifyInput{
				LinkCount:      5,
				PromoLinkCount: 2,
			},
			want: PostTypeOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ClassifyType(tt.in))
		})
	}
}

func TestRecencyDecay(t *testing.T) {
	p := testParams()

	assert.InDelta(t, 1.0, p.RecencyDecay(0), 1e-9)
	assert.InDelta(t, 0.36788, p.RecencyDecay(24*time.Hour), 1e-4)

	// Future timestamps never boost.
	assert.InDelta(t, 1.0, p.RecencyDecay(-time.Hour), 1e-9)

	// Strictly decreasing with age.
	assert.Greater(t, p.RecencyDecay(time.Hour), p.RecencyDecay(2*time.Hour))
}

func TestVelocity(t *testing.T) {
	p := testParams()

	// (10*1 + 5*2 + 2*3) / 2h
	assert.InDelta(t, 13.0, p.Velocity(10, 5, 2, 2*time.Hour), 1e-9)

	// Very young posts divide by the age floor, not near-zero age.
	assert.InDelta(t, 2.0, p.Velocity(1, 0, 0, time.Minute), 1e-9)

	assert.Zero(t, p.Velocity(0, 0, 0, time.Hour))
}

func TestVelocityMultiplier(t *testing.T) {
	p := testParams()

	assert.InDelta(t, 1.0, p.VelocityMultiplier(0), 1e-9)
	assert.InDelta(t, 1.2, p.VelocityMultiplier(2), 1e-9)

	// Capped at VelocityMax.
	assert.InDelta(t, 1.5, p.VelocityMultiplier(50), 1e-9)

	// Negative velocity never penalizes.
	assert.InDelta(t, 1.0, p.VelocityMultiplier(-3), 1e-9)
}

func TestPriority(t *testing.T) {
	p := testParams()

	in := PriorityInput{
		FinalScore: 0.8,
		Age:        0,
		Velocity:   0,
		PostType:   PostTypeDevlog,
	}
	assert.InDelta(t, 0.8, p.Priority(in), 1e-9)

	promo := in
	promo.PostType = PostTypePromotional
	assert.InDelta(t, 0.4, p.Priority(promo), 1e-9)

	flagged := in
	flagged.AuthorFlagged = true
	assert.Zero(t, p.Priority(flagged))
}

func TestScoreOnePipeline(t *testing.T) {
	p := testParams()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	b := p.ScoreOne(ScoreInput{
		Text:      "I finally got the water shader working in my engine",
		Timestamp: now,
		Scores: ComponentScores{
			Keyword:        0.9,
			Hashtag:        0.8,
			Semantic:       0.85,
			Classification: 0.9,
		},
	}, now)

	require.Equal(t, PostTypeDevlog, b.PostType)
	assert.Equal(t, ConfidenceHigh, b.Confidence)
	assert.InDelta(t, 0.8625, b.FinalScore, 1e-9)
	assert.InDelta(t, 0.8625, b.Priority, 1e-9)
}

func TestScoreOnePromoPenalty(t *testing.T) {
	p := testParams()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	b := p.ScoreOne(ScoreInput{
		Text:      "Wishlist my game now!",
		Timestamp: now,
		Scores:    ComponentScores{Keyword: 0.8, Hashtag: 0.8, Semantic: 0.8, Classification: 0.8},
		Media: scoreMedia([]string{
			"https://store.steampowered.com/app/12345",
		}),
		PromoDomains: []string{"store.steampowered.com"},
	}, now)

	require.Equal(t, PostTypePromotional, b.PostType)
	assert.InDelta(t, 0.8*0.5, b.Priority, 1e-9)
}

func scoreMedia(links []string) MediaInfo {
	return MediaInfo{FacetLinks: links}
}
