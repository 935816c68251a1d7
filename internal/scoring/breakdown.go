package scoring

import "time"

// ScoreInput is a raw post handed to ScoreOne for one-off inspection.
type ScoreInput struct {
	Text          string
	Timestamp     time.Time
	Scores        ComponentScores
	Media         MediaInfo
	Velocity      float64
	AuthorFlagged bool
	PromoDomains  []string
}

// Breakdown is the full scoring decomposition for a single post.
type Breakdown struct {
	Scores             ComponentScores
	Content            ContentSignals
	FinalScore         float64
	PostType           PostType
	Confidence         Confidence
	RecencyDecay       float64
	VelocityMultiplier float64
	Priority           float64
}

// ScoreOne runs the complete scoring pipeline over a raw post without
// touching any persisted state.
func (p Params) ScoreOne(in ScoreInput, now time.Time) Breakdown {
	scores := in.Scores.Clamped()
	content := ExtractContentSignals(in.Text, in.Media, in.PromoDomains)

	finalScore := p.FinalScore(scores)
	postType := p.ClassifyType(ClassifyInput{
		Scores:         scores,
		IsFirstPerson:  content.IsFirstPerson,
		LinkCount:      content.LinkCount,
		PromoLinkCount: content.PromoLinkCount,
	})

	age := now.Sub(in.Timestamp)
	return Breakdown{
		Scores:             scores,
		Content:            content,
		FinalScore:         finalScore,
		PostType:           postType,
		Confidence:         p.ClassifyConfidence(scores),
		RecencyDecay:       p.RecencyDecay(age),
		VelocityMultiplier: p.VelocityMultiplier(in.Velocity),
		Priority: p.Priority(PriorityInput{
			FinalScore:    finalScore,
			Age:           age,
			Velocity:      in.Velocity,
			PostType:      postType,
			AuthorFlagged: in.AuthorFlagged,
		}),
	}
}
