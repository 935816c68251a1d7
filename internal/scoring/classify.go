package scoring

// ClassifyInput is everything the post type rules look at.
type ClassifyInput struct {
	Scores         ComponentScores
	IsFirstPerson  bool
	LinkCount      int
	PromoLinkCount int
}

// ClassifyType decides the post type. Rules are evaluated in a fixed order
// and the first match wins:
//
//  1. promotional: at least one promo link and promo links make up half or
//     more of all links
//  2. devlog: first-person text with a keyword score at or above the devlog
//     threshold
//  3. other
func (p Params) ClassifyType(in ClassifyInput) PostType {
	if in.PromoLinkCount > 0 && 2*in.PromoLinkCount >= in.LinkCount {
		return PostTypePromotional
	}
	if in.IsFirstPerson && in.Scores.Clamped().Keyword >= p.DevlogThreshold {
		return PostTypeDevlog
	}
	return PostTypeOther
}

// ClassifyConfidence derives confidence from signal agreement. Signals that
// agree are more trustworthy than one strong signal contradicted by the rest,
// so a small spread ranks above a high mean.
func (p Params) ClassifyConfidence(c ComponentScores) Confidence {
	spread := c.Clamped().Spread()
	switch {
	case spread <= p.HighSpread:
		return ConfidenceHigh
	case spread >= p.LowSpread:
		return ConfidenceLow
	default:
		return ConfidenceMedium
	}
}
