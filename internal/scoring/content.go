package scoring

import (
	"regexp"
	"strings"
)

// firstPersonMarkers are lowercase prefixes that indicate the author is
// talking about their own work.
var firstPersonMarkers = []string{"i ", "i'", "we ", "we'", "my ", "our "}

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// MediaInfo describes the media and link facets attached to a post, as
// delivered by the event source.
type MediaInfo struct {
	ImageCount  int
	HasVideo    bool
	HasAltText  bool
	ExternalURI string
	FacetLinks  []string
}

// ContentSignals are the per-post features derived once at ingestion and
// immutable afterwards.
type ContentSignals struct {
	IsFirstPerson  bool
	HasMedia       bool
	ImageCount     int
	HasAltText     bool
	LinkCount      int
	PromoLinkCount int
}

// ExtractContentSignals derives content features from the post text and its
// media facets. promoDomains is the configured self-promo domain list.
func ExtractContentSignals(text string, media MediaInfo, promoDomains []string) ContentSignals {
	linkCount, promoCount := 0, 0

	for _, uri := range media.FacetLinks {
		linkCount++
		if IsPromoDomain(uri, promoDomains) {
			promoCount++
		}
	}
	if media.ExternalURI != "" {
		linkCount++
		if IsPromoDomain(media.ExternalURI, promoDomains) {
			promoCount++
		}
	}

	// Some clients put bare URLs in the text without link facets. Facets are
	// canonical when present; the text is only scanned when they are absent.
	if linkCount == 0 {
		linkCount, promoCount = CountLinks(text, promoDomains)
	}

	return ContentSignals{
		IsFirstPerson:  IsFirstPerson(text),
		HasMedia:       media.ImageCount > 0 || media.HasVideo,
		ImageCount:     media.ImageCount,
		HasAltText:     media.HasAltText,
		LinkCount:      linkCount,
		PromoLinkCount: promoCount,
	}
}

// IsFirstPerson reports whether the text contains a first-person marker.
func IsFirstPerson(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range firstPersonMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// CountLinks counts URLs in the text and how many point at promo domains.
func CountLinks(text string, promoDomains []string) (total, promo int) {
	links := urlPattern.FindAllString(strings.ToLower(text), -1)
	for _, link := range links {
		total++
		if IsPromoDomain(link, promoDomains) {
			promo++
		}
	}
	return total, promo
}

// IsPromoDomain reports whether the URL's host matches one of the configured
// self-promo domains.
func IsPromoDomain(url string, promoDomains []string) bool {
	lower := strings.ToLower(url)
	idx := strings.Index(lower, "://")
	if idx < 0 {
		return false
	}
	host := lower[idx+3:]
	if slash := strings.IndexByte(host, '/'); slash >= 0 {
		host = host[:slash]
	}
	for _, d := range promoDomains {
		if strings.Contains(host, d) {
			return true
		}
	}
	return false
}
