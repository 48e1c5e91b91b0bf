package metrics

import "fmt"

// Band is the qualitative label shown next to a risk score
type Band string

const (
	BandLow        Band = "low"
	BandMedium     Band = "medium"
	BandHigh       Band = "high"
	BandUnassessed Band = "unassessed"
)

const (
	lowCeiling    = 30.0
	mediumCeiling = 70.0
)

// FormatScore renders a score with one decimal and a percent sign, e.g. "15.6%".
func FormatScore(score float64) string {
	return fmt.Sprintf("%.1f%%", score)
}

// BandFor maps an assessment to its band.
func BandFor(a Assessment) Band {
	if !a.Assessed {
		return BandUnassessed
	}
	return BandForScore(a.Score)
}

// BandForScore maps an assessed score to its band.
func BandForScore(score float64) Band {
	switch {
	case score > mediumCeiling:
		return BandHigh
	case score > lowCeiling:
		return BandMedium
	default:
		return BandLow
	}
}
