package metrics

import (
	"math"
)

const (
	maxCV    = 1.0
	maxScore = 100.0
)

// Skip reasons reported in Assessment.Skipped
const (
	SkipUnresolved   = "no label resolved in the table"
	SkipTooFewPoints = "fewer than 2 numeric values"
	SkipZeroMean     = "mean is zero"
	SkipOverflow     = "values overflow float64"
)

// Contribution is the volatility figure of one tag that entered the score.
type Contribution struct {
	Tag       Tag     `json:"tag"`
	Points    int     `json:"points"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"std_dev"`
	CV        float64 `json:"cv"`
	ClampedCV float64 `json:"clamped_cv"`
}

// SkippedTag is a detected tag that did not contribute.
type SkippedTag struct {
	Tag    Tag    `json:"tag"`
	Reason string `json:"reason"`
}

// Assessment is the detailed result of scoring a table.
// Assessed is false when no tag contributed; Score is then 0 and must not be read as low risk.
type Assessment struct {
	Score         float64        `json:"score"`
	Assessed      bool           `json:"assessed"`
	Contributions []Contribution `json:"contributions"`
	Skipped       []SkippedTag   `json:"skipped,omitempty"`
}

// Score returns the risk percentage in [0, 100]. It is 0 when nothing could be assessed;
// use Assess to tell that case apart.
func Score(t *Table, detected DetectedMetrics) float64 {
	return Assess(t, detected).Score
}

// Assess averages the clamped coefficient of variation of each detected tag's
// representative series. Tags without a resolvable label, with fewer than two numeric
// values or with a zero mean are skipped. It never fails.
func Assess(t *Table, detected DetectedMetrics) Assessment {
	var a Assessment

	for _, tag := range detected.Tags() {
		cells, ok := representativeCells(t, detected, tag)
		if !ok {
			a.Skipped = append(a.Skipped, SkippedTag{Tag: tag, Reason: SkipUnresolved})
			continue
		}

		series := numericSeries(cells)
		if len(series) < 2 {
			a.Skipped = append(a.Skipped, SkippedTag{Tag: tag, Reason: SkipTooFewPoints})
			continue
		}

		mean, std := meanStdDev(series)
		if !finite(mean) || !finite(std) {
			a.Skipped = append(a.Skipped, SkippedTag{Tag: tag, Reason: SkipOverflow})
			continue
		}
		if mean == 0 {
			a.Skipped = append(a.Skipped, SkippedTag{Tag: tag, Reason: SkipZeroMean})
			continue
		}

		cv := std / math.Abs(mean)
		if math.IsNaN(cv) || math.IsInf(cv, 0) {
			cv = maxCV
		}
		a.Contributions = append(a.Contributions, Contribution{
			Tag:       tag,
			Points:    len(series),
			Mean:      mean,
			StdDev:    std,
			CV:        cv,
			ClampedCV: math.Min(cv, maxCV),
		})
	}

	if len(a.Contributions) == 0 {
		return a
	}

	var sum float64
	for _, c := range a.Contributions {
		sum += c.ClampedCV
	}
	a.Assessed = true
	a.Score = math.Min(maxScore*sum/float64(len(a.Contributions)), maxScore)
	return a
}

// meanStdDev returns the mean and the population standard deviation of values.
func meanStdDev(values []float64) (float64, float64) {
	n := float64(len(values))
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / n)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
