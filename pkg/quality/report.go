package quality

// Rating is the comparative verdict for one report metric.
type Rating string

const (
	RatingAboveAverage  Rating = "Above Average"
	RatingAverage       Rating = "Average"
	RatingBelowAverage  Rating = "Below Average"
	RatingNotApplicable Rating = "N/A"
)

// Metric names emitted by the user performance report, in output order.
const (
	MetricProceduresDocumented = "Procedures Documented"
	MetricAvgConfidence        = "Average Confidence"
	MetricAvgProcessingTime    = "Average Processing Time"
	MetricCorrectionsPerNote   = "Corrections Per Note"
)

// PerformanceComparison is one row of the user performance report: the user's
// value for a metric next to the population benchmark. Value and Benchmark
// are nil when undefined (no usages in the window, or the metric has no
// benchmark by design).
type PerformanceComparison struct {
	Metric    string
	Value     *float64
	Benchmark *float64
	Rating    Rating
}

// RateConfidence rates a confidence average where higher is better:
// at least 105% of the benchmark is above average, within ±5% is average.
func RateConfidence(user, benchmark *float64) Rating {
	if user == nil || benchmark == nil {
		return RatingNotApplicable
	}
	switch {
	case *user >= *benchmark*1.05:
		return RatingAboveAverage
	case *user >= *benchmark*0.95:
		return RatingAverage
	default:
		return RatingBelowAverage
	}
}

// RateProcessingTime rates a processing-time average where lower is better:
// at most 95% of the benchmark is above average, within ±5% is average.
func RateProcessingTime(user, benchmark *float64) Rating {
	if user == nil || benchmark == nil {
		return RatingNotApplicable
	}
	switch {
	case *user <= *benchmark*0.95:
		return RatingAboveAverage
	case *user <= *benchmark*1.05:
		return RatingAverage
	default:
		return RatingBelowAverage
	}
}

// RateCorrectionsPerNote rates a corrections-per-note average where lower is
// better, with a wider tolerance band than the other metrics: at most 80% of
// the benchmark is above average, up to 120% is average.
func RateCorrectionsPerNote(user, benchmark *float64) Rating {
	if user == nil || benchmark == nil {
		return RatingNotApplicable
	}
	switch {
	case *user <= *benchmark*0.80:
		return RatingAboveAverage
	case *user <= *benchmark*1.20:
		return RatingAverage
	default:
		return RatingBelowAverage
	}
}

// Recommendation texts for problematic templates.
const (
	RecommendCritical         = "Critical: immediate revision"
	RecommendLowConfidence    = "High priority: significant improvement needed"
	RecommendManyCorrections  = "High priority: excessive corrections"
	RecommendConsiderOptimize = "Medium priority: consider optimization"
)

// Recommend assigns a revision recommendation to a template from its
// trailing-window statistics. Rules are evaluated in priority order; the
// first match wins.
func Recommend(avgConfidence, avgCorrections float64) string {
	switch {
	case avgConfidence < 0.50:
		return RecommendCritical
	case avgConfidence < 0.60:
		return RecommendLowConfidence
	case avgCorrections > 3:
		return RecommendManyCorrections
	default:
		return RecommendConsiderOptimize
	}
}

// TemplateHealth is one ranked entry of the health analyzer output.
type TemplateHealth struct {
	TemplateKey    string
	UsageCount     int64
	AvgConfidence  float64
	AvgCorrections float64
	Recommendation string
}

// HealthCriteria parameterizes the template health scan. A template is
// flagged when it has at least MinUsageCount usages inside the trailing
// WindowDays and either its average confidence is below MaxConfidence or its
// total correction count exceeds MaxCorrectionRate × usage count.
//
// Note the correction check uses the total correction count, not the
// distinct-note rate the daily aggregate reports. The two definitions are
// intentionally kept separate.
type HealthCriteria struct {
	MinUsageCount     int
	MaxConfidence     float64
	MaxCorrectionRate float64
	WindowDays        int
}

// WithDefaults returns a copy of c with WindowDays defaulted to
// [DefaultWindowDays] when unset.
func (c HealthCriteria) WithDefaults() HealthCriteria {
	if c.WindowDays <= 0 {
		c.WindowDays = DefaultWindowDays
	}
	return c
}
