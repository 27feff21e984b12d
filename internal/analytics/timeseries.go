package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/Mosas2000/sprintfund/internal/models"
)

// Trend classification thresholds on the fitted OLS slope.
const (
	trendSlopeThreshold = 0.1

	// minTrendBuckets is the floor below which regression is numerically
	// unstable and the trend defaults to stable with slope 0.
	minTrendBuckets = 3

	// seasonalityMinBuckets gates seasonality detection; fewer monthly
	// buckets than a full year cannot show a seasonal pattern.
	seasonalityMinBuckets = 12

	seasonalitySigma = 1.5
)

// Aggregate buckets proposals by creation time into interval-aligned
// periods and derives the full time-series view: per-bucket metrics, moving
// averages, trend classification and (month granularity) seasonality.
func Aggregate(proposals []models.ProposalMetric, interval models.AggregationInterval, window int) *models.TimeSeriesData {
	if window <= 1 {
		window = 1
	}

	points := bucketize(proposals, interval)

	data := &models.TimeSeriesData{
		Interval: interval,
		Points:   points,
		MovingAverages: map[string][]float64{
			"proposal_count":    MovingAverage(series(points, func(p models.TimeSeriesPoint) float64 { return float64(p.ProposalCount) }), window),
			"total_funding":     MovingAverage(series(points, func(p models.TimeSeriesPoint) float64 { return p.TotalFunding.InexactFloat64() }), window),
			"success_rate":      MovingAverage(series(points, func(p models.TimeSeriesPoint) float64 { return p.SuccessRate }), window),
			"avg_vote_velocity": MovingAverage(series(points, func(p models.TimeSeriesPoint) float64 { return p.AvgVoteVelocity }), window),
			"unique_voters":     MovingAverage(series(points, func(p models.TimeSeriesPoint) float64 { return float64(p.UniqueVoters) }), window),
		},
		FundingTrend: ClassifyTrend(series(points, func(p models.TimeSeriesPoint) float64 { return p.TotalFunding.InexactFloat64() })),
		VoterTrend:   ClassifyTrend(series(points, func(p models.TimeSeriesPoint) float64 { return float64(p.UniqueVoters) })),
	}

	if interval == models.IntervalMonth {
		data.Seasonality = detectSeasonality(points)
	}

	return data
}

func bucketize(proposals []models.ProposalMetric, interval models.AggregationInterval) []models.TimeSeriesPoint {
	type bucketAcc struct {
		count         int
		executed      int
		totalFunding  decimal.Decimal
		velocitySum   float64
		uniqueVoters  int
	}

	buckets := make(map[time.Time]*bucketAcc)
	for _, p := range proposals {
		key := BucketStart(p.CreatedAt, interval)
		acc, ok := buckets[key]
		if !ok {
			acc = &bucketAcc{}
			buckets[key] = acc
		}
		acc.count++
		acc.velocitySum += p.VoteVelocity
		acc.uniqueVoters += p.UniqueVoters
		if p.Executed {
			acc.executed++
			acc.totalFunding = acc.totalFunding.Add(p.RequestedAmount)
		}
	}

	keys := make([]time.Time, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	// Quiet periods between the first and last observed bucket become
	// explicit zero-count points, so trends and seasonality see them.
	if len(keys) > 1 {
		filled := make([]time.Time, 0, len(keys))
		for k := keys[0]; !k.After(keys[len(keys)-1]); k = nextBucketStart(k, interval) {
			filled = append(filled, k)
		}
		keys = filled
	}

	points := make([]models.TimeSeriesPoint, 0, len(keys))
	for _, k := range keys {
		acc, ok := buckets[k]
		if !ok {
			points = append(points, models.TimeSeriesPoint{
				Timestamp:    k,
				TotalFunding: decimal.Zero,
				AvgFunding:   decimal.Zero,
			})
			continue
		}

		avgFunding := decimal.Zero
		if acc.executed > 0 {
			avgFunding = acc.totalFunding.Div(decimal.NewFromInt(int64(acc.executed)))
		}

		points = append(points, models.TimeSeriesPoint{
			Timestamp:       k,
			ProposalCount:   acc.count,
			TotalFunding:    acc.totalFunding,
			AvgFunding:      avgFunding,
			SuccessRate:     float64(acc.executed) / float64(acc.count),
			AvgVoteVelocity: acc.velocitySum / float64(acc.count),
			UniqueVoters:    acc.uniqueVoters,
		})
	}
	return points
}

// BucketStart aligns t to the start of its containing interval, in UTC.
// Weeks start on Monday.
func BucketStart(t time.Time, interval models.AggregationInterval) time.Time {
	t = t.UTC()
	switch interval {
	case models.IntervalWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case models.IntervalMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

func nextBucketStart(t time.Time, interval models.AggregationInterval) time.Time {
	switch interval {
	case models.IntervalWeek:
		return t.AddDate(0, 0, 7)
	case models.IntervalMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// MovingAverage smooths values with a trailing window. The first window-1
// points pass through unsmoothed so the output always matches the input
// length; the series is never silently shrunk.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}

	out := make([]float64, len(values))
	for i := range values {
		if i < window-1 {
			out[i] = values[i]
			continue
		}
		sum := 0.0
		for j := i - window + 1; j <= i; j++ {
			sum += values[j]
		}
		out[i] = sum / float64(window)
	}
	return out
}

// ClassifyTrend fits an ordinary-least-squares line over (bucketIndex,
// value) and classifies the slope. Below minTrendBuckets the regression is
// skipped and the trend is stable with slope 0.
func ClassifyTrend(values []float64) models.TrendResult {
	if len(values) < minTrendBuckets {
		return models.TrendResult{Direction: models.TrendStable, Slope: 0}
	}

	xs := make([]float64, len(values))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, slope := stat.LinearRegression(xs, values, nil, false)

	switch {
	case slope > trendSlopeThreshold:
		return models.TrendResult{Direction: models.TrendIncreasing, Slope: slope}
	case slope < -trendSlopeThreshold:
		return models.TrendResult{Direction: models.TrendDecreasing, Slope: slope}
	default:
		return models.TrendResult{Direction: models.TrendStable, Slope: slope}
	}
}

func detectSeasonality(points []models.TimeSeriesPoint) *models.SeasonalityResult {
	result := &models.SeasonalityResult{BucketsSampled: len(points)}
	if len(points) < seasonalityMinBuckets {
		return result
	}

	counts := series(points, func(p models.TimeSeriesPoint) float64 { return float64(p.ProposalCount) })
	mean := stat.Mean(counts, nil)
	stdDev := stat.StdDev(counts, nil)

	result.MeanCount = mean
	result.StdDevCount = stdDev
	if stdDev == 0 {
		return result
	}

	for _, c := range counts {
		deviation := (c - mean) / stdDev
		if deviation < 0 {
			deviation = -deviation
		}
		if deviation > result.PeakDeviation {
			result.PeakDeviation = deviation
		}
	}
	result.Detected = result.PeakDeviation > seasonalitySigma
	return result
}

func series(points []models.TimeSeriesPoint, extract func(models.TimeSeriesPoint) float64) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = extract(p)
	}
	return out
}
