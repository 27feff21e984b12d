package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mosas2000/sprintfund/internal/models"
)

func TestBucketStart(t *testing.T) {
	// Wednesday 2026-03-04 14:30 UTC.
	ts := time.Date(2026, 3, 4, 14, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), BucketStart(ts, models.IntervalDay))
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), BucketStart(ts, models.IntervalWeek))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), BucketStart(ts, models.IntervalMonth))

	// Sunday belongs to the week starting the previous Monday.
	sunday := time.Date(2026, 3, 8, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), BucketStart(sunday, models.IntervalWeek))
}

func TestMovingAverage(t *testing.T) {
	values := []float64{2, 4, 6, 8, 10}

	out := MovingAverage(values, 3)
	require.Len(t, out, len(values))

	// First window-1 points pass through unsmoothed.
	assert.Equal(t, 2.0, out[0])
	assert.Equal(t, 4.0, out[1])
	assert.InDelta(t, 4.0, out[2], 1e-9)
	assert.InDelta(t, 6.0, out[3], 1e-9)
	assert.InDelta(t, 8.0, out[4], 1e-9)

	assert.Equal(t, values, MovingAverage(values, 1))
	assert.Empty(t, MovingAverage(nil, 3))
}

func TestClassifyTrend(t *testing.T) {
	increasing := ClassifyTrend([]float64{1, 2, 3, 4, 5})
	assert.Equal(t, models.TrendIncreasing, increasing.Direction)
	assert.InDelta(t, 1.0, increasing.Slope, 1e-9)

	decreasing := ClassifyTrend([]float64{10, 8, 6, 4})
	assert.Equal(t, models.TrendDecreasing, decreasing.Direction)

	stable := ClassifyTrend([]float64{5, 5.05, 5, 5.02})
	assert.Equal(t, models.TrendStable, stable.Direction)
}

func TestClassifyTrend_TooFewBuckets(t *testing.T) {
	for _, values := range [][]float64{nil, {3}, {3, 9}} {
		result := ClassifyTrend(values)
		assert.Equal(t, models.TrendStable, result.Direction)
		assert.Zero(t, result.Slope)
	}
}

func TestAggregate_Buckets(t *testing.T) {
	day1 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)

	proposals := []models.ProposalMetric{
		{ID: 1, CreatedAt: day1, Executed: true, RequestedAmount: decimal.NewFromInt(100), VoteVelocity: 2, UniqueVoters: 3},
		{ID: 2, CreatedAt: day1.Add(2 * time.Hour), Executed: false, RequestedAmount: decimal.NewFromInt(50), VoteVelocity: 4, UniqueVoters: 1},
		{ID: 3, CreatedAt: day2, Executed: true, RequestedAmount: decimal.NewFromInt(30), VoteVelocity: 1, UniqueVoters: 2},
	}

	data := Aggregate(proposals, models.IntervalDay, 1)
	require.Len(t, data.Points, 2)

	first := data.Points[0]
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), first.Timestamp)
	assert.Equal(t, 2, first.ProposalCount)
	// Only executed proposals contribute funding.
	assert.True(t, first.TotalFunding.Equal(decimal.NewFromInt(100)))
	assert.True(t, first.AvgFunding.Equal(decimal.NewFromInt(100)))
	assert.InDelta(t, 0.5, first.SuccessRate, 1e-9)
	assert.InDelta(t, 3.0, first.AvgVoteVelocity, 1e-9)
	assert.Equal(t, 4, first.UniqueVoters)

	second := data.Points[1]
	assert.Equal(t, 1, second.ProposalCount)
	assert.InDelta(t, 1.0, second.SuccessRate, 1e-9)

	require.Contains(t, data.MovingAverages, "total_funding")
	assert.Len(t, data.MovingAverages["total_funding"], 2)

	// Two buckets stay below the regression floor.
	assert.Equal(t, models.TrendStable, data.FundingTrend.Direction)
	assert.Nil(t, data.Seasonality)
}

func TestAggregate_FillsQuietPeriods(t *testing.T) {
	proposals := []models.ProposalMetric{
		{ID: 1, CreatedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), VoteVelocity: 2},
		{ID: 2, CreatedAt: time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC), VoteVelocity: 4},
	}

	data := Aggregate(proposals, models.IntervalDay, 1)

	// Two quiet days between the observed buckets become zero-count points.
	require.Len(t, data.Points, 4)
	for i, p := range data.Points {
		assert.Equal(t, time.Date(2026, 3, 2+i, 0, 0, 0, 0, time.UTC), p.Timestamp)
	}
	for _, p := range data.Points[1:3] {
		assert.Equal(t, 0, p.ProposalCount)
		assert.True(t, p.TotalFunding.IsZero())
		assert.Zero(t, p.SuccessRate)
		assert.Zero(t, p.AvgVoteVelocity)
	}
	assert.Len(t, data.MovingAverages["proposal_count"], 4)
}

func TestAggregate_SeasonalityRequiresFullYear(t *testing.T) {
	var proposals []models.ProposalMetric
	for month := 1; month <= 11; month++ {
		proposals = append(proposals, models.ProposalMetric{
			ID:        uint64(month),
			CreatedAt: time.Date(2026, time.Month(month), 10, 0, 0, 0, 0, time.UTC),
		})
	}

	data := Aggregate(proposals, models.IntervalMonth, 3)
	require.NotNil(t, data.Seasonality)
	assert.False(t, data.Seasonality.Detected)
	assert.Equal(t, 11, data.Seasonality.BucketsSampled)
}

func TestAggregate_SeasonalityDetectsSpike(t *testing.T) {
	var proposals []models.ProposalMetric
	id := uint64(0)
	add := func(month time.Month, count int) {
		for i := 0; i < count; i++ {
			id++
			proposals = append(proposals, models.ProposalMetric{
				ID:        id,
				CreatedAt: time.Date(2026, month, 10, 0, 0, 0, 0, time.UTC),
			})
		}
	}
	for month := time.January; month <= time.November; month++ {
		add(month, 2)
	}
	add(time.December, 20)

	data := Aggregate(proposals, models.IntervalMonth, 3)
	require.NotNil(t, data.Seasonality)
	assert.True(t, data.Seasonality.Detected)
	assert.Greater(t, data.Seasonality.PeakDeviation, 1.5)
}

func TestAggregate_SeasonalityFlagsQuietMonth(t *testing.T) {
	var proposals []models.ProposalMetric
	id := uint64(0)
	for month := time.January; month <= time.December; month++ {
		if month == time.June {
			continue
		}
		for i := 0; i < 2; i++ {
			id++
			proposals = append(proposals, models.ProposalMetric{
				ID:        id,
				CreatedAt: time.Date(2026, month, 10, 0, 0, 0, 0, time.UTC),
			})
		}
	}

	data := Aggregate(proposals, models.IntervalMonth, 3)

	// The empty June still yields a bucket, so the year is fully sampled
	// and the zero-count month is the outlier.
	require.NotNil(t, data.Seasonality)
	assert.Equal(t, 12, data.Seasonality.BucketsSampled)
	assert.True(t, data.Seasonality.Detected)
	assert.InDelta(t, 3.175, data.Seasonality.PeakDeviation, 0.01)
}
