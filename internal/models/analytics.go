package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AggregationInterval selects the bucket width for time-series aggregation.
type AggregationInterval string

const (
	IntervalDay   AggregationInterval = "day"
	IntervalWeek  AggregationInterval = "week"
	IntervalMonth AggregationInterval = "month"
)

// TrendDirection classifies the fitted slope of a metric series.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// TimeSeriesPoint is one aggregation bucket. Derived per request from the
// proposal set; never persisted on its own.
type TimeSeriesPoint struct {
	Timestamp       time.Time       `json:"timestamp"`
	ProposalCount   int             `json:"proposal_count"`
	TotalFunding    decimal.Decimal `json:"total_funding"`
	AvgFunding      decimal.Decimal `json:"avg_funding"`
	SuccessRate     float64         `json:"success_rate"`
	AvgVoteVelocity float64         `json:"avg_vote_velocity"`
	UniqueVoters    int             `json:"unique_voters"`
}

// TrendResult carries the fitted slope and its classification for one series.
type TrendResult struct {
	Direction TrendDirection `json:"direction"`
	Slope     float64        `json:"slope"`
}

// SeasonalityResult reports whether any monthly bucket's proposal count
// deviates significantly from the mean. Month granularity only.
type SeasonalityResult struct {
	Detected       bool    `json:"detected"`
	PeakDeviation  float64 `json:"peak_deviation"`
	MeanCount      float64 `json:"mean_count"`
	StdDevCount    float64 `json:"std_dev_count"`
	BucketsSampled int     `json:"buckets_sampled"`
}

// TimeSeriesData is the full output of one aggregation run.
type TimeSeriesData struct {
	Interval       AggregationInterval  `json:"interval"`
	Points         []TimeSeriesPoint    `json:"points"`
	MovingAverages map[string][]float64 `json:"moving_averages"`
	FundingTrend   TrendResult          `json:"funding_trend"`
	VoterTrend     TrendResult          `json:"voter_trend"`
	Seasonality    *SeasonalityResult   `json:"seasonality,omitempty"`
}

// AnomalyType tags which statistical check a proposal tripped.
type AnomalyType string

const (
	AnomalyVotingManipulation AnomalyType = "voting_manipulation"
	AnomalyOutlierEngagement  AnomalyType = "outlier_engagement"
	AnomalyTimingAnomaly      AnomalyType = "timing_anomaly"
)

// Severity ranks anomalies and insights.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Anomaly is one flagged deviation. A single proposal may raise several.
type Anomaly struct {
	Type        AnomalyType        `json:"type"`
	ProposalID  uint64             `json:"proposal_id"`
	Severity    Severity           `json:"severity"`
	Description string             `json:"description"`
	Metrics     map[string]float64 `json:"metrics"`
}

// InsightType tags which rule produced an insight.
type InsightType string

const (
	InsightTrend       InsightType = "trend"
	InsightAnomaly     InsightType = "anomaly"
	InsightComparative InsightType = "comparative"
	InsightProjection  InsightType = "projection"
)

// Insight is one human-readable finding, generated fresh per analysis run
// and never persisted. ID is derived from the insight content so equal
// findings produce equal ids across runs.
type Insight struct {
	ID              string      `json:"id"`
	Type            InsightType `json:"type"`
	Priority        Severity    `json:"priority"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Actionable      bool        `json:"actionable"`
	Recommendations []string    `json:"recommendations,omitempty"`
	DataPoints      []float64   `json:"data_points,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Recommendation is a scored, ranked follow-up action. Score deliberately
// conflates high impact with low effort: score = impact - effort*5.
type Recommendation struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Impact      float64 `json:"impact"`
	Effort      float64 `json:"effort"`
	Score       float64 `json:"score"`
}
