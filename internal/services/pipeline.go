package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Mosas2000/sprintfund/internal/analytics"
	"github.com/Mosas2000/sprintfund/internal/config"
	"github.com/Mosas2000/sprintfund/internal/enrichment"
	"github.com/Mosas2000/sprintfund/internal/models"
)

// Snapshot is one complete, internally consistent analysis result. Consumers
// only ever see whole snapshots: a failed refresh never exposes a partial
// dataset as if it were complete.
type Snapshot struct {
	Proposals       []models.ProposalMetric `json:"proposals"`
	Voters          []models.VoterMetric    `json:"voters"`
	TimeSeries      *models.TimeSeriesData  `json:"time_series"`
	Anomalies       []models.Anomaly        `json:"anomalies"`
	Insights        []models.Insight        `json:"insights"`
	Recommendations []models.Recommendation `json:"recommendations"`
	RefreshedAt     time.Time               `json:"refreshed_at"`
}

// Pipeline runs the full analysis: collect, enrich, derive, aggregate,
// detect, synthesize. It exposes Refresh only; background cadence is the
// host application's policy, not the pipeline's.
type Pipeline struct {
	collector *Collector
	enricher  *enrichment.Service
	cfg       *config.AnalyticsConfig
	batchSize int
	logger    *logrus.Logger

	mu       sync.RWMutex
	snapshot *Snapshot
	lastErr  error
}

// NewPipeline wires the analysis pipeline.
func NewPipeline(collector *Collector, enricher *enrichment.Service, analyticsCfg *config.AnalyticsConfig, batchSize int, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		collector: collector,
		enricher:  enricher,
		cfg:       analyticsCfg,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Refresh recomputes the snapshot from the ledger. On a hard collection
// error the previous snapshot is kept and the error is both recorded and
// returned; everything downstream of collection degrades gracefully and
// cannot fail the refresh.
func (p *Pipeline) Refresh(ctx context.Context) error {
	started := time.Now()

	proposals, err := p.collector.FetchAllProposals(ctx, true)
	if err != nil {
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()
		p.logger.WithField("error", err.Error()).Error("Pipeline refresh failed")
		return err
	}

	if p.enricher != nil {
		p.enricher.BatchEnrich(ctx, proposals, p.batchSize)
	}

	votes := p.collector.CollectedVotes()
	voters := analytics.BuildVoterMetrics(proposals, votes)

	window := p.cfg.MovingAverageWindow
	timeSeries := analytics.Aggregate(proposals, models.IntervalWeek, window)
	anomalies := analytics.DetectAnomalies(proposals)

	input := analytics.InsightInput{
		Proposals:  proposals,
		TimeSeries: timeSeries,
		Anomalies:  anomalies,
	}
	insights := analytics.GenerateInsights(input, time.Now())
	recommendations := analytics.GenerateRecommendations(input, p.cfg.RecommendationLimit)

	snapshot := &Snapshot{
		Proposals:       proposals,
		Voters:          voters,
		TimeSeries:      timeSeries,
		Anomalies:       anomalies,
		Insights:        insights,
		Recommendations: recommendations,
		RefreshedAt:     time.Now(),
	}

	p.mu.Lock()
	p.snapshot = snapshot
	p.lastErr = nil
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"proposals": len(proposals),
		"voters":    len(voters),
		"anomalies": len(anomalies),
		"insights":  len(insights),
		"duration":  time.Since(started),
	}).Info("Pipeline refresh completed")
	return nil
}

// Snapshot returns the latest complete analysis, or false when no refresh
// has succeeded yet.
func (p *Pipeline) Snapshot() (*Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot, p.snapshot != nil
}

// LastError reports the discrete load-failed state: non-nil when the most
// recent refresh failed hard. Consumers surface it with a manual retry.
func (p *Pipeline) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// AggregateSeries re-buckets the latest snapshot at the requested interval.
func (p *Pipeline) AggregateSeries(interval models.AggregationInterval) (*models.TimeSeriesData, bool) {
	snapshot, ok := p.Snapshot()
	if !ok {
		return nil, false
	}
	if interval == models.IntervalWeek {
		return snapshot.TimeSeries, true
	}
	return analytics.Aggregate(snapshot.Proposals, interval, p.cfg.MovingAverageWindow), true
}
