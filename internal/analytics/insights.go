package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Mosas2000/sprintfund/internal/models"
)

// Recommendation scoring. Score deliberately conflates high impact with low
// effort (score = impact - effort*effortWeight); a cheap medium-impact action
// can outrank an expensive high-impact one. This is a design choice carried
// over from the scoring model, not a bug.
const (
	effortWeight          = 5.0
	recommendationCutoff  = 40.0
	comparativeRateMargin = 0.2
)

// insightNamespace seeds content-derived insight ids so identical findings
// produce identical ids across runs.
var insightNamespace = uuid.MustParse("8f0104ac-9f05-4b4e-a9c4-6aee24cf2c1e")

// InsightInput bundles everything the rule set inspects.
type InsightInput struct {
	Proposals  []models.ProposalMetric
	TimeSeries *models.TimeSeriesData
	Anomalies  []models.Anomaly
}

var priorityRank = map[models.Severity]int{
	models.SeverityHigh:   0,
	models.SeverityMedium: 1,
	models.SeverityLow:    2,
}

// GenerateInsights runs every rule against the aggregated data. Each rule
// independently emits zero or one insight. Final ordering is priority (high
// first) then recency (newest first), stable, ties kept in insertion order.
func GenerateInsights(input InsightInput, now time.Time) []models.Insight {
	var insights []models.Insight

	rules := []func(InsightInput, time.Time) *models.Insight{
		fundingTrendRule,
		participationTrendRule,
		anomalySpikeRule,
		comparativeCategoryRule,
		projectionRule,
	}
	for _, rule := range rules {
		if insight := rule(input, now); insight != nil {
			insights = append(insights, *insight)
		}
	}

	sort.SliceStable(insights, func(i, j int) bool {
		if priorityRank[insights[i].Priority] != priorityRank[insights[j].Priority] {
			return priorityRank[insights[i].Priority] < priorityRank[insights[j].Priority]
		}
		return insights[i].CreatedAt.After(insights[j].CreatedAt)
	})
	return insights
}

// insightID derives a stable id from the insight content.
func insightID(insightType models.InsightType, title, description string) string {
	return uuid.NewSHA1(insightNamespace, []byte(string(insightType)+"|"+title+"|"+description)).String()
}

func newInsight(t models.InsightType, priority models.Severity, title, description string, now time.Time) *models.Insight {
	return &models.Insight{
		ID:          insightID(t, title, description),
		Type:        t,
		Priority:    priority,
		Title:       title,
		Description: description,
		CreatedAt:   now,
	}
}

func fundingTrendRule(input InsightInput, now time.Time) *models.Insight {
	if input.TimeSeries == nil || input.TimeSeries.FundingTrend.Direction == models.TrendStable {
		return nil
	}

	trend := input.TimeSeries.FundingTrend
	if trend.Direction == models.TrendIncreasing {
		insight := newInsight(models.InsightTrend, models.SeverityMedium,
			"Funding volume is trending up",
			fmt.Sprintf("Total approved funding per %s is rising (slope %.2f).", input.TimeSeries.Interval, trend.Slope),
			now)
		insight.DataPoints = input.TimeSeries.MovingAverages["total_funding"]
		return insight
	}

	insight := newInsight(models.InsightTrend, models.SeverityHigh,
		"Funding volume is trending down",
		fmt.Sprintf("Total approved funding per %s is falling (slope %.2f).", input.TimeSeries.Interval, trend.Slope),
		now)
	insight.Actionable = true
	insight.Recommendations = []string{
		"Review recently rejected proposals for common failure patterns",
		"Survey proposers about friction in the submission process",
	}
	insight.DataPoints = input.TimeSeries.MovingAverages["total_funding"]
	return insight
}

func participationTrendRule(input InsightInput, now time.Time) *models.Insight {
	if input.TimeSeries == nil || input.TimeSeries.VoterTrend.Direction == models.TrendStable {
		return nil
	}

	trend := input.TimeSeries.VoterTrend
	if trend.Direction == models.TrendIncreasing {
		insight := newInsight(models.InsightTrend, models.SeverityLow,
			"Voter participation is growing",
			fmt.Sprintf("Unique voters per %s are increasing (slope %.2f).", input.TimeSeries.Interval, trend.Slope),
			now)
		insight.DataPoints = input.TimeSeries.MovingAverages["unique_voters"]
		return insight
	}

	insight := newInsight(models.InsightTrend, models.SeverityHigh,
		"Voter participation is declining",
		fmt.Sprintf("Unique voters per %s are decreasing (slope %.2f).", input.TimeSeries.Interval, trend.Slope),
		now)
	insight.Actionable = true
	insight.Recommendations = []string{
		"Run a voter outreach campaign before the next proposal round",
		"Consider vote weight incentives for consistent participants",
	}
	insight.DataPoints = input.TimeSeries.MovingAverages["unique_voters"]
	return insight
}

func anomalySpikeRule(input InsightInput, now time.Time) *models.Insight {
	var high []uint64
	for _, a := range input.Anomalies {
		if a.Severity == models.SeverityHigh {
			high = append(high, a.ProposalID)
		}
	}
	if len(high) == 0 {
		return nil
	}

	insight := newInsight(models.InsightAnomaly, models.SeverityHigh,
		"High-severity voting anomalies detected",
		fmt.Sprintf("%d proposal(s) show vote patterns consistent with manipulation.", len(high)),
		now)
	insight.Actionable = true
	insight.Recommendations = []string{
		"Audit the flagged proposals before execution",
		"Cross-check flagged voter addresses against prior anomalies",
	}
	points := make([]float64, len(high))
	for i, id := range high {
		points[i] = float64(id)
	}
	insight.DataPoints = points
	return insight
}

// comparativeCategoryRule compares each category's execution success rate
// against the platform average and reports the widest gap beyond the margin.
func comparativeCategoryRule(input InsightInput, now time.Time) *models.Insight {
	if len(input.Proposals) == 0 {
		return nil
	}

	total := 0
	executed := 0
	type catAcc struct{ total, executed int }
	byCategory := make(map[models.ProposalCategory]*catAcc)
	for _, p := range input.Proposals {
		total++
		acc, ok := byCategory[p.Category]
		if !ok {
			acc = &catAcc{}
			byCategory[p.Category] = acc
		}
		acc.total++
		if p.Executed {
			executed++
			acc.executed++
		}
	}
	platformRate := float64(executed) / float64(total)

	var bestCategory models.ProposalCategory
	bestGap := 0.0
	bestRate := 0.0
	for _, c := range append(models.ProposalCategories, models.CategoryOther) {
		acc, ok := byCategory[c]
		if !ok || acc.total < 2 {
			continue
		}
		rate := float64(acc.executed) / float64(acc.total)
		gap := rate - platformRate
		if gap < 0 {
			gap = -gap
		}
		if gap > bestGap {
			bestGap = gap
			bestCategory = c
			bestRate = rate
		}
	}
	if bestGap <= comparativeRateMargin {
		return nil
	}

	if bestRate > platformRate {
		insight := newInsight(models.InsightComparative, models.SeverityMedium,
			fmt.Sprintf("%s proposals outperform the platform", bestCategory),
			fmt.Sprintf("%s proposals execute at %.0f%% vs a platform average of %.0f%%.",
				bestCategory, bestRate*100, platformRate*100),
			now)
		insight.DataPoints = []float64{bestRate, platformRate}
		return insight
	}

	insight := newInsight(models.InsightComparative, models.SeverityMedium,
		fmt.Sprintf("%s proposals underperform the platform", bestCategory),
		fmt.Sprintf("%s proposals execute at %.0f%% vs a platform average of %.0f%%.",
			bestCategory, bestRate*100, platformRate*100),
		now)
	insight.Actionable = true
	insight.Recommendations = []string{
		fmt.Sprintf("Review scope and budget guidance for %s proposals", bestCategory),
	}
	insight.DataPoints = []float64{bestRate, platformRate}
	return insight
}

// projectionRule extends the fitted proposal-count line one bucket forward.
func projectionRule(input InsightInput, now time.Time) *models.Insight {
	if input.TimeSeries == nil || len(input.TimeSeries.Points) < minTrendBuckets {
		return nil
	}

	counts := make([]float64, len(input.TimeSeries.Points))
	for i, p := range input.TimeSeries.Points {
		counts[i] = float64(p.ProposalCount)
	}
	trend := ClassifyTrend(counts)

	projected := counts[len(counts)-1] + trend.Slope
	if projected < 0 {
		projected = 0
	}

	insight := newInsight(models.InsightProjection, models.SeverityLow,
		"Proposal volume projection",
		fmt.Sprintf("Linear projection suggests about %.0f proposal(s) next %s.", projected, input.TimeSeries.Interval),
		now)
	insight.DataPoints = append(counts, projected)
	return insight
}

// GenerateRecommendations synthesizes candidate follow-up actions from the
// analysis and returns the scored survivors, ranked and truncated to limit.
func GenerateRecommendations(input InsightInput, limit int) []models.Recommendation {
	var candidates []models.Recommendation

	add := func(title, description string, impact, effort float64) {
		candidates = append(candidates, models.Recommendation{
			ID:          uuid.NewSHA1(insightNamespace, []byte("rec|"+title)).String(),
			Title:       title,
			Description: description,
			Impact:      impact,
			Effort:      effort,
		})
	}

	if input.TimeSeries != nil && input.TimeSeries.FundingTrend.Direction == models.TrendDecreasing {
		add("Re-engage proposers",
			"Funding approvals are trending down; contact recent proposers and unblock stalled submissions.",
			75, 4)
	}
	if input.TimeSeries != nil && input.TimeSeries.VoterTrend.Direction == models.TrendDecreasing {
		add("Launch voter outreach",
			"Unique voter counts are falling; notify inactive voters about open proposals.",
			70, 5)
	}

	for _, a := range input.Anomalies {
		if a.Severity == models.SeverityHigh {
			add("Audit flagged proposals",
				"One or more proposals show vote velocities far outside the population distribution.",
				90, 6)
			break
		}
	}

	if insight := comparativeCategoryRule(input, time.Time{}); insight != nil && !insight.Actionable {
		add("Prioritize the strongest category",
			insight.Description,
			65, 3)
	}

	if len(input.Proposals) > 0 {
		stale := 0
		for _, p := range input.Proposals {
			if !p.Executed && p.TotalVotes == 0 {
				stale++
			}
		}
		if stale*2 > len(input.Proposals) {
			add("Surface unvoted proposals",
				fmt.Sprintf("%d proposal(s) have no votes at all; feature them prominently to voters.", stale),
				60, 2)
		}
	}

	return ScoreRecommendations(candidates, limit)
}

// ScoreRecommendations applies score = impact - effort*5, keeps only scores
// above the cutoff, sorts descending and truncates to limit (unlimited when
// limit <= 0).
func ScoreRecommendations(candidates []models.Recommendation, limit int) []models.Recommendation {
	scored := make([]models.Recommendation, 0, len(candidates))
	for _, c := range candidates {
		c.Score = c.Impact - c.Effort*effortWeight
		if c.Score > recommendationCutoff {
			scored = append(scored, c)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}
