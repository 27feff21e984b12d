package analytics

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/Mosas2000/sprintfund/internal/models"
)

const (
	// velocitySigma flags vote velocities beyond mean + 3 stddev.
	velocitySigma = 3.0

	// Engagement bounds relative to the population average unique-voter
	// count.
	engagementHighFactor = 3.0
	engagementLowFactor  = 0.2

	// momentumLimit flags proposals whose vote rate shifted by more than
	// 5x between lifetime halves.
	momentumLimit = 5.0
)

var severityRank = map[models.Severity]int{
	models.SeverityHigh:   0,
	models.SeverityMedium: 1,
	models.SeverityLow:    2,
}

// DetectAnomalies evaluates three independent statistical checks against the
// candidate set's own distribution. A single proposal may raise multiple
// anomalies; each is reported independently. Results are ordered by severity
// (high first) then proposal id ascending.
func DetectAnomalies(proposals []models.ProposalMetric) []models.Anomaly {
	if len(proposals) == 0 {
		return nil
	}

	velocities := make([]float64, len(proposals))
	voters := make([]float64, len(proposals))
	for i, p := range proposals {
		velocities[i] = p.VoteVelocity
		voters[i] = float64(p.UniqueVoters)
	}

	velocityMean := stat.Mean(velocities, nil)
	velocityStdDev := stat.StdDev(velocities, nil)
	voterMean := stat.Mean(voters, nil)

	var anomalies []models.Anomaly
	for _, p := range proposals {
		anomalies = append(anomalies, checkVelocity(p, velocityMean, velocityStdDev)...)
		anomalies = append(anomalies, checkEngagement(p, voterMean)...)
		anomalies = append(anomalies, checkTiming(p)...)
	}

	sort.SliceStable(anomalies, func(i, j int) bool {
		if severityRank[anomalies[i].Severity] != severityRank[anomalies[j].Severity] {
			return severityRank[anomalies[i].Severity] < severityRank[anomalies[j].Severity]
		}
		return anomalies[i].ProposalID < anomalies[j].ProposalID
	})
	return anomalies
}

func checkVelocity(p models.ProposalMetric, mean, stdDev float64) []models.Anomaly {
	if stdDev <= 0 {
		return nil
	}
	threshold := mean + velocitySigma*stdDev
	if p.VoteVelocity <= threshold {
		return nil
	}
	return []models.Anomaly{{
		Type:       models.AnomalyVotingManipulation,
		ProposalID: p.ID,
		Severity:   models.SeverityHigh,
		Description: fmt.Sprintf("Vote velocity %.2f/h exceeds population threshold %.2f/h (mean %.2f, stddev %.2f)",
			p.VoteVelocity, threshold, mean, stdDev),
		Metrics: map[string]float64{
			"velocity":  p.VoteVelocity,
			"mean":      mean,
			"std_dev":   stdDev,
			"z_score":   (p.VoteVelocity - mean) / stdDev,
			"threshold": threshold,
		},
	}}
}

func checkEngagement(p models.ProposalMetric, voterMean float64) []models.Anomaly {
	if voterMean <= 0 {
		return nil
	}

	ratio := float64(p.UniqueVoters) / voterMean
	switch {
	case ratio > engagementHighFactor:
		return []models.Anomaly{{
			Type:       models.AnomalyOutlierEngagement,
			ProposalID: p.ID,
			Severity:   models.SeverityMedium,
			Description: fmt.Sprintf("Unique voter count %d is %.1fx the population average %.1f",
				p.UniqueVoters, ratio, voterMean),
			Metrics: map[string]float64{
				"unique_voters": float64(p.UniqueVoters),
				"average":       voterMean,
				"ratio":         ratio,
			},
		}}
	case ratio < engagementLowFactor && p.TotalVotes > 0:
		return []models.Anomaly{{
			Type:       models.AnomalyOutlierEngagement,
			ProposalID: p.ID,
			Severity:   models.SeverityLow,
			Description: fmt.Sprintf("Unique voter count %d is only %.2fx the population average %.1f despite %d votes",
				p.UniqueVoters, ratio, voterMean, p.TotalVotes),
			Metrics: map[string]float64{
				"unique_voters": float64(p.UniqueVoters),
				"average":       voterMean,
				"ratio":         ratio,
				"total_votes":   float64(p.TotalVotes),
			},
		}}
	}
	return nil
}

func checkTiming(p models.ProposalMetric) []models.Anomaly {
	if math.Abs(p.Momentum) <= momentumLimit {
		return nil
	}

	severity := models.SeverityLow
	shape := "decelerated"
	if p.Momentum > 0 {
		severity = models.SeverityMedium
		shape = "accelerated"
	}
	return []models.Anomaly{{
		Type:       models.AnomalyTimingAnomaly,
		ProposalID: p.ID,
		Severity:   severity,
		Description: fmt.Sprintf("Voting %s sharply over the proposal lifetime (momentum %.2f)",
			shape, p.Momentum),
		Metrics: map[string]float64{
			"momentum": p.Momentum,
		},
	}}
}
