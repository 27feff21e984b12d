package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mosas2000/sprintfund/internal/models"
)

// categoryKeywords holds the fixed keyword set per category. Classification
// scores by match count; ties break in models.ProposalCategories order, so
// the first category reaching the maximum score wins.
var categoryKeywords = map[models.ProposalCategory][]string{
	models.CategoryDevelopment: {
		"develop", "sdk", "code", "feature", "implementation", "bug", "protocol", "contract", "integration",
	},
	models.CategoryMarketing: {
		"marketing", "campaign", "brand", "social", "awareness", "promotion", "growth", "content",
	},
	models.CategoryCommunity: {
		"community", "event", "meetup", "education", "workshop", "ambassador", "onboarding", "governance",
	},
	models.CategoryResearch: {
		"research", "analysis", "study", "audit", "whitepaper", "report", "economics", "security review",
	},
	models.CategoryInfrastructure: {
		"infrastructure", "node", "hosting", "server", "network", "deployment", "monitoring", "indexer",
	},
}

// ClassifyCategory scans text against the per-category keyword sets. Zero
// matches classify as "other".
func ClassifyCategory(text string) models.ProposalCategory {
	lowered := strings.ToLower(text)

	best := models.CategoryOther
	bestScore := 0
	for _, category := range models.ProposalCategories {
		score := 0
		for _, keyword := range categoryKeywords[category] {
			if strings.Contains(lowered, keyword) {
				score++
			}
		}
		if score > bestScore {
			best = category
			bestScore = score
		}
	}
	return best
}

// VoteVelocity returns votes per elapsed hour since creation. Zero votes or
// zero (or negative) elapsed time yield exactly 0, never NaN or infinity.
func VoteVelocity(totalVotes uint64, createdAt, now time.Time) float64 {
	if totalVotes == 0 {
		return 0
	}
	hours := now.Sub(createdAt).Hours()
	if hours <= 0 {
		return 0
	}
	return float64(totalVotes) / hours
}

// Momentum is the relative change between the first-half and second-half
// vote counts of a proposal's observed votes, split by count rather than by
// time. Fewer than two votes yield 0. A count split bounds the result to
// [0, 1]: 0 for even counts, 1/(n/2) for odd.
func Momentum(votes []models.VoteData) float64 {
	if len(votes) < 2 {
		return 0
	}

	sorted := make([]models.VoteData, len(votes))
	copy(sorted, votes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	firstHalf := float64(len(sorted) / 2)
	secondHalf := float64(len(sorted)) - firstHalf
	return (secondHalf - firstHalf) / firstHalf
}

// TimeToFunding approximates execution latency in hours as creation to the
// voting deadline. The ledger exposes no actual execution timestamp, so the
// voting-period end stands in for it; see the ProposalMetric field comment.
func TimeToFunding(createdAt, deadline time.Time) float64 {
	hours := deadline.Sub(createdAt).Hours()
	if hours < 0 {
		return 0
	}
	return hours
}

// UniqueVoters counts distinct voter addresses.
func UniqueVoters(votes []models.VoteData) int {
	seen := make(map[string]struct{}, len(votes))
	for _, v := range votes {
		seen[v.Voter] = struct{}{}
	}
	return len(seen)
}

// Derive fills every derived field of p from its raw fields and votes.
// Pure with respect to its inputs; now is passed in for determinism.
func Derive(p *models.ProposalMetric, votes []models.VoteData, now time.Time) {
	p.Category = ClassifyCategory(p.Title + " " + p.Description)
	p.TotalVotes = p.VotesFor + p.VotesAgainst
	p.UniqueVoters = UniqueVoters(votes)
	p.VoteVelocity = VoteVelocity(p.TotalVotes, p.CreatedAt, now)
	p.Momentum = Momentum(votes)

	if p.Executed {
		executedAt := p.Deadline
		p.ExecutedAt = &executedAt
		ttf := TimeToFunding(p.CreatedAt, p.Deadline)
		p.TimeToFundingHours = &ttf
	} else {
		p.ExecutedAt = nil
		p.TimeToFundingHours = nil
	}
}

// BuildVoterMetrics folds all observed votes into per-voter summaries.
// Recomputed wholesale on each refresh. proposals supplies category and
// execution outcomes; totalProposals anchors the participation rate.
func BuildVoterMetrics(proposals []models.ProposalMetric, votes []models.VoteData) []models.VoterMetric {
	byID := make(map[uint64]*models.ProposalMetric, len(proposals))
	for i := range proposals {
		byID[proposals[i].ID] = &proposals[i]
	}

	type voterAcc struct {
		votes       int
		weightSum   decimal.Decimal
		categories  map[models.ProposalCategory]struct{}
		yesVotes    int
		yesExecuted int
	}

	accs := make(map[string]*voterAcc)
	var order []string
	for _, v := range votes {
		acc, ok := accs[v.Voter]
		if !ok {
			acc = &voterAcc{categories: make(map[models.ProposalCategory]struct{})}
			accs[v.Voter] = acc
			order = append(order, v.Voter)
		}
		acc.votes++
		acc.weightSum = acc.weightSum.Add(v.Weight)

		p, known := byID[v.ProposalID]
		if !known {
			continue
		}
		acc.categories[p.Category] = struct{}{}
		if v.Support {
			acc.yesVotes++
			if p.Executed {
				acc.yesExecuted++
			}
		}
	}

	sort.Strings(order)

	metrics := make([]models.VoterMetric, 0, len(order))
	for _, voter := range order {
		acc := accs[voter]

		categories := make([]models.ProposalCategory, 0, len(acc.categories))
		for _, c := range append(models.ProposalCategories, models.CategoryOther) {
			if _, ok := acc.categories[c]; ok {
				categories = append(categories, c)
			}
		}

		successRate := 0.0
		if acc.yesVotes > 0 {
			successRate = float64(acc.yesExecuted) / float64(acc.yesVotes)
		}
		participationRate := 0.0
		if len(proposals) > 0 {
			participationRate = float64(acc.votes) / float64(len(proposals))
		}

		metrics = append(metrics, models.VoterMetric{
			Address:           voter,
			TotalVotes:        acc.votes,
			AverageWeight:     acc.weightSum.Div(decimal.NewFromInt(int64(acc.votes))),
			Categories:        categories,
			SuccessRate:       successRate,
			ParticipationRate: participationRate,
		})
	}
	return metrics
}
