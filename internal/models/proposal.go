package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProposalCategory classifies a funding proposal by its subject matter.
type ProposalCategory string

const (
	CategoryDevelopment    ProposalCategory = "development"
	CategoryMarketing      ProposalCategory = "marketing"
	CategoryCommunity      ProposalCategory = "community"
	CategoryResearch       ProposalCategory = "research"
	CategoryInfrastructure ProposalCategory = "infrastructure"
	CategoryOther          ProposalCategory = "other"
)

// ProposalCategories lists every category in its declared order. Category
// classification breaks scoring ties by this order, so it must stay stable.
var ProposalCategories = []ProposalCategory{
	CategoryDevelopment,
	CategoryMarketing,
	CategoryCommunity,
	CategoryResearch,
	CategoryInfrastructure,
}

// RepoActivity holds repository metadata attached to a proposal during
// enrichment. All fields come from the repository API as-is.
type RepoActivity struct {
	FullName        string    `json:"full_name"`
	Stars           int       `json:"stars"`
	Contributors    int       `json:"contributors"`
	HasRecentCommit bool      `json:"has_recent_commit"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NetworkContext holds chain-load data attached to a proposal during
// enrichment, derived from the most recent blocks.
type NetworkContext struct {
	AvgBlockTimeSeconds float64         `json:"avg_block_time_seconds"`
	AvgFeeRate          decimal.Decimal `json:"avg_fee_rate"`
	PendingTxCount      uint64          `json:"pending_tx_count"`
	SampledBlocks       int             `json:"sampled_blocks"`
}

// ProposalMetric is one on-chain funding proposal together with every metric
// derived from it. Raw fields are only mutated by re-fetch; derived fields
// are pure functions of the raw ones.
//
// Invariants: TotalVotes = VotesFor + VotesAgainst; UniqueVoters <= TotalVotes;
// ExecutedAt and TimeToFundingHours are set iff Executed.
type ProposalMetric struct {
	ID              uint64           `json:"id"`
	Title           string           `json:"title"`
	Description     string           `json:"description,omitempty"`
	Proposer        string           `json:"proposer"`
	Category        ProposalCategory `json:"category"`
	RequestedAmount decimal.Decimal  `json:"requested_amount"`
	VotesFor        uint64           `json:"votes_for"`
	VotesAgainst    uint64           `json:"votes_against"`
	TotalVotes      uint64           `json:"total_votes"`
	UniqueVoters    int              `json:"unique_voters"`
	VoteVelocity    float64          `json:"vote_velocity"`
	Momentum        float64          `json:"momentum"`
	CreatedAt       time.Time        `json:"created_at"`
	Deadline        time.Time        `json:"deadline"`
	Executed        bool             `json:"executed"`
	ExecutedAt      *time.Time       `json:"executed_at,omitempty"`

	// TimeToFundingHours approximates execution latency as creation to
	// voting deadline. The ledger does not expose the actual execution
	// timestamp, so this is the earliest possible execution, kept as a
	// known modeling simplification.
	TimeToFundingHours *float64 `json:"time_to_funding_hours,omitempty"`

	// Enrichment fields. Nil when the corresponding source degraded or
	// produced no match; absence is never an error.
	USDValue       *decimal.Decimal `json:"usd_value,omitempty"`
	RepoActivity   *RepoActivity    `json:"repo_activity,omitempty"`
	NetworkContext *NetworkContext  `json:"network_context,omitempty"`
}

// VoteData is one cast vote. Votes are append-only on the ledger and are
// never mutated or deleted once observed.
type VoteData struct {
	ProposalID uint64          `json:"proposal_id"`
	Voter      string          `json:"voter"`
	Weight     decimal.Decimal `json:"weight"`
	Support    bool            `json:"support"`
	Timestamp  time.Time       `json:"timestamp"`
}

// VoterMetric summarizes one distinct voter address. Recomputed wholesale on
// each refresh by folding all observed votes; there is no incremental update.
type VoterMetric struct {
	Address           string             `json:"address"`
	TotalVotes        int                `json:"total_votes"`
	AverageWeight     decimal.Decimal    `json:"average_weight"`
	Categories        []ProposalCategory `json:"categories"`
	SuccessRate       float64            `json:"success_rate"`
	ParticipationRate float64            `json:"participation_rate"`
}
