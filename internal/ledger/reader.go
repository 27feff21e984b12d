package ledger

import (
	"context"
	"math/big"
	"time"
)

// RawProposal is one proposal record exactly as the contract returns it,
// before validation and metric derivation.
type RawProposal struct {
	ID           uint64
	Proposer     string
	Amount       *big.Int
	Title        string
	Description  string
	VotesFor     *big.Int
	VotesAgainst *big.Int
	Executed     bool
	CreatedAt    time.Time
	Deadline     time.Time
}

// RawVote is one cast vote as returned by the contract.
type RawVote struct {
	Voter     string
	Weight    *big.Int
	Support   bool
	Timestamp time.Time
}

// Reader is the read interface to the governance ledger. The remote is
// eventually consistent and occasionally slow or erroring, but never returns
// conflicting data for the same id within one session.
type Reader interface {
	ProposalCount(ctx context.Context) (uint64, error)
	Proposal(ctx context.Context, id uint64) (*RawProposal, error)
	Votes(ctx context.Context, id uint64) ([]RawVote, error)
}
