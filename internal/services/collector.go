package services

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Mosas2000/sprintfund/internal/analytics"
	"github.com/Mosas2000/sprintfund/internal/cache"
	"github.com/Mosas2000/sprintfund/internal/config"
	"github.com/Mosas2000/sprintfund/internal/database"
	"github.com/Mosas2000/sprintfund/internal/ledger"
	"github.com/Mosas2000/sprintfund/internal/models"
	"github.com/Mosas2000/sprintfund/internal/ratelimit"
	"github.com/Mosas2000/sprintfund/internal/retry"
	"github.com/Mosas2000/sprintfund/internal/utils"
)

const proposalSetKey = "all"

// ProgressFunc observes paging progress as (fetched, total). Purely
// observational; it has no effect on control flow.
type ProgressFunc func(fetched, total int)

// proposalSet is the cached shape of one complete fetch. Partial results are
// never cached; the set is only written after every page succeeded.
type proposalSet struct {
	Proposals []models.ProposalMetric `json:"proposals"`
	Votes     []models.VoteData       `json:"votes"`
}

// Collector fetches the full proposal set from the governance ledger,
// paginating with bounded per-page concurrency, and assembles typed
// ProposalMetric records with all derived metrics attached.
type Collector struct {
	reader   ledger.Reader
	cache    *cache.Store
	limiter  *ratelimit.Limiter
	exec     *retry.Executor
	policy   retry.Policy
	logger   *logrus.Logger
	pageSize int

	progressFn ProgressFunc
	now        func() time.Time

	mu        sync.RWMutex
	lastVotes []models.VoteData
}

// NewCollector creates a ledger data collector.
func NewCollector(cfg *config.LedgerConfig, reader ledger.Reader, redisClient *database.RedisClient, logger *logrus.Logger) *Collector {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	return &Collector{
		reader:   reader,
		cache:    cache.NewStore(redisClient, logger, "ledger", config.Duration(cfg.CacheTTL, 5*time.Minute)),
		limiter:  ratelimit.NewLimiter("ledger", config.Duration(cfg.MinInterval, 100*time.Millisecond), logger),
		exec:     retry.NewExecutor(logger),
		policy:   retry.LinearPolicy(cfg.MaxRetries, config.Duration(cfg.RetryBaseDelay, 500*time.Millisecond)),
		logger:   logger,
		pageSize: pageSize,
		now:      time.Now,
	}
}

// SetProgressFunc registers a paging progress observer.
func (c *Collector) SetProgressFunc(fn ProgressFunc) {
	c.progressFn = fn
}

// Close stops the ledger request dispatcher.
func (c *Collector) Close() {
	c.limiter.Close()
}

// Cache exposes the collector's cache store, mainly for invalidation.
func (c *Collector) Cache() *cache.Store {
	return c.cache
}

// CollectedVotes returns every vote observed during the last successful
// fetch (live or cached). Used to fold voter metrics.
func (c *Collector) CollectedVotes() []models.VoteData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastVotes
}

// FetchAllProposals returns the full proposal set ordered by id ascending.
//
// With useCache and a fresh cache hit the cached set is returned without
// touching the ledger. Otherwise the ledger is paged; on any fetch error the
// last cached set (stale included) is served when one exists, and the error
// propagates only when there is no fallback. A single record that fails
// validation is dropped from the result, never failing the whole fetch.
func (c *Collector) FetchAllProposals(ctx context.Context, useCache bool) ([]models.ProposalMetric, error) {
	if useCache {
		if entry, ok := c.cache.Get(ctx, proposalSetKey); ok && !entry.Stale {
			var set proposalSet
			if err := entry.Decode(&set); err == nil {
				c.logger.WithField("proposals", len(set.Proposals)).Debug("Serving proposals from fresh cache")
				c.storeVotes(set.Votes)
				return set.Proposals, nil
			}
		}
	}

	set, err := c.fetchLive(ctx)
	if err != nil {
		if entry, ok := c.cache.Get(ctx, proposalSetKey); ok {
			var cached proposalSet
			if decodeErr := entry.Decode(&cached); decodeErr == nil {
				c.logger.WithFields(logrus.Fields{
					"error": err.Error(),
					"stale": entry.Stale,
					"age":   entry.Age,
				}).Warn("Ledger fetch failed, serving cached proposal set")
				c.storeVotes(cached.Votes)
				return cached.Proposals, nil
			}
		}
		return nil, err
	}

	// Full-set overwrite; partial results never reach the cache.
	c.cache.Set(ctx, proposalSetKey, set)
	c.storeVotes(set.Votes)
	return set.Proposals, nil
}

func (c *Collector) fetchLive(ctx context.Context) (*proposalSet, error) {
	count, err := c.proposalCount(ctx)
	if err != nil {
		return nil, err
	}

	set := &proposalSet{Proposals: []models.ProposalMetric{}, Votes: []models.VoteData{}}
	if count == 0 {
		return set, nil
	}

	now := c.now()
	total := int(count)

	for start := 1; start <= total; start += c.pageSize {
		end := start + c.pageSize - 1
		if end > total {
			end = total
		}

		page, votes, err := c.fetchPage(ctx, start, end, now)
		if err != nil {
			return nil, err
		}
		set.Proposals = append(set.Proposals, page...)
		set.Votes = append(set.Votes, votes...)

		if c.progressFn != nil {
			c.progressFn(end, total)
		}
	}

	return set, nil
}

// fetchPage fetches proposals [start, end] concurrently, preserving id
// order in the output regardless of completion order.
func (c *Collector) fetchPage(ctx context.Context, start, end int, now time.Time) ([]models.ProposalMetric, []models.VoteData, error) {
	type slot struct {
		proposal *models.ProposalMetric
		votes    []models.VoteData
		err      error
	}

	slots := make([]slot, end-start+1)
	var wg sync.WaitGroup
	for i := range slots {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := uint64(start + i)
			proposal, votes, err := c.fetchOne(ctx, id, now)
			slots[i] = slot{proposal: proposal, votes: votes, err: err}
		}(i)
	}
	wg.Wait()

	proposals := make([]models.ProposalMetric, 0, len(slots))
	var votes []models.VoteData
	for i, s := range slots {
		if s.err != nil {
			if utils.IsValidationError(s.err) {
				// Best effort: one bad record must not fail the fetch.
				c.logger.WithFields(logrus.Fields{
					"proposal": start + i,
					"error":    s.err.Error(),
				}).Warn("Dropping proposal that failed validation")
				continue
			}
			return nil, nil, s.err
		}
		proposals = append(proposals, *s.proposal)
		votes = append(votes, s.votes...)
	}
	return proposals, votes, nil
}

func (c *Collector) fetchOne(ctx context.Context, id uint64, now time.Time) (*models.ProposalMetric, []models.VoteData, error) {
	var raw *ledger.RawProposal
	err := c.exec.Do(ctx, fmt.Sprintf("fetch_proposal_%d", id), c.policy, func(ctx context.Context) error {
		value, err := c.limiter.Schedule(ctx, func(ctx context.Context) (interface{}, error) {
			return c.reader.Proposal(ctx, id)
		})
		if err != nil {
			return err
		}
		raw = value.(*ledger.RawProposal)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var rawVotes []ledger.RawVote
	err = c.exec.Do(ctx, fmt.Sprintf("fetch_votes_%d", id), c.policy, func(ctx context.Context) error {
		value, err := c.limiter.Schedule(ctx, func(ctx context.Context) (interface{}, error) {
			return c.reader.Votes(ctx, id)
		})
		if err != nil {
			return err
		}
		rawVotes = value.([]ledger.RawVote)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	proposal, votes, err := buildProposal(raw, rawVotes)
	if err != nil {
		return nil, nil, err
	}

	analytics.Derive(proposal, votes, now)
	return proposal, votes, nil
}

func (c *Collector) proposalCount(ctx context.Context) (uint64, error) {
	var count uint64
	err := c.exec.Do(ctx, "fetch_proposal_count", c.policy, func(ctx context.Context) error {
		value, err := c.limiter.Schedule(ctx, func(ctx context.Context) (interface{}, error) {
			return c.reader.ProposalCount(ctx)
		})
		if err != nil {
			return err
		}
		count = value.(uint64)
		return nil
	})
	return count, err
}

func (c *Collector) storeVotes(votes []models.VoteData) {
	c.mu.Lock()
	c.lastVotes = votes
	c.mu.Unlock()
}

// buildProposal validates one raw ledger record at the parse boundary and
// converts it into the typed model. A failing record is reported as a
// ValidationError so the page loop can drop it per the partial-record
// failure policy.
func buildProposal(raw *ledger.RawProposal, rawVotes []ledger.RawVote) (*models.ProposalMetric, []models.VoteData, error) {
	if raw == nil {
		return nil, nil, utils.NewValidationError("nil proposal record")
	}
	if raw.Title == "" {
		return nil, nil, utils.NewValidationErrorf("proposal %d has an empty title", raw.ID)
	}
	if raw.Amount == nil || raw.Amount.Sign() < 0 {
		return nil, nil, utils.NewValidationErrorf("proposal %d has an invalid amount", raw.ID)
	}
	if raw.VotesFor == nil || raw.VotesAgainst == nil || raw.VotesFor.Sign() < 0 || raw.VotesAgainst.Sign() < 0 {
		return nil, nil, utils.NewValidationErrorf("proposal %d has invalid vote counts", raw.ID)
	}
	if raw.CreatedAt.IsZero() || raw.Deadline.Before(raw.CreatedAt) {
		return nil, nil, utils.NewValidationErrorf("proposal %d has an invalid time range", raw.ID)
	}

	votes := make([]models.VoteData, 0, len(rawVotes))
	voters := make(map[string]struct{}, len(rawVotes))
	for _, rv := range rawVotes {
		if rv.Weight == nil || rv.Weight.Sign() <= 0 {
			return nil, nil, utils.NewValidationErrorf("proposal %d has a vote with invalid weight", raw.ID)
		}
		voters[rv.Voter] = struct{}{}
		votes = append(votes, models.VoteData{
			ProposalID: raw.ID,
			Voter:      rv.Voter,
			Weight:     decimal.NewFromBigInt(rv.Weight, -18),
			Support:    rv.Support,
			Timestamp:  rv.Timestamp,
		})
	}

	// The tally and the vote record list come from separate contract calls;
	// more distinct voters than counted votes means the record is internally
	// inconsistent.
	tally := new(big.Int).Add(raw.VotesFor, raw.VotesAgainst)
	if tally.IsUint64() && uint64(len(voters)) > tally.Uint64() {
		return nil, nil, utils.NewValidationErrorf("proposal %d has %d distinct voters against a tally of %d",
			raw.ID, len(voters), tally.Uint64())
	}

	return &models.ProposalMetric{
		ID:              raw.ID,
		Title:           raw.Title,
		Description:     raw.Description,
		Proposer:        raw.Proposer,
		RequestedAmount: decimal.NewFromBigInt(raw.Amount, -18),
		VotesFor:        raw.VotesFor.Uint64(),
		VotesAgainst:    raw.VotesAgainst.Uint64(),
		CreatedAt:       raw.CreatedAt,
		Deadline:        raw.Deadline,
		Executed:        raw.Executed,
	}, votes, nil
}
