package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mosas2000/sprintfund/internal/config"
	"github.com/Mosas2000/sprintfund/internal/database"
	"github.com/Mosas2000/sprintfund/internal/ledger"
)

// fakeReader serves a synthetic ledger. Proposal ids in brokenIDs return
// records that fail validation; ids in inflatedIDs return more distinct vote
// records than their tally counts; failAll makes every call error.
type fakeReader struct {
	mu          sync.Mutex
	count       uint64
	brokenIDs   map[uint64]bool
	inflatedIDs map[uint64]bool
	failAll     bool
	calls       int
}

func (f *fakeReader) recordCall() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAll {
		return errors.New("rpc unavailable")
	}
	return nil
}

func (f *fakeReader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeReader) setFailAll(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll = fail
}

func (f *fakeReader) ProposalCount(ctx context.Context) (uint64, error) {
	if err := f.recordCall(); err != nil {
		return 0, err
	}
	return f.count, nil
}

func (f *fakeReader) Proposal(ctx context.Context, id uint64) (*ledger.RawProposal, error) {
	if err := f.recordCall(); err != nil {
		return nil, err
	}

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Hour)
	raw := &ledger.RawProposal{
		ID:           id,
		Proposer:     "0xproposer",
		Amount:       new(big.Int).Mul(big.NewInt(int64(id)), big.NewInt(1e18)),
		Title:        "Fund tooling upgrades",
		Description:  "Routine development work",
		VotesFor:     big.NewInt(10),
		VotesAgainst: big.NewInt(2),
		Executed:     id%2 == 0,
		CreatedAt:    created,
		Deadline:     created.Add(7 * 24 * time.Hour),
	}
	if f.brokenIDs[id] {
		raw.Title = ""
	}
	if f.inflatedIDs[id] {
		raw.VotesFor = big.NewInt(1)
		raw.VotesAgainst = big.NewInt(0)
	}
	return raw, nil
}

func (f *fakeReader) Votes(ctx context.Context, id uint64) ([]ledger.RawVote, error) {
	if err := f.recordCall(); err != nil {
		return nil, err
	}

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Hour)
	if f.inflatedIDs[id] {
		votes := make([]ledger.RawVote, 0, 5)
		for i := 0; i < 5; i++ {
			votes = append(votes, ledger.RawVote{
				Voter:     fmt.Sprintf("0xvoter%d", i),
				Weight:    big.NewInt(1e18),
				Support:   true,
				Timestamp: created.Add(time.Duration(i+1) * time.Minute),
			})
		}
		return votes, nil
	}
	return []ledger.RawVote{
		{Voter: "0xaaa", Weight: big.NewInt(1e18), Support: true, Timestamp: created.Add(time.Hour)},
		{Voter: "0xbbb", Weight: big.NewInt(2e18), Support: false, Timestamp: created.Add(2 * time.Hour)},
	}, nil
}

func setupTestCollector(t *testing.T, reader ledger.Reader) (*Collector, func()) {
	s, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := &config.LedgerConfig{
		PageSize:       50,
		CacheTTL:       "5m",
		MinInterval:    "1ms",
		MaxRetries:     2,
		RetryBaseDelay: "1ms",
	}
	collector := NewCollector(cfg, reader, &database.RedisClient{Client: client}, logger)

	cleanup := func() {
		collector.Close()
		_ = client.Close()
		s.Close()
	}
	return collector, cleanup
}

func TestCollector_PagedFetchDropsInvalidRecord(t *testing.T) {
	reader := &fakeReader{count: 120, brokenIDs: map[uint64]bool{7: true}}
	collector, cleanup := setupTestCollector(t, reader)
	defer cleanup()

	var progress [][2]int
	collector.SetProgressFunc(func(fetched, total int) {
		progress = append(progress, [2]int{fetched, total})
	})

	proposals, err := collector.FetchAllProposals(context.Background(), false)
	require.NoError(t, err)

	// 120 records, one dropped at the validation boundary.
	assert.Len(t, proposals, 119)
	for i := 1; i < len(proposals); i++ {
		assert.Less(t, proposals[i-1].ID, proposals[i].ID)
	}
	for _, p := range proposals {
		assert.NotEqual(t, uint64(7), p.ID)
	}

	// Three pages of 50, progress monotonically increasing.
	require.Len(t, progress, 3)
	assert.Equal(t, [2]int{50, 120}, progress[0])
	assert.Equal(t, [2]int{100, 120}, progress[1])
	assert.Equal(t, [2]int{120, 120}, progress[2])

	assert.Len(t, collector.CollectedVotes(), 119*2)
}

func TestCollector_InconsistentTallyDropped(t *testing.T) {
	reader := &fakeReader{count: 6, inflatedIDs: map[uint64]bool{3: true}}
	collector, cleanup := setupTestCollector(t, reader)
	defer cleanup()

	proposals, err := collector.FetchAllProposals(context.Background(), false)
	require.NoError(t, err)

	// Id 3 reports a tally of 1 against 5 distinct vote records and is
	// dropped at the validation boundary like any other bad record.
	assert.Len(t, proposals, 5)
	for _, p := range proposals {
		assert.NotEqual(t, uint64(3), p.ID)
		assert.LessOrEqual(t, p.UniqueVoters, int(p.TotalVotes))
	}
}

func TestCollector_FreshCacheSkipsLedger(t *testing.T) {
	reader := &fakeReader{count: 3}
	collector, cleanup := setupTestCollector(t, reader)
	defer cleanup()

	ctx := context.Background()
	first, err := collector.FetchAllProposals(ctx, true)
	require.NoError(t, err)
	require.Len(t, first, 3)

	callsAfterLive := reader.callCount()

	second, err := collector.FetchAllProposals(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, callsAfterLive, reader.callCount())
	assert.Len(t, collector.CollectedVotes(), 3*2)
}

func TestCollector_CachedFallbackOnFetchError(t *testing.T) {
	reader := &fakeReader{count: 5}
	collector, cleanup := setupTestCollector(t, reader)
	defer cleanup()

	ctx := context.Background()
	first, err := collector.FetchAllProposals(ctx, false)
	require.NoError(t, err)
	require.Len(t, first, 5)

	reader.setFailAll(true)

	fallback, err := collector.FetchAllProposals(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, first, fallback)
}

func TestCollector_ErrorWithoutFallbackPropagates(t *testing.T) {
	reader := &fakeReader{count: 5, failAll: true}
	collector, cleanup := setupTestCollector(t, reader)
	defer cleanup()

	_, err := collector.FetchAllProposals(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc unavailable")
}

func TestCollector_EmptyLedger(t *testing.T) {
	reader := &fakeReader{count: 0}
	collector, cleanup := setupTestCollector(t, reader)
	defer cleanup()

	var progressCalls int
	collector.SetProgressFunc(func(fetched, total int) { progressCalls = progressCalls + 1 })

	proposals, err := collector.FetchAllProposals(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, proposals)
	assert.Zero(t, progressCalls)
}
