package enrichment

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Mosas2000/sprintfund/internal/cache"
	"github.com/Mosas2000/sprintfund/internal/config"
	"github.com/Mosas2000/sprintfund/internal/database"
	"github.com/Mosas2000/sprintfund/internal/models"
	"github.com/Mosas2000/sprintfund/internal/ratelimit"
	"github.com/Mosas2000/sprintfund/internal/retry"
)

// PriceSource provides the asset price, current or day-bucketed historical.
type PriceSource interface {
	CurrentPrice(ctx context.Context) (decimal.Decimal, error)
	HistoricalPrice(ctx context.Context, day time.Time) (decimal.Decimal, error)
}

// NetworkSource provides a chain-load snapshot.
type NetworkSource interface {
	Snapshot(ctx context.Context) (*models.NetworkContext, error)
}

// RepoSource provides repository activity for an owner/repo path.
type RepoSource interface {
	Activity(ctx context.Context, path string) (*models.RepoActivity, error)
}

const networkSnapshotKey = "latest"

// Service merges external reference data onto proposal records. Each source
// has its own rate limiter and cache namespace, so the three upstreams never
// interfere with each other. Any single enrichment failure degrades that one
// field to absent and never aborts the rest of the record or its batch.
type Service struct {
	logger *logrus.Logger

	price   PriceSource
	network NetworkSource
	repo    RepoSource

	priceLimiter   *ratelimit.Limiter
	networkLimiter *ratelimit.Limiter
	repoLimiter    *ratelimit.Limiter

	priceCache   *cache.Store
	networkCache *cache.Store
	repoCache    *cache.Store

	exec       *retry.Executor
	policy     retry.Policy
	batchPause time.Duration
}

// NewService wires an enrichment service from its sources. The callers own
// the source clients; the service owns limiters and caches.
func NewService(
	cfg *config.EnrichmentConfig,
	redisClient *database.RedisClient,
	logger *logrus.Logger,
	price PriceSource,
	network NetworkSource,
	repo RepoSource,
) *Service {
	ttl := config.Duration(cfg.CacheTTL, 60*time.Minute)
	minInterval := config.Duration(cfg.MinInterval, 1100*time.Millisecond)

	return &Service{
		logger:         logger,
		price:          price,
		network:        network,
		repo:           repo,
		priceLimiter:   ratelimit.NewLimiter("price", minInterval, logger),
		networkLimiter: ratelimit.NewLimiter("network", minInterval, logger),
		repoLimiter:    ratelimit.NewLimiter("repository", minInterval, logger),
		priceCache:     cache.NewStore(redisClient, logger, "enrichment:price", ttl),
		networkCache:   cache.NewStore(redisClient, logger, "enrichment:network", ttl),
		repoCache:      cache.NewStore(redisClient, logger, "enrichment:repo", ttl),
		exec:           retry.NewExecutor(logger),
		policy: retry.ExponentialPolicy(
			cfg.MaxRetries,
			config.Duration(cfg.RetryBaseDelay, time.Second),
			config.Duration(cfg.RetryMaxDelay, 30*time.Second),
		),
		batchPause: config.Duration(cfg.BatchPause, 500*time.Millisecond),
	}
}

// Close stops the per-source dispatchers.
func (s *Service) Close() {
	s.priceLimiter.Close()
	s.networkLimiter.Close()
	s.repoLimiter.Close()
}

// Enrich attaches usd value, network context and repository activity to p.
// Each field degrades independently; Enrich never returns an error.
func (s *Service) Enrich(ctx context.Context, p *models.ProposalMetric) {
	if s.price != nil {
		if price, err := s.fetchPrice(ctx, p.ExecutedAt); err != nil {
			s.logger.WithFields(logrus.Fields{
				"proposal": p.ID,
				"error":    err.Error(),
			}).Warn("Price enrichment degraded")
		} else {
			usd := p.RequestedAmount.Mul(price)
			p.USDValue = &usd
		}
	}

	if s.network != nil {
		if snapshot, err := s.fetchNetwork(ctx); err != nil {
			s.logger.WithFields(logrus.Fields{
				"proposal": p.ID,
				"error":    err.Error(),
			}).Warn("Network enrichment degraded")
		} else {
			p.NetworkContext = snapshot
		}
	}

	path := MatchRepoPath(p.Title + " " + p.Description)
	if path == "" || s.repo == nil {
		return // no repository reference, not an error
	}
	if activity, err := s.fetchRepo(ctx, path); err != nil {
		s.logger.WithFields(logrus.Fields{
			"proposal": p.ID,
			"repo":     path,
			"error":    err.Error(),
		}).Warn("Repository enrichment degraded")
	} else {
		p.RepoActivity = activity
	}
}

// BatchEnrich enriches proposals in fixed-size concurrent batches with an
// inter-batch pause, bounding aggregate load on the upstream APIs.
func (s *Service) BatchEnrich(ctx context.Context, proposals []models.ProposalMetric, batchSize int) {
	if batchSize <= 0 {
		batchSize = 10
	}

	for start := 0; start < len(proposals); start += batchSize {
		end := start + batchSize
		if end > len(proposals) {
			end = len(proposals)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(p *models.ProposalMetric) {
				defer wg.Done()
				s.Enrich(ctx, p)
			}(&proposals[i])
		}
		wg.Wait()

		if end < len(proposals) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.batchPause):
			}
		}
	}
}

// fetchPrice resolves the asset price for a proposal. Executed proposals use
// the historical price at their execution day; live ones use the current
// price. The two kinds cache under distinct keys and never share staleness.
func (s *Service) fetchPrice(ctx context.Context, at *time.Time) (decimal.Decimal, error) {
	key := PriceCacheKey(at)

	entry, cached := s.priceCache.Get(ctx, key)
	if cached && !entry.Stale {
		var price decimal.Decimal
		if err := entry.Decode(&price); err == nil {
			return price, nil
		}
	}

	var price decimal.Decimal
	err := s.exec.Do(ctx, "fetch_price", s.policy, func(ctx context.Context) error {
		value, err := s.priceLimiter.Schedule(ctx, func(ctx context.Context) (interface{}, error) {
			if at != nil {
				return s.price.HistoricalPrice(ctx, *at)
			}
			return s.price.CurrentPrice(ctx)
		})
		if err != nil {
			return err
		}
		price = value.(decimal.Decimal)
		return nil
	})
	if err != nil {
		if cached {
			var stale decimal.Decimal
			if decodeErr := entry.Decode(&stale); decodeErr == nil {
				s.logger.WithField("key", key).Debug("Serving stale cached price after fetch failure")
				return stale, nil
			}
		}
		return decimal.Decimal{}, err
	}

	s.priceCache.Set(ctx, key, price)
	return price, nil
}

func (s *Service) fetchNetwork(ctx context.Context) (*models.NetworkContext, error) {
	entry, cached := s.networkCache.Get(ctx, networkSnapshotKey)
	if cached && !entry.Stale {
		var snapshot models.NetworkContext
		if err := entry.Decode(&snapshot); err == nil {
			return &snapshot, nil
		}
	}

	var snapshot *models.NetworkContext
	err := s.exec.Do(ctx, "fetch_network_metrics", s.policy, func(ctx context.Context) error {
		value, err := s.networkLimiter.Schedule(ctx, func(ctx context.Context) (interface{}, error) {
			return s.network.Snapshot(ctx)
		})
		if err != nil {
			return err
		}
		snapshot = value.(*models.NetworkContext)
		return nil
	})
	if err != nil {
		if cached {
			var stale models.NetworkContext
			if decodeErr := entry.Decode(&stale); decodeErr == nil {
				return &stale, nil
			}
		}
		return nil, err
	}

	s.networkCache.Set(ctx, networkSnapshotKey, snapshot)
	return snapshot, nil
}

func (s *Service) fetchRepo(ctx context.Context, path string) (*models.RepoActivity, error) {
	entry, cached := s.repoCache.Get(ctx, path)
	if cached && !entry.Stale {
		var activity models.RepoActivity
		if err := entry.Decode(&activity); err == nil {
			return &activity, nil
		}
	}

	var activity *models.RepoActivity
	err := s.exec.Do(ctx, "fetch_repo_activity", s.policy, func(ctx context.Context) error {
		value, err := s.repoLimiter.Schedule(ctx, func(ctx context.Context) (interface{}, error) {
			return s.repo.Activity(ctx, path)
		})
		if err != nil {
			return err
		}
		activity = value.(*models.RepoActivity)
		return nil
	})
	if err != nil {
		if cached {
			var stale models.RepoActivity
			if decodeErr := entry.Decode(&stale); decodeErr == nil {
				return &stale, nil
			}
		}
		return nil, err
	}

	s.repoCache.Set(ctx, path, activity)
	return activity, nil
}
