package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mosas2000/sprintfund/internal/config"
	"github.com/Mosas2000/sprintfund/internal/database"
	"github.com/Mosas2000/sprintfund/internal/ledger"
	"github.com/Mosas2000/sprintfund/internal/services"
)

type stubReader struct{ count uint64 }

func (r *stubReader) ProposalCount(ctx context.Context) (uint64, error) {
	return r.count, nil
}

func (r *stubReader) Proposal(ctx context.Context, id uint64) (*ledger.RawProposal, error) {
	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(id) * 24 * time.Hour)
	title := "Community workshop series"
	if id%2 == 0 {
		title = "Develop protocol integration"
	}
	return &ledger.RawProposal{
		ID:           id,
		Proposer:     "0xproposer",
		Amount:       big.NewInt(1e18),
		Title:        title,
		Description:  "Detailed plan",
		VotesFor:     big.NewInt(6),
		VotesAgainst: big.NewInt(1),
		Executed:     id%2 == 0,
		CreatedAt:    created,
		Deadline:     created.AddDate(0, 0, 7),
	}, nil
}

func (r *stubReader) Votes(ctx context.Context, id uint64) ([]ledger.RawVote, error) {
	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	return []ledger.RawVote{
		{Voter: "0xaaa", Weight: big.NewInt(1e18), Support: true, Timestamp: created.Add(time.Hour)},
	}, nil
}

func setupTestRouter(t *testing.T, reader ledger.Reader) (*gin.Engine, *services.Pipeline, func()) {
	gin.SetMode(gin.TestMode)

	s, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	redisClient := &database.RedisClient{Client: client}

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := &config.Config{
		Analytics: config.AnalyticsConfig{MovingAverageWindow: 4, RecommendationLimit: 5},
	}
	ledgerCfg := &config.LedgerConfig{
		PageSize:       50,
		CacheTTL:       "5m",
		MinInterval:    "1ms",
		MaxRetries:     1,
		RetryBaseDelay: "1ms",
	}

	collector := services.NewCollector(ledgerCfg, reader, redisClient, logger)
	pipeline := services.NewPipeline(collector, nil, &cfg.Analytics, 10, logger)

	router := gin.New()
	SetupRoutes(router, cfg, pipeline, redisClient, logger)

	cleanup := func() {
		collector.Close()
		_ = client.Close()
		s.Close()
	}
	return router, pipeline, cleanup
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestRoutes_NoSnapshotYields503(t *testing.T) {
	router, _, cleanup := setupTestRouter(t, &stubReader{count: 2})
	defer cleanup()

	for _, path := range []string{
		"/api/v1/proposals", "/api/v1/voters", "/api/v1/timeseries",
		"/api/v1/anomalies", "/api/v1/insights", "/api/v1/recommendations",
	} {
		w := doRequest(router, http.MethodGet, path)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

func TestRoutes_ProposalsAfterRefresh(t *testing.T) {
	router, pipeline, cleanup := setupTestRouter(t, &stubReader{count: 4})
	defer cleanup()

	require.NoError(t, pipeline.Refresh(context.Background()))

	w := doRequest(router, http.MethodGet, "/api/v1/proposals")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Total     int `json:"total"`
		Proposals []struct {
			ID       uint64 `json:"id"`
			Category string `json:"category"`
		} `json:"proposals"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Total)
	require.Len(t, body.Proposals, 4)
	assert.Equal(t, uint64(1), body.Proposals[0].ID)
}

func TestRoutes_ProposalFilters(t *testing.T) {
	router, pipeline, cleanup := setupTestRouter(t, &stubReader{count: 4})
	defer cleanup()
	require.NoError(t, pipeline.Refresh(context.Background()))

	w := doRequest(router, http.MethodGet, "/api/v1/proposals?executed=true")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)

	w = doRequest(router, http.MethodGet, "/api/v1/proposals?category=development")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)

	w = doRequest(router, http.MethodGet, "/api/v1/proposals?executed=maybe")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/proposals?limit=-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoutes_TimeSeriesIntervals(t *testing.T) {
	router, pipeline, cleanup := setupTestRouter(t, &stubReader{count: 4})
	defer cleanup()
	require.NoError(t, pipeline.Refresh(context.Background()))

	for _, interval := range []string{"day", "week", "month"} {
		w := doRequest(router, http.MethodGet, "/api/v1/timeseries?interval="+interval)
		require.Equal(t, http.StatusOK, w.Code, interval)

		var body struct {
			Interval string `json:"interval"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, interval, body.Interval)
	}

	w := doRequest(router, http.MethodGet, "/api/v1/timeseries?interval=year")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoutes_RefreshEndpoint(t *testing.T) {
	router, _, cleanup := setupTestRouter(t, &stubReader{count: 2})
	defer cleanup()

	w := doRequest(router, http.MethodPost, "/api/v1/refresh")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status    string `json:"status"`
		Proposals int    `json:"proposals"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 2, body.Proposals)

	// The refresh made the read endpoints live.
	w = doRequest(router, http.MethodGet, "/api/v1/voters")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_Health(t *testing.T) {
	router, _, cleanup := setupTestRouter(t, &stubReader{count: 2})
	defer cleanup()

	w := doRequest(router, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status   string            `json:"status"`
		Services map[string]string `json:"services"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "healthy", body.Services["redis"])
	assert.Equal(t, "pending", body.Services["snapshot"])
}

func TestRoutes_Status(t *testing.T) {
	router, pipeline, cleanup := setupTestRouter(t, &stubReader{count: 2})
	defer cleanup()
	require.NoError(t, pipeline.Refresh(context.Background()))

	w := doRequest(router, http.MethodGet, "/api/v1/status")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "uptime_s")
	assert.Contains(t, body, "goroutines")
	assert.Contains(t, body, "snapshot")
}
