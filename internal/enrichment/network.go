package enrichment

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/Mosas2000/sprintfund/internal/models"
)

// EthBackend is the subset of the Ethereum RPC client the network snapshot
// needs. ethclient.Client satisfies it.
type EthBackend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingTransactionCount(ctx context.Context) (uint, error)
}

// NetworkClient derives chain-load context from the most recent blocks.
type NetworkClient struct {
	backend EthBackend
	sample  int
}

// NewNetworkClient creates a network metrics client sampling the last
// `sample` blocks.
func NewNetworkClient(backend EthBackend, sample int) *NetworkClient {
	if sample < 2 {
		sample = 2
	}
	return &NetworkClient{backend: backend, sample: sample}
}

// Snapshot fetches recent block headers and the pending-transaction count
// concurrently and merges them once both resolve.
func (c *NetworkClient) Snapshot(ctx context.Context) (*models.NetworkContext, error) {
	type headersResult struct {
		headers []*types.Header
		err     error
	}
	type pendingResult struct {
		count uint
		err   error
	}

	headersCh := make(chan headersResult, 1)
	pendingCh := make(chan pendingResult, 1)

	go func() {
		headers, err := c.recentHeaders(ctx)
		headersCh <- headersResult{headers: headers, err: err}
	}()
	go func() {
		count, err := c.backend.PendingTransactionCount(ctx)
		pendingCh <- pendingResult{count: count, err: err}
	}()

	hres := <-headersCh
	pres := <-pendingCh

	if hres.err != nil {
		return nil, fmt.Errorf("failed to sample recent blocks: %w", hres.err)
	}
	if pres.err != nil {
		return nil, fmt.Errorf("failed to fetch pending transaction count: %w", pres.err)
	}

	return mergeSnapshot(hres.headers, pres.count), nil
}

func (c *NetworkClient) recentHeaders(ctx context.Context) ([]*types.Header, error) {
	head, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	sample := c.sample
	if uint64(sample) > head+1 {
		sample = int(head + 1)
	}

	headers := make([]*types.Header, 0, sample)
	for i := 0; i < sample; i++ {
		number := new(big.Int).SetUint64(head - uint64(i))
		header, err := c.backend.HeaderByNumber(ctx, number)
		if err != nil {
			return nil, err
		}
		headers = append(headers, header)
	}
	return headers, nil
}

func mergeSnapshot(headers []*types.Header, pending uint) *models.NetworkContext {
	snapshot := &models.NetworkContext{
		PendingTxCount: uint64(pending),
		SampledBlocks:  len(headers),
	}
	if len(headers) < 2 {
		return snapshot
	}

	// Headers arrive newest first.
	newest := headers[0]
	oldest := headers[len(headers)-1]
	span := int64(newest.Time - oldest.Time)
	snapshot.AvgBlockTimeSeconds = float64(span) / float64(len(headers)-1)

	feeSum := decimal.Zero
	feeSamples := 0
	for _, h := range headers {
		if h.BaseFee == nil {
			continue
		}
		feeSum = feeSum.Add(decimal.NewFromBigInt(h.BaseFee, -9)) // wei -> gwei
		feeSamples++
	}
	if feeSamples > 0 {
		snapshot.AvgFeeRate = feeSum.Div(decimal.NewFromInt(int64(feeSamples)))
	}
	return snapshot
}
