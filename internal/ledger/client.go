package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

const governorABIJSON = `[
{"inputs":[],"name":"proposalCount","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"uint256","name":"proposalId","type":"uint256"}],"name":"proposals","outputs":[{"internalType":"address","name":"proposer","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"string","name":"title","type":"string"},{"internalType":"string","name":"description","type":"string"},{"internalType":"uint256","name":"votesFor","type":"uint256"},{"internalType":"uint256","name":"votesAgainst","type":"uint256"},{"internalType":"bool","name":"executed","type":"bool"},{"internalType":"uint256","name":"createdAt","type":"uint256"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"uint256","name":"proposalId","type":"uint256"}],"name":"getVotes","outputs":[{"internalType":"address[]","name":"voters","type":"address[]"},{"internalType":"uint256[]","name":"weights","type":"uint256[]"},{"internalType":"bool[]","name":"support","type":"bool[]"},{"internalType":"uint256[]","name":"timestamps","type":"uint256[]"}],"stateMutability":"view","type":"function"}
]`

var governorABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(governorABIJSON))
	if err != nil {
		panic("failed to parse governor ABI: " + err.Error())
	}
	governorABI = parsed
}

// ClientOptions parameterise the on-chain reader.
type ClientOptions struct {
	RPCURL          string
	ContractAddress string
	Timeout         time.Duration
}

// Client reads the funding governor contract via Ethereum RPC.
type Client struct {
	opts      ClientOptions
	logger    *logrus.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewClient builds a new governor contract reader. The RPC connection is
// established lazily on first use.
func NewClient(opts ClientOptions, logger *logrus.Logger) *Client {
	return &Client{opts: opts, logger: logger}
}

// ProposalCount returns the number of proposals the contract has recorded.
func (c *Client) ProposalCount(ctx context.Context) (uint64, error) {
	outputs, err := c.call(ctx, "proposalCount")
	if err != nil {
		return 0, err
	}
	count, ok := outputs[0].(*big.Int)
	if !ok {
		return 0, errors.New("failed to decode proposalCount output")
	}
	return count.Uint64(), nil
}

// Proposal fetches one proposal record by id.
func (c *Client) Proposal(ctx context.Context, id uint64) (*RawProposal, error) {
	outputs, err := c.call(ctx, "proposals", new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	if len(outputs) != 9 {
		return nil, fmt.Errorf("unexpected proposals response arity %d", len(outputs))
	}

	proposer, ok0 := outputs[0].(common.Address)
	amount, ok1 := outputs[1].(*big.Int)
	title, ok2 := outputs[2].(string)
	description, ok3 := outputs[3].(string)
	votesFor, ok4 := outputs[4].(*big.Int)
	votesAgainst, ok5 := outputs[5].(*big.Int)
	executed, ok6 := outputs[6].(bool)
	createdAt, ok7 := outputs[7].(*big.Int)
	deadline, ok8 := outputs[8].(*big.Int)
	if !(ok0 && ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7 && ok8) {
		return nil, fmt.Errorf("failed to decode proposal %d", id)
	}

	return &RawProposal{
		ID:           id,
		Proposer:     proposer.Hex(),
		Amount:       amount,
		Title:        title,
		Description:  description,
		VotesFor:     votesFor,
		VotesAgainst: votesAgainst,
		Executed:     executed,
		CreatedAt:    time.Unix(createdAt.Int64(), 0).UTC(),
		Deadline:     time.Unix(deadline.Int64(), 0).UTC(),
	}, nil
}

// Votes fetches every vote cast on a proposal.
func (c *Client) Votes(ctx context.Context, id uint64) ([]RawVote, error) {
	outputs, err := c.call(ctx, "getVotes", new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	if len(outputs) != 4 {
		return nil, fmt.Errorf("unexpected getVotes response arity %d", len(outputs))
	}

	voters, ok0 := outputs[0].([]common.Address)
	weights, ok1 := outputs[1].([]*big.Int)
	support, ok2 := outputs[2].([]bool)
	timestamps, ok3 := outputs[3].([]*big.Int)
	if !(ok0 && ok1 && ok2 && ok3) {
		return nil, fmt.Errorf("failed to decode votes for proposal %d", id)
	}
	if len(weights) != len(voters) || len(support) != len(voters) || len(timestamps) != len(voters) {
		return nil, fmt.Errorf("mismatched vote array lengths for proposal %d", id)
	}

	votes := make([]RawVote, len(voters))
	for i := range voters {
		votes[i] = RawVote{
			Voter:     voters[i].Hex(),
			Weight:    weights[i],
			Support:   support[i],
			Timestamp: time.Unix(timestamps[i].Int64(), 0).UTC(),
		}
	}
	return votes, nil
}

// call packs, executes and unpacks one view method on the governor contract.
func (c *Client) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	if c.opts.RPCURL == "" {
		return nil, errors.New("ledger rpc url not configured")
	}
	if c.opts.ContractAddress == "" {
		return nil, errors.New("governor contract address not configured")
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	addr := common.HexToAddress(c.opts.ContractAddress)
	payload, err := governorABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("contract call %s failed: %w", method, err)
	}

	outputs, err := governorABI.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s response: %w", method, err)
	}
	return outputs, nil
}

func (c *Client) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger rpc: %w", err)
	}
	c.client = client
	c.logger.WithField("rpc_url", c.opts.RPCURL).Info("Connected to ledger RPC")
	return c.client, nil
}

// EthClient exposes the underlying RPC client for network-level queries
// (recent blocks, pending transactions) that are not contract reads.
func (c *Client) EthClient(ctx context.Context) (*ethclient.Client, error) {
	return c.getClient(ctx)
}
