package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"zapquote/internal/metrics"
)

const (
	DefaultMaxBatchSize = 50
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 200 * time.Millisecond
)

// Client wraps go-ethereum RPC and batches contract reads into single requests.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	maxBatchSize int
	maxRetries   int
	retryBackoff time.Duration
	blockTag     string

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithMaxBatchSize caps the number of eth_call elements per request.
func WithMaxBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBatchSize = n
		}
	}
}

// WithRetry sets the retry policy for transport failures.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryBackoff = backoff
	}
}

// WithBlock pins reads to a block number instead of latest.
func WithBlock(number uint64) Option {
	return func(c *Client) {
		c.blockTag = hexutil.EncodeUint64(number)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string, opts ...Option) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return newClient(rpcClient, opts...), nil
}

func newClient(rpcClient *rpc.Client, opts ...Option) *Client {
	c := &Client{
		rpcClient:    rpcClient,
		ethClient:    ethclient.NewClient(rpcClient),
		maxBatchSize: DefaultMaxBatchSize,
		maxRetries:   DefaultMaxRetries,
		retryBackoff: DefaultRetryBackoff,
		blockTag:     "latest",
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}

type callArgs struct {
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

// BatchCall packs every call, sends them as eth_call batch requests of at most
// maxBatchSize elements and unpacks the results in order.
func (c *Client) BatchCall(ctx context.Context, calls []Call) ([]Result, error) {
	results := make([]Result, len(calls))
	elems := make([]rpc.BatchElem, 0, len(calls))
	index := make([]int, 0, len(calls))

	for i, call := range calls {
		data, err := call.Pack()
		if err != nil {
			results[i].Err = err
			continue
		}
		elems = append(elems, rpc.BatchElem{
			Method: "eth_call",
			Args:   []interface{}{callArgs{To: call.To, Data: data}, c.blockTag},
			Result: new(hexutil.Bytes),
		})
		index = append(index, i)
	}

	for start := 0; start < len(elems); start += c.maxBatchSize {
		end := min(start+c.maxBatchSize, len(elems))
		chunk := elems[start:end]
		attempt := 0
		err := withRetry(ctx, c.maxRetries, c.retryBackoff, func(ctx context.Context) error {
			if attempt > 0 {
				c.logger.Warn("retrying batch call", zap.Int("attempt", attempt), zap.Int("calls", len(chunk)))
			}
			attempt++
			for j := range chunk {
				chunk[j].Error = nil
			}
			return c.rpcClient.BatchCallContext(ctx, chunk)
		})
		c.metrics.ObserveBatch(len(chunk), err)
		if err != nil {
			return nil, fmt.Errorf("batch eth_call: %w", err)
		}
	}

	for j, elem := range elems {
		i := index[j]
		if elem.Error != nil {
			results[i].Err = fmt.Errorf("call %s on %s: %w", calls[i].Method, calls[i].To.Hex(), elem.Error)
			continue
		}
		raw, _ := elem.Result.(*hexutil.Bytes)
		if raw == nil || len(*raw) == 0 {
			results[i].Err = fmt.Errorf("call %s on %s: empty return data", calls[i].Method, calls[i].To.Hex())
			continue
		}
		results[i].Values, results[i].Err = calls[i].Unpack(*raw)
	}

	c.logger.Debug("batch call done", zap.Int("calls", len(calls)), zap.Int("sent", len(elems)))
	return results, nil
}
