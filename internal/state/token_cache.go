package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"zapquote/internal/abis"
	"zapquote/internal/chain"
	"zapquote/internal/model"
)

// TokenCache caches token metadata by address.
type TokenCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

func NewTokenCache() *TokenCache {
	return &TokenCache{data: make(map[common.Address]model.TokenMeta)}
}

func (c *TokenCache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenCache) Set(meta model.TokenMeta) {
	c.mu.Lock()
	c.data[meta.Address] = meta
	c.mu.Unlock()
}

// Load returns metadata for tokens, fetching the unknown ones in one batch. Decimals are
// required; symbols and names fall back to bytes32 and may end up empty.
func (c *TokenCache) Load(ctx context.Context, reader chain.Reader, tokens []common.Address, logger *zap.Logger) (map[common.Address]model.TokenMeta, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make(map[common.Address]model.TokenMeta, len(tokens))
	var missing []common.Address
	for _, token := range tokens {
		if meta, ok := c.Get(token); ok {
			out[token] = meta
			continue
		}
		if _, seen := out[token]; !seen {
			out[token] = model.TokenMeta{Address: token}
			missing = append(missing, token)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	stringABI, err := abis.ERC20()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	bytes32ABI, err := abis.ERC20Bytes32()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	calls := make([]chain.Call, 0, 3*len(missing))
	for _, token := range missing {
		calls = append(calls,
			chain.Call{To: token, ABI: stringABI, Method: "decimals"},
			chain.Call{To: token, ABI: stringABI, Method: "symbol", Optional: true},
			chain.Call{To: token, ABI: stringABI, Method: "name", Optional: true},
		)
	}
	results, err := reader.BatchCall(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("token metadata: %w", err)
	}
	if err := Require(calls, results); err != nil {
		return nil, fmt.Errorf("token metadata: %w", err)
	}

	var fallback []chain.Call
	for i, token := range missing {
		meta := out[token]
		decimals, err := chain.Value(results[3*i], chain.AsUint8)
		if err != nil {
			return nil, fmt.Errorf("decimals of %s: %w", token.Hex(), err)
		}
		meta.Decimals = decimals
		if r := results[3*i+1]; r.Err == nil && len(r.Values) > 0 {
			meta.Symbol, _ = chain.AsString(r.Values[0])
		} else {
			fallback = append(fallback, chain.Call{To: token, ABI: bytes32ABI, Method: "symbol", Optional: true})
		}
		if r := results[3*i+2]; r.Err == nil && len(r.Values) > 0 {
			meta.Name, _ = chain.AsString(r.Values[0])
		} else {
			fallback = append(fallback, chain.Call{To: token, ABI: bytes32ABI, Method: "name", Optional: true})
		}
		out[token] = meta
	}

	if len(fallback) > 0 {
		results, err := reader.BatchCall(ctx, fallback)
		if err != nil {
			return nil, fmt.Errorf("token metadata fallback: %w", err)
		}
		for i, call := range fallback {
			meta := out[call.To]
			if results[i].Err != nil || len(results[i].Values) == 0 {
				logger.Debug("token metadata call failed", zap.String("token", call.To.Hex()), zap.String("method", call.Method), zap.Error(results[i].Err))
				continue
			}
			s, _ := chain.AsString(results[i].Values[0])
			if call.Method == "symbol" {
				meta.Symbol = s
			} else {
				meta.Name = s
			}
			out[call.To] = meta
		}
	}

	for _, token := range missing {
		c.Set(out[token])
	}
	return out, nil
}
