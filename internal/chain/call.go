package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Call is one read-only contract call inside a batch.
type Call struct {
	To     common.Address
	ABI    *abi.ABI
	Method string
	Args   []interface{}
	// Optional calls may fail without failing the quote that issued them.
	Optional bool
}

// Result holds the unpacked return values of a Call, or the error it produced.
type Result struct {
	Values []interface{}
	Err    error
}

// Reader executes batches of contract calls. Transport failures are returned as the error;
// failures of individual calls are reported in Result.Err.
type Reader interface {
	BatchCall(ctx context.Context, calls []Call) ([]Result, error)
}

// Pack encodes the call data.
func (c Call) Pack() ([]byte, error) {
	if c.ABI == nil {
		return nil, fmt.Errorf("pack %s: abi is nil", c.Method)
	}
	data, err := c.ABI.Pack(c.Method, c.Args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", c.Method, err)
	}
	return data, nil
}

// Unpack decodes return data of the call.
func (c Call) Unpack(data []byte) ([]interface{}, error) {
	if c.ABI == nil {
		return nil, fmt.Errorf("unpack %s: abi is nil", c.Method)
	}
	values, err := c.ABI.Unpack(c.Method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", c.Method, err)
	}
	return values, nil
}

// One executes a single call through reader and returns its values.
func One(ctx context.Context, reader Reader, call Call) ([]interface{}, error) {
	results, err := reader.BatchCall(ctx, []Call{call})
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("call %s: expected 1 result, got %d", call.Method, len(results))
	}
	if results[0].Err != nil {
		return nil, results[0].Err
	}
	return results[0].Values, nil
}
