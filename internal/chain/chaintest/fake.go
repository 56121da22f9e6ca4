// Package chaintest provides an in-memory chain.Reader for tests. Calls and results are
// packed and unpacked through the real ABI so type mismatches surface as they would on chain.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"zapquote/internal/chain"
)

// ErrReverted is returned by Revert handlers.
var ErrReverted = errors.New("execution reverted")

// Handler answers one call given its decoded arguments.
type Handler func(args []interface{}) ([]interface{}, error)

type key struct {
	to     common.Address
	method string
}

// Fake is an in-memory chain.Reader.
type Fake struct {
	mu           sync.Mutex
	handlers     map[key]Handler
	transportErr error
	batches      int
	calls        []chain.Call
}

// New creates an empty Fake.
func New() *Fake {
	return &Fake{handlers: make(map[key]Handler)}
}

// Handle registers h for calls to method on to. method is either the raw method name or
// its full signature, such as "calc_token_amount(uint256[2],bool)"; signatures win.
func (f *Fake) Handle(to common.Address, method string, h Handler) {
	f.mu.Lock()
	f.handlers[key{to: to, method: method}] = h
	f.mu.Unlock()
}

// Return registers constant return values.
func (f *Fake) Return(to common.Address, method string, values ...interface{}) {
	f.Handle(to, method, func([]interface{}) ([]interface{}, error) {
		return values, nil
	})
}

// Revert makes calls to method on to fail.
func (f *Fake) Revert(to common.Address, method string) {
	f.Handle(to, method, func([]interface{}) ([]interface{}, error) {
		return nil, ErrReverted
	})
}

// FailNext makes the next BatchCall fail with err at the transport level.
func (f *Fake) FailNext(err error) {
	f.mu.Lock()
	f.transportErr = err
	f.mu.Unlock()
}

// Batches returns the number of BatchCall invocations.
func (f *Fake) Batches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches
}

// Calls returns every call seen so far.
func (f *Fake) Calls() []chain.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chain.Call(nil), f.calls...)
}

// BatchCall implements chain.Reader.
func (f *Fake) BatchCall(ctx context.Context, calls []chain.Call) ([]chain.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.batches++
	f.calls = append(f.calls, calls...)
	if err := f.transportErr; err != nil {
		f.transportErr = nil
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()

	results := make([]chain.Result, len(calls))
	for i, call := range calls {
		results[i].Values, results[i].Err = f.execute(call)
	}
	return results, nil
}

func (f *Fake) execute(call chain.Call) ([]interface{}, error) {
	data, err := call.Pack()
	if err != nil {
		return nil, err
	}
	method, ok := call.ABI.Methods[call.Method]
	if !ok {
		return nil, fmt.Errorf("method %s not in abi", call.Method)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("decode %s args: %w", method.Sig, err)
	}

	f.mu.Lock()
	h, ok := f.handlers[key{to: call.To, method: method.Sig}]
	if !ok {
		h, ok = f.handlers[key{to: call.To, method: method.RawName}]
	}
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no handler for %s on %s", ErrReverted, method.Sig, call.To.Hex())
	}

	out, err := h(args)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method.Sig, call.To.Hex(), err)
	}
	packed, err := method.Outputs.Pack(out...)
	if err != nil {
		return nil, fmt.Errorf("fake %s returned bad values: %w", method.Sig, err)
	}
	return call.Unpack(packed)
}
