// Package abis holds lazily parsed contract ABIs shared by the pool engines.
package abis

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Lazy parses an ABI definition once, on first use.
type Lazy struct {
	json   string
	once   sync.Once
	parsed abi.ABI
	err    error
}

// NewLazy wraps a JSON ABI definition.
func NewLazy(json string) *Lazy {
	return &Lazy{json: json}
}

// Get returns the parsed ABI.
func (l *Lazy) Get() (*abi.ABI, error) {
	l.once.Do(func() {
		l.parsed, l.err = abi.JSON(strings.NewReader(l.json))
	})
	if l.err != nil {
		return nil, l.err
	}
	return &l.parsed, nil
}

// Registry caches ABIs that are generated at runtime, such as the per coin count
// variants of stable pool contracts.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Lazy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Lazy)}
}

// Get returns the ABI registered under key, building its JSON with build on first use.
func (r *Registry) Get(key string, build func() string) (*abi.ABI, error) {
	r.mu.Lock()
	entry, ok := r.entries[key]
	if !ok {
		entry = NewLazy(build())
		r.entries[key] = entry
	}
	r.mu.Unlock()

	parsed, err := entry.Get()
	if err != nil {
		return nil, fmt.Errorf("parse abi %s: %w", key, err)
	}
	return parsed, nil
}

// Len returns the number of registered ABIs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
