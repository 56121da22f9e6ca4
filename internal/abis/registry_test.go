package abis

import (
	"strings"
	"testing"
)

func TestERC20Parses(t *testing.T) {
	parsed, err := ERC20()
	if err != nil {
		t.Fatalf("parse erc20: %v", err)
	}
	for _, name := range []string{"decimals", "symbol", "name", "totalSupply", "balanceOf"} {
		if _, ok := parsed.Methods[name]; !ok {
			t.Fatalf("missing method %s", name)
		}
	}

	b32, err := ERC20Bytes32()
	if err != nil {
		t.Fatalf("parse erc20 bytes32: %v", err)
	}
	if got := b32.Methods["symbol"].Outputs[0].Type.String(); got != "bytes32" {
		t.Fatalf("symbol output type %s", got)
	}
}

func TestRegistryBuildsOnce(t *testing.T) {
	r := NewRegistry()
	builds := 0
	build := func() string {
		builds++
		return `[{"inputs": [], "name": "A", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}]`
	}

	first, err := r.Get("a", build)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	second, err := r.Get("a", build)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if first != second {
		t.Fatalf("expected the same parsed abi")
	}
	if builds != 1 || r.Len() != 1 {
		t.Fatalf("builds=%d len=%d", builds, r.Len())
	}
}

func TestRegistryReportsParseErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("broken", func() string { return "[{" })
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("expected parse error naming the key, got %v", err)
	}
}
