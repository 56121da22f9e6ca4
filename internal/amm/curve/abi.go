package curve

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"zapquote/internal/abis"
)

const readerABIJSON = `[
  {"inputs": [{"name": "i", "type": "uint256"}], "name": "coins", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "i", "type": "uint256"}], "name": "underlying_coins", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "i", "type": "uint256"}], "name": "balances", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "token", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "lp_token", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "base_pool", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalSupply", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

// Early pools index their getters with int128.
const legacyReaderABIJSON = `[
  {"inputs": [{"name": "i", "type": "int128"}], "name": "coins", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "i", "type": "int128"}], "name": "underlying_coins", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "i", "type": "int128"}], "name": "balances", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

var (
	readerABI       = abis.NewLazy(readerABIJSON)
	legacyReaderABI = abis.NewLazy(legacyReaderABIJSON)

	methodABIs = abis.NewRegistry()
)

// ReaderABI returns the getters with uint256 indexes.
func ReaderABI() (*abi.ABI, error) { return readerABI.Get() }

// LegacyReaderABI returns the getters with int128 indexes.
func LegacyReaderABI() (*abi.ABI, error) { return legacyReaderABI.Get() }

// MethodABI returns the quoting and mutating methods of spec for n coins, with or without
// the is_deposit flag on calc_token_amount.
func MethodABI(spec MethodSpec, n int, depositFlag bool) (*abi.ABI, error) {
	if n < 2 || n > MaxCoins {
		return nil, fmt.Errorf("stable pool with %d coins", n)
	}
	key := fmt.Sprintf("%s/%d/%t", spec.Type, n, depositFlag)
	return methodABIs.Get(key, func() string { return methodABIJSON(spec, n, depositFlag) })
}

type param struct {
	name string
	typ  string
}

func function(name string, inputs []param, outputs []param, mutability string) string {
	in := make([]string, len(inputs))
	for i, p := range inputs {
		in[i] = fmt.Sprintf(`{"name": %q, "type": %q}`, p.name, p.typ)
	}
	out := make([]string, len(outputs))
	for i, p := range outputs {
		out[i] = fmt.Sprintf(`{"name": %q, "type": %q}`, p.name, p.typ)
	}
	return fmt.Sprintf(`{"inputs": [%s], "name": %q, "outputs": [%s], "stateMutability": %q, "type": "function"}`,
		strings.Join(in, ", "), name, strings.Join(out, ", "), mutability)
}

func methodABIJSON(spec MethodSpec, n int, depositFlag bool) string {
	amountsType := fmt.Sprintf("uint256[%d]", n)
	if spec.Dynamic {
		amountsType = "uint256[]"
	}
	var prefix []param
	if spec.PoolArg {
		prefix = append(prefix, param{"pool", "address"})
	}
	var suffix []param
	if spec.Underlying {
		suffix = append(suffix, param{"use_underlying", "bool"})
	}
	if spec.Receiver {
		suffix = append(suffix, param{"receiver", "address"})
	}
	with := func(middle ...param) []param {
		out := append([]param(nil), prefix...)
		out = append(out, middle...)
		return append(out, suffix...)
	}
	uint256Out := []param{{"", "uint256"}}

	calc := append(append([]param(nil), prefix...), param{"amounts", amountsType})
	if depositFlag {
		calc = append(calc, param{"is_deposit", "bool"})
	}
	withdrawOne := append(append([]param(nil), prefix...), param{"token_amount", "uint256"}, param{"i", spec.IndexType})

	removeMins := []param{{"token_amount", "uint256"}, {"min_amounts", fmt.Sprintf("uint256[%d]", n)}}
	if spec.Underlying {
		removeMins = append(removeMins, param{"use_underlying", "bool"})
	}

	swap := func(name string) string {
		return function(name, []param{{"i", spec.IndexType}, {"j", spec.IndexType}, {"dx", "uint256"}, {"min_dy", "uint256"}}, uint256Out, "nonpayable")
	}
	dy := func(name string) string {
		return function(name, []param{{"i", spec.IndexType}, {"j", spec.IndexType}, {"dx", "uint256"}}, uint256Out, "view")
	}

	functions := []string{
		function("calc_token_amount", calc, uint256Out, "view"),
		function("calc_withdraw_one_coin", withdrawOne, uint256Out, "view"),
		function("add_liquidity", with(param{"amounts", amountsType}, param{"min_mint_amount", "uint256"}), uint256Out, "nonpayable"),
		function("remove_liquidity_one_coin", with(param{"token_amount", "uint256"}, param{"i", spec.IndexType}, param{"min_amount", "uint256"}), uint256Out, "nonpayable"),
		function("remove_liquidity", removeMins, nil, "nonpayable"),
		dy("get_dy"),
		dy("get_dy_underlying"),
		swap("exchange"),
		swap("exchange_underlying"),
	}
	return "[" + strings.Join(functions, ",\n") + "]"
}
