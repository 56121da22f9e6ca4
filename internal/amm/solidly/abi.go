package solidly

import (
	"github.com/ethereum/go-ethereum/accounts/abi"

	"zapquote/internal/abis"
)

const pairABIJSON = `[
  {"inputs": [], "name": "token0", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "token1", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "stable", "outputs": [{"type": "bool"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getReserves", "outputs": [
    {"name": "reserve0", "type": "uint256"},
    {"name": "reserve1", "type": "uint256"},
    {"name": "blockTimestampLast", "type": "uint256"}
  ], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalSupply", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "fee", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "swapFee", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "feeRatio", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

// The two factory fee getters share a name, so each lives in its own ABI.
const factoryStableFeeABIJSON = `[
  {"inputs": [{"name": "stable", "type": "bool"}], "name": "getFee", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const factoryPoolFeeABIJSON = `[
  {"inputs": [{"name": "pool", "type": "address"}, {"name": "stable", "type": "bool"}], "name": "getFee", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const routerABIJSON = `[
  {"inputs": [
    {"name": "tokenA", "type": "address"},
    {"name": "tokenB", "type": "address"},
    {"name": "stable", "type": "bool"},
    {"name": "amountADesired", "type": "uint256"},
    {"name": "amountBDesired", "type": "uint256"},
    {"name": "amountAMin", "type": "uint256"},
    {"name": "amountBMin", "type": "uint256"},
    {"name": "to", "type": "address"},
    {"name": "deadline", "type": "uint256"}
  ], "name": "addLiquidity", "outputs": [
    {"name": "amountA", "type": "uint256"},
    {"name": "amountB", "type": "uint256"},
    {"name": "liquidity", "type": "uint256"}
  ], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [
    {"name": "tokenA", "type": "address"},
    {"name": "tokenB", "type": "address"},
    {"name": "stable", "type": "bool"},
    {"name": "liquidity", "type": "uint256"},
    {"name": "amountAMin", "type": "uint256"},
    {"name": "amountBMin", "type": "uint256"},
    {"name": "to", "type": "address"},
    {"name": "deadline", "type": "uint256"}
  ], "name": "removeLiquidity", "outputs": [
    {"name": "amountA", "type": "uint256"},
    {"name": "amountB", "type": "uint256"}
  ], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [
    {"name": "amountIn", "type": "uint256"},
    {"name": "amountOutMin", "type": "uint256"},
    {"name": "tokenFrom", "type": "address"},
    {"name": "tokenTo", "type": "address"},
    {"name": "stable", "type": "bool"},
    {"name": "to", "type": "address"},
    {"name": "deadline", "type": "uint256"}
  ], "name": "swapExactTokensForTokensSimple", "outputs": [{"name": "amounts", "type": "uint256[]"}], "stateMutability": "nonpayable", "type": "function"}
]`

var (
	pairABI             = abis.NewLazy(pairABIJSON)
	factoryStableFeeABI = abis.NewLazy(factoryStableFeeABIJSON)
	factoryPoolFeeABI   = abis.NewLazy(factoryPoolFeeABIJSON)
	routerABI           = abis.NewLazy(routerABIJSON)
)

// PairABI returns the hybrid pair ABI.
func PairABI() (*abi.ABI, error) { return pairABI.Get() }

// FactoryStableFeeABI returns the factory ABI with getFee(bool).
func FactoryStableFeeABI() (*abi.ABI, error) { return factoryStableFeeABI.Get() }

// FactoryPoolFeeABI returns the factory ABI with getFee(address,bool).
func FactoryPoolFeeABI() (*abi.ABI, error) { return factoryPoolFeeABI.Get() }

// RouterABI returns the router ABI.
func RouterABI() (*abi.ABI, error) { return routerABI.Get() }
