package uniswap

import (
	"github.com/ethereum/go-ethereum/accounts/abi"

	"zapquote/internal/abis"
)

const pairABIJSON = `[
  {"inputs": [], "name": "token0", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "token1", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getReserves", "outputs": [
    {"name": "reserve0", "type": "uint112"},
    {"name": "reserve1", "type": "uint112"},
    {"name": "blockTimestampLast", "type": "uint32"}
  ], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalSupply", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "kLast", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "swapFee", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "fee", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const factoryABIJSON = `[
  {"inputs": [], "name": "feeTo", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "pair", "type": "address"}], "name": "getPairFee", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const routerABIJSON = `[
  {"inputs": [
    {"name": "tokenA", "type": "address"},
    {"name": "tokenB", "type": "address"},
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
    {"name": "path", "type": "address[]"},
    {"name": "to", "type": "address"},
    {"name": "deadline", "type": "uint256"}
  ], "name": "swapExactTokensForTokens", "outputs": [{"name": "amounts", "type": "uint256[]"}], "stateMutability": "nonpayable", "type": "function"}
]`

var (
	pairABI    = abis.NewLazy(pairABIJSON)
	factoryABI = abis.NewLazy(factoryABIJSON)
	routerABI  = abis.NewLazy(routerABIJSON)
)

// PairABI returns the constant-product pair ABI.
func PairABI() (*abi.ABI, error) { return pairABI.Get() }

// FactoryABI returns the pair factory ABI.
func FactoryABI() (*abi.ABI, error) { return factoryABI.Get() }

// RouterABI returns the router ABI.
func RouterABI() (*abi.ABI, error) { return routerABI.Get() }
