package gamma

import (
	"github.com/ethereum/go-ethereum/accounts/abi"

	"zapquote/internal/abis"
)

const hypervisorABIJSON = `[
  {"inputs": [], "name": "token0", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "token1", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalSupply", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getTotalAmounts", "outputs": [{"name": "total0", "type": "uint256"}, {"name": "total1", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "currentTick", "outputs": [{"name": "tick", "type": "int24"}], "stateMutability": "view", "type": "function"},
  {"inputs": [
    {"name": "shares", "type": "uint256"},
    {"name": "to", "type": "address"},
    {"name": "from", "type": "address"},
    {"name": "minAmounts", "type": "uint256[4]"}
  ], "name": "withdraw", "outputs": [{"name": "amount0", "type": "uint256"}, {"name": "amount1", "type": "uint256"}], "stateMutability": "nonpayable", "type": "function"}
]`

const proxyABIJSON = `[
  {"inputs": [
    {"name": "pos", "type": "address"},
    {"name": "token", "type": "address"},
    {"name": "_deposit", "type": "uint256"}
  ], "name": "getDepositAmount", "outputs": [{"name": "amountStart", "type": "uint256"}, {"name": "amountEnd", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [
    {"name": "deposit0", "type": "uint256"},
    {"name": "deposit1", "type": "uint256"},
    {"name": "to", "type": "address"},
    {"name": "pos", "type": "address"},
    {"name": "minIn", "type": "uint256[4]"}
  ], "name": "deposit", "outputs": [{"name": "shares", "type": "uint256"}], "stateMutability": "nonpayable", "type": "function"}
]`

var (
	hypervisorABI = abis.NewLazy(hypervisorABIJSON)
	proxyABI      = abis.NewLazy(proxyABIJSON)
)

func HypervisorABI() (*abi.ABI, error) { return hypervisorABI.Get() }

func ProxyABI() (*abi.ABI, error) { return proxyABI.Get() }
