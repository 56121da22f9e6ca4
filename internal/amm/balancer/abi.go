package balancer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"zapquote/internal/abis"
)

const poolABIJSON = `[
  {"inputs": [], "name": "getPoolId", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalSupply", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getActualSupply", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getSwapFeePercentage", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getScalingFactors", "outputs": [{"type": "uint256[]"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getNormalizedWeights", "outputs": [{"type": "uint256[]"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getBptIndex", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getTokenRates", "outputs": [{"name": "rate0", "type": "uint256"}, {"name": "rate1", "type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const joinRequestComponents = `[
  {"name": "assets", "type": "address[]"},
  {"name": "maxAmountsIn", "type": "uint256[]"},
  {"name": "userData", "type": "bytes"},
  {"name": "fromInternalBalance", "type": "bool"}
]`

const exitRequestComponents = `[
  {"name": "assets", "type": "address[]"},
  {"name": "minAmountsOut", "type": "uint256[]"},
  {"name": "userData", "type": "bytes"},
  {"name": "toInternalBalance", "type": "bool"}
]`

const fundsComponents = `[
  {"name": "sender", "type": "address"},
  {"name": "fromInternalBalance", "type": "bool"},
  {"name": "recipient", "type": "address"},
  {"name": "toInternalBalance", "type": "bool"}
]`

const vaultABIJSON = `[
  {"inputs": [{"name": "poolId", "type": "bytes32"}], "name": "getPoolTokens", "outputs": [
    {"name": "tokens", "type": "address[]"},
    {"name": "balances", "type": "uint256[]"},
    {"name": "lastChangeBlock", "type": "uint256"}
  ], "stateMutability": "view", "type": "function"},
  {"inputs": [
    {"name": "poolId", "type": "bytes32"},
    {"name": "sender", "type": "address"},
    {"name": "recipient", "type": "address"},
    {"name": "request", "type": "tuple", "components": ` + joinRequestComponents + `}
  ], "name": "joinPool", "outputs": [], "stateMutability": "payable", "type": "function"},
  {"inputs": [
    {"name": "poolId", "type": "bytes32"},
    {"name": "sender", "type": "address"},
    {"name": "recipient", "type": "address"},
    {"name": "request", "type": "tuple", "components": ` + exitRequestComponents + `}
  ], "name": "exitPool", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [
    {"name": "singleSwap", "type": "tuple", "components": [
      {"name": "poolId", "type": "bytes32"},
      {"name": "kind", "type": "uint8"},
      {"name": "assetIn", "type": "address"},
      {"name": "assetOut", "type": "address"},
      {"name": "amount", "type": "uint256"},
      {"name": "userData", "type": "bytes"}
    ]},
    {"name": "funds", "type": "tuple", "components": ` + fundsComponents + `},
    {"name": "limit", "type": "uint256"},
    {"name": "deadline", "type": "uint256"}
  ], "name": "swap", "outputs": [{"name": "amountCalculated", "type": "uint256"}], "stateMutability": "payable", "type": "function"}
]`

const queriesABIJSON = `[
  {"inputs": [
    {"name": "poolId", "type": "bytes32"},
    {"name": "sender", "type": "address"},
    {"name": "recipient", "type": "address"},
    {"name": "request", "type": "tuple", "components": ` + joinRequestComponents + `}
  ], "name": "queryJoin", "outputs": [
    {"name": "bptOut", "type": "uint256"},
    {"name": "amountsIn", "type": "uint256[]"}
  ], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [
    {"name": "poolId", "type": "bytes32"},
    {"name": "sender", "type": "address"},
    {"name": "recipient", "type": "address"},
    {"name": "request", "type": "tuple", "components": ` + exitRequestComponents + `}
  ], "name": "queryExit", "outputs": [
    {"name": "bptIn", "type": "uint256"},
    {"name": "amountsOut", "type": "uint256[]"}
  ], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [
    {"name": "kind", "type": "uint8"},
    {"name": "swaps", "type": "tuple[]", "components": [
      {"name": "poolId", "type": "bytes32"},
      {"name": "assetInIndex", "type": "uint256"},
      {"name": "assetOutIndex", "type": "uint256"},
      {"name": "amount", "type": "uint256"},
      {"name": "userData", "type": "bytes"}
    ]},
    {"name": "assets", "type": "address[]"},
    {"name": "funds", "type": "tuple", "components": ` + fundsComponents + `}
  ], "name": "queryBatchSwap", "outputs": [{"name": "assetDeltas", "type": "int256[]"}], "stateMutability": "nonpayable", "type": "function"}
]`

var (
	poolABI    = abis.NewLazy(poolABIJSON)
	vaultABI   = abis.NewLazy(vaultABIJSON)
	queriesABI = abis.NewLazy(queriesABIJSON)
)

// PoolABI returns the union of the pool getters used across pool types.
func PoolABI() (*abi.ABI, error) { return poolABI.Get() }

// VaultABI returns the vault ABI.
func VaultABI() (*abi.ABI, error) { return vaultABI.Get() }

// QueriesABI returns the vault queries helper ABI.
func QueriesABI() (*abi.ABI, error) { return queriesABI.Get() }

// JoinPoolRequest is the request tuple of joinPool and queryJoin.
type JoinPoolRequest struct {
	Assets              []common.Address
	MaxAmountsIn        []*big.Int
	UserData            []byte
	FromInternalBalance bool
}

// ExitPoolRequest is the request tuple of exitPool and queryExit.
type ExitPoolRequest struct {
	Assets            []common.Address
	MinAmountsOut     []*big.Int
	UserData          []byte
	ToInternalBalance bool
}

// SingleSwap is the swap tuple of the vault swap method.
type SingleSwap struct {
	PoolId   [32]byte
	Kind     uint8
	AssetIn  common.Address
	AssetOut common.Address
	Amount   *big.Int
	UserData []byte
}

// BatchSwapStep is one hop of queryBatchSwap.
type BatchSwapStep struct {
	PoolId        [32]byte
	AssetInIndex  *big.Int
	AssetOutIndex *big.Int
	Amount        *big.Int
	UserData      []byte
}

// FundManagement is the funds tuple of swaps.
type FundManagement struct {
	Sender              common.Address
	FromInternalBalance bool
	Recipient           common.Address
	ToInternalBalance   bool
}
