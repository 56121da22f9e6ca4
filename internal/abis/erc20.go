package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

const erc20StringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalSupply", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const erc20Bytes32JSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20String  = NewLazy(erc20StringJSON)
	erc20Bytes32 = NewLazy(erc20Bytes32JSON)
)

// ERC20 returns the standard token ABI.
func ERC20() (*abi.ABI, error) {
	return erc20String.Get()
}

// ERC20Bytes32 returns the token ABI of old tokens that return symbol and name as bytes32.
func ERC20Bytes32() (*abi.ABI, error) {
	return erc20Bytes32.Get()
}
