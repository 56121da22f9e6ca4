package model

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultMinimumLiquidity is the amount of LP tokens locked by the first deposit of a pair.
const DefaultMinimumLiquidity = 1000

// Fee is a fraction Numerator/Denominator.
type Fee struct {
	Numerator   uint64 `json:"numerator"`
	Denominator uint64 `json:"denominator"`
}

// IsZero reports whether the fee is unset.
func (f Fee) IsZero() bool {
	return f.Numerator == 0 || f.Denominator == 0
}

// FeeSource selects where a pool engine reads the swap fee from.
type FeeSource string

const (
	FeeSourceConstant       FeeSource = "constant"
	FeeSourcePairSwapFee    FeeSource = "pair-swap-fee"
	FeeSourcePairFee        FeeSource = "pair-fee"
	FeeSourcePairFeeRatio   FeeSource = "pair-fee-ratio"
	FeeSourceFactoryPairFee FeeSource = "factory-pair-fee"
	FeeSourceFactoryStable  FeeSource = "factory-stable-fee"
	FeeSourceFactoryPool    FeeSource = "factory-pool-fee"
)

// VaultPoolType is the pool type behind a vault.
type VaultPoolType string

const (
	VaultPoolWeighted         VaultPoolType = "weighted"
	VaultPoolComposableStable VaultPoolType = "composable-stable"
	VaultPoolGyro             VaultPoolType = "gyro"
)

// AmmConfig describes one deployment of a contract family. Which fields are required
// depends on Family; Validate enforces it.
type AmmConfig struct {
	ID      string `json:"id"`
	ChainID uint64 `json:"chain_id"`
	Family  Family `json:"family"`

	Factory common.Address `json:"factory"`
	Router  common.Address `json:"router"`
	Vault   common.Address `json:"vault"`
	Queries common.Address `json:"queries"`
	Proxy   common.Address `json:"proxy"`

	// Swap fee used by FeeSourceConstant, and the unit of fees read from chain.
	Fee       Fee       `json:"fee"`
	FeeSource FeeSource `json:"fee_source"`
	// Protocol share of the accrued growth minted as LP on liquidity events.
	MintFee          Fee    `json:"mint_fee"`
	MinimumLiquidity uint64 `json:"minimum_liquidity"`

	VaultPoolType VaultPoolType `json:"vault_pool_type,omitempty"`
	// Stable pool method type, such as "fixed" or "pool-dynamic-deposit".
	StableMethod string `json:"stable_method,omitempty"`
	// Deposit wrapper used by stable pool method types that go through a zap contract.
	ZapWrapper common.Address `json:"zap_wrapper"`
}

// Validate checks the fields each family needs.
func (c AmmConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("amm config: id is required")
	}
	zero := common.Address{}
	switch c.Family {
	case FamilyConstantProduct, FamilyHybridCurve:
		if c.Router == zero {
			return fmt.Errorf("amm %s: router is required", c.ID)
		}
		if c.FeeSource == "" || c.FeeSource == FeeSourceConstant {
			if c.Fee.IsZero() {
				return fmt.Errorf("amm %s: constant fee requires fee numerator and denominator", c.ID)
			}
		}
	case FamilyVault:
		if c.Vault == zero || c.Queries == zero {
			return fmt.Errorf("amm %s: vault and queries are required", c.ID)
		}
		switch c.VaultPoolType {
		case VaultPoolWeighted, VaultPoolComposableStable, VaultPoolGyro:
		default:
			return fmt.Errorf("amm %s: unknown vault pool type %q", c.ID, c.VaultPoolType)
		}
	case FamilyHypervisor:
		if c.Proxy == zero {
			return fmt.Errorf("amm %s: proxy is required", c.ID)
		}
	case FamilyStablePool:
		if c.StableMethod == "" {
			return fmt.Errorf("amm %s: stable method is required", c.ID)
		}
	default:
		return fmt.Errorf("amm %s: unknown family %q", c.ID, c.Family)
	}
	return nil
}

// MinLiquidity returns MinimumLiquidity or the pair default.
func (c AmmConfig) MinLiquidity() uint64 {
	if c.MinimumLiquidity == 0 {
		return DefaultMinimumLiquidity
	}
	return c.MinimumLiquidity
}
