package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"zapquote/internal/model"
)

type feeEntry struct {
	Numerator   uint64 `mapstructure:"numerator"`
	Denominator uint64 `mapstructure:"denominator"`
}

// ammEntry is the config file shape of an AMM; addresses stay strings until validated.
type ammEntry struct {
	ID               string   `mapstructure:"id"`
	Family           string   `mapstructure:"family"`
	Factory          string   `mapstructure:"factory"`
	Router           string   `mapstructure:"router"`
	Vault            string   `mapstructure:"vault"`
	Queries          string   `mapstructure:"queries"`
	Proxy            string   `mapstructure:"proxy"`
	ZapWrapper       string   `mapstructure:"zap_wrapper"`
	Fee              feeEntry `mapstructure:"fee"`
	FeeSource        string   `mapstructure:"fee_source"`
	MintFee          feeEntry `mapstructure:"mint_fee"`
	MinimumLiquidity uint64   `mapstructure:"minimum_liquidity"`
	VaultPoolType    string   `mapstructure:"vault_pool_type"`
	StableMethod     string   `mapstructure:"stable_method"`
}

// Pool is a named pool of a configured AMM.
type Pool struct {
	Name    string
	AMM     string
	Address common.Address
	// Pool and AMM used for zap swaps when the pool itself cannot swap.
	SwapVia    common.Address
	SwapViaAMM string
}

type poolEntry struct {
	Name       string `mapstructure:"name"`
	AMM        string `mapstructure:"amm"`
	Address    string `mapstructure:"address"`
	SwapVia    string `mapstructure:"swap_via"`
	SwapViaAMM string `mapstructure:"swap_via_amm"`
}

// ParseAddress converts a hex address; empty input is the zero address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %s", input)
	}
	return common.HexToAddress(input), nil
}

func loadAMMs(v *viper.Viper, chainID uint64) ([]model.AmmConfig, error) {
	var entries []ammEntry
	if err := v.UnmarshalKey("amms", &entries); err != nil {
		return nil, fmt.Errorf("decode amms: %w", err)
	}
	seen := make(map[string]bool, len(entries))
	out := make([]model.AmmConfig, 0, len(entries))
	for _, entry := range entries {
		cfg, err := entry.toModel(chainID)
		if err != nil {
			return nil, err
		}
		if seen[cfg.ID] {
			return nil, fmt.Errorf("amm %s: duplicate id", cfg.ID)
		}
		seen[cfg.ID] = true
		out = append(out, cfg)
	}
	return out, nil
}

func (e ammEntry) toModel(chainID uint64) (model.AmmConfig, error) {
	family, err := model.ParseFamily(e.Family)
	if err != nil {
		return model.AmmConfig{}, fmt.Errorf("amm %s: %w", e.ID, err)
	}
	cfg := model.AmmConfig{
		ID:               e.ID,
		ChainID:          chainID,
		Family:           family,
		Fee:              model.Fee{Numerator: e.Fee.Numerator, Denominator: e.Fee.Denominator},
		FeeSource:        model.FeeSource(e.FeeSource),
		MintFee:          model.Fee{Numerator: e.MintFee.Numerator, Denominator: e.MintFee.Denominator},
		MinimumLiquidity: e.MinimumLiquidity,
		VaultPoolType:    model.VaultPoolType(e.VaultPoolType),
		StableMethod:     e.StableMethod,
	}
	addresses := []struct {
		name  string
		value string
		dst   *common.Address
	}{
		{"factory", e.Factory, &cfg.Factory},
		{"router", e.Router, &cfg.Router},
		{"vault", e.Vault, &cfg.Vault},
		{"queries", e.Queries, &cfg.Queries},
		{"proxy", e.Proxy, &cfg.Proxy},
		{"zap_wrapper", e.ZapWrapper, &cfg.ZapWrapper},
	}
	for _, a := range addresses {
		if *a.dst, err = ParseAddress(a.value); err != nil {
			return model.AmmConfig{}, fmt.Errorf("amm %s %s: %w", e.ID, a.name, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return model.AmmConfig{}, err
	}
	return cfg, nil
}

func loadPools(v *viper.Viper) ([]Pool, error) {
	var entries []poolEntry
	if err := v.UnmarshalKey("pools", &entries); err != nil {
		return nil, fmt.Errorf("decode pools: %w", err)
	}
	out := make([]Pool, 0, len(entries))
	for _, entry := range entries {
		address, err := ParseAddress(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", entry.Name, err)
		}
		if address == (common.Address{}) {
			return nil, fmt.Errorf("pool %s: address is required", entry.Name)
		}
		swapVia, err := ParseAddress(entry.SwapVia)
		if err != nil {
			return nil, fmt.Errorf("pool %s swap_via: %w", entry.Name, err)
		}
		out = append(out, Pool{
			Name:       entry.Name,
			AMM:        entry.AMM,
			Address:    address,
			SwapVia:    swapVia,
			SwapViaAMM: entry.SwapViaAMM,
		})
	}
	return out, nil
}
