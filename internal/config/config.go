package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"zapquote/internal/model"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL          string
	ChainID         uint64
	Block           uint64
	MaxBatchSize    int
	MaxRetries      int
	RetryBackoff    time.Duration
	FactoryCacheTTL time.Duration
	Slippage        decimal.Decimal
	Concurrency     int
	Out             string
	OutDaily        bool
	PGDSN           string
	LogLevel        string

	AMMs  []model.AmmConfig
	Pools []Pool

	Request Request
}

// Request holds the quote inputs given on the command line or in the environment. Amounts
// are human readable decimals; the command scales them by token decimals.
type Request struct {
	AMM        string
	Pool       string
	TokenIn    string
	TokenOut   string
	AmountIn   string
	Amounts    []string
	Liquidity  string
	Recipient  string
	SwapVia    string
	SwapViaAMM string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ZAPQUOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain-id", uint64(1))
	v.SetDefault("max-batch-size", 50)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 200*time.Millisecond)
	v.SetDefault("cache-ttl", 5*time.Minute)
	v.SetDefault("slippage", "0.005")
	v.SetDefault("concurrency", 8)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	slippage, err := decimal.NewFromString(v.GetString("slippage"))
	if err != nil {
		return Config{}, fmt.Errorf("parse slippage: %w", err)
	}

	cfg := Config{
		RPCURL:          v.GetString("rpc"),
		ChainID:         v.GetUint64("chain-id"),
		Block:           v.GetUint64("block"),
		MaxBatchSize:    v.GetInt("max-batch-size"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		FactoryCacheTTL: v.GetDuration("cache-ttl"),
		Slippage:        slippage,
		Concurrency:     v.GetInt("concurrency"),
		Out:             v.GetString("out"),
		OutDaily:        v.GetBool("out-daily"),
		PGDSN:           v.GetString("pg-dsn"),
		LogLevel:        v.GetString("log-level"),
		Request: Request{
			AMM:        v.GetString("amm"),
			Pool:       v.GetString("pool"),
			TokenIn:    v.GetString("token-in"),
			TokenOut:   v.GetString("token-out"),
			AmountIn:   v.GetString("amount-in"),
			Amounts:    getStringSlice(v, "amounts"),
			Liquidity:  v.GetString("liquidity"),
			Recipient:  v.GetString("recipient"),
			SwapVia:    v.GetString("swap-via"),
			SwapViaAMM: v.GetString("swap-via-amm"),
		},
	}

	if cfg.AMMs, err = loadAMMs(v, cfg.ChainID); err != nil {
		return Config{}, err
	}
	if cfg.Pools, err = loadPools(v); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// AMM returns the AMM config with id.
func (c Config) AMM(id string) (model.AmmConfig, bool) {
	for _, amm := range c.AMMs {
		if amm.ID == id {
			return amm, true
		}
	}
	return model.AmmConfig{}, false
}

// Pool resolves a pool by name, or by address when ref is a hex address.
func (c Config) Pool(ref string) (Pool, bool) {
	ref = strings.TrimSpace(ref)
	for _, pool := range c.Pools {
		if pool.Name == ref || strings.EqualFold(pool.Address.Hex(), ref) {
			return pool, true
		}
	}
	return Pool{}, false
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
