package engines

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapquote/internal/amm"
	"zapquote/internal/model"
)

var addr = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func configFor(family model.Family) model.AmmConfig {
	cfg := model.AmmConfig{ID: string(family), ChainID: 1, Family: family}
	switch family {
	case model.FamilyConstantProduct, model.FamilyHybridCurve:
		cfg.Router = addr
		cfg.Factory = addr
		cfg.Fee = model.Fee{Numerator: 3, Denominator: 1000}
		cfg.FeeSource = model.FeeSourceConstant
	case model.FamilyVault:
		cfg.Vault = addr
		cfg.Queries = addr
		cfg.VaultPoolType = model.VaultPoolWeighted
	case model.FamilyHypervisor:
		cfg.Proxy = addr
	case model.FamilyStablePool:
		cfg.StableMethod = "fixed"
	}
	return cfg
}

func TestEveryFamilyHasAnEngine(t *testing.T) {
	for _, family := range model.Families() {
		t.Run(string(family), func(t *testing.T) {
			engine, err := New(configFor(family), amm.Deps{})
			require.NoError(t, err)
			assert.Equal(t, family, engine.Family())
			assert.Equal(t, string(family), engine.Config().ID)
		})
	}
}

func TestUnknownFamily(t *testing.T) {
	_, err := New(model.AmmConfig{ID: "x", Family: "order-book"}, amm.Deps{})
	assert.Error(t, err)
}

func TestEngineErrorsReturnNilInterface(t *testing.T) {
	cfg := configFor(model.FamilyStablePool)
	cfg.StableMethod = "dynamic-deposit"
	engine, err := New(cfg, amm.Deps{})
	assert.ErrorIs(t, err, amm.ErrUnsupportedVariant)
	assert.Nil(t, engine)
}

func TestSet(t *testing.T) {
	cfgs := []model.AmmConfig{configFor(model.FamilyConstantProduct), configFor(model.FamilyVault)}
	set, err := NewSet(cfgs, amm.Deps{})
	require.NoError(t, err)

	engine, err := set.Get(string(model.FamilyVault))
	require.NoError(t, err)
	assert.Equal(t, model.FamilyVault, engine.Family())

	_, err = set.Get("missing")
	assert.Error(t, err)

	_, err = NewSet(append(cfgs, cfgs[0]), amm.Deps{})
	assert.Error(t, err)
}
