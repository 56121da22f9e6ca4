package zapstep

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const vaultJSON = `[
  {"name": "joinPool", "type": "function", "stateMutability": "payable", "outputs": [], "inputs": [
    {"name": "poolId", "type": "bytes32"},
    {"name": "sender", "type": "address"},
    {"name": "recipient", "type": "address"},
    {"name": "request", "type": "tuple", "components": [
      {"name": "assets", "type": "address[]"},
      {"name": "maxAmountsIn", "type": "uint256[]"},
      {"name": "userData", "type": "bytes"},
      {"name": "fromInternalBalance", "type": "bool"}
    ]}
  ]},
  {"name": "swap", "type": "function", "stateMutability": "payable", "outputs": [{"type": "uint256"}], "inputs": [
    {"name": "singleSwap", "type": "tuple", "components": [
      {"name": "poolId", "type": "bytes32"},
      {"name": "kind", "type": "uint8"},
      {"name": "assetIn", "type": "address"},
      {"name": "assetOut", "type": "address"},
      {"name": "amount", "type": "uint256"},
      {"name": "userData", "type": "bytes"}
    ]},
    {"name": "funds", "type": "tuple", "components": [
      {"name": "sender", "type": "address"},
      {"name": "fromInternalBalance", "type": "bool"},
      {"name": "recipient", "type": "address"},
      {"name": "toInternalBalance", "type": "bool"}
    ]},
    {"name": "limit", "type": "uint256"},
    {"name": "deadline", "type": "uint256"}
  ]}
]`

type joinRequest struct {
	Assets              []common.Address
	MaxAmountsIn        []*big.Int
	UserData            []byte
	FromInternalBalance bool
}

type singleSwap struct {
	PoolId   [32]byte
	Kind     uint8
	AssetIn  common.Address
	AssetOut common.Address
	Amount   *big.Int
	UserData []byte
}

type funds struct {
	Sender              common.Address
	FromInternalBalance bool
	Recipient           common.Address
	ToInternalBalance   bool
}

func mustType(t *testing.T, name string) abi.Type {
	t.Helper()
	typ, err := abi.NewType(name, "", nil)
	if err != nil {
		t.Fatalf("type %s: %v", name, err)
	}
	return typ
}

func TestWordOffset(t *testing.T) {
	cases := map[int]int{0: 4, 1: 36, 2: 68, 3: 100, 11: 356}
	for word, want := range cases {
		if got := WordOffset(word); got != want {
			t.Fatalf("WordOffset(%d)=%d, want %d", word, got, want)
		}
	}
}

func TestPatchAndReadWord(t *testing.T) {
	data := make([]byte, 4+32*3)
	if err := Patch(data, WordOffset(1), big.NewInt(0xbeef)); err != nil {
		t.Fatalf("patch: %v", err)
	}
	got, err := ReadWord(data, WordOffset(1))
	if err != nil || got.Int64() != 0xbeef {
		t.Fatalf("read back %v (%v)", got, err)
	}
	if err := Patch(data, WordOffset(3), big.NewInt(1)); !errors.Is(err, ErrOffsetOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	if err := Patch(data, WordOffset(0), big.NewInt(-1)); !errors.Is(err, ErrAmountOutOfRange) {
		t.Fatalf("expected amount out of range, got %v", err)
	}
	if err := Patch(data, NoPatch, big.NewInt(1)); err != nil {
		t.Fatalf("NoPatch must be a no-op: %v", err)
	}
}

func TestStepValidate(t *testing.T) {
	token := common.HexToAddress("0x1")
	step := NewStep(token, make([]byte, 4+64), Patched(token, 1), ApproveOnly(token))
	if err := step.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	step.Tokens = append(step.Tokens, StepToken{Token: token, Offset: 5})
	if err := step.Validate(); err == nil {
		t.Fatalf("expected misaligned offset to fail")
	}
}

func TestJoinPoolLayoutMatchesEncoding(t *testing.T) {
	vault, err := abi.JSON(strings.NewReader(vaultJSON))
	if err != nil {
		t.Fatalf("abi: %v", err)
	}

	assets := []common.Address{common.HexToAddress("0xa"), common.HexToAddress("0xb"), common.HexToAddress("0xc")}
	amounts := []*big.Int{big.NewInt(101), big.NewInt(202), big.NewInt(303)}
	limits := []*big.Int{big.NewInt(11), big.NewInt(22), big.NewInt(33)}

	userData, err := abi.Arguments{
		{Type: mustType(t, "uint256")},
		{Type: mustType(t, "uint256[]")},
		{Type: mustType(t, "uint256")},
	}.Pack(big.NewInt(1), amounts, big.NewInt(7))
	if err != nil {
		t.Fatalf("user data: %v", err)
	}

	data, err := vault.Pack("joinPool", [32]byte{1}, common.HexToAddress("0xd"), common.HexToAddress("0xe"), joinRequest{
		Assets:       assets,
		MaxAmountsIn: limits,
		UserData:     userData,
	})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	layout := VaultRequestLayout{Assets: len(assets)}
	for i := range assets {
		if got, _ := ReadWord(data, WordOffset(layout.LimitWord(i))); got.Cmp(limits[i]) != 0 {
			t.Fatalf("limit %d: got %v", i, got)
		}
		if got, _ := ReadWord(data, WordOffset(layout.ExactTokensInAmountWord(i))); got.Cmp(amounts[i]) != 0 {
			t.Fatalf("amount %d: got %v", i, got)
		}
	}
	if got, _ := ReadWord(data, WordOffset(layout.UserDataWord(0))); got.Int64() != 1 {
		t.Fatalf("join kind: got %v", got)
	}
	if got, _ := ReadWord(data, WordOffset(layout.AssetsLenWord())); got.Int64() != 3 {
		t.Fatalf("assets length: got %v", got)
	}
}

func TestSingleSwapAmountWord(t *testing.T) {
	vault, err := abi.JSON(strings.NewReader(vaultJSON))
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	data, err := vault.Pack("swap", singleSwap{
		Kind:     0,
		AssetIn:  common.HexToAddress("0xa"),
		AssetOut: common.HexToAddress("0xb"),
		Amount:   big.NewInt(123456),
		UserData: []byte{},
	}, funds{}, big.NewInt(1), big.NewInt(2))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if WordOffset(SingleSwapAmountWord) != 356 {
		t.Fatalf("unexpected offset %d", WordOffset(SingleSwapAmountWord))
	}
	got, err := ReadWord(data, WordOffset(SingleSwapAmountWord))
	if err != nil || got.Int64() != 123456 {
		t.Fatalf("amount word: %v (%v)", got, err)
	}
}

func TestSimulate(t *testing.T) {
	tokenA := common.HexToAddress("0xa")
	tokenB := common.HexToAddress("0xb")
	step := NewStep(tokenA, make([]byte, 4+32*4), Patched(tokenA, 2), Patched(tokenB, 3))

	patched, err := Simulate(step, map[common.Address]*big.Int{tokenA: big.NewInt(5)})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if got, _ := ReadWord(patched, WordOffset(2)); got.Int64() != 5 {
		t.Fatalf("token A not patched: %v", got)
	}
	if got, _ := ReadWord(step.Data, WordOffset(2)); got.Sign() != 0 {
		t.Fatalf("simulate must not modify the step")
	}
}
