package curve

import (
	"math/big"
	"testing"
)

func wei(tokens int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(tokens), big.NewInt(1e18))
}

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("invalid big integer literal %q", s)
	}
	return v
}

func TestMintAmountKnownValues(t *testing.T) {
	params := DefaultParams()
	cases := []struct {
		supply *big.Int
		want   string
	}{
		{wei(1000), "1000047621315300728606"},
		{wei(2000), "2000190494332793599390"},
		{wei(105000), "105527638190954773869346"},
	}
	for _, tc := range cases {
		got, err := params.MintAmount(tc.supply)
		if err != nil {
			t.Fatalf("MintAmount(%s): %v", tc.supply, err)
		}
		if got.Cmp(mustBig(t, tc.want)) != 0 {
			t.Fatalf("MintAmount(%s) = %s, want %s", tc.supply, got, tc.want)
		}
	}
}

func TestMintAmountZeroSupply(t *testing.T) {
	params := DefaultParams()
	got, err := params.MintAmount(big.NewInt(0))
	if err != nil {
		t.Fatalf("MintAmount(0): %v", err)
	}
	if got.Sign() != 0 {
		t.Fatalf("MintAmount(0) = %s, want 0", got)
	}
}

func TestMintAmountSupplyExhausted(t *testing.T) {
	params := DefaultParams()
	if _, err := params.MintAmount(params.MaxSupply); err != ErrSupplyExhausted {
		t.Fatalf("expected ErrSupplyExhausted, got %v", err)
	}
	over := new(big.Int).Add(params.MaxSupply, big.NewInt(1))
	if _, err := params.MintAmount(over); err != ErrSupplyExhausted {
		t.Fatalf("expected ErrSupplyExhausted above max, got %v", err)
	}
}

func TestMintDeltaMatchesCumulative(t *testing.T) {
	params := DefaultParams()
	got, err := params.MintDelta(wei(1000), wei(1000))
	if err != nil {
		t.Fatalf("MintDelta: %v", err)
	}
	if got.Cmp(mustBig(t, "1000142873017492870784")) != 0 {
		t.Fatalf("MintDelta(1000, +1000) = %s, want 1000142873017492870784", got)
	}
}

func TestMintDeltaTelescopes(t *testing.T) {
	params := DefaultParams()
	single, err := params.MintDelta(big.NewInt(0), wei(105000))
	if err != nil {
		t.Fatalf("single MintDelta: %v", err)
	}
	sum := new(big.Int)
	base := new(big.Int)
	for i := 0; i < 5; i++ {
		step, err := params.MintDelta(base, wei(21000))
		if err != nil {
			t.Fatalf("split MintDelta %d: %v", i, err)
		}
		sum.Add(sum, step)
		base.Add(base, wei(21000))
	}
	if sum.Cmp(single) != 0 {
		t.Fatalf("split deltas sum %s, single call %s", sum, single)
	}
}

func TestRedeemCostMirrorsMintDelta(t *testing.T) {
	params := DefaultParams()
	minted, err := params.MintDelta(wei(1000), wei(1000))
	if err != nil {
		t.Fatalf("MintDelta: %v", err)
	}
	cost, err := params.RedeemCost(wei(2000), wei(1000))
	if err != nil {
		t.Fatalf("RedeemCost: %v", err)
	}
	if cost.Cmp(minted) != 0 {
		t.Fatalf("RedeemCost = %s, want %s", cost, minted)
	}
}

func TestRedeemCostFullPosition(t *testing.T) {
	params := DefaultParams()
	cost, err := params.RedeemCost(wei(105000), wei(105000))
	if err != nil {
		t.Fatalf("RedeemCost: %v", err)
	}
	if cost.Cmp(mustBig(t, "105527638190954773869346")) != 0 {
		t.Fatalf("full RedeemCost = %s", cost)
	}
}

func TestDepositForMintKnownValue(t *testing.T) {
	params := DefaultParams()
	got, err := params.DepositForMint(big.NewInt(0), wei(1000))
	if err != nil {
		t.Fatalf("DepositForMint: %v", err)
	}
	if got.Cmp(mustBig(t, "999952383219846673967")) != 0 {
		t.Fatalf("DepositForMint(0, 1000) = %s, want 999952383219846673967", got)
	}
}

func TestDepositForMintRoundTripDeficit(t *testing.T) {
	params := DefaultParams()
	proceeds := []*big.Int{
		wei(1),
		mustBig(t, "12345000000000000000000"),
		wei(999999),
	}
	for _, y := range proceeds {
		deposit, err := params.DepositForMint(big.NewInt(0), y)
		if err != nil {
			t.Fatalf("DepositForMint(%s): %v", y, err)
		}
		minted, err := params.MintDelta(big.NewInt(0), deposit)
		if err != nil {
			t.Fatalf("MintDelta(%s): %v", deposit, err)
		}
		deficit := new(big.Int).Sub(y, minted)
		if deficit.Sign() < 0 || deficit.Cmp(big.NewInt(2)) > 0 {
			t.Fatalf("round trip deficit for %s = %s, want within [0, 2]", y, deficit)
		}
	}
}

func TestMonotonicity(t *testing.T) {
	params := DefaultParams()
	prev := big.NewInt(-1)
	for _, tokens := range []int64{1, 10, 1000, 50000, 1_000_000, 20_000_000} {
		got, err := params.MintAmount(wei(tokens))
		if err != nil {
			t.Fatalf("MintAmount(%d): %v", tokens, err)
		}
		if got.Cmp(prev) <= 0 {
			t.Fatalf("MintAmount not increasing at %d tokens", tokens)
		}
		prev = got
	}
}

func TestInvalidInputs(t *testing.T) {
	params := DefaultParams()
	if _, err := params.MintDelta(big.NewInt(0), nil); err != ErrInvalidAmount {
		t.Fatalf("nil deposit: got %v", err)
	}
	if _, err := params.MintDelta(big.NewInt(0), big.NewInt(0)); err != ErrInvalidAmount {
		t.Fatalf("zero deposit: got %v", err)
	}
	if _, err := params.RedeemCost(wei(10), wei(11)); err == nil {
		t.Fatal("withdraw above amount should fail")
	}
	bad := Params{}
	if _, err := bad.MintAmount(wei(1)); err != ErrInvalidParams {
		t.Fatalf("missing params: got %v", err)
	}
}
