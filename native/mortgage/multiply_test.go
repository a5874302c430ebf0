package mortgage

import (
	"errors"
	"math/big"
	"testing"

	"findprotocol/native/curve"
	"findprotocol/native/swaprouter"
	"findprotocol/native/token"
)

func TestMultiplyOpensLeveragedPosition(t *testing.T) {
	f := newEngineFixture(t)
	f.seedPool(t, baseToken, ospToken, wei(1_000_000), wei(1_000_000))
	f.mint(t, baseToken, alice, wei(600))

	result, err := f.engine.Multiply(alice, ospToken, wei(1000), nil, trivialPath())
	if err != nil {
		t.Fatalf("multiply: %v", err)
	}
	wantOsp := mustBig(t, "999952383219846673967")
	wantPayFind := mustBig(t, "1011063928127798480516")
	wantNeedPay := mustBig(t, "511063928127798480517")
	if result.OspDelta.Cmp(wantOsp) != 0 {
		t.Fatalf("ospDelta = %s, want %s", result.OspDelta, wantOsp)
	}
	if result.PayFind.Cmp(wantPayFind) != 0 {
		t.Fatalf("payFind = %s, want %s", result.PayFind, wantPayFind)
	}
	if result.NeedPay.Cmp(wantNeedPay) != 0 {
		t.Fatalf("needPay = %s, want %s", result.NeedPay, wantNeedPay)
	}
	if result.TokenPay != baseToken {
		t.Fatal("tokenPay is not the base token")
	}
	wantBalance := new(big.Int).Sub(wei(600), wantNeedPay)
	if got := f.balance(t, baseToken, alice); got.Cmp(wantBalance) != 0 {
		t.Fatalf("caller base balance = %s, want %s", got, wantBalance)
	}
	// Mint plus caller shortfall exactly covers the pool buy and the fee.
	if got := f.balance(t, baseToken, moduleAddr); got.Sign() != 0 {
		t.Fatalf("module retains %s base", got)
	}
	if got := f.balance(t, ospToken, moduleAddr); got.Cmp(wantOsp) != 0 {
		t.Fatalf("custodied collateral = %s, want %s", got, wantOsp)
	}
	if got := f.balance(t, baseToken, feeSinkAddr); got.Cmp(mustBig(t, "500000000000000000000")) != 0 {
		t.Fatalf("fee sink balance = %s", got)
	}
	record, ok, _ := f.positions.Get(result.PositionID)
	if !ok || record.Amount.Cmp(wantOsp) != 0 {
		t.Fatalf("position after multiply: %v", record)
	}
	if len(f.emitted.events) != 1 || f.emitted.events[0].EventType() != EventTypeMultiplied {
		t.Fatalf("expected one %s event", EventTypeMultiplied)
	}
}

func TestMultiplyPricesLikeMortgage(t *testing.T) {
	f := newEngineFixture(t)
	f.seedPool(t, baseToken, ospToken, wei(1_000_000), wei(1_000_000))
	f.mint(t, baseToken, alice, wei(600))

	result, err := f.engine.Multiply(alice, ospToken, wei(1000), nil, trivialPath())
	if err != nil {
		t.Fatalf("multiply: %v", err)
	}
	params := curve.DefaultParams()
	wantOsp, err := params.DepositForMint(big.NewInt(0), wei(1000))
	if err != nil {
		t.Fatalf("deposit for mint: %v", err)
	}
	if result.OspDelta.Cmp(wantOsp) != 0 {
		t.Fatalf("ospDelta = %s, curve says %s", result.OspDelta, wantOsp)
	}
}

func TestMultiplyRefundsSurplus(t *testing.T) {
	f := newEngineFixture(t)
	// The pool sells the asset well below the curve price, so the mint
	// proceeds overshoot the buy cost plus fee.
	f.seedPool(t, baseToken, ospToken, wei(1_000_000), wei(4_000_000))

	result, err := f.engine.Multiply(alice, ospToken, wei(1000), nil, trivialPath())
	if err != nil {
		t.Fatalf("multiply: %v", err)
	}
	if result.NeedPay.Sign() != 0 {
		t.Fatalf("needPay = %s, want 0", result.NeedPay)
	}
	surplus := mustBig(t, "247423630828605644936")
	if got := f.balance(t, baseToken, alice); got.Cmp(surplus) != 0 {
		t.Fatalf("refunded surplus = %s, want %s", got, surplus)
	}
	if got := f.balance(t, baseToken, moduleAddr); got.Sign() != 0 {
		t.Fatalf("module retains %s base", got)
	}
}

func TestMultiplyPayMaxGuard(t *testing.T) {
	f := newEngineFixture(t)
	f.seedPool(t, baseToken, ospToken, wei(1_000_000), wei(1_000_000))
	f.mint(t, baseToken, alice, wei(600))

	payMax := mustBig(t, "511063928127798480516") // one wei short
	_, err := f.engine.Multiply(alice, ospToken, wei(1000), payMax, trivialPath())
	if !errors.Is(err, ErrSlippage) {
		t.Fatalf("expected ErrSlippage, got %v", err)
	}
	if got := f.balance(t, baseToken, alice); got.Cmp(wei(600)) != 0 {
		t.Fatalf("failed multiply moved funds: %s", got)
	}
	if list, _ := f.positions.ListByOwner(alice); len(list) != 0 {
		t.Fatal("failed multiply opened a position")
	}
}

func TestMultiplyRequiresBalance(t *testing.T) {
	f := newEngineFixture(t)
	f.seedPool(t, baseToken, ospToken, wei(1_000_000), wei(1_000_000))
	f.mint(t, baseToken, alice, wei(100))

	_, err := f.engine.Multiply(alice, ospToken, wei(1000), nil, trivialPath())
	if !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestMultiplyFallsThroughToExistingPosition(t *testing.T) {
	f := newEngineFixture(t)
	f.seedPool(t, baseToken, ospToken, wei(1_000_000), wei(1_000_000))
	f.mint(t, baseToken, alice, wei(2000))

	first, err := f.engine.Multiply(alice, ospToken, wei(500), nil, trivialPath())
	if err != nil {
		t.Fatalf("first multiply: %v", err)
	}
	second, err := f.engine.Multiply(alice, ospToken, wei(500), nil, trivialPath())
	if err != nil {
		t.Fatalf("second multiply: %v", err)
	}
	if second.PositionID != first.PositionID {
		t.Fatalf("second call opened position %d", second.PositionID)
	}
	record, ok, _ := f.positions.Get(first.PositionID)
	if !ok {
		t.Fatal("position missing")
	}
	wantAmount := new(big.Int).Add(first.OspDelta, second.OspDelta)
	if record.Amount.Cmp(wantAmount) != 0 {
		t.Fatalf("position amount = %s, want %s", record.Amount, wantAmount)
	}
}

func TestMultiplyRejectsPaymentThroughBuyPool(t *testing.T) {
	f := newEngineFixture(t)
	f.seedPool(t, baseToken, ospToken, wei(1_000_000), wei(1_000_000))
	f.seedPoolAt(t, ospToken, baseToken, 500, wei(1_000_000), wei(1_000_000))
	f.mint(t, baseToken, alice, wei(600))

	// The payment route's first hop trades on the same pool the engine buys
	// collateral from; executing it would move the reserves the buy leg was
	// priced against, so the call is rejected before anything moves.
	payPath, err := swaprouter.EncodePath(
		[][20]byte{baseToken, ospToken, baseToken},
		[]uint32{DefaultPoolFeePpm, 500},
	)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, err = f.engine.Multiply(alice, ospToken, wei(1000), nil, payPath)
	if !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
	if got := f.balance(t, baseToken, alice); got.Cmp(wei(600)) != 0 {
		t.Fatalf("rejected multiply debited the caller: %s", got)
	}
	supply, _ := f.tokens.TotalSupply(baseToken)
	if supply.Cmp(wei(2_000_600)) != 0 {
		t.Fatalf("rejected multiply inflated base supply to %s", supply)
	}
	if list, _ := f.positions.ListByOwner(alice); len(list) != 0 {
		t.Fatal("rejected multiply opened a position")
	}
}

func TestMultiplyAddUnauthorized(t *testing.T) {
	f := newEngineFixture(t)
	f.seedPool(t, baseToken, ospToken, wei(1_000_000), wei(1_000_000))
	f.mint(t, baseToken, alice, wei(600))
	f.mint(t, baseToken, bob, wei(600))

	result, err := f.engine.Multiply(alice, ospToken, wei(500), nil, trivialPath())
	if err != nil {
		t.Fatalf("multiply: %v", err)
	}
	_, err = f.engine.MultiplyAdd(bob, result.PositionID, wei(100), nil, trivialPath())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestMultiplyInvalidAmount(t *testing.T) {
	f := newEngineFixture(t)
	f.seedPool(t, baseToken, ospToken, wei(1_000_000), wei(1_000_000))
	if _, err := f.engine.Multiply(alice, ospToken, nil, nil, trivialPath()); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for nil, got %v", err)
	}
	if _, err := f.engine.Multiply(alice, ospToken, big.NewInt(0), nil, trivialPath()); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}
}
