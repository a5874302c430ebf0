package mortgage

import (
	"errors"
	"math/big"
	"testing"

	"findprotocol/core/events"
	"findprotocol/native/fees"
	"findprotocol/native/position"
	"findprotocol/native/swaprouter"
	"findprotocol/native/token"
	"findprotocol/state"
	"findprotocol/storage"
)

var (
	baseToken = addr(1)
	ospToken  = addr(2)
	altToken  = addr(3)

	moduleAddr  = addr(80)
	feeSinkAddr = addr(90)
	custodyAddr = addr(99)

	alice = addr(10)
	bob   = addr(11)
	carol = addr(12)
)

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

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

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

type engineFixture struct {
	tokens    *token.Ledger
	positions *position.Ledger
	sink      *fees.Sink
	pool      *swaprouter.PoolRouter
	engine    *Engine
	emitted   *capturingEmitter
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	tokens := token.NewLedger(manager)
	positions := position.NewLedger(manager)
	sink := fees.NewSink(manager)
	pool := swaprouter.NewPoolRouter(manager, tokens, custodyAddr)

	for _, tok := range []struct {
		addr   [20]byte
		symbol string
	}{{baseToken, "FIND"}, {ospToken, "OSPA"}, {altToken, "USDX"}} {
		if err := tokens.Register(token.Metadata{Address: tok.addr, Symbol: tok.symbol, Name: tok.symbol, Decimals: 18}); err != nil {
			t.Fatalf("register %s: %v", tok.symbol, err)
		}
	}

	emitted := &capturingEmitter{}
	engine := NewEngine(baseToken, moduleAddr)
	engine.SetLedgers(tokens, positions)
	engine.SetRouter(pool, custodyAddr)
	engine.SetFeeSink(feeSinkAddr, sink)
	engine.SetEmitter(emitted)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })

	return &engineFixture{
		tokens:    tokens,
		positions: positions,
		sink:      sink,
		pool:      pool,
		engine:    engine,
		emitted:   emitted,
	}
}

func (f *engineFixture) mint(t *testing.T, tokenAddr, holder [20]byte, amount *big.Int) {
	t.Helper()
	if err := f.tokens.Mint(tokenAddr, holder, amount); err != nil {
		t.Fatalf("mint: %v", err)
	}
}

func (f *engineFixture) balance(t *testing.T, tokenAddr, holder [20]byte) *big.Int {
	t.Helper()
	balance, err := f.tokens.BalanceOf(tokenAddr, holder)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

func (f *engineFixture) seedPool(t *testing.T, tokenA, tokenB [20]byte, amountA, amountB *big.Int) {
	t.Helper()
	f.seedPoolAt(t, tokenA, tokenB, DefaultPoolFeePpm, amountA, amountB)
}

func (f *engineFixture) seedPoolAt(t *testing.T, tokenA, tokenB [20]byte, feePpm uint32, amountA, amountB *big.Int) {
	t.Helper()
	funder := addr(50)
	f.mint(t, tokenA, funder, amountA)
	f.mint(t, tokenB, funder, amountB)
	if err := f.pool.AddLiquidity(funder, tokenA, tokenB, feePpm, amountA, amountB); err != nil {
		t.Fatalf("seed pool: %v", err)
	}
}

func trivialPath() swaprouter.Path {
	return swaprouter.SingleToken(baseToken)
}

func TestMortgageMintsAgainstDeposit(t *testing.T) {
	f := newEngineFixture(t)
	deposit := wei(105000)
	f.mint(t, ospToken, alice, deposit)

	result, err := f.engine.Mortgage(alice, ospToken, deposit, trivialPath(), nil)
	if err != nil {
		t.Fatalf("mortgage: %v", err)
	}
	wantNet := mustBig(t, "52763819095477386934673")
	wantFee := mustBig(t, "52763819095477386934673")
	if result.OutFind.Cmp(wantNet) != 0 {
		t.Fatalf("outFind = %s, want %s", result.OutFind, wantNet)
	}
	if result.AmountOut.Cmp(wantNet) != 0 {
		t.Fatalf("amountOut = %s, want %s", result.AmountOut, wantNet)
	}
	if result.Fee.Cmp(wantFee) != 0 {
		t.Fatalf("fee = %s, want %s", result.Fee, wantFee)
	}
	if got := f.balance(t, baseToken, alice); got.Cmp(wantNet) != 0 {
		t.Fatalf("caller base balance = %s, want %s", got, wantNet)
	}
	if got := f.balance(t, baseToken, feeSinkAddr); got.Cmp(wantFee) != 0 {
		t.Fatalf("fee sink balance = %s, want %s", got, wantFee)
	}
	if got := f.balance(t, ospToken, moduleAddr); got.Cmp(deposit) != 0 {
		t.Fatalf("custodied collateral = %s, want %s", got, deposit)
	}
	record, ok, err := f.positions.Get(result.PositionID)
	if err != nil || !ok {
		t.Fatalf("position missing: ok=%v err=%v", ok, err)
	}
	if record.Amount.Cmp(deposit) != 0 {
		t.Fatalf("position amount = %s, want %s", record.Amount, deposit)
	}
	if record.Owner != alice || record.Asset != ospToken {
		t.Fatal("position owner or asset wrong")
	}
	// Minted supply equals net plus fee.
	supply, _ := f.tokens.TotalSupply(baseToken)
	if supply.Cmp(new(big.Int).Add(wantNet, wantFee)) != 0 {
		t.Fatalf("base supply = %s", supply)
	}
	total, _ := f.sink.Totals(ospToken)
	if total.Cmp(wantFee) != 0 {
		t.Fatalf("fee journal total = %s, want %s", total, wantFee)
	}
	if len(f.emitted.events) != 1 || f.emitted.events[0].EventType() != EventTypeMortgaged {
		t.Fatalf("expected one %s event, got %+v", EventTypeMortgaged, f.emitted.events)
	}
}

func TestMortgageFallsThroughToExistingPosition(t *testing.T) {
	f := newEngineFixture(t)
	f.mint(t, ospToken, alice, wei(2000))

	first, err := f.engine.Mortgage(alice, ospToken, wei(1000), trivialPath(), nil)
	if err != nil {
		t.Fatalf("first mortgage: %v", err)
	}
	second, err := f.engine.Mortgage(alice, ospToken, wei(1000), trivialPath(), nil)
	if err != nil {
		t.Fatalf("second mortgage: %v", err)
	}
	if second.PositionID != first.PositionID {
		t.Fatalf("second call opened a new position %d", second.PositionID)
	}
	record, ok, _ := f.positions.Get(first.PositionID)
	if !ok || record.Amount.Cmp(wei(2000)) != 0 {
		t.Fatalf("position amount = %v", record)
	}
}

func TestMortgageSplitMatchesSingleCall(t *testing.T) {
	f := newEngineFixture(t)
	f.mint(t, ospToken, alice, wei(2000))
	f.mint(t, ospToken, bob, wei(2000))

	single, err := f.engine.Mortgage(alice, ospToken, wei(2000), trivialPath(), nil)
	if err != nil {
		t.Fatalf("single mortgage: %v", err)
	}
	firstHalf, err := f.engine.Mortgage(bob, ospToken, wei(1000), trivialPath(), nil)
	if err != nil {
		t.Fatalf("split mortgage: %v", err)
	}
	secondHalf, err := f.engine.MortgageAdd(bob, firstHalf.PositionID, wei(1000), trivialPath(), nil)
	if err != nil {
		t.Fatalf("mortgage add: %v", err)
	}
	splitTotal := new(big.Int).Add(firstHalf.OutFind, secondHalf.OutFind)
	want := mustBig(t, "1000095247166396799695")
	if single.OutFind.Cmp(want) != 0 {
		t.Fatalf("single outFind = %s, want %s", single.OutFind, want)
	}
	if splitTotal.Cmp(want) != 0 {
		t.Fatalf("split outFind = %s, want %s", splitTotal, want)
	}
}

func TestMortgageFiveWaySplitDriftBounded(t *testing.T) {
	f := newEngineFixture(t)
	f.mint(t, ospToken, alice, wei(105000))
	f.mint(t, ospToken, bob, wei(105000))

	single, err := f.engine.Mortgage(alice, ospToken, wei(105000), trivialPath(), nil)
	if err != nil {
		t.Fatalf("single mortgage: %v", err)
	}
	split, err := f.engine.Mortgage(bob, ospToken, wei(21000), trivialPath(), nil)
	if err != nil {
		t.Fatalf("first split: %v", err)
	}
	total := new(big.Int).Set(split.OutFind)
	for i := 0; i < 4; i++ {
		step, err := f.engine.MortgageAdd(bob, split.PositionID, wei(21000), trivialPath(), nil)
		if err != nil {
			t.Fatalf("split add %d: %v", i, err)
		}
		total.Add(total, step.OutFind)
	}
	if total.Cmp(mustBig(t, "52763819095477386934675")) != 0 {
		t.Fatalf("split total = %s", total)
	}
	// Per-leg fee rounding keeps the drift within one wei per split point.
	drift := new(big.Int).Sub(total, single.OutFind)
	if drift.Sign() < 0 || drift.Cmp(big.NewInt(4)) > 0 {
		t.Fatalf("drift = %s, want within [0, 4]", drift)
	}
}

func TestMortgageRequiresBalance(t *testing.T) {
	f := newEngineFixture(t)
	_, err := f.engine.Mortgage(alice, ospToken, wei(10), trivialPath(), nil)
	if !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if list, _ := f.positions.ListByOwner(alice); len(list) != 0 {
		t.Fatal("failed mortgage left a position")
	}
}

func TestMortgageUnknownAsset(t *testing.T) {
	f := newEngineFixture(t)
	_, err := f.engine.Mortgage(alice, addr(42), wei(10), trivialPath(), nil)
	if !errors.Is(err, ErrUnknownAsset) {
		t.Fatalf("expected ErrUnknownAsset, got %v", err)
	}
}

func TestMortgageSlippageGuard(t *testing.T) {
	f := newEngineFixture(t)
	f.mint(t, ospToken, alice, wei(105000))
	min := mustBig(t, "52763819095477386934674") // one wei above the actual output
	_, err := f.engine.Mortgage(alice, ospToken, wei(105000), trivialPath(), min)
	if !errors.Is(err, ErrSlippage) {
		t.Fatalf("expected ErrSlippage, got %v", err)
	}
	if got := f.balance(t, ospToken, alice); got.Cmp(wei(105000)) != 0 {
		t.Fatalf("failed mortgage moved collateral: %s", got)
	}
}

func TestMortgageSettlesThroughSwap(t *testing.T) {
	f := newEngineFixture(t)
	f.seedPool(t, baseToken, altToken, wei(1_000_000), wei(1_000_000))
	f.mint(t, ospToken, alice, wei(1000))

	settlePath, err := swaprouter.EncodePath([][20]byte{baseToken, altToken}, []uint32{DefaultPoolFeePpm})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// The engine executes at exactly the pre-call quote.
	net := mustBig(t, "500023810657650364303")
	expected, err := f.pool.QuoteExactInput(settlePath, net)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	result, err := f.engine.Mortgage(alice, ospToken, wei(1000), settlePath, nil)
	if err != nil {
		t.Fatalf("mortgage: %v", err)
	}
	if result.OutFind.Cmp(net) != 0 {
		t.Fatalf("outFind = %s, want %s", result.OutFind, net)
	}
	if result.AmountOut.Cmp(expected) != 0 {
		t.Fatalf("amountOut = %s, quote %s", result.AmountOut, expected)
	}
	if got := f.balance(t, altToken, alice); got.Cmp(expected) != 0 {
		t.Fatalf("caller received %s, want %s", got, expected)
	}
	if got := f.balance(t, baseToken, alice); got.Sign() != 0 {
		t.Fatalf("caller holds %s base after swapped settlement", got)
	}
}

func TestRedeemFullPosition(t *testing.T) {
	f := newEngineFixture(t)
	deposit := wei(105000)
	f.mint(t, ospToken, alice, deposit)
	result, err := f.engine.Mortgage(alice, ospToken, deposit, trivialPath(), nil)
	if err != nil {
		t.Fatalf("mortgage: %v", err)
	}
	required := mustBig(t, "158291457286432160804019")
	topUp := new(big.Int).Sub(required, result.OutFind)
	f.mint(t, baseToken, alice, topUp)

	amountIn, err := f.engine.Redeem(alice, result.PositionID, deposit, nil, trivialPath())
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if amountIn.Cmp(required) != 0 {
		t.Fatalf("amountIn = %s, want %s", amountIn, required)
	}
	if _, ok, _ := f.positions.Get(result.PositionID); ok {
		t.Fatal("position survived full redeem")
	}
	if got := f.balance(t, ospToken, alice); got.Cmp(deposit) != 0 {
		t.Fatalf("collateral returned %s, want %s", got, deposit)
	}
	if got := f.balance(t, baseToken, alice); got.Sign() != 0 {
		t.Fatalf("caller base balance %s, want 0", got)
	}
	if got := f.balance(t, ospToken, moduleAddr); got.Sign() != 0 {
		t.Fatalf("module still custodies %s collateral", got)
	}
}

func TestRedeemRoundTripNeverProfits(t *testing.T) {
	f := newEngineFixture(t)
	f.mint(t, ospToken, alice, wei(1000))
	result, err := f.engine.Mortgage(alice, ospToken, wei(1000), trivialPath(), nil)
	if err != nil {
		t.Fatalf("mortgage: %v", err)
	}
	// Cover the redemption with extra base so the payment can settle.
	f.mint(t, baseToken, alice, wei(2000))
	before := f.balance(t, baseToken, alice)
	amountIn, err := f.engine.Redeem(alice, result.PositionID, wei(1000), nil, trivialPath())
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	after := f.balance(t, baseToken, alice)
	if new(big.Int).Sub(before, after).Cmp(amountIn) != 0 {
		t.Fatalf("balance moved %s, amountIn %s", new(big.Int).Sub(before, after), amountIn)
	}
	if amountIn.Cmp(result.OutFind) <= 0 {
		t.Fatalf("round trip paid %s against %s received", amountIn, result.OutFind)
	}
}

func TestRedeemPartial(t *testing.T) {
	f := newEngineFixture(t)
	f.mint(t, ospToken, alice, wei(2000))
	result, err := f.engine.Mortgage(alice, ospToken, wei(2000), trivialPath(), nil)
	if err != nil {
		t.Fatalf("mortgage: %v", err)
	}
	f.mint(t, baseToken, alice, wei(3000))
	if _, err := f.engine.Redeem(alice, result.PositionID, wei(500), nil, trivialPath()); err != nil {
		t.Fatalf("partial redeem: %v", err)
	}
	record, ok, _ := f.positions.Get(result.PositionID)
	if !ok || record.Amount.Cmp(wei(1500)) != 0 {
		t.Fatalf("position after partial redeem: %v", record)
	}
	if got := f.balance(t, ospToken, alice); got.Cmp(wei(500)) != 0 {
		t.Fatalf("returned collateral = %s, want 500e18", got)
	}
}

func TestRedeemExceedsPosition(t *testing.T) {
	f := newEngineFixture(t)
	f.mint(t, ospToken, alice, wei(1000))
	result, err := f.engine.Mortgage(alice, ospToken, wei(1000), trivialPath(), nil)
	if err != nil {
		t.Fatalf("mortgage: %v", err)
	}
	f.mint(t, baseToken, alice, wei(10000))
	_, err = f.engine.Redeem(alice, result.PositionID, wei(1001), nil, trivialPath())
	if !errors.Is(err, ErrExceedsPosition) {
		t.Fatalf("expected ErrExceedsPosition, got %v", err)
	}
}

func TestRedeemSlippageGuard(t *testing.T) {
	f := newEngineFixture(t)
	f.mint(t, ospToken, alice, wei(105000))
	result, err := f.engine.Mortgage(alice, ospToken, wei(105000), trivialPath(), nil)
	if err != nil {
		t.Fatalf("mortgage: %v", err)
	}
	f.mint(t, baseToken, alice, mustBig(t, "200000000000000000000000"))
	maxIn := mustBig(t, "158291457286432160804018") // one wei short
	_, err = f.engine.Redeem(alice, result.PositionID, wei(105000), maxIn, trivialPath())
	if !errors.Is(err, ErrSlippage) {
		t.Fatalf("expected ErrSlippage, got %v", err)
	}
	record, ok, _ := f.positions.Get(result.PositionID)
	if !ok || record.Amount.Cmp(wei(105000)) != 0 {
		t.Fatal("failed redeem mutated the position")
	}
}

func TestRedeemAuthorization(t *testing.T) {
	f := newEngineFixture(t)
	f.mint(t, ospToken, alice, wei(1000))
	result, err := f.engine.Mortgage(alice, ospToken, wei(1000), trivialPath(), nil)
	if err != nil {
		t.Fatalf("mortgage: %v", err)
	}
	f.mint(t, baseToken, bob, wei(10000))
	if _, err := f.engine.Redeem(bob, result.PositionID, wei(100), nil, trivialPath()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	// An approved operator may redeem on the owner's behalf.
	if err := f.positions.Approve(result.PositionID, alice, bob); err != nil {
		t.Fatalf("approve operator: %v", err)
	}
	if _, err := f.engine.Redeem(bob, result.PositionID, wei(100), nil, trivialPath()); err != nil {
		t.Fatalf("operator redeem: %v", err)
	}
}

func TestRedeemClosedPositionNotFound(t *testing.T) {
	f := newEngineFixture(t)
	f.mint(t, ospToken, alice, wei(1000))
	result, err := f.engine.Mortgage(alice, ospToken, wei(1000), trivialPath(), nil)
	if err != nil {
		t.Fatalf("mortgage: %v", err)
	}
	f.mint(t, baseToken, alice, wei(2000))
	if _, err := f.engine.Redeem(alice, result.PositionID, wei(1000), nil, trivialPath()); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	_, err = f.engine.Redeem(alice, result.PositionID, wei(1), nil, trivialPath())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedeemFiveWaySplitDriftBounded(t *testing.T) {
	f := newEngineFixture(t)
	f.mint(t, ospToken, alice, wei(105000))
	f.mint(t, ospToken, bob, wei(105000))

	single, err := f.engine.Mortgage(alice, ospToken, wei(105000), trivialPath(), nil)
	if err != nil {
		t.Fatalf("single mortgage: %v", err)
	}
	split, err := f.engine.Mortgage(bob, ospToken, wei(105000), trivialPath(), nil)
	if err != nil {
		t.Fatalf("split mortgage: %v", err)
	}
	f.mint(t, baseToken, alice, wei(200000))
	f.mint(t, baseToken, bob, wei(200000))

	singleIn, err := f.engine.Redeem(alice, single.PositionID, wei(105000), nil, trivialPath())
	if err != nil {
		t.Fatalf("single redeem: %v", err)
	}
	total := big.NewInt(0)
	for i := 0; i < 5; i++ {
		step, err := f.engine.Redeem(bob, split.PositionID, wei(21000), nil, trivialPath())
		if err != nil {
			t.Fatalf("split redeem %d: %v", i, err)
		}
		total.Add(total, step)
	}
	if _, ok, _ := f.positions.Get(split.PositionID); ok {
		t.Fatal("split position survived full redemption")
	}
	// The curve cost telescopes exactly across the legs; only the per-leg fee
	// ceiling drifts, one wei per split point at most and never in the
	// caller's favour.
	drift := new(big.Int).Sub(total, singleIn)
	if drift.Sign() < 0 || drift.Cmp(big.NewInt(4)) > 0 {
		t.Fatalf("split paid %s vs single %s, drift %s", total, singleIn, drift)
	}
}

func TestSetFeeBps(t *testing.T) {
	f := newEngineFixture(t)
	if err := f.engine.SetFeeBps(10_001); !errors.Is(err, ErrInvalidFee) {
		t.Fatalf("expected ErrInvalidFee, got %v", err)
	}
	if err := f.engine.SetFeeBps(100); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	if f.engine.FeeBps() != 100 {
		t.Fatalf("fee bps = %d", f.engine.FeeBps())
	}
}

func TestFeeMonotonicity(t *testing.T) {
	// A lower fee rate pays the caller strictly more for the same deposit.
	high := newEngineFixture(t)
	high.mint(t, ospToken, alice, wei(1000))
	low := newEngineFixture(t)
	low.mint(t, ospToken, alice, wei(1000))
	if err := low.engine.SetFeeBps(100); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	highResult, err := high.engine.Mortgage(alice, ospToken, wei(1000), trivialPath(), nil)
	if err != nil {
		t.Fatalf("high-fee mortgage: %v", err)
	}
	lowResult, err := low.engine.Mortgage(alice, ospToken, wei(1000), trivialPath(), nil)
	if err != nil {
		t.Fatalf("low-fee mortgage: %v", err)
	}
	if lowResult.OutFind.Cmp(highResult.OutFind) <= 0 {
		t.Fatalf("low fee paid %s, high fee paid %s", lowResult.OutFind, highResult.OutFind)
	}
}
