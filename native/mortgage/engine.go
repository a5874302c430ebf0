package mortgage

import (
	"bytes"
	"errors"
	"math/big"
	"time"

	"findprotocol/core/events"
	"findprotocol/native/curve"
	"findprotocol/native/fees"
	"findprotocol/native/position"
	"findprotocol/native/swaprouter"
	"findprotocol/native/token"
)

var (
	errNilState  = errors.New("mortgage engine: state not configured")
	errNilRouter = errors.New("mortgage engine: router not configured")
	errReentrant = errors.New("mortgage engine: reentrant call")

	// ErrInvalidAmount indicates a nil or non-positive amount.
	ErrInvalidAmount = errors.New("mortgage engine: amount must be positive")
	// ErrInvalidPath indicates the settlement path does not start or end in
	// the token the operation requires.
	ErrInvalidPath = errors.New("mortgage engine: invalid settlement path")
	// ErrUnknownAsset indicates the asset token has not been launched.
	ErrUnknownAsset = errors.New("mortgage engine: asset not registered")
	// ErrInsufficientOutput indicates the curve or swap leg cannot produce a
	// positive output for the requested input.
	ErrInsufficientOutput = errors.New("mortgage engine: insufficient exchange output")
	// ErrExceedsPosition indicates a withdraw or cash amount above the
	// position's collateral.
	ErrExceedsPosition = errors.New("mortgage engine: amount exceeds position")
	// ErrSlippage indicates the computed cost or proceeds violated the
	// caller-supplied bound.
	ErrSlippage = errors.New("mortgage engine: amount limit exceeded")
	// ErrNotFound indicates the position id does not exist or was closed.
	ErrNotFound = errors.New("mortgage engine: position not found")
	// ErrUnauthorized indicates the caller is neither the position owner nor
	// an approved operator.
	ErrUnauthorized = errors.New("mortgage engine: caller not authorized")
	// ErrInvalidFee indicates a fee rate above 100%.
	ErrInvalidFee = errors.New("mortgage engine: fee exceeds 100%")
)

var basisPoints = big.NewInt(10_000)

// DefaultFeeBps is the protocol fee charged on every minted or redeemed leg.
const DefaultFeeBps = 5_000

// DefaultPoolFeePpm is the swap-pool fee tier used when the engine routes
// between the base token and an asset on the caller's behalf.
const DefaultPoolFeePpm = 10_000

// CurveRegistry resolves the bonding-curve constants of a launched asset.
// The launch module records per-asset overrides; assets without one use the
// protocol defaults.
type CurveRegistry interface {
	CurveParams(asset [20]byte) (curve.Params, error)
}

// Engine orchestrates the mortgage and leverage state transitions: the
// position ledger, the bonding-curve pricing and the swap legs that let
// callers settle in tokens other than the base token.
//
// Collateral is custodied by the module address; the base token is minted
// against deposits and burned on redemption. Every public operation validates
// and prices its swap legs before the first ledger mutation, so a failed call
// leaves balances and positions untouched.
type Engine struct {
	tokens        *token.Ledger
	positions     *position.Ledger
	sink          *fees.Sink
	router        swaprouter.Router
	curves        CurveRegistry
	emitter       events.Emitter
	nowFn         func() int64
	baseToken     [20]byte
	moduleAddress [20]byte
	feeSink       [20]byte
	routerSpender [20]byte
	feeBps        uint64
	poolFeePpm    uint32
	busy          bool
}

// NewEngine constructs a mortgage engine custodying collateral at the module
// address and minting the supplied base token.
func NewEngine(baseToken, moduleAddr [20]byte) *Engine {
	return &Engine{
		baseToken:     baseToken,
		moduleAddress: moduleAddr,
		feeBps:        DefaultFeeBps,
		poolFeePpm:    DefaultPoolFeePpm,
		emitter:       events.NoopEmitter{},
		nowFn:         func() int64 { return time.Now().Unix() },
	}
}

// SetLedgers wires the engine to the token and position ledgers.
func (e *Engine) SetLedgers(tokens *token.Ledger, positions *position.Ledger) {
	if e == nil {
		return
	}
	e.tokens = tokens
	e.positions = positions
}

// SetRouter configures the swap facility and the address the engine approves
// to pull swap inputs.
func (e *Engine) SetRouter(router swaprouter.Router, spender [20]byte) {
	if e == nil {
		return
	}
	e.router = router
	e.routerSpender = spender
}

// SetFeeSink configures the fee destination address and accrual journal.
func (e *Engine) SetFeeSink(addr [20]byte, sink *fees.Sink) {
	if e == nil {
		return
	}
	e.feeSink = addr
	e.sink = sink
}

// SetPoolFeePpm sets the pool fee tier for engine-initiated base/asset swaps.
func (e *Engine) SetPoolFeePpm(ppm uint32) {
	if e == nil {
		return
	}
	if ppm == 0 {
		ppm = DefaultPoolFeePpm
	}
	e.poolFeePpm = ppm
}

// SetCurveRegistry wires per-asset curve parameter lookups. Without a
// registry every asset prices against the protocol defaults.
func (e *Engine) SetCurveRegistry(registry CurveRegistry) {
	if e == nil {
		return
	}
	e.curves = registry
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for fee journal timestamps.
// Primarily intended for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetFeeBps updates the protocol fee rate. Owner-authenticated at the RPC
// layer.
func (e *Engine) SetFeeBps(bps uint64) error {
	if e == nil {
		return errNilState
	}
	if bps > 10_000 {
		return ErrInvalidFee
	}
	e.feeBps = bps
	return nil
}

// FeeBps returns the active protocol fee rate.
func (e *Engine) FeeBps() uint64 {
	if e == nil {
		return 0
	}
	return e.feeBps
}

// BaseToken returns the deployment's base token address.
func (e *Engine) BaseToken() [20]byte { return e.baseToken }

// Positions exposes the position ledger for read paths (RPC queries).
func (e *Engine) Positions() *position.Ledger { return e.positions }

func (e *Engine) begin() error {
	if e == nil || e.tokens == nil || e.positions == nil {
		return errNilState
	}
	if e.busy {
		return errReentrant
	}
	e.busy = true
	return nil
}

func (e *Engine) end() { e.busy = false }

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) curveParams(asset [20]byte) (curve.Params, error) {
	if _, ok, err := e.tokens.Metadata(asset); err != nil {
		return curve.Params{}, err
	} else if !ok {
		return curve.Params{}, ErrUnknownAsset
	}
	if e.curves != nil {
		return e.curves.CurveParams(asset)
	}
	return curve.DefaultParams(), nil
}

// feeFloor rounds the fee down: the caller keeps the remainder wei on mint
// legs.
func (e *Engine) feeFloor(amount *big.Int) *big.Int {
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(e.feeBps))
	return fee.Quo(fee, basisPoints)
}

// feeCeil rounds the fee up: the caller covers the remainder wei on redeem
// legs, so a mint/redeem round trip can never extract value.
func (e *Engine) feeCeil(amount *big.Int) *big.Int {
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(e.feeBps))
	rem := new(big.Int)
	fee.QuoRem(fee, basisPoints, rem)
	if rem.Sign() != 0 {
		fee.Add(fee, big.NewInt(1))
	}
	return fee
}

// payOutBase settles an outgoing base-token amount to the recipient along the
// path, swapping when the path carries hops. It is priced via quote before
// the engine mutates anything; by the time it runs it cannot fail for price
// reasons.
func (e *Engine) payOutBase(path swaprouter.Path, recipient [20]byte, amount *big.Int) (*big.Int, error) {
	if path.NumHops() == 0 {
		if err := e.tokens.Transfer(e.baseToken, e.moduleAddress, recipient, amount); err != nil {
			return nil, err
		}
		return new(big.Int).Set(amount), nil
	}
	if err := e.tokens.Approve(e.baseToken, e.moduleAddress, e.routerSpender, amount); err != nil {
		return nil, err
	}
	return e.router.ExactInput(path, e.moduleAddress, recipient, amount, nil)
}

// pullInBase collects an incoming base-token amount from the payer along the
// path. required is the exact base amount the engine must receive; quoted is
// the pre-priced cost in the payer's token (equal to required on the trivial
// path).
func (e *Engine) pullInBase(path swaprouter.Path, payer [20]byte, required, quoted *big.Int) error {
	if path.NumHops() == 0 {
		return e.tokens.Transfer(e.baseToken, payer, e.moduleAddress, required)
	}
	if err := e.tokens.Approve(path.First(), payer, e.routerSpender, quoted); err != nil {
		return err
	}
	_, err := e.router.ExactOutput(path, payer, e.moduleAddress, required, quoted)
	return err
}

// validateOutPath checks a path used to pay the caller: it must originate in
// the base token.
func (e *Engine) validateOutPath(path swaprouter.Path) error {
	if !path.Valid() || path.First() != e.baseToken {
		return ErrInvalidPath
	}
	if path.NumHops() > 0 && e.router == nil {
		return errNilRouter
	}
	return nil
}

// validateInPath checks a path used to fund the engine: it must terminate in
// the base token.
func (e *Engine) validateInPath(path swaprouter.Path) error {
	if !path.Valid() || path.Last() != e.baseToken {
		return ErrInvalidPath
	}
	if path.NumHops() > 0 && e.router == nil {
		return errNilRouter
	}
	return nil
}

// pathsSharePool reports whether two routes trade on a common pool. The
// engine executes its legs as separate router calls priced up front, so a
// caller-supplied leg may not touch a pool an engine leg trades on: the first
// execution would move the reserves the second was quoted against.
func pathsSharePool(a, b swaprouter.Path) bool {
	for i := 0; i < a.NumHops(); i++ {
		aIn, aOut, aFee := a.Hop(i)
		aLo, aHi := aIn, aOut
		if bytes.Compare(aHi[:], aLo[:]) < 0 {
			aLo, aHi = aHi, aLo
		}
		for j := 0; j < b.NumHops(); j++ {
			bIn, bOut, bFee := b.Hop(j)
			if aFee != bFee {
				continue
			}
			bLo, bHi := bIn, bOut
			if bytes.Compare(bHi[:], bLo[:]) < 0 {
				bLo, bHi = bHi, bLo
			}
			if aLo == bLo && aHi == bHi {
				return true
			}
		}
	}
	return false
}

// quoteInCost prices the payer-side cost of delivering required base along
// the path.
func (e *Engine) quoteInCost(path swaprouter.Path, required *big.Int) (*big.Int, error) {
	if path.NumHops() == 0 {
		return new(big.Int).Set(required), nil
	}
	return e.router.QuoteExactOutput(path, required)
}

// MortgageResult reports the effects of a Mortgage or MortgageAdd call.
type MortgageResult struct {
	PositionID uint64
	AmountOut  *big.Int // settlement-token amount paid to the caller
	OutFind    *big.Int // base-token amount minted net of fee
	Fee        *big.Int
}

// Mortgage locks a deposit of the asset as collateral and mints base token
// against it along the bonding curve, paying the caller net of the protocol
// fee. When the caller already holds a position in the asset the deposit
// falls through to MortgageAdd so the curve continues from the position's
// current amount. settlePath pays the caller; a trivial path settles in base
// token. amountOutMin guards the swapped settlement.
func (e *Engine) Mortgage(caller, asset [20]byte, deposit *big.Int, settlePath swaprouter.Path, amountOutMin *big.Int) (*MortgageResult, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	if existing, ok, err := e.positions.ByOwnerAndAsset(caller, asset); err != nil {
		return nil, err
	} else if ok {
		return e.mortgageAdd(caller, existing, deposit, settlePath, amountOutMin)
	}
	return e.mortgage(caller, asset, nil, deposit, settlePath, amountOutMin)
}

// MortgageAdd grows an existing position, pricing the mint from the
// position's current amount as the curve's starting point. Splitting one
// mortgage into an initial call plus adds reproduces the single-call output
// within one wei per split point (fee rounding only).
func (e *Engine) MortgageAdd(caller [20]byte, positionID uint64, deposit *big.Int, settlePath swaprouter.Path, amountOutMin *big.Int) (*MortgageResult, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	record, ok, err := e.positions.Get(positionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return e.mortgageAdd(caller, record, deposit, settlePath, amountOutMin)
}

func (e *Engine) mortgageAdd(caller [20]byte, record *position.Position, deposit *big.Int, settlePath swaprouter.Path, amountOutMin *big.Int) (*MortgageResult, error) {
	authorized, err := e.positions.Authorized(record.ID, caller)
	if err != nil {
		return nil, err
	}
	if !authorized {
		return nil, ErrUnauthorized
	}
	return e.mortgage(caller, record.Asset, record, deposit, settlePath, amountOutMin)
}

// mortgage performs the shared deposit-and-mint flow. record is nil for a
// fresh position.
func (e *Engine) mortgage(caller, asset [20]byte, record *position.Position, deposit *big.Int, settlePath swaprouter.Path, amountOutMin *big.Int) (*MortgageResult, error) {
	if deposit == nil || deposit.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := e.validateOutPath(settlePath); err != nil {
		return nil, err
	}
	params, err := e.curveParams(asset)
	if err != nil {
		return nil, err
	}

	base := big.NewInt(0)
	if record != nil {
		base = record.Amount
	}
	minted, err := params.MintDelta(base, deposit)
	if err != nil {
		if errors.Is(err, curve.ErrSupplyExhausted) {
			return nil, ErrInsufficientOutput
		}
		return nil, err
	}
	fee := e.feeFloor(minted)
	net := new(big.Int).Sub(minted, fee)
	if net.Sign() <= 0 {
		return nil, ErrInsufficientOutput
	}

	balance, err := e.tokens.BalanceOf(asset, caller)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(deposit) < 0 {
		return nil, token.ErrInsufficientBalance
	}
	if settlePath.NumHops() > 0 {
		quoted, err := e.router.QuoteExactInput(settlePath, net)
		if err != nil {
			return nil, err
		}
		if amountOutMin != nil && quoted.Cmp(amountOutMin) < 0 {
			return nil, ErrSlippage
		}
	} else if amountOutMin != nil && net.Cmp(amountOutMin) < 0 {
		return nil, ErrSlippage
	}

	// All pricing and checks passed; commit.
	if err := e.tokens.Transfer(asset, caller, e.moduleAddress, deposit); err != nil {
		return nil, err
	}
	if err := e.tokens.Mint(e.baseToken, e.moduleAddress, minted); err != nil {
		return nil, err
	}
	amountOut, err := e.payOutBase(settlePath, caller, net)
	if err != nil {
		return nil, err
	}
	if fee.Sign() > 0 {
		if err := e.tokens.Transfer(e.baseToken, e.moduleAddress, e.feeSink, fee); err != nil {
			return nil, err
		}
	}

	var positionID uint64
	if record == nil {
		positionID, err = e.positions.Create(caller, asset, deposit)
		if err != nil {
			return nil, err
		}
	} else {
		positionID = record.ID
		if err := e.positions.Increase(positionID, deposit); err != nil {
			return nil, err
		}
	}

	e.recordFee(positionID, asset, deposit, false, fee, "mortgage")
	e.emit(mortgagedEvent(positionID, asset, deposit, net, fee))
	return &MortgageResult{PositionID: positionID, AmountOut: amountOut, OutFind: net, Fee: fee}, nil
}

// Redeem pays base token to release collateral from the position. The cost is
// the exact curve delta plus the protocol fee; payPath funds it (trivial path
// pays in base token) and maxAmountIn bounds the caller's outlay in the
// payment token.
func (e *Engine) Redeem(caller [20]byte, positionID uint64, withdraw *big.Int, maxAmountIn *big.Int, payPath swaprouter.Path) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	if withdraw == nil || withdraw.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := e.validateInPath(payPath); err != nil {
		return nil, err
	}
	record, ok, err := e.positions.Get(positionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	authorized, err := e.positions.Authorized(positionID, caller)
	if err != nil {
		return nil, err
	}
	if !authorized {
		return nil, ErrUnauthorized
	}
	if withdraw.Cmp(record.Amount) > 0 {
		return nil, ErrExceedsPosition
	}
	params, err := e.curveParams(record.Asset)
	if err != nil {
		return nil, err
	}
	need, err := params.RedeemCost(record.Amount, withdraw)
	if err != nil {
		return nil, err
	}
	fee := e.feeCeil(need)
	required := new(big.Int).Add(need, fee)

	cost, err := e.quoteInCost(payPath, required)
	if err != nil {
		return nil, err
	}
	if maxAmountIn != nil && cost.Cmp(maxAmountIn) > 0 {
		return nil, ErrSlippage
	}
	payerBalance, err := e.tokens.BalanceOf(payPath.First(), caller)
	if err != nil {
		return nil, err
	}
	if payerBalance.Cmp(cost) < 0 {
		return nil, token.ErrInsufficientBalance
	}

	if err := e.pullInBase(payPath, caller, required, cost); err != nil {
		return nil, err
	}
	if need.Sign() > 0 {
		if err := e.tokens.Burn(e.baseToken, e.moduleAddress, need); err != nil {
			return nil, err
		}
	}
	if fee.Sign() > 0 {
		if err := e.tokens.Transfer(e.baseToken, e.moduleAddress, e.feeSink, fee); err != nil {
			return nil, err
		}
	}
	if err := e.tokens.Transfer(record.Asset, e.moduleAddress, caller, withdraw); err != nil {
		return nil, err
	}
	closed, err := e.positions.Decrease(positionID, withdraw)
	if err != nil {
		return nil, err
	}

	e.recordFee(positionID, record.Asset, withdraw, true, fee, "redeem")
	e.emit(redeemedEvent(positionID, record.Asset, withdraw, required, fee, closed))
	return cost, nil
}

func (e *Engine) recordFee(positionID uint64, asset [20]byte, collateral *big.Int, released bool, fee *big.Int, op string) {
	if e.sink == nil {
		return
	}
	// Journal bookkeeping must never fail the enclosing operation.
	_ = e.sink.Record(fees.Entry{
		PositionID: positionID,
		Asset:      asset,
		Collateral: new(big.Int).Set(collateral),
		Released:   released,
		Fee:        new(big.Int).Set(fee),
		Operation:  op,
		Timestamp:  uint64(e.now()),
	})
}
