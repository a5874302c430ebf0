package mortgage

import (
	"math/big"

	"findprotocol/native/swaprouter"
)

// CashResult reports the effects of a Cash call.
type CashResult struct {
	AmountOut *big.Int // settlement-token proceeds credited to the caller
	OutFind   *big.Int // base token realised by the collateral sale
	TokenOut  [20]byte
}

// Cash liquidates part of a position by selling the collateral asset itself:
// the engine swaps ospAmount along path, repays the position's curve debt plus
// fee out of the base-token proceeds and forwards the remainder to the caller.
// Unlike Redeem the caller pays nothing; the collateral funds its own exit.
//
// path must start at the position's asset and route through the base token so
// the debt can be settled; the segment after the base token (if any) converts
// the caller's remainder into the desired output. amountOutMin bounds the
// final proceeds. Splitting one Cash into several smaller calls sums to the
// same proceeds within the curve's rounding drift.
func (e *Engine) Cash(caller [20]byte, positionID uint64, ospAmount *big.Int, path swaprouter.Path, amountOutMin *big.Int) (*CashResult, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	if ospAmount == nil || ospAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if e.router == nil {
		return nil, errNilRouter
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
	if ospAmount.Cmp(record.Amount) > 0 {
		return nil, ErrExceedsPosition
	}
	if !path.Valid() || path.NumHops() == 0 || path.First() != record.Asset {
		return nil, ErrInvalidPath
	}
	sale, settle, ok := path.SplitAt(e.baseToken)
	if !ok {
		return nil, ErrInvalidPath
	}
	// The settle leg executes after the sale; sharing a pool would let the
	// sale move the reserves the settle leg was quoted against.
	if pathsSharePool(sale, settle) {
		return nil, ErrInvalidPath
	}

	params, err := e.curveParams(record.Asset)
	if err != nil {
		return nil, err
	}
	need, err := params.RedeemCost(record.Amount, ospAmount)
	if err != nil {
		return nil, err
	}
	fee := e.feeCeil(need)

	outFind, err := e.router.QuoteExactInput(sale, ospAmount)
	if err != nil {
		return nil, err
	}
	remainder := new(big.Int).Sub(outFind, need)
	remainder.Sub(remainder, fee)
	if remainder.Sign() <= 0 {
		return nil, ErrInsufficientOutput
	}
	amountOut := new(big.Int).Set(remainder)
	if settle.NumHops() > 0 {
		amountOut, err = e.router.QuoteExactInput(settle, remainder)
		if err != nil {
			return nil, err
		}
	}
	if amountOutMin != nil && amountOut.Cmp(amountOutMin) < 0 {
		return nil, ErrSlippage
	}

	if err := e.tokens.Approve(record.Asset, e.moduleAddress, e.routerSpender, ospAmount); err != nil {
		return nil, err
	}
	if _, err := e.router.ExactInput(sale, e.moduleAddress, e.moduleAddress, ospAmount, nil); err != nil {
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
	settled, err := e.payOutBase(settle, caller, remainder)
	if err != nil {
		return nil, err
	}
	amountOut = settled
	closed, err := e.positions.Decrease(positionID, ospAmount)
	if err != nil {
		return nil, err
	}

	e.recordFee(positionID, record.Asset, ospAmount, true, fee, "cash")
	e.emit(cashedEvent(positionID, record.Asset, ospAmount, outFind, amountOut, fee, closed))
	return &CashResult{AmountOut: amountOut, OutFind: outFind, TokenOut: path.Last()}, nil
}
