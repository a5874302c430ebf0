package mortgage

import (
	"errors"
	"math/big"

	"findprotocol/native/curve"
	"findprotocol/native/position"
	"findprotocol/native/swaprouter"
	"findprotocol/native/token"
)

// MultiplyResult reports the effects of a Multiply or MultiplyAdd call.
type MultiplyResult struct {
	PositionID uint64
	NeedPay    *big.Int // caller's out-of-pocket cost, in TokenPay
	OspDelta   *big.Int // collateral locked by the call
	PayFind    *big.Int // base token spent buying the collateral
	TokenPay   [20]byte
}

// Multiply opens or grows a leveraged position in one call: it solves for the
// asset amount whose mint proceeds equal allFind, buys that amount on the
// pool with the freshly minted base token and locks it as collateral. The
// caller funds only the fee and any pool premium over the mint proceeds, via
// payPath (trivial path pays in base token), bounded by payMax in the payment
// token. When the pool sells the asset below its curve price the surplus is
// refunded to the caller.
//
// The position delta is priced exactly as a Mortgage of the computed asset
// amount would be, so multiplying and mortgaging compose on the same curve.
func (e *Engine) Multiply(caller, asset [20]byte, allFind, payMax *big.Int, payPath swaprouter.Path) (*MultiplyResult, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	if existing, ok, err := e.positions.ByOwnerAndAsset(caller, asset); err != nil {
		return nil, err
	} else if ok {
		return e.multiplyAdd(caller, existing, allFind, payMax, payPath)
	}
	return e.multiply(caller, asset, nil, allFind, payMax, payPath)
}

// MultiplyAdd grows an existing position with the same composed flow,
// pricing from the position's current amount. Splitting one Multiply into an
// initial call plus adds reproduces the single-call collateral within the
// curve's rounding drift.
func (e *Engine) MultiplyAdd(caller [20]byte, positionID uint64, allFind, payMax *big.Int, payPath swaprouter.Path) (*MultiplyResult, error) {
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
	return e.multiplyAdd(caller, record, allFind, payMax, payPath)
}

func (e *Engine) multiplyAdd(caller [20]byte, record *position.Position, allFind, payMax *big.Int, payPath swaprouter.Path) (*MultiplyResult, error) {
	authorized, err := e.positions.Authorized(record.ID, caller)
	if err != nil {
		return nil, err
	}
	if !authorized {
		return nil, ErrUnauthorized
	}
	return e.multiply(caller, record.Asset, record, allFind, payMax, payPath)
}

func (e *Engine) multiply(caller, asset [20]byte, record *position.Position, allFind, payMax *big.Int, payPath swaprouter.Path) (*MultiplyResult, error) {
	if allFind == nil || allFind.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if e.router == nil {
		return nil, errNilRouter
	}
	if err := e.validateInPath(payPath); err != nil {
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
	ospDelta, err := params.DepositForMint(base, allFind)
	if err != nil {
		if errors.Is(err, curve.ErrSupplyExhausted) {
			return nil, ErrInsufficientOutput
		}
		return nil, err
	}
	if ospDelta.Sign() <= 0 {
		return nil, ErrInsufficientOutput
	}
	minted, err := params.MintDelta(base, ospDelta)
	if err != nil {
		return nil, err
	}
	fee := e.feeCeil(minted)

	buyPath, err := swaprouter.EncodePath([][20]byte{e.baseToken, asset}, []uint32{e.poolFeePpm})
	if err != nil {
		return nil, err
	}
	// The payment leg executes after the collateral buy was priced; a payment
	// route through the buy pool would invalidate that price mid-commit.
	if pathsSharePool(payPath, buyPath) {
		return nil, ErrInvalidPath
	}
	payFind, err := e.router.QuoteExactOutput(buyPath, ospDelta)
	if err != nil {
		return nil, err
	}

	// needFind is the base-token shortfall the caller covers; when the pool
	// undercuts the curve it goes negative and becomes a refund instead.
	needFind := new(big.Int).Add(payFind, fee)
	needFind.Sub(needFind, minted)
	surplus := big.NewInt(0)
	needPay := big.NewInt(0)
	if needFind.Sign() > 0 {
		needPay, err = e.quoteInCost(payPath, needFind)
		if err != nil {
			return nil, err
		}
		if payMax != nil && needPay.Cmp(payMax) > 0 {
			return nil, ErrSlippage
		}
		payerBalance, err := e.tokens.BalanceOf(payPath.First(), caller)
		if err != nil {
			return nil, err
		}
		if payerBalance.Cmp(needPay) < 0 {
			return nil, token.ErrInsufficientBalance
		}
	} else {
		surplus = new(big.Int).Neg(needFind)
		needFind = big.NewInt(0)
	}

	if err := e.tokens.Mint(e.baseToken, e.moduleAddress, minted); err != nil {
		return nil, err
	}
	if needFind.Sign() > 0 {
		if err := e.pullInBase(payPath, caller, needFind, needPay); err != nil {
			return nil, err
		}
	}
	if surplus.Sign() > 0 {
		if err := e.tokens.Transfer(e.baseToken, e.moduleAddress, caller, surplus); err != nil {
			return nil, err
		}
	}
	if err := e.tokens.Approve(e.baseToken, e.moduleAddress, e.routerSpender, payFind); err != nil {
		return nil, err
	}
	if _, err := e.router.ExactOutput(buyPath, e.moduleAddress, e.moduleAddress, ospDelta, payFind); err != nil {
		return nil, err
	}
	if fee.Sign() > 0 {
		if err := e.tokens.Transfer(e.baseToken, e.moduleAddress, e.feeSink, fee); err != nil {
			return nil, err
		}
	}

	var positionID uint64
	if record == nil {
		positionID, err = e.positions.Create(caller, asset, ospDelta)
		if err != nil {
			return nil, err
		}
	} else {
		positionID = record.ID
		if err := e.positions.Increase(positionID, ospDelta); err != nil {
			return nil, err
		}
	}

	e.recordFee(positionID, asset, ospDelta, false, fee, "multiply")
	e.emit(multipliedEvent(positionID, asset, ospDelta, needPay, payFind, fee))
	return &MultiplyResult{
		PositionID: positionID,
		NeedPay:    needPay,
		OspDelta:   ospDelta,
		PayFind:    payFind,
		TokenPay:   payPath.First(),
	}, nil
}
