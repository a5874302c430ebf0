package curve

import (
	"errors"
	"math/big"
)

var (
	// ErrInvalidAmount indicates a nil or non-positive amount was supplied.
	ErrInvalidAmount = errors.New("curve: amount must be positive")
	// ErrSupplyExhausted indicates the requested amount would meet or exceed
	// the asset's maximum supply, where the curve price diverges.
	ErrSupplyExhausted = errors.New("curve: asset supply exhausted")
	// ErrInvalidParams indicates the curve was constructed without a positive
	// maximum supply.
	ErrInvalidParams = errors.New("curve: max supply must be positive")
)

// DefaultMaxSupply is the per-asset collateral cap applied when a launch does
// not override it: 21,000,000 tokens at 18 decimals.
var DefaultMaxSupply = new(big.Int).Mul(big.NewInt(21_000_000), big.NewInt(1e18))

// Params holds the immutable constants of one asset's bonding curve.
//
// The cumulative mint function is
//
//	G(s) = floor(S * s / (S - s))   for 0 <= s < S
//
// where S is MaxSupply. G is strictly increasing and every derived quantity
// rounds down, so the engine never pays out more base token than the exact
// curve allows.
type Params struct {
	MaxSupply *big.Int
}

// DefaultParams returns the curve constants used when a launch does not
// override them.
func DefaultParams() Params {
	return Params{MaxSupply: new(big.Int).Set(DefaultMaxSupply)}
}

func (p Params) validate() error {
	if p.MaxSupply == nil || p.MaxSupply.Sign() <= 0 {
		return ErrInvalidParams
	}
	return nil
}

// MintAmount computes G(supply): the cumulative base token minted when the
// curve has absorbed the provided collateral supply. supply must be strictly
// below MaxSupply.
func (p Params) MintAmount(supply *big.Int) (*big.Int, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if supply == nil || supply.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if supply.Cmp(p.MaxSupply) >= 0 {
		return nil, ErrSupplyExhausted
	}
	if supply.Sign() == 0 {
		return big.NewInt(0), nil
	}
	num := new(big.Int).Mul(p.MaxSupply, supply)
	den := new(big.Int).Sub(p.MaxSupply, supply)
	return num.Quo(num, den), nil
}

// MintDelta computes the base token minted when a position's collateral grows
// from base to base+deposit. Because both ends evaluate the same floored
// cumulative function the result telescopes exactly across arbitrary splits
// of the deposit.
func (p Params) MintDelta(base, deposit *big.Int) (*big.Int, error) {
	if deposit == nil || deposit.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if base == nil || base.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	before, err := p.MintAmount(base)
	if err != nil {
		return nil, err
	}
	after, err := p.MintAmount(new(big.Int).Add(base, deposit))
	if err != nil {
		return nil, err
	}
	return after.Sub(after, before), nil
}

// RedeemCost computes the base token that must be returned to release
// withdraw collateral from a position currently holding amount. It is the
// exact telescoped inverse of the MintDelta that created the exposure.
func (p Params) RedeemCost(amount, withdraw *big.Int) (*big.Int, error) {
	if withdraw == nil || withdraw.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if amount == nil || amount.Cmp(withdraw) < 0 {
		return nil, ErrInvalidAmount
	}
	after, err := p.MintAmount(amount)
	if err != nil {
		return nil, err
	}
	before, err := p.MintAmount(new(big.Int).Sub(amount, withdraw))
	if err != nil {
		return nil, err
	}
	return after.Sub(after, before), nil
}

// DepositForMint computes the collateral that must be added to a position
// currently holding base so the curve mints at most proceeds base token. The
// inverse G^-1(y) = floor(S*y/(S+y)) rounds down, so the minted amount for
// the returned deposit never exceeds proceeds and falls short by at most one
// wei of collateral's worth.
func (p Params) DepositForMint(base, proceeds *big.Int) (*big.Int, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if proceeds == nil || proceeds.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if base == nil || base.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	before, err := p.MintAmount(base)
	if err != nil {
		return nil, err
	}
	target := new(big.Int).Add(before, proceeds)
	num := new(big.Int).Mul(p.MaxSupply, target)
	den := new(big.Int).Add(p.MaxSupply, target)
	supply := num.Quo(num, den)
	deposit := supply.Sub(supply, base)
	if deposit.Sign() < 0 {
		deposit.SetInt64(0)
	}
	return deposit, nil
}
