package swaprouter

import "math/big"

// Router performs exact-input and exact-output conversions along an encoded
// multi-hop path. Inputs are pulled from the payer through the token ledger's
// allowance mechanism, so callers grant the router exactly the amount of a
// single swap before invoking it. Router failures propagate unchanged to the
// caller and must leave no partial effects.
type Router interface {
	// ExactInput swaps amountIn of the path's first token for as much of the
	// last token as the route allows, failing when the proceeds fall below
	// amountOutMin. Returns the amount delivered to the recipient.
	ExactInput(path Path, payer, recipient [20]byte, amountIn, amountOutMin *big.Int) (*big.Int, error)

	// ExactOutput swaps as little of the path's first token as the route
	// allows for exactly amountOut of the last token, failing when the cost
	// exceeds amountInMax. Returns the amount pulled from the payer.
	ExactOutput(path Path, payer, recipient [20]byte, amountOut, amountInMax *big.Int) (*big.Int, error)

	// QuoteExactInput prices an ExactInput call without moving balances.
	// Quoting is deterministic: executing the same route immediately after
	// yields exactly the quoted amount.
	QuoteExactInput(path Path, amountIn *big.Int) (*big.Int, error)

	// QuoteExactOutput prices an ExactOutput call without moving balances.
	QuoteExactOutput(path Path, amountOut *big.Int) (*big.Int, error)
}
