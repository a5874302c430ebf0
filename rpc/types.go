package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"findprotocol/crypto"
	"findprotocol/native/launch"
	"findprotocol/native/mortgage"
	"findprotocol/native/position"
	"findprotocol/native/swaprouter"
	"findprotocol/native/token"
)

// PositionResult summarises a position for RPC consumers.
type PositionResult struct {
	ID       uint64 `json:"id"`
	Owner    string `json:"owner"`
	Asset    string `json:"asset"`
	Operator string `json:"operator,omitempty"`
	Amount   string `json:"amount"`
}

func formatAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.FindPrefix, addr[:]).String()
}

func formatPosition(p *position.Position) *PositionResult {
	if p == nil {
		return nil
	}
	result := &PositionResult{
		ID:     p.ID,
		Owner:  formatAddress(p.Owner),
		Asset:  formatAddress(p.Asset),
		Amount: p.Amount.String(),
	}
	var zero [20]byte
	if p.Operator != zero {
		result.Operator = formatAddress(p.Operator)
	}
	return result
}

func parseAddress(value string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, err
	}
	return decoded.Raw(), nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

func parseOptionalAmount(value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	return parseAmount(value)
}

// pathParam describes a swap route as a token list with per-hop fee tiers.
// An empty token list produces the trivial path over fallback.
type pathParam struct {
	Tokens  []string `json:"tokens,omitempty"`
	FeesPpm []uint32 `json:"feesPpm,omitempty"`
}

func (p pathParam) build(fallback [20]byte) (swaprouter.Path, error) {
	if len(p.Tokens) == 0 {
		return swaprouter.SingleToken(fallback), nil
	}
	if len(p.Tokens) == 1 {
		addr, err := parseAddress(p.Tokens[0])
		if err != nil {
			return nil, err
		}
		return swaprouter.SingleToken(addr), nil
	}
	tokens := make([][20]byte, len(p.Tokens))
	for i, raw := range p.Tokens {
		addr, err := parseAddress(raw)
		if err != nil {
			return nil, err
		}
		tokens[i] = addr
	}
	return swaprouter.EncodePath(tokens, p.FeesPpm)
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one parameter object")
	}
	return json.Unmarshal(req.Params[0], out)
}

// engineErrorStatus maps engine failures onto HTTP statuses: caller mistakes
// surface as 400s, everything else as 500s.
func engineErrorStatus(err error) (int, int) {
	switch {
	case errors.Is(err, mortgage.ErrInvalidAmount),
		errors.Is(err, mortgage.ErrInvalidPath),
		errors.Is(err, mortgage.ErrUnknownAsset),
		errors.Is(err, mortgage.ErrInsufficientOutput),
		errors.Is(err, mortgage.ErrExceedsPosition),
		errors.Is(err, mortgage.ErrSlippage),
		errors.Is(err, mortgage.ErrNotFound),
		errors.Is(err, mortgage.ErrInvalidFee),
		errors.Is(err, launch.ErrInvalidProject),
		errors.Is(err, launch.ErrInvalidSymbol),
		errors.Is(err, launch.ErrInvalidSignature),
		errors.Is(err, launch.ErrDuplicateProject),
		errors.Is(err, launch.ErrNotFound),
		errors.Is(err, launch.ErrInvalidAmount),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance),
		errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, token.ErrUnknownToken),
		errors.Is(err, position.ErrDuplicateAsset),
		errors.Is(err, position.ErrNotFound),
		errors.Is(err, position.ErrInsufficientAmount),
		errors.Is(err, position.ErrInvalidAmount),
		errors.Is(err, swaprouter.ErrPoolNotFound),
		errors.Is(err, swaprouter.ErrInsufficientLiquidity),
		errors.Is(err, swaprouter.ErrLimitExceeded),
		errors.Is(err, swaprouter.ErrInvalidPath),
		errors.Is(err, swaprouter.ErrRevisitedPool):
		return http.StatusBadRequest, codeServerError
	case errors.Is(err, mortgage.ErrUnauthorized),
		errors.Is(err, launch.ErrUnauthorized),
		errors.Is(err, position.ErrUnauthorized):
		return http.StatusForbidden, codeUnauthorized
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

func writeEngineError(w http.ResponseWriter, id interface{}, err error) int {
	status, code := engineErrorStatus(err)
	writeError(w, status, id, code, err.Error(), nil)
	return status
}
