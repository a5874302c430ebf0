package swaprouter

import (
	"encoding/binary"
	"errors"
)

const (
	addrLen = 20
	feeLen  = 3
	hopLen  = addrLen + feeLen
)

// ErrInvalidPath indicates a path whose length does not describe a token
// followed by zero or more (fee, token) hops.
var ErrInvalidPath = errors.New("swaprouter: malformed path")

// Path is an opaque encoding of a swap route: a 20-byte token address
// followed by zero or more hops of a 3-byte big-endian fee (parts per
// million) and the next 20-byte token address. A bare token address is the
// trivial path meaning "no swap, this already is the settlement token".
type Path []byte

// SingleToken returns the trivial path for the supplied token.
func SingleToken(token [20]byte) Path {
	return append(Path(nil), token[:]...)
}

// EncodePath builds a path from the token sequence and the fee of each hop.
// len(fees) must equal len(tokens)-1.
func EncodePath(tokens [][20]byte, fees []uint32) (Path, error) {
	if len(tokens) == 0 || len(fees) != len(tokens)-1 {
		return nil, ErrInvalidPath
	}
	buf := make([]byte, 0, addrLen+len(fees)*hopLen)
	buf = append(buf, tokens[0][:]...)
	for i, fee := range fees {
		if fee >= 1_000_000 {
			return nil, ErrInvalidPath
		}
		var enc [4]byte
		binary.BigEndian.PutUint32(enc[:], fee)
		buf = append(buf, enc[1:]...)
		buf = append(buf, tokens[i+1][:]...)
	}
	return buf, nil
}

// Valid reports whether the byte layout describes a well-formed path.
func (p Path) Valid() bool {
	if len(p) < addrLen {
		return false
	}
	return (len(p)-addrLen)%hopLen == 0
}

// NumHops returns the number of swaps the path describes; zero means the
// trivial no-swap path.
func (p Path) NumHops() int {
	if !p.Valid() {
		return 0
	}
	return (len(p) - addrLen) / hopLen
}

// First returns the input token of the route.
func (p Path) First() [20]byte {
	var out [20]byte
	if len(p) >= addrLen {
		copy(out[:], p[:addrLen])
	}
	return out
}

// Last returns the output token of the route.
func (p Path) Last() [20]byte {
	var out [20]byte
	if !p.Valid() {
		return out
	}
	copy(out[:], p[len(p)-addrLen:])
	return out
}

// SplitAt divides the route at the first hop boundary holding the supplied
// token, returning the leading and trailing sub-paths. The boolean reports
// whether the token appears on a boundary; both halves share the boundary
// token, and either half may be a trivial single-token path.
func (p Path) SplitAt(token [20]byte) (front, back Path, ok bool) {
	if !p.Valid() {
		return nil, nil, false
	}
	for offset := 0; offset < len(p); offset += hopLen {
		var candidate [20]byte
		copy(candidate[:], p[offset:offset+addrLen])
		if candidate == token {
			front = append(Path(nil), p[:offset+addrLen]...)
			back = append(Path(nil), p[offset:]...)
			return front, back, true
		}
	}
	return nil, nil, false
}

// Hop returns the i-th swap of the route.
func (p Path) Hop(i int) (tokenIn, tokenOut [20]byte, feePpm uint32) {
	offset := i * hopLen
	copy(tokenIn[:], p[offset:offset+addrLen])
	var enc [4]byte
	copy(enc[1:], p[offset+addrLen:offset+addrLen+feeLen])
	feePpm = binary.BigEndian.Uint32(enc[:])
	copy(tokenOut[:], p[offset+hopLen:offset+hopLen+addrLen])
	return tokenIn, tokenOut, feePpm
}
