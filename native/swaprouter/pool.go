package swaprouter

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/big"

	"findprotocol/native/token"
)

var (
	errNilStore = errors.New("swap router: state not configured")

	// ErrPoolNotFound indicates no pool exists for a hop of the path.
	ErrPoolNotFound = errors.New("swap router: pool not found")
	// ErrInsufficientLiquidity indicates a hop cannot produce the requested
	// output from its reserves.
	ErrInsufficientLiquidity = errors.New("swap router: insufficient liquidity")
	// ErrLimitExceeded indicates the route violated the caller's bound.
	ErrLimitExceeded = errors.New("swap router: amount limit exceeded")
	// ErrInvalidAmount indicates a nil or non-positive amount.
	ErrInvalidAmount = errors.New("swap router: amount must be positive")
	// ErrRevisitedPool indicates a route that trades on the same pool twice.
	// Later hops would price against reserves the earlier hop already moved,
	// so such routes are rejected outright.
	ErrRevisitedPool = errors.New("swap router: path revisits a pool")
)

const ppmDenominator = 1_000_000

// Storage abstracts the subset of state manager functionality required by the
// pool router.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type poolRecord struct {
	ReserveLo *big.Int
	ReserveHi *big.Int
}

// PoolRouter executes swaps against constant-product pools held in protocol
// custody. Pools are keyed by the ordered token pair plus the fee tier. The
// fee portion of every input stays at the custody address outside the
// reserves, so selling an amount in several swaps releases the same output
// as one swap up to flooring. All route state is read and validated before
// any balance moves, so a failed swap leaves reserves untouched.
type PoolRouter struct {
	store   Storage
	tokens  *token.Ledger
	custody [20]byte
}

// NewPoolRouter constructs a router whose pool inventory is held by the
// supplied custody address.
func NewPoolRouter(store Storage, tokens *token.Ledger, custody [20]byte) *PoolRouter {
	return &PoolRouter{store: store, tokens: tokens, custody: custody}
}

// Custody returns the address holding pool inventory; callers approve this
// address to let the router pull swap inputs.
func (r *PoolRouter) Custody() [20]byte { return r.custody }

var poolPrefix = []byte("swap/pool/")

func poolKey(a, b [20]byte, feePpm uint32) []byte {
	lo, hi := orderPair(a, b)
	buf := make([]byte, 0, len(poolPrefix)+43)
	buf = append(buf, poolPrefix...)
	buf = append(buf, lo[:]...)
	buf = append(buf, hi[:]...)
	var enc [4]byte
	binary.BigEndian.PutUint32(enc[:], feePpm)
	return append(buf, enc[1:]...)
}

func orderPair(a, b [20]byte) (lo, hi [20]byte) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return a, b
	}
	return b, a
}

// routeRevisitsPool reports whether two hops of the path resolve to the same
// pool key.
func routeRevisitsPool(path Path) bool {
	hops := path.NumHops()
	if hops < 2 {
		return false
	}
	seen := make(map[string]struct{}, hops)
	for i := 0; i < hops; i++ {
		tokenIn, tokenOut, fee := path.Hop(i)
		key := string(poolKey(tokenIn, tokenOut, fee))
		if _, dup := seen[key]; dup {
			return true
		}
		seen[key] = struct{}{}
	}
	return false
}

func (r *PoolRouter) loadPool(a, b [20]byte, feePpm uint32) (*poolRecord, error) {
	record := new(poolRecord)
	ok, err := r.store.KVGet(poolKey(a, b, feePpm), record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPoolNotFound
	}
	return record, nil
}

func (r *PoolRouter) storePool(a, b [20]byte, feePpm uint32, record *poolRecord) error {
	return r.store.KVPut(poolKey(a, b, feePpm), record)
}

// reserves returns the pool's reserves oriented as (in, out) for the hop
// direction.
func (record *poolRecord) reserves(tokenIn, tokenOut [20]byte) (in, out *big.Int) {
	lo, _ := orderPair(tokenIn, tokenOut)
	if tokenIn == lo {
		return record.ReserveLo, record.ReserveHi
	}
	return record.ReserveHi, record.ReserveLo
}

func (record *poolRecord) setReserves(tokenIn, tokenOut [20]byte, in, out *big.Int) {
	lo, _ := orderPair(tokenIn, tokenOut)
	if tokenIn == lo {
		record.ReserveLo, record.ReserveHi = in, out
	} else {
		record.ReserveLo, record.ReserveHi = out, in
	}
}

// AddLiquidity seeds or grows a pool by pulling both legs from the funder.
func (r *PoolRouter) AddLiquidity(funder, tokenA, tokenB [20]byte, feePpm uint32, amountA, amountB *big.Int) error {
	if r == nil || r.store == nil {
		return errNilStore
	}
	if amountA == nil || amountA.Sign() <= 0 || amountB == nil || amountB.Sign() <= 0 {
		return ErrInvalidAmount
	}
	record := new(poolRecord)
	ok, err := r.store.KVGet(poolKey(tokenA, tokenB, feePpm), record)
	if err != nil {
		return err
	}
	if !ok {
		record = &poolRecord{ReserveLo: big.NewInt(0), ReserveHi: big.NewInt(0)}
	}
	if err := r.tokens.Transfer(tokenA, funder, r.custody, amountA); err != nil {
		return err
	}
	if err := r.tokens.Transfer(tokenB, funder, r.custody, amountB); err != nil {
		return err
	}
	in, out := record.reserves(tokenA, tokenB)
	record.setReserves(tokenA, tokenB, new(big.Int).Add(in, amountA), new(big.Int).Add(out, amountB))
	return r.storePool(tokenA, tokenB, feePpm, record)
}

// Reserves reports the pool's reserves oriented from tokenA to tokenB.
func (r *PoolRouter) Reserves(tokenA, tokenB [20]byte, feePpm uint32) (*big.Int, *big.Int, error) {
	if r == nil || r.store == nil {
		return nil, nil, errNilStore
	}
	record, err := r.loadPool(tokenA, tokenB, feePpm)
	if err != nil {
		return nil, nil, err
	}
	in, out := record.reserves(tokenA, tokenB)
	return new(big.Int).Set(in), new(big.Int).Set(out), nil
}

// quoteExactIn prices one hop. effective is the fee-exclusive share of the
// input that enters the reserves; the fee remainder stays at custody.
func quoteExactIn(reserveIn, reserveOut, amountIn *big.Int, feePpm uint32) (out, effective *big.Int, err error) {
	effective = new(big.Int).Mul(amountIn, big.NewInt(ppmDenominator-int64(feePpm)))
	effective.Quo(effective, big.NewInt(ppmDenominator))
	if effective.Sign() <= 0 {
		return nil, nil, ErrInsufficientLiquidity
	}
	num := new(big.Int).Mul(reserveOut, effective)
	den := new(big.Int).Add(reserveIn, effective)
	out = num.Quo(num, den)
	if out.Sign() <= 0 || out.Cmp(reserveOut) >= 0 {
		return nil, nil, ErrInsufficientLiquidity
	}
	return out, effective, nil
}

// quoteExactOut prices one hop backwards. gross is the fee-exclusive input
// that enters the reserves; in is the amount the payer surrenders.
func quoteExactOut(reserveIn, reserveOut, amountOut *big.Int, feePpm uint32) (in, gross *big.Int, err error) {
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, nil, ErrInsufficientLiquidity
	}
	num := new(big.Int).Mul(reserveIn, amountOut)
	den := new(big.Int).Sub(reserveOut, amountOut)
	gross = ceilDiv(num, den)
	in = ceilDiv(new(big.Int).Mul(gross, big.NewInt(ppmDenominator)), big.NewInt(ppmDenominator-int64(feePpm)))
	if in.Sign() <= 0 {
		return nil, nil, ErrInsufficientLiquidity
	}
	return in, gross, nil
}

func ceilDiv(num, den *big.Int) *big.Int {
	out, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() != 0 {
		out.Add(out, big.NewInt(1))
	}
	return out
}

// QuoteExactInput implements Router.
func (r *PoolRouter) QuoteExactInput(path Path, amountIn *big.Int) (*big.Int, error) {
	if r == nil || r.store == nil {
		return nil, errNilStore
	}
	if !path.Valid() {
		return nil, ErrInvalidPath
	}
	if routeRevisitsPool(path) {
		return nil, ErrRevisitedPool
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	amount := new(big.Int).Set(amountIn)
	for i := 0; i < path.NumHops(); i++ {
		tokenIn, tokenOut, fee := path.Hop(i)
		record, err := r.loadPool(tokenIn, tokenOut, fee)
		if err != nil {
			return nil, err
		}
		reserveIn, reserveOut := record.reserves(tokenIn, tokenOut)
		amount, _, err = quoteExactIn(reserveIn, reserveOut, amount, fee)
		if err != nil {
			return nil, err
		}
	}
	return amount, nil
}

// QuoteExactOutput implements Router.
func (r *PoolRouter) QuoteExactOutput(path Path, amountOut *big.Int) (*big.Int, error) {
	if r == nil || r.store == nil {
		return nil, errNilStore
	}
	if !path.Valid() {
		return nil, ErrInvalidPath
	}
	if routeRevisitsPool(path) {
		return nil, ErrRevisitedPool
	}
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	amount := new(big.Int).Set(amountOut)
	for i := path.NumHops() - 1; i >= 0; i-- {
		tokenIn, tokenOut, fee := path.Hop(i)
		record, err := r.loadPool(tokenIn, tokenOut, fee)
		if err != nil {
			return nil, err
		}
		reserveIn, reserveOut := record.reserves(tokenIn, tokenOut)
		amount, _, err = quoteExactOut(reserveIn, reserveOut, amount, fee)
		if err != nil {
			return nil, err
		}
	}
	return amount, nil
}

// ExactInput implements Router.
func (r *PoolRouter) ExactInput(path Path, payer, recipient [20]byte, amountIn, amountOutMin *big.Int) (*big.Int, error) {
	if r == nil || r.store == nil {
		return nil, errNilStore
	}
	if !path.Valid() {
		return nil, ErrInvalidPath
	}
	if routeRevisitsPool(path) {
		return nil, ErrRevisitedPool
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	hops := path.NumHops()
	if hops == 0 {
		// Trivial path: the input already is the settlement token.
		if err := r.tokens.TransferFrom(path.First(), payer, r.custody, recipient, amountIn); err != nil {
			return nil, err
		}
		return new(big.Int).Set(amountIn), nil
	}

	// Quote the whole route before touching balances or reserves.
	records := make([]*poolRecord, hops)
	effIns := make([]*big.Int, hops)
	amounts := make([]*big.Int, hops+1)
	amounts[0] = new(big.Int).Set(amountIn)
	for i := 0; i < hops; i++ {
		tokenIn, tokenOut, fee := path.Hop(i)
		record, err := r.loadPool(tokenIn, tokenOut, fee)
		if err != nil {
			return nil, err
		}
		reserveIn, reserveOut := record.reserves(tokenIn, tokenOut)
		out, effective, err := quoteExactIn(reserveIn, reserveOut, amounts[i], fee)
		if err != nil {
			return nil, err
		}
		records[i] = record
		effIns[i] = effective
		amounts[i+1] = out
	}
	final := amounts[hops]
	if amountOutMin != nil && final.Cmp(amountOutMin) < 0 {
		return nil, ErrLimitExceeded
	}

	if err := r.tokens.TransferFrom(path.First(), payer, r.custody, r.custody, amountIn); err != nil {
		return nil, err
	}
	for i := 0; i < hops; i++ {
		tokenIn, tokenOut, fee := path.Hop(i)
		reserveIn, reserveOut := records[i].reserves(tokenIn, tokenOut)
		records[i].setReserves(tokenIn, tokenOut,
			new(big.Int).Add(reserveIn, effIns[i]),
			new(big.Int).Sub(reserveOut, amounts[i+1]))
		if err := r.storePool(tokenIn, tokenOut, fee, records[i]); err != nil {
			return nil, err
		}
	}
	if err := r.tokens.Transfer(path.Last(), r.custody, recipient, final); err != nil {
		return nil, err
	}
	return final, nil
}

// ExactOutput implements Router.
func (r *PoolRouter) ExactOutput(path Path, payer, recipient [20]byte, amountOut, amountInMax *big.Int) (*big.Int, error) {
	if r == nil || r.store == nil {
		return nil, errNilStore
	}
	if !path.Valid() {
		return nil, ErrInvalidPath
	}
	if routeRevisitsPool(path) {
		return nil, ErrRevisitedPool
	}
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	hops := path.NumHops()
	if hops == 0 {
		if amountInMax != nil && amountOut.Cmp(amountInMax) > 0 {
			return nil, ErrLimitExceeded
		}
		if err := r.tokens.TransferFrom(path.First(), payer, r.custody, recipient, amountOut); err != nil {
			return nil, err
		}
		return new(big.Int).Set(amountOut), nil
	}

	// Work backwards from the requested output to the required input.
	records := make([]*poolRecord, hops)
	grosses := make([]*big.Int, hops)
	amounts := make([]*big.Int, hops+1)
	amounts[hops] = new(big.Int).Set(amountOut)
	for i := hops - 1; i >= 0; i-- {
		tokenIn, tokenOut, fee := path.Hop(i)
		record, err := r.loadPool(tokenIn, tokenOut, fee)
		if err != nil {
			return nil, err
		}
		reserveIn, reserveOut := record.reserves(tokenIn, tokenOut)
		in, gross, err := quoteExactOut(reserveIn, reserveOut, amounts[i+1], fee)
		if err != nil {
			return nil, err
		}
		records[i] = record
		grosses[i] = gross
		amounts[i] = in
	}
	required := amounts[0]
	if amountInMax != nil && required.Cmp(amountInMax) > 0 {
		return nil, ErrLimitExceeded
	}

	if err := r.tokens.TransferFrom(path.First(), payer, r.custody, r.custody, required); err != nil {
		return nil, err
	}
	for i := 0; i < hops; i++ {
		tokenIn, tokenOut, fee := path.Hop(i)
		reserveIn, reserveOut := records[i].reserves(tokenIn, tokenOut)
		records[i].setReserves(tokenIn, tokenOut,
			new(big.Int).Add(reserveIn, grosses[i]),
			new(big.Int).Sub(reserveOut, amounts[i+1]))
		if err := r.storePool(tokenIn, tokenOut, fee, records[i]); err != nil {
			return nil, err
		}
	}
	if err := r.tokens.Transfer(path.Last(), r.custody, recipient, amountOut); err != nil {
		return nil, err
	}
	return required, nil
}
