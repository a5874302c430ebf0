package launch

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"findprotocol/core/events"
	"findprotocol/native/curve"
	"findprotocol/native/swaprouter"
	"findprotocol/native/token"
)

var (
	errNilState = errors.New("launch engine: state not configured")

	// ErrInvalidProject indicates a missing or malformed project id.
	ErrInvalidProject = errors.New("launch engine: invalid project id")
	// ErrInvalidSymbol indicates a symbol outside the accepted charset.
	ErrInvalidSymbol = errors.New("launch engine: invalid symbol")
	// ErrInvalidSignature indicates the launch authorization does not
	// recover to the configured authorizer.
	ErrInvalidSignature = errors.New("launch engine: invalid authorization signature")
	// ErrDuplicateProject indicates the project id or symbol is taken.
	ErrDuplicateProject = errors.New("launch engine: project already launched")
	// ErrNotFound indicates an unknown project.
	ErrNotFound = errors.New("launch engine: project not found")
	// ErrUnauthorized indicates the caller does not own the project.
	ErrUnauthorized = errors.New("launch engine: caller not authorized")
	// ErrInvalidAmount indicates a nil or non-positive seed amount.
	ErrInvalidAmount = errors.New("launch engine: amount must be positive")
)

const maxSymbolLength = 12

// Storage abstracts the key/value surface the engine mutates.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Project records a launched OSP asset and its revenue-claim holders. The
// collector and owner holders mirror the cnft/onft pair: the collector claim
// stays with the original creator, the owner claim is transferable.
type Project struct {
	ID         string
	Symbol     string
	Name       string
	Creator    [20]byte
	Owner      [20]byte
	Asset      [20]byte
	MaxSupply  *big.Int
	PoolFeePpm uint32
	CreatedAt  uint64
}

// Clone returns a deep copy of the project record.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	clone := *p
	if p.MaxSupply != nil {
		clone.MaxSupply = new(big.Int).Set(p.MaxSupply)
	}
	return &clone
}

// Params describes a launch request. Sig is a 65-byte recoverable signature
// by the configured authorizer over the launch digest.
type Params struct {
	ProjectID   string
	Symbol      string
	Name        string
	Decimals    uint8
	MaxSupply   *big.Int // nil selects the protocol default
	PoolFeePpm  uint32   // zero selects the engine default
	MintForPool *big.Int // OSP minted into the seed pool
	BaseForPool *big.Int // base token the creator contributes to the pool
	Sig         []byte
}

// Engine gates the creation of OSP assets: it verifies the authorizer's
// signature, registers the token, records the asset's curve ceiling and seeds
// the initial base/asset pool.
type Engine struct {
	store         Storage
	tokens        *token.Ledger
	pool          *swaprouter.PoolRouter
	emitter       events.Emitter
	nowFn         func() int64
	authorizer    [20]byte
	baseToken     [20]byte
	moduleAddress [20]byte
	poolFeePpm    uint32
}

// NewEngine constructs a launch engine for the supplied base token. moduleAddr
// custodies seed liquidity while it is paired into the pool.
func NewEngine(baseToken, moduleAddr [20]byte) *Engine {
	return &Engine{
		baseToken:     baseToken,
		moduleAddress: moduleAddr,
		poolFeePpm:    10_000,
		emitter:       events.NoopEmitter{},
		nowFn:         func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to its persistence surface.
func (e *Engine) SetState(store Storage) {
	if e == nil {
		return
	}
	e.store = store
}

// SetCollaborators wires the token ledger and the pool router used for seeding.
func (e *Engine) SetCollaborators(tokens *token.Ledger, pool *swaprouter.PoolRouter) {
	if e == nil {
		return
	}
	e.tokens = tokens
	e.pool = pool
}

// SetAuthorizer configures the address whose signature admits launches.
func (e *Engine) SetAuthorizer(addr [20]byte) {
	if e == nil {
		return
	}
	e.authorizer = addr
}

// SetPoolFeePpm sets the fee tier used for seed pools. Zero restores the
// default.
func (e *Engine) SetPoolFeePpm(ppm uint32) {
	if e == nil {
		return
	}
	if ppm == 0 {
		ppm = 10_000
	}
	e.poolFeePpm = ppm
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
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

// SetNowFunc overrides the time source, primarily for deterministic tests.
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

func projectKey(id string) []byte {
	return []byte("launch/project/" + strings.ToLower(id))
}

func symbolKey(symbol string) []byte {
	return []byte("launch/symbol/" + symbol)
}

func curveKey(asset [20]byte) []byte {
	return append([]byte("launch/curve/"), asset[:]...)
}

func validSymbol(symbol string) bool {
	if symbol == "" || len(symbol) > maxSymbolLength {
		return false
	}
	for _, r := range symbol {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// LaunchDigest computes the message the authorizer signs to admit a launch.
func LaunchDigest(projectID, symbol string, creator [20]byte) []byte {
	payload := fmt.Sprintf("%s|%s|", strings.ToLower(strings.TrimSpace(projectID)), symbol)
	return ethcrypto.Keccak256([]byte(payload), creator[:])
}

// AssetAddress derives the deterministic token address of a launched asset.
func AssetAddress(projectID, symbol string) [20]byte {
	digest := ethcrypto.Keccak256([]byte("findprotocol/osp/"), []byte(strings.ToLower(strings.TrimSpace(projectID))), []byte("/"), []byte(symbol))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

func (e *Engine) verifySignature(params Params, creator [20]byte) error {
	if len(params.Sig) != 65 {
		return ErrInvalidSignature
	}
	digest := LaunchDigest(params.ProjectID, params.Symbol, creator)
	pubKey, err := ethcrypto.SigToPub(digest, params.Sig)
	if err != nil {
		return ErrInvalidSignature
	}
	recovered := ethcrypto.PubkeyToAddress(*pubKey)
	if recovered != e.authorizer {
		return ErrInvalidSignature
	}
	return nil
}

// Launch registers a new OSP asset for the caller. The token is created with
// the requested metadata, its curve ceiling is recorded and, when seed
// amounts are supplied, an initial base/asset pool is funded: the engine
// mints MintForPool of the asset and pairs it with BaseForPool pulled from
// the caller.
func (e *Engine) Launch(caller [20]byte, params Params) (*Project, error) {
	if e == nil || e.store == nil || e.tokens == nil {
		return nil, errNilState
	}
	projectID := strings.ToLower(strings.TrimSpace(params.ProjectID))
	if projectID == "" {
		return nil, ErrInvalidProject
	}
	if !validSymbol(params.Symbol) {
		return nil, ErrInvalidSymbol
	}
	if err := e.verifySignature(params, caller); err != nil {
		return nil, err
	}
	var existing Project
	if ok, err := e.store.KVGet(projectKey(projectID), &existing); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrDuplicateProject
	}
	var taken string
	if ok, err := e.store.KVGet(symbolKey(params.Symbol), &taken); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrDuplicateProject
	}

	maxSupply := params.MaxSupply
	if maxSupply == nil || maxSupply.Sign() == 0 {
		maxSupply = curve.DefaultMaxSupply
	}
	if maxSupply.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	feePpm := params.PoolFeePpm
	if feePpm == 0 {
		feePpm = e.poolFeePpm
	}
	seedMint := params.MintForPool
	seedBase := params.BaseForPool
	seeding := seedMint != nil && seedMint.Sign() != 0 || seedBase != nil && seedBase.Sign() != 0
	if seeding {
		if seedMint == nil || seedMint.Sign() <= 0 || seedBase == nil || seedBase.Sign() <= 0 {
			return nil, ErrInvalidAmount
		}
		if e.pool == nil {
			return nil, errNilState
		}
	}

	asset := AssetAddress(projectID, params.Symbol)
	if err := e.tokens.Register(token.Metadata{
		Address:  asset,
		Symbol:   params.Symbol,
		Name:     strings.TrimSpace(params.Name),
		Decimals: params.Decimals,
	}); err != nil {
		return nil, err
	}
	if err := e.store.KVPut(curveKey(asset), maxSupply); err != nil {
		return nil, err
	}

	if seeding {
		if err := e.tokens.Mint(asset, e.moduleAddress, seedMint); err != nil {
			return nil, err
		}
		if err := e.tokens.Transfer(e.baseToken, caller, e.moduleAddress, seedBase); err != nil {
			return nil, err
		}
		if err := e.pool.AddLiquidity(e.moduleAddress, asset, e.baseToken, feePpm, seedMint, seedBase); err != nil {
			return nil, err
		}
	}

	project := &Project{
		ID:         projectID,
		Symbol:     params.Symbol,
		Name:       strings.TrimSpace(params.Name),
		Creator:    caller,
		Owner:      caller,
		Asset:      asset,
		MaxSupply:  new(big.Int).Set(maxSupply),
		PoolFeePpm: feePpm,
		CreatedAt:  uint64(e.nowFn()),
	}
	if err := e.store.KVPut(projectKey(projectID), project); err != nil {
		return nil, err
	}
	if err := e.store.KVPut(symbolKey(params.Symbol), projectID); err != nil {
		return nil, err
	}

	e.emit(launchedEvent(project))
	return project.Clone(), nil
}

// Project returns a launched project by id.
func (e *Engine) Project(projectID string) (*Project, bool, error) {
	if e == nil || e.store == nil {
		return nil, false, errNilState
	}
	var project Project
	ok, err := e.store.KVGet(projectKey(strings.ToLower(strings.TrimSpace(projectID))), &project)
	if err != nil || !ok {
		return nil, false, err
	}
	return project.Clone(), true, nil
}

// ClaimOwnership transfers the project's owner claim. Only the current owner
// may reassign it; the creator's collector claim is not affected.
func (e *Engine) ClaimOwnership(projectID string, caller, newOwner [20]byte) error {
	if e == nil || e.store == nil {
		return errNilState
	}
	key := projectKey(strings.ToLower(strings.TrimSpace(projectID)))
	var project Project
	ok, err := e.store.KVGet(key, &project)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if project.Owner != caller {
		return ErrUnauthorized
	}
	previous := project.Owner
	project.Owner = newOwner
	if err := e.store.KVPut(key, &project); err != nil {
		return err
	}
	e.emit(ownershipClaimedEvent(project.ID, previous, newOwner))
	return nil
}

// CurveParams resolves the curve constants recorded for an asset, falling
// back to the protocol defaults for assets without an override.
func (e *Engine) CurveParams(asset [20]byte) (curve.Params, error) {
	if e == nil || e.store == nil {
		return curve.Params{}, errNilState
	}
	maxSupply := new(big.Int)
	ok, err := e.store.KVGet(curveKey(asset), maxSupply)
	if err != nil {
		return curve.Params{}, err
	}
	if !ok {
		return curve.DefaultParams(), nil
	}
	return curve.Params{MaxSupply: maxSupply}, nil
}
