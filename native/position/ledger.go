package position

import (
	"encoding/binary"
	"errors"
	"math/big"
)

var (
	errNilStore           = errors.New("position ledger: state not configured")
	errOpenCountUnderflow = errors.New("position ledger: open position count underflow")

	// ErrNotFound indicates the position id does not exist or was closed.
	ErrNotFound = errors.New("position ledger: position not found")
	// ErrDuplicateAsset indicates the owner already holds an open position in
	// the asset. One open position per (owner, asset) is a protocol
	// invariant: the engine resolves an owner's exposure to an asset through
	// this uniqueness.
	ErrDuplicateAsset = errors.New("position ledger: open position exists for asset")
	// ErrInsufficientAmount indicates a decrease larger than the position.
	ErrInsufficientAmount = errors.New("position ledger: amount exceeds position")
	// ErrUnauthorized indicates the caller is neither owner nor operator.
	ErrUnauthorized = errors.New("position ledger: caller not owner or operator")
	// ErrInvalidAmount indicates a nil or non-positive amount.
	ErrInvalidAmount = errors.New("position ledger: amount must be positive")
)

// Storage abstracts the subset of state manager functionality required by the
// position ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	KVRemove(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

// Position is an owned, transferable record locking collateral of one asset.
// Ids are assigned monotonically and never reused; a position whose amount
// reaches zero is deleted and its id becomes permanently invalid.
type Position struct {
	ID       uint64
	Owner    [20]byte
	Asset    [20]byte
	Amount   *big.Int
	Operator [20]byte // approved operator, zero when unset
}

// Clone returns a deep copy so callers cannot mutate ledger state through
// shared pointers.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Amount != nil {
		clone.Amount = new(big.Int).Set(p.Amount)
	}
	return &clone
}

// Ledger owns the position arena plus the owner and (owner, asset) secondary
// indexes used for enumeration.
type Ledger struct {
	store Storage
}

// NewLedger constructs a position ledger backed by the supplied storage.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store}
}

var (
	positionSeqKey        = []byte("position/seq")
	positionOpenKey       = []byte("position/open")
	positionRecordPrefix  = []byte("position/record/")
	ownerIndexPrefix      = []byte("position/owner/")
	ownerAssetIndexPrefix = []byte("position/ownerasset/")
)

func idBytes(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

func recordKey(id uint64) []byte {
	return append(append([]byte(nil), positionRecordPrefix...), idBytes(id)...)
}

func ownerKey(owner [20]byte) []byte {
	return append(append([]byte(nil), ownerIndexPrefix...), owner[:]...)
}

func ownerAssetKey(owner, asset [20]byte) []byte {
	buf := make([]byte, 0, len(ownerAssetIndexPrefix)+40)
	buf = append(buf, ownerAssetIndexPrefix...)
	buf = append(buf, owner[:]...)
	return append(buf, asset[:]...)
}

func (l *Ledger) nextID() (uint64, error) {
	var seq uint64
	if _, err := l.store.KVGet(positionSeqKey, &seq); err != nil {
		return 0, err
	}
	seq++
	if err := l.store.KVPut(positionSeqKey, seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// Create allocates a new position for the owner. It fails when the owner
// already holds an open position in the asset.
func (l *Ledger) Create(owner, asset [20]byte, amount *big.Int) (uint64, error) {
	if l == nil || l.store == nil {
		return 0, errNilStore
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	var existing uint64
	ok, err := l.store.KVGet(ownerAssetKey(owner, asset), &existing)
	if err != nil {
		return 0, err
	}
	if ok {
		return 0, ErrDuplicateAsset
	}
	id, err := l.nextID()
	if err != nil {
		return 0, err
	}
	record := &Position{ID: id, Owner: owner, Asset: asset, Amount: new(big.Int).Set(amount)}
	if err := l.store.KVPut(recordKey(id), record); err != nil {
		return 0, err
	}
	if err := l.store.KVAppend(ownerKey(owner), idBytes(id)); err != nil {
		return 0, err
	}
	if err := l.store.KVPut(ownerAssetKey(owner, asset), id); err != nil {
		return 0, err
	}
	if err := l.adjustOpenCount(1); err != nil {
		return 0, err
	}
	return id, nil
}

func (l *Ledger) adjustOpenCount(delta int64) error {
	var count uint64
	if _, err := l.store.KVGet(positionOpenKey, &count); err != nil {
		return err
	}
	if delta < 0 && count == 0 {
		// Every close is preceded by a create that bumped the counter, so an
		// underflow means the ledger indexes are corrupt.
		return errOpenCountUnderflow
	}
	count = uint64(int64(count) + delta)
	return l.store.KVPut(positionOpenKey, count)
}

// OpenCount reports the number of live positions across all owners.
func (l *Ledger) OpenCount() (uint64, error) {
	if l == nil || l.store == nil {
		return 0, errNilStore
	}
	var count uint64
	if _, err := l.store.KVGet(positionOpenKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// Get returns the live position for the id.
func (l *Ledger) Get(id uint64) (*Position, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, errNilStore
	}
	record := new(Position)
	ok, err := l.store.KVGet(recordKey(id), record)
	if err != nil || !ok {
		return nil, false, err
	}
	return record, true, nil
}

// Authorized reports whether the caller may mutate or transfer the position.
func (l *Ledger) Authorized(id uint64, caller [20]byte) (bool, error) {
	record, ok, err := l.Get(id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrNotFound
	}
	return record.Owner == caller || (record.Operator == caller && record.Operator != [20]byte{}), nil
}

// Increase grows the position's collateral amount.
func (l *Ledger) Increase(id uint64, delta *big.Int) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	if delta == nil || delta.Sign() <= 0 {
		return ErrInvalidAmount
	}
	record, ok, err := l.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	record.Amount = new(big.Int).Add(record.Amount, delta)
	return l.store.KVPut(recordKey(id), record)
}

// Decrease shrinks the position's collateral amount. Reaching exactly zero
// deletes the record and every index entry atomically with the decrease; the
// returned flag reports the closure.
func (l *Ledger) Decrease(id uint64, delta *big.Int) (bool, error) {
	if l == nil || l.store == nil {
		return false, errNilStore
	}
	if delta == nil || delta.Sign() <= 0 {
		return false, ErrInvalidAmount
	}
	record, ok, err := l.Get(id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrNotFound
	}
	if record.Amount.Cmp(delta) < 0 {
		return false, ErrInsufficientAmount
	}
	record.Amount = new(big.Int).Sub(record.Amount, delta)
	if record.Amount.Sign() > 0 {
		return false, l.store.KVPut(recordKey(id), record)
	}
	if err := l.store.KVDelete(recordKey(id)); err != nil {
		return false, err
	}
	if err := l.store.KVRemove(ownerKey(record.Owner), idBytes(id)); err != nil {
		return false, err
	}
	if err := l.store.KVDelete(ownerAssetKey(record.Owner, record.Asset)); err != nil {
		return false, err
	}
	return true, l.adjustOpenCount(-1)
}

// Transfer reassigns ownership. from must be the owner or the approved
// operator; the recipient must not already hold a position in the asset. Any
// operator approval is cleared by the transfer.
func (l *Ledger) Transfer(id uint64, from, to [20]byte) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	record, ok, err := l.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if record.Owner != from && !(record.Operator == from && record.Operator != [20]byte{}) {
		return ErrUnauthorized
	}
	if record.Owner == to {
		return nil
	}
	var existing uint64
	occupied, err := l.store.KVGet(ownerAssetKey(to, record.Asset), &existing)
	if err != nil {
		return err
	}
	if occupied {
		return ErrDuplicateAsset
	}
	previous := record.Owner
	record.Owner = to
	record.Operator = [20]byte{}
	if err := l.store.KVPut(recordKey(id), record); err != nil {
		return err
	}
	if err := l.store.KVRemove(ownerKey(previous), idBytes(id)); err != nil {
		return err
	}
	if err := l.store.KVAppend(ownerKey(to), idBytes(id)); err != nil {
		return err
	}
	if err := l.store.KVDelete(ownerAssetKey(previous, record.Asset)); err != nil {
		return err
	}
	return l.store.KVPut(ownerAssetKey(to, record.Asset), id)
}

// Approve grants a single operator mutation and transfer rights over the
// position. The zero address clears the grant. Only the owner may approve.
func (l *Ledger) Approve(id uint64, owner, operator [20]byte) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	record, ok, err := l.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if record.Owner != owner {
		return ErrUnauthorized
	}
	record.Operator = operator
	return l.store.KVPut(recordKey(id), record)
}

// ListByOwner enumerates the owner's open positions in a stable order that
// survives deletions from the middle of the index.
func (l *Ledger) ListByOwner(owner [20]byte) ([]*Position, error) {
	if l == nil || l.store == nil {
		return nil, errNilStore
	}
	var ids [][]byte
	if err := l.store.KVGetList(ownerKey(owner), &ids); err != nil {
		return nil, err
	}
	out := make([]*Position, 0, len(ids))
	for _, raw := range ids {
		if len(raw) != 8 {
			continue
		}
		record, ok, err := l.Get(binary.BigEndian.Uint64(raw))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, record)
		}
	}
	return out, nil
}

// ByOwnerAndAsset resolves the owner's open position in the asset, if any.
func (l *Ledger) ByOwnerAndAsset(owner, asset [20]byte) (*Position, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, errNilStore
	}
	var id uint64
	ok, err := l.store.KVGet(ownerAssetKey(owner, asset), &id)
	if err != nil || !ok {
		return nil, false, err
	}
	return l.Get(id)
}
