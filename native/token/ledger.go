package token

import (
	"errors"
	"math/big"
	"strings"
)

var (
	errNilStore = errors.New("token ledger: state not configured")

	// ErrInvalidAmount indicates a nil or non-positive amount.
	ErrInvalidAmount = errors.New("token ledger: amount must be positive")
	// ErrUnknownToken indicates the token address has not been registered.
	ErrUnknownToken = errors.New("token ledger: token not registered")
	// ErrDuplicateToken indicates the token address is already registered.
	ErrDuplicateToken = errors.New("token ledger: token already registered")
	// ErrInsufficientBalance indicates the holder cannot cover the move.
	ErrInsufficientBalance = errors.New("token ledger: insufficient balance")
	// ErrInsufficientAllowance indicates the spender's allowance is too small.
	ErrInsufficientAllowance = errors.New("token ledger: insufficient allowance")
	// ErrInvalidMetadata indicates registration metadata failed validation.
	ErrInvalidMetadata = errors.New("token ledger: invalid metadata")
)

// Storage abstracts the subset of state manager functionality required by the
// token ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Metadata describes a registered fungible token.
type Metadata struct {
	Address  [20]byte
	Symbol   string
	Name     string
	Decimals uint8
}

// Ledger tracks balances, total supply and allowances for the base token and
// every launched asset, keyed by 20-byte token address. Allowances follow the
// exact-grant model: a spender consumes precisely what was approved for a
// single swap, never an open-ended grant.
type Ledger struct {
	store Storage
}

// NewLedger constructs a token ledger backed by the supplied storage.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store}
}

var (
	tokenMetaPrefix      = []byte("token/meta/")
	tokenSupplyPrefix    = []byte("token/supply/")
	tokenBalancePrefix   = []byte("token/balance/")
	tokenAllowancePrefix = []byte("token/allowance/")
)

func metaKey(token [20]byte) []byte {
	return append(append([]byte(nil), tokenMetaPrefix...), token[:]...)
}

func supplyKey(token [20]byte) []byte {
	return append(append([]byte(nil), tokenSupplyPrefix...), token[:]...)
}

func balanceKey(token, holder [20]byte) []byte {
	buf := make([]byte, 0, len(tokenBalancePrefix)+40)
	buf = append(buf, tokenBalancePrefix...)
	buf = append(buf, token[:]...)
	return append(buf, holder[:]...)
}

func allowanceKey(token, owner, spender [20]byte) []byte {
	buf := make([]byte, 0, len(tokenAllowancePrefix)+60)
	buf = append(buf, tokenAllowancePrefix...)
	buf = append(buf, token[:]...)
	buf = append(buf, owner[:]...)
	return append(buf, spender[:]...)
}

// Register records a new token. The address must be unused and the symbol
// non-empty.
func (l *Ledger) Register(meta Metadata) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	if strings.TrimSpace(meta.Symbol) == "" {
		return ErrInvalidMetadata
	}
	exists, err := l.store.KVGet(metaKey(meta.Address), nil)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateToken
	}
	return l.store.KVPut(metaKey(meta.Address), &meta)
}

// Metadata returns the registration record for the token, if any.
func (l *Ledger) Metadata(token [20]byte) (*Metadata, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, errNilStore
	}
	meta := new(Metadata)
	ok, err := l.store.KVGet(metaKey(token), meta)
	if err != nil || !ok {
		return nil, false, err
	}
	return meta, true, nil
}

func (l *Ledger) loadAmount(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := l.store.KVGet(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (l *Ledger) storeAmount(key []byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return l.store.KVDelete(key)
	}
	return l.store.KVPut(key, amount)
}

func (l *Ledger) requireRegistered(token [20]byte) error {
	ok, err := l.store.KVGet(metaKey(token), nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownToken
	}
	return nil
}

// BalanceOf returns the holder's balance of the token. Unregistered tokens
// and empty balances both report zero.
func (l *Ledger) BalanceOf(token, holder [20]byte) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, errNilStore
	}
	return l.loadAmount(balanceKey(token, holder))
}

// TotalSupply returns the minted-minus-burned supply of the token.
func (l *Ledger) TotalSupply(token [20]byte) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, errNilStore
	}
	return l.loadAmount(supplyKey(token))
}

// Mint credits amount of token to the recipient and grows total supply.
func (l *Ledger) Mint(token, to [20]byte, amount *big.Int) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := l.requireRegistered(token); err != nil {
		return err
	}
	balance, err := l.loadAmount(balanceKey(token, to))
	if err != nil {
		return err
	}
	supply, err := l.loadAmount(supplyKey(token))
	if err != nil {
		return err
	}
	if err := l.storeAmount(balanceKey(token, to), balance.Add(balance, amount)); err != nil {
		return err
	}
	return l.storeAmount(supplyKey(token), supply.Add(supply, amount))
}

// Burn debits amount of token from the holder and shrinks total supply.
func (l *Ledger) Burn(token, from [20]byte, amount *big.Int) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := l.loadAmount(balanceKey(token, from))
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	supply, err := l.loadAmount(supplyKey(token))
	if err != nil {
		return err
	}
	if err := l.storeAmount(balanceKey(token, from), balance.Sub(balance, amount)); err != nil {
		return err
	}
	return l.storeAmount(supplyKey(token), supply.Sub(supply, amount))
}

// Transfer moves amount of token between holders.
func (l *Ledger) Transfer(token, from, to [20]byte, amount *big.Int) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if from == to {
		return nil
	}
	fromBalance, err := l.loadAmount(balanceKey(token, from))
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := l.loadAmount(balanceKey(token, to))
	if err != nil {
		return err
	}
	if err := l.storeAmount(balanceKey(token, from), fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.storeAmount(balanceKey(token, to), toBalance.Add(toBalance, amount))
}

// Approve grants the spender an allowance over the owner's balance. A zero
// amount clears the grant.
func (l *Ledger) Approve(token, owner, spender [20]byte, amount *big.Int) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return l.storeAmount(allowanceKey(token, owner, spender), new(big.Int).Set(amount))
}

// Allowance reports the spender's remaining grant over the owner's balance.
func (l *Ledger) Allowance(token, owner, spender [20]byte) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, errNilStore
	}
	return l.loadAmount(allowanceKey(token, owner, spender))
}

// TransferFrom consumes the spender's allowance to move amount from the owner
// to the recipient.
func (l *Ledger) TransferFrom(token, owner, spender, to [20]byte, amount *big.Int) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	allowance, err := l.loadAmount(allowanceKey(token, owner, spender))
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.Transfer(token, owner, to, amount); err != nil {
		return err
	}
	return l.storeAmount(allowanceKey(token, owner, spender), allowance.Sub(allowance, amount))
}
