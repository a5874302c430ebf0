package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the bech32 human-readable part of a protocol address.
type AddressPrefix string

// FindPrefix is the prefix carried by every protocol account address.
const FindPrefix AddressPrefix = "fnd"

const addressLength = 20

// Address is a 20-byte account address rendered as bech32 with the protocol
// prefix.
type Address struct {
	prefix AddressPrefix
	raw    [addressLength]byte
}

// NewAddress builds an address from a 20-byte slice. The length is a
// programmer invariant, not caller input; DecodeAddress is the entry point
// for untrusted strings.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != addressLength {
		panic("crypto: address must be 20 bytes")
	}
	addr := Address{prefix: prefix}
	copy(addr.raw[:], b)
	return addr
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.raw[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, addressLength)
	copy(out, a.raw[:])
	return out
}

// Raw returns the address as a fixed 20-byte array for use as a map or
// ledger key.
func (a Address) Raw() [20]byte { return a.raw }

// Prefix returns the bech32 human-readable part of the address.
func (a Address) Prefix() AddressPrefix { return a.prefix }

// DecodeAddress parses a bech32 account address. The payload must decode to
// exactly 20 bytes.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != addressLength {
		return Address{}, fmt.Errorf("address payload is %d bytes, want %d", len(conv), addressLength)
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

// GeneratePrivateKey draws a fresh secp256k1 key from crypto/rand.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the protocol account address of the key: the Ethereum-style
// keccak address bytes under the protocol prefix.
func (k *PublicKey) Address() Address {
	addrBytes := crypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return NewAddress(FindPrefix, addrBytes)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
