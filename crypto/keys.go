package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the bech32 human-readable part used for ledger identities.
const AddressPrefix = "bkg"

// Address represents a 20-byte ledger address.
type Address struct {
	bytes [20]byte
}

// NewAddress wraps raw address bytes. It panics when the slice is not exactly
// 20 bytes, matching the fixed-width identity model of the ledger.
func NewAddress(b []byte) Address {
	if len(b) != 20 {
		panic("address must be 20 bytes long")
	}
	var addr Address
	copy(addr.bytes[:], b)
	return addr
}

// String renders the address in bech32 with the ledger prefix.
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns the fixed-width byte form of the address.
func (a Address) Bytes() [20]byte {
	return a.bytes
}

// DecodeAddress parses a bech32 ledger address.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(strings.TrimSpace(addrStr))
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != 20 {
		return Address{}, fmt.Errorf("address payload must be 20 bytes, got %d", len(conv))
	}
	return NewAddress(conv), nil
}

// PrivateKey wraps a secp256k1 private key.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

// PublicKey wraps a secp256k1 public key.
type PublicKey struct {
	*ecdsa.PublicKey
}

// GeneratePrivateKey creates a fresh secp256k1 key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{PrivateKey: key}, nil
}

// PubKey returns the public half of the key.
func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{PublicKey: &k.PublicKey}
}

// Address derives the 20-byte ledger address from the public key, using the
// trailing bytes of the keccak256 hash of the uncompressed key.
func (p *PublicKey) Address() Address {
	hashed := crypto.Keccak256(crypto.FromECDSAPub(p.PublicKey)[1:])
	return NewAddress(hashed[len(hashed)-20:])
}

// SaveKey persists the key as hex at path, creating parent directories and
// restricting file permissions to the owner.
func SaveKey(path string, key *PrivateKey) error {
	if key == nil || key.PrivateKey == nil {
		return fmt.Errorf("nil private key")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	encoded := hex.EncodeToString(crypto.FromECDSA(key.PrivateKey))
	return os.WriteFile(path, []byte(encoded+"\n"), 0o600)
}

// LoadKey reads a hex-encoded key saved with SaveKey.
func LoadKey(path string) (*PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("malformed key file %s: %w", path, err)
	}
	key, err := crypto.ToECDSA(decoded)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{PrivateKey: key}, nil
}
