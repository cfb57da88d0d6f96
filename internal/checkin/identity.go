package checkin

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var ErrInvalidIdentity = errors.New("invalid identity")

// Identity is a 0x-prefixed, EIP-55 checksummed 20-byte address.
type Identity string

// Equal compares addresses ignoring checksum casing.
func (id Identity) Equal(other string) bool {
	return strings.EqualFold(string(id), other)
}

func (id Identity) String() string {
	return string(id)
}

// IdentityFromPublicKey derives the address: the last 20 bytes of
// keccak256(X || Y) of the uncompressed public key.
func IdentityFromPublicKey(pub *secp256k1.PublicKey) Identity {
	uncompressed := pub.SerializeUncompressed()
	digest := Hash(uncompressed[1:])
	return checksum(digest[12:])
}

// ParseIdentity validates a hex address and returns its checksummed form.
func ParseIdentity(s string) (Identity, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(raw) != 40 {
		return "", fmt.Errorf("%w: expected 20 bytes, got %q", ErrInvalidIdentity, s)
	}
	addr, err := hex.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return checksum(addr), nil
}

func checksum(addr []byte) Identity {
	lower := hex.EncodeToString(addr)
	hash := Hash([]byte(lower))

	out := make([]byte, len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		nibble := hash[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if c >= 'a' && c <= 'f' && nibble >= 8 {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return Identity("0x" + string(out))
}

// ParsePrivateKey reads a 32-byte hex private key with or without 0x.
func ParsePrivateKey(s string) (*secp256k1.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("invalid private key length %d", len(raw))
	}
	return secp256k1.PrivKeyFromBytes(raw), nil
}
