// Package checkin implements the check-in code scheme: the canonical message
// built from a ticket and a nonce, its Keccak-256 digest, and recoverable
// secp256k1 signatures over that digest.
package checkin

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"

	"ms-admission/internal/models"
)

// FormatVersion selects the message layout. The version is carried next to
// the code, never inside the signed bytes, so v1 stays byte-compatible with
// codes produced by existing wallets.
type FormatVersion uint8

const FormatV1 FormatVersion = 1

const delimiter = ","

var (
	ErrMalformedMessage  = errors.New("malformed check-in message")
	ErrUnsupportedFormat = errors.New("unsupported check-in message format")
)

// Fields are the immutable ticket facts bound into a check-in message.
type Fields struct {
	ShowID        uint64
	SeatTypeID    uint64
	SeatNum       uint32
	SeatName      string
	BuyerName     string
	BuyerIdentity string
}

func FieldsFromTicket(t models.Ticket) Fields {
	return Fields{
		ShowID:        t.ShowID,
		SeatTypeID:    t.SeatTypeID,
		SeatNum:       t.SeatNum,
		SeatName:      t.SeatName,
		BuyerName:     t.BuyerName,
		BuyerIdentity: t.BuyerIdentity,
	}
}

// Validate reports whether the fields can be encoded unambiguously.
func (f Fields) Validate() error {
	return f.validate("")
}

func (f Fields) validate(nonce string) error {
	text := [][2]string{
		{"seat name", f.SeatName},
		{"buyer name", f.BuyerName},
		{"buyer identity", f.BuyerIdentity},
		{"nonce", nonce},
	}
	for _, field := range text {
		if strings.Contains(field[1], delimiter) {
			return fmt.Errorf("%w: %s contains %q", ErrMalformedMessage, field[0], delimiter)
		}
	}
	return nil
}

// Digest is a 256-bit Keccak digest.
type Digest [32]byte

func (d Digest) Hex() string {
	return "0x" + hex.EncodeToString(d[:])
}

// BuildMessage encodes fields and nonce in the v1 layout:
//
//	<showId>,<seatTypeId>,<seatNum>,<seatName>,<buyerName>,<buyerIdentity>,<nonce>
//
// Integers are base-10, strings are written verbatim as UTF-8. A string field
// containing the delimiter would make two different tickets encode to the
// same bytes, so it is rejected.
func BuildMessage(version FormatVersion, f Fields, nonce string) ([]byte, error) {
	if version != FormatV1 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, version)
	}
	if nonce == "" {
		return nil, fmt.Errorf("%w: empty nonce", ErrMalformedMessage)
	}
	if err := f.validate(nonce); err != nil {
		return nil, err
	}

	parts := []string{
		strconv.FormatUint(f.ShowID, 10),
		strconv.FormatUint(f.SeatTypeID, 10),
		strconv.FormatUint(uint64(f.SeatNum), 10),
		f.SeatName,
		f.BuyerName,
		f.BuyerIdentity,
		nonce,
	}
	return []byte(strings.Join(parts, delimiter)), nil
}

// Hash returns keccak256(message).
func Hash(message []byte) Digest {
	var d Digest
	h := sha3.NewLegacyKeccak256()
	h.Write(message)
	h.Sum(d[:0])
	return d
}

const personalPrefix = "\x19Ethereum Signed Message:\n32"

// PersonalDigest wraps a message hash the way wallet signMessage does
// (EIP-191 version 0x45).
func PersonalDigest(messageHash Digest) Digest {
	buf := make([]byte, 0, len(personalPrefix)+len(messageHash))
	buf = append(buf, personalPrefix...)
	buf = append(buf, messageHash[:]...)
	return Hash(buf)
}
