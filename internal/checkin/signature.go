package checkin

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// SignatureLength is r(32) || s(32) || v(1).
const SignatureLength = 65

const recoveryOffset = 27

var ErrInvalidSignature = errors.New("invalid check-in signature")

// Reasons a signature is malformed.
const (
	ReasonLength        = "length"
	ReasonRecoveryID    = "recovery_id"
	ReasonNonCanonical  = "non_canonical"
	ReasonUnrecoverable = "unrecoverable"
	ReasonEncoding      = "encoding"
	ReasonMessage       = "message"
)

// ProtocolError describes a structurally invalid code. It matches
// ErrMalformedMessage for message problems and ErrInvalidSignature for
// everything else.
type ProtocolError struct {
	Reason string
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Unwrap(), e.Reason)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Unwrap(), e.Reason, e.Detail)
}

func (e *ProtocolError) Unwrap() error {
	if e.Reason == ReasonMessage {
		return ErrMalformedMessage
	}
	return ErrInvalidSignature
}

type Signature [SignatureLength]byte

func (s Signature) Hex() string {
	return "0x" + hex.EncodeToString(s[:])
}

// ParseSignature decodes a 0x-prefixed hex signature. Only encoding is
// checked here; RecoverSigner validates the contents.
func ParseSignature(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, &ProtocolError{Reason: ReasonEncoding, Detail: err.Error()}
	}
	return raw, nil
}

// Sign produces a low-S recoverable signature with v in {27, 28}.
func Sign(digest Digest, key *secp256k1.PrivateKey) Signature {
	// SignCompact returns v || r || s.
	compact := ecdsa.SignCompact(key, digest[:], false)

	var sig Signature
	copy(sig[:64], compact[1:])
	sig[64] = compact[0]
	return sig
}

type RecoveryKind int

const (
	Recovered RecoveryKind = iota
	Malformed
)

// Recovery is the outcome of RecoverSigner: either the identity that
// produced the signature or the reason the signature is malformed. Whether
// the identity is the expected one is for the caller to decide.
type Recovery struct {
	Kind     RecoveryKind
	Identity Identity
	Reason   string
	Detail   string
}

func (r Recovery) Err() error {
	if r.Kind == Recovered {
		return nil
	}
	return &ProtocolError{Reason: r.Reason, Detail: r.Detail}
}

func malformed(reason, detail string) Recovery {
	return Recovery{Kind: Malformed, Reason: reason, Detail: detail}
}

// RecoverSigner recovers the identity that signed digest. v may be 0/1 or
// 27/28; high-S signatures are rejected as non-canonical.
func RecoverSigner(digest Digest, sig []byte) Recovery {
	if len(sig) != SignatureLength {
		return malformed(ReasonLength, fmt.Sprintf("got %d bytes", len(sig)))
	}

	v := sig[64]
	if v < recoveryOffset {
		v += recoveryOffset
	}
	if v != recoveryOffset && v != recoveryOffset+1 {
		return malformed(ReasonRecoveryID, fmt.Sprintf("v=%d", sig[64]))
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow || r.IsZero() {
		return malformed(ReasonNonCanonical, "r out of range")
	}
	if overflow := s.SetByteSlice(sig[32:64]); overflow || s.IsZero() {
		return malformed(ReasonNonCanonical, "s out of range")
	}
	if s.IsOverHalfOrder() {
		return malformed(ReasonNonCanonical, "high s")
	}

	compact := make([]byte, SignatureLength)
	compact[0] = v
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return malformed(ReasonUnrecoverable, err.Error())
	}
	return Recovery{Kind: Recovered, Identity: IdentityFromPublicKey(pub)}
}
