package checkin

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Code is the credential the buyer displays at the gate.
type Code struct {
	Version     FormatVersion `json:"version"`
	Message     string        `json:"message"`
	MessageHash string        `json:"message_hash"`
	Signature   string        `json:"signature,omitempty"`
}

// Protocol fixes the message format and whether signatures are made over
// the bare message hash or its EIP-191 personal-message wrapping.
type Protocol struct {
	Version      FormatVersion
	PersonalSign bool
}

func NewProtocol(personalSign bool) Protocol {
	return Protocol{Version: FormatV1, PersonalSign: personalSign}
}

// SigningDigest is the digest the signature actually commits to.
func (p Protocol) SigningDigest(messageHash Digest) Digest {
	if p.PersonalSign {
		return PersonalDigest(messageHash)
	}
	return messageHash
}

// Unsigned builds the message and hash for a buyer to sign.
func (p Protocol) Unsigned(f Fields, nonce string) (*Code, Digest, error) {
	message, err := BuildMessage(p.Version, f, nonce)
	if err != nil {
		return nil, Digest{}, err
	}
	hash := Hash(message)
	return &Code{
		Version:     p.Version,
		Message:     string(message),
		MessageHash: hash.Hex(),
	}, hash, nil
}

// NewCode builds and signs a code. It runs on the buyer's side; the
// service itself never holds buyer keys.
func (p Protocol) NewCode(f Fields, nonce string, key *secp256k1.PrivateKey) (*Code, error) {
	code, hash, err := p.Unsigned(f, nonce)
	if err != nil {
		return nil, err
	}
	sig := Sign(p.SigningDigest(hash), key)
	code.Signature = sig.Hex()
	return code, nil
}

// Recover rebuilds the message from trusted ticket fields and the presented
// nonce, then recovers who signed it. A message error is reported as
// malformed alongside signature errors.
func (p Protocol) Recover(f Fields, nonce string, sig []byte) Recovery {
	message, err := BuildMessage(p.Version, f, nonce)
	if err != nil {
		return malformed(ReasonMessage, err.Error())
	}
	return RecoverSigner(p.SigningDigest(Hash(message)), sig)
}
