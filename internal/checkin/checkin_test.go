package checkin

import (
	"errors"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	johnKeyHex  = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	johnAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	eveKeyHex   = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	eveAddress  = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

func johnFields() Fields {
	return Fields{
		ShowID:        0,
		SeatTypeID:    0,
		SeatNum:       3,
		SeatName:      "A3",
		BuyerName:     "John Doe",
		BuyerIdentity: johnAddress,
	}
}

func mustKey(t *testing.T, h string) *secp256k1.PrivateKey {
	t.Helper()
	key, err := ParsePrivateKey(h)
	require.NoError(t, err)
	return key
}

func TestBuildMessageLayout(t *testing.T) {
	msg, err := BuildMessage(FormatV1, johnFields(), "4821")
	require.NoError(t, err)
	assert.Equal(t, "0,0,3,A3,John Doe,"+johnAddress+",4821", string(msg))

	again, err := BuildMessage(FormatV1, johnFields(), "4821")
	require.NoError(t, err)
	assert.Equal(t, msg, again, "same fields and nonce must encode identically")
}

func TestBuildMessageRejectsAmbiguousInput(t *testing.T) {
	f := johnFields()
	f.BuyerName = "Doe, John"
	_, err := BuildMessage(FormatV1, f, "4821")
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = BuildMessage(FormatV1, johnFields(), "48,21")
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = BuildMessage(FormatV1, johnFields(), "")
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = BuildMessage(FormatVersion(2), johnFields(), "4821")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestHashIsKeccak256(t *testing.T) {
	assert.Equal(t,
		"0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470",
		Hash(nil).Hex())
}

func TestIdentityFromPrivateKey(t *testing.T) {
	assert.Equal(t, Identity(johnAddress), IdentityFromPublicKey(mustKey(t, johnKeyHex).PubKey()))
	assert.Equal(t, Identity(eveAddress), IdentityFromPublicKey(mustKey(t, "0x"+eveKeyHex).PubKey()))
}

func TestParseIdentityChecksum(t *testing.T) {
	id, err := ParseIdentity("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, err)
	assert.Equal(t, Identity("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"), id)
	assert.True(t, id.Equal("0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED"))

	_, err = ParseIdentity("0x1234")
	assert.ErrorIs(t, err, ErrInvalidIdentity)
	_, err = ParseIdentity("0xzzaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestSignRecoverRoundTrip(t *testing.T) {
	key := mustKey(t, johnKeyHex)
	msg, err := BuildMessage(FormatV1, johnFields(), "4821")
	require.NoError(t, err)
	digest := Hash(msg)

	sig := Sign(digest, key)
	assert.Len(t, sig, SignatureLength)
	assert.Contains(t, []byte{27, 28}, sig[64])

	rec := RecoverSigner(digest, sig[:])
	require.Equal(t, Recovered, rec.Kind)
	require.NoError(t, rec.Err())
	assert.True(t, rec.Identity.Equal(johnAddress))

	// 0/1 recovery ids are accepted as well.
	raw := sig
	raw[64] -= 27
	rec = RecoverSigner(digest, raw[:])
	require.Equal(t, Recovered, rec.Kind)
	assert.True(t, rec.Identity.Equal(johnAddress))
}

func TestTamperedFieldsNeverValidate(t *testing.T) {
	p := NewProtocol(false)
	code, err := p.NewCode(johnFields(), "4821", mustKey(t, johnKeyHex))
	require.NoError(t, err)
	sig, err := ParseSignature(code.Signature)
	require.NoError(t, err)

	seat := johnFields()
	seat.SeatNum = 4
	buyer := johnFields()
	buyer.BuyerIdentity = eveAddress

	cases := []struct {
		name   string
		fields Fields
		nonce  string
	}{
		{"seat number", seat, "4821"},
		{"buyer identity", buyer, "4821"},
		{"nonce", johnFields(), "4822"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := p.Recover(tc.fields, tc.nonce, sig)
			if rec.Kind == Recovered {
				assert.False(t, rec.Identity.Equal(johnAddress))
			}
		})
	}

	rec := p.Recover(johnFields(), "4821", sig)
	require.Equal(t, Recovered, rec.Kind)
	assert.True(t, rec.Identity.Equal(johnAddress))
}

func TestRecoverRejectsMalformedSignatures(t *testing.T) {
	digest := Hash([]byte("0,0,3,A3,John Doe," + johnAddress + ",4821"))
	sig := Sign(digest, mustKey(t, johnKeyHex))

	short := RecoverSigner(digest, sig[:64])
	assert.Equal(t, Malformed, short.Kind)
	assert.Equal(t, ReasonLength, short.Reason)
	assert.ErrorIs(t, short.Err(), ErrInvalidSignature)

	badV := sig
	badV[64] = 31
	rec := RecoverSigner(digest, badV[:])
	assert.Equal(t, ReasonRecoveryID, rec.Reason)

	zeroR := sig
	copy(zeroR[:32], make([]byte, 32))
	rec = RecoverSigner(digest, zeroR[:])
	assert.Equal(t, ReasonNonCanonical, rec.Reason)

	// The same signature with s replaced by n-s still verifies
	// mathematically but is not canonical.
	var s secp256k1.ModNScalar
	s.SetByteSlice(sig[32:64])
	s.Negate()
	highS := sig
	hb := s.Bytes()
	copy(highS[32:64], hb[:])
	highS[64] ^= 1
	rec = RecoverSigner(digest, highS[:])
	assert.Equal(t, Malformed, rec.Kind)
	assert.Equal(t, ReasonNonCanonical, rec.Reason)

	var perr *ProtocolError
	assert.True(t, errors.As(rec.Err(), &perr))
}

func TestParseSignatureEncoding(t *testing.T) {
	_, err := ParseSignature("0xnothex")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	raw, err := ParseSignature("0x" + "00")
	require.NoError(t, err)
	assert.Len(t, raw, 1)
}

func TestPersonalSignMode(t *testing.T) {
	personal := NewProtocol(true)
	plain := NewProtocol(false)

	code, err := personal.NewCode(johnFields(), "4821", mustKey(t, johnKeyHex))
	require.NoError(t, err)
	sig, err := ParseSignature(code.Signature)
	require.NoError(t, err)

	rec := personal.Recover(johnFields(), "4821", sig)
	require.Equal(t, Recovered, rec.Kind)
	assert.True(t, rec.Identity.Equal(johnAddress))

	rec = plain.Recover(johnFields(), "4821", sig)
	if rec.Kind == Recovered {
		assert.False(t, rec.Identity.Equal(johnAddress))
	}
}

func TestRecoverReportsMalformedMessage(t *testing.T) {
	f := johnFields()
	f.SeatName = "A,3"
	rec := NewProtocol(false).Recover(f, "4821", make([]byte, SignatureLength))
	assert.Equal(t, Malformed, rec.Kind)
	assert.ErrorIs(t, rec.Err(), ErrMalformedMessage)
	assert.NotErrorIs(t, rec.Err(), ErrInvalidSignature)
}

func TestCodeBundle(t *testing.T) {
	code, err := NewProtocol(false).NewCode(johnFields(), "4821", mustKey(t, johnKeyHex))
	require.NoError(t, err)

	assert.Equal(t, FormatV1, code.Version)
	assert.Equal(t, "0,0,3,A3,John Doe,"+johnAddress+",4821", code.Message)
	assert.Equal(t, Hash([]byte(code.Message)).Hex(), code.MessageHash)
	assert.Len(t, code.Signature, 2+2*SignatureLength)
}
