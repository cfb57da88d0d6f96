package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-admission/internal/auth"
	"ms-admission/internal/checkin"
)

const (
	johnKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	john    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func runJSON(t *testing.T, args ...string) output {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, run(args, &buf))
	var out output
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestSignsReferenceTicket(t *testing.T) {
	out := runJSON(t,
		"--key", johnKey,
		"--seat", "3", "--seat-name", "A3",
		"--buyer-name", "John Doe",
		"--nonce", "4821",
	)

	assert.Equal(t, john, out.Identity)
	require.NotNil(t, out.Code)
	assert.Equal(t, "0,0,3,A3,John Doe,"+john+",4821", out.Code.Message)

	sig, err := checkin.ParseSignature(out.Code.Signature)
	require.NoError(t, err)
	fields := checkin.Fields{SeatNum: 3, SeatName: "A3", BuyerName: "John Doe", BuyerIdentity: john}
	rec := checkin.NewProtocol(false).Recover(fields, "4821", sig)
	require.Equal(t, checkin.Recovered, rec.Kind)
	assert.True(t, rec.Identity.Equal(john))
}

func TestMintsStaffToken(t *testing.T) {
	out := runJSON(t, "--key", johnKey, "--staff-token-secret", "s3cret", "--staff-token-ttl", "1m")
	assert.Nil(t, out.Code)

	subject, err := (&auth.HMACVerifier{Secret: []byte("s3cret")}).Verify(context.Background(), out.StaffToken)
	require.NoError(t, err)
	assert.Equal(t, john, subject)
}

func TestRejectsBadInput(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, run(nil, &buf))
	assert.Error(t, run([]string{"--key", "zz"}, &buf))
	assert.Error(t, run([]string{"--key", johnKey}, &buf))
	assert.ErrorIs(t,
		run([]string{"--key", johnKey, "--seat-name", "A,3", "--nonce", "1"}, &buf),
		checkin.ErrMalformedMessage)
}

