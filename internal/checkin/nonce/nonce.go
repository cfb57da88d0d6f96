// Package nonce decides which check-in nonces the gate accepts.
//
// Under the totp policy the gate shows a short code derived from a shared
// secret and the clock; a code photographed at an earlier admission window
// carries a stale nonce and is rejected. Replays inside the window are
// stopped by the ticket status, which only ever leaves valid once.
package nonce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/xlzd/gotp"

	"ms-admission/internal/models"
)

const (
	PolicyTOTP = "totp"
	PolicyAny  = "any"
)

type Policy interface {
	// Current returns the nonce the gate should display now.
	Current(now time.Time) (string, error)
	Validate(nonce string, now time.Time) error
}

// AnyPolicy accepts every well-formed nonce.
type AnyPolicy struct {
	Digits int
}

func (p AnyPolicy) Current(time.Time) (string, error) {
	digits := p.Digits
	if digits <= 0 {
		digits = 4
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}

func (p AnyPolicy) Validate(nonce string, _ time.Time) error {
	return wellFormed(nonce)
}

// TOTPPolicy accepts the code of the current period and of Skew previous
// periods.
type TOTPPolicy struct {
	totp   *gotp.TOTP
	period time.Duration
	skew   int
}

func NewTOTPPolicy(secret string, digits int, period time.Duration, skew int) *TOTPPolicy {
	if period < time.Second {
		period = time.Minute
	}
	if skew < 0 {
		skew = 0
	}
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(secret))
	hasher := &gotp.Hasher{HashName: "sha256", Digest: sha256.New}
	return &TOTPPolicy{
		totp:   gotp.NewTOTP(encoded, digits, int(period/time.Second), hasher),
		period: period,
		skew:   skew,
	}
}

// Current ignores now; the code always follows the wall clock.
func (p *TOTPPolicy) Current(time.Time) (string, error) {
	return p.totp.Now(), nil
}

func (p *TOTPPolicy) Validate(nonce string, now time.Time) error {
	if err := wellFormed(nonce); err != nil {
		return err
	}
	for i := 0; i <= p.skew; i++ {
		if p.totp.VerifyTime(nonce, now.Add(-time.Duration(i)*p.period)) {
			return nil
		}
	}
	return fmt.Errorf("%w: nonce %q is not valid for the current admission window", models.ErrNonceRejected, nonce)
}

func wellFormed(nonce string) error {
	if nonce == "" || strings.Contains(nonce, ",") {
		return fmt.Errorf("%w: malformed nonce %q", models.ErrNonceRejected, nonce)
	}
	return nil
}

// Guard applies a policy against a clock.
type Guard struct {
	Policy Policy
	Now    func() time.Time
}

func NewGuard(policy Policy) *Guard {
	return &Guard{Policy: policy, Now: time.Now}
}

func (g *Guard) Current() (string, error) {
	return g.Policy.Current(g.Now())
}

func (g *Guard) Check(nonce string) error {
	return g.Policy.Validate(nonce, g.Now())
}
