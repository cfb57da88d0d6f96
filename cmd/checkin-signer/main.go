// checkin-signer plays the buyer's side of a check-in. It derives the
// identity of a private key, builds the check-in message for a ticket and
// nonce, signs it and prints the resulting code as JSON. With
// --staff-token-secret it also mints a gate staff bearer token for the key.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"ms-admission/internal/auth"
	"ms-admission/internal/checkin"
)

type output struct {
	Identity   string        `json:"identity"`
	Code       *checkin.Code `json:"code,omitempty"`
	StaffToken string        `json:"staff_token,omitempty"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	var (
		keyHex       string
		fields       checkin.Fields
		nonce        string
		personalSign bool
		identityOnly bool
		staffSecret  string
		staffTTL     time.Duration
	)

	flagSet := pflag.NewFlagSet("checkin-signer", pflag.ContinueOnError)
	flagSet.SetOutput(stdout)
	flagSet.StringVar(&keyHex, "key", "", "hex-encoded secp256k1 private key (required)")
	flagSet.Uint64Var(&fields.ShowID, "show", 0, "show id")
	flagSet.Uint64Var(&fields.SeatTypeID, "seat-type", 0, "seat type id")
	flagSet.Uint32Var(&fields.SeatNum, "seat", 0, "seat number")
	flagSet.StringVar(&fields.SeatName, "seat-name", "", "seat name as printed on the ticket")
	flagSet.StringVar(&fields.BuyerName, "buyer-name", "", "buyer name as printed on the ticket")
	flagSet.StringVar(&fields.BuyerIdentity, "buyer", "", "buyer identity on the ticket (default: identity of --key)")
	flagSet.StringVar(&nonce, "nonce", "", "nonce shown at the gate")
	flagSet.BoolVar(&personalSign, "personal-sign", false, "sign the EIP-191 personal message digest")
	flagSet.BoolVar(&identityOnly, "identity-only", false, "only print the identity of --key")
	flagSet.StringVar(&staffSecret, "staff-token-secret", "", "HMAC secret; also mint a gate staff token for --key")
	flagSet.DurationVar(&staffTTL, "staff-token-ttl", 12*time.Hour, "lifetime of the minted staff token")

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if keyHex == "" {
		return errors.New("--key is required")
	}

	key, err := checkin.ParsePrivateKey(keyHex)
	if err != nil {
		return err
	}
	identity := checkin.IdentityFromPublicKey(key.PubKey())
	out := output{Identity: identity.String()}

	if staffSecret != "" {
		token, err := auth.IssueStaffToken([]byte(staffSecret), identity.String(), staffTTL)
		if err != nil {
			return fmt.Errorf("failed to mint staff token: %w", err)
		}
		out.StaffToken = token
	}

	if nonce == "" && !identityOnly && staffSecret == "" {
		return errors.New("--nonce is required to sign a code")
	}
	if nonce != "" && !identityOnly {
		if fields.BuyerIdentity == "" {
			fields.BuyerIdentity = identity.String()
		}
		code, err := checkin.NewProtocol(personalSign).NewCode(fields, nonce, key)
		if err != nil {
			return err
		}
		out.Code = code
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
