package secrets

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpIssuer = "Omnitron"

// GenerateTotpSecret creates a new TOTP secret for a user and returns the
// base32-encoded secret together with its otpauth:// enrollment URL.
func GenerateTotpSecret(account string) (secret, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: account,
	})
	if err != nil {
		return "", "", fmt.Errorf("generating totp secret: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// VerifyTotp reports whether code is currently valid for the base32-encoded
// secret, allowing one period of clock skew.
func VerifyTotp(code, secret string) bool {
	ok, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
