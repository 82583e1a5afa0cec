package auth

import (
	"fmt"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpIssuer = "achexport"

// TOTPVerifier checks the second factor operators send with export requests.
type TOTPVerifier struct {
	secret string
}

func NewTOTPVerifier(secret string) *TOTPVerifier {
	return &TOTPVerifier{secret: strings.TrimSpace(secret)}
}

func (v *TOTPVerifier) VerifyCode(code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	return totp.Validate(code, v.secret)
}

// GenerateSecret creates a new shared secret and its provisioning URI.
// SHA1 keeps it compatible with common authenticator apps.
func GenerateSecret(account string) (uri, secret string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: account,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("could not generate TOTP secret: %w", err)
	}
	return key.URL(), key.Secret(), nil
}
