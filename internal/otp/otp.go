// Package otp derives the signup verification code from the secret the
// monitored system stores for a new identity. The secret arrives
// Fernet-encrypted and wrapped in an extra urlsafe-base64 layer; codes
// are standard 6-digit TOTP evaluated at the start of a 15 minute
// validity window, matching the verification service.
package otp

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/pquerna/otp/totp"
)

// ValidityWindow is the code validity period used by the verification
// service. Codes are generated at the window start, not at "now".
const ValidityWindow = 15 * time.Minute

// DecryptSecret unwraps the stored TOTP secret: urlsafe-base64 decode
// first, then Fernet decrypt with key.
func DecryptSecret(encrypted string, key string) (string, error) {
	if strings.TrimSpace(encrypted) == "" {
		return "", errors.New("encrypted secret is empty")
	}
	k, err := fernet.DecodeKey(key)
	if err != nil {
		return "", fmt.Errorf("decode fernet key: %w", err)
	}

	token, err := base64.URLEncoding.DecodeString(encrypted)
	if err != nil {
		// Secrets written without padding still have to decode.
		token, err = base64.RawURLEncoding.DecodeString(encrypted)
		if err != nil {
			return "", fmt.Errorf("base64 decode secret: %w", err)
		}
	}

	plain := fernet.VerifyAndDecrypt(token, 0, []*fernet.Key{k})
	if plain == nil {
		return "", errors.New("fernet decrypt failed: invalid token or key")
	}
	return string(plain), nil
}

// GenerateCode produces the 6-digit code for secret at time now.
func GenerateCode(secret string, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("totp secret is empty")
	}
	windowStart := now.UTC().Truncate(ValidityWindow)
	code, err := totp.GenerateCode(secret, windowStart)
	if err != nil {
		return "", fmt.Errorf("generate totp: %w", err)
	}
	return code, nil
}
