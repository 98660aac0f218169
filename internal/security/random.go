package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

// NewRandomString returns a URL-safe random string built from n bytes of
// entropy. n must be at least 16 (128 bits); short tokens are a policy bug,
// not a caller choice.
func NewRandomString(n int) (string, error) {
	if n < 16 {
		return "", fmt.Errorf("random string entropy too small: %d bytes", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewTwoFactorCode draws a uniform 6-digit code from [100000, 999999].
func NewTwoFactorCode() (string, error) {
	span := big.NewInt(900000)
	v, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", v.Int64()+100000), nil
}
