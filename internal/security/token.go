package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

const sessionSecretBytes = 24

// EncodeToken builds the bearer token handed to clients. The id is only
// a lookup key; the secret component is the capability.
func EncodeToken(id, secret string) string {
	return id + "." + secret
}

// DecodeToken splits a bearer token on its first dot. It reports failure
// instead of erroring: malformed tokens are an expected input.
func DecodeToken(token string) (id, secret string, ok bool) {
	dot := strings.IndexByte(token, '.')
	if dot <= 0 || dot == len(token)-1 {
		return "", "", false
	}
	return token[:dot], token[dot+1:], true
}

// GenerateSessionSecret returns a URL-safe random secret for a session
// token. The plaintext only ever lives inside the issued token.
func GenerateSessionSecret() (string, error) {
	b := make([]byte, sessionSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashSessionSecret is the stored form of a session secret. The secret
// already carries full entropy, so a plain sha256 is sufficient.
func HashSessionSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// VerifySessionSecret compares in constant time to keep lookup timing
// from becoming an oracle.
func VerifySessionSecret(secret, hash string) bool {
	expected := HashSessionSecret(secret)
	return hmac.Equal([]byte(expected), []byte(hash))
}

// GenerateVerificationCode returns an 8-digit numeric code from
// crypto/rand. These codes gate account takeover, so a PRNG is not
// acceptable here.
func GenerateVerificationCode() (string, error) {
	const digits = 8
	buf := make([]byte, 1)
	out := make([]byte, 0, digits)
	for len(out) < digits {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		// Rejection sampling keeps the distribution uniform.
		if buf[0] >= 250 {
			continue
		}
		out = append(out, '0'+buf[0]%10)
	}
	return string(out), nil
}

// TimingSafeEqual compares two short strings (verification codes) in
// constant time.
func TimingSafeEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
