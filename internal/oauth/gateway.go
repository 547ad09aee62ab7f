package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"time"
)

// Identity is the provider-side view of the authenticated user.
type Identity struct {
	Provider       string
	ProviderUserID string
	Email          string
	Name           string
	IconURL        string
}

// Tokens is the result of an authorization-code exchange.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// Gateway abstracts one OAuth 2.0 provider.
type Gateway interface {
	// AuthorizationURL builds the consent-screen URL. codeChallenge is
	// the S256-transformed PKCE verifier.
	AuthorizationURL(state, codeChallenge string) string
	// ExchangeCode swaps the callback's authorization code for tokens.
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*Tokens, error)
	// GetIdentity fetches the user behind the access token.
	GetIdentity(ctx context.Context, tokens *Tokens) (*Identity, error)
	// RevokeToken invalidates the access token on the provider side.
	RevokeToken(ctx context.Context, tokens *Tokens) error
}

// GenerateCodeVerifier produces a PKCE code verifier: 32 random bytes,
// base64url without padding (43 chars, within RFC 7636's 43-128 range).
func GenerateCodeVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CodeChallengeS256 derives the challenge sent on the authorization
// request from the verifier kept client-side.
func CodeChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
