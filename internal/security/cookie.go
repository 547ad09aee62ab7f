package security

import (
	"net/http"
	"strings"
	"time"
)

const (
	SessionCookieName       = "session_token"
	SignupCookieName        = "signup_session_token"
	OAuthStateCookieName    = "oauth_state"
	OAuthVerifierCookieName = "oauth_code_verifier"
)

type CookieManager struct {
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

func NewCookieManager(domain string, secure bool, sameSite string) *CookieManager {
	ss := http.SameSiteLaxMode
	switch strings.ToLower(sameSite) {
	case "none":
		ss = http.SameSiteNoneMode
	case "strict":
		ss = http.SameSiteStrictMode
	}
	return &CookieManager{Domain: domain, Secure: secure, SameSite: ss}
}

func (c *CookieManager) SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Value: token, Path: "/", HttpOnly: true, Secure: c.Secure, SameSite: c.SameSite, Domain: c.Domain, MaxAge: int(ttl.Seconds())})
}

func (c *CookieManager) SetSignupCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{Name: SignupCookieName, Value: token, Path: "/api/v1/auth/signup", HttpOnly: true, Secure: c.Secure, SameSite: c.SameSite, Domain: c.Domain, MaxAge: int(ttl.Seconds())})
}

// SetOAuthFlowCookies stores the signed state and PKCE verifier for the
// duration of the provider round trip. SameSite must stay Lax so the
// cookies survive the cross-site redirect back from the provider.
func (c *CookieManager) SetOAuthFlowCookies(w http.ResponseWriter, state, codeVerifier string) {
	const maxAge = 600
	http.SetCookie(w, &http.Cookie{Name: OAuthStateCookieName, Value: state, Path: "/", HttpOnly: true, Secure: c.Secure, SameSite: http.SameSiteLaxMode, Domain: c.Domain, MaxAge: maxAge})
	http.SetCookie(w, &http.Cookie{Name: OAuthVerifierCookieName, Value: codeVerifier, Path: "/", HttpOnly: true, Secure: c.Secure, SameSite: http.SameSiteLaxMode, Domain: c.Domain, MaxAge: maxAge})
}

func (c *CookieManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true, Secure: c.Secure, SameSite: c.SameSite, Domain: c.Domain})
}

func (c *CookieManager) ClearSignupCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: SignupCookieName, Value: "", Path: "/api/v1/auth/signup", MaxAge: -1, HttpOnly: true, Secure: c.Secure, SameSite: c.SameSite, Domain: c.Domain})
}

func (c *CookieManager) ClearOAuthFlowCookies(w http.ResponseWriter) {
	clear := func(name string) {
		http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1, HttpOnly: true, Secure: c.Secure, SameSite: http.SameSiteLaxMode, Domain: c.Domain})
	}
	clear(OAuthStateCookieName)
	clear(OAuthVerifierCookieName)
}

func GetCookie(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
