package service

import (
	"errors"
	"fmt"

	"go-identity-service/internal/domain"
)

// Client platforms accepted on OAuth entry points.
const (
	PlatformWeb    = "web"
	PlatformMobile = "mobile"
)

// OAuth flow purposes, baked into the signed state.
const (
	FlowLogin  = "login"
	FlowSignup = "signup"
	FlowLink   = "link"
)

var (
	ErrInvalidState         = errors.New("invalid oauth state")
	ErrInvalidRedirectURI   = errors.New("redirect uri not allowed")
	ErrUnknownProvider      = errors.New("unknown oauth provider")
	ErrProviderAccessDenied = errors.New("provider access denied")
	ErrProviderError        = errors.New("provider returned an error")
	ErrTokenExchangeFailed  = errors.New("token exchange failed")
	ErrGetIdentityFailed    = errors.New("fetching provider identity failed")

	ErrExternalIdentityAlreadyRegistered = errors.New("external identity already registered")
	ErrAccountAssociationNotFound        = errors.New("no account to associate with this identity")
	ErrAccountAssociationAvailable       = errors.New("account association available")
)

// RedirectError wraps a callback failure together with the validated
// redirect URI, so the HTTP layer can send the user back to the client
// with an error code instead of rendering a dead end. Errors raised
// before the redirect URI is validated (bad state, bad redirect) are
// plain sentinels, never RedirectErrors.
type RedirectError struct {
	Code        string
	RedirectURI string
	Err         error
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("oauth callback failed (%s): %v", e.Code, e.Err)
}

func (e *RedirectError) Unwrap() error { return e.Err }

// AccountAssociationAvailableError is the "link proposal" outcome: a
// local account with the same email exists but is not yet linked to
// this provider identity. It carries the persisted link session and its
// token so the client can drive the confirmation flow.
type AccountAssociationAvailableError struct {
	Session     *domain.AccountLinkSession
	Token       string
	RedirectURI string
}

func (e *AccountAssociationAvailableError) Error() string {
	return fmt.Sprintf("account association available for %s", e.Session.Provider)
}

func (e *AccountAssociationAvailableError) Unwrap() error {
	return ErrAccountAssociationAvailable
}
