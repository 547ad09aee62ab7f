package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go-identity-service/internal/domain"
	"go-identity-service/internal/oauth"
	"go-identity-service/internal/observability"
	"go-identity-service/internal/repository"
	"go-identity-service/internal/security"
)

// AuthorizeRequest starts an OAuth flow.
type AuthorizeRequest struct {
	Provider       string
	Flow           string
	ClientPlatform string
	RedirectURI    string
	// UserID is set only for link flows started by a logged-in user.
	UserID string
}

// AuthorizeResult is what the HTTP layer needs to send the user off to
// the provider: the consent URL and the PKCE verifier to stash in a
// cookie until the callback.
type AuthorizeResult struct {
	URL          string
	CodeVerifier string
}

// CallbackInput carries the provider callback's query parameters.
type CallbackInput struct {
	Provider     string
	State        string
	Code         string
	CodeVerifier string
	ErrorParam   string
}

// CallbackResult is the success outcome of a login or signup callback.
type CallbackResult struct {
	User           *domain.User
	Session        *domain.LoginSession
	Token          string
	ClientPlatform string
	RedirectURI    string
}

type OAuthService struct {
	users         repository.UserRepository
	identities    repository.ExternalIdentityRepository
	loginSessions repository.LoginSessionRepository
	linkSessions  repository.AccountLinkSessionRepository
	gateways      map[string]oauth.Gateway
	state         *security.StateSigner
	webRedirects  []string
	mobileSchemes []string
	logger        *slog.Logger
}

func NewOAuthService(
	users repository.UserRepository,
	identities repository.ExternalIdentityRepository,
	loginSessions repository.LoginSessionRepository,
	linkSessions repository.AccountLinkSessionRepository,
	gateways map[string]oauth.Gateway,
	state *security.StateSigner,
	webRedirects, mobileSchemes []string,
	logger *slog.Logger,
) *OAuthService {
	return &OAuthService{
		users:         users,
		identities:    identities,
		loginSessions: loginSessions,
		linkSessions:  linkSessions,
		gateways:      gateways,
		state:         state,
		webRedirects:  webRedirects,
		mobileSchemes: mobileSchemes,
		logger:        logger,
	}
}

// AuthorizeURL validates the request, signs the state blob and builds
// the provider consent URL.
func (s *OAuthService) AuthorizeURL(req AuthorizeRequest) (*AuthorizeResult, error) {
	gateway, ok := s.gateways[req.Provider]
	if !ok {
		return nil, ErrUnknownProvider
	}
	if !s.redirectAllowed(req.ClientPlatform, req.RedirectURI) {
		return nil, ErrInvalidRedirectURI
	}

	state, err := s.state.Sign(security.StatePayload{
		Purpose:        req.Flow,
		ClientPlatform: req.ClientPlatform,
		RedirectURI:    req.RedirectURI,
		UserID:         req.UserID,
	})
	if err != nil {
		return nil, err
	}

	verifier, err := oauth.GenerateCodeVerifier()
	if err != nil {
		return nil, err
	}

	return &AuthorizeResult{
		URL:          gateway.AuthorizationURL(state, oauth.CodeChallengeS256(verifier)),
		CodeVerifier: verifier,
	}, nil
}

// HandleCallback runs the ordered gates: state, redirect, provider
// error, code exchange, identity fetch. The flow is the signed state's
// purpose; the provider echoes nothing else back. Each failure is
// terminal; from the provider-error gate onward failures carry the
// validated redirect URI so the HTTP layer can bounce the user back to
// the client.
func (s *OAuthService) HandleCallback(ctx context.Context, in CallbackInput) (*CallbackResult, error) {
	gateway, ok := s.gateways[in.Provider]
	if !ok {
		return nil, ErrUnknownProvider
	}

	payload, err := s.state.Parse(in.State)
	if err != nil {
		return nil, ErrInvalidState
	}
	flow := payload.Purpose
	switch flow {
	case FlowLogin, FlowSignup, FlowLink:
	default:
		return nil, ErrInvalidState
	}

	if !s.redirectAllowed(payload.ClientPlatform, payload.RedirectURI) {
		return nil, ErrInvalidRedirectURI
	}

	if in.ErrorParam != "" {
		if in.ErrorParam == "access_denied" {
			return nil, &RedirectError{Code: "PROVIDER_ACCESS_DENIED", RedirectURI: payload.RedirectURI, Err: ErrProviderAccessDenied}
		}
		return nil, &RedirectError{Code: "PROVIDER_ERROR", RedirectURI: payload.RedirectURI, Err: ErrProviderError}
	}

	if in.Code == "" {
		return nil, &RedirectError{Code: "TOKEN_EXCHANGE_FAILED", RedirectURI: payload.RedirectURI, Err: ErrTokenExchangeFailed}
	}
	tokens, err := gateway.ExchangeCode(ctx, in.Code, in.CodeVerifier)
	if err != nil {
		return nil, &RedirectError{Code: "TOKEN_EXCHANGE_FAILED", RedirectURI: payload.RedirectURI, Err: ErrTokenExchangeFailed}
	}

	identity, identityErr := gateway.GetIdentity(ctx, tokens)

	// The provider token has served its purpose either way. Revocation
	// failure is logged, never escalated.
	if err := gateway.RevokeToken(ctx, tokens); err != nil {
		s.logger.WarnContext(ctx, "provider token revoke failed",
			slog.String("provider", in.Provider),
			slog.String("error", err.Error()),
		)
	}

	if identityErr != nil {
		return nil, &RedirectError{Code: "GET_IDENTITY_FAILED", RedirectURI: payload.RedirectURI, Err: ErrGetIdentityFailed}
	}

	if flow == FlowLink {
		return s.reconcileLink(payload, identity)
	}
	return s.reconcile(identity, payload.ClientPlatform, payload.RedirectURI, flow)
}

// reconcileLink handles a callback whose state was signed for a
// logged-in user linking a provider. The outcome is never a login
// session: either a redirect error or a link session whose token the
// client confirms via the challenge endpoints.
func (s *OAuthService) reconcileLink(payload security.StatePayload, identity *oauth.Identity) (*CallbackResult, error) {
	existing, err := s.identities.FindByProviderUserID(identity.Provider, identity.ProviderUserID)
	if err != nil && !errors.Is(err, repository.ErrExternalIdentityNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.UserID == payload.UserID {
			return nil, &RedirectError{Code: "PROVIDER_ALREADY_LINKED", RedirectURI: payload.RedirectURI, Err: ErrProviderAlreadyLinked}
		}
		return nil, &RedirectError{Code: "ACCOUNT_ALREADY_LINKED_TO_ANOTHER_USER", RedirectURI: payload.RedirectURI, Err: ErrAccountAlreadyLinkedToAnotherUser}
	}

	user, err := s.users.FindByID(payload.UserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		// The initiating account vanished while the consent screen was
		// open; the state is no longer actionable.
		return nil, ErrInvalidState
	}
	if err != nil {
		return nil, err
	}

	session, token, err := s.createLinkSession(user, identity)
	if err != nil {
		return nil, err
	}
	return nil, &AccountAssociationAvailableError{Session: session, Token: token, RedirectURI: payload.RedirectURI}
}

// reconcile applies the decision table on (known identity, same-email
// user) once the provider identity is in hand.
func (s *OAuthService) reconcile(identity *oauth.Identity, platform, redirectURI, flow string) (*CallbackResult, error) {
	existing, err := s.identities.FindByProviderUserID(identity.Provider, identity.ProviderUserID)
	if err != nil && !errors.Is(err, repository.ErrExternalIdentityNotFound) {
		return nil, err
	}

	if existing != nil {
		if flow == FlowSignup {
			return nil, &RedirectError{Code: "EXTERNAL_IDENTITY_ALREADY_REGISTERED", RedirectURI: redirectURI, Err: ErrExternalIdentityAlreadyRegistered}
		}
		user, err := s.users.FindByID(existing.UserID)
		if err != nil {
			return nil, err
		}
		return s.loginResult(user, platform, redirectURI, "oauth_login")
	}

	sameEmailUser, err := s.users.FindByEmail(identity.Email)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	if sameEmailUser != nil {
		session, token, err := s.createLinkSession(sameEmailUser, identity)
		if err != nil {
			return nil, err
		}
		return nil, &AccountAssociationAvailableError{Session: session, Token: token, RedirectURI: redirectURI}
	}

	if flow == FlowLogin {
		return nil, &RedirectError{Code: "ACCOUNT_ASSOCIATION_NOT_FOUND", RedirectURI: redirectURI, Err: ErrAccountAssociationNotFound}
	}

	// Signup with a fresh identity: the provider has verified the email.
	user := &domain.User{
		ID:            security.NewID(),
		Email:         identity.Email,
		EmailVerified: true,
		Name:          identity.Name,
	}
	if identity.IconURL != "" {
		user.IconURL = &identity.IconURL
	}
	if err := s.users.Create(user); err != nil {
		return nil, err
	}
	if err := s.identities.Create(&domain.ExternalIdentity{
		UserID:         user.ID,
		Provider:       identity.Provider,
		ProviderUserID: identity.ProviderUserID,
	}); err != nil {
		return nil, err
	}
	return s.loginResult(user, platform, redirectURI, "oauth_signup")
}

func (s *OAuthService) loginResult(user *domain.User, platform, redirectURI, event string) (*CallbackResult, error) {
	session, token, err := issueLoginSession(s.loginSessions, user.ID)
	if err != nil {
		return nil, err
	}
	observability.RecordAuthEvent(event)
	return &CallbackResult{
		User:           user,
		Session:        session,
		Token:          token,
		ClientPlatform: platform,
		RedirectURI:    redirectURI,
	}, nil
}

// createLinkSession persists the association proposal. At most one link
// session per user exists at a time.
func (s *OAuthService) createLinkSession(user *domain.User, identity *oauth.Identity) (*domain.AccountLinkSession, string, error) {
	if err := s.linkSessions.DeleteByUserID(user.ID); err != nil {
		return nil, "", err
	}

	creds, err := newSessionCredentials()
	if err != nil {
		return nil, "", err
	}
	session := &domain.AccountLinkSession{
		ID:             creds.id,
		UserID:         user.ID,
		Email:          user.Email,
		SecretHash:     creds.secretHash,
		Provider:       identity.Provider,
		ProviderUserID: identity.ProviderUserID,
		ExpiresAt:      time.Now().UTC().Add(domain.AccountLinkSessionTTL),
	}
	if err := s.linkSessions.Save(session); err != nil {
		return nil, "", err
	}
	return session, creds.token(), nil
}

// redirectAllowed checks the post-login redirect against the platform's
// allow-list: web clients must land on a configured origin, mobile
// clients on a registered deep-link scheme.
func (s *OAuthService) redirectAllowed(platform, redirectURI string) bool {
	if redirectURI == "" {
		return false
	}
	u, err := url.Parse(redirectURI)
	if err != nil {
		return false
	}

	switch platform {
	case PlatformWeb:
		for _, allowed := range s.webRedirects {
			a, err := url.Parse(allowed)
			if err != nil {
				continue
			}
			if u.Scheme == a.Scheme && u.Host == a.Host {
				return true
			}
		}
	case PlatformMobile:
		for _, scheme := range s.mobileSchemes {
			if strings.EqualFold(u.Scheme, scheme) {
				return true
			}
		}
	}
	return false
}
