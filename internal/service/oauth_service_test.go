package service

import (
	"context"
	"errors"
	"testing"

	"go-identity-service/internal/domain"
	"go-identity-service/internal/oauth"
	"go-identity-service/internal/repository"
	"go-identity-service/internal/security"
)

type oauthTestEnv struct {
	svc           *OAuthService
	gateway       *stubOAuthGateway
	signer        *security.StateSigner
	users         repository.UserRepository
	identities    repository.ExternalIdentityRepository
	loginSessions repository.LoginSessionRepository
	linkSessions  repository.AccountLinkSessionRepository
}

func newOAuthServiceForTest(t *testing.T) *oauthTestEnv {
	t.Helper()
	db := newServiceDBForTest(t)
	users := repository.NewUserRepository(db)
	identities := repository.NewExternalIdentityRepository(db)
	loginSessions := repository.NewLoginSessionRepository(db)
	linkSessions := repository.NewAccountLinkSessionRepository(db)
	gateway := &stubOAuthGateway{}
	signer := security.NewStateSigner("test-state-signing-secret")

	svc := NewOAuthService(
		users, identities, loginSessions, linkSessions,
		map[string]oauth.Gateway{domain.ProviderGoogle: gateway},
		signer,
		[]string{"https://app.example.com"},
		[]string{"app"},
		discardLogger(),
	)
	return &oauthTestEnv{
		svc:           svc,
		gateway:       gateway,
		signer:        signer,
		users:         users,
		identities:    identities,
		loginSessions: loginSessions,
		linkSessions:  linkSessions,
	}
}

func (e *oauthTestEnv) signedState(t *testing.T, flow string) string {
	t.Helper()
	state, err := e.signer.Sign(security.StatePayload{
		Purpose:        flow,
		ClientPlatform: PlatformWeb,
		RedirectURI:    "https://app.example.com/done",
	})
	if err != nil {
		t.Fatalf("sign state: %v", err)
	}
	return state
}

func (e *oauthTestEnv) signedLinkState(t *testing.T, userID string) string {
	t.Helper()
	state, err := e.signer.Sign(security.StatePayload{
		Purpose:        FlowLink,
		ClientPlatform: PlatformWeb,
		RedirectURI:    "https://app.example.com/done",
		UserID:         userID,
	})
	if err != nil {
		t.Fatalf("sign link state: %v", err)
	}
	return state
}

func TestAuthorizeURL(t *testing.T) {
	env := newOAuthServiceForTest(t)

	result, err := env.svc.AuthorizeURL(AuthorizeRequest{
		Provider:       domain.ProviderGoogle,
		Flow:           FlowLogin,
		ClientPlatform: PlatformWeb,
		RedirectURI:    "https://app.example.com/done",
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if result.URL == "" || result.CodeVerifier == "" {
		t.Fatalf("result=%+v", result)
	}
}

func TestAuthorizeURLRejectsUnknownProviderAndRedirect(t *testing.T) {
	env := newOAuthServiceForTest(t)

	if _, err := env.svc.AuthorizeURL(AuthorizeRequest{Provider: "github", Flow: FlowLogin, ClientPlatform: PlatformWeb, RedirectURI: "https://app.example.com/x"}); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("unknown provider: %v", err)
	}
	if _, err := env.svc.AuthorizeURL(AuthorizeRequest{Provider: domain.ProviderGoogle, Flow: FlowLogin, ClientPlatform: PlatformWeb, RedirectURI: "https://evil.example.com/x"}); !errors.Is(err, ErrInvalidRedirectURI) {
		t.Fatalf("bad redirect: %v", err)
	}
	// A mobile deep link is fine for the mobile platform only.
	if _, err := env.svc.AuthorizeURL(AuthorizeRequest{Provider: domain.ProviderGoogle, Flow: FlowLogin, ClientPlatform: PlatformMobile, RedirectURI: "app://callback"}); err != nil {
		t.Fatalf("mobile deep link: %v", err)
	}
	if _, err := env.svc.AuthorizeURL(AuthorizeRequest{Provider: domain.ProviderGoogle, Flow: FlowLogin, ClientPlatform: PlatformWeb, RedirectURI: "app://callback"}); !errors.Is(err, ErrInvalidRedirectURI) {
		t.Fatalf("deep link on web: %v", err)
	}
}

func TestCallbackInvalidState(t *testing.T) {
	env := newOAuthServiceForTest(t)

	if _, err := env.svc.HandleCallback(context.Background(), CallbackInput{
		Provider: domain.ProviderGoogle,
		State:    "garbage",
		Code:     "code",
	}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("want ErrInvalidState, got %v", err)
	}

	// A state signed for a purpose outside the flow set is rejected
	// before any provider call.
	foreignState := env.signedState(t, "password_reset")
	if _, err := env.svc.HandleCallback(context.Background(), CallbackInput{
		Provider: domain.ProviderGoogle,
		State:    foreignState,
		Code:     "code",
	}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("foreign purpose state: %v", err)
	}
}

func TestCallbackProviderDenied(t *testing.T) {
	env := newOAuthServiceForTest(t)
	state := env.signedState(t, FlowLogin)

	_, err := env.svc.HandleCallback(context.Background(), CallbackInput{
		Provider:   domain.ProviderGoogle,
		State:      state,
		ErrorParam: "access_denied",
	})
	var redirectErr *RedirectError
	if !errors.As(err, &redirectErr) {
		t.Fatalf("want RedirectError, got %v", err)
	}
	if redirectErr.Code != "PROVIDER_ACCESS_DENIED" || redirectErr.RedirectURI != "https://app.example.com/done" {
		t.Fatalf("redirect error=%+v", redirectErr)
	}
	if !errors.Is(err, ErrProviderAccessDenied) {
		t.Fatalf("unwrap: %v", err)
	}
}

func TestCallbackTokenExchangeFailed(t *testing.T) {
	env := newOAuthServiceForTest(t)
	env.gateway.exchangeCode = func(context.Context, string, string) (*oauth.Tokens, error) {
		return nil, errors.New("provider said no")
	}
	state := env.signedState(t, FlowLogin)

	_, err := env.svc.HandleCallback(context.Background(), CallbackInput{
		Provider: domain.ProviderGoogle,
		State:    state,
		Code:     "bad-code",
	})
	if !errors.Is(err, ErrTokenExchangeFailed) {
		t.Fatalf("want ErrTokenExchangeFailed, got %v", err)
	}
}

func TestCallbackIdentityFailureStillRevokes(t *testing.T) {
	env := newOAuthServiceForTest(t)
	env.gateway.getIdentity = func(context.Context, *oauth.Tokens) (*oauth.Identity, error) {
		return nil, errors.New("userinfo 500")
	}
	state := env.signedState(t, FlowLogin)

	_, err := env.svc.HandleCallback(context.Background(), CallbackInput{
		Provider: domain.ProviderGoogle,
		State:    state,
		Code:     "code",
	})
	if !errors.Is(err, ErrGetIdentityFailed) {
		t.Fatalf("want ErrGetIdentityFailed, got %v", err)
	}
	if env.gateway.revoked != 1 {
		t.Fatalf("revoke called %d times", env.gateway.revoked)
	}
}

func TestLoginCallbackKnownIdentity(t *testing.T) {
	env := newOAuthServiceForTest(t)
	user := createUserForTest(t, env.users, "user@example.com", "pw123456")
	if err := env.identities.Create(&domain.ExternalIdentity{
		UserID:         user.ID,
		Provider:       domain.ProviderGoogle,
		ProviderUserID: "g-1",
	}); err != nil {
		t.Fatalf("create identity: %v", err)
	}
	state := env.signedState(t, FlowLogin)

	result, err := env.svc.HandleCallback(context.Background(), CallbackInput{
		Provider: domain.ProviderGoogle,
		State:    state,
		Code:     "code",
	})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if result.User.ID != user.ID {
		t.Fatalf("logged in as %q", result.User.ID)
	}
	if result.Session == nil || result.Token == "" {
		t.Fatal("no login session issued")
	}
	if result.RedirectURI != "https://app.example.com/done" || result.ClientPlatform != PlatformWeb {
		t.Fatalf("result context=%+v", result)
	}
}

func TestLoginCallbackSameEmailProposesLink(t *testing.T) {
	env := newOAuthServiceForTest(t)
	user := createUserForTest(t, env.users, "user@example.com", "pw123456")
	state := env.signedState(t, FlowLogin)

	_, err := env.svc.HandleCallback(context.Background(), CallbackInput{
		Provider: domain.ProviderGoogle,
		State:    state,
		Code:     "code",
	})
	var assocErr *AccountAssociationAvailableError
	if !errors.As(err, &assocErr) {
		t.Fatalf("want AccountAssociationAvailableError, got %v", err)
	}
	if assocErr.Session.UserID != user.ID || assocErr.Session.Provider != domain.ProviderGoogle {
		t.Fatalf("link session=%+v", assocErr.Session)
	}
	if assocErr.Session.Code != nil {
		t.Fatal("code must stay nil until challenged")
	}
	if _, err := env.linkSessions.FindByID(assocErr.Session.ID); err != nil {
		t.Fatalf("link session not persisted: %v", err)
	}
	// No login session yet.
	if id, _, ok := security.DecodeToken(assocErr.Token); !ok || id != assocErr.Session.ID {
		t.Fatalf("link token=%q", assocErr.Token)
	}
}

func TestLoginCallbackUnknownIdentity(t *testing.T) {
	env := newOAuthServiceForTest(t)
	state := env.signedState(t, FlowLogin)

	_, err := env.svc.HandleCallback(context.Background(), CallbackInput{
		Provider: domain.ProviderGoogle,
		State:    state,
		Code:     "code",
	})
	if !errors.Is(err, ErrAccountAssociationNotFound) {
		t.Fatalf("want ErrAccountAssociationNotFound, got %v", err)
	}
}

func TestSignupCallbackCreatesUser(t *testing.T) {
	env := newOAuthServiceForTest(t)
	state := env.signedState(t, FlowSignup)

	result, err := env.svc.HandleCallback(context.Background(), CallbackInput{
		Provider: domain.ProviderGoogle,
		State:    state,
		Code:     "code",
	})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if result.User.Email != "user@example.com" || !result.User.EmailVerified {
		t.Fatalf("user=%+v", result.User)
	}
	if result.User.HasPassword() {
		t.Fatal("oauth signup must not set a password")
	}
	if _, err := env.identities.FindByProviderUserID(domain.ProviderGoogle, "g-1"); err != nil {
		t.Fatalf("identity not linked: %v", err)
	}
	if result.Session == nil || result.Token == "" {
		t.Fatal("no login session issued")
	}
}

func TestSignupCallbackExistingIdentity(t *testing.T) {
	env := newOAuthServiceForTest(t)
	user := createUserForTest(t, env.users, "user@example.com", "pw123456")
	if err := env.identities.Create(&domain.ExternalIdentity{
		UserID:         user.ID,
		Provider:       domain.ProviderGoogle,
		ProviderUserID: "g-1",
	}); err != nil {
		t.Fatalf("create identity: %v", err)
	}
	state := env.signedState(t, FlowSignup)

	_, err := env.svc.HandleCallback(context.Background(), CallbackInput{
		Provider: domain.ProviderGoogle,
		State:    state,
		Code:     "code",
	})
	if !errors.Is(err, ErrExternalIdentityAlreadyRegistered) {
		t.Fatalf("want ErrExternalIdentityAlreadyRegistered, got %v", err)
	}
}

func TestLinkCallbackCreatesLinkSession(t *testing.T) {
	env := newOAuthServiceForTest(t)
	user := createUserForTest(t, env.users, "owner@example.com", "pw123456")
	state := env.signedLinkState(t, user.ID)

	_, err := env.svc.HandleCallback(context.Background(), CallbackInput{
		Provider: domain.ProviderGoogle,
		State:    state,
		Code:     "code",
	})
	var assocErr *AccountAssociationAvailableError
	if !errors.As(err, &assocErr) {
		t.Fatalf("want AccountAssociationAvailableError, got %v", err)
	}
	if assocErr.Session.UserID != user.ID || assocErr.Session.Provider != domain.ProviderGoogle {
		t.Fatalf("link session=%+v", assocErr.Session)
	}
	if assocErr.RedirectURI != "https://app.example.com/done" {
		t.Fatalf("redirect=%q", assocErr.RedirectURI)
	}
	if _, err := env.linkSessions.FindByID(assocErr.Session.ID); err != nil {
		t.Fatalf("link session not persisted: %v", err)
	}
}

func TestLinkCallbackProviderAlreadyLinked(t *testing.T) {
	env := newOAuthServiceForTest(t)
	user := createUserForTest(t, env.users, "owner@example.com", "pw123456")
	if err := env.identities.Create(&domain.ExternalIdentity{
		UserID:         user.ID,
		Provider:       domain.ProviderGoogle,
		ProviderUserID: "g-1",
	}); err != nil {
		t.Fatalf("create identity: %v", err)
	}
	state := env.signedLinkState(t, user.ID)

	_, err := env.svc.HandleCallback(context.Background(), CallbackInput{
		Provider: domain.ProviderGoogle,
		State:    state,
		Code:     "code",
	})
	if !errors.Is(err, ErrProviderAlreadyLinked) {
		t.Fatalf("want ErrProviderAlreadyLinked, got %v", err)
	}
	var redirectErr *RedirectError
	if !errors.As(err, &redirectErr) || redirectErr.Code != "PROVIDER_ALREADY_LINKED" {
		t.Fatalf("redirect error=%v", err)
	}
}

func TestLinkCallbackIdentityOwnedByAnotherUser(t *testing.T) {
	env := newOAuthServiceForTest(t)
	owner := createUserForTest(t, env.users, "owner@example.com", "pw123456")
	other := createUserForTest(t, env.users, "other@example.com", "pw123456")
	if err := env.identities.Create(&domain.ExternalIdentity{
		UserID:         owner.ID,
		Provider:       domain.ProviderGoogle,
		ProviderUserID: "g-1",
	}); err != nil {
		t.Fatalf("create identity: %v", err)
	}
	state := env.signedLinkState(t, other.ID)

	_, err := env.svc.HandleCallback(context.Background(), CallbackInput{
		Provider: domain.ProviderGoogle,
		State:    state,
		Code:     "code",
	})
	if !errors.Is(err, ErrAccountAlreadyLinkedToAnotherUser) {
		t.Fatalf("want ErrAccountAlreadyLinkedToAnotherUser, got %v", err)
	}
}

func TestLinkCallbackVanishedUser(t *testing.T) {
	env := newOAuthServiceForTest(t)
	state := env.signedLinkState(t, "01JUSERGONE00000000000000")

	_, err := env.svc.HandleCallback(context.Background(), CallbackInput{
		Provider: domain.ProviderGoogle,
		State:    state,
		Code:     "code",
	})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("want ErrInvalidState, got %v", err)
	}
}
