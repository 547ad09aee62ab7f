package service

import (
	"context"
	"errors"

	"go-identity-service/internal/domain"
	"go-identity-service/internal/observability"
	"go-identity-service/internal/repository"
	"go-identity-service/internal/security"
)

var (
	ErrAccountLinkSessionInvalid         = errors.New("account link session invalid")
	ErrAccountLinkSessionExpired         = errors.New("account link session expired")
	ErrChallengeNotIssued                = errors.New("link challenge not issued")
	ErrProviderAlreadyLinked             = errors.New("provider already linked to this account")
	ErrAccountAlreadyLinkedToAnotherUser = errors.New("identity already linked to another account")
)

// AccountLinkService finishes what the OAuth callback proposed: proving
// by emailed code that the person holding the link session also owns
// the local account, then persisting the provider link.
type AccountLinkService struct {
	users         repository.UserRepository
	identities    repository.ExternalIdentityRepository
	linkSessions  repository.AccountLinkSessionRepository
	loginSessions repository.LoginSessionRepository
	email         EmailGateway
}

func NewAccountLinkService(
	users repository.UserRepository,
	identities repository.ExternalIdentityRepository,
	linkSessions repository.AccountLinkSessionRepository,
	loginSessions repository.LoginSessionRepository,
	email EmailGateway,
) *AccountLinkService {
	return &AccountLinkService{
		users:         users,
		identities:    identities,
		linkSessions:  linkSessions,
		loginSessions: loginSessions,
		email:         email,
	}
}

func (s *AccountLinkService) Validate(token string) (*domain.AccountLinkSession, error) {
	return validateSessionToken(
		token,
		s.linkSessions.FindByID,
		s.linkSessions.DeleteByID,
		func(sess *domain.AccountLinkSession) string { return sess.SecretHash },
		repository.ErrAccountLinkSessionNotFound,
		ErrAccountLinkSessionInvalid,
		ErrAccountLinkSessionExpired,
	)
}

// Challenge generates the session's verification code and emails it to
// the account's address. Calling it again rotates the code.
func (s *AccountLinkService) Challenge(ctx context.Context, session *domain.AccountLinkSession) error {
	code, err := security.GenerateVerificationCode()
	if err != nil {
		return err
	}
	session.Code = &code
	if err := s.linkSessions.Save(session); err != nil {
		return err
	}
	return s.email.SendVerificationEmail(ctx, session.Email, code)
}

// Confirm consumes the code and persists the external identity link,
// issuing a fresh login session. Conflict outcomes delete the link
// session so a stale proposal cannot be retried indefinitely.
func (s *AccountLinkService) Confirm(session *domain.AccountLinkSession, code string) (*domain.User, *domain.LoginSession, string, error) {
	if session.Code == nil {
		return nil, nil, "", ErrChallengeNotIssued
	}
	if !security.TimingSafeEqual(*session.Code, code) {
		return nil, nil, "", ErrInvalidVerificationCode
	}

	user, err := s.users.FindByID(session.UserID)
	if err != nil {
		return nil, nil, "", err
	}

	if _, err := s.identities.FindByUserIDAndProvider(user.ID, session.Provider); err == nil {
		if derr := s.linkSessions.DeleteByID(session.ID); derr != nil {
			return nil, nil, "", derr
		}
		return nil, nil, "", ErrProviderAlreadyLinked
	} else if !errors.Is(err, repository.ErrExternalIdentityNotFound) {
		return nil, nil, "", err
	}

	if existing, err := s.identities.FindByProviderUserID(session.Provider, session.ProviderUserID); err == nil && existing.UserID != user.ID {
		if derr := s.linkSessions.DeleteByID(session.ID); derr != nil {
			return nil, nil, "", derr
		}
		return nil, nil, "", ErrAccountAlreadyLinkedToAnotherUser
	} else if err != nil && !errors.Is(err, repository.ErrExternalIdentityNotFound) {
		return nil, nil, "", err
	}

	if err := s.identities.Create(&domain.ExternalIdentity{
		UserID:         user.ID,
		Provider:       session.Provider,
		ProviderUserID: session.ProviderUserID,
	}); err != nil {
		return nil, nil, "", err
	}

	// Control of the emailed code proves control of the address.
	if !user.EmailVerified {
		user.EmailVerified = true
		if err := s.users.Update(user); err != nil {
			return nil, nil, "", err
		}
	}

	loginSession, token, err := issueLoginSession(s.loginSessions, user.ID)
	if err != nil {
		return nil, nil, "", err
	}

	if err := s.linkSessions.DeleteByID(session.ID); err != nil {
		return nil, nil, "", err
	}

	observability.RecordAuthEvent("account_linked")
	return user, loginSession, token, nil
}

// Unlink removes a provider link. It refuses when the account has no
// password: the link would be the only way in.
func (s *AccountLinkService) Unlink(user *domain.User, provider string) error {
	if !user.HasPassword() {
		return ErrPasswordNotSet
	}
	if _, err := s.identities.FindByUserIDAndProvider(user.ID, provider); err != nil {
		if errors.Is(err, repository.ErrExternalIdentityNotFound) {
			return ErrExternalIdentityNotLinked
		}
		return err
	}
	if err := s.identities.DeleteByUserIDAndProvider(user.ID, provider); err != nil {
		return err
	}
	observability.RecordAuthEvent("account_unlinked")
	return nil
}

var ErrExternalIdentityNotLinked = errors.New("provider not linked to this account")
