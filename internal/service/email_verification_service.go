package service

import (
	"context"
	"errors"
	"time"

	"go-identity-service/internal/domain"
	"go-identity-service/internal/observability"
	"go-identity-service/internal/repository"
	"go-identity-service/internal/security"
)

var (
	ErrEmailVerificationSessionInvalid = errors.New("email verification session invalid")
	ErrEmailVerificationSessionExpired = errors.New("email verification session expired")
	ErrEmailMismatch                   = errors.New("session does not belong to this user")
)

// EmailVerificationService drives the logged-in email change flow: the
// user proves control of the new address before it replaces the old one.
type EmailVerificationService struct {
	users                repository.UserRepository
	verificationSessions repository.EmailVerificationSessionRepository
	loginSessions        repository.LoginSessionRepository
	email                EmailGateway
}

func NewEmailVerificationService(
	users repository.UserRepository,
	verificationSessions repository.EmailVerificationSessionRepository,
	loginSessions repository.LoginSessionRepository,
	email EmailGateway,
) *EmailVerificationService {
	return &EmailVerificationService{
		users:                users,
		verificationSessions: verificationSessions,
		loginSessions:        loginSessions,
		email:                email,
	}
}

func (s *EmailVerificationService) Request(ctx context.Context, user *domain.User, newEmail string) (*domain.EmailVerificationSession, string, error) {
	if _, err := s.users.FindByEmail(newEmail); err == nil {
		return nil, "", ErrEmailAlreadyRegistered
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, "", err
	}

	if err := s.verificationSessions.DeleteByUserID(user.ID); err != nil {
		return nil, "", err
	}

	creds, err := newSessionCredentials()
	if err != nil {
		return nil, "", err
	}
	code, err := security.GenerateVerificationCode()
	if err != nil {
		return nil, "", err
	}

	session := &domain.EmailVerificationSession{
		ID:         creds.id,
		UserID:     user.ID,
		Email:      newEmail,
		SecretHash: creds.secretHash,
		Code:       code,
		ExpiresAt:  time.Now().UTC().Add(domain.EmailVerificationSessionTTL),
	}
	if err := s.verificationSessions.Save(session); err != nil {
		return nil, "", err
	}

	// The code goes to the address being claimed, not the current one.
	if err := s.email.SendVerificationEmail(ctx, session.Email, session.Code); err != nil {
		return nil, "", err
	}

	observability.RecordAuthEvent("email_change_request")
	return session, creds.token(), nil
}

func (s *EmailVerificationService) Validate(token string) (*domain.EmailVerificationSession, error) {
	return validateSessionToken(
		token,
		s.verificationSessions.FindByID,
		s.verificationSessions.DeleteByID,
		func(sess *domain.EmailVerificationSession) string { return sess.SecretHash },
		repository.ErrEmailVerificationSessionNotFound,
		ErrEmailVerificationSessionInvalid,
		ErrEmailVerificationSessionExpired,
	)
}

// Confirm consumes the code and swaps the user's email. All login
// sessions except the caller's are revoked; the caller keeps theirs.
func (s *EmailVerificationService) Confirm(session *domain.EmailVerificationSession, user *domain.User, current *domain.LoginSession, code string) error {
	if session.UserID != user.ID {
		return ErrEmailMismatch
	}
	if !security.TimingSafeEqual(session.Code, code) {
		return ErrInvalidVerificationCode
	}

	// The address may have been claimed while the code was in flight.
	if _, err := s.users.FindByEmail(session.Email); err == nil {
		if derr := s.verificationSessions.DeleteByID(session.ID); derr != nil {
			return derr
		}
		return ErrEmailAlreadyRegistered
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return err
	}

	user.Email = session.Email
	user.EmailVerified = true
	if err := s.users.Update(user); err != nil {
		return err
	}

	if err := s.loginSessions.DeleteByUserID(user.ID); err != nil {
		return err
	}
	if err := s.loginSessions.Create(current); err != nil {
		return err
	}

	if err := s.verificationSessions.DeleteByID(session.ID); err != nil {
		return err
	}

	observability.RecordAuthEvent("email_changed")
	return nil
}
