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
	ErrUserNotFound                = errors.New("user not found")
	ErrPasswordResetSessionInvalid = errors.New("password reset session invalid")
	ErrPasswordResetSessionExpired = errors.New("password reset session expired")
)

type PasswordResetService struct {
	users         repository.UserRepository
	resetSessions repository.PasswordResetSessionRepository
	loginSessions repository.LoginSessionRepository
	email         EmailGateway
}

func NewPasswordResetService(
	users repository.UserRepository,
	resetSessions repository.PasswordResetSessionRepository,
	loginSessions repository.LoginSessionRepository,
	email EmailGateway,
) *PasswordResetService {
	return &PasswordResetService{
		users:         users,
		resetSessions: resetSessions,
		loginSessions: loginSessions,
		email:         email,
	}
}

func (s *PasswordResetService) Request(ctx context.Context, email string) (*domain.PasswordResetSession, string, error) {
	user, err := s.users.FindByEmail(email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, "", ErrUserNotFound
	}
	if err != nil {
		return nil, "", err
	}

	if err := s.resetSessions.DeleteByUserID(user.ID); err != nil {
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

	session := &domain.PasswordResetSession{
		ID:         creds.id,
		UserID:     user.ID,
		Email:      user.Email,
		SecretHash: creds.secretHash,
		Code:       code,
		ExpiresAt:  time.Now().UTC().Add(domain.PasswordResetSessionTTL),
	}
	if err := s.resetSessions.Save(session); err != nil {
		return nil, "", err
	}

	if err := s.email.SendVerificationEmail(ctx, session.Email, session.Code); err != nil {
		return nil, "", err
	}

	observability.RecordAuthEvent("password_reset_request")
	return session, creds.token(), nil
}

// Validate resolves a reset token. A session whose denormalized email no
// longer matches the user's current address is treated as invalid: the
// address changed after the reset was requested.
func (s *PasswordResetService) Validate(token string) (*domain.PasswordResetSession, *domain.User, error) {
	session, err := validateSessionToken(
		token,
		s.resetSessions.FindByID,
		s.resetSessions.DeleteByID,
		func(sess *domain.PasswordResetSession) string { return sess.SecretHash },
		repository.ErrPasswordResetSessionNotFound,
		ErrPasswordResetSessionInvalid,
		ErrPasswordResetSessionExpired,
	)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.FindByID(session.UserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		if derr := s.resetSessions.DeleteByID(session.ID); derr != nil {
			return nil, nil, derr
		}
		return nil, nil, ErrPasswordResetSessionInvalid
	}
	if err != nil {
		return nil, nil, err
	}
	if session.Email != user.Email {
		if derr := s.resetSessions.DeleteByID(session.ID); derr != nil {
			return nil, nil, derr
		}
		return nil, nil, ErrPasswordResetSessionInvalid
	}
	return session, user, nil
}

func (s *PasswordResetService) VerifyEmail(code string, session *domain.PasswordResetSession) error {
	if session.EmailVerified {
		return ErrAlreadyVerified
	}
	if !security.TimingSafeEqual(session.Code, code) {
		return ErrInvalidVerificationCode
	}

	session.EmailVerified = true
	return s.resetSessions.Save(session)
}

// Reset sets the new password and revokes every login session, forcing
// re-authentication everywhere. The reset session is deleted last.
func (s *PasswordResetService) Reset(session *domain.PasswordResetSession, user *domain.User, newPassword string) error {
	if !session.EmailVerified {
		return ErrEmailVerificationRequired
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = &hash
	if err := s.users.Update(user); err != nil {
		return err
	}

	if err := s.loginSessions.DeleteByUserID(user.ID); err != nil {
		return err
	}
	if err := s.resetSessions.DeleteByID(session.ID); err != nil {
		return err
	}

	observability.RecordAuthEvent("password_reset")
	return nil
}
