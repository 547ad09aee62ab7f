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
	ErrEmailAlreadyRegistered    = errors.New("email already registered")
	ErrSignupSessionInvalid      = errors.New("signup session invalid")
	ErrSignupSessionExpired      = errors.New("signup session expired")
	ErrInvalidVerificationCode   = errors.New("invalid verification code")
	ErrAlreadyVerified           = errors.New("email already verified")
	ErrEmailVerificationRequired = errors.New("email verification required")
)

type SignupService struct {
	users          repository.UserRepository
	signupSessions repository.SignupSessionRepository
	loginSessions  repository.LoginSessionRepository
	email          EmailGateway
}

func NewSignupService(
	users repository.UserRepository,
	signupSessions repository.SignupSessionRepository,
	loginSessions repository.LoginSessionRepository,
	email EmailGateway,
) *SignupService {
	return &SignupService{
		users:          users,
		signupSessions: signupSessions,
		loginSessions:  loginSessions,
		email:          email,
	}
}

// Request starts a signup for an unregistered email. Any prior signup
// session for the address is invalidated first, so at most one is ever
// live per email.
func (s *SignupService) Request(ctx context.Context, email string) (*domain.SignupSession, string, error) {
	if _, err := s.users.FindByEmail(email); err == nil {
		return nil, "", ErrEmailAlreadyRegistered
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, "", err
	}

	if err := s.signupSessions.DeleteByEmail(email); err != nil {
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

	session := &domain.SignupSession{
		ID:         creds.id,
		Email:      email,
		SecretHash: creds.secretHash,
		Code:       code,
		ExpiresAt:  time.Now().UTC().Add(domain.SignupSessionTTL),
	}
	if err := s.signupSessions.Save(session); err != nil {
		return nil, "", err
	}

	if err := s.email.SendVerificationEmail(ctx, session.Email, session.Code); err != nil {
		return nil, "", err
	}

	observability.RecordAuthEvent("signup_request")
	return session, creds.token(), nil
}

func (s *SignupService) Validate(token string) (*domain.SignupSession, error) {
	return validateSessionToken(
		token,
		s.signupSessions.FindByID,
		s.signupSessions.DeleteByID,
		func(sess *domain.SignupSession) string { return sess.SecretHash },
		repository.ErrSignupSessionNotFound,
		ErrSignupSessionInvalid,
		ErrSignupSessionExpired,
	)
}

// VerifyEmail consumes the emailed code. On success the session enters
// its verified phase and the expiry is extended so the user has time to
// finish registration.
func (s *SignupService) VerifyEmail(code string, session *domain.SignupSession) error {
	if session.EmailVerified {
		return ErrAlreadyVerified
	}
	if !security.TimingSafeEqual(session.Code, code) {
		return ErrInvalidVerificationCode
	}

	session.EmailVerified = true
	session.ExpiresAt = time.Now().UTC().Add(domain.SignupSessionVerifiedTTL)
	if err := s.signupSessions.Save(session); err != nil {
		return err
	}
	observability.RecordAuthEvent("signup_email_verified")
	return nil
}

// Confirm finishes registration: it creates the user and their first
// login session. The signup session is deleted last so a crash mid-way
// leaves the flow re-confirmable instead of losing the account.
func (s *SignupService) Confirm(session *domain.SignupSession, name, password string, gender domain.Gender) (*domain.User, *domain.LoginSession, string, error) {
	if !session.EmailVerified {
		return nil, nil, "", ErrEmailVerificationRequired
	}

	if _, err := s.users.FindByEmail(session.Email); err == nil {
		// The address was registered while this signup was pending.
		if err := s.signupSessions.DeleteByID(session.ID); err != nil {
			return nil, nil, "", err
		}
		return nil, nil, "", ErrEmailAlreadyRegistered
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, nil, "", err
	}

	passwordHash, err := security.HashPassword(password)
	if err != nil {
		return nil, nil, "", err
	}

	user := &domain.User{
		ID:            security.NewID(),
		Email:         session.Email,
		EmailVerified: true,
		Name:          name,
		Gender:        gender,
		PasswordHash:  &passwordHash,
	}
	if err := s.users.Create(user); err != nil {
		return nil, nil, "", err
	}

	loginSession, loginToken, err := issueLoginSession(s.loginSessions, user.ID)
	if err != nil {
		return nil, nil, "", err
	}

	if err := s.signupSessions.DeleteByID(session.ID); err != nil {
		return nil, nil, "", err
	}

	observability.RecordAuthEvent("signup_confirmed")
	return user, loginSession, loginToken, nil
}
