package service

import (
	"errors"

	"go-identity-service/internal/domain"
	"go-identity-service/internal/observability"
	"go-identity-service/internal/repository"
	"go-identity-service/internal/security"
)

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrLoginSessionInvalid  = errors.New("login session invalid")
	ErrLoginSessionExpired  = errors.New("login session expired")
	ErrPasswordNotSet       = errors.New("password not set")
	ErrInvalidPassword      = errors.New("invalid password")
)

type AuthService struct {
	users         repository.UserRepository
	loginSessions repository.LoginSessionRepository
}

func NewAuthService(users repository.UserRepository, loginSessions repository.LoginSessionRepository) *AuthService {
	return &AuthService{users: users, loginSessions: loginSessions}
}

// Login verifies the email/password pair and issues a fresh login
// session. Unknown emails and wrong passwords are indistinguishable to
// the caller.
func (s *AuthService) Login(email, password string) (*domain.User, *domain.LoginSession, string, error) {
	user, err := s.users.FindByEmail(email)
	if errors.Is(err, repository.ErrUserNotFound) {
		// Burn a hash comparison anyway so response timing does not
		// reveal whether the address is registered.
		security.VerifyPassword(dummyPasswordHash, password)
		return nil, nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, "", err
	}
	if !user.HasPassword() {
		return nil, nil, "", ErrInvalidCredentials
	}
	if !security.VerifyPassword(*user.PasswordHash, password) {
		return nil, nil, "", ErrInvalidCredentials
	}

	session, token, err := issueLoginSession(s.loginSessions, user.ID)
	if err != nil {
		return nil, nil, "", err
	}

	observability.RecordAuthEvent("login")
	return user, session, token, nil
}

// dummyPasswordHash is a bcrypt hash of an unguessable throwaway value,
// compared against when the email lookup misses.
const dummyPasswordHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// Validate resolves a session token to its user. Expired sessions are
// deleted on sight.
func (s *AuthService) Validate(token string) (*domain.User, *domain.LoginSession, error) {
	session, err := validateSessionToken(
		token,
		s.loginSessions.FindByID,
		s.loginSessions.DeleteByID,
		func(sess *domain.LoginSession) string { return sess.SecretHash },
		repository.ErrLoginSessionNotFound,
		ErrLoginSessionInvalid,
		ErrLoginSessionExpired,
	)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.FindByID(session.UserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		// Orphaned session; clean it up.
		if derr := s.loginSessions.DeleteByID(session.ID); derr != nil {
			return nil, nil, derr
		}
		return nil, nil, ErrLoginSessionInvalid
	}
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

func (s *AuthService) Logout(sessionID string) error {
	if err := s.loginSessions.DeleteByID(sessionID); err != nil {
		return err
	}
	observability.RecordAuthEvent("logout")
	return nil
}

// LogoutAll revokes every login session the user holds, including the
// one making the call.
func (s *AuthService) LogoutAll(userID string) error {
	if err := s.loginSessions.DeleteByUserID(userID); err != nil {
		return err
	}
	observability.RecordAuthEvent("logout_all")
	return nil
}

// UpdatePassword changes the user's password and revokes every login
// session except the one making the change.
func (s *AuthService) UpdatePassword(user *domain.User, current *domain.LoginSession, currentPassword, newPassword string) error {
	if user.HasPassword() {
		if !security.VerifyPassword(*user.PasswordHash, currentPassword) {
			return ErrInvalidPassword
		}
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
	// Put the caller's session back so their token keeps working.
	if err := s.loginSessions.Create(current); err != nil {
		return err
	}

	observability.RecordAuthEvent("password_updated")
	return nil
}
