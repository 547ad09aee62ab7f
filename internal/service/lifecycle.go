package service

import (
	"errors"
	"time"

	"go-identity-service/internal/domain"
	"go-identity-service/internal/repository"
	"go-identity-service/internal/security"
)

// The five session kinds share one lifecycle: decode the bearer token,
// load the record by id, treat expired rows as absent (and delete them
// on sight), verify the secret in constant time. The helpers here keep
// the kinds from drifting apart.

type expirable interface {
	IsExpired(now time.Time) bool
}

type sessionCredentials struct {
	id         string
	secret     string
	secretHash string
}

func newSessionCredentials() (sessionCredentials, error) {
	secret, err := security.GenerateSessionSecret()
	if err != nil {
		return sessionCredentials{}, err
	}
	return sessionCredentials{
		id:         security.NewID(),
		secret:     secret,
		secretHash: security.HashSessionSecret(secret),
	}, nil
}

func (c sessionCredentials) token() string {
	return security.EncodeToken(c.id, c.secret)
}

// validateSessionToken is the shared Validate step. Not-found and
// bad-secret collapse into errInvalid so responses cannot be used as a
// lookup oracle; expiry is reported separately because the user can
// recover from it by restarting the flow.
func validateSessionToken[S expirable](
	token string,
	findByID func(id string) (S, error),
	deleteByID func(id string) error,
	secretHash func(S) string,
	notFound, errInvalid, errExpired error,
) (S, error) {
	var zero S

	id, secret, ok := security.DecodeToken(token)
	if !ok {
		return zero, errInvalid
	}

	session, err := findByID(id)
	if err != nil {
		if errors.Is(err, notFound) {
			return zero, errInvalid
		}
		return zero, err
	}

	if session.IsExpired(time.Now().UTC()) {
		if err := deleteByID(id); err != nil {
			return zero, err
		}
		return zero, errExpired
	}

	if !security.VerifySessionSecret(secret, secretHash(session)) {
		return zero, errInvalid
	}
	return session, nil
}

// issueLoginSession creates a fresh login session for the user and
// returns it with its bearer token.
func issueLoginSession(repo repository.LoginSessionRepository, userID string) (*domain.LoginSession, string, error) {
	creds, err := newSessionCredentials()
	if err != nil {
		return nil, "", err
	}
	session := &domain.LoginSession{
		ID:         creds.id,
		UserID:     userID,
		SecretHash: creds.secretHash,
		ExpiresAt:  time.Now().UTC().Add(domain.LoginSessionTTL),
	}
	if err := repo.Create(session); err != nil {
		return nil, "", err
	}
	return session, creds.token(), nil
}
