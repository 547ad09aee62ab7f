package service

import (
	"context"
	"log/slog"
	"time"

	"go-identity-service/internal/observability"
	"go-identity-service/internal/repository"
)

// SessionSweeper periodically deletes expired rows from every session
// table. Validation already treats expired rows as absent; the sweeper
// just keeps the tables from growing without bound.
type SessionSweeper struct {
	loginSessions        repository.LoginSessionRepository
	signupSessions       repository.SignupSessionRepository
	resetSessions        repository.PasswordResetSessionRepository
	verificationSessions repository.EmailVerificationSessionRepository
	linkSessions         repository.AccountLinkSessionRepository
	interval             time.Duration
	logger               *slog.Logger
}

func NewSessionSweeper(
	loginSessions repository.LoginSessionRepository,
	signupSessions repository.SignupSessionRepository,
	resetSessions repository.PasswordResetSessionRepository,
	verificationSessions repository.EmailVerificationSessionRepository,
	linkSessions repository.AccountLinkSessionRepository,
	interval time.Duration,
	logger *slog.Logger,
) *SessionSweeper {
	return &SessionSweeper{
		loginSessions:        loginSessions,
		signupSessions:       signupSessions,
		resetSessions:        resetSessions,
		verificationSessions: verificationSessions,
		linkSessions:         linkSessions,
		interval:             interval,
		logger:               logger,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval. It
// sweeps once immediately on start.
func (s *SessionSweeper) Run(ctx context.Context) {
	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce deletes expired rows across all session tables. Per-table
// failures are logged and do not stop the remaining tables.
func (s *SessionSweeper) SweepOnce(ctx context.Context) {
	now := time.Now().UTC()
	tables := []struct {
		kind   string
		sweep  func(time.Time) (int64, error)
	}{
		{"login", s.loginSessions.DeleteExpired},
		{"signup", s.signupSessions.DeleteExpired},
		{"password_reset", s.resetSessions.DeleteExpired},
		{"email_verification", s.verificationSessions.DeleteExpired},
		{"account_link", s.linkSessions.DeleteExpired},
	}

	for _, t := range tables {
		n, err := t.sweep(now)
		if err != nil {
			s.logger.ErrorContext(ctx, "session sweep failed",
				slog.String("kind", t.kind),
				slog.String("error", err.Error()),
			)
			continue
		}
		if n > 0 {
			observability.RecordSessionsSwept(t.kind, n)
			s.logger.InfoContext(ctx, "swept expired sessions",
				slog.String("kind", t.kind),
				slog.Int64("deleted", n),
			)
		}
	}
}
