package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"go-identity-service/internal/domain"
	"go-identity-service/internal/oauth"
	"go-identity-service/internal/repository"
	"go-identity-service/internal/security"
)

func newServiceDBForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.User{},
		&domain.LoginSession{},
		&domain.SignupSession{},
		&domain.PasswordResetSession{},
		&domain.EmailVerificationSession{},
		&domain.AccountLinkSession{},
		&domain.ExternalIdentity{},
	); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// capturingEmailGateway records what would have been mailed.
type capturingEmailGateway struct {
	sent      int
	lastEmail string
	lastCode  string
	err       error
}

func (g *capturingEmailGateway) SendVerificationEmail(_ context.Context, toEmail, code string) error {
	if g.err != nil {
		return g.err
	}
	g.sent++
	g.lastEmail = toEmail
	g.lastCode = code
	return nil
}

// stubOAuthGateway lets each test script the provider's behavior.
type stubOAuthGateway struct {
	exchangeCode func(ctx context.Context, code, verifier string) (*oauth.Tokens, error)
	getIdentity  func(ctx context.Context, tokens *oauth.Tokens) (*oauth.Identity, error)
	revoked      int
	revokeErr    error
}

func (g *stubOAuthGateway) AuthorizationURL(state, codeChallenge string) string {
	return "https://provider.example/auth?state=" + state + "&code_challenge=" + codeChallenge
}

func (g *stubOAuthGateway) ExchangeCode(ctx context.Context, code, verifier string) (*oauth.Tokens, error) {
	if g.exchangeCode != nil {
		return g.exchangeCode(ctx, code, verifier)
	}
	return &oauth.Tokens{AccessToken: "stub-access-token"}, nil
}

func (g *stubOAuthGateway) GetIdentity(ctx context.Context, tokens *oauth.Tokens) (*oauth.Identity, error) {
	if g.getIdentity != nil {
		return g.getIdentity(ctx, tokens)
	}
	return &oauth.Identity{
		Provider:       domain.ProviderGoogle,
		ProviderUserID: "g-1",
		Email:          "user@example.com",
		Name:           "User",
	}, nil
}

func (g *stubOAuthGateway) RevokeToken(context.Context, *oauth.Tokens) error {
	g.revoked++
	return g.revokeErr
}

func newTestID(t *testing.T) string {
	t.Helper()
	return security.NewID()
}

func hashPasswordForTest(t *testing.T, password string) string {
	t.Helper()
	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

func createUserForTest(t *testing.T, users repository.UserRepository, email, password string) *domain.User {
	t.Helper()
	user := &domain.User{
		ID:            newTestID(t),
		Email:         email,
		EmailVerified: true,
		Name:          "Test User",
		Gender:        domain.GenderMan,
	}
	if password != "" {
		hash := hashPasswordForTest(t, password)
		user.PasswordHash = &hash
	}
	if err := users.Create(user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}
