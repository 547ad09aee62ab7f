package service

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"go-identity-service/internal/domain"
	"go-identity-service/internal/repository"
	"go-identity-service/internal/security"
)

func newSignupServiceForTest(t *testing.T) (*SignupService, *capturingEmailGateway, repository.UserRepository, repository.SignupSessionRepository, repository.LoginSessionRepository) {
	t.Helper()
	db := newServiceDBForTest(t)
	users := repository.NewUserRepository(db)
	signupSessions := repository.NewSignupSessionRepository(db)
	loginSessions := repository.NewLoginSessionRepository(db)
	email := &capturingEmailGateway{}
	svc := NewSignupService(users, signupSessions, loginSessions, email)
	return svc, email, users, signupSessions, loginSessions
}

func TestSignupFullFlow(t *testing.T) {
	svc, email, users, _, _ := newSignupServiceForTest(t)
	ctx := context.Background()

	session, token, err := svc.Request(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if !regexp.MustCompile(`^\d{8}$`).MatchString(session.Code) {
		t.Fatalf("code=%q, want 8 digits", session.Code)
	}
	if session.EmailVerified {
		t.Fatal("fresh session must not be verified")
	}
	if email.sent != 1 || email.lastEmail != "a@x.com" || email.lastCode != session.Code {
		t.Fatalf("email gateway got %d/%q/%q", email.sent, email.lastEmail, email.lastCode)
	}

	validated, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if validated.ID != session.ID {
		t.Fatalf("validated id=%q want %q", validated.ID, session.ID)
	}

	if err := svc.VerifyEmail("00000000", validated); err == nil || !errors.Is(err, ErrInvalidVerificationCode) {
		t.Fatalf("wrong code: %v", err)
	}

	expiryBefore := validated.ExpiresAt
	if err := svc.VerifyEmail(validated.Code, validated); err != nil {
		t.Fatalf("verify email: %v", err)
	}
	if !validated.EmailVerified {
		t.Fatal("session should be verified")
	}
	if !validated.ExpiresAt.After(expiryBefore) {
		t.Fatal("verified session expiry should be extended")
	}

	if err := svc.VerifyEmail(validated.Code, validated); err == nil || !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("second verify: %v", err)
	}

	user, loginSession, loginToken, err := svc.Confirm(validated, "A", "pw123456", domain.GenderMan)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if user.Email != "a@x.com" || !user.EmailVerified {
		t.Fatalf("user=%+v", user)
	}
	if !security.VerifyPassword(*user.PasswordHash, "pw123456") {
		t.Fatal("stored password hash does not verify")
	}
	if loginSession.UserID != user.ID {
		t.Fatalf("login session user=%q", loginSession.UserID)
	}
	if _, _, ok := security.DecodeToken(loginToken); !ok {
		t.Fatalf("bad login token %q", loginToken)
	}

	if _, err := users.FindByEmail("a@x.com"); err != nil {
		t.Fatalf("user missing after confirm: %v", err)
	}
	if _, err := svc.Validate(token); !errors.Is(err, ErrSignupSessionInvalid) {
		t.Fatalf("signup session should be gone, got %v", err)
	}
}

func TestSignupRequestRegisteredEmail(t *testing.T) {
	svc, _, users, _, _ := newSignupServiceForTest(t)
	createUserForTest(t, users, "taken@x.com", "pw123456")

	if _, _, err := svc.Request(context.Background(), "taken@x.com"); !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Fatalf("want ErrEmailAlreadyRegistered, got %v", err)
	}
}

func TestSignupRequestReplacesPriorSession(t *testing.T) {
	svc, _, _, _, _ := newSignupServiceForTest(t)
	ctx := context.Background()

	first, firstToken, err := svc.Request(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, _, err := svc.Request(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("session id reused")
	}
	if _, err := svc.Validate(firstToken); !errors.Is(err, ErrSignupSessionInvalid) {
		t.Fatalf("first token should be dead, got %v", err)
	}
}

func TestSignupConfirmRequiresVerification(t *testing.T) {
	svc, _, _, _, _ := newSignupServiceForTest(t)

	session, _, err := svc.Request(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, _, _, err := svc.Confirm(session, "A", "pw123456", domain.GenderWoman); !errors.Is(err, ErrEmailVerificationRequired) {
		t.Fatalf("want ErrEmailVerificationRequired, got %v", err)
	}
}

func TestSignupConfirmEmailRace(t *testing.T) {
	svc, _, users, _, _ := newSignupServiceForTest(t)

	session, token, err := svc.Request(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := svc.VerifyEmail(session.Code, session); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// Someone else registers the address before confirm.
	createUserForTest(t, users, "a@x.com", "pw123456")

	if _, _, _, err := svc.Confirm(session, "A", "pw123456", domain.GenderMan); !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Fatalf("want ErrEmailAlreadyRegistered, got %v", err)
	}
	if _, err := svc.Validate(token); !errors.Is(err, ErrSignupSessionInvalid) {
		t.Fatalf("conflicted session should be deleted, got %v", err)
	}
}
