package domain

import (
	"testing"
	"time"
)

func TestSessionExpiryBoundary(t *testing.T) {
	expiresAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		now     time.Time
		expired bool
	}{
		{name: "one ms before expiry", now: expiresAt.Add(-time.Millisecond), expired: false},
		{name: "exactly at expiry", now: expiresAt, expired: true},
		{name: "after expiry", now: expiresAt.Add(time.Second), expired: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			login := &LoginSession{ExpiresAt: expiresAt}
			signup := &SignupSession{ExpiresAt: expiresAt}
			reset := &PasswordResetSession{ExpiresAt: expiresAt}
			verify := &EmailVerificationSession{ExpiresAt: expiresAt}
			link := &AccountLinkSession{ExpiresAt: expiresAt}

			for name, got := range map[string]bool{
				"login":  login.IsExpired(tc.now),
				"signup": signup.IsExpired(tc.now),
				"reset":  reset.IsExpired(tc.now),
				"verify": verify.IsExpired(tc.now),
				"link":   link.IsExpired(tc.now),
			} {
				if got != tc.expired {
					t.Fatalf("%s session: IsExpired=%v want %v", name, got, tc.expired)
				}
			}
		})
	}
}

func TestUserHasPassword(t *testing.T) {
	hash := "bcrypt-hash"
	empty := ""

	if (&User{}).HasPassword() {
		t.Fatal("expected no password for nil hash")
	}
	if (&User{PasswordHash: &empty}).HasPassword() {
		t.Fatal("expected no password for empty hash")
	}
	if !(&User{PasswordHash: &hash}).HasPassword() {
		t.Fatal("expected password for non-empty hash")
	}
}

func TestIsKnownProvider(t *testing.T) {
	if !IsKnownProvider(ProviderGoogle) || !IsKnownProvider(ProviderDiscord) {
		t.Fatal("expected google and discord to be known providers")
	}
	if IsKnownProvider("github") {
		t.Fatal("expected github to be unknown")
	}
}
