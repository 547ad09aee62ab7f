package security

import (
	"errors"
	"testing"
)

func TestStateSignerRoundTrip(t *testing.T) {
	signer := NewStateSigner("0123456789abcdef0123456789abcdef")

	state, err := signer.Sign(StatePayload{Purpose: "oauth_login", ClientPlatform: "web"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	payload, err := signer.Validate(state, "oauth_login")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if payload.ClientPlatform != "web" || payload.UserID != "" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestStateSignerCarriesUserID(t *testing.T) {
	signer := NewStateSigner("0123456789abcdef0123456789abcdef")

	state, err := signer.Sign(StatePayload{Purpose: "oauth_link", ClientPlatform: "mobile", UserID: "01HZX"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	payload, err := signer.Validate(state, "oauth_link")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if payload.UserID != "01HZX" {
		t.Fatalf("expected user id to survive, got %q", payload.UserID)
	}
}

func TestStateSignerParseReturnsPurpose(t *testing.T) {
	signer := NewStateSigner("0123456789abcdef0123456789abcdef")

	for _, purpose := range []string{"login", "signup", "link"} {
		state, err := signer.Sign(StatePayload{Purpose: purpose, ClientPlatform: "web"})
		if err != nil {
			t.Fatalf("sign %s: %v", purpose, err)
		}
		payload, err := signer.Parse(state)
		if err != nil {
			t.Fatalf("parse %s: %v", purpose, err)
		}
		if payload.Purpose != purpose {
			t.Fatalf("expected purpose %q, got %q", purpose, payload.Purpose)
		}
	}

	if _, err := signer.Parse("not-a-jwt"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("garbage: expected ErrInvalidState, got %v", err)
	}
}

func TestStateSignerRejections(t *testing.T) {
	signer := NewStateSigner("0123456789abcdef0123456789abcdef")
	other := NewStateSigner("ffffffffffffffffffffffffffffffff")

	state, err := signer.Sign(StatePayload{Purpose: "oauth_login", ClientPlatform: "web"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cases := map[string]func() (StatePayload, error){
		"wrong secret":  func() (StatePayload, error) { return other.Validate(state, "oauth_login") },
		"wrong purpose": func() (StatePayload, error) { return signer.Validate(state, "oauth_signup") },
		"garbage":       func() (StatePayload, error) { return signer.Validate("not-a-jwt", "oauth_login") },
		"empty":         func() (StatePayload, error) { return signer.Validate("", "oauth_login") },
	}
	for name, fn := range cases {
		if _, err := fn(); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("%s: expected ErrInvalidState, got %v", name, err)
		}
	}
}
