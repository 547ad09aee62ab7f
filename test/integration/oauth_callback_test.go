package integration

import (
	"net/http"
	"net/url"
	"testing"
)

// startWebFlow drives the authorize redirect and returns the state the
// provider would echo back. The flow cookies land in the client's jar.
func startWebFlow(t *testing.T, client *http.Client, baseURL, flow string) string {
	t.Helper()
	resp, _ := doRawText(t, client, http.MethodGet,
		baseURL+"/api/v1/oauth/google/authorize?flow="+flow+"&redirect_uri="+url.QueryEscape("https://app.example.com/done"), nil, nil)
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("authorize: expected 302, got %d", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parse provider redirect: %v", err)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("authorize redirect carries no state")
	}
	return state
}

func TestWebSignupCallbackCreatesUserAndSession(t *testing.T) {
	provider := newFakeGoogleProvider(t, "g-sub-1", "fresh@example.com", "Fresh User")
	baseURL, client, _ := newTestServerWithOptions(t, serverOptions{provider: provider})

	state := startWebFlow(t, client, baseURL, "signup")

	resp, _ := doRawText(t, client, http.MethodGet,
		baseURL+"/api/v1/oauth/google/callback?state="+url.QueryEscape(state)+"&code=fake-code", nil, nil)
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("callback: expected 302, got %d", resp.StatusCode)
	}
	loc, _ := url.Parse(resp.Header.Get("Location"))
	if loc.Scheme+"://"+loc.Host+loc.Path != "https://app.example.com/done" {
		t.Fatalf("unexpected redirect: %s", resp.Header.Get("Location"))
	}
	if loc.Query().Get("error") != "" {
		t.Fatalf("callback redirected with error=%s", loc.Query().Get("error"))
	}

	resp, env := doJSON(t, client, http.MethodGet, baseURL+"/api/v1/users/me", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me after oauth signup: expected 200, got %d (%#v)", resp.StatusCode, env.Error)
	}
	user, _ := env.Data["user"].(map[string]any)
	if user["email"] != "fresh@example.com" {
		t.Fatalf("unexpected email %v", user["email"])
	}
	if env.Data["has_password"] != false {
		t.Fatal("oauth signup must not set a password")
	}
}

func TestWebLoginCallbackSameEmailProposesLink(t *testing.T) {
	provider := newFakeGoogleProvider(t, "g-sub-2", "linkme@example.com", "Link Me")
	baseURL, client, emails := newTestServerWithOptions(t, serverOptions{provider: provider})
	signupUser(t, client, baseURL, emails, "linkme@example.com", "password 123456")
	doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/logout", nil, nil)

	state := startWebFlow(t, client, baseURL, "login")

	resp, _ := doRawText(t, client, http.MethodGet,
		baseURL+"/api/v1/oauth/google/callback?state="+url.QueryEscape(state)+"&code=fake-code", nil, nil)
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("callback: expected 302, got %d", resp.StatusCode)
	}
	loc, _ := url.Parse(resp.Header.Get("Location"))
	if loc.Query().Get("status") != "account_association_available" {
		t.Fatalf("expected association redirect, got %s", resp.Header.Get("Location"))
	}
	if loc.Query().Get("link_token") == "" {
		t.Fatal("association redirect carries no link token")
	}
}

func TestWebLinkFlowCompletesEndToEnd(t *testing.T) {
	provider := newFakeGoogleProvider(t, "g-sub-3", "provider-side@example.com", "Owner")
	baseURL, client, emails := newTestServerWithOptions(t, serverOptions{provider: provider})
	email := "owner@example.com"
	signupUser(t, client, baseURL, emails, email, "password 123456")

	state := startWebFlow(t, client, baseURL, "link")

	resp, _ := doRawText(t, client, http.MethodGet,
		baseURL+"/api/v1/oauth/google/callback?state="+url.QueryEscape(state)+"&code=fake-code", nil, nil)
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("callback: expected 302, got %d", resp.StatusCode)
	}
	loc, _ := url.Parse(resp.Header.Get("Location"))
	if loc.Query().Get("status") != "account_association_available" {
		t.Fatalf("expected association redirect, got %s", resp.Header.Get("Location"))
	}
	linkToken := loc.Query().Get("link_token")
	if linkToken == "" {
		t.Fatal("link flow callback carries no link token")
	}

	resp, env := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/oauth/link/challenge", map[string]string{
		"link_token": linkToken,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("link challenge: expected 200, got %d (%#v)", resp.StatusCode, env.Error)
	}

	resp, env = doJSON(t, client, http.MethodPost, baseURL+"/api/v1/oauth/link/confirm", map[string]string{
		"link_token": linkToken,
		"code":       emails.lastCode(t, email),
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("link confirm: expected 200, got %d (%#v)", resp.StatusCode, env.Error)
	}

	resp, env = doJSON(t, client, http.MethodGet, baseURL+"/api/v1/users/me", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", resp.StatusCode)
	}
	linked, _ := env.Data["linked_providers"].([]any)
	if len(linked) != 1 || linked[0] != "google" {
		t.Fatalf("expected google linked, got %v", env.Data["linked_providers"])
	}
}

func TestWebLinkAuthorizeRequiresSession(t *testing.T) {
	provider := newFakeGoogleProvider(t, "g-sub-4", "x@example.com", "X")
	baseURL, client, _ := newTestServerWithOptions(t, serverOptions{provider: provider})

	resp, env := doJSON(t, client, http.MethodGet,
		baseURL+"/api/v1/oauth/google/authorize?flow=link&redirect_uri="+url.QueryEscape("https://app.example.com/done"), nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED, got %#v", env.Error)
	}
}

func TestCallbackGarbageStateRejected(t *testing.T) {
	provider := newFakeGoogleProvider(t, "g-sub-5", "y@example.com", "Y")
	baseURL, client, _ := newTestServerWithOptions(t, serverOptions{provider: provider})

	resp, env := doJSON(t, client, http.MethodGet,
		baseURL+"/api/v1/oauth/google/callback?state=garbage&code=fake-code", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != "INVALID_STATE" {
		t.Fatalf("expected INVALID_STATE, got %#v", env.Error)
	}
}
