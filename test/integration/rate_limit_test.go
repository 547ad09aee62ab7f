package integration

import (
	"net/http"
	"testing"

	"go-identity-service/internal/http/middleware"
)

func TestAuthRateLimitBlocksAfterLimit(t *testing.T) {
	baseURL, client, _ := newTestServerWithOptions(t, serverOptions{
		limiter:          middleware.NewLocalTokenBucketLimiter(),
		authRateLimitRPM: 2,
		apiRateLimitRPM:  100,
	})

	login := map[string]string{"email": "nobody@example.com", "password": "nope"}
	for i := 0; i < 2; i++ {
		resp, _ := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/login", login, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("request %d: expected 401, got %d", i+1, resp.StatusCode)
		}
	}

	resp, env := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/login", login, nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != "RATE_LIMITED" {
		t.Fatalf("expected RATE_LIMITED, got %#v", env.Error)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on 429")
	}
}

func TestAuthAndAPIScopesHaveSeparateBudgets(t *testing.T) {
	baseURL, client, _ := newTestServerWithOptions(t, serverOptions{
		limiter:          middleware.NewLocalTokenBucketLimiter(),
		authRateLimitRPM: 1,
		apiRateLimitRPM:  100,
	})

	login := map[string]string{"email": "nobody@example.com", "password": "nope"}
	doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/login", login, nil)
	resp, _ := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/login", login, nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected auth scope exhausted, got %d", resp.StatusCode)
	}

	// the api scope still has budget, so the request reaches auth
	resp, _ = doJSON(t, client, http.MethodGet, baseURL+"/api/v1/users/me", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 from api scope, got %d", resp.StatusCode)
	}
}

func TestHealthEndpointsAreNotRateLimited(t *testing.T) {
	baseURL, client, _ := newTestServerWithOptions(t, serverOptions{
		limiter:          middleware.NewLocalTokenBucketLimiter(),
		authRateLimitRPM: 1,
		apiRateLimitRPM:  1,
	})

	for i := 0; i < 5; i++ {
		resp, _ := doRawText(t, client, http.MethodGet, baseURL+"/health/live", nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("probe %d: expected 200, got %d", i+1, resp.StatusCode)
		}
	}
}
