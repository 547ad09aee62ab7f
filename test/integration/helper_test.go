package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"go-identity-service/internal/database"
	"go-identity-service/internal/domain"
	"go-identity-service/internal/http/handler"
	"go-identity-service/internal/http/middleware"
	"go-identity-service/internal/http/router"
	"go-identity-service/internal/oauth"
	"go-identity-service/internal/repository"
	"go-identity-service/internal/security"
	"go-identity-service/internal/service"
)

// captureEmailGateway records the last verification code per address in
// place of sending mail, so flow tests can read codes back.
type captureEmailGateway struct {
	mu    sync.Mutex
	codes map[string]string
}

func newCaptureEmailGateway() *captureEmailGateway {
	return &captureEmailGateway{codes: make(map[string]string)}
}

func (g *captureEmailGateway) SendVerificationEmail(_ context.Context, toEmail, code string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.codes[strings.ToLower(toEmail)] = code
	return nil
}

func (g *captureEmailGateway) lastCode(t *testing.T, email string) string {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	code, ok := g.codes[strings.ToLower(email)]
	if !ok {
		t.Fatalf("no verification code captured for %s", email)
	}
	return code
}

type serverOptions struct {
	limiter          middleware.Limiter
	authRateLimitRPM int
	apiRateLimitRPM  int
	provider         *fakeGoogleProvider
}

// fakeGoogleProvider stands in for Google's token, userinfo and revoke
// endpoints so callback tests can run the real gateway over HTTP.
type fakeGoogleProvider struct {
	srv      *httptest.Server
	identity map[string]any
}

func newFakeGoogleProvider(t *testing.T, sub, email, name string) *fakeGoogleProvider {
	t.Helper()
	p := &fakeGoogleProvider{
		identity: map[string]any{"sub": sub, "email": email, "name": name},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "provider-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(p.identity)
	})
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func newTestServer(t *testing.T) (string, *http.Client, *captureEmailGateway) {
	return newTestServerWithOptions(t, serverOptions{})
}

func newTestServerWithOptions(t *testing.T, opts serverOptions) (string, *http.Client, *captureEmailGateway) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	users := repository.NewUserRepository(db)
	loginSessions := repository.NewLoginSessionRepository(db)
	signupSessions := repository.NewSignupSessionRepository(db)
	resetSessions := repository.NewPasswordResetSessionRepository(db)
	verificationSessions := repository.NewEmailVerificationSessionRepository(db)
	identities := repository.NewExternalIdentityRepository(db)

	emails := newCaptureEmailGateway()
	authService := service.NewAuthService(users, loginSessions)
	signupService := service.NewSignupService(users, signupSessions, loginSessions, emails)
	resetService := service.NewPasswordResetService(users, resetSessions, loginSessions, emails)
	emailChangeService := service.NewEmailVerificationService(users, verificationSessions, loginSessions, emails)

	cookies := security.NewCookieManager("", false, "lax")
	deps := router.Dependencies{
		Auth:             handler.NewAuthHandler(signupService, authService, resetService, emailChangeService, service.DevCaptchaGateway{}, cookies),
		User:             handler.NewUserHandler(identities, nil),
		Health:           handler.NewHealthHandler(nil, nil),
		Authenticator:    middleware.NewAuthenticator(authService),
		Limiter:          opts.limiter,
		AuthRateLimitRPM: opts.authRateLimitRPM,
		APIRateLimitRPM:  opts.apiRateLimitRPM,
	}

	if opts.provider != nil {
		gateway := oauth.NewGoogleGateway(oauth.GoogleConfig{
			ClientID:     "test-client",
			ClientSecret: "test-secret",
			RedirectURL:  "http://localhost/callback",
			AuthURL:      opts.provider.srv.URL + "/auth",
			TokenURL:     opts.provider.srv.URL + "/token",
			UserInfoURL:  opts.provider.srv.URL + "/userinfo",
			RevokeURL:    opts.provider.srv.URL + "/revoke",
		})
		signer := security.NewStateSigner("integration-state-secret")
		oauthService := service.NewOAuthService(
			users, identities, loginSessions,
			repository.NewAccountLinkSessionRepository(db),
			map[string]oauth.Gateway{domain.ProviderGoogle: gateway},
			signer,
			[]string{"https://app.example.com"},
			[]string{"app"},
			slog.New(slog.NewTextHandler(io.Discard, nil)),
		)
		linkService := service.NewAccountLinkService(
			users, identities,
			repository.NewAccountLinkSessionRepository(db),
			loginSessions, emails,
		)
		deps.OAuth = handler.NewOAuthHandler(oauthService, linkService, cookies)
	}

	srv := httptest.NewServer(router.New(deps))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return srv.URL, client, emails
}

type apiEnvelope struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, apiEnvelope) {
	t.Helper()
	resp, raw := doRawText(t, client, method, url, body, headers)
	var env apiEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("decode envelope: %v body=%q", err, raw)
	}
	return resp, env
}

func doRawText(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, string) {
	t.Helper()
	var buf io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		buf = strings.NewReader(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return resp, string(raw)
}

// signupUser walks the full signup flow and leaves the client holding a
// valid session cookie.
func signupUser(t *testing.T, client *http.Client, baseURL string, emails *captureEmailGateway, email, password string) {
	t.Helper()

	resp, env := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/signup/request", map[string]string{
		"email": email,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup request: expected 201, got %d (%#v)", resp.StatusCode, env.Error)
	}
	token, _ := env.Data["signup_session_token"].(string)
	if token == "" {
		t.Fatal("signup request: missing signup_session_token")
	}

	resp, env = doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/signup/verify-email", map[string]string{
		"signup_session_token": token,
		"code":                 emails.lastCode(t, email),
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signup verify-email: expected 200, got %d (%#v)", resp.StatusCode, env.Error)
	}

	resp, env = doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/signup/confirm", map[string]string{
		"signup_session_token": token,
		"name":                 "Test User",
		"password":             password,
		"gender":               "woman",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup confirm: expected 201, got %d (%#v)", resp.StatusCode, env.Error)
	}
}
