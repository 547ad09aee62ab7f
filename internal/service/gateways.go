package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// EmailGateway delivers verification codes. The core renders the code;
// transport and templating live behind this interface.
type EmailGateway interface {
	SendVerificationEmail(ctx context.Context, toEmail, code string) error
}

// DevEmailGateway logs codes instead of sending mail. Useful for local
// development and tests.
type DevEmailGateway struct {
	logger *slog.Logger
}

func NewDevEmailGateway(logger *slog.Logger) *DevEmailGateway {
	return &DevEmailGateway{logger: logger}
}

func (g *DevEmailGateway) SendVerificationEmail(ctx context.Context, toEmail, code string) error {
	g.logger.InfoContext(ctx, "verification email issued",
		"email", toEmail,
		"code", code,
	)
	return nil
}

// CaptchaGateway verifies a client-supplied captcha token.
type CaptchaGateway interface {
	Verify(ctx context.Context, token, clientIP string) (bool, error)
}

// DevCaptchaGateway accepts everything. Wired when no captcha secret is
// configured.
type DevCaptchaGateway struct{}

func (DevCaptchaGateway) Verify(context.Context, string, string) (bool, error) {
	return true, nil
}

// TurnstileCaptchaGateway verifies tokens against the Cloudflare
// Turnstile siteverify endpoint.
type TurnstileCaptchaGateway struct {
	secret    string
	verifyURL string
	client    *http.Client
}

const defaultTurnstileVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

func NewTurnstileCaptchaGateway(secret string) *TurnstileCaptchaGateway {
	return &TurnstileCaptchaGateway{
		secret:    secret,
		verifyURL: defaultTurnstileVerifyURL,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *TurnstileCaptchaGateway) Verify(ctx context.Context, token, clientIP string) (bool, error) {
	form := url.Values{
		"secret":   {g.secret},
		"response": {token},
	}
	if clientIP != "" {
		form.Set("remoteip", clientIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("create captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("captcha request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode captcha response: %w", err)
	}
	return body.Success, nil
}
