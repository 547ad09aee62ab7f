package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go-identity-service/internal/domain"
)

const (
	defaultDiscordAuthURL   = "https://discord.com/oauth2/authorize"
	defaultDiscordTokenURL  = "https://discord.com/api/oauth2/token"
	defaultDiscordUserURL   = "https://discord.com/api/users/@me"
	defaultDiscordRevokeURL = "https://discord.com/api/oauth2/token/revoke"

	discordCDNBase = "https://cdn.discordapp.com"
)

type DiscordConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Overridable for tests.
	AuthURL   string
	TokenURL  string
	UserURL   string
	RevokeURL string
}

type DiscordGateway struct {
	config DiscordConfig
	client *http.Client
}

func NewDiscordGateway(config DiscordConfig) *DiscordGateway {
	if config.AuthURL == "" {
		config.AuthURL = defaultDiscordAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultDiscordTokenURL
	}
	if config.UserURL == "" {
		config.UserURL = defaultDiscordUserURL
	}
	if config.RevokeURL == "" {
		config.RevokeURL = defaultDiscordRevokeURL
	}
	return &DiscordGateway{config: config, client: newHTTPClient()}
}

func (d *DiscordGateway) AuthorizationURL(state, codeChallenge string) string {
	params := url.Values{
		"client_id":             {d.config.ClientID},
		"redirect_uri":          {d.config.RedirectURL},
		"response_type":         {"code"},
		"scope":                 {"identify email"},
		"state":                 {state},
		"code_challenge":        {codeChallenge},
		"code_challenge_method": {"S256"},
	}
	return d.config.AuthURL + "?" + params.Encode()
}

type discordTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

type discordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
	Avatar   string `json:"avatar"`
}

func (d *DiscordGateway) ExchangeCode(ctx context.Context, code, codeVerifier string) (*Tokens, error) {
	data := url.Values{
		"code":          {code},
		"client_id":     {d.config.ClientID},
		"client_secret": {d.config.ClientSecret},
		"redirect_uri":  {d.config.RedirectURL},
		"grant_type":    {"authorization_code"},
		"code_verifier": {codeVerifier},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp discordTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	return &Tokens{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresIn:    tokenResp.ExpiresIn,
	}, nil
}

func (d *DiscordGateway) GetIdentity(ctx context.Context, tokens *Tokens) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.config.UserURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read user response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user fetch status %d: %s", resp.StatusCode, string(body))
	}

	var user discordUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("parse user response: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("empty id in user response")
	}

	var iconURL string
	if user.Avatar != "" {
		iconURL = fmt.Sprintf("%s/avatars/%s/%s.png", discordCDNBase, user.ID, user.Avatar)
	}

	return &Identity{
		Provider:       domain.ProviderDiscord,
		ProviderUserID: user.ID,
		Email:          user.Email,
		Name:           user.Username,
		IconURL:        iconURL,
	}, nil
}

func (d *DiscordGateway) RevokeToken(ctx context.Context, tokens *Tokens) error {
	data := url.Values{
		"token":         {tokens.AccessToken},
		"client_id":     {d.config.ClientID},
		"client_secret": {d.config.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.RevokeURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke status %d", resp.StatusCode)
	}
	return nil
}

var _ Gateway = (*DiscordGateway)(nil)
