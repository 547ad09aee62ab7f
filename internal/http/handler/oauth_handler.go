package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"go-identity-service/internal/domain"
	"go-identity-service/internal/http/middleware"
	"go-identity-service/internal/http/response"
	"go-identity-service/internal/security"
	"go-identity-service/internal/service"
)

type OAuthHandler struct {
	oauth   *service.OAuthService
	links   *service.AccountLinkService
	cookies *security.CookieManager
}

func NewOAuthHandler(oauth *service.OAuthService, links *service.AccountLinkService, cookies *security.CookieManager) *OAuthHandler {
	return &OAuthHandler{oauth: oauth, links: links, cookies: cookies}
}

// Authorize starts a login, signup or link flow. Web clients are
// redirected straight to the provider; mobile clients get the consent
// URL and PKCE verifier in the body since they open the browser
// themselves.
func (h *OAuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	flow := r.URL.Query().Get("flow")
	switch flow {
	case service.FlowLogin, service.FlowSignup, service.FlowLink:
	default:
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "flow must be login, signup or link", nil)
		return
	}

	platform := r.URL.Query().Get("platform")
	if platform == "" {
		platform = service.PlatformWeb
	}

	req := service.AuthorizeRequest{
		Provider:       chi.URLParam(r, "provider"),
		Flow:           flow,
		ClientPlatform: platform,
		RedirectURI:    r.URL.Query().Get("redirect_uri"),
	}
	if flow == service.FlowLink {
		user := middleware.UserFromContext(r.Context())
		if user == nil {
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "valid session required", nil)
			return
		}
		req.UserID = user.ID
	}

	result, err := h.oauth.AuthorizeURL(req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownProvider):
			response.Error(w, r, http.StatusNotFound, "UNKNOWN_PROVIDER", "unknown oauth provider", nil)
		case errors.Is(err, service.ErrInvalidRedirectURI):
			response.Error(w, r, http.StatusBadRequest, "INVALID_REDIRECT_URI", "redirect uri not allowed", nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to start oauth flow", nil)
		}
		return
	}

	if platform == service.PlatformMobile {
		response.JSON(w, r, http.StatusOK, map[string]any{
			"authorization_url": result.URL,
			"code_verifier":     result.CodeVerifier,
		})
		return
	}

	state := stateFromAuthorizationURL(result.URL)
	h.cookies.SetOAuthFlowCookies(w, state, result.CodeVerifier)
	http.Redirect(w, r, result.URL, http.StatusFound)
}

// Callback handles the browser redirect back from the provider. The
// PKCE verifier comes from the flow cookie set by Authorize; mobile
// apps use Exchange instead.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := service.CallbackInput{
		Provider:     chi.URLParam(r, "provider"),
		State:        q.Get("state"),
		Code:         q.Get("code"),
		CodeVerifier: security.GetCookie(r, security.OAuthVerifierCookieName),
		ErrorParam:   q.Get("error"),
	}
	h.cookies.ClearOAuthFlowCookies(w)
	h.finishCallback(w, r, in)
}

// Exchange is the mobile counterpart of Callback: the app receives the
// provider redirect on its custom scheme and posts the pieces here.
func (h *OAuthHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State        string `json:"state"`
		Code         string `json:"code"`
		CodeVerifier string `json:"code_verifier"`
		ErrorParam   string `json:"error"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	in := service.CallbackInput{
		Provider:     chi.URLParam(r, "provider"),
		State:        req.State,
		Code:         req.Code,
		CodeVerifier: req.CodeVerifier,
		ErrorParam:   req.ErrorParam,
	}
	h.finishCallback(w, r, in)
}

// finishCallback completes whichever flow the signed state names. Link
// flows never reach the success branch: they surface as an
// association-available redirect carrying the link token.
func (h *OAuthHandler) finishCallback(w http.ResponseWriter, r *http.Request, in service.CallbackInput) {
	result, err := h.oauth.HandleCallback(r.Context(), in)
	if err != nil {
		h.writeCallbackError(w, r, err)
		return
	}

	if result.ClientPlatform == service.PlatformMobile {
		http.Redirect(w, r, appendQuery(result.RedirectURI, url.Values{"session_token": {result.Token}}), http.StatusFound)
		return
	}
	h.cookies.SetSessionCookie(w, result.Token, domain.LoginSessionTTL)
	http.Redirect(w, r, result.RedirectURI, http.StatusFound)
}

func (h *OAuthHandler) writeCallbackError(w http.ResponseWriter, r *http.Request, err error) {
	var association *service.AccountAssociationAvailableError
	if errors.As(err, &association) {
		http.Redirect(w, r, appendQuery(association.RedirectURI, url.Values{
			"status":     {"account_association_available"},
			"link_token": {association.Token},
		}), http.StatusFound)
		return
	}

	var redirectErr *service.RedirectError
	if errors.As(err, &redirectErr) {
		http.Redirect(w, r, appendQuery(redirectErr.RedirectURI, url.Values{"error": {redirectErr.Code}}), http.StatusFound)
		return
	}

	switch {
	case errors.Is(err, service.ErrUnknownProvider):
		response.Error(w, r, http.StatusNotFound, "UNKNOWN_PROVIDER", "unknown oauth provider", nil)
	case errors.Is(err, service.ErrInvalidState):
		response.Error(w, r, http.StatusBadRequest, "INVALID_STATE", "oauth state is invalid or expired", nil)
	case errors.Is(err, service.ErrInvalidRedirectURI):
		response.Error(w, r, http.StatusBadRequest, "INVALID_REDIRECT_URI", "redirect uri not allowed", nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "oauth callback failed", nil)
	}
}

func (h *OAuthHandler) LinkChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"link_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}

	session, ok := h.resolveLinkSession(w, r, req.Token)
	if !ok {
		return
	}
	if err := h.links.Challenge(r.Context(), session); err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to issue link challenge", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"challenge_sent": true,
		"email":          session.Email,
	})
}

func (h *OAuthHandler) LinkConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"link_token"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}

	session, ok := h.resolveLinkSession(w, r, req.Token)
	if !ok {
		return
	}
	user, _, token, err := h.links.Confirm(session, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrChallengeNotIssued):
			response.Error(w, r, http.StatusConflict, "CHALLENGE_NOT_ISSUED", "request a challenge first", nil)
		case errors.Is(err, service.ErrInvalidVerificationCode):
			response.Error(w, r, http.StatusBadRequest, "INVALID_CODE", "invalid verification code", nil)
		case errors.Is(err, service.ErrProviderAlreadyLinked):
			response.Error(w, r, http.StatusConflict, "PROVIDER_ALREADY_LINKED", "provider already linked to this account", nil)
		case errors.Is(err, service.ErrAccountAlreadyLinkedToAnotherUser):
			response.Error(w, r, http.StatusConflict, "ACCOUNT_ALREADY_LINKED_TO_ANOTHER_USER", "identity already linked to another account", nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to link account", nil)
		}
		return
	}

	h.cookies.SetSessionCookie(w, token, domain.LoginSessionTTL)
	response.JSON(w, r, http.StatusOK, map[string]any{
		"user":          user,
		"session_token": token,
	})
}

func (h *OAuthHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	provider := chi.URLParam(r, "provider")

	if err := h.links.Unlink(user, provider); err != nil {
		switch {
		case errors.Is(err, service.ErrPasswordNotSet):
			response.Error(w, r, http.StatusConflict, "PASSWORD_NOT_SET", "set a password before unlinking", nil)
		case errors.Is(err, service.ErrExternalIdentityNotLinked):
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "provider not linked to this account", nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to unlink provider", nil)
		}
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"provider": provider, "unlinked": true})
}

func (h *OAuthHandler) resolveLinkSession(w http.ResponseWriter, r *http.Request, token string) (*domain.AccountLinkSession, bool) {
	session, err := h.links.Validate(token)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAccountLinkSessionExpired):
			response.Error(w, r, http.StatusUnauthorized, "SESSION_EXPIRED", "account link session expired", nil)
		case errors.Is(err, service.ErrAccountLinkSessionInvalid):
			response.Error(w, r, http.StatusUnauthorized, "INVALID_SESSION", "account link session invalid", nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to validate session", nil)
		}
		return nil, false
	}
	return session, true
}

func stateFromAuthorizationURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Query().Get("state")
}

func appendQuery(rawURL string, values url.Values) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := parsed.Query()
	for k, vs := range values {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	parsed.RawQuery = q.Encode()
	return parsed.String()
}
