package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"go-identity-service/internal/domain"
	"go-identity-service/internal/http/middleware"
	"go-identity-service/internal/http/response"
	"go-identity-service/internal/security"
	"go-identity-service/internal/service"
)

type AuthHandler struct {
	signup        *service.SignupService
	auth          *service.AuthService
	passwordReset *service.PasswordResetService
	emailChange   *service.EmailVerificationService
	captcha       service.CaptchaGateway
	cookies       *security.CookieManager
}

func NewAuthHandler(
	signup *service.SignupService,
	auth *service.AuthService,
	passwordReset *service.PasswordResetService,
	emailChange *service.EmailVerificationService,
	captcha service.CaptchaGateway,
	cookies *security.CookieManager,
) *AuthHandler {
	return &AuthHandler{
		signup:        signup,
		auth:          auth,
		passwordReset: passwordReset,
		emailChange:   emailChange,
		captcha:       captcha,
		cookies:       cookies,
	}
}

func (h *AuthHandler) SignupRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email        string `json:"email"`
		CaptchaToken string `json:"captcha_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "email is required", nil)
		return
	}
	if !h.verifyCaptcha(w, r, req.CaptchaToken) {
		return
	}

	session, token, err := h.signup.Request(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, service.ErrEmailAlreadyRegistered) {
			response.Error(w, r, http.StatusConflict, "EMAIL_ALREADY_REGISTERED", "email already registered", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to start signup", nil)
		return
	}

	h.cookies.SetSignupCookie(w, token, domain.SignupSessionTTL)
	response.JSON(w, r, http.StatusCreated, map[string]any{
		"signup_session_token": token,
		"expires_at":           session.ExpiresAt,
	})
}

func (h *AuthHandler) SignupVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"signup_session_token"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}

	session, ok := h.resolveSignupSession(w, r, req.Token)
	if !ok {
		return
	}
	if err := h.signup.VerifyEmail(req.Code, session); err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyVerified):
			response.Error(w, r, http.StatusConflict, "ALREADY_VERIFIED", "email already verified", nil)
		case errors.Is(err, service.ErrInvalidVerificationCode):
			response.Error(w, r, http.StatusBadRequest, "INVALID_CODE", "invalid verification code", nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to verify email", nil)
		}
		return
	}

	response.JSON(w, r, http.StatusOK, map[string]any{
		"email_verified": true,
		"expires_at":     session.ExpiresAt,
	})
}

func (h *AuthHandler) SignupConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"signup_session_token"`
		Name     string `json:"name"`
		Password string `json:"password"`
		Gender   string `json:"gender"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	gender, ok := parseGender(req.Gender)
	if !ok {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "gender must be man or woman", nil)
		return
	}
	if strings.TrimSpace(req.Name) == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "name and password are required", nil)
		return
	}

	session, okSess := h.resolveSignupSession(w, r, req.Token)
	if !okSess {
		return
	}

	user, _, loginToken, err := h.signup.Confirm(session, strings.TrimSpace(req.Name), req.Password, gender)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailVerificationRequired):
			response.Error(w, r, http.StatusForbidden, "EMAIL_VERIFICATION_REQUIRED", "verify your email first", nil)
		case errors.Is(err, service.ErrEmailAlreadyRegistered):
			h.cookies.ClearSignupCookie(w)
			response.Error(w, r, http.StatusConflict, "EMAIL_ALREADY_REGISTERED", "email already registered", nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to complete signup", nil)
		}
		return
	}

	h.cookies.ClearSignupCookie(w)
	h.cookies.SetSessionCookie(w, loginToken, domain.LoginSessionTTL)
	response.JSON(w, r, http.StatusCreated, map[string]any{
		"user":          user,
		"session_token": loginToken,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}

	user, _, token, err := h.auth.Login(strings.TrimSpace(strings.ToLower(req.Email)), req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to log in", nil)
		return
	}

	h.cookies.SetSessionCookie(w, token, domain.LoginSessionTTL)
	response.JSON(w, r, http.StatusOK, map[string]any{
		"user":          user,
		"session_token": token,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session != nil {
		if err := h.auth.Logout(session.ID); err != nil {
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to log out", nil)
			return
		}
	}
	h.cookies.ClearSessionCookie(w)
	response.JSON(w, r, http.StatusOK, map[string]any{"logged_out": true})
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if err := h.auth.LogoutAll(user.ID); err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to log out", nil)
		return
	}
	h.cookies.ClearSessionCookie(w)
	response.JSON(w, r, http.StatusOK, map[string]any{"logged_out": true})
}

func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	session := middleware.SessionFromContext(r.Context())

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if req.NewPassword == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "new password is required", nil)
		return
	}

	if err := h.auth.UpdatePassword(user, session, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, service.ErrPasswordNotSet):
			response.Error(w, r, http.StatusConflict, "PASSWORD_NOT_SET", "account has no password", nil)
		case errors.Is(err, service.ErrInvalidPassword):
			response.Error(w, r, http.StatusUnauthorized, "INVALID_PASSWORD", "current password is incorrect", nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to update password", nil)
		}
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"password_updated": true})
}

func (h *AuthHandler) PasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email        string `json:"email"`
		CaptchaToken string `json:"captcha_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if !h.verifyCaptcha(w, r, req.CaptchaToken) {
		return
	}

	session, token, err := h.passwordReset.Request(r.Context(), strings.TrimSpace(strings.ToLower(req.Email)))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.Error(w, r, http.StatusNotFound, "USER_NOT_FOUND", "no account with that email", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to start password reset", nil)
		return
	}

	response.JSON(w, r, http.StatusCreated, map[string]any{
		"password_reset_token": token,
		"expires_at":           session.ExpiresAt,
	})
}

func (h *AuthHandler) PasswordResetVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"password_reset_token"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}

	session, _, err := h.passwordReset.Validate(req.Token)
	if err != nil {
		writePasswordResetSessionError(w, r, err)
		return
	}
	if err := h.passwordReset.VerifyEmail(req.Code, session); err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyVerified):
			response.Error(w, r, http.StatusConflict, "ALREADY_VERIFIED", "email already verified", nil)
		case errors.Is(err, service.ErrInvalidVerificationCode):
			response.Error(w, r, http.StatusBadRequest, "INVALID_CODE", "invalid verification code", nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to verify email", nil)
		}
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"email_verified": true})
}

func (h *AuthHandler) PasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"password_reset_token"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if req.NewPassword == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "new password is required", nil)
		return
	}

	session, user, err := h.passwordReset.Validate(req.Token)
	if err != nil {
		writePasswordResetSessionError(w, r, err)
		return
	}
	if err := h.passwordReset.Reset(session, user, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrEmailVerificationRequired) {
			response.Error(w, r, http.StatusForbidden, "EMAIL_VERIFICATION_REQUIRED", "verify your email first", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to reset password", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"password_reset": true})
}

func (h *AuthHandler) EmailChangeRequest(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	var req struct {
		NewEmail string `json:"new_email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	newEmail := strings.TrimSpace(strings.ToLower(req.NewEmail))
	if newEmail == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "new_email is required", nil)
		return
	}

	session, token, err := h.emailChange.Request(r.Context(), user, newEmail)
	if err != nil {
		if errors.Is(err, service.ErrEmailAlreadyRegistered) {
			response.Error(w, r, http.StatusConflict, "EMAIL_ALREADY_REGISTERED", "email already registered", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to start email change", nil)
		return
	}

	response.JSON(w, r, http.StatusCreated, map[string]any{
		"email_verification_token": token,
		"expires_at":               session.ExpiresAt,
	})
}

func (h *AuthHandler) EmailChangeConfirm(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	current := middleware.SessionFromContext(r.Context())

	var req struct {
		Token string `json:"email_verification_token"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}

	session, err := h.emailChange.Validate(req.Token)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailVerificationSessionExpired):
			response.Error(w, r, http.StatusUnauthorized, "SESSION_EXPIRED", "email change session expired", nil)
		case errors.Is(err, service.ErrEmailVerificationSessionInvalid):
			response.Error(w, r, http.StatusUnauthorized, "INVALID_SESSION", "email change session invalid", nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to validate session", nil)
		}
		return
	}

	if err := h.emailChange.Confirm(session, user, current, req.Code); err != nil {
		switch {
		case errors.Is(err, service.ErrEmailMismatch):
			response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "session does not belong to this user", nil)
		case errors.Is(err, service.ErrInvalidVerificationCode):
			response.Error(w, r, http.StatusBadRequest, "INVALID_CODE", "invalid verification code", nil)
		case errors.Is(err, service.ErrEmailAlreadyRegistered):
			response.Error(w, r, http.StatusConflict, "EMAIL_ALREADY_REGISTERED", "email already registered", nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to change email", nil)
		}
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"email": session.Email, "email_verified": true})
}

func (h *AuthHandler) resolveSignupSession(w http.ResponseWriter, r *http.Request, bodyToken string) (*domain.SignupSession, bool) {
	token := bodyToken
	if token == "" {
		token = security.GetCookie(r, security.SignupCookieName)
	}
	session, err := h.signup.Validate(token)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSignupSessionExpired):
			h.cookies.ClearSignupCookie(w)
			response.Error(w, r, http.StatusUnauthorized, "SESSION_EXPIRED", "signup session expired", nil)
		case errors.Is(err, service.ErrSignupSessionInvalid):
			response.Error(w, r, http.StatusUnauthorized, "INVALID_SESSION", "signup session invalid", nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to validate session", nil)
		}
		return nil, false
	}
	return session, true
}

func (h *AuthHandler) verifyCaptcha(w http.ResponseWriter, r *http.Request, token string) bool {
	ok, err := h.captcha.Verify(r.Context(), token, clientIP(r))
	if err != nil {
		response.Error(w, r, http.StatusBadGateway, "CAPTCHA_UNAVAILABLE", "captcha verification unavailable", nil)
		return false
	}
	if !ok {
		response.Error(w, r, http.StatusForbidden, "CAPTCHA_FAILED", "captcha verification failed", nil)
		return false
	}
	return true
}

func writePasswordResetSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrPasswordResetSessionExpired):
		response.Error(w, r, http.StatusUnauthorized, "SESSION_EXPIRED", "password reset session expired", nil)
	case errors.Is(err, service.ErrPasswordResetSessionInvalid):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_SESSION", "password reset session invalid", nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to validate session", nil)
	}
}

func parseGender(raw string) (domain.Gender, bool) {
	switch domain.Gender(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.GenderMan:
		return domain.GenderMan, true
	case domain.GenderWoman:
		return domain.GenderWoman, true
	}
	return "", false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
