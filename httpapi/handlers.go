package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/leadforge/authcore"
	"github.com/leadforge/authcore/middleware"
)

const maxBodyBytes = 1 << 16

func decodeBody(r *http.Request, dst any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("malformed request body")
	}
	return nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfa_code,omitempty"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "email and password required")
		return
	}

	result, err := h.engine.Login(r.Context(), authcore.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
		MFACode:  req.MFACode,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	switch result.Outcome {
	case authcore.OutcomeSuccess:
		setSessionCookie(w, r, result.SessionToken, time.Until(result.ExpiresAt))
		data := map[string]any{
			"session_token": result.SessionToken,
			"expires_at":    result.ExpiresAt.Format(time.RFC3339),
		}
		if result.Warning != "" {
			data["warning"] = result.Warning
		}
		writeSuccess(w, http.StatusOK, data)
	case authcore.OutcomeInvalidCredentials:
		body := apiError{Status: "error", Code: "INVALID_CREDENTIALS", Message: "invalid email or password"}
		if result.Warning != "" {
			body.Message = result.Warning
		}
		writeJSON(w, http.StatusUnauthorized, body)
	case authcore.OutcomeLocked:
		if result.RetryAfter > 0 {
			w.Header().Set("Retry-After", retryAfterSeconds(result.RetryAfter))
		}
		writeError(w, http.StatusLocked, "ACCOUNT_LOCKED", "account temporarily locked")
	case authcore.OutcomeRateLimited:
		writeRateLimited(w, result.RetryAfter)
	case authcore.OutcomeNeedsVerification:
		writeError(w, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "verify your email address first")
	case authcore.OutcomeMFASetupRequired:
		writeJSON(w, http.StatusForbidden, map[string]any{
			"status":      "error",
			"code":        "MFA_SETUP_REQUIRED",
			"message":     "your organization requires mfa enrollment",
			"setup_token": result.SetupToken,
		})
	case authcore.OutcomeMFARequired:
		writeError(w, http.StatusUnauthorized, "MFA_REQUIRED", "mfa code required")
	case authcore.OutcomeInvalidMFAToken:
		writeError(w, http.StatusUnauthorized, "MFA_CODE_INVALID", "invalid mfa code")
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", "unexpected outcome")
	}
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := requestSessionToken(r); ok {
		h.engine.Logout(r.Context(), token)
	}
	clearSessionCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"session_id": identity.SessionID.String(),
		"user_id":    identity.UserID,
		"expires_at": identity.ExpiresAt.Format(time.RFC3339),
		"degraded":   identity.Degraded,
	})
}

func (h *Handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	if err := h.engine.LogoutAll(r.Context(), identity.UserID); err != nil {
		writeEngineError(w, err)
		return
	}
	clearSessionCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	tenant, tenantOK := middleware.TenantFromContext(r.Context())
	if !ok || !tenantOK {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	records, err := h.directory.ListActiveForUser(r.Context(), tenant)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	lifetime := h.engine.Sessions().Lifetime()
	items := make([]map[string]any, 0, len(records))
	for _, record := range records {
		items = append(items, map[string]any{
			"session_id": record.ID.String(),
			"ip_address": record.IPAddress,
			"user_agent": record.UserAgent,
			"created_at": record.CreatedAt.Format(time.RFC3339),
			"expires_at": record.ExpiresAt(lifetime).Format(time.RFC3339),
			"current":    record.ID == identity.SessionID,
		})
	}
	writeSuccess(w, http.StatusOK, map[string]any{"sessions": items})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *Handler) passwordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeBody(r, &req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "email required")
		return
	}

	if err := h.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeEngineError(w, err)
		return
	}
	// Identical response whether or not the account exists.
	writeMessage(w, http.StatusAccepted, "if the account exists, a reset link has been sent")
}

type passwordResetConfirm struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) passwordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetConfirm
	if err := decodeBody(r, &req); err != nil || req.Token == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "token and new_password required")
		return
	}

	result, err := h.engine.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	switch result.Outcome {
	case authcore.ResetApplied:
		writeMessage(w, http.StatusOK, "password updated")
	case authcore.ResetTokenInvalid:
		writeError(w, http.StatusUnauthorized, "RESET_TOKEN_INVALID", "reset link is invalid or expired")
	case authcore.ResetTokenUsed:
		writeError(w, http.StatusConflict, "RESET_TOKEN_USED", "reset link was already used")
	case authcore.ResetWeakPassword:
		writeError(w, http.StatusUnprocessableEntity, "WEAK_PASSWORD", "password does not meet the minimum length")
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", "unexpected outcome")
	}
}

func (h *Handler) emailVerifyRequest(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeBody(r, &req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "email required")
		return
	}

	if err := h.engine.RequestVerification(r.Context(), req.Email); err != nil {
		writeEngineError(w, err)
		return
	}
	writeMessage(w, http.StatusAccepted, "if the account exists, a verification link has been sent")
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (h *Handler) emailVerify(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeBody(r, &req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "token required")
		return
	}

	result, err := h.engine.ConfirmVerification(r.Context(), req.Token)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !result.Valid {
		writeError(w, http.StatusUnauthorized, "VERIFICATION_TOKEN_INVALID", "verification link is invalid or expired")
		return
	}
	writeMessage(w, http.StatusOK, "email verified")
}

type mfaSetupBeginRequest struct {
	SetupToken string `json:"setup_token"`
}

func (h *Handler) mfaSetupBegin(w http.ResponseWriter, r *http.Request) {
	var req mfaSetupBeginRequest
	if err := decodeBody(r, &req); err != nil || req.SetupToken == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "setup_token required")
		return
	}

	setup, err := h.engine.BeginMFASetup(r.Context(), req.SetupToken)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"secret":        setup.SecretBase32,
		"provision_uri": setup.ProvisionURI,
		"backup_codes":  setup.BackupCodes,
	})
}

type mfaSetupConfirmRequest struct {
	SetupToken string `json:"setup_token"`
	Code       string `json:"code"`
}

func (h *Handler) mfaSetupConfirm(w http.ResponseWriter, r *http.Request) {
	var req mfaSetupConfirmRequest
	if err := decodeBody(r, &req); err != nil || req.SetupToken == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "setup_token and code required")
		return
	}

	if err := h.engine.ConfirmMFASetup(r.Context(), req.SetupToken, req.Code); err != nil {
		writeEngineError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "mfa enabled")
}

func requestSessionToken(r *http.Request) (string, bool) {
	if cookie, err := r.Cookie(middleware.SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	const bearer = "Bearer "
	value := r.Header.Get("Authorization")
	if strings.HasPrefix(value, bearer) && len(value) > len(bearer) {
		return value[len(bearer):], true
	}
	return "", false
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func retryAfterSeconds(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
