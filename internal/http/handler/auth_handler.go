package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vkozii/authgate/internal/http/response"
	"github.com/vkozii/authgate/internal/observability"
	"github.com/vkozii/authgate/internal/repository"
	"github.com/vkozii/authgate/internal/service"
)

type AuthHandler struct {
	authSvc  *service.AuthService
	accounts repository.AccountRepository
}

func NewAuthHandler(authSvc *service.AuthService, accounts repository.AccountRepository) *AuthHandler {
	return &AuthHandler{authSvc: authSvc, accounts: accounts}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "register", status, time.Since(start))
	}()

	var body struct {
		Email        string `json:"email"`
		Password     string `json:"password"`
		CaptchaToken string `json:"captcha_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	account, err := h.authSvc.Register(r.Context(), body.Email, body.Password, body.CaptchaToken)
	if err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditRegister, "outcome", "failure")
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditRegister, "outcome", "success", "account_id", account.ID)
	observability.RecordTokenEvent(r.Context(), "activation", "issue", "success")
	response.JSON(w, r, http.StatusCreated, map[string]any{"account": account})
}

func (h *AuthHandler) Activate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "activate", status, time.Since(start))
	}()

	token := r.URL.Query().Get("token")
	if token == "" {
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			token = body.Token
		}
	}
	if token == "" {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "missing activation token", nil)
		return
	}
	account, err := h.authSvc.Activate(r.Context(), token)
	if err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditActivate, "outcome", "failure")
		observability.RecordTokenEvent(r.Context(), "activation", "redeem", "failure")
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditActivate, "outcome", "success", "account_id", account.ID)
	observability.RecordTokenEvent(r.Context(), "activation", "redeem", "success")
	response.JSON(w, r, http.StatusOK, map[string]any{"account": account})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "login", status, time.Since(start))
	}()

	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	result, err := h.authSvc.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditLogin, "outcome", "failure")
		observability.RecordLogin(r.Context(), "password", "failure")
		writeServiceError(w, r, err)
		return
	}
	if result.TwoFactorRequired {
		observability.Audit(r, observability.AuditLogin, "outcome", "two_factor_pending", "account_id", result.Account.ID)
		observability.RecordLogin(r.Context(), "password", "two_factor_pending")
		response.JSON(w, r, http.StatusOK, map[string]any{"two_factor_required": true})
		return
	}
	observability.Audit(r, observability.AuditLogin, "outcome", "success", "account_id", result.Account.ID)
	observability.RecordLogin(r.Context(), "password", "success")
	writeSession(w, r, result)
}

func (h *AuthHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "two_factor_verify", status, time.Since(start))
	}()

	var body struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	result, err := h.authSvc.VerifyTwoFactor(r.Context(), body.Email, body.Code)
	if err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditTwoFactorVerify, "outcome", "failure")
		observability.RecordLogin(r.Context(), "two_factor", "failure")
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditTwoFactorVerify, "outcome", "success", "account_id", result.Account.ID)
	observability.RecordLogin(r.Context(), "two_factor", "success")
	writeSession(w, r, result)
}

func (h *AuthHandler) FederatedLogin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "federated_login", status, time.Since(start))
	}()

	var body struct {
		FederatedID string `json:"federated_id"`
		Email       string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	result, err := h.authSvc.LoginWithFederatedIdentity(r.Context(), body.FederatedID, body.Email)
	if err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditFederatedLogin, "outcome", "failure")
		observability.RecordLogin(r.Context(), "federated", "failure")
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditFederatedLogin, "outcome", "success", "account_id", result.Account.ID)
	observability.RecordLogin(r.Context(), "federated", "success")
	writeSession(w, r, result)
}

func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "password_forgot", status, time.Since(start))
	}()

	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.authSvc.RequestPasswordReset(r.Context(), body.Email); err != nil {
		status = "failure"
		writeServiceError(w, r, err)
		return
	}
	// Always 202: whether the address exists is not disclosed.
	observability.Audit(r, observability.AuditPasswordReset, "outcome", "requested")
	observability.RecordTokenEvent(r.Context(), "password_reset", "issue", "success")
	response.JSON(w, r, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "password_reset", status, time.Since(start))
	}()

	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.authSvc.ResetPassword(r.Context(), body.Token, body.NewPassword); err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditPasswordReset, "outcome", "failure")
		observability.RecordTokenEvent(r.Context(), "password_reset", "redeem", "failure")
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditPasswordReset, "outcome", "success")
	observability.RecordTokenEvent(r.Context(), "password_reset", "redeem", "success")
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "password_reset"})
}

func (h *AuthHandler) ConfirmEmailChange(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "email_confirm", status, time.Since(start))
	}()

	token := r.URL.Query().Get("token")
	if token == "" {
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			token = body.Token
		}
	}
	if token == "" {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "missing confirmation token", nil)
		return
	}
	account, err := h.authSvc.ConfirmEmailChange(r.Context(), token)
	if err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditEmailChange, "outcome", "failure")
		observability.RecordTokenEvent(r.Context(), "email_change", "redeem", "failure")
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditEmailChange, "outcome", "success", "account_id", account.ID)
	observability.RecordTokenEvent(r.Context(), "email_change", "redeem", "success")
	response.JSON(w, r, http.StatusOK, map[string]any{"account": account})
}

// Authenticated self-service endpoints below. The account is resolved from
// the bearer token's subject, never from the request body.

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, accountID, ok := subjectFromRequest(w, r)
	if !ok {
		return
	}
	account, err := h.accounts.FindByID(accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "account not found", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to load account", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"account": account, "session_expires_at": claims.ExpiresAt})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "password_change", status, time.Since(start))
	}()

	_, accountID, ok := subjectFromRequest(w, r)
	if !ok {
		status = "failure"
		return
	}
	var body struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.authSvc.ChangePassword(r.Context(), accountID, body.CurrentPassword, body.NewPassword); err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditPasswordChange, "outcome", "failure", "account_id", accountID)
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditPasswordChange, "outcome", "success", "account_id", accountID)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "password_changed"})
}

func (h *AuthHandler) EnableTwoFactor(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "two_factor_enable", status, time.Since(start))
	}()

	claims, _, ok := subjectFromRequest(w, r)
	if !ok {
		status = "failure"
		return
	}
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.authSvc.EnableTwoFactor(r.Context(), claims.Email, body.Password); err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditTwoFactorEnable, "outcome", "failure")
		observability.RecordTwoFactorEvent(r.Context(), "enable", "failure")
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditTwoFactorEnable, "outcome", "success")
	observability.RecordTwoFactorEvent(r.Context(), "enable", "success")
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "two_factor_enabled"})
}

func (h *AuthHandler) DisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "two_factor_disable", status, time.Since(start))
	}()

	claims, _, ok := subjectFromRequest(w, r)
	if !ok {
		status = "failure"
		return
	}
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.authSvc.DisableTwoFactor(r.Context(), claims.Email, body.Password); err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditTwoFactorDisable, "outcome", "failure")
		observability.RecordTwoFactorEvent(r.Context(), "disable", "failure")
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditTwoFactorDisable, "outcome", "success")
	observability.RecordTwoFactorEvent(r.Context(), "disable", "success")
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "two_factor_disabled"})
}

func (h *AuthHandler) RequestEmailChange(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "email_change_request", status, time.Since(start))
	}()

	_, accountID, ok := subjectFromRequest(w, r)
	if !ok {
		status = "failure"
		return
	}
	var body struct {
		Password string `json:"password"`
		NewEmail string `json:"new_email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.authSvc.RequestEmailChange(r.Context(), accountID, body.Password, body.NewEmail); err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditEmailChange, "outcome", "request_failure", "account_id", accountID)
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditEmailChange, "outcome", "requested", "account_id", accountID)
	observability.RecordTokenEvent(r.Context(), "email_change", "issue", "success")
	response.JSON(w, r, http.StatusAccepted, map[string]string{"status": "confirmation_sent"})
}

func (h *AuthHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "deactivate", status, time.Since(start))
	}()

	_, accountID, ok := subjectFromRequest(w, r)
	if !ok {
		status = "failure"
		return
	}
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.authSvc.Deactivate(r.Context(), accountID, body.Password); err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditDeactivate, "outcome", "failure", "account_id", accountID)
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditDeactivate, "outcome", "success", "account_id", accountID)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "deactivated"})
}

func writeSession(w http.ResponseWriter, r *http.Request, result *service.LoginResult) {
	response.JSON(w, r, http.StatusOK, map[string]any{
		"account":      result.Account,
		"access_token": result.AccessToken,
		"token_type":   "Bearer",
		"expires_at":   result.ExpiresAt,
	})
}
