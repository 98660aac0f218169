package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vkozii/authgate/internal/domain"
	"github.com/vkozii/authgate/internal/http/response"
	"github.com/vkozii/authgate/internal/observability"
	"github.com/vkozii/authgate/internal/repository"
	"github.com/vkozii/authgate/internal/service"
)

const defaultAttemptLimit = 50

type AdminHandler struct {
	adminSvc *service.AdminService
}

func NewAdminHandler(adminSvc *service.AdminService) *AdminHandler {
	return &AdminHandler{adminSvc: adminSvc}
}

func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	pageReq, err := parsePageRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	page, err := h.adminSvc.ListAccounts(pageReq)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to list accounts", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, paginatedData(page.Items, page.Page, page.PageSize, page.Total, page.TotalPages))
}

func (h *AdminHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	targetID, err := parsePathID(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid account id", nil)
		return
	}
	if err := h.adminSvc.DeleteAccount(r.Context(), targetID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditAdminDelete, "target_account_id", targetID)
	response.JSON(w, r, http.StatusOK, map[string]any{"account_id": targetID, "status": "deleted"})
}

func (h *AdminHandler) ToggleActive(w http.ResponseWriter, r *http.Request) {
	targetID, err := parsePathID(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid account id", nil)
		return
	}
	account, err := h.adminSvc.ToggleActive(r.Context(), targetID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditAdminToggleActive, "target_account_id", targetID, "is_active", account.IsActive)
	response.JSON(w, r, http.StatusOK, map[string]any{"account": account})
}

func (h *AdminHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	targetID, err := parsePathID(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid account id", nil)
		return
	}
	_, actorID, ok := subjectFromRequest(w, r)
	if !ok {
		return
	}
	var body struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	role, err := domain.ParseRole(body.Role)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "role must be user or admin", nil)
		return
	}
	account, err := h.adminSvc.ChangeRole(r.Context(), actorID, targetID, role)
	if err != nil {
		observability.RecordRoleMutation(r.Context(), "rejected")
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditAdminRoleChange, "actor_account_id", actorID, "target_account_id", targetID, "role", string(role))
	observability.RecordRoleMutation(r.Context(), "success")
	response.JSON(w, r, http.StatusOK, map[string]any{"account": account})
}

func (h *AdminHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	targetID, err := parsePathID(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid account id", nil)
		return
	}
	if err := h.adminSvc.RequestPasswordReset(r.Context(), targetID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditPasswordReset, "outcome", "admin_requested", "target_account_id", targetID)
	observability.RecordTokenEvent(r.Context(), "password_reset", "issue", "success")
	response.JSON(w, r, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *AdminHandler) ChangeEmail(w http.ResponseWriter, r *http.Request) {
	targetID, err := parsePathID(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid account id", nil)
		return
	}
	var body struct {
		NewEmail string `json:"new_email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	account, err := h.adminSvc.ChangeEmail(r.Context(), targetID, body.NewEmail)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditAdminEmailOverride, "target_account_id", targetID, "new_email", account.Email)
	response.JSON(w, r, http.StatusOK, map[string]any{"account": account})
}

func (h *AdminHandler) ListLoginAttempts(w http.ResponseWriter, r *http.Request) {
	limit := defaultAttemptLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > repository.MaxPageSize*10 {
			response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "limit must be a positive integer", nil)
			return
		}
		limit = v
	}
	attempts, err := h.adminSvc.ListLoginAttempts(limit)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to list login attempts", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"attempts": attempts})
}

func parsePathID(input string) (uint, error) {
	id64, err := strconv.ParseUint(input, 10, 64)
	if err != nil || id64 == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id64), nil
}

func parsePageRequest(r *http.Request) (repository.PageRequest, error) {
	page := repository.DefaultPage
	pageSize := repository.DefaultPageSize
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return repository.PageRequest{}, errors.New("page must be a positive integer")
		}
		page = v
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("page_size")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > repository.MaxPageSize {
			return repository.PageRequest{}, errors.New("page_size out of range")
		}
		pageSize = v
	}
	return repository.PageRequest{Page: page, PageSize: pageSize}, nil
}

func paginatedData[T any](items []T, page, pageSize int, total int64, totalPages int) map[string]any {
	return map[string]any{
		"items": items,
		"pagination": map[string]any{
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": totalPages,
		},
	}
}
