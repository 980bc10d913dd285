// Package handler はHTTPハンドラを提供する。
package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"optropic-code-service/internal/domain"
	"optropic-code-service/internal/middleware"
	"optropic-code-service/internal/usecase"
	"optropic-code-service/pkg/httputil"
)

var projectIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// KeyHandler は鍵操作のHTTPハンドラを提供する。
type KeyHandler struct {
	service *usecase.KeyService
}

// NewKeyHandler は新しいKeyHandlerを生成する。
func NewKeyHandler(service *usecase.KeyService) *KeyHandler {
	return &KeyHandler{service: service}
}

func validateProjectID(projectID string) error {
	if projectID == "" {
		return domain.ErrInvalidProjectID
	}
	if len(projectID) > 64 {
		return domain.ErrInvalidProjectID
	}
	if !projectIDRegex.MatchString(projectID) {
		return domain.ErrInvalidProjectID
	}
	return nil
}

// KeyResponse は鍵のレスポンス形式。秘密材料は含まれない。
type KeyResponse struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"projectId"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Algorithm   string  `json:"algorithm"`
	PublicKey   string  `json:"publicKey"`
	IsActive    bool    `json:"isActive"`
	ExpiresAt   *string `json:"expiresAt,omitempty"`
	PairedKeyID *string `json:"pairedKeyId,omitempty"`
	CreatedAt   string  `json:"createdAt"`
}

// KeyListResponse は鍵一覧のレスポンス形式。
type KeyListResponse struct {
	Keys []KeyResponse `json:"keys"`
}

// GenerateKeyRequest は鍵生成のリクエスト形式。
type GenerateKeyRequest struct {
	KeyName   string  `json:"keyName"`
	Type      string  `json:"type"`
	ExpiresAt *string `json:"expiresAt,omitempty"`
}

func toKeyResponse(m *domain.KeyMetadata) KeyResponse {
	resp := KeyResponse{
		ID:          m.ID,
		ProjectID:   m.ProjectID,
		Name:        m.Name,
		Type:        string(m.Type),
		Algorithm:   m.Algorithm,
		PublicKey:   base64.StdEncoding.EncodeToString(m.PublicKey),
		IsActive:    m.IsActive,
		PairedKeyID: m.PairedKeyID,
		CreatedAt:   m.CreatedAt.Format(time.RFC3339),
	}
	if m.ExpiresAt != nil {
		expires := m.ExpiresAt.Format(time.RFC3339)
		resp.ExpiresAt = &expires
	}
	return resp
}

// GenerateKey は新しい鍵を生成する。
func (h *KeyHandler) GenerateKey(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	if err := validateProjectID(projectID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_PROJECT_ID", "invalid project ID format")
		return
	}

	var req GenerateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.KeyName == "" {
		httputil.Error(w, http.StatusBadRequest, "INVALID_KEY_NAME", "keyName is required")
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != nil {
		parsed, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "INVALID_EXPIRES_AT", "expiresAt must be RFC3339")
			return
		}
		expiresAt = &parsed
	}

	metadata, err := h.service.GenerateKey(r.Context(), projectID, req.KeyName, domain.KeyType(req.Type), expiresAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			httputil.Error(w, http.StatusBadRequest, "INVALID_KEY_TYPE", "unknown key type")
			return
		}
		middleware.WriteAuditLog(r.Context(), "GENERATE_KEY", projectID, "", "FAILED")
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	middleware.WriteAuditLog(r.Context(), "GENERATE_KEY", projectID, metadata.ID, "SUCCESS")
	httputil.JSON(w, http.StatusCreated, toKeyResponse(metadata))
}

// RotateKey は鍵をローテーションし、後継鍵を返す。
func (h *KeyHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	if err := validateProjectID(projectID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_PROJECT_ID", "invalid project ID format")
		return
	}
	keyID := chi.URLParam(r, "key_id")

	metadata, err := h.service.RotateKey(r.Context(), keyID)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "ROTATE_KEY", projectID, keyID, "FAILED")
		switch {
		case errors.Is(err, domain.ErrKeyNotFound):
			httputil.Error(w, http.StatusNotFound, "KEY_NOT_FOUND", "key not found")
		case errors.Is(err, domain.ErrKeyInactive):
			httputil.Error(w, http.StatusConflict, "KEY_INACTIVE", "key is inactive or revoked")
		case errors.Is(err, domain.ErrKeyConflict):
			httputil.Error(w, http.StatusConflict, "ROTATION_CONFLICT", "key was rotated concurrently")
		default:
			httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return
	}

	middleware.WriteAuditLog(r.Context(), "ROTATE_KEY", projectID, metadata.ID, "SUCCESS")
	httputil.JSON(w, http.StatusCreated, toKeyResponse(metadata))
}

// RevokeKey は鍵を恒久的に失効させる。
func (h *KeyHandler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	if err := validateProjectID(projectID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_PROJECT_ID", "invalid project ID format")
		return
	}
	keyID := chi.URLParam(r, "key_id")

	metadata, err := h.service.RevokeKey(r.Context(), keyID)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "REVOKE_KEY", projectID, keyID, "FAILED")
		switch {
		case errors.Is(err, domain.ErrKeyNotFound):
			httputil.Error(w, http.StatusNotFound, "KEY_NOT_FOUND", "key not found")
		case errors.Is(err, domain.ErrKeyInactive):
			httputil.Error(w, http.StatusConflict, "KEY_INACTIVE", "key is already inactive")
		default:
			httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return
	}

	middleware.WriteAuditLog(r.Context(), "REVOKE_KEY", projectID, keyID, "SUCCESS")
	httputil.JSON(w, http.StatusOK, toKeyResponse(metadata))
}

// ListKeys は鍵一覧を取得する。?active=true で有効かつ未失効の鍵のみ返す。
func (h *KeyHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	if err := validateProjectID(projectID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_PROJECT_ID", "invalid project ID format")
		return
	}

	var keys []*domain.KeyMetadata
	var err error
	if r.URL.Query().Get("active") == "true" {
		keys, err = h.service.GetActiveKeys(r.Context(), projectID)
	} else {
		keys, err = h.service.ListKeys(r.Context(), projectID)
	}
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "LIST_KEYS", projectID, "", "FAILED")
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	response := KeyListResponse{
		Keys: make([]KeyResponse, len(keys)),
	}
	for i, k := range keys {
		response.Keys[i] = toKeyResponse(k)
	}
	httputil.JSON(w, http.StatusOK, response)
}
