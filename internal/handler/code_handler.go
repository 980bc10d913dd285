package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"optropic-code-service/internal/domain"
	"optropic-code-service/internal/middleware"
	"optropic-code-service/internal/usecase"
	"optropic-code-service/pkg/httputil"
)

// CodeHandler はコード操作のHTTPハンドラを提供する。
type CodeHandler struct {
	service *usecase.CodeService
}

// NewCodeHandler は新しいCodeHandlerを生成する。
func NewCodeHandler(service *usecase.CodeService) *CodeHandler {
	return &CodeHandler{service: service}
}

// IssueCodeRequest はコード発行のリクエスト形式。
type IssueCodeRequest struct {
	KeyID           string            `json:"keyId"`
	CodeType        string            `json:"codeType"`
	EncryptionLevel string            `json:"encryptionLevel"`
	ContentID       *string           `json:"contentId,omitempty"`
	AssetID         *string           `json:"assetId,omitempty"`
	Role            *string           `json:"role,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	EncryptPayload  bool              `json:"encryptPayload,omitempty"`
}

// EncryptedPayloadResponse は埋め込み暗号化ペイロードのレスポンス形式。
type EncryptedPayloadResponse struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
	Tag        string `json:"tag"`
}

// CodeResponse はコードのレスポンス形式。
type CodeResponse struct {
	ID               string                    `json:"id"`
	CodeValue        string                    `json:"codeValue"`
	CodeType         string                    `json:"codeType"`
	EncryptionLevel  string                    `json:"encryptionLevel"`
	EntropySeed      string                    `json:"entropySeed"`
	IsActive         bool                      `json:"isActive"`
	CreatedAt        string                    `json:"createdAt"`
	PatternURL       string                    `json:"patternUrl,omitempty"`
	EncryptedPayload *EncryptedPayloadResponse `json:"encryptedPayload,omitempty"`
}

// CodeListResponse はコード一覧のレスポンス形式。
type CodeListResponse struct {
	Codes []CodeResponse `json:"codes"`
}

// CodeStatsResponse はコード統計のレスポンス形式。
type CodeStatsResponse struct {
	TotalCodes        int64   `json:"totalCodes"`
	ActiveCodes       int64   `json:"activeCodes"`
	InactiveCodes     int64   `json:"inactiveCodes"`
	TotalScans        int64   `json:"totalScans"`
	AverageTrustScore float64 `json:"averageTrustScore"`
}

func toCodeResponse(c *domain.Code) CodeResponse {
	return CodeResponse{
		ID:              c.ID,
		CodeValue:       c.CodeValue,
		CodeType:        string(c.CodeType),
		EncryptionLevel: string(c.EncryptionLevel),
		EntropySeed:     c.EntropySeed,
		IsActive:        c.IsActive,
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
	}
}

// IssueCode は署名付きコードを発行する。
func (h *CodeHandler) IssueCode(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	if err := validateProjectID(projectID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_PROJECT_ID", "invalid project ID format")
		return
	}

	var req IssueCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.KeyID == "" {
		httputil.Error(w, http.StatusBadRequest, "INVALID_KEY_ID", "keyId is required")
		return
	}

	issued, err := h.service.IssueCode(r.Context(), &usecase.IssueCodeInput{
		ProjectID:       projectID,
		KeyID:           req.KeyID,
		CodeType:        domain.CodeType(req.CodeType),
		EncryptionLevel: domain.EncryptionLevel(req.EncryptionLevel),
		ContentID:       req.ContentID,
		AssetID:         req.AssetID,
		Role:            req.Role,
		Metadata:        req.Metadata,
		EncryptPayload:  req.EncryptPayload,
	})
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "ISSUE_CODE", projectID, req.KeyID, "FAILED")
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			httputil.Error(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		case errors.Is(err, domain.ErrKeyNotFound):
			httputil.Error(w, http.StatusNotFound, "KEY_NOT_FOUND", "key not found")
		case errors.Is(err, domain.ErrKeyInactive), errors.Is(err, domain.ErrKeyExpired):
			httputil.Error(w, http.StatusConflict, "KEY_INVALID", "key is not active")
		default:
			httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return
	}

	middleware.WriteAuditLog(r.Context(), "ISSUE_CODE", projectID, issued.Code.ID, "SUCCESS")
	resp := toCodeResponse(issued.Code)
	resp.PatternURL = issued.PatternURL
	if issued.EncryptedPayload != nil {
		resp.EncryptedPayload = &EncryptedPayloadResponse{
			Ciphertext: issued.EncryptedPayload.Ciphertext,
			Nonce:      issued.EncryptedPayload.Nonce,
			Tag:        issued.EncryptedPayload.Tag,
		}
	}
	httputil.JSON(w, http.StatusCreated, resp)
}

// RevokeCode はコードを失効させる。
func (h *CodeHandler) RevokeCode(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	if err := validateProjectID(projectID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_PROJECT_ID", "invalid project ID format")
		return
	}
	codeID := chi.URLParam(r, "code_id")

	code, err := h.service.RevokeCode(r.Context(), codeID)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "REVOKE_CODE", projectID, codeID, "FAILED")
		switch {
		case errors.Is(err, domain.ErrCodeNotFound):
			httputil.Error(w, http.StatusNotFound, "CODE_NOT_FOUND", "code not found")
		case errors.Is(err, domain.ErrCodeRevoked):
			httputil.Error(w, http.StatusConflict, "CODE_ALREADY_REVOKED", "code is already revoked")
		default:
			httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return
	}

	middleware.WriteAuditLog(r.Context(), "REVOKE_CODE", projectID, codeID, "SUCCESS")
	httputil.JSON(w, http.StatusOK, toCodeResponse(code))
}

// LookupCode はエンコード済みトークンからコードを解決する。検証と違い副作用はない。
func (h *CodeHandler) LookupCode(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	if err := validateProjectID(projectID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_PROJECT_ID", "invalid project ID format")
		return
	}
	value := r.URL.Query().Get("value")
	if value == "" {
		httputil.Error(w, http.StatusBadRequest, "INVALID_CODE_VALUE", "value is required")
		return
	}

	code, err := h.service.GetCodeByValue(r.Context(), value)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidToken):
			httputil.Error(w, http.StatusBadRequest, "INVALID_CODE_VALUE", "malformed code value")
		case errors.Is(err, domain.ErrCodeNotFound):
			httputil.Error(w, http.StatusNotFound, "CODE_NOT_FOUND", "code not found")
		default:
			httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return
	}
	if code.ProjectID != projectID {
		httputil.Error(w, http.StatusNotFound, "CODE_NOT_FOUND", "code not found")
		return
	}

	httputil.JSON(w, http.StatusOK, toCodeResponse(code))
}

// ListCodes はコード一覧を取得する。
func (h *CodeHandler) ListCodes(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	if err := validateProjectID(projectID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_PROJECT_ID", "invalid project ID format")
		return
	}

	codes, err := h.service.ListCodes(r.Context(), projectID)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	response := CodeListResponse{
		Codes: make([]CodeResponse, len(codes)),
	}
	for i, c := range codes {
		response.Codes[i] = toCodeResponse(c)
	}
	httputil.JSON(w, http.StatusOK, response)
}

// GetStats はコードとスキャンの統計を取得する。
func (h *CodeHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	if err := validateProjectID(projectID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_PROJECT_ID", "invalid project ID format")
		return
	}

	stats, err := h.service.GetStats(r.Context(), projectID)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	httputil.JSON(w, http.StatusOK, CodeStatsResponse{
		TotalCodes:        stats.TotalCodes,
		ActiveCodes:       stats.ActiveCodes,
		InactiveCodes:     stats.InactiveCodes,
		TotalScans:        stats.TotalScans,
		AverageTrustScore: stats.AverageTrustScore,
	})
}
