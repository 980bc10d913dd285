package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"optropic-code-service/internal/domain"
	"optropic-code-service/internal/usecase"
	"optropic-code-service/pkg/httputil"
)

// VerifyHandler は検証エンドポイントのHTTPハンドラを提供する。
type VerifyHandler struct {
	service *usecase.VerificationService
}

// NewVerifyHandler は新しいVerifyHandlerを生成する。
func NewVerifyHandler(service *usecase.VerificationService) *VerifyHandler {
	return &VerifyHandler{service: service}
}

// VerifyRequest は検証のリクエスト形式。
type VerifyRequest struct {
	CodeValue  string  `json:"codeValue"`
	DeviceID   *string `json:"deviceId,omitempty"`
	IPAddress  *string `json:"ipAddress,omitempty"`
	UserAgent  *string `json:"userAgent,omitempty"`
	DeviceType *string `json:"deviceType,omitempty"`
	GeoHash    *string `json:"geoHash,omitempty"`
	Country    *string `json:"country,omitempty"`
	City       *string `json:"city,omitempty"`
	Region     *string `json:"region,omitempty"`
}

// VerifiedCodeResponse は検証成功時のコード概要。
type VerifiedCodeResponse struct {
	ID              string `json:"id"`
	CodeType        string `json:"codeType"`
	EncryptionLevel string `json:"encryptionLevel"`
	EntropySeed     string `json:"entropySeed"`
	CreatedAt       string `json:"createdAt"`
}

// VerifiedProjectResponse は検証成功時のプロジェクト概要。
type VerifiedProjectResponse struct {
	ID string `json:"id"`
}

// VerifyResponse は検証のレスポンス形式。ドメイン上の失敗も200で返す。
type VerifyResponse struct {
	Success      bool                     `json:"success"`
	TrustScore   int                      `json:"trustScore"`
	Message      string                   `json:"message"`
	IsSuspicious bool                     `json:"isSuspicious"`
	Code         *VerifiedCodeResponse    `json:"code,omitempty"`
	Project      *VerifiedProjectResponse `json:"project,omitempty"`
}

// Verify はスキャンされたトークンを検証する。
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.CodeValue == "" {
		httputil.Error(w, http.StatusBadRequest, "INVALID_CODE_VALUE", "codeValue is required")
		return
	}

	// リクエストIPはメタデータ未指定時のフォールバック
	meta := &domain.ScanMetadata{
		DeviceID:   req.DeviceID,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
		DeviceType: req.DeviceType,
		GeoHash:    req.GeoHash,
		Country:    req.Country,
		City:       req.City,
		Region:     req.Region,
	}
	if meta.IPAddress == nil && r.RemoteAddr != "" {
		addr := r.RemoteAddr
		meta.IPAddress = &addr
	}

	result, err := h.service.Verify(r.Context(), req.CodeValue, meta)
	if err != nil {
		// インフラ障害のみここに到達する
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	resp := VerifyResponse{
		Success:      result.Success,
		TrustScore:   result.TrustScore,
		Message:      result.Message,
		IsSuspicious: result.IsSuspicious,
	}
	if result.Code != nil {
		resp.Code = &VerifiedCodeResponse{
			ID:              result.Code.ID,
			CodeType:        string(result.Code.CodeType),
			EncryptionLevel: string(result.Code.EncryptionLevel),
			EntropySeed:     result.Code.EntropySeed,
			CreatedAt:       result.Code.CreatedAt.Format(time.RFC3339),
		}
	}
	if result.ProjectID != nil {
		resp.Project = &VerifiedProjectResponse{ID: *result.ProjectID}
	}
	httputil.JSON(w, http.StatusOK, resp)
}
