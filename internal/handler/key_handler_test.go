package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"optropic-code-service/internal/domain"
	"optropic-code-service/internal/usecase"
)

// mockKeyRepository はテスト用のモックリポジトリ。
type mockKeyRepository struct {
	findByIDResult   *domain.Key
	findByIDErr      error
	findAllResult    []*domain.Key
	findAllErr       error
	findActiveResult []*domain.Key
	findActiveErr    error
	createErr        error
	casResult        bool
	casErr           error
	deactivateErr    error
	createdKeys      []*domain.Key
}

func (m *mockKeyRepository) Create(ctx context.Context, key *domain.Key) error {
	if m.createErr != nil {
		return m.createErr
	}
	if key.ID == "" {
		key.ID = fmt.Sprintf("key-%d", len(m.createdKeys)+1)
	}
	key.CreatedAt = time.Now()
	m.createdKeys = append(m.createdKeys, key)
	return nil
}

func (m *mockKeyRepository) FindByID(ctx context.Context, id string) (*domain.Key, error) {
	return m.findByIDResult, m.findByIDErr
}

func (m *mockKeyRepository) FindAllByProjectID(ctx context.Context, projectID string) ([]*domain.Key, error) {
	return m.findAllResult, m.findAllErr
}

func (m *mockKeyRepository) FindActiveByProjectID(ctx context.Context, projectID string, now time.Time) ([]*domain.Key, error) {
	return m.findActiveResult, m.findActiveErr
}

func (m *mockKeyRepository) DeactivateCAS(ctx context.Context, id string, version uint) (bool, error) {
	return m.casResult, m.casErr
}

func (m *mockKeyRepository) Deactivate(ctx context.Context, id string) error {
	return m.deactivateErr
}

// mockKeyCipher は平文をそのまま返すテスト用のモックラッパー。
type mockKeyCipher struct {
	encryptErr error
	decryptErr error
}

func (m *mockKeyCipher) Encrypt(ctx context.Context, plaintext []byte) (ciphertext, nonce, tag []byte, err error) {
	if m.encryptErr != nil {
		return nil, nil, nil, m.encryptErr
	}
	return plaintext, []byte("nonce"), []byte("tag"), nil
}

func (m *mockKeyCipher) Decrypt(ctx context.Context, ciphertext, nonce, tag []byte) ([]byte, error) {
	if m.decryptErr != nil {
		return nil, m.decryptErr
	}
	return ciphertext, nil
}

func setupKeyHandler(repo *mockKeyRepository) *KeyHandler {
	service := usecase.NewKeyService(repo, &mockKeyCipher{})
	return NewKeyHandler(service)
}

func withURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestGenerateKey_Success(t *testing.T) {
	repo := &mockKeyRepository{}
	h := setupKeyHandler(repo)

	body := strings.NewReader(`{"keyName":"primary","type":"SIGNING"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/projects/proj-001/keys", body)
	req = withURLParams(req, map[string]string{"project_id": "proj-001"})

	rec := httptest.NewRecorder()
	h.GenerateKey(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("want status 201, got %d", rec.Code)
	}

	var resp map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["projectId"] != "proj-001" {
		t.Errorf("want projectId proj-001, got %v", resp["projectId"])
	}
	if resp["type"] != "SIGNING" {
		t.Errorf("want type SIGNING, got %v", resp["type"])
	}
	if resp["publicKey"] == "" {
		t.Error("want public key in response")
	}
}

func TestGenerateKey_InvalidProjectID(t *testing.T) {
	h := setupKeyHandler(&mockKeyRepository{})

	body := strings.NewReader(`{"keyName":"primary","type":"SIGNING"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/projects/invalid@project/keys", body)
	req = withURLParams(req, map[string]string{"project_id": "invalid@project"})

	rec := httptest.NewRecorder()
	h.GenerateKey(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("want status 400, got %d", rec.Code)
	}
}

func TestGenerateKey_MissingName(t *testing.T) {
	h := setupKeyHandler(&mockKeyRepository{})

	body := strings.NewReader(`{"type":"SIGNING"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/projects/proj-001/keys", body)
	req = withURLParams(req, map[string]string{"project_id": "proj-001"})

	rec := httptest.NewRecorder()
	h.GenerateKey(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("want status 400, got %d", rec.Code)
	}
}

func TestGenerateKey_UnknownType(t *testing.T) {
	h := setupKeyHandler(&mockKeyRepository{})

	body := strings.NewReader(`{"keyName":"primary","type":"BOGUS"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/projects/proj-001/keys", body)
	req = withURLParams(req, map[string]string{"project_id": "proj-001"})

	rec := httptest.NewRecorder()
	h.GenerateKey(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("want status 400, got %d", rec.Code)
	}
}

func TestRotateKey_Success(t *testing.T) {
	repo := &mockKeyRepository{
		findByIDResult: &domain.Key{
			ID:        "key-old",
			ProjectID: "proj-001",
			Name:      "primary",
			Type:      domain.KeyTypeSigning,
			IsActive:  true,
			Version:   1,
		},
		casResult: true,
	}
	h := setupKeyHandler(repo)

	req := httptest.NewRequest(http.MethodPost, "/v1/projects/proj-001/keys/key-old/rotate", nil)
	req = withURLParams(req, map[string]string{"project_id": "proj-001", "key_id": "key-old"})

	rec := httptest.NewRecorder()
	h.RotateKey(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("want status 201, got %d", rec.Code)
	}

	var resp map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["name"] != "primary (rotated)" {
		t.Errorf("want successor name, got %v", resp["name"])
	}
}

func TestRotateKey_NotFound(t *testing.T) {
	h := setupKeyHandler(&mockKeyRepository{})

	req := httptest.NewRequest(http.MethodPost, "/v1/projects/proj-001/keys/missing/rotate", nil)
	req = withURLParams(req, map[string]string{"project_id": "proj-001", "key_id": "missing"})

	rec := httptest.NewRecorder()
	h.RotateKey(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("want status 404, got %d", rec.Code)
	}
}

func TestRotateKey_Conflict(t *testing.T) {
	repo := &mockKeyRepository{
		findByIDResult: &domain.Key{ID: "key-old", IsActive: true, Version: 1},
		casResult:      false,
	}
	h := setupKeyHandler(repo)

	req := httptest.NewRequest(http.MethodPost, "/v1/projects/proj-001/keys/key-old/rotate", nil)
	req = withURLParams(req, map[string]string{"project_id": "proj-001", "key_id": "key-old"})

	rec := httptest.NewRecorder()
	h.RotateKey(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("want status 409, got %d", rec.Code)
	}
}

func TestRevokeKey_Success(t *testing.T) {
	repo := &mockKeyRepository{
		findByIDResult: &domain.Key{ID: "key-1", ProjectID: "proj-001", IsActive: true},
	}
	h := setupKeyHandler(repo)

	req := httptest.NewRequest(http.MethodDelete, "/v1/projects/proj-001/keys/key-1", nil)
	req = withURLParams(req, map[string]string{"project_id": "proj-001", "key_id": "key-1"})

	rec := httptest.NewRecorder()
	h.RevokeKey(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("want status 200, got %d", rec.Code)
	}

	var resp map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["isActive"] != false {
		t.Errorf("want isActive false, got %v", resp["isActive"])
	}
}

func TestRevokeKey_AlreadyInactive(t *testing.T) {
	repo := &mockKeyRepository{
		findByIDResult: &domain.Key{ID: "key-1", IsActive: false},
	}
	h := setupKeyHandler(repo)

	req := httptest.NewRequest(http.MethodDelete, "/v1/projects/proj-001/keys/key-1", nil)
	req = withURLParams(req, map[string]string{"project_id": "proj-001", "key_id": "key-1"})

	rec := httptest.NewRecorder()
	h.RevokeKey(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("want status 409, got %d", rec.Code)
	}
}

func TestListKeys_Success(t *testing.T) {
	repo := &mockKeyRepository{
		findAllResult: []*domain.Key{
			{ID: "key-1", ProjectID: "proj-001", IsActive: true},
			{ID: "key-2", ProjectID: "proj-001", IsActive: false},
		},
	}
	h := setupKeyHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/v1/projects/proj-001/keys", nil)
	req = withURLParams(req, map[string]string{"project_id": "proj-001"})

	rec := httptest.NewRecorder()
	h.ListKeys(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("want status 200, got %d", rec.Code)
	}

	var resp struct {
		Keys []KeyResponse `json:"keys"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if len(resp.Keys) != 2 {
		t.Errorf("want 2 keys, got %d", len(resp.Keys))
	}
}

func TestListKeys_ActiveOnly(t *testing.T) {
	repo := &mockKeyRepository{
		findActiveResult: []*domain.Key{
			{ID: "key-1", ProjectID: "proj-001", IsActive: true},
		},
	}
	h := setupKeyHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/v1/projects/proj-001/keys?active=true", nil)
	req = withURLParams(req, map[string]string{"project_id": "proj-001"})

	rec := httptest.NewRecorder()
	h.ListKeys(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("want status 200, got %d", rec.Code)
	}

	var resp struct {
		Keys []KeyResponse `json:"keys"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if len(resp.Keys) != 1 {
		t.Errorf("want 1 key, got %d", len(resp.Keys))
	}
}
