package domain

// セキュリティイベント種別。
const (
	// EventRevokedCodeReuse は失効済みコードの再利用を表す。
	EventRevokedCodeReuse = "revoked_code_reuse"
	// EventScanAnomaly はスキャンレートの異常を表す。
	EventScanAnomaly = "scan_anomaly"
)

// SecurityEvent は通知シンクへ送るセキュリティイベントを表す。
type SecurityEvent struct {
	Event     string         `json:"event"`
	ProjectID string         `json:"projectId"`
	CodeID    *string        `json:"codeId,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
}
