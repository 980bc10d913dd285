package domain

import "time"

// Scan は検証試行の監査レコードを表す。追記専用で、検証1回につき必ず1行生成される。
type Scan struct {
	ID                  string
	CodeID              *string // トークンが解読・照合できなかった場合はnil
	VerificationSuccess bool
	TrustScore          int
	IsSuspicious        bool
	RiskScore           int
	FailureReason       *string
	IPAddress           *string
	UserAgent           *string
	DeviceType          *string
	GeoHash             *string
	Country             *string
	City                *string
	Region              *string
	ProjectID           *string
	CreatedAt           time.Time
}

// ScanMetadata は検証リクエストに付随する端末・位置情報を表す。
type ScanMetadata struct {
	DeviceID   *string
	IPAddress  *string
	UserAgent  *string
	DeviceType *string
	GeoHash    *string
	Country    *string
	City       *string
	Region     *string
}

// SuspiciousSource は不審スキャンの多い送信元IPを表す。
type SuspiciousSource struct {
	IPAddress string
	ScanCount int64
}

// AnomalyReport はスキャンレートの異常検知結果を表す。
type AnomalyReport struct {
	ProjectID   string
	CurrentRate int64
	AverageRate float64
	Deviation   float64
	Threshold   float64
	HasAnomaly  bool
}
