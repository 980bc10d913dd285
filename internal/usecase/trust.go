package usecase

import (
	"time"

	"optropic-code-service/internal/domain"
)

// トラストスコアの減点幅。順序と重みは契約であり、
// 異常検知の閾値と通知トリガーがこの値に依存する。
const (
	trustPenaltyVeryOldCode = 20 // コード経過日数 365日以上
	trustPenaltyOldCode     = 10 // コード経過日数 180日超（365日未満）
	trustPenaltyExpiredKey  = 30
	trustPenaltyWeakCipher  = 10
	trustPenaltyInactiveKey = 50
)

// ComputeTrustScore はコード経過日数・鍵の状態・暗号強度から
// 0〜100のトラストスコアを決定的に算出する。
func ComputeTrustScore(code *domain.Code, key *domain.Key, now time.Time) int {
	score := 100

	// 経過日数の減点は排他で、両方は適用されない
	ageDays := now.Sub(code.CreatedAt).Hours() / 24
	if ageDays >= 365 {
		score -= trustPenaltyVeryOldCode
	} else if ageDays > 180 {
		score -= trustPenaltyOldCode
	}

	if key.IsExpired(now) {
		score -= trustPenaltyExpiredKey
	}

	if code.EncryptionLevel.IsWeak() {
		score -= trustPenaltyWeakCipher
	}

	if !key.IsActive {
		score -= trustPenaltyInactiveKey
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
