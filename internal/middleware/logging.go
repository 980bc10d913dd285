// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"
)

// WriteAuditLog は監査ログを出力する。
func WriteAuditLog(ctx context.Context, operation string, projectID string, targetID string, result string) {
	slog.InfoContext(ctx, "operation completed",
		"operation", operation,
		"project_id", projectID,
		"target_id", targetID,
		"result", result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	)
}
