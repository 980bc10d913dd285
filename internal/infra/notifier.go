package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"optropic-code-service/internal/domain"
)

// WebhookNotifier はセキュリティイベントを外部WebhookへPOSTする通知シンク。
// 送信は短いタイムアウト付きのファイアアンドフォーゲットで、失敗は呼び出し側でログに残すだけにする。
type WebhookNotifier struct {
	client *http.Client
	url    string
}

// NewWebhookNotifier は通知先URLを指定してWebhookNotifierを生成する。
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		client: &http.Client{Timeout: 5 * time.Second},
		url:    url,
	}
}

// Notify はイベントをJSONとして通知先へ送信する。
func (n *WebhookNotifier) Notify(ctx context.Context, event *domain.SecurityEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
