package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"signal-trader/internal/logger"
)

// LogNotifier writes notifications to the application log. Used when no
// webhook is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Notify(ctx context.Context, msg string) {
	logger.Info(ctx, "Notification", "message", msg)
}

// WebhookNotifier posts notifications as JSON to a webhook URL.
// Fire-and-forget: delivery failures are logged and swallowed.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, msg string) {
	body, _ := json.Marshal(map[string]string{"text": msg})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		logger.Warn(ctx, "Failed to build notification request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		logger.Warn(ctx, "Failed to deliver notification", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		logger.Warn(ctx, "Notification webhook rejected message", "status", resp.StatusCode)
	}
}
