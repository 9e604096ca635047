package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github-release-radar/internal/common"
	"github-release-radar/internal/domain"
)

// WebhookSink 以 JSON POST 整条通知记录，不重试
type WebhookSink struct {
	url    string
	client *http.Client
}

func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	return &WebhookSink{url: url, client: &http.Client{Timeout: timeout}}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Deliver(ctx context.Context, n *domain.Notification) error {
	if s.url == "" {
		return common.NewError(common.ErrCodeNotification, "Webhook URL 为空")
	}

	body, err := json.Marshal(n)
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "序列化通知失败", err)
	}
	return postJSON(ctx, s.client, s.url, body)
}

func postJSON(ctx context.Context, client *http.Client, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "构造请求失败", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "发送请求失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return common.NewError(common.ErrCodeNotification, fmt.Sprintf("对端报错: 状态码 %d", resp.StatusCode))
	}
	return nil
}
