package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github-release-radar/internal/common"
	"github-release-radar/internal/domain"
)

// FeishuSink 发送飞书卡片消息 (Schema 2.0)
type FeishuSink struct {
	webhookURL string
	client     *http.Client
}

func NewFeishuSink(webhook string, timeout time.Duration) *FeishuSink {
	return &FeishuSink{webhookURL: webhook, client: &http.Client{Timeout: timeout}}
}

func (s *FeishuSink) Name() string { return "feishu" }

func (s *FeishuSink) Deliver(ctx context.Context, n *domain.Notification) error {
	if s.webhookURL == "" {
		return common.NewError(common.ErrCodeNotification, "飞书 Webhook 为空")
	}

	body, err := json.Marshal(buildCard(n))
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "序列化卡片失败", err)
	}
	return postJSON(ctx, s.client, s.webhookURL, body)
}

// 卡片头部颜色跟随严重程度
var templateBySeverity = map[string]string{
	string(domain.SignificanceHigh):   "red",
	string(domain.SignificanceMedium): "orange",
	string(domain.SignificanceLow):    "blue",
}

func buildCard(n *domain.Notification) map[string]interface{} {
	severity, _ := n.Payload["severity"].(string)
	template, ok := templateBySeverity[severity]
	if !ok {
		template = "blue"
	}

	mdContent := fmt.Sprintf(`**📦 仓库:** %s  |  **类型:** %s  |  **重要程度:** %s

%s
`, n.RepositoryID, n.Type, severity, n.Body)

	elements := []map[string]interface{}{
		{
			"tag":       "markdown",
			"content":   mdContent,
			"text_size": "normal",
		},
	}

	link, _ := n.Payload["releaseUrl"].(string)
	if link == "" && n.RepositoryID != "" {
		link = domain.RepoURL(n.RepositoryID)
	}
	if link != "" {
		elements = append(elements, map[string]interface{}{
			"tag": "button",
			"text": map[string]interface{}{
				"tag":     "plain_text",
				"content": "🔗 查看发布",
			},
			"type": "primary",
			"behaviors": []map[string]interface{}{
				{
					"type":        "open_url",
					"default_url": link,
				},
			},
		})
	}

	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"schema": "2.0",
			"config": map[string]interface{}{
				"update_multi": true,
			},
			"header": map[string]interface{}{
				"title": map[string]interface{}{
					"tag":     "plain_text",
					"content": n.Title,
				},
				"template": template,
			},
			"body": map[string]interface{}{
				"direction": "vertical",
				"elements":  elements,
			},
		},
	}
}
