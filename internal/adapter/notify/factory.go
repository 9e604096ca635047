package notify

import (
	"fmt"
	"time"

	"github-release-radar/internal/common"
	"github-release-radar/internal/port"
)

// Options 选择通知渠道及其参数
type Options struct {
	Provider      string
	WebhookURL    string
	FeishuWebhook string
	NATSURL       string
	NATSSubject   string
	Timeout       time.Duration
}

// New 按 Provider 创建 Sink。返回的 close 函数总是非 nil
func New(opts Options) (port.Sink, func(), error) {
	noop := func() {}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	switch opts.Provider {
	case "", "console":
		return NewConsoleSink(), noop, nil
	case "email":
		return NewEmailSink(), noop, nil
	case "webhook":
		return NewWebhookSink(opts.WebhookURL, timeout), noop, nil
	case "feishu":
		return NewFeishuSink(opts.FeishuWebhook, timeout), noop, nil
	case "nats":
		sink, err := NewNATSSink(opts.NATSURL, opts.NATSSubject, timeout)
		if err != nil {
			return nil, noop, err
		}
		return sink, func() { _ = sink.Close() }, nil
	default:
		return nil, noop, common.NewError(common.ErrCodeInvalidInput, fmt.Sprintf("未知的通知渠道 %q", opts.Provider))
	}
}
