package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github-release-radar/internal/common"
	"github-release-radar/internal/domain"
)

// publisher 是 *nats.Conn 的子集
type publisher interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
}

// NATSSink 把通知发布到 NATS 主题，subject 后缀为通知类型
// 例如 radar.notifications.security
type NATSSink struct {
	conn    *nats.Conn
	pub     publisher
	subject string
	timeout time.Duration
}

func NewNATSSink(url, subject string, timeout time.Duration) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.Name("release-radar"),
		nats.Timeout(timeout),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return nil, common.WrapError(common.ErrCodeNotification, "连接 NATS 失败", err)
	}
	return &NATSSink{conn: conn, pub: conn, subject: subject, timeout: timeout}, nil
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Deliver(ctx context.Context, n *domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "序列化通知失败", err)
	}

	subject := s.subject + "." + string(n.Type)
	if err := s.pub.Publish(subject, data); err != nil {
		return common.WrapError(common.ErrCodeNotification, "发布到 NATS 失败", err)
	}
	if err := s.pub.FlushTimeout(s.timeout); err != nil {
		return common.WrapError(common.ErrCodeNotification, "NATS flush 超时", err)
	}
	return nil
}

func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}
