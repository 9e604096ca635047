package notify

import (
	"context"
	"log/slog"

	"github-release-radar/internal/common"
	"github-release-radar/internal/domain"
)

// ConsoleSink 把通知写进日志，默认渠道
type ConsoleSink struct{}

func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{}
}

func (s *ConsoleSink) Name() string { return "console" }

func (s *ConsoleSink) Deliver(ctx context.Context, n *domain.Notification) error {
	common.Logger(ctx).Info("[notification]",
		slog.String("id", n.ID),
		slog.String("user", n.UserID),
		slog.String("repo", n.RepositoryID),
		slog.String("type", string(n.Type)),
		slog.String("title", n.Title),
		slog.String("body", n.Body),
		slog.Any("payload", n.Payload),
	)
	return nil
}

// EmailSink 邮件渠道尚未接入，只记录日志并返回未启用错误，通知保持未投递
type EmailSink struct{}

func NewEmailSink() *EmailSink {
	return &EmailSink{}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Deliver(ctx context.Context, n *domain.Notification) error {
	common.Logger(ctx).Info("[notification][email-mock]",
		slog.String("id", n.ID),
		slog.String("user", n.UserID),
		slog.String("title", n.Title),
	)
	return common.NewError(common.ErrCodeNotification, "邮件渠道未启用")
}
