package common

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
)

var sentryEnabled bool

// InitReporting enables Sentry when dsn is set. The returned func flushes
// buffered events and should be deferred by main.
func InitReporting(dsn, release string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{Dsn: dsn, Release: release}); err != nil {
		return nil, WrapError(ErrCodeInvalidInput, "failed to initialize sentry", err)
	}
	sentryEnabled = true
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// ReportError logs err and, when reporting is enabled, sends it to Sentry.
func ReportError(ctx context.Context, msg string, err error, attrs ...any) {
	args := append([]any{"error", err, "code", CodeOf(err)}, attrs...)

	if sentryEnabled {
		hub := sentry.CurrentHub().Clone()
		hub.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetTag("code", CodeOf(err))
			scope.SetExtra("message", msg)
		})
		if evID := hub.CaptureException(err); evID != nil {
			args = append(args, "sentry.EventID", string(*evID))
		}
	}

	Logger(ctx).Error(msg, args...)
}
