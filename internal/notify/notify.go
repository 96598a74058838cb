// Package notify carries user-facing notices out of the cart engine.
package notify

import (
	"context"
	"log/slog"

	"github.com/Skotchmaster/cartsync/pkg/logging"
)

type Notifier interface {
	Success(ctx context.Context, msg string)
	Error(ctx context.Context, msg string)
	Info(ctx context.Context, msg string)
}

// Log writes notices to the context logger, or to Logger when set.
type Log struct {
	Logger *slog.Logger
}

func (n Log) logger(ctx context.Context) *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return logging.FromContext(ctx)
}

func (n Log) Success(ctx context.Context, msg string) {
	n.logger(ctx).Info("notice", "kind", "success", "message", msg)
}

func (n Log) Error(ctx context.Context, msg string) {
	n.logger(ctx).Warn("notice", "kind", "error", "message", msg)
}

func (n Log) Info(ctx context.Context, msg string) {
	n.logger(ctx).Info("notice", "kind", "info", "message", msg)
}
