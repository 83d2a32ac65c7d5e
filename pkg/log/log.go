package log

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// InitLogs returns the process-wide logger. The level is adjusted later
// from configuration once it has been loaded.
func InitLogs() *logrus.Logger {
	log := logrus.New()

	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return log
}

// WithReqIDFromCtx creates a logger carrying the request id set by
// middleware.RequestID.
func WithReqIDFromCtx(ctx context.Context, inner logrus.FieldLogger) logrus.FieldLogger {
	return inner.WithField("request_id", middleware.GetReqID(ctx))
}
