package events

import (
	"portfolio-chat/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
)

// watermillLogger routes watermill's internal logging into ILogger.
type watermillLogger struct {
	logger logger.ILogger
	fields watermill.LogFields
}

func NewWatermillLogger(l logger.ILogger) watermill.LoggerAdapter {
	return &watermillLogger{logger: logger.OrNop(l)}
}

func (w *watermillLogger) details(fields watermill.LogFields) map[string]interface{} {
	out := make(map[string]interface{}, len(w.fields)+len(fields))
	for k, v := range w.fields {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (w *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	d := w.details(fields)
	if err != nil {
		d["error"] = err.Error()
	}
	w.logger.Error("EVENTS", msg, d)
}

func (w *watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.logger.Info("EVENTS", msg, w.details(fields))
}

func (w *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.logger.Debug("EVENTS", msg, w.details(fields))
}

func (w *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.logger.Debug("EVENTS", msg, w.details(fields))
}

func (w *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{logger: w.logger, fields: w.details(fields)}
}
