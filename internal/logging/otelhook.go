package logging

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	otellog "go.opentelemetry.io/otel/log"
)

const instrumentationName = "tenant-authz/internal/logging"

// OTelHook forwards logrus entries to an OpenTelemetry LoggerProvider as log records.
// The message becomes the body and entry fields become attributes.
type OTelHook struct {
	logger otellog.Logger
	levels []logrus.Level
}

// NewOTelHook returns a hook emitting through provider for entries at minLevel or more severe.
func NewOTelHook(provider otellog.LoggerProvider, minLevel logrus.Level) *OTelHook {
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= minLevel {
			levels = append(levels, l)
		}
	}
	return &OTelHook{logger: provider.Logger(instrumentationName), levels: levels}
}

// Levels implements logrus.Hook.
func (h *OTelHook) Levels() []logrus.Level { return h.levels }

// Fire implements logrus.Hook. Emitting never fails the log call.
func (h *OTelHook) Fire(e *logrus.Entry) error {
	var rec otellog.Record
	rec.SetTimestamp(e.Time)
	rec.SetObservedTimestamp(time.Now())
	rec.SetSeverity(severity(e.Level))
	rec.SetSeverityText(e.Level.String())
	rec.SetBody(otellog.StringValue(e.Message))
	for k, v := range e.Data {
		rec.AddAttributes(attribute(k, v))
	}
	ctx := e.Context
	if ctx == nil {
		ctx = context.Background()
	}
	h.logger.Emit(ctx, rec)
	return nil
}

func severity(l logrus.Level) otellog.Severity {
	switch l {
	case logrus.TraceLevel:
		return otellog.SeverityTrace
	case logrus.DebugLevel:
		return otellog.SeverityDebug
	case logrus.InfoLevel:
		return otellog.SeverityInfo
	case logrus.WarnLevel:
		return otellog.SeverityWarn
	case logrus.ErrorLevel:
		return otellog.SeverityError
	case logrus.FatalLevel:
		return otellog.SeverityFatal
	default:
		return otellog.SeverityFatal4
	}
}

func attribute(k string, v interface{}) otellog.KeyValue {
	switch x := v.(type) {
	case string:
		return otellog.String(k, x)
	case bool:
		return otellog.Bool(k, x)
	case int:
		return otellog.Int(k, x)
	case int64:
		return otellog.Int64(k, x)
	case float64:
		return otellog.Float64(k, x)
	case time.Duration:
		return otellog.Int64(k, x.Milliseconds())
	case error:
		return otellog.String(k, x.Error())
	case fmt.Stringer:
		return otellog.String(k, x.String())
	default:
		return otellog.String(k, fmt.Sprint(x))
	}
}
