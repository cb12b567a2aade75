package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/annel0/iso-game/internal/logging"
)

// ShutdownFunc завершает экспорт трасс
type ShutdownFunc func(context.Context) error

// InitTelemetry настраивает OTLP экспортер и устанавливает глобальный TracerProvider.
// Адрес коллектора берётся из стандартных переменных OTEL_EXPORTER_OTLP_* (по умолчанию localhost:4318).
func InitTelemetry(ctx context.Context, serviceName, sessionID string) (ShutdownFunc, error) {
	exp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}
	return install(ctx, serviceName, sessionID, trace.WithBatcher(exp))
}

// InitWithExporter то же, но с произвольным экспортером (синхронная отправка)
func InitWithExporter(ctx context.Context, serviceName, sessionID string, exp trace.SpanExporter) (ShutdownFunc, error) {
	return install(ctx, serviceName, sessionID, trace.WithSyncer(exp))
}

func install(ctx context.Context, serviceName, sessionID string, opt trace.TracerProviderOption) (ShutdownFunc, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			attribute.String("game.session_id", sessionID),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(opt, trace.WithResource(res))
	otel.SetTracerProvider(tp)
	logging.Info("📡 OpenTelemetry инициализирован (service=%s, session=%s)", serviceName, sessionID)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}
