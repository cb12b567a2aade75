package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/iso-game/internal/logging"
)

// TraceHeader заголовок ответа с идентификатором запроса
const TraceHeader = "X-Trace-Id"

// RequestLogger присваивает запросу trace-id и пишет строку в лог.
// Ответы 5xx пишутся с уровнем WARN, остальные DEBUG.
type RequestLogger struct {
	log *logging.Logger
}

func NewRequestLogger(log *logging.Logger) *RequestLogger {
	if log == nil {
		log = logging.GetServerLogger()
	}
	return &RequestLogger{log: log}
}

func (rl *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// otelgin уже открыл span - берём его trace-id
		var traceID string
		if sc := trace.SpanFromContext(c.Request.Context()).SpanContext(); sc.IsValid() {
			traceID = sc.TraceID().String()
		} else {
			traceID = uuid.NewString()
		}
		c.Set("trace_id", traceID)
		c.Header(TraceHeader, traceID)

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		logf := rl.log.Debug
		if status >= 500 {
			logf = rl.log.Warn
		}
		logf("[HTTP] %s %s %d %s ip=%s trace=%s",
			c.Request.Method, path, status, time.Since(start), c.ClientIP(), traceID)
	}
}
