// Package zlog provides logging services.
package zlog

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var level = zap.NewAtomicLevelAt(zap.InfoLevel)

// Logger exposes the zap logger.
var Logger = initLogger()

func initLogger() *zap.Logger {
	logConfig := zap.NewProductionConfig()

	logConfig.Encoding = "json"
	logConfig.Level = level

	logConfig.EncoderConfig = zapcore.EncoderConfig{
		LevelKey:     "level",
		TimeKey:      "zap_time", // ginzap logs a "time" field already
		MessageKey:   "message",
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeLevel:  zapcore.CapitalLevelEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}

	l, err := logConfig.Build()
	if err != nil {
		log.Fatalf("initLogger: %v", err)
	}

	return l
}

// SetDebug switches debug level on or off.
func SetDebug(debug bool) {
	if debug {
		level.SetLevel(zap.DebugLevel)
		return
	}
	level.SetLevel(zap.InfoLevel)
}

// Debugf logs at debug level.
func Debugf(format string, v ...any) {
	Logger.Debug(fmt.Sprintf(format, v...))
}

// Infof logs at info level.
func Infof(format string, v ...any) {
	Logger.Info(fmt.Sprintf(format, v...))
}

// Warnf logs at warn level.
func Warnf(format string, v ...any) {
	Logger.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs at error level.
func Errorf(format string, v ...any) {
	Logger.Error(fmt.Sprintf(format, v...))
}

// Fatalf logs at fatal level and exits.
func Fatalf(format string, v ...any) {
	Logger.Fatal(fmt.Sprintf(format, v...))
}

// GinContext provides a log context for ginzap log middleware.
func GinContext(c *gin.Context) []zapcore.Field {
	var fields []zapcore.Field

	// log trace ID
	if sc := trace.SpanFromContext(c.Request.Context()).SpanContext(); sc.IsValid() {
		fields = append(fields, zap.String("traceId", sc.TraceID().String()))
	}

	return fields
}
