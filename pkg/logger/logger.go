package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

var (
	// Nop até Init ser chamado, para pacotes usados em testes e na CLI.
	Log   = zap.NewNop()
	Sugar = Log.Sugar()
)

func Init(level, format string, development bool) error {
	var config zap.Config

	if development {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		if format == "console" {
			config.Encoding = "console"
		}
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(lvl)

	built, err := config.Build()
	if err != nil {
		return err
	}

	Log = built.Named("mt5-history")
	Sugar = Log.Sugar()

	return nil
}

// ContextWithRequestID guarda o request id para WithContext.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, requestID)
}

func WithContext(ctx context.Context) *zap.Logger {
	if requestID, ok := ctx.Value(ctxKey{}).(string); ok && requestID != "" {
		return Log.With(zap.String("request_id", requestID))
	}
	return Log
}

func Close() {
	if Log != nil {
		_ = Log.Sync()
	}
}

func Fatal(msg string, fields ...zap.Field) {
	Log.Fatal(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Log.Error(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Log.Warn(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	Log.Info(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	Log.Debug(msg, fields...)
}
