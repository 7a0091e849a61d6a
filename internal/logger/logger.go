package logger

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"push-vault-go/internal/config"
)

// New returns a development logger unless env is production, in which case
// it emits JSON with UTC ISO8601 timestamps.
func New(env string) (*zap.Logger, error) {
	switch env {
	default:
		return zap.NewDevelopment()

	case config.EnvProduction:
		logCfg := zap.NewProductionConfig()
		logCfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			zapcore.ISO8601TimeEncoder(t.UTC(), enc)
		}
		return logCfg.Build()
	}
}
