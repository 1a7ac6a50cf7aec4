package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/config"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
)

// New builds the production JSON logger at the configured level.
func New(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil {
		return nil, errs.Wrapf(err, "invalid LOG_LEVEL %q", cfg.Log.Level)
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zc.Build()
	if err != nil {
		return nil, errs.Wrap(err, "build logger")
	}
	return logger, nil
}
