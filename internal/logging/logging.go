// Package logging builds the worker's structured logger.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production JSON logger, or a human-readable console logger
// when dev is true. Unlike a package-level global, the logger is constructed
// once at process start and passed by reference into every component, per
// the explicit-init convention the rest of the worker follows.
func New(dev bool) (*zap.Logger, error) {
	if dev {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg.Build(zap.AddCaller())
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build(zap.AddCaller())
}

// StageFields returns the common job/stage fields attached to every
// pipeline log line.
func StageFields(jobID, stage string) []zap.Field {
	return []zap.Field{
		zap.String("job_id", jobID),
		zap.String("stage", stage),
	}
}
