package webrtc

import (
	"github.com/pion/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLoggerFactory routes pion's internal logs through zap.
type zapLoggerFactory struct {
	logger *zap.SugaredLogger
}

// NewLoggerFactory returns a pion logger factory that logs at level or
// above. It returns nil for an empty or unknown level, which leaves pion's
// default logging in place.
func NewLoggerFactory(logger *zap.SugaredLogger, level string) logging.LoggerFactory {
	if level == "" {
		return nil
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil
	}
	return &zapLoggerFactory{
		logger: logger.Desugar().WithOptions(zap.IncreaseLevel(lvl), zap.AddCallerSkip(1)).Sugar(),
	}
}

func (f *zapLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &zapLeveledLogger{logger: f.logger.With("scope", scope)}
}

type zapLeveledLogger struct {
	logger *zap.SugaredLogger
}

func (l *zapLeveledLogger) Trace(msg string)                          { l.logger.Debug(msg) }
func (l *zapLeveledLogger) Tracef(format string, args ...interface{}) { l.logger.Debugf(format, args...) }
func (l *zapLeveledLogger) Debug(msg string)                          { l.logger.Debug(msg) }
func (l *zapLeveledLogger) Debugf(format string, args ...interface{}) { l.logger.Debugf(format, args...) }
func (l *zapLeveledLogger) Info(msg string)                           { l.logger.Info(msg) }
func (l *zapLeveledLogger) Infof(format string, args ...interface{})  { l.logger.Infof(format, args...) }
func (l *zapLeveledLogger) Warn(msg string)                           { l.logger.Warn(msg) }
func (l *zapLeveledLogger) Warnf(format string, args ...interface{})  { l.logger.Warnf(format, args...) }
func (l *zapLeveledLogger) Error(msg string)                          { l.logger.Error(msg) }
func (l *zapLeveledLogger) Errorf(format string, args ...interface{}) { l.logger.Errorf(format, args...) }
