package logger

import (
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Leveled adapts a zap logger to retryablehttp.LeveledLogger.
// Request-level chatter is demoted to debug; only errors and retries surface.
func Leveled(l *zap.Logger) retryablehttp.LeveledLogger {
	return leveled{s: l.Sugar()}
}

type leveled struct {
	s *zap.SugaredLogger
}

func (l leveled) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }
func (l leveled) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l leveled) Info(msg string, kv ...any)  { l.s.Debugw(msg, kv...) }
func (l leveled) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
