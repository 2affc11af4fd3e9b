package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/progression/internal/game/event"
)

// EventLogger returns an event.Handler that logs every character event.
// Level-ups, deaths and respawns log at Info; everything else at Debug.
//
// Precondition: logger must be non-nil.
func EventLogger(logger *zap.Logger) event.Handler {
	return func(e event.Event) {
		level := zapcore.DebugLevel
		switch e.Type {
		case event.LevelUp, event.Death, event.Respawn:
			level = zapcore.InfoLevel
		}
		ce := logger.Check(level, "character event")
		if ce == nil {
			return
		}
		fields := []zap.Field{
			zap.String("event", e.Type.String()),
			zap.String("character", e.Source),
		}
		switch e.Type {
		case event.StatChanged:
			fields = append(fields, zap.String("stat", e.Stat), zap.Float64("value", e.Value))
		case event.LevelUp:
			fields = append(fields, zap.Int("level", e.Level))
		case event.Death, event.Respawn:
		default:
			fields = append(fields, zap.Float64("value", e.Value))
		}
		ce.Write(fields...)
	}
}
