package logging

import (
	"io"

	"github.com/rs/zerolog"
)

// NewZerolog builds the JSON zerolog logger used by the storage managers, tagged
// with component.
func NewZerolog(w io.Writer, level, component string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("component", component).Logger()
}

// DispatcherLogger adapts zerolog.Logger to the dispatcher.Logger interface.
type DispatcherLogger struct {
	logger zerolog.Logger
}

// NewDispatcherLogger creates a new DispatcherLogger wrapping a zerolog.Logger.
func NewDispatcherLogger(logger zerolog.Logger) *DispatcherLogger {
	return &DispatcherLogger{logger: logger}
}

// Debug logs a debug message with optional key-value pairs.
func (l *DispatcherLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(toFields(keysAndValues)).Msg(msg)
}

// Info logs an info message with optional key-value pairs.
func (l *DispatcherLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info().Fields(toFields(keysAndValues)).Msg(msg)
}

// Error logs an error message with optional key-value pairs. An error value under
// the "error" key is rendered with zerolog's error field.
func (l *DispatcherLogger) Error(msg string, keysAndValues ...any) {
	fields := toFields(keysAndValues)
	ev := l.logger.Error()
	if err, ok := fields[zerolog.ErrorFieldName].(error); ok {
		delete(fields, zerolog.ErrorFieldName)
		ev = ev.Err(err)
	}
	ev.Fields(fields).Msg(msg)
}

// toFields converts key-value pairs to a map for zerolog. Non-string keys and a
// trailing key without value are dropped.
func toFields(keysAndValues []any) map[string]any {
	fields := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}
	return fields
}
