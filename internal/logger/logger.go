package logger

import "chordring/internal/ringid"

// Field is a structured key:value log field.
type Field struct {
	Key string
	Val any
}

// Logger is the minimal interface required by the ring-maintenance and
// transport packages.
type Logger interface {
	Named(name string) Logger
	With(fields ...Field) Logger
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// F builds a Field concisely.
func F(key string, val any) Field { return Field{Key: key, Val: val} }

// FDescriptor serializes a NodeDescriptor into a readable structured field.
func FDescriptor(key string, n ringid.NodeDescriptor) Field {
	return Field{
		Key: key,
		Val: map[string]any{
			"id":   n.ID.String(),
			"addr": n.Addr(),
		},
	}
}

// ----------------------------------------------------------------
// NopLogger is a Logger implementation that does nothing; components
// substitute it when they are handed a nil Logger.
type NopLogger struct{}

func (l *NopLogger) Named(name string) Logger          { return l }
func (l *NopLogger) With(fields ...Field) Logger       { return l }
func (l *NopLogger) Debug(msg string, fields ...Field) {}
func (l *NopLogger) Info(msg string, fields ...Field)  {}
func (l *NopLogger) Warn(msg string, fields ...Field)  {}
func (l *NopLogger) Error(msg string, fields ...Field) {}
