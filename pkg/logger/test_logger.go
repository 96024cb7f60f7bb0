package logger

import (
	"sync"

	"github.com/rs/zerolog"
)

// TestLogEntry is one captured log call.
type TestLogEntry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// TestLogger captures log calls in memory for assertions in tests.
type TestLogger struct {
	mu      sync.Mutex
	entries []TestLogEntry
	fields  map[string]interface{}
}

// NewTestLogger creates an empty capturing logger.
func NewTestLogger() *TestLogger {
	return &TestLogger{fields: make(map[string]interface{})}
}

// Entries returns a copy of everything logged so far.
func (t *TestLogger) Entries() []TestLogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TestLogEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// HasMessage reports whether any entry carries the given message.
func (t *TestLogger) HasMessage(msg string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.Message == msg {
			return true
		}
	}
	return false
}

func (t *TestLogger) log(level, msg string, fields map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	merged := make(map[string]interface{}, len(t.fields)+len(fields))
	for k, v := range t.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	t.entries = append(t.entries, TestLogEntry{Level: level, Message: msg, Fields: merged})
}

func (t *TestLogger) Debug(msg string) { t.log("debug", msg, nil) }
func (t *TestLogger) Info(msg string)  { t.log("info", msg, nil) }
func (t *TestLogger) Warn(msg string)  { t.log("warn", msg, nil) }
func (t *TestLogger) Error(msg string) { t.log("error", msg, nil) }
func (t *TestLogger) Fatal(msg string) { t.log("fatal", msg, nil) }

func (t *TestLogger) WithField(key string, value interface{}) Logger {
	return t.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a child logger that forwards entries to this
// logger's sink, so assertions see everything logged through it.
func (t *TestLogger) WithFields(fields map[string]interface{}) Logger {
	t.mu.Lock()
	defer t.mu.Unlock()

	merged := make(map[string]interface{}, len(t.fields)+len(fields))
	for k, v := range t.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &sinkLogger{sink: t, fields: merged}
}

func (t *TestLogger) WithError(err error) Logger {
	if err == nil {
		return t
	}
	return t.WithField("error", err.Error())
}

func (t *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	t.log("debug", msg, fields)
}

func (t *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	t.log("info", msg, fields)
}

func (t *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	t.log("warn", msg, fields)
}

func (t *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	t.log("error", msg, fields)
}

func (t *TestLogger) GetZerolog() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// sinkLogger forwards to a parent TestLogger with bound fields.
type sinkLogger struct {
	sink   *TestLogger
	fields map[string]interface{}
}

func (s *sinkLogger) log(level, msg string, fields map[string]interface{}) {
	merged := make(map[string]interface{}, len(s.fields)+len(fields))
	for k, v := range s.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	s.sink.log(level, msg, merged)
}

func (s *sinkLogger) Debug(msg string) { s.log("debug", msg, nil) }
func (s *sinkLogger) Info(msg string)  { s.log("info", msg, nil) }
func (s *sinkLogger) Warn(msg string)  { s.log("warn", msg, nil) }
func (s *sinkLogger) Error(msg string) { s.log("error", msg, nil) }
func (s *sinkLogger) Fatal(msg string) { s.log("fatal", msg, nil) }

func (s *sinkLogger) WithField(key string, value interface{}) Logger {
	return s.WithFields(map[string]interface{}{key: value})
}

func (s *sinkLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(s.fields)+len(fields))
	for k, v := range s.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &sinkLogger{sink: s.sink, fields: merged}
}

func (s *sinkLogger) WithError(err error) Logger {
	if err == nil {
		return s
	}
	return s.WithField("error", err.Error())
}

func (s *sinkLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	s.log("debug", msg, fields)
}

func (s *sinkLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	s.log("info", msg, fields)
}

func (s *sinkLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	s.log("warn", msg, fields)
}

func (s *sinkLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	s.log("error", msg, fields)
}

func (s *sinkLogger) GetZerolog() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
