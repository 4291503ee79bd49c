package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level   string
		format  string
		enabled zapcore.Level
		off     zapcore.Level
	}{
		{"debug", "console", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"warn", "console", zapcore.WarnLevel, zapcore.InfoLevel},
		{"ERROR", "json", zapcore.ErrorLevel, zapcore.WarnLevel},
	}

	for _, tt := range tests {
		logger, err := NewLogger(tt.level, tt.format)
		if err != nil {
			t.Fatalf("NewLogger(%q, %q): %v", tt.level, tt.format, err)
		}
		if !logger.Core().Enabled(tt.enabled) {
			t.Errorf("%s: expected %s enabled", tt.level, tt.enabled)
		}
		if logger.Core().Enabled(tt.off) {
			t.Errorf("%s: expected %s disabled", tt.level, tt.off)
		}
	}
}

func TestNewLogger_Invalid(t *testing.T) {
	if _, err := NewLogger("loud", "console"); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := NewLogger("info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
