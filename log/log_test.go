package log

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// TestSetLevel verifies that SetLevel correctly updates the underlying zap
// atomic level according to the provided level string, including the default
// branch for unknown inputs.
func TestSetLevel(t *testing.T) {
	cases := []struct {
		in       string
		expected zapcore.Level
	}{
		{LevelDebug, zapcore.DebugLevel},
		{LevelInfo, zapcore.InfoLevel},
		{LevelWarn, zapcore.WarnLevel},
		{LevelError, zapcore.ErrorLevel},
		{LevelFatal, zapcore.FatalLevel},
		{"unknown", zapcore.InfoLevel}, // default branch
	}

	for _, c := range cases {
		SetLevel(c.in)
		if got := zapLevel.Level(); got != c.expected {
			t.Errorf("SetLevel(%q) = %v, want %v", c.in, got, c.expected)
		}
	}
	SetLevel(LevelInfo)
}

type captureLogger struct {
	msgs []string
}

func (c *captureLogger) Debug(args ...any)                 { c.msgs = append(c.msgs, "debug") }
func (c *captureLogger) Debugf(format string, args ...any) { c.msgs = append(c.msgs, "debugf") }
func (c *captureLogger) Info(args ...any)                  { c.msgs = append(c.msgs, "info") }
func (c *captureLogger) Infof(format string, args ...any)  { c.msgs = append(c.msgs, "infof") }
func (c *captureLogger) Warn(args ...any)                  { c.msgs = append(c.msgs, "warn") }
func (c *captureLogger) Warnf(format string, args ...any)  { c.msgs = append(c.msgs, "warnf") }
func (c *captureLogger) Error(args ...any)                 { c.msgs = append(c.msgs, "error") }
func (c *captureLogger) Errorf(format string, args ...any) { c.msgs = append(c.msgs, "errorf") }
func (c *captureLogger) Fatal(args ...any)                 { c.msgs = append(c.msgs, "fatal") }
func (c *captureLogger) Fatalf(format string, args ...any) { c.msgs = append(c.msgs, "fatalf") }

// TestPackageHelpersDelegate ensures the package-level helpers delegate to
// the Default logger.
func TestPackageHelpersDelegate(t *testing.T) {
	orig := Default
	defer func() { Default = orig }()

	c := &captureLogger{}
	Default = c

	Debug("x")
	Debugf("%s", "x")
	Info("x")
	Infof("%s", "x")
	Warn("x")
	Warnf("%s", "x")
	Error("x")
	Errorf("%s", "x")

	want := []string{"debug", "debugf", "info", "infof", "warn", "warnf", "error", "errorf"}
	if len(c.msgs) != len(want) {
		t.Fatalf("got %d calls, want %d", len(c.msgs), len(want))
	}
	for i := range want {
		if c.msgs[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, c.msgs[i], want[i])
		}
	}
}
