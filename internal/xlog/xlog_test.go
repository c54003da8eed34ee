package xlog

import "testing"

func TestParseLevelKnownNames(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
	}
	for name, want := range cases {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestParseLevelUnknownFallsBackToWarn(t *testing.T) {
	if got := ParseLevel("verbose"); got != LevelWarn {
		t.Errorf("expected unknown level to fall back to LevelWarn, got %v", got)
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	l := New("test")
	l.SetLevel(LevelError)
	if l.enabled(LevelWarn) {
		t.Errorf("expected LevelWarn to be disabled when the logger is set to LevelError")
	}
	if !l.enabled(LevelError) {
		t.Errorf("expected LevelError to be enabled when the logger is set to LevelError")
	}
}
