package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
)

// resetLogger swaps in a fresh singleton writing to a buffer.
func resetLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	once = sync.Once{}
	loggerInstance = nil
	var buf bytes.Buffer
	GetLogger().SetOutput(&buf)
	t.Cleanup(func() {
		once = sync.Once{}
		loggerInstance = nil
	})
	return &buf
}

func TestGetLogger(t *testing.T) {
	if GetLogger() != GetLogger() {
		t.Error("GetLogger() should return same singleton instance")
	}
}

func TestLoggerDefaultVerboseMode(t *testing.T) {
	resetLogger(t)
	if GetLogger().IsVerbose() {
		t.Error("Logger should have verbose=false by default")
	}
}

func TestSetVerboseMode(t *testing.T) {
	resetLogger(t)

	SetVerboseMode(true)
	if !GetLogger().IsVerbose() {
		t.Error("SetVerboseMode(true) should enable verbose mode")
	}
	SetVerboseMode(false)
	if GetLogger().IsVerbose() {
		t.Error("SetVerboseMode(false) should disable verbose mode")
	}
}

func TestDebugOnlyShownWhenVerbose(t *testing.T) {
	buf := resetLogger(t)

	Debugf("hidden %d", 1)
	if buf.Len() != 0 {
		t.Errorf("debug output without verbose: %q", buf.String())
	}

	SetVerboseMode(true)
	Debugf("shown %d", 2)
	out := buf.String()
	if !strings.Contains(out, "[DEBUG] shown 2") {
		t.Errorf("expected debug line, got %q", out)
	}
	if !regexp.MustCompile(`^\d{2}:\d{2}:\d{2} \[DEBUG\]`).MatchString(out) {
		t.Errorf("debug line should start with HH:MM:SS timestamp, got %q", out)
	}
}

func TestLogLevelPrefixes(t *testing.T) {
	buf := resetLogger(t)

	Infof("info %s", "msg")
	Warnf("warn msg")
	Errorf("error %v", "msg")

	for _, want := range []string{"[INFO] info msg", "[WARN] warn msg", "[ERROR] error msg"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestLevelString(t *testing.T) {
	for level, want := range map[Level]string{LevelDebug: "DEBUG", LevelInfo: "INFO", LevelWarn: "WARN", LevelError: "ERROR"} {
		if level.String() != want {
			t.Errorf("Level(%d).String() = %q, want %q", level, level.String(), want)
		}
	}
}

func TestZeroLoggerWritesToStderr(t *testing.T) {
	var l Logger
	if l.writer() != os.Stderr {
		t.Error("a zero Logger should write to stderr")
	}
}

func TestSetOutputNilRestoresStderr(t *testing.T) {
	resetLogger(t)
	GetLogger().SetOutput(nil)
	if GetLogger().writer() != os.Stderr {
		t.Error("SetOutput(nil) should restore os.Stderr")
	}
}

func TestLoggerThreadSafety(t *testing.T) {
	resetLogger(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			SetVerboseMode(n%2 == 0)
			Debugf("n=%d", n)
			_ = GetLogger().IsVerbose()
		}(i)
	}
	wg.Wait()
}

func TestBackgroundLoggerWritesMessages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bg.log")
	bl, err := NewBackgroundLoggerWithPath(path)
	if err != nil {
		t.Fatalf("NewBackgroundLoggerWithPath: %v", err)
	}
	if !bl.IsEnabled() {
		t.Fatal("logger should be enabled")
	}
	bl.Printf("reconciled %d tasks", 3)
	bl.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "reconciled 3 tasks") {
		t.Errorf("log file missing message: %q", data)
	}
	if bl.IsEnabled() {
		t.Error("logger should be disabled after Close")
	}
	bl.Printf("after close")
}

func TestBackgroundLoggerDisabled(t *testing.T) {
	bl, err := NewBackgroundLoggerWithEnabled(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bl.IsEnabled() || bl.GetLogPath() != "" {
		t.Error("disabled logger should have no file")
	}
	bl.Printf("discarded")
}

func TestBackgroundLoggerGracefulDegradation(t *testing.T) {
	bl, err := NewBackgroundLoggerWithPath(filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
	if err == nil {
		t.Fatal("expected error for unwritable path")
	}
	if bl == nil || bl.IsEnabled() {
		t.Fatal("expected disabled fallback logger")
	}
	bl.Printf("does not panic")
}
