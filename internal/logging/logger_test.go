package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"musicsync/internal/config"
	"musicsync/internal/logging"
	"musicsync/internal/services"
)

func newFileLogger(t *testing.T, format, level string) (string, func()) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "logs", "musicsync.log")
	logger, closer, err := logging.New(logging.Options{
		Format:      format,
		Level:       level,
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithRunID(context.Background(), "run-1")
	ctx = services.WithPhase(ctx, "execute")
	component := logging.NewComponentLogger(logging.WithContext(ctx, logger), "pipeline")
	return logPath, func() {
		component.Info("copied to device", logging.String(logging.FieldTargetPath, "Music/a b.mp3"))
		component.Debug("debug detail")
		if err := closer.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
}

func TestConsoleFileOutput(t *testing.T) {
	logPath, emit := newFileLogger(t, "console", "info")
	emit()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, fragment := range []string{"INFO pipeline: copied to device", `target_path="Music/a b.mp3"`, "run_id=run-1", "phase=execute"} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
	if strings.Contains(line, "debug detail") {
		t.Fatalf("debug line should be filtered at info level: %q", line)
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
}

func TestConsoleIncludesCallerForDebug(t *testing.T) {
	logPath, emit := newFileLogger(t, "console", "debug")
	emit()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "debug detail") {
		t.Fatalf("expected debug line, got %q", content)
	}
	if !strings.Contains(string(content), "logger_test.go:") {
		t.Fatalf("expected caller information at debug level, got %q", content)
	}
}

func TestJSONOutputUsesShortKeys(t *testing.T) {
	logPath, emit := newFileLogger(t, "json", "info")
	emit()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	first := strings.SplitN(strings.TrimSpace(string(content)), "\n", 2)[0]
	var payload map[string]any
	if err := json.Unmarshal([]byte(first), &payload); err != nil {
		t.Fatalf("decode json line %q: %v", first, err)
	}
	for _, key := range []string{"ts", "level", "msg", logging.FieldComponent, logging.FieldRunID} {
		if _, ok := payload[key]; !ok {
			t.Fatalf("expected key %q in %v", key, payload)
		}
	}
	if payload["level"] != "info" {
		t.Fatalf("expected lower-case level, got %v", payload["level"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewFromConfigCreatesLogDir(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "nested", "logs")

	logger, closer, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	defer closer.Close()
	if logger == nil {
		t.Fatal("expected logger instance")
	}
	if _, err := os.Stat(cfg.Paths.LogDir); err != nil {
		t.Fatalf("expected log dir to exist: %v", err)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath, _ := newFileLogger(t, "console", "info")
	logger, closer, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logging.WarnWithContext(logger, "remote catalog missing", "catalog_missing",
		logging.String(logging.FieldImpact, "all files will be copied"),
		logging.Error(errors.New("not found")),
	)
	_ = closer.Close()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, fragment := range []string{"WARN", "event_type=catalog_missing", "error_hint=", `impact="all files will be copied"`} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 12) {
		t.Fatal("expected nop logger to be disabled at every level")
	}
	logging.WarnWithContext(nil, "ignored", "none")
}
