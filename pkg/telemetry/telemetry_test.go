package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestInit(t *testing.T) {
	shutdown, err := Init("weft-test", "v0.0.1")
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if shutdown == nil {
		t.Fatal("Shutdown function should not be nil")
	}

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestInitWithConfig_UnknownExporter(t *testing.T) {
	if _, err := InitWithConfig("weft-test", "v0.0.1", Config{Exporter: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestInitWithConfig_OTLPRequiresEndpoint(t *testing.T) {
	if _, err := InitWithConfig("weft-test", "v0.0.1", Config{Exporter: "otlp"}); err == nil {
		t.Fatal("expected error for missing otlp endpoint")
	}
}

func TestConfigureSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "debug", "json")

	logger.Debug("hello", "key", "value")
	out := buf.String()
	if !strings.Contains(out, `"msg":"hello"`) || !strings.Contains(out, `"key":"value"`) {
		t.Fatalf("unexpected log output: %s", out)
	}

	buf.Reset()
	logger = ConfigureSlog(&buf, "warn", "text")
	logger.Info("suppressed")
	if buf.Len() != 0 {
		t.Fatalf("info should be suppressed at warn level: %s", buf.String())
	}
}

func TestConfigureSlog_StampsRunID(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "info", "json")

	ctx := ContextWithRunID(context.Background(), "run-42")
	logger.InfoContext(ctx, "turn complete")

	if !strings.Contains(buf.String(), `"run_id":"run-42"`) {
		t.Fatalf("expected run_id in output: %s", buf.String())
	}
}

func TestParseLogLevel(t *testing.T) {
	if parseLogLevel("debug") != slog.LevelDebug {
		t.Error("debug level mismatch")
	}
	if parseLogLevel("WARNING") != slog.LevelWarn {
		t.Error("warning level mismatch")
	}
	if parseLogLevel("bogus") != slog.LevelInfo {
		t.Error("unknown levels should default to info")
	}
}
