package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// bufferLogger builds a logger with env's encoder and level writing to buf.
func bufferLogger(env string, buf *bytes.Buffer) *zap.Logger {
	cfg := newConfig(env)
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(cfg.EncoderConfig),
		zapcore.AddSync(buf),
		cfg.Level,
	)
	return zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel))
}

// Property: production entries are JSON with level, timestamp and message
func TestProperty_ProductionLogsAreStructured(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("production log entries are structured JSON", prop.ForAll(
		func(message string, level string) bool {
			var buf bytes.Buffer
			logger := bufferLogger("production", &buf)
			defer logger.Sync()

			switch level {
			case "info":
				logger.Info(message)
			case "warn":
				logger.Warn(message)
			case "error":
				logger.Error(message)
			}

			var entry map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Logf("FAIL: invalid JSON %q: %v", buf.String(), err)
				return false
			}

			for _, key := range []string{"level", "timestamp", "message"} {
				if _, ok := entry[key]; !ok {
					t.Logf("FAIL: missing %q in %v", key, entry)
					return false
				}
			}
			return entry["message"] == message && entry["level"] == level
		},
		gen.AnyString(),
		gen.OneConstOf("info", "warn", "error"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Property: error entries keep their structured context
func TestProperty_ErrorLogsIncludeContext(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("error entries include fields and a stacktrace", prop.ForAll(
		func(message, dealID string) bool {
			var buf bytes.Buffer
			logger := bufferLogger("production", &buf)

			logger.Error(message, zap.String("deal_id", dealID))

			var entry map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				return false
			}
			if entry["deal_id"] != dealID {
				t.Logf("FAIL: deal_id = %v, want %q", entry["deal_id"], dealID)
				return false
			}
			_, ok := entry["stacktrace"]
			return ok
		},
		gen.AnyString(),
		gen.Identifier(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProductionSkipsDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger("production", &buf)

	logger.Debug("hidden")

	if buf.Len() != 0 {
		t.Fatalf("expected debug to be dropped in production, got %q", buf.String())
	}
}

func TestDevelopmentLogsDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger("development", &buf)

	logger.Debug("visible")

	if buf.Len() == 0 {
		t.Fatal("expected debug output in development")
	}
}

func TestNewTagsService(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		cfg := newConfig(env)
		if cfg.InitialFields["service"] != ServiceName {
			t.Errorf("%s: service field = %v", env, cfg.InitialFields["service"])
		}
		if len(cfg.OutputPaths) != 1 || cfg.OutputPaths[0] != "stdout" {
			t.Errorf("%s: output paths = %v", env, cfg.OutputPaths)
		}

		logger, err := New(env)
		if err != nil {
			t.Fatalf("%s: New() error = %v", env, err)
		}
		_ = logger.Sync()
	}
}
