package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLevels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(&buf, Config{Debug: false})
	logger.Debug().Msg("hidden")
	logger.Info().Str("run_id", "r1").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["run_id"] != "r1" || entry["message"] != "shown" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["caller"]; ok {
		t.Fatal("caller should be off unless configured")
	}

	buf.Reset()
	debug := New(&buf, Config{Debug: true, Caller: true})
	debug.Debug().Msg("visible")
	if !strings.Contains(buf.String(), `"caller"`) || !strings.Contains(buf.String(), "visible") {
		t.Fatalf("expected debug line with caller, got %q", buf.String())
	}
}
