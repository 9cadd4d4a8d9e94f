package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestJSONLoggerCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Format: "json", Output: &buf})
	ctx, id := EnsureRequestID(context.Background())
	l.With(String("job", "j1")).Debug(ctx, "cycle", Int("processed", 12), Float("score", 3.5))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode: %v (%s)", err, buf.String())
	}
	if line["request_id"] != id || line["job"] != "j1" || line["msg"] != "cycle" {
		t.Fatalf("unexpected line: %v", line)
	}
	if line["processed"].(float64) != 12 {
		t.Fatalf("processed = %v", line["processed"])
	}
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Output: &buf})
	l.Info(context.Background(), "dropped")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}
	l.Warn(context.Background(), "kept")
	if buf.Len() == 0 {
		t.Fatal("warn not logged")
	}
}

func TestEnsureRequestIDKeepsExisting(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "abc")
	_, id := EnsureRequestID(ctx)
	if id != "abc" {
		t.Fatalf("id = %q", id)
	}
}
