package store

import (
	"encoding/hex"
	"io/fs"
	"strings"
	"testing"
)

func TestComputeDedupKeyFromID(t *testing.T) {
	body := []byte(`{"id":"evt_123","type":"score.completed"}`)
	got := computeDedupKey(body)
	if got != "evt_123" {
		t.Fatalf("want evt_123, got %s", got)
	}
}

func TestComputeDedupKeyFromHash(t *testing.T) {
	body := []byte(`{"notId":"x"}`)
	got := computeDedupKey(body)
	// hex-encoded first 8 bytes -> 16 hex chars
	b, err := hex.DecodeString(got)
	if err != nil {
		t.Fatalf("invalid hex: %v", err)
	}
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
}

func TestNullIfEmpty(t *testing.T) {
	if v := nullIfEmpty(""); v != nil {
		t.Fatalf("empty -> nil expected")
	}
	if v := nullIfEmpty("  "); v != nil {
		t.Fatalf("blank -> nil expected")
	}
	if v := nullIfEmpty("a"); v != "a" {
		t.Fatalf("non-empty kept, got %v", v)
	}
}

func TestEmbeddedSchema(t *testing.T) {
	names, err := fs.Glob(schemaFS, "schema/*.sql")
	if err != nil || len(names) == 0 {
		t.Fatalf("schema files: %v %v", names, err)
	}
	b, _ := schemaFS.ReadFile(names[0])
	for _, table := range []string{"score_jobs", "subscriptions", "webhook_deliveries", "webhook_dlq"} {
		if !strings.Contains(string(b), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("schema misses %s", table)
		}
	}
}
