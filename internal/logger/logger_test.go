package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestObjFieldsCarryEventKey(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core))

	log.WarnObj("article metadata scrape failed", "enrich_degraded", map[string]any{
		"url": "https://example.com/a",
	})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["event"] != "enrich_degraded" {
		t.Fatalf("event = %v, want enrich_degraded", ctx["event"])
	}
	if ctx["url"] != "https://example.com/a" {
		t.Fatalf("url = %v", ctx["url"])
	}
}

func TestEnsureNil(t *testing.T) {
	if _, ok := Ensure(nil).(NopLogger); !ok {
		t.Fatalf("Ensure(nil) should return NopLogger")
	}
}
