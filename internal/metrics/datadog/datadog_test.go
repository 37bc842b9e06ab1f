package datadog

import (
	"sort"
	"testing"

	"ingest/internal/metrics"
)

func TestNewBackend(t *testing.T) {
	if _, err := NewBackend(Config{}); err == nil {
		t.Fatal("missing Addr accepted")
	}

	// UDP transport needs no listening agent to construct.
	b, err := NewBackend(Config{
		Addr:       "127.0.0.1:8125",
		Namespace:  "ingest.",
		GlobalTags: []string{"env:test"},
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	if b.client == nil {
		t.Fatal("client not constructed")
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestNilClientGuards(t *testing.T) {
	var b Backend
	b.IncCounter("ingest_batches_total", 1, nil)
	b.ObserveDuration("ingest_stage_duration_seconds", 0.5, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush on zero Backend: %v", err)
	}
}

func TestLabelsToTags(t *testing.T) {
	if got := labelsToTags(nil); got != nil {
		t.Fatalf("labelsToTags(nil) = %v, want nil", got)
	}

	got := labelsToTags(metrics.Labels{"job": "ingest", "stage": "write"})
	sort.Strings(got)
	want := []string{"job:ingest", "stage:write"}
	if len(got) != len(want) {
		t.Fatalf("tags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tags = %v, want %v", got, want)
		}
	}
}
