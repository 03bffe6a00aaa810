package dashboard

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"bookwatch/internal/metrics"
)

func TestMetricStoreKeepsLatestAndTotals(t *testing.T) {
	store := newMetricStore()
	for i := 0; i < 3; i++ {
		store.handle(metrics.Metric{Component: "session", Name: "refresh_success", Value: int64(1), Type: "counter"})
	}
	store.handle(metrics.Metric{Component: "binance_client", Name: "used_weight", Value: int64(10), Type: "gauge"})
	store.handle(metrics.Metric{Component: "binance_client", Name: "used_weight", Value: int64(25), Type: "gauge"})

	lines := store.lines()
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %v", len(lines), lines)
	}
	// binance_client sorts before session
	if !strings.HasPrefix(lines[0], "used_weight") || !strings.HasSuffix(lines[0], "25.00") {
		t.Fatalf("unexpected gauge line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "refresh_success") || !strings.HasSuffix(lines[1], " 3") {
		t.Fatalf("unexpected counter line %q", lines[1])
	}
}

func TestLogStoreCapturesEntries(t *testing.T) {
	store := newLogStore(3)
	entry := logrus.NewEntry(logrus.New())
	entry.Time = time.Unix(10, 0)
	entry.Level = logrus.WarnLevel
	entry.Message = "refresh failed"
	entry.Data = logrus.Fields{"component": "session", logrus.ErrorKey: errors.New("boom")}

	if err := store.Fire(entry); err != nil {
		t.Fatalf("store.Fire returned error: %v", err)
	}

	snapshot := store.snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(snapshot))
	}

	if snapshot[0].Component != "session" || snapshot[0].Err != "boom" {
		t.Fatalf("unexpected snapshot data: %#v", snapshot[0])
	}
	if line := snapshot[0].String(); !strings.Contains(line, "WARNING [session] refresh failed: boom") {
		t.Fatalf("unexpected line %q", line)
	}
}

func TestLogStoreRespectsLimitAndClose(t *testing.T) {
	store := newLogStore(2)
	for i := 0; i < 4; i++ {
		entry := logrus.NewEntry(logrus.New())
		entry.Message = "msg"
		entry.Level = logrus.InfoLevel
		entry.Data = logrus.Fields{"index": i}
		if err := store.Fire(entry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	snapshot := store.snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 entries after pruning, got %d", len(snapshot))
	}
	if got := store.tail(1); len(got) != 1 {
		t.Fatalf("expected tail of 1, got %d", len(got))
	}

	store.close()
	entry := logrus.NewEntry(logrus.New())
	entry.Message = "ignored"
	if err := store.Fire(entry); err != nil {
		t.Fatalf("unexpected error after close: %v", err)
	}

	snapshot = store.snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("store accepted entries after close")
	}
}
