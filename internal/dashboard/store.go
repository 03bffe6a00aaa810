package dashboard

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"bookwatch/internal/metrics"
)

// metricStore keeps the latest value of every metric emitted by the
// application, keyed by component and name. It is safe for concurrent use.
type metricStore struct {
	mu     sync.RWMutex
	latest map[string]metrics.Metric
	totals map[string]float64
}

func newMetricStore() *metricStore {
	return &metricStore{
		latest: make(map[string]metrics.Metric),
		totals: make(map[string]float64),
	}
}

func (s *metricStore) handle(metric metrics.Metric) {
	key := metric.Component + "." + metric.Name

	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest[key] = metric
	if metric.Type == "counter" {
		if v, ok := numeric(metric.Value); ok {
			s.totals[key] += v
		}
	}
}

// lines renders one "name value" line per metric, sorted by key. Counters show
// their running total.
func (s *metricStore) lines() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.latest))
	for k := range s.latest {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		m := s.latest[k]
		if m.Type == "counter" {
			out = append(out, fmt.Sprintf("%-32s %g", m.Name, s.totals[k]))
			continue
		}
		v, ok := numeric(m.Value)
		if !ok {
			out = append(out, fmt.Sprintf("%-32s %v", m.Name, m.Value))
			continue
		}
		out = append(out, fmt.Sprintf("%-32s %.2f", m.Name, v))
	}
	return out
}

func numeric(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// logRecord is a captured log entry rendered in the log panel.
type logRecord struct {
	Timestamp time.Time
	Level     logrus.Level
	Component string
	Message   string
	Err       string
}

func (r logRecord) String() string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "%s %-5s ", r.Timestamp.Local().Format("15:04:05"), strings.ToUpper(r.Level.String()))
	if r.Component != "" {
		fmt.Fprintf(b, "[%s] ", r.Component)
	}
	b.WriteString(r.Message)
	if r.Err != "" {
		fmt.Fprintf(b, ": %s", r.Err)
	}
	return b.String()
}

// logStore retains the most recent logs that flow through the logger. It
// implements the logrus Hook interface so it can be attached directly.
type logStore struct {
	mu      sync.RWMutex
	items   []logRecord
	limit   int
	enabled atomic.Bool
}

func newLogStore(limit int) *logStore {
	if limit <= 0 {
		limit = 200
	}
	ls := &logStore{limit: limit}
	ls.enabled.Store(true)
	return ls
}

func (s *logStore) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (s *logStore) Fire(entry *logrus.Entry) error {
	if !s.enabled.Load() {
		return nil
	}

	record := logRecord{
		Timestamp: entry.Time,
		Level:     entry.Level,
		Message:   entry.Message,
	}
	if component, ok := entry.Data["component"].(string); ok {
		record.Component = component
	}
	if err, ok := entry.Data[logrus.ErrorKey].(error); ok {
		record.Err = err.Error()
	}

	s.mu.Lock()
	s.items = append(s.items, record)
	if len(s.items) > s.limit {
		s.items = append([]logRecord(nil), s.items[len(s.items)-s.limit:]...)
	}
	s.mu.Unlock()
	return nil
}

func (s *logStore) snapshot() []logRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]logRecord, len(s.items))
	copy(out, s.items)
	return out
}

// tail returns the last n records, oldest first.
func (s *logStore) tail(n int) []logRecord {
	items := s.snapshot()
	if n >= 0 && len(items) > n {
		items = items[len(items)-n:]
	}
	return items
}

func (s *logStore) close() {
	s.enabled.Store(false)
}
