package zerologsink

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/trickstertwo/xroute"
)

func TestSink_JSON_EmitsTSAndFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := NewWriter("json", Config{Writer: &buf})

	at := time.Date(2024, 12, 31, 23, 59, 59, 123456789, time.UTC)
	err := s.Log(xroute.Entry{
		At:      at,
		Level:   xroute.LevelInfo,
		Logger:  "svc",
		Message: "state changed",
		Fields: []xroute.Field{
			xroute.Str("from", "old"),
			xroute.Int64("count", 2),
			xroute.Bool("ok", true),
			xroute.Err("error", errors.New("boom")),
		},
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("json unmarshal: %v; line=%s", err, buf.String())
	}
	if m["level"] != "info" {
		t.Fatalf("level mismatch: %v", m["level"])
	}
	if m["message"] != "state changed" {
		t.Fatalf("message mismatch: %v", m["message"])
	}
	if got, want := m["ts"], at.Format(time.RFC3339Nano); got != want {
		t.Fatalf("ts mismatch: got %v want %q", got, want)
	}
	if m["logger"] != "svc" || m["from"] != "old" || m["count"] != float64(2) || m["ok"] != true {
		t.Fatalf("fields mismatch: %v", m)
	}
	if m["error"] != "boom" {
		t.Fatalf("error mismatch: %v", m["error"])
	}
}

func TestSink_FatalMapsToError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := NewWriter("json", Config{Writer: &buf})
	_ = s.Log(xroute.Entry{At: time.Unix(0, 0), Level: xroute.LevelFatal, Message: "bad"})

	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("fatal should map to error: %s", buf.String())
	}
}

func TestSink_LoggerLevelFilters(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := New("warn", zerolog.New(&buf).Level(zerolog.WarnLevel))

	_ = s.Log(xroute.Entry{At: time.Unix(0, 0), Level: xroute.LevelDebug, Message: "dropped"})
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %s", buf.String())
	}
	_ = s.Log(xroute.Entry{At: time.Unix(0, 0), Level: xroute.LevelWarn, Message: "kept"})
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("expected warn entry, got %s", buf.String())
	}
}

func TestSink_Console(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := NewWriter("console", Config{Writer: &buf, Console: true, NoColor: true})
	_ = s.Log(xroute.Entry{
		At:      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   xroute.LevelWarn,
		Message: "slow query",
		Fields:  []xroute.Field{xroute.Str("table", "users")},
	})

	out := buf.String()
	for _, want := range []string{"WRN", "slow query", "table=users"} {
		if !strings.Contains(out, want) {
			t.Fatalf("console output missing %q: %q", want, out)
		}
	}
}
