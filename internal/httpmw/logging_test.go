package httpmw

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keithlinneman/sitedrop/internal/log"
)

func accessLogLines(t *testing.T, path string, handler http.HandlerFunc) []map[string]any {
	t.Helper()

	var buf bytes.Buffer
	base, err := log.New(log.Options{App: "test", Level: slog.LevelDebug, JsonFormat: true, Writer: &buf})
	if err != nil {
		t.Fatalf("log.New: %v", err)
	}

	h := Chain(handler,
		WithLogger(base),
		AccessLog(),
	)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, http.NoBody))

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestAccessLog_EmitsRequestLine(t *testing.T) {
	lines := accessLogLines(t, "/hello", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1", len(lines))
	}
	m := lines[0]
	if m["msg"] != "http request" {
		t.Errorf("msg = %v", m["msg"])
	}
	if m["http.response.status_code"] != float64(http.StatusNotFound) {
		t.Errorf("status = %v", m["http.response.status_code"])
	}
	if m["url.path"] != "/hello" {
		t.Errorf("url.path = %v", m["url.path"])
	}
}

func TestAccessLog_SkipsAssetExtensions(t *testing.T) {
	lines := accessLogLines(t, "/app/main.js", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if len(lines) != 0 {
		t.Fatalf("got %d log lines for asset path, want 0", len(lines))
	}
}

func TestAccessLog_SkipsHealthEndpoints(t *testing.T) {
	lines := accessLogLines(t, "/-/healthy", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if len(lines) != 0 {
		t.Fatalf("got %d log lines for health path, want 0", len(lines))
	}
}

func TestWithLogger_EnrichesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	base, err := log.New(log.Options{App: "test", Level: slog.LevelDebug, JsonFormat: true, Writer: &buf})
	if err != nil {
		t.Fatalf("log.New: %v", err)
	}

	h := Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.FromContext(r.Context()).Info(r.Context(), "inside handler")
		}),
		RequestID(""),
		WithLogger(base),
	)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", http.NoBody))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("bad log line: %v", err)
	}
	if m["http.request.method"] != "GET" {
		t.Errorf("method field = %v", m["http.request.method"])
	}
	if id, _ := m["request_id"].(string); id == "" {
		t.Error("request_id missing from enriched logger")
	}
}
