package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestTraceResponseHeaders_NoSpanContext(t *testing.T) {
	h := TraceResponseHeaders("", "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rec.Header().Get("X-Trace-Id"); got != "" {
		t.Errorf("X-Trace-Id = %q, want unset without a span", got)
	}
	if got := rec.Header().Get("X-Span-Id"); got != "" {
		t.Errorf("X-Span-Id = %q, want unset without a span", got)
	}
}

func TestTraceResponseHeaders_ValidSpanContext(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})

	h := TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(trace.ContextWithSpanContext(req.Context(), sc))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Trace-Id"); got != traceID.String() {
		t.Errorf("X-Trace-Id = %q, want %q", got, traceID.String())
	}
	if got := rec.Header().Get("X-Span-Id"); got != spanID.String() {
		t.Errorf("X-Span-Id = %q, want %q", got, spanID.String())
	}
}
