package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/keithlinneman/sitedrop/internal/version"
)

func gather(t *testing.T, m *ServerMetrics) map[string]*dto.MetricFamily {
	t.Helper()
	fams, err := m.reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(fams))
	for _, f := range fams {
		out[f.GetName()] = f
	}
	return out
}

func counterValue(f *dto.MetricFamily, labels map[string]string) (float64, bool) {
	for _, metric := range f.GetMetric() {
		match := true
		for k, v := range labels {
			found := false
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == k && lp.GetValue() == v {
					found = true
					break
				}
			}
			if !found {
				match = false
				break
			}
		}
		if match {
			return metric.GetCounter().GetValue(), true
		}
	}
	return 0, false
}

func TestNewRegistersCoreFamilies(t *testing.T) {
	m := New()
	m.IncHttpPanic()
	m.IncUpload("ok")
	m.IncRateLimitDenied()
	m.ObserveExtractDuration(0.2)
	m.SetLastUpload(time.Unix(1700000000, 0))

	fams := gather(t, m)
	for _, name := range []string{
		"http_panic_total",
		"site_uploads_total",
		"http_requests_rate_limited_total",
		"site_extract_duration_seconds",
		"site_last_upload_timestamp_seconds",
	} {
		if _, ok := fams[name]; !ok {
			t.Errorf("family %s not registered", name)
		}
	}
}

func TestUploadOutcomeLabels(t *testing.T) {
	m := New()
	m.IncUpload("ok")
	m.IncUpload("ok")
	m.IncUpload("path_traversal")

	fams := gather(t, m)
	f := fams["site_uploads_total"]
	if f == nil {
		t.Fatal("site_uploads_total missing")
	}
	if v, ok := counterValue(f, map[string]string{"outcome": "ok"}); !ok || v != 2 {
		t.Errorf("ok count = %v (found=%v)", v, ok)
	}
	if v, ok := counterValue(f, map[string]string{"outcome": "path_traversal"}); !ok || v != 1 {
		t.Errorf("path_traversal count = %v (found=%v)", v, ok)
	}
}

func TestSetBuildInfo(t *testing.T) {
	m := New()
	m.SetBuildInfoFromVersion("sitedrop", "server", version.Info{
		Version: "1.2.3", Commit: "abc", GoVersion: "go1.24",
	})

	fams := gather(t, m)
	f := fams["build_info"]
	if f == nil {
		t.Fatal("build_info missing")
	}
	metric := f.GetMetric()
	if len(metric) != 1 || metric[0].GetGauge().GetValue() != 1 {
		t.Fatalf("build_info should be a single gauge set to 1")
	}
}

func TestMiddlewareCountsRequests(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/pot", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	fams := gather(t, m)
	f := fams["http_requests_total"]
	if f == nil {
		t.Fatal("http_requests_total missing")
	}
	v, ok := counterValue(f, map[string]string{"method": "GET", "status": "418"})
	if !ok || v != 1 {
		t.Errorf("request count = %v (found=%v)", v, ok)
	}
}

func TestMiddlewareCountsServerErrors(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	fams := gather(t, m)
	f := fams["http_errors_total"]
	if f == nil {
		t.Fatal("http_errors_total missing")
	}
	if v, ok := counterValue(f, map[string]string{"method": "GET"}); !ok || v != 1 {
		t.Errorf("error count = %v (found=%v)", v, ok)
	}
}
