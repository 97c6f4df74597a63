package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func clientIPFor(t *testing.T, remoteAddr, xff string, hops int) string {
	t.Helper()

	var got string
	h := ClientIPWithOptions(ClientIPOptions{TrustedHops: hops})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = ClientIPFromContext(r.Context())
		}))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = remoteAddr
	if xff != "" {
		req.Header.Set("X-Forwarded-For", xff)
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestClientIP_NoProxies(t *testing.T) {
	got := clientIPFor(t, "203.0.113.9:5511", "198.51.100.1", 0)
	if got != "203.0.113.9" {
		t.Fatalf("ip = %q, want 203.0.113.9", got)
	}
}

func TestClientIP_PublicPeerIgnoresXFF(t *testing.T) {
	// a public peer cannot be one of our proxies
	got := clientIPFor(t, "203.0.113.9:5511", "198.51.100.1", 1)
	if got != "203.0.113.9" {
		t.Fatalf("ip = %q, want 203.0.113.9", got)
	}
}

func TestClientIP_SingleTrustedHop(t *testing.T) {
	got := clientIPFor(t, "10.0.1.20:33412", "198.51.100.1, 192.0.2.44", 1)
	if got != "192.0.2.44" {
		t.Fatalf("ip = %q, want 192.0.2.44", got)
	}
}

func TestClientIP_TwoTrustedHops(t *testing.T) {
	got := clientIPFor(t, "10.0.1.20:33412", "198.51.100.1, 192.0.2.44, 10.0.0.5", 2)
	if got != "192.0.2.44" {
		t.Fatalf("ip = %q, want 192.0.2.44", got)
	}
}

func TestClientIP_FewerEntriesThanHopsFailsClosed(t *testing.T) {
	got := clientIPFor(t, "10.0.1.20:33412", "192.0.2.44", 3)
	if got != "10.0.1.20" {
		t.Fatalf("ip = %q, want 10.0.1.20", got)
	}
}
