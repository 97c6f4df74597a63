package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/sitedrop/internal/health"
	"github.com/keithlinneman/sitedrop/internal/httpmw"
	"github.com/keithlinneman/sitedrop/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()

	MetricsMW func(http.Handler) http.Handler

	// RateLimitMW is applied to the upload routes only; static serving
	// stays unthrottled.
	RateLimitMW func(http.Handler) http.Handler

	ClientIPOpts httpmw.ClientIPOptions

	Health    health.Probe
	Readiness health.Probe

	// APIRoutes registers the upload endpoints.
	APIRoutes func(chi.Router)

	// SiteHandler is the catch-all static site handler.
	SiteHandler http.Handler

	// MaxBodyBytes caps request bodies (uploads are the only consumers).
	MaxBodyBytes int64
}
