// Package sitehandler serves extracted site content from the live site
// directory with single-page-app fallback semantics: any path that does not
// match a file is answered with the root index.html when one exists.
package sitehandler

import (
	"net/http"
)

type Handler struct {
	opts Options
}

func New(opts *Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{opts: *opts}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// hardening: only allow GET/HEAD
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	file, redirectTo, found := resolvePath(r.URL.Path, h.opts.Root, h.opts.IndexFile)
	if redirectTo != "" {
		// 308 keeps the method even though we only allow GET/HEAD
		http.Redirect(w, r, redirectTo, http.StatusPermanentRedirect)
		return
	}

	if !found {
		// SPA fallback: unmatched paths get the root index with 200 so
		// client-side routers can handle them
		if existsFile(h.opts.Root, h.opts.IndexFile) {
			w.Header().Set("Cache-Control", h.opts.HTMLCacheControl)
			http.ServeFileFS(w, r, h.opts.Root, h.opts.IndexFile)
			return
		}
		h.serveNotFound(w)
		return
	}

	if cc := cacheControlForFile(file, h.opts); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}

	http.ServeFileFS(w, r, h.opts.Root, file)
}

func (h *Handler) serveNotFound(w http.ResponseWriter) {
	// avoid caching 404 responses
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("404 page not found"))
}
