// Package uploadhttp implements the upload endpoint: it stages a multipart
// zip payload to a temp file, runs it through the extractor, and reports the
// outcome as JSON. Error responses carry the offending archive-relative entry
// name when applicable, never server filesystem paths.
package uploadhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/sitedrop/internal/extract"
	"github.com/keithlinneman/sitedrop/internal/log"
)

// Metrics is the subset of the server metrics the upload path records.
// Satisfied by *metrics.ServerMetrics; nil disables recording.
type Metrics interface {
	IncUpload(outcome string)
	ObserveUploadBytes(n int64)
	ObserveExtractDuration(seconds float64)
	SetLastUpload(t time.Time)
}

// API implements the upload endpoint.
type API struct {
	siteDir string
	logger  log.Logger
	metrics Metrics
}

func NewAPI(siteDir string, logger log.Logger, m Metrics) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{
		siteDir: siteDir,
		logger:  logger,
		metrics: m,
	}
}

// RegisterRoutes attaches the upload endpoint to the router.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Post("/upload", api.HandleUpload)
}

type uploadResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HandleUpload accepts a multipart form with a "zip" field, stages it to a
// temp file and extracts it into the site directory. Query parameters
// overwrite and keep_root parse "true" (case-insensitive) as true.
func (api *API) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	file, header, err := r.FormFile("zip")
	if err != nil {
		api.record("bad_request")
		// MaxBytesReader surfaces here as a form parse failure
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.writeJSON(ctx, w, http.StatusRequestEntityTooLarge, uploadResponse{
				Error: fmt.Sprintf("upload exceeds the %d byte limit", maxErr.Limit),
			})
			return
		}
		api.writeJSON(ctx, w, http.StatusBadRequest, uploadResponse{
			Error: "missing 'zip' form field",
		})
		return
	}
	defer file.Close()

	if header.Filename == "" {
		api.record("bad_request")
		api.writeJSON(ctx, w, http.StatusBadRequest, uploadResponse{
			Error: "empty filename",
		})
		return
	}

	opts := extract.Options{
		Overwrite: boolParam(r, "overwrite"),
		KeepRoot:  boolParam(r, "keep_root"),
	}

	tmp, err := os.CreateTemp("", "sitedrop-upload-*.zip")
	if err != nil {
		api.record("io_error")
		api.logger.Error(ctx, err, "failed to create temp file for upload")
		api.writeJSON(ctx, w, http.StatusInternalServerError, uploadResponse{
			Error: "failed to stage upload",
		})
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	written, err := io.Copy(tmp, file)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		api.record("io_error")
		api.logger.Error(ctx, err, "failed to stage upload", "bytes_written", written)
		api.writeJSON(ctx, w, http.StatusInternalServerError, uploadResponse{
			Error: "failed to stage upload",
		})
		return
	}
	if api.metrics != nil {
		api.metrics.ObserveUploadBytes(written)
	}

	start := time.Now()
	err = extract.Extract(ctx, tmpPath, api.siteDir, opts)
	if api.metrics != nil {
		api.metrics.ObserveExtractDuration(time.Since(start).Seconds())
	}
	if err != nil {
		outcome := classify(err)
		api.record(outcome)
		api.logger.Warn(ctx, "extraction failed",
			"outcome", outcome,
			"filename", header.Filename,
			"error", err,
		)
		api.writeJSON(ctx, w, http.StatusBadRequest, uploadResponse{
			Error: clientMessage(err, outcome),
		})
		return
	}

	api.record("ok")
	if api.metrics != nil {
		api.metrics.SetLastUpload(time.Now())
	}
	api.logger.Info(ctx, "site archive extracted",
		"filename", header.Filename,
		"bytes", written,
		"overwrite", opts.Overwrite,
		"keep_root", opts.KeepRoot,
	)

	api.writeJSON(ctx, w, http.StatusOK, uploadResponse{
		OK:      true,
		Message: "zip extracted into site directory",
	})
}

func (api *API) record(outcome string) {
	if api.metrics != nil {
		api.metrics.IncUpload(outcome)
	}
}

// clientMessage builds the client-visible error string. Traversal and
// invalid-archive errors carry only archive-relative entry names and zip
// parser text; IO errors may embed server paths, so those get a generic
// message and the detail stays in the log.
func clientMessage(err error, outcome string) string {
	switch outcome {
	case "path_traversal", "invalid_archive":
		return "failed to extract zip: " + err.Error()
	default:
		return "failed to extract zip: i/o failure while writing entries"
	}
}

func classify(err error) string {
	switch {
	case errors.Is(err, extract.ErrPathTraversal):
		return "path_traversal"
	case errors.Is(err, extract.ErrInvalidArchive):
		return "invalid_archive"
	default:
		return "io_error"
	}
}

func boolParam(r *http.Request, name string) bool {
	return strings.EqualFold(r.URL.Query().Get(name), "true")
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
