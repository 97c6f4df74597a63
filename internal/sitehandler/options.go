package sitehandler

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/keithlinneman/sitedrop/internal/log"
)

var ErrInvalidOptions = errors.New("invalid sitehandler options")

type Options struct {
	Logger log.Logger

	// Root is the extracted site content. Backed by os.DirFS over the live
	// site directory so uploads are visible on the next request.
	Root fs.FS

	// IndexFile is served for the root path and as the SPA fallback for
	// paths that do not match a file.
	IndexFile string // default: "index.html"

	// Cache policies applied by file extension.
	HTMLCacheControl  string // default: "no-cache"
	AssetCacheControl string // default: "public, max-age=3600"
	OtherCacheControl string // default: "public, max-age=3600"
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.IndexFile == "" {
		o.IndexFile = "index.html"
	}
	if o.HTMLCacheControl == "" {
		o.HTMLCacheControl = "no-cache"
	}
	if o.AssetCacheControl == "" {
		// content changes on every upload, so nothing is immutable here
		o.AssetCacheControl = "public, max-age=3600"
	}
	if o.OtherCacheControl == "" {
		o.OtherCacheControl = "public, max-age=3600"
	}
}

func (o *Options) validate() error {
	if o.Root == nil {
		return fmt.Errorf("%w: Root is nil", ErrInvalidOptions)
	}
	return nil
}
