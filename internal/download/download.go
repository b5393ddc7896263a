// Package download defines the fetch engine contract and its yt-dlp
// implementation.
//
// An engine attempt has exactly one terminal outcome: a Result carrying the
// final local path, or an error. Whole-operation retries are owned by the
// caller's retry policy; any retrying the engine does internally is opaque
// here.
package download

import (
	"context"
	"path/filepath"
)

// Result is the terminal success event of one fetch attempt.
type Result struct {
	URL       string // source locator
	LocalPath string // final path of the downloaded file
	Title     string // title reported by the extractor, if any
	SourceID  string // extractor-assigned id, if any
}

// Options controls a single fetch.
type Options struct {
	OutputDir string // destination directory; empty means the working directory
	Filename  string // custom filename without extension; empty uses the source title
	Format    string // format selector; empty uses the engine default
}

// OutputTemplate builds the yt-dlp output template for the options, e.g.
// "downloads/%(title)s.%(ext)s" or "downloads/myname.%(ext)s".
func (o Options) OutputTemplate() string {
	name := "%(title)s.%(ext)s"
	if o.Filename != "" {
		name = o.Filename + ".%(ext)s"
	}
	if o.OutputDir == "" {
		return name
	}
	return filepath.Join(o.OutputDir, name)
}

// Engine fetches a media artifact identified by a source URL.
type Engine interface {
	// Fetch downloads the artifact for url and returns its terminal
	// outcome. Implementations classify failures into the shared error
	// taxonomy so the retry policy can distinguish transient faults from
	// permanent ones.
	Fetch(ctx context.Context, url string, opts Options) (*Result, error)
}
