// Package fetcher downloads remote datasets over HTTP or FTP and keeps them
// in a local cache.
package fetcher

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Fetcher retrieves a remote dataset.
type Fetcher interface {
	// Download returns the body at url. The caller closes it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile writes the body at url to path and returns the bytes
	// written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Revalidator is a Fetcher that can skip unchanged downloads by ETag.
type Revalidator interface {
	Fetcher

	// DownloadIfChanged returns (body, newETag, changed, err). When the
	// remote copy still matches etag, body is nil and changed is false.
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}

// writeFile streams body into path through a temporary sibling so a failed
// download never leaves a partial file under the final name.
func writeFile(body io.Reader, path string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".part-*")
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create temp file")
	}
	n, err := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return n, eris.Wrap(err, "fetcher: write file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return n, eris.Wrap(err, "fetcher: rename file")
	}
	return n, nil
}
