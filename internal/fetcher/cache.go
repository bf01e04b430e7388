package fetcher

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	etagFile   = ".etag"
	extractDir = "x"
)

// Cache maps dataset identifiers to local files. Local paths pass through;
// http(s) and ftp URLs are downloaded once into Dir and zip archives are
// unpacked next to the download.
type Cache struct {
	Dir string
	// Refresh revalidates cached HTTP downloads by ETag.
	Refresh bool

	http Fetcher
	ftp  Fetcher
	log  *zap.Logger

	locks sync.Map // key -> *sync.Mutex
}

// NewCache creates a Cache rooted at dir.
func NewCache(dir string, httpFetcher, ftpFetcher Fetcher) *Cache {
	return &Cache{
		Dir:  dir,
		http: httpFetcher,
		ftp:  ftpFetcher,
		log:  zap.L().With(zap.String("component", "fetcher.cache")),
	}
}

// IsRemote reports whether id is a URL the cache knows how to download.
func IsRemote(id string) bool {
	u, err := url.Parse(id)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https", "ftp":
		return true
	}
	return false
}

// Key returns the cache directory name for a remote identifier.
func Key(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

// Resolve returns a local path for id. For archives, the first extracted
// file matching exts is returned.
func (c *Cache) Resolve(ctx context.Context, id string, exts ...string) (string, error) {
	if id == "" {
		return "", eris.New("fetcher: empty dataset identifier")
	}
	if !IsRemote(id) {
		if _, err := os.Stat(id); err != nil {
			return "", eris.Wrapf(err, "fetcher: dataset %s", id)
		}
		return c.pick(id, exts)
	}

	key := Key(id)
	mu, _ := c.locks.LoadOrStore(key, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	dir := filepath.Join(c.Dir, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "fetcher: create cache dir")
	}
	dest := filepath.Join(dir, remoteName(id))

	changed, err := c.fetch(ctx, id, dest)
	if err != nil {
		return "", err
	}
	if changed {
		_ = os.RemoveAll(filepath.Join(dir, extractDir))
	}
	return c.pick(dest, exts)
}

// fetch makes sure dest holds the remote file and reports whether it was
// (re)written.
func (c *Cache) fetch(ctx context.Context, id, dest string) (bool, error) {
	_, statErr := os.Stat(dest)
	cached := statErr == nil
	if cached && !c.Refresh {
		return false, nil
	}

	f, err := c.fetcherFor(id)
	if err != nil {
		return false, err
	}

	if rv, ok := f.(Revalidator); ok {
		etagPath := filepath.Join(filepath.Dir(dest), etagFile)
		etag := ""
		if cached {
			if b, err := os.ReadFile(etagPath); err == nil {
				etag = strings.TrimSpace(string(b))
			}
		}
		body, newETag, changed, err := rv.DownloadIfChanged(ctx, id, etag)
		if err != nil {
			if cached {
				c.log.Warn("revalidation failed, using cached copy", zap.String("id", id), zap.Error(err))
				return false, nil
			}
			return false, eris.Wrapf(err, "fetcher: download %s", id)
		}
		if !changed {
			return false, nil
		}
		defer body.Close() //nolint:errcheck
		n, err := writeFile(body, dest)
		if err != nil {
			return false, err
		}
		if newETag != "" {
			_ = os.WriteFile(etagPath, []byte(newETag), 0o644)
		}
		c.log.Info("downloaded dataset", zap.String("id", id), zap.Int64("bytes", n))
		return true, nil
	}

	n, err := f.DownloadToFile(ctx, id, dest)
	if err != nil {
		return false, eris.Wrapf(err, "fetcher: download %s", id)
	}
	c.log.Info("downloaded dataset", zap.String("id", id), zap.Int64("bytes", n))
	return true, nil
}

func (c *Cache) fetcherFor(id string) (Fetcher, error) {
	var f Fetcher
	if strings.HasPrefix(id, "ftp://") {
		f = c.ftp
	} else {
		f = c.http
	}
	if f == nil {
		return nil, eris.Errorf("fetcher: no fetcher configured for %s", id)
	}
	return f, nil
}

// pick unpacks archives and selects the dataset file.
func (c *Cache) pick(p string, exts []string) (string, error) {
	if !strings.EqualFold(filepath.Ext(p), ".zip") {
		return p, nil
	}
	dest := filepath.Join(filepath.Dir(p), extractDir)
	if c.Dir != "" && !strings.HasPrefix(p, c.Dir) {
		dest = filepath.Join(c.Dir, Key("file://"+p), extractDir)
	}
	paths, err := ExtractZIP(p, dest)
	if err != nil {
		return "", err
	}
	if len(exts) == 0 {
		if len(paths) == 0 {
			return "", eris.Errorf("fetcher: empty archive %s", p)
		}
		return paths[0], nil
	}
	found, ok := FirstWithExt(paths, exts...)
	if !ok {
		return "", eris.Errorf("fetcher: no %s file in %s", strings.Join(exts, "/"), p)
	}
	return found, nil
}

// remoteName is the file name to store a download under.
func remoteName(id string) string {
	u, err := url.Parse(id)
	if err != nil {
		return "dataset"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "dataset"
	}
	return name
}
