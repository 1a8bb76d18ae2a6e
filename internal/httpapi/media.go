package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

const maxMediaBytes = 5 << 20

// Image types accepted for upload. The sniffed type decides, never the
// file name or the declared Content-Type.
var mediaExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

var mediaIDPattern = regexp.MustCompile(`^[0-9a-f]{16}\.(?:png|jpg|webp|gif)$`)

// URLCache maps a media id to its public URL. Entries are populated
// lazily and never invalidated: media files are content addressed, so a
// cached URL can never go stale.
type URLCache interface {
	Get(mediaID string) (string, bool)
	Put(mediaID, url string)
}

type mapURLCache struct {
	mu   sync.RWMutex
	urls map[string]string
}

func NewMapURLCache() URLCache {
	return &mapURLCache{urls: map[string]string{}}
}

func (c *mapURLCache) Get(mediaID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	url, ok := c.urls[mediaID]
	return url, ok
}

func (c *mapURLCache) Put(mediaID, url string) {
	c.mu.Lock()
	c.urls[mediaID] = url
	c.mu.Unlock()
}

// MediaStore keeps uploaded images on disk under content-addressed names.
type MediaStore struct {
	dir     string
	baseURL string
	cache   URLCache
}

func NewMediaStore(dir, baseURL string, cache URLCache) *MediaStore {
	if cache == nil {
		cache = NewMapURLCache()
	}
	return &MediaStore{dir: dir, baseURL: baseURL, cache: cache}
}

// Save writes the image and returns its id and public URL. Saving the
// same bytes twice yields the same id.
func (m *MediaStore) Save(data []byte, contentType string) (string, string, error) {
	ext, ok := mediaExtensions[contentType]
	if !ok {
		return "", "", fmt.Errorf("unsupported media type %q", contentType)
	}
	sum := sha256.Sum256(data)
	id := hex.EncodeToString(sum[:8]) + ext
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", "", err
	}
	path := filepath.Join(m.dir, id)
	if _, err := os.Stat(path); err != nil {
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return "", "", err
		}
		if err := os.Rename(tmp, path); err != nil {
			return "", "", err
		}
	}
	return id, m.PublicURL(id), nil
}

func (m *MediaStore) PublicURL(id string) string {
	if url, ok := m.cache.Get(id); ok {
		return url
	}
	url := m.baseURL + "/media/" + id
	m.cache.Put(id, url)
	return url
}

// ServeFile writes the stored image for a media id, or 404.
func (m *MediaStore) ServeFile(w http.ResponseWriter, r *http.Request, id string) {
	if !mediaIDPattern.MatchString(id) {
		http.NotFound(w, r)
		return
	}
	path := filepath.Join(m.dir, id)
	if _, err := os.Stat(path); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}
