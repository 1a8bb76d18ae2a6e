package staticindex

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/guideworks/livesync/internal/content"
)

const DefaultDebounce = 250 * time.Millisecond

type Logger interface {
	Printf(format string, args ...any)
}

type Options struct {
	// Dir holds markdown documents named <slug>.<locale>.md.
	Dir      string
	Debounce time.Duration
	Logger   Logger

	// OnReload fires after the index has been rebuilt from disk.
	OnReload func()
}

type docKey struct {
	slug   string
	locale string
}

// Index is the read-only static content catalog backing the merge
// pipeline. Documents live on disk; the index reloads itself when the
// directory changes.
type Index struct {
	dir      string
	debounce time.Duration
	logger   Logger
	onReload func()

	mu   sync.RWMutex
	docs map[docKey]content.BaseContent

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
	done    chan struct{}
}

func New(opts Options) *Index {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Index{
		dir:      opts.Dir,
		debounce: debounce,
		logger:   opts.Logger,
		onReload: opts.OnReload,
		docs:     map[docKey]content.BaseContent{},
	}
}

// Load rebuilds the index from disk. Files that do not parse or carry an
// invalid slug or locale are skipped so one broken document cannot take
// the whole catalog down.
func (ix *Index) Load() error {
	entries, err := os.ReadDir(ix.dir)
	if err != nil {
		return fmt.Errorf("read content dir: %w", err)
	}
	docs := map[docKey]content.BaseContent{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		slug, locale, ok := splitDocName(entry.Name())
		if !ok {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(ix.dir, entry.Name()))
		if err != nil {
			ix.logf("static doc %s: %v", entry.Name(), err)
			continue
		}
		doc, err := content.ParseDocument(string(raw))
		if err != nil {
			ix.logf("static doc %s: %v", entry.Name(), err)
			continue
		}
		if doc.Frontmatter.Slug == "" {
			doc.Frontmatter.Slug = slug
		}
		if doc.Frontmatter.Slug != slug {
			ix.logf("static doc %s: frontmatter slug %q does not match file name", entry.Name(), doc.Frontmatter.Slug)
			continue
		}
		docs[docKey{slug: slug, locale: locale}] = doc
	}
	ix.mu.Lock()
	ix.docs = docs
	ix.mu.Unlock()
	return nil
}

func splitDocName(name string) (slug, locale string, ok bool) {
	if !strings.HasSuffix(name, ".md") {
		return "", "", false
	}
	base := strings.TrimSuffix(name, ".md")
	dot := strings.LastIndex(base, ".")
	if dot <= 0 {
		return "", "", false
	}
	slug, locale = base[:dot], base[dot+1:]
	if !content.ValidSlug(slug) || !content.ValidLocale(locale) {
		return "", "", false
	}
	return slug, locale, true
}

func (ix *Index) Get(slug, locale string) (content.BaseContent, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	doc, ok := ix.docs[docKey{slug: slug, locale: locale}]
	return doc, ok
}

// List returns all documents for a locale in slug order.
func (ix *Index) List(locale string) []content.BaseContent {
	ix.mu.RLock()
	keys := make([]docKey, 0, len(ix.docs))
	for k := range ix.docs {
		if k.locale == locale {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].slug < keys[j].slug })
	out := make([]content.BaseContent, 0, len(keys))
	for _, k := range keys {
		out = append(out, ix.docs[k])
	}
	ix.mu.RUnlock()
	return out
}

func (ix *Index) Locales() []string {
	ix.mu.RLock()
	seen := map[string]bool{}
	for k := range ix.docs {
		seen[k.locale] = true
	}
	ix.mu.RUnlock()
	locales := make([]string, 0, len(seen))
	for locale := range seen {
		locales = append(locales, locale)
	}
	sort.Strings(locales)
	return locales
}

// Watch reloads the index when the content directory changes. Bursts of
// filesystem events collapse into a single reload.
func (ix *Index) Watch() error {
	ix.watchMu.Lock()
	defer ix.watchMu.Unlock()
	if ix.watcher != nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start content watcher: %w", err)
	}
	if err := watcher.Add(ix.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch content dir: %w", err)
	}
	ix.watcher = watcher
	ix.done = make(chan struct{})
	go ix.watchLoop(watcher, ix.done)
	return nil
}

func (ix *Index) watchLoop(watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			ix.scheduleReload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			ix.logf("content watcher: %v", err)
		}
	}
}

func (ix *Index) scheduleReload() {
	ix.watchMu.Lock()
	defer ix.watchMu.Unlock()
	if ix.timer != nil {
		ix.timer.Stop()
	}
	ix.timer = time.AfterFunc(ix.debounce, ix.reload)
}

func (ix *Index) reload() {
	if err := ix.Load(); err != nil {
		ix.logf("reload static content: %v", err)
		return
	}
	if ix.onReload != nil {
		ix.onReload()
	}
}

func (ix *Index) Close() error {
	ix.watchMu.Lock()
	watcher := ix.watcher
	done := ix.done
	if ix.timer != nil {
		ix.timer.Stop()
		ix.timer = nil
	}
	ix.watcher = nil
	ix.done = nil
	ix.watchMu.Unlock()
	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	<-done
	return err
}

func (ix *Index) logf(format string, args ...any) {
	if ix.logger == nil {
		return
	}
	ix.logger.Printf(format, args...)
}
