package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/guideworks/livesync/internal/catalog"
	"github.com/guideworks/livesync/internal/content"
	"github.com/guideworks/livesync/internal/docstore"
	"github.com/guideworks/livesync/internal/poller"
	"github.com/guideworks/livesync/internal/realtime"
	"github.com/guideworks/livesync/internal/session"
	"github.com/guideworks/livesync/internal/staticindex"
)

// follower mirrors the server's live docs and overrides for one locale,
// merges them over the static content and reprints the catalog whenever
// anything changes.
type follower struct {
	client  *session.Client
	index   *staticindex.Index
	locale  string
	teacher bool
	logger  *log.Logger

	mu        sync.Mutex
	overrides map[string]*content.OverridePatch
	live      []content.LiveDocumentRow
}

func main() {
	baseURL := os.Getenv("LIVESYNC_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	locale := os.Getenv("LIVESYNC_LOCALE")
	if locale == "" {
		locale = "en"
	}
	contentDir := os.Getenv("LIVESYNC_CONTENT_DIR")
	if contentDir == "" {
		contentDir = "content"
	}
	logger := log.New(os.Stderr, "follow: ", log.LstdFlags)

	f := &follower{
		client:    session.NewClient(baseURL, os.Getenv("LIVESYNC_PIN"), nil, nil),
		locale:    locale,
		teacher:   os.Getenv("LIVESYNC_TEACHER") == "1",
		logger:    logger,
		overrides: map[string]*content.OverridePatch{},
	}

	f.index = staticindex.New(staticindex.Options{
		Dir:      contentDir,
		Logger:   logger,
		OnReload: f.printCatalog,
	})
	if err := f.index.Load(); err != nil {
		log.Fatalf("failed to load static content: %v", err)
	}
	if err := f.index.Watch(); err != nil {
		logger.Printf("static content watching disabled: %v", err)
	}
	defer func() { _ = f.index.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.refresh(ctx); err != nil {
		logger.Printf("initial fetch failed: %v", err)
	}
	f.printCatalog()

	p := poller.New(poller.Options{
		Interval:   durationEnv("LIVESYNC_POLL_INTERVAL", 0),
		Fetch:      f.refreshAndPrint,
		Visibility: poller.AlwaysVisible,
		Logger:     logger,
	})
	p.Start()
	defer p.Stop()

	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/v1/realtime"
	ready := &readiness{poller: p}
	managers := make([]*realtime.ChannelManager, 0, 2)
	for _, table := range []docstore.Table{docstore.TableOverrides, docstore.TableLiveDocs} {
		table := table
		m, err := realtime.NewChannelManager(realtime.ChannelOptions{
			Table:          table,
			Locale:         locale,
			Dial:           realtime.WebsocketDial(wsURL, nil),
			Logger:         logger,
			OnReady:        ready.set(table),
			OnNotification: func(n docstore.Notification) { f.applyNotification(n) },
		})
		if err != nil {
			log.Fatalf("failed to start realtime channel: %v", err)
		}
		m.Start()
		managers = append(managers, m)
	}
	defer func() {
		for _, m := range managers {
			m.Close()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Printf("shutting down")
}

// readiness silences the poller only while every channel is subscribed.
type readiness struct {
	mu     sync.Mutex
	states map[docstore.Table]bool
	poller *poller.Poller
}

func (r *readiness) set(table docstore.Table) func(bool) {
	return func(ready bool) {
		r.mu.Lock()
		if r.states == nil {
			r.states = map[docstore.Table]bool{}
		}
		r.states[table] = ready
		all := len(r.states) == 2
		for _, v := range r.states {
			all = all && v
		}
		r.mu.Unlock()
		r.poller.SetReady(all)
	}
}

func (f *follower) refreshAndPrint(ctx context.Context) error {
	if err := f.refresh(ctx); err != nil {
		return err
	}
	f.printCatalog()
	return nil
}

// refresh replaces the mirrored state wholesale from the API.
func (f *follower) refresh(ctx context.Context) error {
	rows, err := f.client.ListOverrides(ctx, f.locale)
	if err != nil {
		return fmt.Errorf("list overrides: %w", err)
	}
	live, err := f.client.ListLiveDocs(ctx, f.locale)
	if err != nil {
		return fmt.Errorf("list live docs: %w", err)
	}
	overrides := make(map[string]*content.OverridePatch, len(rows))
	for _, row := range rows {
		overrides[row.Slug] = content.DecodePatch(row.Data)
	}
	f.mu.Lock()
	f.overrides = overrides
	f.live = live
	f.mu.Unlock()
	return nil
}

func (f *follower) applyNotification(n docstore.Notification) {
	f.mu.Lock()
	switch n.Table {
	case docstore.TableOverrides:
		if n.Op == docstore.OpDelete {
			delete(f.overrides, n.Slug)
		} else if n.Row != nil {
			f.overrides[n.Slug] = content.DecodePatch(n.Row.Data)
		}
	case docstore.TableLiveDocs:
		kept := f.live[:0]
		for _, row := range f.live {
			if row.Slug != n.Slug {
				kept = append(kept, row)
			}
		}
		f.live = kept
		if n.Op != docstore.OpDelete && n.Row != nil {
			var doc content.BaseContent
			if err := json.Unmarshal(n.Row.Data, &doc); err != nil {
				f.logger.Printf("undecodable live doc %s: %v", n.Slug, err)
			} else {
				f.live = append(f.live, content.LiveDocumentRow{
					Slug:      n.Slug,
					Locale:    n.Locale,
					Data:      doc,
					UpdatedAt: n.Row.UpdatedAt,
				})
			}
		}
	}
	f.mu.Unlock()
	f.printCatalog()
}

func (f *follower) printCatalog() {
	f.mu.Lock()
	live := append([]content.LiveDocumentRow(nil), f.live...)
	overrides := make(map[string]*content.OverridePatch, len(f.overrides))
	for slug, patch := range f.overrides {
		overrides[slug] = patch
	}
	f.mu.Unlock()

	static := make([]catalog.Item, 0)
	for _, doc := range f.index.List(f.locale) {
		merged := content.Merge(doc, overrides[doc.Frontmatter.Slug])
		static = append(static, catalog.Item{Attributes: merged.Frontmatter})
	}
	items := catalog.MergeExercises(static, live, f.locale)
	items = catalog.FilterVisible(items, f.teacher)

	fmt.Printf("--- catalog %s (%s) ---\n", f.locale, time.Now().Format(time.TimeOnly))
	for _, item := range items {
		marker := " "
		if item.IsLive {
			marker = "*"
		}
		fmt.Printf("%s %-24s %-32s %s\n", marker, item.Slug, item.Title, content.EffectiveStatus(item.Status))
	}
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
