package staticindex

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeDoc(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

const squatDoc = `---
slug: squat
title: Squat
tags: [legs]
equipment: []
---
Stand with feet apart.
`

func TestLoadParsesDocumentsAndSkipsBrokenOnes(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "squat.en.md", squatDoc)
	writeDoc(t, dir, "plank.en.md", "no frontmatter, still a document")
	writeDoc(t, dir, "broken.en.md", "---\n: : bad yaml\n---\nbody")
	writeDoc(t, dir, "UPPER.en.md", squatDoc)
	writeDoc(t, dir, "notes.txt", "ignored")

	ix := New(Options{Dir: dir})
	if err := ix.Load(); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	doc, ok := ix.Get("squat", "en")
	if !ok {
		t.Fatalf("squat missing")
	}
	if doc.Frontmatter.Title != "Squat" || doc.Content != "Stand with feet apart.\n" {
		t.Fatalf("squat parsed wrong: %+v", doc)
	}

	// A document without frontmatter gets its slug from the file name.
	plank, ok := ix.Get("plank", "en")
	if !ok || plank.Frontmatter.Slug != "plank" {
		t.Fatalf("plank = %+v, ok=%v", plank, ok)
	}

	if _, ok := ix.Get("broken", "en"); ok {
		t.Fatalf("broken document should be skipped")
	}
	if got := len(ix.List("en")); got != 2 {
		t.Fatalf("en list has %d docs, want 2", got)
	}
}

func TestListIsScopedToLocaleAndOrderedBySlug(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "squat.en.md", squatDoc)
	writeDoc(t, dir, "abs.en.md", "---\nslug: abs\ntitle: Abs\n---\nbody")
	writeDoc(t, dir, "squat.de.md", "---\nslug: squat\ntitle: Kniebeuge\n---\nbody")

	ix := New(Options{Dir: dir})
	if err := ix.Load(); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	en := ix.List("en")
	if len(en) != 2 || en[0].Frontmatter.Slug != "abs" || en[1].Frontmatter.Slug != "squat" {
		t.Fatalf("en list wrong: %+v", en)
	}
	de := ix.List("de")
	if len(de) != 1 || de[0].Frontmatter.Title != "Kniebeuge" {
		t.Fatalf("de list wrong: %+v", de)
	}
	locales := ix.Locales()
	if len(locales) != 2 || locales[0] != "de" || locales[1] != "en" {
		t.Fatalf("locales = %v", locales)
	}
}

func TestWatchReloadsAfterChange(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "squat.en.md", squatDoc)

	reloaded := make(chan struct{}, 4)
	ix := New(Options{
		Dir:      dir,
		Debounce: 10 * time.Millisecond,
		OnReload: func() { reloaded <- struct{}{} },
	})
	if err := ix.Load(); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := ix.Watch(); err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	defer func() {
		if err := ix.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
	}()

	writeDoc(t, dir, "plank.en.md", "---\nslug: plank\ntitle: Plank\n---\nbody")
	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatalf("watcher never triggered a reload")
	}
	if _, ok := ix.Get("plank", "en"); !ok {
		t.Fatalf("new document not picked up after reload")
	}
}
