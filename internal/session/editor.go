package session

import (
	"bytes"
	"encoding/json"
	"sync"
)

// Editor tracks the two-phase editing state for one (slug, locale)
// document: Committed mirrors the last known server value, Draft holds
// local unsaved edits. A remote notification always refreshes Committed
// but replaces the Draft only while the editor is not focused, so a
// teacher mid-keystroke is never clobbered by a concurrent save elsewhere.
type Editor struct {
	mu        sync.Mutex
	focused   bool
	draft     json.RawMessage
	committed json.RawMessage
	hasDraft  bool
}

func NewEditor() *Editor {
	return &Editor{}
}

func (e *Editor) SetFocused(focused bool) {
	e.mu.Lock()
	e.focused = focused
	e.mu.Unlock()
}

func (e *Editor) Focused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.focused
}

// Edit records a local change as the draft.
func (e *Editor) Edit(doc json.RawMessage) {
	e.mu.Lock()
	e.draft = append(json.RawMessage(nil), doc...)
	e.hasDraft = true
	e.mu.Unlock()
}

// ApplyRemote folds in an authoritative server value.
func (e *Editor) ApplyRemote(doc json.RawMessage) {
	e.mu.Lock()
	e.committed = append(json.RawMessage(nil), doc...)
	if !e.focused {
		e.draft = nil
		e.hasDraft = false
	}
	e.mu.Unlock()
}

// CommitSaved promotes the draft after a confirmed save. If the draft
// changed again while the save was in flight it stays a draft.
func (e *Editor) CommitSaved(doc json.RawMessage) {
	e.mu.Lock()
	e.committed = append(json.RawMessage(nil), doc...)
	if e.hasDraft && bytes.Equal(e.draft, doc) {
		e.draft = nil
		e.hasDraft = false
	}
	e.mu.Unlock()
}

// Current returns the value the editor should display: the draft when one
// exists, otherwise the committed value.
func (e *Editor) Current() json.RawMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hasDraft {
		return append(json.RawMessage(nil), e.draft...)
	}
	return append(json.RawMessage(nil), e.committed...)
}

func (e *Editor) Committed() json.RawMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append(json.RawMessage(nil), e.committed...)
}

func (e *Editor) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasDraft
}

// Unlock tracks whether teacher mode is active for this session. Any
// authorization failure revokes it.
type Unlock struct {
	mu       sync.Mutex
	unlocked bool
}

func (u *Unlock) Grant() {
	u.mu.Lock()
	u.unlocked = true
	u.mu.Unlock()
}

func (u *Unlock) Revoke() {
	u.mu.Lock()
	u.unlocked = false
	u.mu.Unlock()
}

func (u *Unlock) Unlocked() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.unlocked
}
