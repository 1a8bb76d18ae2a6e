package session

import (
	"encoding/json"
	"testing"
)

func TestEditorDraftWinsOverCommitted(t *testing.T) {
	e := NewEditor()
	e.ApplyRemote(json.RawMessage(`{"v":1}`))
	e.Edit(json.RawMessage(`{"v":2}`))

	if got := string(e.Current()); got != `{"v":2}` {
		t.Fatalf("current = %s, want draft", got)
	}
	if got := string(e.Committed()); got != `{"v":1}` {
		t.Fatalf("committed = %s, want remote value", got)
	}
	if !e.Dirty() {
		t.Fatalf("expected dirty editor")
	}
}

func TestRemoteUpdateReplacesDraftOnlyWhenUnfocused(t *testing.T) {
	e := NewEditor()
	e.SetFocused(true)
	e.Edit(json.RawMessage(`{"v":"local"}`))
	e.ApplyRemote(json.RawMessage(`{"v":"remote"}`))

	if got := string(e.Current()); got != `{"v":"local"}` {
		t.Fatalf("focused editor lost its draft: %s", got)
	}

	e.SetFocused(false)
	e.ApplyRemote(json.RawMessage(`{"v":"remote2"}`))
	if got := string(e.Current()); got != `{"v":"remote2"}` {
		t.Fatalf("unfocused editor kept stale draft: %s", got)
	}
	if e.Dirty() {
		t.Fatalf("draft should be cleared after unfocused remote update")
	}
}

func TestCommitSavedKeepsNewerDraft(t *testing.T) {
	e := NewEditor()
	e.Edit(json.RawMessage(`{"v":1}`))
	saved := json.RawMessage(`{"v":1}`)

	// Edit again while the save is in flight.
	e.Edit(json.RawMessage(`{"v":2}`))
	e.CommitSaved(saved)

	if !e.Dirty() {
		t.Fatalf("newer draft was discarded by a stale save confirmation")
	}
	if got := string(e.Current()); got != `{"v":2}` {
		t.Fatalf("current = %s, want the newer draft", got)
	}

	e.CommitSaved(json.RawMessage(`{"v":2}`))
	if e.Dirty() {
		t.Fatalf("matching save confirmation should clear the draft")
	}
}

func TestUnlockGrantRevoke(t *testing.T) {
	var u Unlock
	if u.Unlocked() {
		t.Fatalf("zero value should be locked")
	}
	u.Grant()
	if !u.Unlocked() {
		t.Fatalf("grant did not unlock")
	}
	u.Revoke()
	if u.Unlocked() {
		t.Fatalf("revoke did not lock")
	}
}
