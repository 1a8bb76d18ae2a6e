package content

import (
	"encoding/json"
	"reflect"
	"testing"
)

func baseDoc() BaseContent {
	return BaseContent{
		Frontmatter: Attributes{
			Slug:               "squat",
			Title:              "Squat",
			Tags:               []string{"legs", "strength"},
			Muscles:            []string{"quadriceps", "glutes"},
			ThemeCompatibility: []string{"light", "dark"},
			Level:              "beginner",
			Equipment:          []string{"barbell"},
		},
		Content: "# Squat\n\nBend your knees.",
	}
}

func TestMergeNilPatchReturnsBaseUnchanged(t *testing.T) {
	base := baseDoc()
	view := Merge(base, nil)
	if view.Override != nil {
		t.Fatalf("expected no override, got %+v", view.Override)
	}
	if !reflect.DeepEqual(view.Frontmatter, base.Frontmatter) {
		t.Fatalf("frontmatter changed: %+v", view.Frontmatter)
	}
	if view.Content != base.Content {
		t.Fatalf("content changed: %q", view.Content)
	}
}

func TestMergeVersionedDocAttachesOverrideExactly(t *testing.T) {
	base := baseDoc()
	patch := NewVersionedDocPatch(VersionedDoc{
		Doc: DocBody{
			HeroImage: "hero.webp",
			Pills:     []Pill{{Label: "Beginner", Kind: "level"}},
			Sections: []Section{
				{ID: "s1", Title: "Setup", Blocks: []Block{
					{Type: BlockMarkdown, Content: "Stand tall."},
					{Type: BlockBullets, Items: []string{"feet apart", "core tight"}},
				}},
			},
		},
	})
	view := Merge(base, patch)
	if view.Override == nil {
		t.Fatalf("expected override to be set")
	}
	if !reflect.DeepEqual(view.Override, patch.Doc) {
		t.Fatalf("override does not equal patch doc: %+v", view.Override)
	}
	if view.Content != base.Content {
		t.Fatalf("expected base content retained as fallback, got %q", view.Content)
	}
	if !reflect.DeepEqual(view.Frontmatter, base.Frontmatter) {
		t.Fatalf("frontmatter changed under versioned override")
	}
}

func TestMergeLegacyShallowOverride(t *testing.T) {
	base := baseDoc()
	title := "Back Squat"
	level := "advanced"
	patch := NewLegacyPatch(LegacyPatch{
		Frontmatter: &FrontmatterPatch{
			Title:     &title,
			Level:     &level,
			Equipment: []string{},
		},
	})
	view := Merge(base, patch)
	if view.Override != nil {
		t.Fatalf("legacy patch must not set override")
	}
	if view.Frontmatter.Title != "Back Squat" {
		t.Fatalf("expected patched title, got %q", view.Frontmatter.Title)
	}
	if view.Frontmatter.Level != "advanced" {
		t.Fatalf("expected patched level, got %q", view.Frontmatter.Level)
	}
	if view.Frontmatter.Slug != "squat" {
		t.Fatalf("unpatched field changed: %q", view.Frontmatter.Slug)
	}
	if !reflect.DeepEqual(view.Frontmatter.Tags, []string{"legs", "strength"}) {
		t.Fatalf("unpatched tags changed: %v", view.Frontmatter.Tags)
	}
	if view.Frontmatter.Equipment == nil || len(view.Frontmatter.Equipment) != 0 {
		t.Fatalf("expected equipment replaced wholesale with empty list, got %v", view.Frontmatter.Equipment)
	}
}

func TestMergeIsPureAndRepeatable(t *testing.T) {
	base := baseDoc()
	title := "B"
	patch := NewLegacyPatch(LegacyPatch{Frontmatter: &FrontmatterPatch{Title: &title, Tags: []string{"x"}}})
	first := Merge(base, patch)
	second := Merge(base, patch)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("merge not repeatable: %+v vs %+v", first, second)
	}
	if base.Frontmatter.Title != "Squat" || base.Frontmatter.Tags[0] != "legs" {
		t.Fatalf("merge mutated base: %+v", base.Frontmatter)
	}
}

func TestMergeUnrecognizedPatchIsNoOverride(t *testing.T) {
	base := baseDoc()
	for _, raw := range []string{
		`{"version":3,"doc":{"sections":[]}}`,
		`{"version":2,"doc":{"sections":{}}}`,
		`{"bogus":true}`,
		`"a string"`,
		`[]`,
		`not even json`,
	} {
		patch := DecodePatch([]byte(raw))
		if patch.Kind() != PatchUnrecognized {
			t.Fatalf("payload %q: expected unrecognized, got %v", raw, patch.Kind())
		}
		view := Merge(base, patch)
		if view.Override != nil || !reflect.DeepEqual(view.Frontmatter, base.Frontmatter) {
			t.Fatalf("payload %q: unrecognized patch altered the view", raw)
		}
	}
}

func TestPatchDecodeDiscriminant(t *testing.T) {
	versioned := `{"version":2,"doc":{"pills":[{"label":"Core"}],"sections":[{"id":"a","title":"A","blocks":[{"type":"markdown","content":"hi"}]}]}}`
	patch := DecodePatch([]byte(versioned))
	if patch.Kind() != PatchVersionedDoc {
		t.Fatalf("expected versioned doc, got %v", patch.Kind())
	}
	if len(patch.Doc.Doc.Sections) != 1 || patch.Doc.Doc.Sections[0].Blocks[0].Content != "hi" {
		t.Fatalf("versioned doc decoded wrong: %+v", patch.Doc)
	}

	legacy := `{"frontmatter":{"title":"New"},"sections":{"Setup":"replaced"}}`
	patch = DecodePatch([]byte(legacy))
	if patch.Kind() != PatchLegacy {
		t.Fatalf("expected legacy, got %v", patch.Kind())
	}
	if patch.Legacy.Frontmatter == nil || *patch.Legacy.Frontmatter.Title != "New" {
		t.Fatalf("legacy frontmatter decoded wrong: %+v", patch.Legacy)
	}
	if patch.Legacy.Sections["Setup"] != "replaced" {
		t.Fatalf("legacy sections decoded wrong: %v", patch.Legacy.Sections)
	}
}

func TestPatchJSONRoundTripKeepsArrayShapes(t *testing.T) {
	raw := `{"version":2,"doc":{"heroImage":"h.webp","pills":[{"label":"A","kind":"tag"}],"sections":[{"id":"s","title":"T","blocks":[{"type":"bullets","items":["one","two"]}]}]}}`
	patch := DecodePatch([]byte(raw))
	out, err := json.Marshal(patch)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var a, b any
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		t.Fatalf("unmarshal input: %v", err)
	}
	if err := json.Unmarshal(out, &b); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("round trip changed the document:\nin:  %s\nout: %s", raw, out)
	}
}

func TestUnrecognizedPatchRoundTripsVerbatim(t *testing.T) {
	raw := `{"version":9,"weird":["yes"]}`
	patch := DecodePatch([]byte(raw))
	out, err := json.Marshal(patch)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(out) != raw {
		t.Fatalf("expected verbatim round trip, got %s", out)
	}
}

func TestApplySectionsReplacesMatchingHeading(t *testing.T) {
	markdown := "# Squat\n\nIntro.\n\n## Setup\n\nOld setup text.\nMore old text.\n\n## Execution\n\nGo down."
	got := ApplySections(markdown, map[string]string{"Setup": "\nNew setup text.\n"})
	want := "# Squat\n\nIntro.\n\n## Setup\n\nNew setup text.\n## Execution\n\nGo down."
	if got != want {
		t.Fatalf("section substitution wrong:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestApplySectionsIgnoresUnknownHeadingAndEmptyMap(t *testing.T) {
	markdown := "## Setup\n\ntext"
	if got := ApplySections(markdown, map[string]string{"Missing": "x"}); got != markdown {
		t.Fatalf("unknown heading altered body: %q", got)
	}
	if got := ApplySections(markdown, nil); got != markdown {
		t.Fatalf("nil sections altered body: %q", got)
	}
}
