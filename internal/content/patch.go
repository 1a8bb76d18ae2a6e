package content

import (
	"encoding/json"
)

type PatchKind int

const (
	PatchUnrecognized PatchKind = iota
	PatchLegacy
	PatchVersionedDoc
)

func (k PatchKind) String() string {
	switch k {
	case PatchLegacy:
		return "legacy"
	case PatchVersionedDoc:
		return "versioned_doc"
	default:
		return "unrecognized"
	}
}

const (
	BlockMarkdown = "markdown"
	BlockBullets  = "bullets"
	BlockMedia    = "media"

	MediaImage = "image"
	MediaVideo = "video"
	MediaLink  = "link"
)

// FrontmatterPatch is a sparse override of Attributes. A nil slice or
// pointer means "leave the base value alone"; a non-nil value replaces
// the base field wholesale.
type FrontmatterPatch struct {
	Title              *string  `json:"title,omitempty"`
	Tags               []string `json:"tags,omitempty"`
	Muscles            []string `json:"muscles,omitempty"`
	ThemeCompatibility []string `json:"themeCompatibility,omitempty"`
	Level              *string  `json:"level,omitempty"`
	Equipment          []string `json:"equipment,omitempty"`
	Media              *string  `json:"media,omitempty"`
	Status             *string  `json:"status,omitempty"`
}

type LegacyPatch struct {
	Frontmatter *FrontmatterPatch `json:"frontmatter,omitempty"`
	Sections    map[string]string `json:"sections,omitempty"`
}

type Pill struct {
	Label string `json:"label"`
	Kind  string `json:"kind,omitempty"`
}

type Block struct {
	Type      string   `json:"type"`
	Content   string   `json:"content,omitempty"`
	Items     []string `json:"items,omitempty"`
	MediaType string   `json:"mediaType,omitempty"`
	URL       string   `json:"url,omitempty"`
	Caption   string   `json:"caption,omitempty"`
}

type Section struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Blocks []Block `json:"blocks"`
}

type DocBody struct {
	HeroImage string    `json:"heroImage,omitempty"`
	Pills     []Pill    `json:"pills,omitempty"`
	Sections  []Section `json:"sections"`
}

type VersionedDoc struct {
	Version int     `json:"version"`
	Doc     DocBody `json:"doc"`
}

// OverridePatch is the tagged union of the two override shapes. Exactly one
// of Legacy and Doc is set for a recognized patch; a payload matching
// neither shape decodes to the unrecognized variant and is kept verbatim so
// it can round-trip through the store untouched.
type OverridePatch struct {
	Legacy *LegacyPatch
	Doc    *VersionedDoc

	raw json.RawMessage
}

func NewLegacyPatch(p LegacyPatch) *OverridePatch {
	return &OverridePatch{Legacy: &p}
}

func NewVersionedDocPatch(d VersionedDoc) *OverridePatch {
	d.Version = 2
	return &OverridePatch{Doc: &d}
}

func (p *OverridePatch) Kind() PatchKind {
	switch {
	case p == nil:
		return PatchUnrecognized
	case p.Doc != nil:
		return PatchVersionedDoc
	case p.Legacy != nil:
		return PatchLegacy
	default:
		return PatchUnrecognized
	}
}

func (p *OverridePatch) UnmarshalJSON(b []byte) error {
	*p = OverridePatch{}

	var probe struct {
		Version     int             `json:"version"`
		Doc         json.RawMessage `json:"doc"`
		Frontmatter json.RawMessage `json:"frontmatter"`
		Sections    json.RawMessage `json:"sections"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		// Malformed remote data becomes the unrecognized variant rather
		// than an error so rendering never breaks on it.
		p.raw = append(json.RawMessage(nil), b...)
		return nil
	}

	if probe.Version == 2 && hasSectionsArray(probe.Doc) {
		var doc VersionedDoc
		if err := json.Unmarshal(b, &doc); err == nil {
			p.Doc = &doc
			return nil
		}
	}

	if isJSONObject(probe.Frontmatter) || isJSONObject(probe.Sections) {
		var legacy LegacyPatch
		if err := json.Unmarshal(b, &legacy); err == nil {
			p.Legacy = &legacy
			return nil
		}
	}

	p.raw = append(json.RawMessage(nil), b...)
	return nil
}

func (p OverridePatch) MarshalJSON() ([]byte, error) {
	switch {
	case p.Doc != nil:
		return json.Marshal(p.Doc)
	case p.Legacy != nil:
		return json.Marshal(p.Legacy)
	case len(p.raw) > 0:
		return append([]byte(nil), p.raw...), nil
	default:
		return []byte("null"), nil
	}
}

// DecodePatch never fails: any payload that is not a recognizable patch
// shape yields the unrecognized variant.
func DecodePatch(b []byte) *OverridePatch {
	var p OverridePatch
	_ = p.UnmarshalJSON(b)
	return &p
}

func hasSectionsArray(doc json.RawMessage) bool {
	if !isJSONObject(doc) {
		return false
	}
	var body struct {
		Sections json.RawMessage `json:"sections"`
	}
	if err := json.Unmarshal(doc, &body); err != nil {
		return false
	}
	return isJSONArray(body.Sections)
}

func isJSONObject(raw json.RawMessage) bool {
	return firstByte(raw) == '{'
}

func isJSONArray(raw json.RawMessage) bool {
	return firstByte(raw) == '['
}

func firstByte(raw json.RawMessage) byte {
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return c
		}
	}
	return 0
}
