package content

import (
	"errors"
	"regexp"
	"time"
)

var (
	ErrInvalidSlug   = errors.New("invalid slug")
	ErrInvalidLocale = errors.New("invalid locale")
)

const (
	StatusDraft = "draft"
	StatusReady = "ready"
)

var KnownThemes = []string{"light", "dark", "sepia"}

var (
	slugPattern   = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	localePattern = regexp.MustCompile(`^[a-z]{2}(?:-[A-Za-z]{2})?$`)
)

type Attributes struct {
	Slug               string   `json:"slug" yaml:"slug"`
	Title              string   `json:"title" yaml:"title"`
	Tags               []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Muscles            []string `json:"muscles,omitempty" yaml:"muscles,omitempty"`
	ThemeCompatibility []string `json:"themeCompatibility,omitempty" yaml:"themeCompatibility,omitempty"`
	Level              string   `json:"level,omitempty" yaml:"level,omitempty"`
	Equipment          []string `json:"equipment" yaml:"equipment"`
	Media              string   `json:"media,omitempty" yaml:"media,omitempty"`
	Status             string   `json:"status,omitempty" yaml:"status,omitempty"`
}

type BaseContent struct {
	Frontmatter Attributes `json:"frontmatter"`
	Content     string     `json:"content"`
}

type LiveDocumentRow struct {
	Slug      string      `json:"slug"`
	Locale    string      `json:"locale"`
	Data      BaseContent `json:"data"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func ValidSlug(slug string) bool {
	return slug != "" && len(slug) <= 128 && slugPattern.MatchString(slug)
}

func ValidLocale(locale string) bool {
	return localePattern.MatchString(locale)
}

// EffectiveStatus treats a missing status as ready.
func EffectiveStatus(status string) string {
	if status == StatusDraft {
		return StatusDraft
	}
	return StatusReady
}
