package catalog

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/guideworks/livesync/internal/content"
)

// NoEquipment is the facet sentinel matching items that declare an empty
// equipment list, as opposed to items with no equipment field at all.
const NoEquipment = "none"

type Item struct {
	content.Attributes
	IsLive bool `json:"isLive,omitempty"`
}

type Criteria struct {
	Query         string
	Levels        []string
	Equipment     []string
	Tags          []string
	Themes        []string
	FavoritesOnly bool
	Favorites     map[string]bool
}

type FacetValues struct {
	Levels    []string
	Equipment []string
	Tags      []string
	Muscles   []string
}

// MergeExercises combines the static item index with live rows. Static
// items win on slug collision and keep their relative order; live-only
// items follow, drafts last, otherwise ordered by title using a
// locale-aware comparison so the result is deterministic regardless of
// input order.
func MergeExercises(static []Item, live []content.LiveDocumentRow, locale string) []Item {
	out := make([]Item, 0, len(static)+len(live))
	seen := make(map[string]bool, len(static))
	for _, item := range static {
		if item.Slug == "" || seen[item.Slug] {
			continue
		}
		seen[item.Slug] = true
		out = append(out, item)
	}

	liveOnly := make([]Item, 0, len(live))
	for _, row := range live {
		attrs := row.Data.Frontmatter
		if attrs.Slug == "" {
			attrs.Slug = row.Slug
		}
		if attrs.Slug == "" || seen[attrs.Slug] {
			continue
		}
		seen[attrs.Slug] = true
		liveOnly = append(liveOnly, Item{Attributes: attrs, IsLive: true})
	}

	cmp := titleComparator(locale)
	sort.SliceStable(liveOnly, func(i, j int) bool {
		di := content.EffectiveStatus(liveOnly[i].Status) == content.StatusDraft
		dj := content.EffectiveStatus(liveOnly[j].Status) == content.StatusDraft
		if di != dj {
			return dj
		}
		if c := cmp(liveOnly[i].Title, liveOnly[j].Title); c != 0 {
			return c < 0
		}
		return liveOnly[i].Slug < liveOnly[j].Slug
	})
	return append(out, liveOnly...)
}

// FilterVisible removes draft items entirely unless teacher mode is
// unlocked, so they never contribute to counts, search, or facet options.
func FilterVisible(items []Item, teacherUnlocked bool) []Item {
	if teacherUnlocked {
		return items
	}
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if content.EffectiveStatus(item.Status) == content.StatusDraft {
			continue
		}
		out = append(out, item)
	}
	return out
}

// Filter intersects independent facet predicates. An empty selection for a
// facet means that facet does not constrain the result.
func Filter(items []Item, criteria Criteria) []Item {
	query := strings.ToLower(strings.TrimSpace(criteria.Query))
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if query != "" && !matchesQuery(item, query) {
			continue
		}
		if len(criteria.Levels) > 0 && !containsString(criteria.Levels, item.Level) {
			continue
		}
		if len(criteria.Equipment) > 0 && !matchesEquipment(item, criteria.Equipment) {
			continue
		}
		if len(criteria.Tags) > 0 && !intersects(criteria.Tags, item.Tags) {
			continue
		}
		if len(criteria.Themes) > 0 && !intersects(criteria.Themes, item.ThemeCompatibility) {
			continue
		}
		if criteria.FavoritesOnly && !criteria.Favorites[item.Slug] {
			continue
		}
		out = append(out, item)
	}
	return out
}

// FacetOptions derives the selectable facet values present in a visible
// item set, sorted for stable option lists.
func FacetOptions(items []Item) FacetValues {
	levels := map[string]bool{}
	equipment := map[string]bool{}
	tags := map[string]bool{}
	muscles := map[string]bool{}
	for _, item := range items {
		if item.Level != "" {
			levels[item.Level] = true
		}
		if item.Equipment != nil && len(item.Equipment) == 0 {
			equipment[NoEquipment] = true
		}
		for _, e := range item.Equipment {
			equipment[e] = true
		}
		for _, tag := range item.Tags {
			tags[tag] = true
		}
		for _, m := range item.Muscles {
			muscles[m] = true
		}
	}
	return FacetValues{
		Levels:    sortedKeys(levels),
		Equipment: sortedKeys(equipment),
		Tags:      sortedKeys(tags),
		Muscles:   sortedKeys(muscles),
	}
}

func matchesQuery(item Item, query string) bool {
	if strings.Contains(strings.ToLower(item.Title), query) {
		return true
	}
	for _, tag := range item.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	for _, muscle := range item.Muscles {
		if strings.Contains(strings.ToLower(muscle), query) {
			return true
		}
	}
	return false
}

func matchesEquipment(item Item, selected []string) bool {
	for _, want := range selected {
		if want == NoEquipment {
			if item.Equipment != nil && len(item.Equipment) == 0 {
				return true
			}
			continue
		}
		if containsString(item.Equipment, want) {
			return true
		}
	}
	return false
}

func titleComparator(locale string) func(a, b string) int {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.Und
	}
	c := collate.New(tag, collate.IgnoreCase)
	return c.CompareString
}

func intersects(selected, values []string) bool {
	for _, want := range selected {
		if containsString(values, want) {
			return true
		}
	}
	return false
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
