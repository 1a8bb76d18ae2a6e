package content

import (
	"strings"
)

// MergedView is the render model computed from base content plus an
// optional override. When Override is set the renderer uses its structured
// sections instead of Content; Content is kept as a fallback for overrides
// with zero sections.
type MergedView struct {
	Frontmatter Attributes    `json:"frontmatter"`
	Content     string        `json:"content"`
	Override    *VersionedDoc `json:"override,omitempty"`
}

// Merge projects an override patch onto base content. It is pure: it never
// mutates base and given equal inputs returns deep-equal views.
func Merge(base BaseContent, patch *OverridePatch) MergedView {
	switch patch.Kind() {
	case PatchVersionedDoc:
		return MergedView{
			Frontmatter: base.Frontmatter,
			Content:     base.Content,
			Override:    patch.Doc,
		}
	case PatchLegacy:
		return MergedView{
			Frontmatter: mergeFrontmatter(base.Frontmatter, patch.Legacy.Frontmatter),
			Content:     base.Content,
		}
	default:
		return MergedView{
			Frontmatter: base.Frontmatter,
			Content:     base.Content,
		}
	}
}

func mergeFrontmatter(base Attributes, patch *FrontmatterPatch) Attributes {
	if patch == nil {
		return base
	}
	out := base
	if patch.Title != nil {
		out.Title = *patch.Title
	}
	if patch.Tags != nil {
		out.Tags = patch.Tags
	}
	if patch.Muscles != nil {
		out.Muscles = patch.Muscles
	}
	if patch.ThemeCompatibility != nil {
		out.ThemeCompatibility = patch.ThemeCompatibility
	}
	if patch.Level != nil {
		out.Level = *patch.Level
	}
	if patch.Equipment != nil {
		out.Equipment = patch.Equipment
	}
	if patch.Media != nil {
		out.Media = *patch.Media
	}
	if patch.Status != nil {
		out.Status = *patch.Status
	}
	return out
}

// ApplySections substitutes legacy section overrides into a markdown body.
// A key matches a heading line (any level) by its trimmed text; the
// replacement spans from below the heading to the next heading of the same
// or higher level. Unmatched keys are ignored.
func ApplySections(markdown string, sections map[string]string) string {
	if len(sections) == 0 {
		return markdown
	}
	lines := strings.Split(markdown, "\n")
	var out []string
	i := 0
	for i < len(lines) {
		level, title := headingLine(lines[i])
		if level == 0 {
			out = append(out, lines[i])
			i++
			continue
		}
		replacement, ok := sections[title]
		out = append(out, lines[i])
		i++
		if !ok {
			continue
		}
		end := i
		for end < len(lines) {
			nextLevel, _ := headingLine(lines[end])
			if nextLevel != 0 && nextLevel <= level {
				break
			}
			end++
		}
		out = append(out, strings.Split(strings.TrimRight(replacement, "\n"), "\n")...)
		i = end
	}
	return strings.Join(out, "\n")
}

func headingLine(line string) (int, string) {
	trimmed := strings.TrimLeft(line, " ")
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level == len(trimmed) || trimmed[level] != ' ' {
		return 0, ""
	}
	return level, strings.TrimSpace(trimmed[level:])
}
