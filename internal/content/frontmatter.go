package content

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

// ParseDocument splits a markdown document into YAML frontmatter and body.
// A document without a frontmatter block yields zero Attributes and the
// whole input as body.
func ParseDocument(raw string) (BaseContent, error) {
	if !strings.HasPrefix(raw, frontmatterDelimiter+"\n") {
		return BaseContent{Content: raw}, nil
	}
	rest := raw[len(frontmatterDelimiter)+1:]
	end := strings.Index(rest, "\n"+frontmatterDelimiter+"\n")
	body := ""
	block := ""
	if end >= 0 {
		block = rest[:end]
		body = rest[end+len(frontmatterDelimiter)+2:]
	} else if strings.HasSuffix(rest, "\n"+frontmatterDelimiter) {
		block = rest[:len(rest)-len(frontmatterDelimiter)-1]
	} else {
		return BaseContent{Content: raw}, nil
	}

	var attrs Attributes
	if err := yaml.Unmarshal([]byte(block), &attrs); err != nil {
		return BaseContent{}, fmt.Errorf("parse frontmatter: %w", err)
	}
	return BaseContent{Frontmatter: attrs, Content: body}, nil
}

// EncodeDocument renders base content back to a markdown document with a
// YAML frontmatter block.
func EncodeDocument(doc BaseContent) (string, error) {
	block, err := yaml.Marshal(doc.Frontmatter)
	if err != nil {
		return "", fmt.Errorf("encode frontmatter: %w", err)
	}
	return frontmatterDelimiter + "\n" + string(block) + frontmatterDelimiter + "\n" + doc.Content, nil
}
