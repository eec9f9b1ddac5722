// Package parse reads entity drafts from files: markdown text with optional
// YAML front matter, or a JSON/YAML document carrying the same fields.
package parse

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Draft holds the fields a file may set. Nil fields were not given.
type Draft struct {
	Title       *string  `json:"title,omitempty" yaml:"title,omitempty"`
	Order       *int     `json:"order,omitempty" yaml:"order,omitempty"`
	Type        *string  `json:"type,omitempty" yaml:"type,omitempty"`
	Description *string  `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Content     string   `json:"content" yaml:"content"`
}

// Format represents supported input formats
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "md"
)

// FormatFor picks the format from a file name. Anything that is not JSON or
// YAML is read as markdown, so plain prose never goes through a structured
// decoder.
func FormatFor(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatMarkdown
	}
}

// ParseJSON parses a JSON draft
func ParseJSON(data []byte) (*Draft, error) {
	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return &d, nil
}

// ParseYAML parses a YAML draft
func ParseYAML(data []byte) (*Draft, error) {
	var d Draft
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return &d, nil
}

// ParseMarkdown parses markdown with optional YAML front matter. Without
// front matter the whole input is the content, unchanged.
func ParseMarkdown(data []byte) (*Draft, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	if !strings.HasPrefix(text, "---\n") {
		return &Draft{Content: string(data)}, nil
	}

	parts := strings.SplitN(text[4:], "\n---\n", 2)
	if len(parts) != 2 {
		// A closing delimiter on the last line has no trailing newline.
		if strings.HasSuffix(parts[0], "\n---") {
			parts = []string{strings.TrimSuffix(parts[0], "\n---"), ""}
		} else {
			return nil, fmt.Errorf("invalid markdown front matter format")
		}
	}

	var d Draft
	if err := yaml.Unmarshal([]byte(parts[0]), &d); err != nil {
		return nil, fmt.Errorf("failed to parse front matter: %w", err)
	}
	d.Content = strings.TrimLeft(parts[1], "\n")
	return &d, nil
}

// Parse parses a draft in the given format. An empty format means markdown.
func Parse(data []byte, format Format) (*Draft, error) {
	switch format {
	case FormatJSON:
		return ParseJSON(data)
	case FormatYAML, "yml":
		return ParseYAML(data)
	case FormatMarkdown, "markdown", "":
		return ParseMarkdown(data)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}
