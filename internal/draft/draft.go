// Package draft parses and renders the markdown draft files posts are
// authored in: YAML front matter followed by "## Topic and outline for this
// post" (or "## Instructions for Cursor"), "## Images", and "## Content"
// sections.
package draft

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/quillagent/quill/pkg/schema"
)

// FrontMatter is the metadata block at the top of a draft file.
// blog_id and post_id may be written as YAML numbers; they normalize to
// strings.
type FrontMatter struct {
	Title  string   `yaml:"title"`
	BlogID string   `yaml:"blog_id"`
	PostID string   `yaml:"post_id"`
	Draft  *bool    `yaml:"draft"`
	Labels []string `yaml:"labels"`
}

// Image is one image reference from the Images section.
type Image struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// Draft is one parsed draft file.
type Draft struct {
	Front        FrontMatter
	Instructions string
	Images       []Image
	Content      string
}

var sectionRe = regexp.MustCompile(`^##\s+(.+)$`)

// instruction section accepts both historical headings.
func isInstructionSection(name string) bool {
	return name == "Topic and outline for this post" || name == "Instructions for Cursor"
}

// Parse reads a draft document. The front matter is validated against a JSON
// Schema before decoding; unknown sections are ignored.
func Parse(data []byte) (*Draft, error) {
	text := string(data)
	d := &Draft{}

	if strings.HasPrefix(text, "---") {
		end := strings.Index(text[3:], "---")
		if end >= 0 {
			block := text[3 : 3+end]
			front, err := parseFrontMatter([]byte(block))
			if err != nil {
				return nil, err
			}
			d.Front = *front
			text = strings.TrimLeft(text[3+end+3:], "\n")
		}
	}

	var section string
	var current []string
	flush := func() {
		body := strings.TrimSpace(strings.Join(current, "\n"))
		switch {
		case isInstructionSection(section):
			d.Instructions = body
		case section == "Images":
			d.Images = parseImages(current)
		case section == "Content":
			d.Content = body
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if m := sectionRe.FindStringSubmatch(line); m != nil {
			flush()
			section = strings.TrimSpace(m[1])
			current = nil
			continue
		}
		if section != "" {
			current = append(current, line)
		}
	}
	flush()

	return d, nil
}

// parseFrontMatter decodes and validates the YAML front matter block.
func parseFrontMatter(block []byte) (*FrontMatter, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(block, &raw); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "invalid front matter YAML").WithCause(err)
	}
	if raw == nil {
		return &FrontMatter{}, nil
	}

	if err := validateFrontMatter(raw); err != nil {
		return nil, err
	}

	fm := &FrontMatter{}
	fm.Title = yamlString(raw["title"])
	fm.BlogID = yamlString(raw["blog_id"])
	fm.PostID = yamlString(raw["post_id"])
	if b, ok := raw["draft"].(bool); ok {
		fm.Draft = &b
	}
	if labels, ok := raw["labels"].([]any); ok {
		for _, l := range labels {
			if s := yamlString(l); s != "" {
				fm.Labels = append(fm.Labels, s)
			}
		}
	}
	return fm, nil
}

// yamlString renders a scalar as a string. Numeric IDs are common since YAML
// does not require quoting them.
func yamlString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case int, int64, uint64, float64:
		return fmt.Sprintf("%v", s)
	default:
		return ""
	}
}

var imageMarkdownRe = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

func looksLikeImageRef(s string) bool {
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return true
	}
	for _, ext := range imageExtensions {
		if strings.HasSuffix(strings.ToLower(s), ext) {
			return true
		}
	}
	return false
}

// parseImages parses the Images section. Accepted forms:
//
//	- filename.png
//	- filename.png - Caption
//	- https://example.com/image.png - Caption
//	![alt](filename.png)
//
// Lines that do not look like image references are skipped.
func parseImages(lines []string) []Image {
	var out []Image
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "*") {
			continue
		}
		if m := imageMarkdownRe.FindStringSubmatch(line); m != nil {
			out = append(out, Image{URL: strings.TrimSpace(m[2]), Caption: strings.TrimSpace(m[1])})
			continue
		}
		if rest, ok := strings.CutPrefix(line, "- "); ok {
			rest = strings.TrimSpace(rest)
			if url, caption, found := strings.Cut(rest, " - "); found {
				url = strings.TrimSpace(url)
				if looksLikeImageRef(url) {
					out = append(out, Image{URL: url, Caption: strings.TrimSpace(caption)})
				}
				continue
			}
			if looksLikeImageRef(rest) {
				out = append(out, Image{URL: rest})
			}
		}
	}
	return out
}

// Render writes the draft back out in its canonical form. Used by pull to
// rewrite the file with refreshed content.
func (d *Draft) Render() ([]byte, error) {
	var b strings.Builder

	fm := map[string]any{}
	if d.Front.Title != "" {
		fm["title"] = d.Front.Title
	}
	if d.Front.BlogID != "" {
		fm["blog_id"] = d.Front.BlogID
	}
	if d.Front.PostID != "" {
		fm["post_id"] = d.Front.PostID
	}
	if d.Front.Draft != nil {
		fm["draft"] = *d.Front.Draft
	}
	if len(d.Front.Labels) > 0 {
		fm["labels"] = d.Front.Labels
	}
	if len(fm) > 0 {
		block, err := yaml.Marshal(fm)
		if err != nil {
			return nil, fmt.Errorf("marshal front matter: %w", err)
		}
		b.WriteString("---\n")
		b.Write(block)
		b.WriteString("---\n\n")
	}

	writeSection := func(name, body string) {
		b.WriteString("## " + name + "\n\n")
		if strings.TrimSpace(body) == "" {
			body = "(empty)"
		}
		b.WriteString(strings.TrimSpace(body) + "\n\n")
	}

	writeSection("Topic and outline for this post", d.Instructions)

	if len(d.Images) == 0 {
		writeSection("Images", "(none)")
	} else {
		var lines []string
		for _, img := range d.Images {
			line := "- " + img.URL
			if img.Caption != "" {
				line += " - " + img.Caption
			}
			lines = append(lines, line)
		}
		writeSection("Images", strings.Join(lines, "\n"))
	}

	writeSection("Content", d.Content)

	return []byte(b.String()), nil
}
