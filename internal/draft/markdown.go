package draft

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(
		html.WithHardWraps(),
		html.WithUnsafe(),
	),
)

// ContentToHTML converts draft content to HTML. Content that already starts
// with a tag is passed through untouched so hand-written HTML survives.
func ContentToHTML(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || strings.HasPrefix(trimmed, "<") {
		return trimmed, nil
	}

	var buf bytes.Buffer
	if err := md.Convert([]byte(trimmed), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
