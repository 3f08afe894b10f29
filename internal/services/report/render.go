package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

// Output formats
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; max-width: 1100px; margin: 2em auto; }
table { border-collapse: collapse; margin-bottom: 1em; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; }
</style>
</head>
<body>
%s</body>
</html>
`

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(htmlrenderer.WithXHTML()),
)

// RenderHTML converts markdown to a standalone HTML page.
func RenderHTML(title, md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("failed to render html: %w", err)
	}
	return fmt.Sprintf(pageTemplate, html.EscapeString(title), buf.String()), nil
}

// Render encodes v in format. toMarkdown supplies the markdown view used by
// the markdown and html formats.
func Render(format, title string, v any, toMarkdown func() string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode json: %w", err)
		}
		return append(data, '\n'), nil
	case FormatMarkdown, "md":
		return []byte(toMarkdown()), nil
	case FormatHTML:
		page, err := RenderHTML(title, toMarkdown())
		if err != nil {
			return nil, err
		}
		return []byte(page), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}
