// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports conversations to a standalone HTML page. Message
// content is rendered as markdown; raw HTML in messages is dropped.
type HTMLExporter struct {
	options *Options
	md      goldmark.Markdown
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{
		options: opts,
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Export converts a document to HTML.
func (e *HTMLExporter) Export(doc Document) ([]byte, error) {
	if err := validate(doc); err != nil {
		return nil, err
	}
	conv := doc.Conversation
	title := html.EscapeString(conv.DisplayTitle())

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("<meta charset=\"UTF-8\">\n")
	sb.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", title)
	sb.WriteString("<meta name=\"generator\" content=\"rigchat\">\n")
	fmt.Fprintf(&sb, "<meta name=\"date\" content=\"%s\">\n", conv.CreatedAt.Format(time.RFC3339))
	sb.WriteString(stylesheet)
	sb.WriteString("</head>\n<body>\n<div class=\"container\">\n")

	fmt.Fprintf(&sb, "<header>\n<h1>%s</h1>\n", title)
	if e.options.IncludeMetadata {
		fmt.Fprintf(&sb, "<p class=\"meta\">Model: %s &middot; Created: %s &middot; Messages: %d</p>\n",
			html.EscapeString(conv.Model), formatTimestamp(conv.CreatedAt), len(doc.Messages))
	}
	sb.WriteString("</header>\n<main>\n")

	for _, msg := range doc.Messages {
		body, err := e.renderContent(msg.Content)
		if err != nil {
			return nil, fmt.Errorf("render message %s: %w", msg.ID, err)
		}
		fmt.Fprintf(&sb, "<section class=\"message %s\">\n<div class=\"role\">%s",
			html.EscapeString(string(msg.Role)), html.EscapeString(roleLabel(msg.Role)))
		if e.options.IncludeTimestamps {
			fmt.Fprintf(&sb, " <time>%s</time>", formatShortTimestamp(msg.CreatedAt))
		}
		sb.WriteString("</div>\n<div class=\"content\">\n")
		sb.WriteString(body)
		sb.WriteString("</div>\n</section>\n")
	}

	fmt.Fprintf(&sb, "</main>\n<footer>Exported from rigchat on %s</footer>\n",
		e.options.now().Format("January 2, 2006 at 3:04 PM"))
	sb.WriteString("</div>\n</body>\n</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

func (e *HTMLExporter) renderContent(content string) (string, error) {
	var buf bytes.Buffer
	if err := e.md.Convert([]byte(content), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const stylesheet = `<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; line-height: 1.6;
       background: #1a1b26; color: #c0caf5; margin: 0; padding: 20px; }
.container { max-width: 900px; margin: 0 auto; background: #24283b; border-radius: 12px; overflow: hidden; }
header { padding: 24px 32px; background: #414868; }
header h1 { margin: 0 0 8px; font-size: 26px; }
.meta { margin: 0; font-size: 14px; color: #a9b1d6; }
.message { padding: 20px 32px; border-bottom: 1px solid #414868; }
.message.user { background: #1f2335; }
.role { font-weight: 700; color: #7aa2f7; margin-bottom: 8px; }
.message.assistant .role { color: #bb9af7; }
.role time { font-weight: 400; font-size: 12px; color: #565f89; margin-left: 8px; }
pre { background: #1a1b26; padding: 12px; border-radius: 6px; overflow-x: auto; }
code { font-family: "SF Mono", Monaco, "Fira Code", monospace; font-size: 14px; }
footer { padding: 16px 32px; font-size: 13px; color: #565f89; text-align: center; }
</style>
`
