// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/conversation"
)

var created = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

func testOptions() *Options {
	opts := DefaultOptions()
	opts.Now = func() time.Time { return created.Add(time.Hour) }
	return opts
}

func testDoc(title string, contents ...string) Document {
	conv := conversation.Conversation{ID: "c1", Title: title, Model: "llama3", CreatedAt: created, UpdatedAt: created}
	doc := Document{Conversation: conv}
	for i, c := range contents {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAssistant
		}
		doc.Messages = append(doc.Messages, conversation.Message{
			ID: string(rune('a' + i)), ConversationID: "c1", Role: role, Content: c,
			CreatedAt: created.Add(time.Duration(i) * time.Second),
		})
	}
	return doc
}

func TestMarkdownExport(t *testing.T) {
	doc := testDoc("Sky *Colors*", "Why is the sky blue?", "Rayleigh scattering.\n\n```go\nfmt.Println(1)\n```")
	out, err := NewMarkdownExporter(testOptions()).Export(doc)
	require.NoError(t, err)
	s := string(out)

	assert.True(t, strings.HasPrefix(s, "---\ntitle: \"Sky *Colors*\"\nmodel: llama3\n"))
	assert.Contains(t, s, "# Sky \\*Colors\\*\n")
	assert.Contains(t, s, "### User <sub>09:30:00</sub>\n\nWhy is the sky blue?")
	assert.Contains(t, s, "### Assistant <sub>09:30:01</sub>\n\nRayleigh scattering.\n\n```go")
	assert.Contains(t, s, "generator: rigchat\n")
	assert.Contains(t, s, "Exported from rigchat on March 1, 2025 at 10:30 AM")
}

func TestMarkdownExport_WithoutMetadata(t *testing.T) {
	opts := testOptions()
	opts.IncludeMetadata = false
	opts.IncludeTimestamps = false

	out, err := NewMarkdownExporter(opts).Export(testDoc("", "hi", "hello"))
	require.NoError(t, err)
	s := string(out)
	assert.True(t, strings.HasPrefix(s, "# New Conversation\n"))
	assert.Contains(t, s, "### User\n\nhi")
	assert.NotContains(t, s, "<sub>")
}

func TestEscapeYAML(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain title", "plain title"},
		{"a: b", `"a: b"`},
		{"line1\nmodel: injected", `"line1\nmodel: injected"`},
		{`C:\path`, `"C:\\path"`},
		{`say "hi"`, `"say \"hi\""`},
		{" padded", `" padded"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeYAML(tt.in), tt.in)
	}
}

func TestHTMLExport_RendersMarkdownAndDropsRawHTML(t *testing.T) {
	doc := testDoc("<script>alert('t')</script>",
		"**bold** question",
		"<script>alert(1)</script>\n\n| a | b |\n|---|---|\n| 1 | 2 |",
	)
	out, err := NewHTMLExporter(testOptions()).Export(doc)
	require.NoError(t, err)
	s := string(out)

	assert.NotContains(t, s, "<script>")
	assert.Contains(t, s, "<title>&lt;script&gt;alert(&#39;t&#39;)&lt;/script&gt;</title>")
	assert.Contains(t, s, "<strong>bold</strong>")
	assert.Contains(t, s, "<table>")
	assert.Contains(t, s, `<section class="message assistant">`)
	assert.Contains(t, s, "Model: llama3")
}

func TestJSONExport(t *testing.T) {
	doc := testDoc("T", "hi", "hello")
	out, err := NewJSONExporter(nil).Export(doc)
	require.NoError(t, err)

	var got Document
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "T", got.Conversation.Title)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, conversation.RoleAssistant, got.Messages[1].Role)
}

func TestExport_RejectsEmptyConversation(t *testing.T) {
	doc := testDoc("T")
	for _, format := range Formats {
		exporter, err := ForFormat(format, nil)
		require.NoError(t, err)
		_, err = exporter.Export(doc)
		assert.ErrorIs(t, err, ErrEmptyConversation, format)
	}

	doc = testDoc("T", "hi")
	doc.Conversation.CreatedAt = time.Time{}
	_, err := NewMarkdownExporter(nil).Export(doc)
	assert.Error(t, err)
}

func TestForFormat(t *testing.T) {
	tests := map[string]string{
		"":         ".md",
		"md":       ".md",
		"Markdown": ".md",
		"json":     ".json",
		"htm":      ".html",
	}
	for format, ext := range tests {
		exporter, err := ForFormat(format, nil)
		require.NoError(t, err, format)
		assert.Equal(t, ext, exporter.FileExtension(), format)
	}

	_, err := ForFormat("pdf", nil)
	assert.ErrorContains(t, err, "unsupported export format")
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a-b-c_d", sanitizeFilename(`a/b:c d`))
	assert.Equal(t, "conversation", sanitizeFilename(""))
	assert.Equal(t, "x-y", sanitizeFilename("x\x01y"))
	assert.Len(t, []rune(sanitizeFilename(strings.Repeat("é", 80))), 50)
}

func TestExportToFile(t *testing.T) {
	doc := testDoc("Sky Colors", "hi", "hello")
	exporter := NewMarkdownExporter(testOptions())

	// Explicit file path, parent created on demand
	target := filepath.Join(t.TempDir(), "out", "chat.md")
	path, err := ExportToFile(doc, exporter, target)
	require.NoError(t, err)
	assert.Equal(t, target, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Sky Colors")

	// Directory gets a generated name
	dir := t.TempDir()
	path, err = ExportToFile(doc, exporter, dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "conversation_Sky_Colors_"))
	assert.Equal(t, ".md", filepath.Ext(path))

	_, err = ExportToFile(testDoc("T"), exporter, dir)
	assert.ErrorIs(t, err, ErrEmptyConversation)
}
