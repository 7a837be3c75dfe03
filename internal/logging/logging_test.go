// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Setup("info", "json", &buf))
	defer Discard()

	log.WithField("model", "llama3").Info("stream started")
	log.Debug("hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "stream started", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "llama3", entry["fields"].(map[string]any)["model"])
}

func TestSetup_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Setup("DEBUG", "text", &buf))
	defer Discard()

	log.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestSetup_Errors(t *testing.T) {
	assert.Error(t, Setup("loud", "text", os.Stderr))
	assert.Error(t, Setup("info", "xml", os.Stderr))
}

func TestNewHandler_NilWriterDiscards(t *testing.T) {
	h, err := NewHandler("json", nil)
	require.NoError(t, err)
	assert.NoError(t, h.HandleLog(&log.Entry{Message: "dropped"}))
}

func TestLevelFiltering(t *testing.T) {
	h := memory.New()
	log.SetHandler(h)
	log.SetLevel(log.WarnLevel)
	defer Discard()

	log.Info("skip")
	log.WithError(assert.AnError).Warn("keep")

	require.Len(t, h.Entries, 1)
	assert.Equal(t, "keep", h.Entries[0].Message)
	assert.Equal(t, assert.AnError.Error(), h.Entries[0].Fields.Get("error"))
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "rigchat.log")
	f, err := OpenFile(path)
	require.NoError(t, err)
	_, err = f.WriteString("line\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = OpenFile(path)
	require.NoError(t, err)
	_, err = f.WriteString("more\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line\nmore\n", string(data))
}
