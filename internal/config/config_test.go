// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv isolates a test from the caller's RIGCHAT_* settings.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"RIGCHAT_BASE_URL", "RIGCHAT_MODEL", "RIGCHAT_NUM_CTX", "RIGCHAT_LOG_LEVEL", "RIGCHAT_STORE", "RIGCHAT_MAX_CONVERSATIONS"} {
		t.Setenv(name, "")
	}
	t.Setenv("RIGCHAT_HOME", t.TempDir())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// =============================================================================
// DEFAULTS
// =============================================================================

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "http://localhost:11434/api", cfg.Server.BaseURL)
	assert.Equal(t, 2048, cfg.Chat.ContextWindow)
	assert.Equal(t, 60*time.Second, cfg.Server.Timeout())
	assert.Equal(t, 10*time.Second, cfg.Server.ConnectTimeout())
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.NotEmpty(t, cfg.Chat.SummarizationPrompt)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("RIGCHAT_MODEL", "mistral")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mistral", cfg.Chat.DefaultModel)
	assert.Equal(t, 2048, cfg.Chat.ContextWindow)
}

// =============================================================================
// LOADING
// =============================================================================

func TestLoadFromPath_TOML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, `
[server]
base_url = "http://gpu-box:11434/api"

[chat]
default_model = "llama3"
context_window = 8192

[storage]
max_conversations = 100
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:11434/api", cfg.Server.BaseURL)
	assert.Equal(t, "llama3", cfg.Chat.DefaultModel)
	assert.Equal(t, 8192, cfg.Chat.ContextWindow)
	assert.Equal(t, 100, cfg.Storage.MaxConversations)
	// Omitted values fall back to defaults
	assert.Equal(t, 60, cfg.Server.TimeoutSecs)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadFromPath_JSON(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"chat": {"default_model": "phi3"}, "storage": {"backend": "json"}}`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "phi3", cfg.Chat.DefaultModel)
	assert.Equal(t, "json", cfg.Storage.Backend)
	assert.Equal(t, 2048, cfg.Chat.ContextWindow)
}

func TestLoadFromPath_UnknownKey(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[chat]\ncontext_windw = 4096\n")

	_, err := LoadFromPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context_windw")
}

func TestLoadFromPath_Invalid(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[server]\nbase_url = \"localhost\"\n")

	_, err := LoadFromPath(path)
	require.Error(t, err)
	var verrs ValidateErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "server.base_url", verrs[0].Field)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RIGCHAT_BASE_URL", "http://other:1234/api")
	t.Setenv("RIGCHAT_NUM_CTX", "4096")
	t.Setenv("RIGCHAT_STORE", "json")
	t.Setenv("RIGCHAT_LOG_LEVEL", "debug")
	t.Setenv("RIGCHAT_MAX_CONVERSATIONS", "25")

	cfg := Default()
	assert.Equal(t, 0, cfg.Storage.MaxConversations)
	cfg.ApplyEnvOverrides()
	assert.Equal(t, 25, cfg.Storage.MaxConversations)
	assert.Equal(t, "http://other:1234/api", cfg.Server.BaseURL)
	assert.Equal(t, 4096, cfg.Chat.ContextWindow)
	assert.Equal(t, "json", cfg.Storage.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)

	t.Setenv("RIGCHAT_NUM_CTX", "lots")
	cfg = Default()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, 2048, cfg.Chat.ContextWindow)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"bad scheme", func(c *Config) { c.Server.BaseURL = "ftp://host/api" }, "server.base_url"},
		{"zero timeout", func(c *Config) { c.Server.TimeoutSecs = 0 }, "server.timeout_secs"},
		{"negative connect timeout", func(c *Config) { c.Server.ConnectTimeoutSecs = -1 }, "server.connect_timeout_secs"},
		{"zero window", func(c *Config) { c.Chat.ContextWindow = 0 }, "chat.context_window"},
		{"huge window", func(c *Config) { c.Chat.ContextWindow = MaxContextWindow + 1 }, "chat.context_window"},
		{"backend", func(c *Config) { c.Storage.Backend = "redis" }, "storage.backend"},
		{"negative max conversations", func(c *Config) { c.Storage.MaxConversations = -1 }, "storage.max_conversations"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var verrs ValidateErrors
			require.ErrorAs(t, err, &verrs)
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.TimeoutSecs = 0
	cfg.Log.Level = "nope"
	err := cfg.Validate()
	var verrs ValidateErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)
	assert.Contains(t, err.Error(), "; ")
}

// =============================================================================
// GET / SET
// =============================================================================

func TestGetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("chat.default_model", "gemma"))
	require.NoError(t, cfg.Set("Chat.Context_Window", " 1024 "))
	assert.Equal(t, "gemma", cfg.Chat.DefaultModel)

	v, err := cfg.Get("chat.context_window")
	require.NoError(t, err)
	assert.Equal(t, 1024, v)

	assert.Error(t, cfg.Set("chat.context_window", "big"))
	assert.Error(t, cfg.Set("chat", "x"))
	assert.Error(t, cfg.Set("nope.key", "x"))
	_, err = cfg.Get("server.missing")
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "server.base_url")
	assert.Contains(t, keys, "chat.summarization_prompt")
	assert.Contains(t, keys, "log.file")

	cfg := Default()
	for _, k := range keys {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
}

func TestClone(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.Chat.DefaultModel = "changed"
	assert.Empty(t, cfg.Chat.DefaultModel)
}

// =============================================================================
// SAVE / PATHS
// =============================================================================

func TestSave_RoundTrip(t *testing.T) {
	clearEnv(t)
	for _, name := range []string{"config.toml", "config.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			cfg := Default()
			cfg.Chat.DefaultModel = "qwen2"
			cfg.Chat.ContextWindow = 16384
			require.NoError(t, Save(cfg, path))

			loaded, err := LoadFromPath(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestPaths(t *testing.T) {
	clearEnv(t)
	home := os.Getenv("RIGCHAT_HOME")

	dir, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, home, dir)

	path, err := Path()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config.toml"), path)

	// An existing JSON file is used when there is no TOML file
	writeFile(t, filepath.Join(home, "config.json"), "{}")
	path, err = Path()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config.json"), path)

	cfg := Default()
	p, err := cfg.StoragePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "rigchat.db"), p)

	cfg.Storage.Backend = "json"
	p, err = cfg.StoragePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "conversations"), p)

	cfg.Storage.Path = "/srv/chats"
	p, err = cfg.StoragePath()
	require.NoError(t, err)
	assert.Equal(t, "/srv/chats", p)

	p, err = cfg.LogPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "rigchat.log"), p)
}

// =============================================================================
// WATCH
// =============================================================================

func TestWatch_ReloadsOnChange(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	require.NoError(t, Save(cfg, path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	require.NoError(t, Watch(ctx, path, func(c *Config) { changes <- c }))

	cfg.Chat.ContextWindow = 4096
	require.NoError(t, Save(cfg, path))

	select {
	case got := <-changes:
		assert.Equal(t, 4096, got.Chat.ContextWindow)
	case <-time.After(5 * time.Second):
		t.Fatal("config change not observed")
	}
}

func TestWatch_IgnoresInvalidFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, Save(Default(), path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	require.NoError(t, Watch(ctx, path, func(c *Config) { changes <- c }))

	writeFile(t, path, "[chat]\ncontext_window = -5\n")
	writeFile(t, filepath.Join(dir, "other.toml"), "x = 1\n")

	select {
	case got := <-changes:
		t.Fatalf("unexpected reload: %+v", got)
	case <-time.After(4 * ReloadDebounce):
	}
}
