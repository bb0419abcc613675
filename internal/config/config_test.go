// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	assert.False(t, cfg.Public.ReadOnlyMode)
	assert.Empty(t, cfg.Public.SyncPaths)
	assert.Empty(t, cfg.Private.AuthKey)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"public": {
			"read_only_mode": true,
			"sync_path": ["photos", "/mnt/camera"],
			"discord_hook_url": "https://discord.com/api/webhooks/1/x"
		},
		"private": {
			"password": "hunter22",
			"auth_key": "secret-signing-key"
		}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Public.ReadOnlyMode)
	assert.Equal(t, []string{"photos", "/mnt/camera"}, cfg.Public.SyncPaths)
	assert.Equal(t, "secret-signing-key", cfg.Private.AuthKey)
	assert.Equal(t, "hunter22", cfg.Private.Password)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"public": {"read_only_mode": false}, "private": {}}`), 0o644))

	t.Setenv("GALLERIA_PUBLIC_READ_ONLY_MODE", "true")
	t.Setenv("GALLERIA_PRIVATE_AUTH_KEY", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Public.ReadOnlyMode)
	assert.Equal(t, "from-env", cfg.Private.AuthKey)
}

func TestValidateRejectsBadWebhook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"public": {"discord_hook_url": "not a url"}, "private": {}}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
