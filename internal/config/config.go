// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

// Package config loads and validates the gallery configuration.
//
// Configuration is layered with Koanf v2 (highest priority wins):
//   - GALLERIA_* environment variables
//   - <data-root>/config.json
//   - built-in defaults
//
// The file keeps the `{public: {...}, private: {...}}` split: everything in
// public is safe to hand to the frontend; private holds secrets.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PublicConfig is the operator configuration exposed to the frontend.
type PublicConfig struct {
	// ReadOnlyMode rejects every mutating operation when true.
	ReadOnlyMode bool `koanf:"read_only_mode" json:"read_only_mode"`

	// SyncPaths are the directories watched for new media. Relative paths
	// resolve against the data root.
	SyncPaths []string `koanf:"sync_path" json:"sync_path"`

	// DiscordHookURL, when set, receives failure notifications. Delivery is
	// handled outside the core.
	DiscordHookURL string `koanf:"discord_hook_url" json:"discord_hook_url" validate:"omitempty,url"`
}

// PrivateConfig holds secrets. Never serialized into responses.
type PrivateConfig struct {
	// Password is the admin password.
	Password string `koanf:"password" json:"password"`

	// AuthKey signs capability tokens. When empty, an ephemeral per-process
	// key is generated and tokens do not survive restarts.
	AuthKey string `koanf:"auth_key" json:"auth_key"`
}

// Config is the full configuration tree.
type Config struct {
	Public  PublicConfig  `koanf:"public" json:"public"`
	Private PrivateConfig `koanf:"private" json:"private"`
}

// defaultConfig returns the built-in defaults applied before file and env.
func defaultConfig() *Config {
	return &Config{
		Public: PublicConfig{
			ReadOnlyMode: false,
			SyncPaths:    nil,
		},
		Private: PrivateConfig{
			Password: "",
			AuthKey:  "",
		},
	}
}

// Load reads configuration from path (may be absent) and the environment,
// then validates the result. A validation failure is fatal to startup.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	// A missing config file is fine; defaults plus env apply.
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat config file %s: %w", path, err)
		}
	}

	// GALLERIA_PUBLIC_READ_ONLY_MODE=true → public.read_only_mode: the first
	// underscore separates the section from the field name.
	if err := k.Load(env.Provider("GALLERIA_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "GALLERIA_")), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural constraints on a configuration.
func Validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
