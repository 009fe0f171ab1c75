// Package config loads the cache engine's YAML configuration, matching
// the teacher's own choice of gopkg.in/yaml.v2 for config plumbing.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/ncache/ncache/internal/keybuild"
)

// Disk mode enum (spec §1/§6): memory-only, sync, async, disk-only.
type DiskMode int

const (
	DiskOff DiskMode = iota
	DiskSync
	DiskAsync
	DiskOnly
)

func (m DiskMode) String() string {
	switch m {
	case DiskSync:
		return "sync"
	case DiskAsync:
		return "async"
	case DiskOnly:
		return "disk-only"
	default:
		return "memory-only"
	}
}

func parseDiskMode(s string) (DiskMode, error) {
	switch s {
	case "", "memory-only", "memory":
		return DiskOff, nil
	case "sync":
		return DiskSync, nil
	case "async":
		return DiskAsync, nil
	case "disk-only", "only":
		return DiskOnly, nil
	default:
		return DiskOff, fmt.Errorf("config: unknown mode %q", s)
	}
}

// Rule is the per-route policy from spec §6.
type Rule struct {
	Name       string   `yaml:"name"`
	ModeRaw    string   `yaml:"mode"`
	TTLSeconds int64    `yaml:"ttl"`
	Key        []string `yaml:"key"`       // declarative key recipe, e.g. "header:X-Tenant"
	Redundancy int      `yaml:"redundancy"` // SPEC_FULL §4.8, 0 disables
	Compress   bool     `yaml:"compress"`   // SPEC_FULL §4.9

	Mode       DiskMode             `yaml:"-"`
	KeyRecipe  []keybuild.Component `yaml:"-"`
}

func (r *Rule) resolve() error {
	mode, err := parseDiskMode(r.ModeRaw)
	if err != nil {
		return err
	}
	r.Mode = mode
	if r.Redundancy != 0 && r.Redundancy != 2 && r.Redundancy != 3 {
		return fmt.Errorf("config: rule %q: redundancy must be 0, 2 or 3", r.Name)
	}
	recipe, err := keybuild.ParseRecipe(r.Key)
	if err != nil {
		return fmt.Errorf("config: rule %q: %w", r.Name, err)
	}
	r.KeyRecipe = recipe
	return nil
}

// Config is the top-level engine configuration (spec §6).
type Config struct {
	Status bool `yaml:"status"`
	Root   string `yaml:"root"`

	DictSize int64 `yaml:"dict_size"`
	DataSize int64 `yaml:"data_size"`

	DictCleaner int `yaml:"dict_cleaner"`
	DataCleaner int `yaml:"data_cleaner"`
	DiskCleaner int `yaml:"disk_cleaner"`
	DiskLoader  int `yaml:"disk_loader"`
	DiskSaver   int `yaml:"disk_saver"` // accepted, overridden at runtime; see DESIGN.md

	ListenAddr string `yaml:"listen_addr"`

	Rules []*Rule `yaml:"rules"`
}

// Default returns a sane configuration usable in tests and as the
// zero-config daemon default.
func Default() *Config {
	return &Config{
		Status:      true,
		DictSize:    16 << 20,
		DataSize:    64 << 20,
		DictCleaner: 10,
		DataCleaner: 10,
		DiskCleaner: 10,
		DiskLoader:  10,
		DiskSaver:   100,
		ListenAddr:  ":8088",
		Rules: []*Rule{
			{
				Name:    "default",
				ModeRaw: "memory-only",
				Key:     []string{"method", "scheme", "host", "path", "delimiter", "query"},
			},
		},
	}
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	cfg.Rules = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if len(cfg.Rules) == 0 {
		cfg.Rules = Default().Rules
	}
	return cfg, cfg.Validate()
}

// Validate resolves every rule's mode and key recipe, failing fast on a
// malformed configuration rather than at first request.
func (c *Config) Validate() error {
	if c.DictSize <= 0 || c.DataSize <= 0 {
		return fmt.Errorf("config: dict_size and data_size must be positive")
	}
	for _, r := range c.Rules {
		if err := r.resolve(); err != nil {
			return err
		}
	}
	return nil
}

// RuleFor returns the first rule whose name matches, or else the first
// configured rule (Default()'s rule when none are configured).
func (c *Config) RuleFor(name string) *Rule {
	for _, r := range c.Rules {
		if r.Name == name {
			return r
		}
	}
	if len(c.Rules) > 0 {
		return c.Rules[0]
	}
	return Default().Rules[0]
}
