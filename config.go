// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

package assetdb

// config.go reduces the Init API footprint using functional
// options, same idiom the teacher's engine config.go uses for NewEngine.
// See: http://dave.cheney.net/2014/10/17/functional-options-for-friendly-apis
//      https://commandcenter.blogspot.ca/2014/01/self-referential-functions-and-design.html

import (
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/gazed/assetdb/cache"
)

// Config contains the attributes that can be set before calling Init.
// Init keeps the resolved Config on the Database and applies
// Concurrency to the pipeline; it does not open Roots or CacheRoot —
// the sources it uses are the Source values passed to it.
type Config struct {
	// Roots maps a named source root to its filesystem directory.
	// "" is the default/unnamed root most AssetPaths resolve against.
	Roots map[string]string `yaml:"roots"`

	// CacheRoot is the directory holding cache/artifacts, cache/sources,
	// and assets.lib.
	CacheRoot string `yaml:"cache_root"`

	// Concurrency bounds the import pipeline's worker pool.
	Concurrency int `yaml:"concurrency"`

	// DefaultUnloadAction is recorded in the Config only; the load
	// manager does not read it. A loaded asset's policy comes from its
	// artifact's override or its type's registered
	// AssetMetadata.DefaultUnloadAction.
	DefaultUnloadAction cache.UnloadAction `yaml:"default_unload_action"`
}

// configDefaults provides reasonable defaults so a database runs even
// if no configuration attributes are set.
var configDefaults = Config{
	Roots:               map[string]string{"": "assets"},
	CacheRoot:           "cache",
	Concurrency:         8,
	DefaultUnloadAction: cache.UnloadIfUnreferenced,
}

// Attr defines optional attributes used to configure a database.
//
//	db, err := assetdb.Init(reg, cacheRoot, roots, sink,
//	   assetdb.Root("", "assets"),
//	   assetdb.Root("shared", "shared-assets"),
//	   assetdb.CacheRoot("build/cache"),
//	   assetdb.Concurrency(16),
//	)
type Attr func(*Config) // type for attribute overrides

// Root registers a named source root's directory. Calling Root("", dir)
// again overrides the default root's directory.
func Root(name, dir string) Attr {
	return func(c *Config) {
		if c.Roots == nil {
			c.Roots = make(map[string]string)
		}
		c.Roots[name] = dir
	}
}

// CacheRoot sets the cache directory.
func CacheRoot(dir string) Attr {
	return func(c *Config) { c.CacheRoot = dir }
}

// Concurrency bounds the import pipeline's worker pool.
func Concurrency(n int) Attr {
	return func(c *Config) {
		if n > 0 {
			c.Concurrency = n
		}
	}
}

// DefaultUnloadAction sets Config.DefaultUnloadAction. The load manager
// does not read that field.
func DefaultUnloadAction(action cache.UnloadAction) Attr {
	return func(c *Config) { c.DefaultUnloadAction = action }
}

// configDoc mirrors Config's shape for decoding only, with
// DefaultUnloadAction as a pointer so a document that omits the key is
// distinguishable from one that sets it to Keep (cache.UnloadAction's
// zero value is itself a meaningful policy, not an "unset" sentinel).
type configDoc struct {
	Roots               map[string]string   `yaml:"roots"`
	CacheRoot           string              `yaml:"cache_root"`
	Concurrency         int                 `yaml:"concurrency"`
	DefaultUnloadAction *cache.UnloadAction `yaml:"default_unload_action"`
}

// LoadConfig reads a YAML config document (the same shape Config's yaml
// tags describe) and returns an Attr applying every field it sets,
// layered over whatever defaults or earlier Attrs already ran.
func LoadConfig(r io.Reader) (Attr, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "assetdb: reading config")
	}
	var loaded configDoc
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, errors.Wrap(err, "assetdb: decoding config")
	}
	return func(c *Config) {
		for name, dir := range loaded.Roots {
			if c.Roots == nil {
				c.Roots = make(map[string]string)
			}
			c.Roots[name] = dir
		}
		if loaded.CacheRoot != "" {
			c.CacheRoot = loaded.CacheRoot
		}
		if loaded.Concurrency > 0 {
			c.Concurrency = loaded.Concurrency
		}
		if loaded.DefaultUnloadAction != nil {
			c.DefaultUnloadAction = *loaded.DefaultUnloadAction
		}
	}, nil
}
