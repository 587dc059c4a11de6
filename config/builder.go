// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Builder layers YAML fragments over a base configuration. Later fragments
// win; fields a fragment leaves unset keep their previous value.
type Builder struct {
	yamls  []string
	files  []string
	Config *Config
}

// Use sets the base configuration; DefaultConfig is used when unset
func (b *Builder) Use(c *Config) *Builder {
	b.Config = c
	return b
}

// Merge adds YAML strings to be merged into the configuration
func (b *Builder) Merge(yamls ...string) *Builder {
	b.yamls = append(b.yamls, yamls...)
	return b
}

// MergeFiles adds YAML files merged after every string fragment
func (b *Builder) MergeFiles(paths ...string) *Builder {
	b.files = append(b.files, paths...)
	return b
}

// Build merges all fragments into the base configuration. Every fragment is
// tried and the errors of the failing ones are joined.
func (b *Builder) Build() (*Config, error) {
	if b.Config == nil {
		b.Config = DefaultConfig()
	}

	var errs error
	for _, y := range b.yamls {
		if err := b.merge([]byte(y)); err != nil {
			errs = errors.Join(errs, fmt.Errorf("%w, yaml: %s", err, y))
		}
	}

	for _, path := range b.files {
		data, err := os.ReadFile(path)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to read config file: %w", err))
			continue
		}
		if err := b.merge(data); err != nil {
			errs = errors.Join(errs, fmt.Errorf("%w, file: %s", err, path))
		}
	}

	if errs != nil {
		return nil, errs
	}
	b.Config.sanitize()
	return b.Config, nil
}

func (b *Builder) merge(data []byte) error {
	additional := &Config{}
	if err := yaml.Unmarshal(data, additional); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := mergo.Merge(b.Config, additional, mergo.WithOverride, mergo.WithTransformers(boolPtrTransformer{})); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// boolPtrTransformer lets an explicit false in a fragment override true
type boolPtrTransformer struct{}

func (t boolPtrTransformer) Transformer(typ reflect.Type) func(dst, src reflect.Value) error {
	if typ != reflect.TypeOf((*bool)(nil)) {
		return nil
	}

	return func(dst, src reflect.Value) error {
		if src.IsNil() {
			return nil
		}
		if dst.CanSet() {
			dst.Set(src)
		}
		return nil
	}
}
