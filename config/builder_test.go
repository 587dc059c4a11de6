// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"
)

func TestBuilder(t *testing.T) {
	t.Run("Build", func(t *testing.T) {
		got, err := (&Builder{}).Build()
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig().String(), got.String())
	})

	t.Run("Use", func(t *testing.T) {
		exp := DefaultConfig()
		exp.Log.Level = "warn"

		got, err := (&Builder{}).Use(exp).Build()
		require.NoError(t, err)
		assert.Equal(t, exp.String(), got.String())
	})

	t.Run("MergeWithInvalidYAML", func(t *testing.T) {
		cfg, err := (&Builder{}).
			Merge(`invalid yaml: [invalid`).
			Build()
		assert.ErrorContains(t, err, "failed to parse YAML")
		assert.Nil(t, cfg)
	})

	t.Run("MultipleMerges", func(t *testing.T) {
		cfg, err := (&Builder{}).
			Merge(`
log:
  level: debug
`, `
meter:
  interval: 3h
`, `
log:
  level: info
`).
			Build()
		require.NoError(t, err)

		exp := DefaultConfig()
		exp.Log.Level = "info"
		exp.Meter.Interval = 3 * time.Hour
		assert.Equal(t, exp.String(), cfg.String())
	})

	t.Run("ExplicitFalseOverridesTrue", func(t *testing.T) {
		cfg, err := (&Builder{}).
			Merge(`
exporter:
  stdout:
    enabled: false
`).
			Build()
		require.NoError(t, err)

		exp := DefaultConfig()
		exp.Exporter.Stdout.Enabled = ptr.To(false)
		assert.Equal(t, exp.String(), cfg.String())
	})

	t.Run("MergeArrays", func(t *testing.T) {
		cfg, err := (&Builder{}).
			Merge(`
rapl:
  zones: [" package_0 ", "psys"]
`).
			Build()
		require.NoError(t, err)
		assert.Equal(t, []string{"package_0", "psys"}, cfg.Rapl.Zones)
	})

	t.Run("MergeFiles", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "override.yaml")
		require.NoError(t, os.WriteFile(path, []byte("exporter:\n  sqlite:\n    enabled: true\n    path: traces.db\n"), 0o600))

		cfg, err := (&Builder{}).
			Merge("exporter:\n  sqlite:\n    path: first.db\n").
			MergeFiles(path).
			Build()
		require.NoError(t, err)
		assert.True(t, *cfg.Exporter.SQLite.Enabled)
		assert.Equal(t, "traces.db", cfg.Exporter.SQLite.Path, "files are merged after strings")
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := (&Builder{}).
			MergeFiles(filepath.Join(t.TempDir(), "absent.yaml")).
			Build()
		assert.ErrorContains(t, err, "failed to read config file")
	})
}
