// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	pkg0MicroJoules  = 2_000_000
	dram0MicroJoules = 500_000
	pkg1MicroJoules  = 3_250_000
	dram1MicroJoules = 750_000
	psysMicroJoules  = 9_000_000

	maxRangeMicroJoules = 262_143_328_850
)

// raplFixture builds a fake sysfs tree with powercap RAPL zones
type raplFixture struct {
	t     *testing.T
	sysfs string
}

// newEmptySysFS returns a sysfs root without any powercap interface
func newEmptySysFS(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

func newRaplFixture(t *testing.T) *raplFixture {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, powercapDir, raplControlType), 0o755))
	return &raplFixture{t: t, sysfs: root}
}

func (f *raplFixture) zoneDir(zone string) string {
	return filepath.Join(f.sysfs, powercapDir, zone)
}

// addZone creates a zone directory such as intel-rapl:0 or intel-rapl:0:1
func (f *raplFixture) addZone(zone, name string, energy uint64) *raplFixture {
	f.t.Helper()
	dir := f.zoneDir(zone)
	require.NoError(f.t, os.MkdirAll(dir, 0o755))
	f.write(filepath.Join(dir, "name"), name)
	f.write(filepath.Join(dir, "max_energy_range_uj"), fmt.Sprintf("%d", uint64(maxRangeMicroJoules)))
	f.setEnergy(zone, energy)
	return f
}

func (f *raplFixture) setEnergy(zone string, energy uint64) {
	f.t.Helper()
	f.write(filepath.Join(f.zoneDir(zone), "energy_uj"), fmt.Sprintf("%d", energy))
}

func (f *raplFixture) write(path, content string) {
	f.t.Helper()
	require.NoError(f.t, os.WriteFile(path, []byte(content+"\n"), 0o644))
}

func pkgOneSocket(t *testing.T) *raplFixture {
	return newRaplFixture(t).
		addZone("intel-rapl:0", "package-0", pkg0MicroJoules)
}

func pkgDramOneSocket(t *testing.T) *raplFixture {
	return newRaplFixture(t).
		addZone("intel-rapl:0", "package-0", pkg0MicroJoules).
		addZone("intel-rapl:0:0", "core", 100).
		addZone("intel-rapl:0:1", "dram", dram0MicroJoules)
}

func pkgPsysOneSocket(t *testing.T) *raplFixture {
	return newRaplFixture(t).
		addZone("intel-rapl:0", "package-0", pkg0MicroJoules).
		addZone("intel-rapl:1", "psys", psysMicroJoules)
}

func pkgDramTwoSockets(t *testing.T) *raplFixture {
	return newRaplFixture(t).
		addZone("intel-rapl:0", "package-0", pkg0MicroJoules).
		addZone("intel-rapl:0:0", "dram", dram0MicroJoules).
		addZone("intel-rapl:1", "package-1", pkg1MicroJoules).
		addZone("intel-rapl:1:0", "dram", dram1MicroJoules)
}

func joules(uj uint64) float64 {
	return Energy(uj).Joules()
}
