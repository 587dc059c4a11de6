// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/procfs/sysfs"
)

const (
	powercapDir     = "class/powercap"
	raplControlType = "intel-rapl"
	raplZonePrefix  = raplControlType + ":"

	raplZonePackage = "package"
	raplZoneDRAM    = "dram"
	raplZonePsys    = "psys"

	raplZoneDieInfix = "-die-"
)

// raplRoot returns the powercap control type directory under sysfsPath
func raplRoot(sysfsPath string) string {
	return filepath.Join(sysfsPath, powercapDir, raplControlType)
}

// probeRaplRoot fails with ErrNoSuchEnergyDevice if the RAPL powercap tree is missing
func probeRaplRoot(sysfsPath string) error {
	root := raplRoot(sysfsPath)
	info, err := os.Stat(root)
	if err != nil {
		return ErrNoSuchEnergyDevice{Path: root, Err: err}
	}
	if !info.IsDir() {
		return ErrNoSuchEnergyDevice{Path: root, Err: fmt.Errorf("not a directory")}
	}
	return nil
}

// zoneAddress is the position of a zone in the powercap tree:
// intel-rapl:<parent> or intel-rapl:<parent>:<child>
type zoneAddress struct {
	parent int
	child  int // -1 for top-level zones
}

// parseZoneAddress parses the base name of a standard RAPL zone path.
// Non-standard zones (e.g. intel-rapl-mmio:0) are rejected.
func parseZoneAddress(path string) (zoneAddress, bool) {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, raplZonePrefix) {
		return zoneAddress{}, false
	}

	parts := strings.Split(strings.TrimPrefix(base, raplZonePrefix), ":")
	if len(parts) > 2 {
		return zoneAddress{}, false
	}

	addr := zoneAddress{child: -1}
	var err error
	if addr.parent, err = strconv.Atoi(parts[0]); err != nil {
		return zoneAddress{}, false
	}
	if len(parts) == 2 {
		if addr.child, err = strconv.Atoi(parts[1]); err != nil {
			return zoneAddress{}, false
		}
	}
	return addr, true
}

// discoverCounters enumerates the RAPL counters below sysfsPath in canonical
// order: for each socket, starting at 0, its package counter followed by its
// DRAM counter if present. The walk over top-level zones stops at the first
// missing intel-rapl:N.
//
// The platform (psys) counter is only reported when includePsys is set, and
// then after every socket counter. Machines exposing package + psys report
// only the package domain by default.
//
// Multi-die packages expose one top-level zone per die (package-S-die-D).
// These zones are skipped: they do not map onto a single package domain.
func discoverCounters(sysfsPath string, includePsys bool, logger *slog.Logger) ([]counter, error) {
	if err := probeRaplRoot(sysfsPath); err != nil {
		return nil, err
	}

	fs, err := sysfs.NewFS(sysfsPath)
	if err != nil {
		return nil, ErrNoSuchEnergyDevice{Path: sysfsPath, Err: err}
	}

	zones, err := sysfs.GetRaplZones(fs)
	if err != nil {
		return nil, fmt.Errorf("failed to read rapl zones: %w", err)
	}

	type subZone struct {
		child int
		zone  sysfs.RaplZone
	}
	top := map[int]sysfs.RaplZone{}
	subs := map[int][]subZone{}
	for _, z := range zones {
		addr, ok := parseZoneAddress(z.Path)
		if !ok {
			logger.Debug("Ignoring non-standard RAPL zone", "path", z.Path)
			continue
		}
		if addr.child < 0 {
			top[addr.parent] = z
			continue
		}
		subs[addr.parent] = append(subs[addr.parent], subZone{child: addr.child, zone: z})
	}

	var counters []counter
	var psys *counter
	for n := 0; ; n++ {
		z, ok := top[n]
		if !ok {
			break
		}

		switch z.Name {
		case raplZonePackage:
			socket := z.Index
			counters = append(counters, counter{domain: PackageDomain(socket), zone: sysfsRaplZone{z}})

			children := subs[n]
			sort.Slice(children, func(i, j int) bool { return children[i].child < children[j].child })
			for _, sub := range children {
				if sub.zone.Name == raplZoneDRAM {
					counters = append(counters, counter{domain: DRAMDomain(socket), zone: sysfsRaplZone{sub.zone}})
					break
				}
			}

		case raplZonePsys:
			if psys == nil {
				psys = &counter{domain: PsysDomain(), zone: sysfsRaplZone{z}}
			}

		default:
			if strings.HasPrefix(z.Name, raplZonePackage+"-") && strings.Contains(z.Name, raplZoneDieInfix) {
				logger.Warn("Ignoring per-die RAPL package zone", "name", z.Name, "path", z.Path)
				continue
			}
			logger.Debug("Ignoring unknown top-level RAPL zone", "name", z.Name, "path", z.Path)
		}
	}

	if psys != nil {
		if includePsys {
			counters = append(counters, *psys)
		} else {
			logger.Debug("Folding platform RAPL zone", "path", psys.zone.Path())
		}
	}

	return counters, nil
}

// sysfsRaplZone implements EnergyZone using sysfs.RaplZone.
// It is an adapter for the EnergyZone interface
type sysfsRaplZone struct {
	zone sysfs.RaplZone
}

// Name returns the name of the zone
func (s sysfsRaplZone) Name() string {
	return s.zone.Name
}

// Index returns the index of the zone
func (s sysfsRaplZone) Index() int {
	return s.zone.Index
}

// Path returns the path of the zone
func (s sysfsRaplZone) Path() string {
	return s.zone.Path
}

// Energy reads energy_uj afresh on every call
func (s sysfsRaplZone) Energy() (Energy, error) {
	uj, err := s.zone.GetEnergyMicrojoules()
	return Energy(uj), err
}

// MaxEnergy returns the maximum energy value before wraparound
func (s sysfsRaplZone) MaxEnergy() Energy {
	return Energy(s.zone.MaxMicrojoules)
}
