// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import "fmt"

// NewDevices creates the devices able to measure domains and configures each
// of them with its share of the request. An empty request measures every
// available domain. RAPL is the only hardware backend so at most one device
// is returned.
func NewDevices(sysfsPath string, domains []Domain, opts ...OptionFn) ([]EnergyDevice, error) {
	rapl, err := NewRaplDevice(sysfsPath, opts...)
	if err != nil {
		return nil, err
	}

	if err := rapl.Configure(domains); err != nil {
		return nil, fmt.Errorf("failed to configure %s device: %w", rapl.Name(), err)
	}

	return []EnergyDevice{rapl}, nil
}
