// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import "fmt"

// ErrNoSuchEnergyDevice is returned when the machine exposes no powercap RAPL
// interface at all
type ErrNoSuchEnergyDevice struct {
	Path string
	Err  error
}

func (e ErrNoSuchEnergyDevice) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no RAPL energy device at %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("no RAPL energy device at %s", e.Path)
}

func (e ErrNoSuchEnergyDevice) Unwrap() error {
	return e.Err
}

// ErrNoSuchDomain is returned when a requested domain is not among the
// domains available on the device
type ErrNoSuchDomain struct {
	Domain Domain
}

func (e ErrNoSuchDomain) Error() string {
	return fmt.Sprintf("energy domain not available: %s", e.Domain)
}
