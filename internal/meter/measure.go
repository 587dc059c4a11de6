// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"errors"

	"github.com/sustainable-computing-io/joulemeter/internal/device"
)

// Measure runs fn inside a single period labelled tag and returns the stopped
// meter. The error returned by fn is passed through along with the meter so
// the energy of a failed run can still be inspected.
func Measure(devices []device.EnergyDevice, tag string, fn func() error, opts ...OptionFn) (*EnergyMeter, error) {
	m := NewEnergyMeter(devices, opts...)
	if err := m.Start(tag); err != nil {
		return nil, err
	}

	fnErr := fn()
	if err := m.Stop(); err != nil {
		return nil, errors.Join(fnErr, err)
	}
	return m, fnErr
}
