// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"github.com/stretchr/testify/mock"

	"github.com/sustainable-computing-io/joulemeter/internal/device"
)

// mockDevice is a testify mock of device.EnergyDevice
type mockDevice struct {
	mock.Mock
}

var _ device.EnergyDevice = (*mockDevice)(nil)

func (m *mockDevice) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *mockDevice) AvailableDomains() ([]device.Domain, error) {
	args := m.Called()
	if d := args.Get(0); d != nil {
		return d.([]device.Domain), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDevice) Configure(domains []device.Domain) error {
	args := m.Called(domains)
	return args.Error(0)
}

func (m *mockDevice) Domains() []device.Domain {
	args := m.Called()
	return args.Get(0).([]device.Domain)
}

func (m *mockDevice) Energy() ([]float64, error) {
	args := m.Called()
	if e := args.Get(0); e != nil {
		return e.([]float64), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDevice) MaxEnergy() []float64 {
	args := m.Called()
	return args.Get(0).([]float64)
}

// newMockDevice returns a mock exposing domains whose Energy calls return
// readings in order, one slice per call
func newMockDevice(name string, domains []device.Domain, maxEnergy []float64, readings ...[]float64) *mockDevice {
	dev := &mockDevice{}
	dev.On("Name").Return(name).Maybe()
	dev.On("Domains").Return(domains).Maybe()
	dev.On("MaxEnergy").Return(maxEnergy).Maybe()
	for _, r := range readings {
		dev.On("Energy").Return(r, nil).Once()
	}
	return dev
}
