// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import "time"

// Energy is a raw RAPL counter value in microjoules
type Energy uint64

const (
	MicroJoule Energy = 1
	MilliJoule        = 1000 * MicroJoule
	Joule             = 1000 * MilliJoule
)

// Joules converts the counter to joules; counters are exposed in microjoules
// so this is a division by 1,000,000
func (e Energy) Joules() float64 {
	return float64(e) / float64(Joule)
}

// Power is an average power in microwatts
type Power float64

const (
	MicroWatt Power = 1.0
	MilliWatt       = 1000 * MicroWatt
	Watt            = 1000 * MilliWatt
)

// AveragePower returns the mean power drawn while consuming joules over d.
// A non-positive duration yields zero power.
func AveragePower(joules float64, d time.Duration) Power {
	if d <= 0 {
		return 0
	}
	return Power(joules/d.Seconds()) * Watt
}

func (p Power) Watts() float64 {
	return float64(p / Watt)
}
