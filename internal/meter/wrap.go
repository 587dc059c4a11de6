// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package meter

// Correct returns the energy consumed between two absolute readings of the
// same counter. A reading lower than the previous one means the counter
// wrapped at maxEnergy; when maxEnergy is unknown (zero) the raw difference is returned.
func Correct(curr, prev, maxEnergy float64) float64 {
	if curr >= prev || maxEnergy <= 0 {
		return curr - prev
	}
	return (maxEnergy - prev) + curr
}
