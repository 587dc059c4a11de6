// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"log/slog"

	"k8s.io/utils/clock"
)

// DefaultTag labels periods opened without an explicit tag
const DefaultTag = ""

type Opts struct {
	logger     *slog.Logger
	clock      clock.PassiveClock
	defaultTag string
}

// DefaultOpts returns the options used when none are given
func DefaultOpts() Opts {
	return Opts{
		logger:     slog.Default(),
		clock:      clock.RealClock{},
		defaultTag: DefaultTag,
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger for the EnergyMeter
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithClock sets the clock timestamps are taken from
func WithClock(c clock.PassiveClock) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

// WithDefaultTag sets the tag used by Start and Record when called with an empty tag
func WithDefaultTag(tag string) OptionFn {
	return func(o *Opts) {
		o.defaultTag = tag
	}
}
