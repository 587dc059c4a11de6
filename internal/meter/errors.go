// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import "fmt"

// ErrMeterNotStarted is returned by operations that need a trace when Start
// was never called
type ErrMeterNotStarted struct {
	Op string
}

func (e ErrMeterNotStarted) Error() string {
	return fmt.Sprintf("%s: energy meter not started", e.Op)
}

// ErrMeterNotStopped is returned when results are queried before Stop
type ErrMeterNotStopped struct {
	Op string
}

func (e ErrMeterNotStopped) Error() string {
	return fmt.Sprintf("%s: energy meter not stopped", e.Op)
}

// ErrMeterAlreadyStarted is returned when Start is called more than once
type ErrMeterAlreadyStarted struct{}

func (e ErrMeterAlreadyStarted) Error() string {
	return "energy meter already started"
}

// ErrMeterStopped is returned by Record and Stop once the trace is closed
type ErrMeterStopped struct {
	Op string
}

func (e ErrMeterStopped) Error() string {
	return fmt.Sprintf("%s: energy meter already stopped", e.Op)
}

// ErrSampleNotFound is returned when no sample carries the requested tag
type ErrSampleNotFound struct {
	Tag string
}

func (e ErrSampleNotFound) Error() string {
	return fmt.Sprintf("no sample tagged %q", e.Tag)
}
