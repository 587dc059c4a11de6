// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import "context"

// Service is the interface that all services must implement
type Service interface {
	// Name returns the name of the service
	Name() string
}

// Initializer is implemented by services that must be prepared before any service runs
type Initializer interface {
	Service
	Init() error
}

// Runner is implemented by services that block until their work is done or
// ctx is canceled. The first Runner to return ends the whole group.
type Runner interface {
	Service
	Run(ctx context.Context) error
}

// Shutdowner is implemented by services that release resources or flush
// results once the group stops
type Shutdowner interface {
	Service
	Shutdown() error
}

type runnerFunc struct {
	name string
	run  func(ctx context.Context) error
}

// NewRunner wraps fn as a Runner named name, e.g. to run a measured command
// next to the signal handler
func NewRunner(name string, fn func(ctx context.Context) error) Runner {
	return &runnerFunc{name: name, run: fn}
}

func (r *runnerFunc) Name() string {
	return r.name
}

func (r *runnerFunc) Run(ctx context.Context) error {
	return r.run(ctx)
}
