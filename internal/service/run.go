// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/run"
)

// Run runs every Runner in services until the first one returns, then cancels
// the others and shuts down each service implementing Shutdowner.
// Cancellation of outer is a graceful stop and is not reported as an error.
func Run(outer context.Context, logger *slog.Logger, services []Service) error {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(outer)
	defer cancel()

	var g run.Group
	runners := 0
	for _, s := range services {
		r, ok := s.(Runner)
		if !ok {
			logger.Debug("Skipping service", "service", s.Name(), "reason", "service does not implement Runner")
			continue
		}
		runners++

		svc := s
		g.Add(
			func() error {
				logger.Debug("Running service", "service", svc.Name())
				return r.Run(ctx)
			},
			func(err error) {
				cancel()
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("Service terminated", "service", svc.Name(), "reason", err)
				}
				shutdown(logger, svc)
			},
		)
	}

	if runners == 0 {
		return nil
	}

	logger.Info("Running services", "count", runners)
	err := g.Run()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func shutdown(logger *slog.Logger, s Service) {
	sd, ok := s.(Shutdowner)
	if !ok {
		return
	}
	logger.Debug("Shutting down", "service", s.Name())
	if err := sd.Shutdown(); err != nil {
		logger.Warn("Service shutdown failed", "service", s.Name(), "error", err)
	}
}
