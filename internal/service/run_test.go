// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	t.Run("first runner to finish stops the others", func(t *testing.T) {
		done := &mockRunShutdownService{mockService: mockService{name: "done"}}
		blocked := &mockRunShutdownService{
			mockService: mockService{name: "blocked"},
			runFn:       blockUntilDone,
		}

		err := Run(context.Background(), nil, []Service{done, blocked, &mockService{name: "plain"}})
		assert.NoError(t, err)
		assert.Equal(t, 1, done.runCount)
		assert.Equal(t, 1, blocked.runCount)
		assert.Equal(t, 1, done.shutdownCount)
		assert.Equal(t, 1, blocked.shutdownCount)
	})

	t.Run("run error is returned", func(t *testing.T) {
		runErr := errors.New("run error")
		failing := &mockRunShutdownService{
			mockService: mockService{name: "failing"},
			runFn:       func(context.Context) error { return runErr },
			shutdownFn:  func() error { return errors.New("shutdown error") },
		}
		blocked := &mockRunShutdownService{
			mockService: mockService{name: "blocked"},
			runFn:       blockUntilDone,
		}

		err := Run(context.Background(), nil, []Service{failing, blocked})
		assert.ErrorIs(t, err, runErr)
		assert.Equal(t, 1, failing.shutdownCount)
		assert.Equal(t, 1, blocked.shutdownCount)
	})

	t.Run("outer cancellation is graceful", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		started := make(chan struct{})
		svc := &mockRunShutdownService{
			mockService: mockService{name: "svc"},
			runFn: func(ctx context.Context) error {
				close(started)
				return blockUntilDone(ctx)
			},
		}

		errCh := make(chan error)
		go func() {
			errCh <- Run(ctx, nil, []Service{svc})
		}()

		<-started
		cancel()

		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Run did not return after context cancellation")
		}
		assert.Equal(t, 1, svc.shutdownCount)
	})

	t.Run("no runners", func(t *testing.T) {
		require.NoError(t, Run(context.Background(), nil, []Service{&mockService{name: "plain"}}))
	})
}

func TestNewRunner(t *testing.T) {
	called := false
	r := NewRunner("command", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.Equal(t, "command", r.Name())

	require.NoError(t, Run(context.Background(), nil, []Service{r}))
	assert.True(t, called)
}
