/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package loader

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/srediag/plugin-lifecycle/api"
	"github.com/srediag/plugin-lifecycle/pkg/module"
)

// RetryPolicy configures WithRetry.
type RetryPolicy struct {
	// MaxRetries is the number of additional attempts after the first one.
	MaxRetries uint64
	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration
	// MaxInterval caps the delay between retries.
	MaxInterval time.Duration
	// Logger receives one warning per failed attempt.
	Logger *slog.Logger
}

// DefaultRetryPolicy retries three times starting at 50ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

// WithRetry wraps l so that transient load failures, such as a script caught
// half-written during a deploy, are retried with exponential backoff.
// Missing modules, missing entry points and missing configuration are
// permanent and returned immediately.
func WithRetry(l Loader, policy RetryPolicy) Loader {
	logger := policy.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return Func(func(ctx context.Context, req Request) (Manifest, api.Module, error) {
		var (
			manifest Manifest
			instance api.Module
		)
		op := func() error {
			m, inst, err := l.Load(ctx, req)
			if err != nil {
				if isPermanent(err) {
					return backoff.Permanent(err)
				}
				return err
			}
			manifest, instance = m, inst
			return nil
		}
		notify := func(err error, next time.Duration) {
			logger.Warn("Module load failed, retrying.", "module", req.Name, "error", err, "retry_in", next)
		}
		if err := backoff.RetryNotify(op, newBackOff(ctx, policy), notify); err != nil {
			return nil, nil, err
		}
		return manifest, instance, nil
	})
}

func newBackOff(ctx context.Context, policy RetryPolicy) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		eb.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		eb.MaxInterval = policy.MaxInterval
	}
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, policy.MaxRetries), ctx)
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrModuleNotFound) ||
		errors.Is(err, ErrEntryPointNotFound) ||
		errors.Is(err, module.ErrMissingConfiguration)
}
