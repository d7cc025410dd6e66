/*
 * Copyright 2025 Olake By Datazip
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

package abstract

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/datazip-inc/apisync/constants"
	"github.com/datazip-inc/apisync/types"
	"github.com/datazip-inc/apisync/utils/logger"
)

// RetryPolicy wraps every page request: it classifies each attempt and retries
// rate limited and transient failures on an exponential schedule with jitter
type RetryPolicy struct {
	MaxAttempts         int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64

	Classify Classifier
	// NewBackOff overrides the exponential schedule
	NewBackOff func() backoff.BackOff
	// Sleep waits between attempts; it must return early when ctx is done
	Sleep func(ctx context.Context, d time.Duration) error
	// OnAttempt observes every classified attempt
	OnAttempt func(stream string, attempt int, outcome Outcome)
}

func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:         constants.DefaultMaxAttempts,
		InitialInterval:     constants.DefaultInitialBackoff,
		MaxInterval:         constants.DefaultMaxBackoff,
		Multiplier:          constants.DefaultBackoffFactor,
		RandomizationFactor: constants.DefaultBackoffJitter,
		Classify:            ClassifyHTTP,
	}
}

func (p *RetryPolicy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return constants.DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p *RetryPolicy) classify(resp *Response, err error) Outcome {
	if p.Classify == nil {
		return ClassifyHTTP(resp, err)
	}
	return p.Classify(resp, err)
}

func (p *RetryPolicy) backOff() backoff.BackOff {
	if p.NewBackOff != nil {
		return p.NewBackOff()
	}
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	if p.RandomizationFactor >= 0 {
		b.RandomizationFactor = p.RandomizationFactor
	}
	b.Reset()
	return b
}

func (p *RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}

// Execute runs call until it succeeds, meets a non retriable class, or the attempt
// bound is reached. Failures are returned as *types.SyncError attributed to stream.
func (p *RetryPolicy) Execute(ctx context.Context, stream string, call func(ctx context.Context) (*Response, error)) (*Response, error) {
	schedule := p.backOff()
	maxAttempts := p.maxAttempts()

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return nil, types.NewSyncError(stream, types.Timeout, context.Cause(ctx))
		}

		resp, err := call(ctx)
		outcome := p.classify(resp, err)
		if p.OnAttempt != nil {
			p.OnAttempt(stream, attempt, outcome)
		}

		switch {
		case outcome == OutcomeSuccess:
			return resp, nil
		case outcome == OutcomeTimeout && ctx.Err() != nil:
			return nil, types.NewSyncError(stream, types.Timeout, context.Cause(ctx))
		case !outcome.Retriable():
			return nil, types.NewSyncError(stream, outcome.Kind(), describe(resp, err))
		case attempt >= maxAttempts:
			return nil, types.NewSyncError(stream, outcome.Kind(),
				fmt.Errorf("%w (%d attempts): %s", constants.ErrRetriesExhausted, attempt, describe(resp, err)))
		}

		delay := schedule.NextBackOff()
		if hint, ok := resp.RetryAfter(); ok {
			delay = hint
		}
		if delay == backoff.Stop {
			return nil, types.NewSyncError(stream, outcome.Kind(),
				fmt.Errorf("%w (backoff stopped after %d attempts): %s", constants.ErrRetriesExhausted, attempt, describe(resp, err)))
		}

		logger.Infof("stream[%s] retry attempt[%d], retrying after %.2f seconds due to %s: %s", stream, attempt, delay.Seconds(), outcome, describe(resp, err))
		if err := p.sleep(ctx, delay); err != nil {
			return nil, types.NewSyncError(stream, types.Timeout, err)
		}
	}
}
