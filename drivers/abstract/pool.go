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
	"sync/atomic"

	"github.com/datazip-inc/apisync/constants"
	"golang.org/x/sync/semaphore"
)

// ConcurrencyConfig bounds the partition tasks running at once across all streams.
// Categories override the limit for streams sharing a contentious resource.
type ConcurrencyConfig struct {
	MaxWorkers int            `json:"max_workers,omitempty" validate:"gte=0"`
	Categories map[string]int `json:"categories,omitempty" validate:"dive,gte=1"`
}

func (c ConcurrencyConfig) workers() int {
	if c.MaxWorkers <= 0 {
		return constants.DefaultThreadCount
	}
	return c.MaxWorkers
}

// workerPool hands out execution slots; a task holds one global slot and, when its
// category is limited, one category slot
type workerPool struct {
	global     *semaphore.Weighted
	categories map[string]*semaphore.Weighted
	active     atomic.Int64
	peak       atomic.Int64
}

func newWorkerPool(config ConcurrencyConfig) *workerPool {
	pool := &workerPool{
		global:     semaphore.NewWeighted(int64(config.workers())),
		categories: make(map[string]*semaphore.Weighted),
	}
	for category, limit := range config.Categories {
		if limit > 0 {
			pool.categories[category] = semaphore.NewWeighted(int64(limit))
		}
	}
	return pool
}

// Acquire blocks until a slot is free or ctx is done. The category slot is taken
// first so a waiting task never pins a global slot.
func (p *workerPool) Acquire(ctx context.Context, category string) (func(), error) {
	categorySem := p.categories[category]
	if categorySem != nil {
		if err := categorySem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}
	if err := p.global.Acquire(ctx, 1); err != nil {
		if categorySem != nil {
			categorySem.Release(1)
		}
		return nil, err
	}

	current := p.active.Add(1)
	for {
		peak := p.peak.Load()
		if current <= peak || p.peak.CompareAndSwap(peak, current) {
			break
		}
	}

	released := atomic.Bool{}
	return func() {
		if !released.CompareAndSwap(false, true) {
			return
		}
		p.active.Add(-1)
		p.global.Release(1)
		if categorySem != nil {
			categorySem.Release(1)
		}
	}, nil
}

// Peak is the highest number of slots held at once
func (p *workerPool) Peak() int64 {
	return p.peak.Load()
}
