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

package utils

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// CxGroup is an errgroup bound to a context; the first failing function
// cancels the group's context and is returned from Block
type CxGroup struct {
	ctx      context.Context
	executor *errgroup.Group
}

func NewCGroup(ctx context.Context) *CxGroup {
	executor, ctx := errgroup.WithContext(ctx)
	return &CxGroup{
		ctx:      ctx,
		executor: executor,
	}
}

func NewCGroupWithLimit(ctx context.Context, limit int) *CxGroup {
	group := NewCGroup(ctx)
	if limit > 0 {
		group.executor.SetLimit(limit)
	}
	return group
}

// Add schedules fn; fn is skipped when the group is already cancelled
func (g *CxGroup) Add(fn func(ctx context.Context) error) {
	g.executor.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic recovered: %v", r)
			}
		}()

		select {
		case <-g.ctx.Done():
			return g.ctx.Err()
		default:
			return fn(g.ctx)
		}
	})
}

func (g *CxGroup) Ctx() context.Context {
	return g.ctx
}

// Block waits for all added functions and returns the first error
func (g *CxGroup) Block() error {
	return g.executor.Wait()
}

// ConcurrentInGroup runs execute for each element in the group
func ConcurrentInGroup[T any](group *CxGroup, array []T, execute func(ctx context.Context, one T) error) {
	for _, one := range array {
		group.Add(func(ctx context.Context) error {
			return execute(ctx, one)
		})
	}
}
