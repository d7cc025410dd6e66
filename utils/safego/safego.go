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

package safego

import (
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/datazip-inc/apisync/utils/logger"
)

type RecoverHandler func(value any)

var GlobalRecoverHandler RecoverHandler = func(value any) {
	logger.Errorf("panic recovered in goroutine: %v", value)
}

var startTime = time.Now()

type Execution struct {
	f              func()
	recoverHandler RecoverHandler
	done           chan struct{}
}

// Run runs f in a new goroutine with a panic handler
func Run(f func()) *Execution {
	exec := &Execution{
		f:              f,
		recoverHandler: GlobalRecoverHandler,
		done:           make(chan struct{}),
	}
	go func() {
		defer close(exec.done)
		defer func() {
			if r := recover(); r != nil {
				exec.recoverHandler(r)
			}
		}()
		exec.f()
	}()
	return exec
}

// Wait blocks until the goroutine returned or panicked
func (exec *Execution) Wait() {
	<-exec.done
}

// Recovery logs a recovered panic with its stack; exit terminates the process
func Recovery(exit bool) {
	err := recover()
	if err != nil {
		logger.Error(err)
		for _, str := range strings.Split(string(debug.Stack()), "\n") {
			logger.Error(strings.ReplaceAll(str, "\t", ""))
		}
	}
	if exit {
		logger.Infof("Time of execution %v", time.Since(startTime).String())
		os.Exit(1)
	}
}

// Insert sends value on ch, reporting false instead of panicking when ch is closed
func Insert[T any](ch chan<- T, value T) bool {
	safeInsert := false
	func() {
		defer Recovery(false)
		ch <- value
		safeInsert = true
	}()

	return safeInsert
}
