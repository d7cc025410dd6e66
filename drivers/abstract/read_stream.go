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
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/datazip-inc/apisync/constants"
	"github.com/datazip-inc/apisync/types"
	"github.com/datazip-inc/apisync/utils"
	"github.com/datazip-inc/apisync/utils/logger"
)

type streamPhase string

const (
	phaseInit        streamPhase = "INIT"
	phaseChecking    streamPhase = "CHECKING_AVAILABILITY"
	phaseAvailable   streamPhase = "AVAILABLE"
	phaseUnavailable streamPhase = "UNAVAILABLE_SKIP"
	phaseReading     streamPhase = "READING"
	phaseDrained     streamPhase = "DRAINED"
	phaseFailed      streamPhase = "FAILED"
	phaseDone        streamPhase = "DONE"
	phaseDoneEmpty   streamPhase = "DONE_EMPTY"
)

var phaseTransitions = map[streamPhase][]streamPhase{
	phaseInit:        {phaseChecking},
	phaseChecking:    {phaseAvailable, phaseUnavailable, phaseFailed},
	phaseAvailable:   {phaseReading},
	phaseReading:     {phaseDrained, phaseFailed},
	phaseDrained:     {phaseDone},
	phaseUnavailable: {phaseDoneEmpty},
}

// streamResult is the outcome of one stream in a run
type streamResult struct {
	Stream  string
	Phase   streamPhase
	Records int64
	Err     *types.SyncError
}

// streamReader drives a single stream through its lifecycle
type streamReader struct {
	run      *syncRun
	stream   *Stream
	mode     types.SyncMode
	field    string
	emitter  *streamEmitter
	phase    streamPhase
	window   *streamWindow
	tracker  *cursorTracker
	failure  *types.SyncError
	aborted  bool
	threadID string
}

func (r *syncRun) newStreamReader(stream *Stream, configured *types.ConfiguredStream) *streamReader {
	return &streamReader{
		run:      r,
		stream:   stream,
		mode:     configured.GetSyncMode(),
		field:    configured.Cursor(),
		emitter:  newStreamEmitter(r, stream.Name),
		phase:    phaseInit,
		threadID: generateThreadID(stream.Name),
	}
}

func (s *streamReader) transition(to streamPhase) {
	if !slices.Contains(phaseTransitions[s.phase], to) {
		logger.Errorf("thread[%s]: illegal phase transition %s -> %s", s.threadID, s.phase, to)
	}
	logger.Debugf("thread[%s]: %s -> %s", s.threadID, s.phase, to)
	s.phase = to
}

func (s *streamReader) status(status types.StreamStatus) {
	if err := s.emitter.status(status); err != nil {
		logger.Errorf("thread[%s]: %s", s.threadID, err)
	}
}

// readStream reads the stream to a terminal phase; it never returns an error, failures
// are reported through the stream's messages and its result
func (s *streamReader) readStream(ctx context.Context) (result *streamResult) {
	startTime := time.Now()
	defer func() {
		if rec := recover(); rec != nil && !slices.Contains([]streamPhase{phaseDone, phaseDoneEmpty, phaseFailed}, s.phase) {
			s.fail(types.NewSyncError(s.stream.Name, types.Unclassified, fmt.Errorf("panic recovered: %v", rec)))
		}
		result = &streamResult{
			Stream:  s.stream.Name,
			Phase:   s.phase,
			Records: s.emitter.records.Load(),
			Err:     s.failure,
		}
		s.run.metrics.StreamFinished(s.stream.Name, string(s.phase), time.Since(startTime))
		logger.Infof("thread[%s]: finished in phase %s, %d records (%d deletions) in %0.2fs",
			s.threadID, s.phase, result.Records, s.emitter.deletes.Load(), time.Since(startTime).Seconds())
	}()

	s.transition(phaseChecking)
	if err := s.prepare(); err != nil {
		s.fail(s.classify(ctx, err))
		return
	}

	if err := s.checkAvailability(ctx); err != nil {
		syncErr := s.classify(ctx, err)
		if syncErr.Kind == types.SkippableAccess && !s.aborted {
			s.skip(syncErr)
			return
		}
		s.fail(syncErr)
		return
	}

	s.transition(phaseAvailable)
	s.transition(phaseReading)
	s.status(types.StreamStarted)
	s.status(types.StreamRunning)
	if err := s.read(ctx); err != nil {
		s.fail(s.classify(ctx, err))
		return
	}

	s.transition(phaseDrained)
	if s.tracker != nil {
		if checkpoint := s.tracker.checkpoint(); checkpoint != nil {
			s.run.state.SetCursor(s.stream.Name, s.mode, s.tracker.field, checkpoint.Value(s.tracker.field))
			s.emitter.checkpoint(checkpoint)
		}
		if s.tracker.dropped > 0 {
			logger.Debugf("thread[%s]: dropped %d records below the incremental window", s.threadID, s.tracker.dropped)
		}
	}
	s.status(types.StreamComplete)
	s.transition(phaseDone)
	return
}

// prepare computes the incremental window from the stored checkpoint
func (s *streamReader) prepare() error {
	if s.mode != types.INCREMENTAL {
		return nil
	}
	if s.stream.Cursor == nil {
		return types.NewSyncError(s.stream.Name, types.Unclassified, fmt.Errorf("%w: incremental sync requires a cursor", constants.ErrUnsupportedCursor))
	}

	strategy := s.stream.Cursor
	field := s.field
	if field == "" {
		field = strategy.Field()
	}

	var prev any
	if raw := s.run.state.GetCursor(s.stream.Name, field); raw != nil {
		parsed, err := strategy.Parse(raw)
		if err != nil {
			return types.NewSyncError(s.stream.Name, types.Unclassified, fmt.Errorf("failed to parse checkpoint of cursor[%s]: %s", field, err))
		}
		prev = parsed
	}

	window, err := newStreamWindow(strategy, prev, s.run.now)
	if err != nil {
		return types.NewSyncError(s.stream.Name, types.Unclassified, err)
	}
	s.window = window
	s.tracker = newCursorTracker(strategy, field, prev, window.bounds)
	logger.Infof("thread[%s]: incremental window %s", s.threadID, window)
	return nil
}

// checkAvailability probes the first page of the stream's first partition. A stream
// without partitions has nothing to read and counts as available.
func (s *streamReader) checkAvailability(ctx context.Context) error {
	return s.stream.availability().Check(ctx, func(ctx context.Context) error {
		generator, err := s.run.source.newPartitionGenerator(s.stream, s.window, s.run.reader)
		if err != nil {
			return err
		}

		var first *Partition
		err = generator.Generate(ctx, func(partition *Partition) error {
			first = partition
			return errStopGeneration
		})
		if err != nil && !errors.Is(err, errStopGeneration) {
			return err
		}
		if first == nil {
			return nil
		}
		return s.run.reader.probe(ctx, s.stream, first)
	})
}

// read generates partitions and reads them. Concurrent streams read partitions in
// parallel and the first failing partition cancels its siblings; legacy streams read
// them in order.
func (s *streamReader) read(ctx context.Context) error {
	generator, err := s.run.source.newPartitionGenerator(s.stream, s.window, s.run.reader)
	if err != nil {
		return err
	}

	streamCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	group := utils.NewCGroupWithLimit(streamCtx, s.run.source.concurrency.workers())

	generateErr := generator.Generate(group.Ctx(), func(partition *Partition) error {
		logger.Debugf("thread[%s]: partition %s", s.threadID, partition)
		if s.stream.kind() == LegacyStream {
			return s.readPartition(group.Ctx(), partition)
		}
		group.Add(func(ctx context.Context) error {
			return s.readPartition(ctx, partition)
		})
		return nil
	})
	if generateErr != nil {
		cancel(generateErr)
	}

	return firstCause(group.Block(), generateErr)
}

// readPartition emits the records of every page of the partition
func (s *streamReader) readPartition(ctx context.Context, partition *Partition) error {
	return s.run.reader.readPages(ctx, s.stream, partition, func(records []types.Record) error {
		for idx := range records {
			record := records[idx]
			if s.tracker != nil {
				admitted, err := s.tracker.admit(&record)
				if err != nil {
					return types.NewSyncError(s.stream.Name, types.Unclassified, err)
				}
				if !admitted {
					continue
				}
			}
			s.emitter.record(record)
		}
		return nil
	})
}

// classify turns a failure into the stream's SyncError. Failures caused by the run
// ending early are timeouts, or interruptions when another stream aborted the run.
func (s *streamReader) classify(ctx context.Context, err error) *types.SyncError {
	if ctx.Err() != nil {
		cause := context.Cause(ctx)
		if errors.Is(cause, constants.ErrRunAborted) || errors.Is(cause, constants.ErrSinkClosed) {
			s.aborted = true
		}
		return types.NewSyncError(s.stream.Name, types.Timeout, cause)
	}
	if syncErr, ok := types.AsSyncError(err); ok {
		return syncErr.WithStream(s.stream.Name)
	}
	return types.NewSyncError(s.stream.Name, types.Unclassified, err)
}

func (s *streamReader) skip(err *types.SyncError) {
	s.transition(phaseUnavailable)
	logger.Warnf("thread[%s]: stream is unavailable and will be skipped: %s", s.threadID, err.Cause)
	s.emitter.log(types.LogLevelError, "stream[%s] is not available and will be skipped: %s", s.stream.Name, err.Cause)
	s.transition(phaseDoneEmpty)
}

// fail reports the error and closes the stream as INCOMPLETE. Only the stream whose
// error aborts the run first reports it. Streams interrupted by the abort carry no
// error of their own and log a warning.
func (s *streamReader) fail(err *types.SyncError) {
	s.transition(phaseFailed)

	if !s.aborted && err.Kind.AbortsRun() && !s.run.abort(err) {
		s.aborted = true
	}

	if s.aborted {
		logger.Warnf("thread[%s]: interrupted: %s", s.threadID, err)
		s.emitter.log(types.LogLevelWarn, "stream[%s] interrupted: %s", s.stream.Name, err.Cause)
	} else {
		s.failure = err
		logger.Errorf("thread[%s]: %s", s.threadID, err)
		s.emitter.error(err)
	}
	s.status(types.StreamIncomplete)
}

// firstCause prefers a real failure over the cancellations it caused
func firstCause(errs ...error) error {
	var interrupted error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if isInterruption(err) {
			if interrupted == nil {
				interrupted = err
			}
			continue
		}
		return err
	}
	return interrupted
}

func isInterruption(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	syncErr, ok := types.AsSyncError(err)
	return ok && syncErr.Kind == types.Timeout
}
