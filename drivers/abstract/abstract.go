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
	"sync"
	"time"

	"github.com/datazip-inc/apisync/constants"
	"github.com/datazip-inc/apisync/telemetry"
	"github.com/datazip-inc/apisync/types"
	"github.com/datazip-inc/apisync/utils"
	"github.com/datazip-inc/apisync/utils/logger"
	"github.com/datazip-inc/apisync/utils/safego"
)

var errRunTimeout = errors.New("sync run timed out")

// MissingStreamPolicy decides what happens to catalog entries without a stream definition
type MissingStreamPolicy string

const (
	MissingStreamFail MissingStreamPolicy = "fail"
	MissingStreamSkip MissingStreamPolicy = "skip"
)

// ConcurrentSource runs the requested streams of one API under a shared, bounded
// worker pool and emits their ordered messages to a sink
type ConcurrentSource struct {
	streams     map[string]*Stream
	order       []string
	concurrency ConcurrencyConfig
	retry       *RetryPolicy
	timeout     time.Duration
	missing     MissingStreamPolicy
	metrics     *telemetry.Metrics
	clock       func() time.Time
	buffer      int
}

type Option func(*ConcurrentSource)

func WithConcurrency(config ConcurrencyConfig) Option {
	return func(s *ConcurrentSource) {
		s.concurrency = config
	}
}

// WithRetryPolicy sets the policy of streams that do not define their own
func WithRetryPolicy(policy *RetryPolicy) Option {
	return func(s *ConcurrentSource) {
		if policy != nil {
			s.retry = policy
		}
	}
}

// WithTimeout bounds a whole Read; zero disables the bound
func WithTimeout(timeout time.Duration) Option {
	return func(s *ConcurrentSource) {
		s.timeout = timeout
	}
}

func WithMissingStreamPolicy(policy MissingStreamPolicy) Option {
	return func(s *ConcurrentSource) {
		s.missing = policy
	}
}

func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(s *ConcurrentSource) {
		s.metrics = metrics
	}
}

// WithClock replaces the source of the run's "now" snapshot
func WithClock(clock func() time.Time) Option {
	return func(s *ConcurrentSource) {
		s.clock = clock
	}
}

func WithMessageBuffer(size int) Option {
	return func(s *ConcurrentSource) {
		if size > 0 {
			s.buffer = size
		}
	}
}

// NewConcurrentSource builds the fixed name to stream mapping used by every run
func NewConcurrentSource(streams []*Stream, opts ...Option) (*ConcurrentSource, error) {
	source := &ConcurrentSource{
		streams: make(map[string]*Stream, len(streams)),
		retry:   DefaultRetryPolicy(),
		missing: MissingStreamFail,
		clock:   time.Now,
		buffer:  constants.DefaultMessageBuffer,
	}
	for _, opt := range opts {
		opt(source)
	}

	switch source.missing {
	case MissingStreamFail, MissingStreamSkip:
	default:
		return nil, fmt.Errorf("invalid missing stream policy[%s]", source.missing)
	}

	for _, stream := range streams {
		if err := stream.Validate(); err != nil {
			return nil, err
		}
		if _, exists := source.streams[stream.Name]; exists {
			return nil, fmt.Errorf("%w: %s", constants.ErrDuplicateStream, stream.Name)
		}
		source.streams[stream.Name] = stream
		source.order = append(source.order, stream.Name)
	}

	for _, name := range source.order {
		if err := source.checkLineage(name); err != nil {
			return nil, err
		}
	}

	return source, nil
}

// checkLineage verifies that every ancestor exists and that no stream depends on itself
func (s *ConcurrentSource) checkLineage(name string) error {
	visited := types.NewSet(name)
	for current := s.streams[name]; current.Parent != ""; {
		parent, found := s.streams[current.Parent]
		if !found {
			return fmt.Errorf("stream[%s]: parent %w: %s", current.Name, constants.ErrStreamNotFound, current.Parent)
		}
		if visited.Exists(parent.Name) {
			return fmt.Errorf("%w: %s", constants.ErrDependencyCycle, append(visited.Array(), parent.Name))
		}
		visited.Insert(parent.Name)
		current = parent
	}
	return nil
}

// Stream looks a definition up by name
func (s *ConcurrentSource) Stream(name string) (*Stream, error) {
	stream, found := s.streams[name]
	if !found {
		return nil, fmt.Errorf("%w: %s", constants.ErrStreamNotFound, name)
	}
	return stream, nil
}

// Streams returns the definitions in declaration order
func (s *ConcurrentSource) Streams() []*Stream {
	streams := make([]*Stream, 0, len(s.order))
	for _, name := range s.order {
		streams = append(streams, s.streams[name])
	}
	return streams
}

// Discover describes every defined stream as a catalog with default sync modes
func (s *ConcurrentSource) Discover() *types.Catalog {
	catalog := &types.Catalog{}
	for _, stream := range s.Streams() {
		catalog.Streams = append(catalog.Streams, stream.Configured())
	}
	return catalog
}

type selection struct {
	stream     *Stream
	configured *types.ConfiguredStream
}

// resolveCatalog maps catalog entries onto definitions under the missing stream policy
func (s *ConcurrentSource) resolveCatalog(catalog *types.Catalog) ([]selection, []string, error) {
	if catalog == nil || len(catalog.Streams) == 0 {
		return nil, nil, constants.ErrNoStreamsSelected
	}

	var selected []selection
	var missing []string
	for _, configured := range catalog.Streams {
		stream, err := s.Stream(configured.Name)
		if err != nil {
			if s.missing == MissingStreamSkip {
				missing = append(missing, configured.Name)
				continue
			}
			return nil, nil, err
		}
		if !stream.SupportedSyncModes().Exists(configured.SyncMode) {
			return nil, nil, fmt.Errorf("stream[%s]: invalid sync mode[%s]; valid are %s", stream.Name, configured.SyncMode, stream.SupportedSyncModes())
		}
		selected = append(selected, selection{stream: stream, configured: configured})
	}

	if len(selected) == 0 {
		return nil, missing, constants.ErrNoStreamsSelected
	}
	return selected, missing, nil
}

// Read synchronizes the catalog's streams. Messages are written to sink as they are
// produced, in order per stream. The returned error is non nil when any stream ended
// INCOMPLETE or the run was aborted; completed streams' progress is recorded in state.
func (s *ConcurrentSource) Read(ctx context.Context, catalog *types.Catalog, state *types.State, sink MessageSink) error {
	if state == nil {
		state = types.NewState()
	}
	selected, missing, err := s.resolveCatalog(catalog)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if s.timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeoutCause(runCtx, s.timeout, fmt.Errorf("%w after %s", errRunTimeout, s.timeout))
		defer cancelTimeout()
	}

	run := s.newRun(state, cancel)
	writer := safego.Run(func() {
		run.drain(context.WithoutCancel(ctx), sink)
	})

	for _, name := range missing {
		logger.Warnf("Skipping; configured stream %s not found in source", name)
		run.emit(types.NewLogMessage(types.LogLevelWarn, fmt.Sprintf("stream[%s] not found in source, skipping", name)))
	}

	readers := make([]*streamReader, 0, len(selected))
	for _, one := range selected {
		readers = append(readers, run.newStreamReader(one.stream, one.configured))
	}

	logger.Infof("sync[%s] started for %d streams with %d workers", run.id, len(readers), s.concurrency.workers())
	results := run.readAll(runCtx, readers)

	close(run.messages)
	writer.Wait()

	return run.finish(results)
}

// Check runs the availability probe of the named streams, all streams when none are given
func (s *ConcurrentSource) Check(ctx context.Context, names ...string) map[string]error {
	if len(names) == 0 {
		names = s.order
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	run := s.newRun(types.NewState(), cancel)
	run.messages = nil

	var mu sync.Mutex
	results := make(map[string]error, len(names))
	group := utils.NewCGroup(runCtx)
	utils.ConcurrentInGroup(group, names, func(ctx context.Context, name string) error {
		stream, err := s.Stream(name)
		if err == nil {
			err = run.newStreamReader(stream, &types.ConfiguredStream{Name: name, SyncMode: types.FULLREFRESH}).checkAvailability(ctx)
		}
		mu.Lock()
		results[name] = err
		mu.Unlock()
		return nil
	})
	_ = group.Block()

	return results
}

// syncRun is the state shared by the streams of one Read
type syncRun struct {
	id       string
	source   *ConcurrentSource
	state    *types.State
	now      time.Time
	pool     *workerPool
	reader   *pageReader
	metrics  *telemetry.Metrics
	messages chan types.Message
	cancel   context.CancelCauseFunc

	abortOnce sync.Once
	abortErr  *types.SyncError
	sinkErr   error
}

func (s *ConcurrentSource) newRun(state *types.State, cancel context.CancelCauseFunc) *syncRun {
	pool := newWorkerPool(s.concurrency)
	run := &syncRun{
		id:       utils.ULID(),
		source:   s,
		state:    state,
		now:      s.clock().UTC(),
		pool:     pool,
		reader:   newPageReader(pool, s.retry, s.metrics),
		metrics:  s.metrics,
		messages: make(chan types.Message, s.buffer),
		cancel:   cancel,
	}
	for _, stream := range s.streams {
		run.reader.register(stream)
	}
	return run
}

func (r *syncRun) emit(message types.Message) {
	if r.messages == nil {
		return
	}
	if !safego.Insert(r.messages, message) {
		logger.Warnf("sync[%s]: dropped %s message after close", r.id, message.Type)
	}
}

// drain forwards messages to the sink until the channel closes; after a sink failure
// the remaining messages are discarded so producers never block
func (r *syncRun) drain(ctx context.Context, sink MessageSink) {
	for message := range r.messages {
		if r.sinkErr != nil {
			continue
		}
		if err := r.write(ctx, sink, message); err != nil {
			r.sinkErr = fmt.Errorf("%w: %s", constants.ErrSinkClosed, err)
			logger.Errorf("sync[%s]: %s", r.id, r.sinkErr)
			r.cancel(r.sinkErr)
		}
	}
}

func (r *syncRun) write(ctx context.Context, sink MessageSink, message types.Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic recovered: %v", rec)
		}
	}()
	return sink.Write(ctx, message)
}

// abort terminates the run; only the first caller gets true
func (r *syncRun) abort(err *types.SyncError) bool {
	first := false
	r.abortOnce.Do(func() {
		first = true
		r.abortErr = err
		r.cancel(fmt.Errorf("%w: %s", constants.ErrRunAborted, err))
	})
	return first
}

// readAll runs concurrent streams side by side, then legacy streams one at a time
func (r *syncRun) readAll(ctx context.Context, readers []*streamReader) []*streamResult {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make([]*streamResult, 0, len(readers))
		legacy  []*streamReader
	)

	for _, reader := range readers {
		switch reader.stream.kind() {
		case LegacyStream:
			legacy = append(legacy, reader)
		default:
			wg.Add(1)
			go func() {
				defer wg.Done()
				result := reader.readStream(ctx)
				mu.Lock()
				results = append(results, result)
				mu.Unlock()
			}()
		}
	}
	wg.Wait()

	for _, reader := range legacy {
		results = append(results, reader.readStream(ctx))
	}
	return results
}

func (r *syncRun) finish(results []*streamResult) error {
	var failures error
	complete, skipped, failed := 0, 0, 0
	var records int64
	for _, result := range results {
		records += result.Records
		switch result.Phase {
		case phaseDone:
			complete++
		case phaseDoneEmpty:
			skipped++
		default:
			failed++
			if result.Err != nil {
				failures = utils.ErrAppend(failures, result.Err)
			}
		}
	}
	logger.Infof("sync[%s] finished: %d complete, %d skipped, %d failed, %d records, peak workers %d", r.id, complete, skipped, failed, records, r.pool.Peak())

	var err error
	switch {
	case r.abortErr != nil:
		err = fmt.Errorf("%w: %w", constants.ErrRunAborted, r.abortErr)
	case failed > 0:
		err = fmt.Errorf("%w: %w", constants.ErrIncompleteStreams, utils.Coalesce(failures, error(constants.ErrIncompleteStreams)))
	}
	return utils.ErrAppend(err, r.sinkErr)
}
