package abstract

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/datazip-inc/apisync/constants"
	"github.com/datazip-inc/apisync/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var completed = []types.StreamStatus{types.StreamStarted, types.StreamRunning, types.StreamComplete}

func newSource(t *testing.T, streams []*Stream, opts ...Option) *ConcurrentSource {
	t.Helper()
	opts = append([]Option{WithRetryPolicy(fastRetry()), WithClock(func() time.Time { return runNow })}, opts...)
	source, err := NewConcurrentSource(streams, opts...)
	require.NoError(t, err)
	return source
}

func incremental(stream *Stream) *Stream {
	stream.Cursor = &DatetimeCursor{FieldName: "updated_at", StartDate: startDate}
	return stream
}

func messageTypes(messages []types.Message) []types.MessageType {
	out := make([]types.MessageType, 0, len(messages))
	for _, message := range messages {
		out = append(out, message.Type)
	}
	return out
}

func TestReadFullRefresh(t *testing.T) {
	requester := pagesRequester(items("u", 2), items("v", 1))
	source := newSource(t, []*Stream{newTestStream("users", requester)})
	sink := &collectSink{}

	require.NoError(t, source.Read(context.Background(), catalogOf(types.FULLREFRESH, "users"), nil, sink))

	assert.Equal(t, completed, sink.statuses("users"))
	assert.Equal(t, []string{"u1", "u2", "v1"}, recordIDs(sink.records("users")))
	assert.Empty(t, sink.states("users"), "full refresh never checkpoints")
	assert.Empty(t, sink.errors())
	assert.Equal(t, []types.MessageType{
		types.StatusMessage, types.StatusMessage,
		types.RecordMessage, types.RecordMessage, types.RecordMessage,
		types.StatusMessage,
	}, messageTypes(sink.forStream("users")))

	// one availability probe and two pages
	assert.EqualValues(t, 3, requester.calls.Load())
}

func TestReadIncrementalCheckpoint(t *testing.T) {
	requester := pagesRequester([]map[string]any{
		{"id": "1", "updated_at": "2024-01-03T00:00:00Z"},
		{"id": "2", "updated_at": "2024-01-06T00:00:00Z", constants.DeletionField: true},
		{"id": "3", "updated_at": "2024-01-05T00:00:00Z"},
	})
	source := newSource(t, []*Stream{incremental(newTestStream("users", requester))})

	state := types.NewState()
	state.SetCursor("users", types.INCREMENTAL, "updated_at", "2024-01-03T00:00:00Z")
	sink := &collectSink{}

	require.NoError(t, source.Read(context.Background(), catalogOf(types.INCREMENTAL, "users"), state, sink))

	records := sink.records("users")
	assert.Equal(t, []string{"2", "3"}, recordIDs(records), "the checkpointed record is not replayed")
	assert.True(t, records[0].IsDeletion)
	assert.Equal(t, "2024-01-06T00:00:00Z", records[0].CursorValue)

	states := sink.states("users")
	require.Len(t, states, 1)
	assert.Equal(t, "2024-01-06T00:00:00Z", states[0].Checkpoint.Value("updated_at"), "deletions advance the checkpoint")
	assert.Equal(t, "2024-01-06T00:00:00Z", state.GetCursor("users", "updated_at"))

	assert.Equal(t, []types.MessageType{
		types.StatusMessage, types.StatusMessage,
		types.RecordMessage, types.RecordMessage,
		types.StateMessage, types.StatusMessage,
	}, messageTypes(sink.forStream("users")))

	for _, req := range requester.Requests() {
		require.NotNil(t, req.Partition.Slice)
		assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 1, 0, time.UTC), req.Partition.Slice.Start)
		assert.Equal(t, runNow, req.Partition.Slice.End)
	}
}

func TestReadIncrementalWithoutRecordsKeepsCheckpoint(t *testing.T) {
	source := newSource(t, []*Stream{incremental(newTestStream("users", pagesRequester()))})

	state := types.NewState()
	state.SetCursor("users", types.INCREMENTAL, "updated_at", "2024-01-03T00:00:00Z")
	sink := &collectSink{}

	require.NoError(t, source.Read(context.Background(), catalogOf(types.INCREMENTAL, "users"), state, sink))

	assert.Equal(t, completed, sink.statuses("users"))
	assert.Empty(t, sink.records("users"))
	assert.Equal(t, "2024-01-03T00:00:00Z", state.GetCursor("users", "updated_at"))
	for _, row := range sink.states("users") {
		assert.Equal(t, "2024-01-03T00:00:00Z", row.Checkpoint.Value("updated_at"))
	}
}

func TestReadReplayYieldsNothingBelowCheckpoint(t *testing.T) {
	var mu sync.Mutex
	data := []map[string]any{
		{"id": "1", "updated_at": "2024-01-02T00:00:00Z"},
		{"id": "2", "updated_at": "2024-01-03T00:00:00Z"},
	}
	requester := newFakeRequester(func(_ context.Context, req *PageRequest) (*Response, error) {
		mu.Lock()
		defer mu.Unlock()
		return servePages(append([]map[string]any(nil), data...))(req), nil
	})
	source := newSource(t, []*Stream{incremental(newTestStream("users", requester))})
	state := types.NewState()

	first := &collectSink{}
	require.NoError(t, source.Read(context.Background(), catalogOf(types.INCREMENTAL, "users"), state, first))
	assert.Equal(t, []string{"1", "2"}, recordIDs(first.records("users")))
	checkpoint := state.GetCursor("users", "updated_at")
	assert.Equal(t, "2024-01-03T00:00:00Z", checkpoint)

	second := &collectSink{}
	require.NoError(t, source.Read(context.Background(), catalogOf(types.INCREMENTAL, "users"), state, second))
	assert.Empty(t, second.records("users"))
	assert.Equal(t, checkpoint, state.GetCursor("users", "updated_at"))

	mu.Lock()
	data = append(data, map[string]any{"id": "3", "updated_at": "2024-01-04T00:00:00Z"})
	mu.Unlock()

	third := &collectSink{}
	require.NoError(t, source.Read(context.Background(), catalogOf(types.INCREMENTAL, "users"), state, third))
	assert.Equal(t, []string{"3"}, recordIDs(third.records("users")))
	assert.Equal(t, "2024-01-04T00:00:00Z", state.GetCursor("users", "updated_at"))
}

func TestReadSkipsInaccessibleStream(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusBadRequest} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			denied := newFakeRequester(func(_ context.Context, _ *PageRequest) (*Response, error) {
				return statusResponse(status), nil
			})
			source := newSource(t, []*Stream{
				newTestStream("secrets", denied),
				newTestStream("users", pagesRequester(items("u", 2))),
			})
			sink := &collectSink{}

			require.NoError(t, source.Read(context.Background(), catalogOf(types.FULLREFRESH, "secrets", "users"), nil, sink))

			assert.Empty(t, sink.statuses("secrets"))
			assert.Empty(t, sink.records("secrets"))
			assert.Empty(t, sink.errors())
			assert.EqualValues(t, 1, denied.calls.Load(), "access errors are never retried")

			logs := sink.logs(types.LogLevelError)
			require.NotEmpty(t, logs)
			assert.Contains(t, logs[0].Message, "secrets")

			assert.Equal(t, completed, sink.statuses("users"))
			assert.Len(t, sink.records("users"), 2)
		})
	}
}

func TestReadFatalAuthAbortsRun(t *testing.T) {
	unauthorized := newFakeRequester(func(_ context.Context, _ *PageRequest) (*Response, error) {
		return statusResponse(http.StatusUnauthorized), nil
	})
	hanging := newFakeRequester(func(ctx context.Context, _ *PageRequest) (*Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	source := newSource(t, []*Stream{
		newTestStream("users", unauthorized),
		newTestStream("orders", hanging),
	})
	sink := &collectSink{}

	err := source.Read(context.Background(), catalogOf(types.FULLREFRESH, "users", "orders"), nil, sink)
	require.Error(t, err)
	assert.ErrorIs(t, err, constants.ErrRunAborted)

	errs := sink.errors()
	require.Len(t, errs, 1, "the abort is reported once")
	assert.Equal(t, types.FatalAuth, errs[0].Kind)
	assert.Equal(t, "users", errs[0].Stream)
	assert.EqualValues(t, 1, unauthorized.calls.Load())

	assert.Equal(t, []types.StreamStatus{types.StreamIncomplete}, sink.statuses("users"))
	assert.Equal(t, []types.StreamStatus{types.StreamIncomplete}, sink.statuses("orders"))
	assert.NotEmpty(t, sink.logs(types.LogLevelWarn))
}

func TestAbortLeavesInterruptedStreamsWithoutError(t *testing.T) {
	unauthorized := newFakeRequester(func(_ context.Context, _ *PageRequest) (*Response, error) {
		return statusResponse(http.StatusUnauthorized), nil
	})
	hanging := newFakeRequester(func(ctx context.Context, _ *PageRequest) (*Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	source := newSource(t, []*Stream{
		newTestStream("users", unauthorized),
		newTestStream("orders", hanging),
	})

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	run := source.newRun(types.NewState(), cancel)
	run.messages = nil

	var readers []*streamReader
	for _, name := range []string{"users", "orders"} {
		stream, err := source.Stream(name)
		require.NoError(t, err)
		readers = append(readers, run.newStreamReader(stream, &types.ConfiguredStream{Name: name, SyncMode: types.FULLREFRESH}))
	}

	results := make(map[string]*streamResult)
	for _, result := range run.readAll(ctx, readers) {
		results[result.Stream] = result
	}

	require.Contains(t, results, "users")
	assert.Equal(t, phaseFailed, results["users"].Phase)
	require.NotNil(t, results["users"].Err)
	assert.Equal(t, types.FatalAuth, results["users"].Err.Kind)
	assert.Same(t, run.abortErr, results["users"].Err)

	require.Contains(t, results, "orders")
	assert.Equal(t, phaseFailed, results["orders"].Phase)
	assert.Nil(t, results["orders"].Err)
}

func TestReadRecoversFromTransientFailures(t *testing.T) {
	pages := [][]map[string]any{items("u", 2), items("v", 2)}

	baseline := &collectSink{}
	require.NoError(t, newSource(t, []*Stream{newTestStream("users", pagesRequester(pages...))}).
		Read(context.Background(), catalogOf(types.FULLREFRESH, "users"), nil, baseline))

	var mu sync.Mutex
	attempts := map[any]int{}
	serve := servePages(pages...)
	flaky := newFakeRequester(func(_ context.Context, req *PageRequest) (*Response, error) {
		mu.Lock()
		attempts[req.Token]++
		attempt := attempts[req.Token]
		mu.Unlock()
		if attempt%2 == 1 {
			limited := statusResponse(http.StatusTooManyRequests)
			limited.Header.Set(constants.RetryAfterHeader, "1")
			return limited, nil
		}
		return serve(req), nil
	})

	sink := &collectSink{}
	require.NoError(t, newSource(t, []*Stream{newTestStream("users", flaky)}).
		Read(context.Background(), catalogOf(types.FULLREFRESH, "users"), nil, sink))

	assert.Equal(t, recordIDs(baseline.records("users")), recordIDs(sink.records("users")))
	assert.Equal(t, completed, sink.statuses("users"))
	assert.Empty(t, sink.errors())
}

func TestReadRetriesExhaustedFailsOnlyThatStream(t *testing.T) {
	serve := servePages(items("o", 2), items("p", 2))
	broken := newFakeRequester(func(_ context.Context, req *PageRequest) (*Response, error) {
		if req.Token != nil {
			return statusResponse(http.StatusInternalServerError), nil
		}
		return serve(req), nil
	})
	source := newSource(t, []*Stream{
		newTestStream("orders", broken),
		newTestStream("users", pagesRequester(items("u", 3))),
	})
	sink := &collectSink{}

	err := source.Read(context.Background(), catalogOf(types.FULLREFRESH, "orders", "users"), nil, sink)
	require.Error(t, err)
	assert.ErrorIs(t, err, constants.ErrIncompleteStreams)
	assert.NotErrorIs(t, err, constants.ErrRunAborted)

	errs := sink.errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "orders", errs[0].Stream)
	assert.Equal(t, types.TransientNetwork, errs[0].Kind)
	assert.Contains(t, errs[0].Message, constants.ErrRetriesExhausted.Error())

	assert.Equal(t, []string{"o1", "o2"}, recordIDs(sink.records("orders")), "records of successful pages are delivered once")
	assert.Equal(t, []types.StreamStatus{types.StreamStarted, types.StreamRunning, types.StreamIncomplete}, sink.statuses("orders"))
	assert.Empty(t, sink.states("orders"))
	// probe, first page, then every attempt of the second page
	assert.EqualValues(t, 2+constants.DefaultMaxAttempts, broken.calls.Load())

	assert.Equal(t, completed, sink.statuses("users"))
	assert.Len(t, sink.records("users"), 3)
}

func TestReadSkippableAccessMidReadFailsStream(t *testing.T) {
	serve := servePages(items("o", 2), items("p", 2))
	requester := newFakeRequester(func(_ context.Context, req *PageRequest) (*Response, error) {
		if req.Token != nil {
			return statusResponse(http.StatusForbidden), nil
		}
		return serve(req), nil
	})
	source := newSource(t, []*Stream{newTestStream("orders", requester)})
	sink := &collectSink{}

	err := source.Read(context.Background(), catalogOf(types.FULLREFRESH, "orders"), nil, sink)
	assert.ErrorIs(t, err, constants.ErrIncompleteStreams)

	errs := sink.errors()
	require.Len(t, errs, 1)
	assert.Equal(t, types.SkippableAccess, errs[0].Kind)
	assert.Equal(t, []types.StreamStatus{types.StreamStarted, types.StreamRunning, types.StreamIncomplete}, sink.statuses("orders"))
}

// personsRequester serves two pages of one person per parent account
func personsRequester() *fakeRequester {
	return newFakeRequester(func(_ context.Context, req *PageRequest) (*Response, error) {
		account := fmt.Sprint(req.Partition.Parent()["id"])
		return servePages(
			[]map[string]any{{"id": account + "_p1", "account": account}},
			[]map[string]any{{"id": account + "_p2", "account": account}},
		)(req), nil
	})
}

func TestReadChildStream(t *testing.T) {
	accounts := pagesRequester(items("acct_", 1), items("acct_x", 1))
	persons := personsRequester()
	child := newTestStream("persons", persons)
	child.Parent = "accounts"

	source := newSource(t, []*Stream{newTestStream("accounts", accounts), child})
	sink := &collectSink{}

	require.NoError(t, source.Read(context.Background(), catalogOf(types.FULLREFRESH, "persons"), nil, sink))

	assert.Equal(t, completed, sink.statuses("persons"))
	assert.ElementsMatch(t, []string{"acct_1_p1", "acct_1_p2", "acct_x1_p1", "acct_x1_p2"}, recordIDs(sink.records("persons")))
	assert.Empty(t, sink.forStream("accounts"), "parents are not emitted unless requested")
	assert.Empty(t, sink.errors())
}

func TestReadChildOfEmptyParent(t *testing.T) {
	persons := personsRequester()
	child := newTestStream("persons", persons)
	child.Parent = "accounts"

	source := newSource(t, []*Stream{newTestStream("accounts", pagesRequester()), child})
	sink := &collectSink{}

	require.NoError(t, source.Read(context.Background(), catalogOf(types.FULLREFRESH, "persons"), nil, sink))
	assert.Equal(t, completed, sink.statuses("persons"))
	assert.Empty(t, sink.records("persons"))
	assert.Zero(t, persons.calls.Load())
}

func TestReadParentFailureFailsChild(t *testing.T) {
	accounts := newFakeRequester(func(_ context.Context, _ *PageRequest) (*Response, error) {
		return statusResponse(http.StatusBadGateway), nil
	})
	child := newTestStream("persons", personsRequester())
	child.Parent = "accounts"

	source := newSource(t, []*Stream{newTestStream("accounts", accounts), child})
	sink := &collectSink{}

	err := source.Read(context.Background(), catalogOf(types.FULLREFRESH, "persons"), nil, sink)
	assert.ErrorIs(t, err, constants.ErrIncompleteStreams)

	errs := sink.errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "persons", errs[0].Stream)
	assert.Equal(t, types.TransientNetwork, errs[0].Kind)
	assert.Equal(t, []types.StreamStatus{types.StreamIncomplete}, sink.statuses("persons"))
}

func TestReadMissingStreamPolicy(t *testing.T) {
	streams := func() []*Stream {
		return []*Stream{newTestStream("users", pagesRequester(items("u", 1)))}
	}

	t.Run("fail", func(t *testing.T) {
		sink := &collectSink{}
		err := newSource(t, streams()).Read(context.Background(), catalogOf(types.FULLREFRESH, "users", "ghosts"), nil, sink)
		assert.ErrorIs(t, err, constants.ErrStreamNotFound)
		assert.Empty(t, sink.all(), "nothing is emitted before the lookup fails")
	})

	t.Run("skip", func(t *testing.T) {
		sink := &collectSink{}
		source := newSource(t, streams(), WithMissingStreamPolicy(MissingStreamSkip))
		require.NoError(t, source.Read(context.Background(), catalogOf(types.FULLREFRESH, "users", "ghosts"), nil, sink))

		warnings := sink.logs(types.LogLevelWarn)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0].Message, "ghosts")
		assert.Equal(t, completed, sink.statuses("users"))
	})

	t.Run("only missing streams", func(t *testing.T) {
		source := newSource(t, streams(), WithMissingStreamPolicy(MissingStreamSkip))
		err := source.Read(context.Background(), catalogOf(types.FULLREFRESH, "ghosts"), nil, &collectSink{})
		assert.ErrorIs(t, err, constants.ErrNoStreamsSelected)
	})
}

func TestReadRejectsUnsupportedSyncMode(t *testing.T) {
	sink := &collectSink{}
	source := newSource(t, []*Stream{newTestStream("users", pagesRequester())})

	err := source.Read(context.Background(), catalogOf(types.INCREMENTAL, "users"), nil, sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid sync mode")
	assert.Empty(t, sink.all())
}

func TestReadStopsOnSinkFailure(t *testing.T) {
	sink := &collectSink{fail: func(message types.Message) error {
		if message.Type == types.RecordMessage {
			return fmt.Errorf("disk full")
		}
		return nil
	}}
	source := newSource(t, []*Stream{newTestStream("users", pagesRequester(items("u", 2), items("v", 2)))})

	err := source.Read(context.Background(), catalogOf(types.FULLREFRESH, "users"), nil, sink)
	require.Error(t, err)
	assert.ErrorIs(t, err, constants.ErrSinkClosed)
	assert.Empty(t, sink.records("users"))
}

func TestReadStatusOrderPerStream(t *testing.T) {
	var streams []*Stream
	var names []string
	for idx := range 5 {
		name := fmt.Sprintf("stream_%d", idx)
		names = append(names, name)
		streams = append(streams, incremental(newTestStream(name, pagesRequester(
			[]map[string]any{{"id": "1", "updated_at": "2024-01-02T00:00:00Z"}},
			[]map[string]any{{"id": "2", "updated_at": "2024-01-03T00:00:00Z"}},
		))))
	}
	sink := &collectSink{}
	require.NoError(t, newSource(t, streams).Read(context.Background(), catalogOf(types.INCREMENTAL, names...), nil, sink))

	for _, name := range names {
		assert.Equal(t, []types.MessageType{
			types.StatusMessage, types.StatusMessage,
			types.RecordMessage, types.RecordMessage,
			types.StateMessage, types.StatusMessage,
		}, messageTypes(sink.forStream(name)), name)
		assert.Equal(t, completed, sink.statuses(name))
	}
}

func TestCheck(t *testing.T) {
	denied := newFakeRequester(func(_ context.Context, _ *PageRequest) (*Response, error) {
		return statusResponse(http.StatusForbidden), nil
	})
	source := newSource(t, []*Stream{
		newTestStream("users", pagesRequester(items("u", 1))),
		newTestStream("secrets", denied),
	})

	results := source.Check(context.Background())
	require.Len(t, results, 2)
	assert.NoError(t, results["users"])

	syncErr, ok := types.AsSyncError(results["secrets"])
	require.True(t, ok)
	assert.Equal(t, types.SkippableAccess, syncErr.Kind)

	results = source.Check(context.Background(), "ghosts")
	assert.ErrorIs(t, results["ghosts"], constants.ErrStreamNotFound)
}

func TestReadRecoversPanickingExtractor(t *testing.T) {
	stream := newTestStream("users", pagesRequester(items("u", 1)))
	stream.Extractor = panicExtractor{}
	sink := &collectSink{}

	err := newSource(t, []*Stream{stream}).Read(context.Background(), catalogOf(types.FULLREFRESH, "users"), nil, sink)
	require.Error(t, err)

	errs := sink.errors()
	require.Len(t, errs, 1)
	assert.True(t, strings.Contains(errs[0].Message, "panic"))
	assert.Equal(t, []types.StreamStatus{types.StreamStarted, types.StreamRunning, types.StreamIncomplete}, sink.statuses("users"))
}

type panicExtractor struct{}

func (panicExtractor) Extract(_ *Response) ([]types.Record, error) {
	panic("unexpected payload")
}
