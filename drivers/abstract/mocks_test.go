package abstract

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/datazip-inc/apisync/constants"
	"github.com/datazip-inc/apisync/types"
	"github.com/goccy/go-json"
)

// apiPage is the body served by the fake API
type apiPage struct {
	Data []map[string]any `json:"data"`
	Next *int             `json:"next,omitempty"`
}

func jsonResponse(status int, body any) *Response {
	raw, _ := json.Marshal(body)
	return &Response{StatusCode: status, Header: http.Header{}, Body: raw}
}

func statusResponse(status int) *Response {
	return &Response{StatusCode: status, Header: http.Header{}, Body: []byte(http.StatusText(status))}
}

// servePages returns the page addressed by the request token out of pages
func servePages(pages ...[]map[string]any) func(req *PageRequest) *Response {
	return func(req *PageRequest) *Response {
		idx, _ := req.Token.(int)
		if idx >= len(pages) {
			return jsonResponse(http.StatusOK, apiPage{Data: []map[string]any{}})
		}
		page := apiPage{Data: pages[idx]}
		if idx+1 < len(pages) {
			next := idx + 1
			page.Next = &next
		}
		return jsonResponse(http.StatusOK, page)
	}
}

// fakeRequester counts calls and delegates to the send function
type fakeRequester struct {
	send func(ctx context.Context, req *PageRequest) (*Response, error)

	calls    atomic.Int64
	active   atomic.Int64
	peak     atomic.Int64
	mu       sync.Mutex
	requests []*PageRequest
}

func newFakeRequester(send func(ctx context.Context, req *PageRequest) (*Response, error)) *fakeRequester {
	return &fakeRequester{send: send}
}

func pagesRequester(pages ...[]map[string]any) *fakeRequester {
	serve := servePages(pages...)
	return newFakeRequester(func(_ context.Context, req *PageRequest) (*Response, error) {
		return serve(req), nil
	})
}

func (f *fakeRequester) Send(ctx context.Context, req *PageRequest) (*Response, error) {
	f.calls.Add(1)
	current := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		seen := f.peak.Load()
		if current <= seen || f.peak.CompareAndSwap(seen, current) {
			break
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.send(ctx, req)
}

func (f *fakeRequester) Requests() []*PageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*PageRequest(nil), f.requests...)
}

// pageExtractor decodes apiPage bodies; records with is_deleted set are deletions
type pageExtractor struct{}

func (pageExtractor) Extract(resp *Response) ([]types.Record, error) {
	page := apiPage{}
	decoder := json.NewDecoder(bytes.NewReader(resp.Body))
	decoder.UseNumber()
	if err := decoder.Decode(&page); err != nil {
		return nil, err
	}
	records := make([]types.Record, 0, len(page.Data))
	for _, data := range page.Data {
		record := types.NewRecord("", data)
		record.IsDeletion, _ = data[constants.DeletionField].(bool)
		records = append(records, record)
	}
	return records, nil
}

// nextPaginator follows apiPage.next
type nextPaginator struct{}

func (nextPaginator) NextPage(resp *Response, _ *PageRequest) (PageToken, bool, error) {
	page := apiPage{}
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return nil, false, err
	}
	if page.Next == nil {
		return nil, false, nil
	}
	return *page.Next, true, nil
}

func newTestStream(name string, requester Requester) *Stream {
	return &Stream{
		Name:      name,
		Requester: requester,
		Paginator: nextPaginator{},
		Extractor: pageExtractor{},
	}
}

// sleepRecorder never sleeps; the requested delays are recorded
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return context.Cause(ctx)
}

// fastRetry is the default policy without real sleeps
func fastRetry() *RetryPolicy {
	policy := DefaultRetryPolicy()
	policy.Sleep = (&sleepRecorder{}).Sleep
	return policy
}

// collectSink keeps every message in write order
type collectSink struct {
	mu       sync.Mutex
	messages []types.Message
	fail     func(message types.Message) error
}

func (c *collectSink) Write(_ context.Context, message types.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		if err := c.fail(message); err != nil {
			return err
		}
	}
	c.messages = append(c.messages, message)
	return nil
}

func (c *collectSink) all() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Message(nil), c.messages...)
}

func (c *collectSink) forStream(stream string) []types.Message {
	var out []types.Message
	for _, message := range c.all() {
		if message.StreamName() == stream {
			out = append(out, message)
		}
	}
	return out
}

func (c *collectSink) statuses(stream string) []types.StreamStatus {
	var out []types.StreamStatus
	for _, message := range c.forStream(stream) {
		if message.Status != nil {
			out = append(out, message.Status.Status)
		}
	}
	return out
}

func (c *collectSink) records(stream string) []*types.RecordRow {
	var out []*types.RecordRow
	for _, message := range c.forStream(stream) {
		if message.Record != nil {
			out = append(out, message.Record)
		}
	}
	return out
}

func (c *collectSink) states(stream string) []*types.StateRow {
	var out []*types.StateRow
	for _, message := range c.forStream(stream) {
		if message.State != nil {
			out = append(out, message.State)
		}
	}
	return out
}

func (c *collectSink) errors() []*types.ErrorRow {
	var out []*types.ErrorRow
	for _, message := range c.all() {
		if message.Error != nil {
			out = append(out, message.Error)
		}
	}
	return out
}

func (c *collectSink) logs(level types.LogLevel) []*types.Log {
	var out []*types.Log
	for _, message := range c.all() {
		if message.Log != nil && message.Log.Level == level {
			out = append(out, message.Log)
		}
	}
	return out
}

func recordIDs(rows []*types.RecordRow) []string {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, fmt.Sprint(row.Data["id"]))
	}
	return ids
}

func items(prefix string, count int) []map[string]any {
	out := make([]map[string]any, 0, count)
	for i := 1; i <= count; i++ {
		out = append(out, map[string]any{"id": prefix + strconv.Itoa(i)})
	}
	return out
}

func catalogOf(mode types.SyncMode, names ...string) *types.Catalog {
	catalog := &types.Catalog{}
	for _, name := range names {
		catalog.Streams = append(catalog.Streams, &types.ConfiguredStream{Name: name, SyncMode: mode})
	}
	return catalog
}
