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

package driver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/datazip-inc/apisync/constants"
	"github.com/datazip-inc/apisync/drivers/abstract"
	"github.com/datazip-inc/apisync/utils/logger"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

// HTTP is the connector for paginated JSON APIs described by Config
type HTTP struct {
	config  *Config
	client  *http.Client
	limiter *rate.Limiter
	baseURL *url.URL
}

func (h *HTTP) Type() string {
	return "http"
}

func (h *HTTP) GetConfigRef() any {
	if h.config == nil {
		h.config = &Config{}
	}
	return h.config
}

func (h *HTTP) Spec() any {
	return Config{}
}

// Setup validates the config and builds the shared client and rate limiter
func (h *HTTP) Setup(ctx context.Context) error {
	if h.config == nil {
		return fmt.Errorf("config not loaded")
	}
	if err := h.config.Validate(); err != nil {
		return fmt.Errorf("failed to validate config: %s", err)
	}

	baseURL, err := url.Parse(strings.TrimSuffix(h.config.BaseURL, "/") + "/")
	if err != nil {
		return fmt.Errorf("invalid base_url: %s", err)
	}
	h.baseURL = baseURL

	timeout := h.config.httpTimeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	h.client = &http.Client{Timeout: timeout}
	if auth := h.config.Auth; auth != nil && auth.Type == AuthOAuth2 {
		credentials := &clientcredentials.Config{
			ClientID:     auth.ClientID,
			ClientSecret: auth.ClientSecret,
			TokenURL:     auth.TokenURL,
			Scopes:       auth.Scopes,
		}
		// tokens are fetched lazily and refreshed by the transport
		h.client = credentials.Client(context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, h.client))
		h.client.Timeout = timeout
	}

	perSecond := h.config.RequestsPerSecond
	if perSecond <= 0 {
		perSecond = constants.DefaultRequestsPerSec
	}
	burst := h.config.Burst
	if burst <= 0 {
		burst = max(1, int(perSecond))
	}
	h.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)

	logger.Infof("http connector ready for %s with %d streams, %.1f requests/s", baseURL, len(h.config.Streams), perSecond)
	return nil
}

// Streams builds the stream definitions of the configured endpoints
func (h *HTTP) Streams() ([]*abstract.Stream, error) {
	if h.client == nil {
		return nil, fmt.Errorf("connector is not set up")
	}

	streams := make([]*abstract.Stream, 0, len(h.config.Streams))
	for _, config := range h.config.Streams {
		stream, err := h.buildStream(config)
		if err != nil {
			return nil, err
		}
		streams = append(streams, stream)
	}
	return streams, nil
}

func (h *HTTP) buildStream(config *StreamConfig) (*abstract.Stream, error) {
	recordsPath := config.RecordsPath
	paginator, err := newPaginator(config.Pagination, recordsPath)
	if err != nil {
		return nil, fmt.Errorf("stream[%s]: %s", config.Name, err)
	}

	stream := &abstract.Stream{
		Name:     config.Name,
		Kind:     abstract.StreamKind(config.Kind),
		Category: config.Category,
		Requester: &Requester{
			client:  h.client,
			limiter: h.limiter,
			baseURL: h.baseURL,
			auth:    h.config.Auth,
			headers: h.config.Headers,
			stream:  config,
		},
		Paginator: paginator,
		Extractor: &Extractor{RecordsPath: recordsPath, DeletionField: config.DeletionField},
	}

	if config.Availability == "always" {
		stream.Availability = abstract.AlwaysAvailable{}
	}
	if config.Parent != nil {
		stream.Parent = config.Parent.Stream
		stream.ParentBatchSize = config.Parent.BatchSize
	}
	if config.Cursor != nil {
		granularity, _ := parseDuration(config.Cursor.Granularity, 0)
		step, _ := parseDuration(config.Cursor.Step, 0)
		stream.Cursor = &abstract.DatetimeCursor{
			FieldName:   config.Cursor.Field,
			ValueFormat: config.Cursor.Format,
			StartDate:   h.config.startDate,
			Granularity: granularity,
			Step:        step,
		}
	}
	return stream, nil
}

// Options are the engine settings carried by the config
func (h *HTTP) Options() []abstract.Option {
	opts := []abstract.Option{
		abstract.WithConcurrency(abstract.ConcurrencyConfig{
			MaxWorkers: h.config.MaxThreads,
			Categories: h.config.Categories,
		}),
		abstract.WithRetryPolicy(h.config.retryPolicy()),
	}
	if h.config.MissingStreams != "" {
		opts = append(opts, abstract.WithMissingStreamPolicy(abstract.MissingStreamPolicy(h.config.MissingStreams)))
	}
	return opts
}

// Source builds the concurrent source of the configured streams
func (h *HTTP) Source(opts ...abstract.Option) (*abstract.ConcurrentSource, error) {
	streams, err := h.Streams()
	if err != nil {
		return nil, err
	}
	return abstract.NewConcurrentSource(streams, append(h.Options(), opts...)...)
}

func (h *HTTP) Close() {
	if h.client != nil {
		h.client.CloseIdleConnections()
	}
}

