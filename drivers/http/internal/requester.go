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
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/datazip-inc/apisync/drivers/abstract"
	"github.com/datazip-inc/apisync/utils/typeutils"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

var parentPlaceholder = regexp.MustCompile(`\{parent\.([^}]+)\}`)

// pageParams is the page token of every paginator: query parameters of the next request
type pageParams map[string]string

// Requester issues one GET per page through a shared rate limiter
type Requester struct {
	client  *http.Client
	limiter *rate.Limiter
	baseURL *url.URL
	auth    *AuthConfig
	headers map[string]string
	stream  *StreamConfig
}

func (r *Requester) Send(ctx context.Context, req *abstract.PageRequest) (*abstract.Response, error) {
	target, err := r.buildURL(req)
	if err != nil {
		return nil, err
	}

	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s", context.DeadlineExceeded, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	for key, value := range r.headers {
		httpReq.Header.Set(key, value)
	}
	r.authenticate(httpReq)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		// a rejected token exchange is judged like a rejected request
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return &abstract.Response{
				StatusCode: retrieveErr.Response.StatusCode,
				Header:     retrieveErr.Response.Header,
				Body:       retrieveErr.Body,
			}, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &abstract.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (r *Requester) authenticate(req *http.Request) {
	if r.auth == nil {
		return
	}
	switch r.auth.Type {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+r.auth.Token)
	case AuthBasic:
		req.SetBasicAuth(r.auth.Username, r.auth.Password)
	case AuthHeader:
		req.Header.Set(r.auth.Header, r.auth.Token)
	}
}

// buildURL resolves the stream path against the partition and adds the query of the page
func (r *Requester) buildURL(req *abstract.PageRequest) (string, error) {
	path, err := resolvePath(r.stream.Path, req.Partition)
	if err != nil {
		return "", err
	}
	target, err := r.baseURL.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", fmt.Errorf("stream[%s]: invalid path %q: %s", r.stream.Name, path, err)
	}

	query := target.Query()
	for key, value := range r.stream.Params {
		query.Set(key, value)
	}
	if pagination := r.stream.Pagination; pagination != nil && pagination.PageSize > 0 {
		query.Set(limitParam(pagination), fmt.Sprint(pagination.PageSize))
	}
	if req.Partition != nil {
		if cursor := r.stream.Cursor; cursor != nil && req.Partition.Slice != nil {
			setTimeParam(query, cursor.StartParam, req.Partition.Slice.Start, cursor.Format)
			setTimeParam(query, cursor.EndParam, req.Partition.Slice.End, cursor.Format)
		}
		if parent := r.stream.Parent; parent != nil && parent.Param != "" {
			values := req.Partition.ParentValues(parentField(parent))
			ids := make([]string, 0, len(values))
			for _, value := range values {
				ids = append(ids, fmt.Sprint(value))
			}
			query.Set(parent.Param, strings.Join(ids, ","))
		}
	}
	if params, ok := req.Token.(pageParams); ok {
		for key, value := range params {
			query.Set(key, value)
		}
	}

	target.RawQuery = query.Encode()
	return target.String(), nil
}

func setTimeParam(query url.Values, param string, value any, format string) {
	moment, ok := value.(time.Time)
	if param == "" || !ok {
		return
	}
	query.Set(param, fmt.Sprint(typeutils.FormatTimestamp(moment, format)))
}

// resolvePath substitutes {parent.<field>} with the values of the partition's first parent
func resolvePath(path string, partition *abstract.Partition) (string, error) {
	var missing []string
	resolved := parentPlaceholder.ReplaceAllStringFunc(path, func(match string) string {
		field := parentPlaceholder.FindStringSubmatch(match)[1]
		var values []any
		if partition != nil {
			values = partition.ParentValues(field)
		}
		if len(values) == 0 {
			missing = append(missing, field)
			return match
		}
		return url.PathEscape(fmt.Sprint(values[0]))
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("parent fields %v not found for path %s", missing, path)
	}
	return resolved, nil
}

func limitParam(pagination *PaginationConfig) string {
	if pagination.LimitParam == "" {
		return "limit"
	}
	return pagination.LimitParam
}

func parentField(parent *ParentConfig) string {
	if parent.Field == "" {
		return "id"
	}
	return parent.Field
}
