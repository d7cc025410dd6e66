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
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/datazip-inc/apisync/constants"
	"github.com/datazip-inc/apisync/types"
)

// Outcome is the class of a single page attempt
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeRateLimited     Outcome = "rate_limited"
	OutcomeServerError     Outcome = "transient_server_error"
	OutcomeNetworkError    Outcome = "transient_network"
	OutcomeSkippableAccess Outcome = "skippable_access"
	OutcomeFatalAuth       Outcome = "fatal_auth"
	OutcomeTimeout         Outcome = "timeout"
	OutcomeUnclassified    Outcome = "unclassified"
)

func (o Outcome) Retriable() bool {
	return o == OutcomeRateLimited || o == OutcomeServerError || o == OutcomeNetworkError
}

// Kind maps the outcome onto the error taxonomy
func (o Outcome) Kind() types.ErrorKind {
	switch o {
	case OutcomeRateLimited:
		return types.RateLimited
	case OutcomeServerError, OutcomeNetworkError:
		return types.TransientNetwork
	case OutcomeSkippableAccess:
		return types.SkippableAccess
	case OutcomeFatalAuth:
		return types.FatalAuth
	case OutcomeTimeout:
		return types.Timeout
	default:
		return types.Unclassified
	}
}

// Classifier decides the outcome of one attempt from its response or transport error
type Classifier func(resp *Response, err error) Outcome

// ClassifyHTTP is the default classifier for HTTP APIs
func ClassifyHTTP(resp *Response, err error) Outcome {
	if err != nil {
		return classifyTransportError(err)
	}
	if resp == nil {
		return OutcomeUnclassified
	}

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return OutcomeSuccess
	case code == http.StatusTooManyRequests:
		return OutcomeRateLimited
	case code >= 500:
		return OutcomeServerError
	case code == http.StatusBadRequest, code == http.StatusForbidden:
		return OutcomeSkippableAccess
	case code == http.StatusUnauthorized:
		return OutcomeFatalAuth
	default:
		return OutcomeUnclassified
	}
}

func classifyTransportError(err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return OutcomeTimeout
	}

	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errors.As(err, &netErr), errors.As(err, &urlErr):
		return OutcomeNetworkError
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return OutcomeNetworkError
	default:
		return OutcomeUnclassified
	}
}

// RetryAfter reads the server's delay hint, either delta seconds or an HTTP date
func (r *Response) RetryAfter() (time.Duration, bool) {
	if r == nil || r.Header == nil {
		return 0, false
	}
	value := strings.TrimSpace(r.Header.Get(constants.RetryAfterHeader))
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
			return 0, false
		}
		// clamp before converting, large values overflow time.Duration
		if seconds >= constants.MaxRetryAfter.Seconds() {
			return constants.MaxRetryAfter, true
		}
		return time.Duration(seconds * float64(time.Second)), true
	}
	if at, err := http.ParseTime(value); err == nil {
		return min(max(time.Until(at), 0), constants.MaxRetryAfter), true
	}
	return 0, false
}

// describe summarises a failed attempt for error messages
func describe(resp *Response, err error) error {
	if err != nil {
		return err
	}
	if resp == nil {
		return fmt.Errorf("no response")
	}
	body := strings.TrimSpace(string(resp.Body))
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, body)
}
