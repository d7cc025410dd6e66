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
	"fmt"
	"strings"
	"time"

	"github.com/datazip-inc/apisync/drivers/abstract"
	"github.com/datazip-inc/apisync/types"
	"github.com/datazip-inc/apisync/utils"
	"github.com/datazip-inc/apisync/utils/typeutils"
)

const (
	PaginationNone          = "none"
	PaginationNextToken     = "next_token"
	PaginationStartingAfter = "starting_after"
	PaginationOffset        = "offset"
	PaginationPage          = "page"

	AuthBearer = "bearer"
	AuthBasic  = "basic"
	AuthHeader = "header"
	AuthOAuth2 = "oauth2"
)

// Config describes an HTTP API and the streams read from it
type Config struct {
	BaseURL           string            `json:"base_url" validate:"required,url"`
	Auth              *AuthConfig       `json:"auth,omitempty"`
	Headers           map[string]string `json:"headers,omitempty"`
	RequestsPerSecond float64           `json:"requests_per_second,omitempty" validate:"gte=0"`
	Burst             int               `json:"burst,omitempty" validate:"gte=0"`
	HTTPTimeout       string            `json:"http_timeout,omitempty"`
	StartDate         string            `json:"start_date,omitempty"`
	MaxThreads        int               `json:"max_threads,omitempty" validate:"gte=0"`
	Categories        map[string]int    `json:"concurrency_categories,omitempty" validate:"dive,gte=1"`
	MissingStreams    string            `json:"missing_streams,omitempty" validate:"omitempty,oneof=fail skip"`
	Retry             *RetryConfig      `json:"retry,omitempty"`
	Streams           []*StreamConfig   `json:"streams" validate:"required,min=1,dive"`

	startDate   time.Time
	httpTimeout time.Duration
}

type AuthConfig struct {
	Type     string `json:"type" validate:"required,oneof=bearer basic header oauth2"`
	Token    string `json:"token,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Header   string `json:"header,omitempty"`

	// oauth2 client credentials grant
	ClientID     string   `json:"client_id,omitempty"`
	ClientSecret string   `json:"client_secret,omitempty"`
	TokenURL     string   `json:"token_url,omitempty" validate:"omitempty,url"`
	Scopes       []string `json:"scopes,omitempty"`
}

type RetryConfig struct {
	MaxAttempts    int     `json:"max_attempts,omitempty" validate:"gte=0"`
	InitialBackoff string  `json:"initial_backoff,omitempty"`
	MaxBackoff     string  `json:"max_backoff,omitempty"`
	Multiplier     float64 `json:"multiplier,omitempty" validate:"gte=0"`
	Jitter         float64 `json:"jitter,omitempty" validate:"gte=0,lte=1"`
}

// StreamConfig is one endpoint. Path may reference the parent record as {parent.<field>}.
type StreamConfig struct {
	Name          string            `json:"name" validate:"required"`
	Path          string            `json:"path" validate:"required"`
	Kind          string            `json:"kind,omitempty" validate:"omitempty,oneof=concurrent legacy"`
	Category      string            `json:"category,omitempty"`
	Params        map[string]string `json:"params,omitempty"`
	RecordsPath   string            `json:"records_path,omitempty"`
	DeletionField string            `json:"deletion_field,omitempty"`
	Availability  string            `json:"availability,omitempty" validate:"omitempty,oneof=probe always"`
	Pagination    *PaginationConfig `json:"pagination,omitempty"`
	Cursor        *CursorConfig     `json:"cursor,omitempty"`
	Parent        *ParentConfig     `json:"parent,omitempty"`
}

type PaginationConfig struct {
	Type        string `json:"type" validate:"required,oneof=none next_token starting_after offset page"`
	PageSize    int    `json:"page_size,omitempty" validate:"gte=0"`
	LimitParam  string `json:"limit_param,omitempty"`
	TokenParam  string `json:"token_param,omitempty"`
	NextPath    string `json:"next_path,omitempty"`
	HasMorePath string `json:"has_more_path,omitempty"`
	IDPath      string `json:"id_path,omitempty"`
}

type CursorConfig struct {
	Field       string `json:"field" validate:"required"`
	Format      string `json:"format,omitempty"`
	StartParam  string `json:"start_param,omitempty"`
	EndParam    string `json:"end_param,omitempty"`
	Granularity string `json:"granularity,omitempty"`
	Step        string `json:"step,omitempty"`
}

type ParentConfig struct {
	Stream    string `json:"stream" validate:"required"`
	Field     string `json:"field,omitempty"`
	BatchSize int    `json:"batch_size,omitempty" validate:"gte=0"`
	Param     string `json:"param,omitempty"`
}

func (c *Config) Validate() error {
	if err := utils.Validate(c); err != nil {
		return err
	}

	if c.StartDate != "" {
		startDate, err := typeutils.ParseTimestamp(c.StartDate, "")
		if err != nil {
			return fmt.Errorf("invalid start_date: %s", err)
		}
		c.startDate = startDate
	}

	timeout, err := parseDuration(c.HTTPTimeout, 0)
	if err != nil {
		return fmt.Errorf("invalid http_timeout: %s", err)
	}
	c.httpTimeout = timeout

	if c.Auth != nil {
		switch c.Auth.Type {
		case AuthBearer:
			if c.Auth.Token == "" {
				return fmt.Errorf("token is required for bearer auth")
			}
		case AuthBasic:
			if c.Auth.Username == "" {
				return fmt.Errorf("username is required for basic auth")
			}
		case AuthHeader:
			if c.Auth.Header == "" || c.Auth.Token == "" {
				return fmt.Errorf("header and token are required for header auth")
			}
		case AuthOAuth2:
			if c.Auth.ClientID == "" || c.Auth.ClientSecret == "" || c.Auth.TokenURL == "" {
				return fmt.Errorf("client_id, client_secret and token_url are required for oauth2 auth")
			}
		}
	}

	if c.Retry != nil {
		if _, err := parseDuration(c.Retry.InitialBackoff, 0); err != nil {
			return fmt.Errorf("invalid retry.initial_backoff: %s", err)
		}
		if _, err := parseDuration(c.Retry.MaxBackoff, 0); err != nil {
			return fmt.Errorf("invalid retry.max_backoff: %s", err)
		}
	}

	names := types.NewSet[string]()
	for _, stream := range c.Streams {
		if names.Exists(stream.Name) {
			return fmt.Errorf("duplicate stream[%s] in config", stream.Name)
		}
		names.Insert(stream.Name)

		if stream.Cursor != nil {
			if _, err := parseDuration(stream.Cursor.Granularity, 0); err != nil {
				return fmt.Errorf("stream[%s]: invalid cursor granularity: %s", stream.Name, err)
			}
			if _, err := parseDuration(stream.Cursor.Step, 0); err != nil {
				return fmt.Errorf("stream[%s]: invalid cursor step: %s", stream.Name, err)
			}
		}
		if stream.Parent == nil && strings.Contains(stream.Path, "{parent.") {
			return fmt.Errorf("stream[%s]: path references a parent but no parent is configured", stream.Name)
		}
	}

	return nil
}

// retryPolicy applies the configured overrides to the default policy
func (c *Config) retryPolicy() *abstract.RetryPolicy {
	policy := abstract.DefaultRetryPolicy()
	if c.Retry == nil {
		return policy
	}
	if c.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = c.Retry.MaxAttempts
	}
	if initial, _ := parseDuration(c.Retry.InitialBackoff, 0); initial > 0 {
		policy.InitialInterval = initial
	}
	if maxBackoff, _ := parseDuration(c.Retry.MaxBackoff, 0); maxBackoff > 0 {
		policy.MaxInterval = maxBackoff
	}
	if c.Retry.Multiplier > 0 {
		policy.Multiplier = c.Retry.Multiplier
	}
	if c.Retry.Jitter > 0 {
		policy.RandomizationFactor = c.Retry.Jitter
	}
	return policy
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}
