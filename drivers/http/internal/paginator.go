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
	"strconv"

	"github.com/datazip-inc/apisync/drivers/abstract"
	"github.com/datazip-inc/apisync/utils"
	"github.com/tidwall/gjson"
)

// NextTokenPaginator sends the token found at NextPath until it is empty
type NextTokenPaginator struct {
	NextPath   string
	TokenParam string
}

func (p *NextTokenPaginator) NextPage(resp *abstract.Response, _ *abstract.PageRequest) (abstract.PageToken, bool, error) {
	token := gjson.GetBytes(resp.Body, p.NextPath)
	if !token.Exists() || token.Type == gjson.Null || token.String() == "" {
		return nil, false, nil
	}
	return pageParams{p.TokenParam: token.String()}, true, nil
}

// StartingAfterPaginator continues after the id of the last record while has_more is set
type StartingAfterPaginator struct {
	HasMorePath string
	RecordsPath string
	IDPath      string
	TokenParam  string
}

func (p *StartingAfterPaginator) NextPage(resp *abstract.Response, _ *abstract.PageRequest) (abstract.PageToken, bool, error) {
	if !gjson.GetBytes(resp.Body, p.HasMorePath).Bool() {
		return nil, false, nil
	}
	records := recordsResult(resp.Body, p.RecordsPath).Array()
	if len(records) == 0 {
		return nil, false, fmt.Errorf("%s is set on a page without records", p.HasMorePath)
	}
	last := records[len(records)-1].Get(p.IDPath)
	if !last.Exists() {
		return nil, false, fmt.Errorf("last record has no %s", p.IDPath)
	}
	return pageParams{p.TokenParam: last.String()}, true, nil
}

// OffsetPaginator advances an offset by the records of each full page
type OffsetPaginator struct {
	RecordsPath string
	OffsetParam string
	PageSize    int
}

func (p *OffsetPaginator) NextPage(resp *abstract.Response, req *abstract.PageRequest) (abstract.PageToken, bool, error) {
	count := len(recordsResult(resp.Body, p.RecordsPath).Array())
	if count == 0 || (p.PageSize > 0 && count < p.PageSize) {
		return nil, false, nil
	}
	offset, err := tokenInt(req.Token, p.OffsetParam, 0)
	if err != nil {
		return nil, false, err
	}
	return pageParams{p.OffsetParam: strconv.Itoa(offset + count)}, true, nil
}

// PagePaginator counts pages from one until a short or empty page
type PagePaginator struct {
	RecordsPath string
	PageParam   string
	PageSize    int
}

func (p *PagePaginator) NextPage(resp *abstract.Response, req *abstract.PageRequest) (abstract.PageToken, bool, error) {
	count := len(recordsResult(resp.Body, p.RecordsPath).Array())
	if count == 0 || (p.PageSize > 0 && count < p.PageSize) {
		return nil, false, nil
	}
	page, err := tokenInt(req.Token, p.PageParam, 1)
	if err != nil {
		return nil, false, err
	}
	return pageParams{p.PageParam: strconv.Itoa(page + 1)}, true, nil
}

func tokenInt(token abstract.PageToken, param string, fallback int) (int, error) {
	params, ok := token.(pageParams)
	if !ok || params[param] == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(params[param])
	if err != nil {
		return 0, fmt.Errorf("invalid %s token %q", param, params[param])
	}
	return value, nil
}

// newPaginator maps the pagination config onto a paginator
func newPaginator(config *PaginationConfig, recordsPath string) (abstract.Paginator, error) {
	if config == nil {
		return abstract.SinglePage{}, nil
	}

	switch config.Type {
	case PaginationNone:
		return abstract.SinglePage{}, nil
	case PaginationNextToken:
		if config.NextPath == "" || config.TokenParam == "" {
			return nil, fmt.Errorf("next_path and token_param are required for %s pagination", config.Type)
		}
		return &NextTokenPaginator{NextPath: config.NextPath, TokenParam: config.TokenParam}, nil
	case PaginationStartingAfter:
		return &StartingAfterPaginator{
			HasMorePath: utils.Coalesce(config.HasMorePath, "has_more"),
			RecordsPath: recordsPath,
			IDPath:      utils.Coalesce(config.IDPath, "id"),
			TokenParam:  utils.Coalesce(config.TokenParam, "starting_after"),
		}, nil
	case PaginationOffset:
		return &OffsetPaginator{RecordsPath: recordsPath, OffsetParam: utils.Coalesce(config.TokenParam, "offset"), PageSize: config.PageSize}, nil
	case PaginationPage:
		return &PagePaginator{RecordsPath: recordsPath, PageParam: utils.Coalesce(config.TokenParam, "page"), PageSize: config.PageSize}, nil
	default:
		return nil, fmt.Errorf("unsupported pagination type[%s]", config.Type)
	}
}
