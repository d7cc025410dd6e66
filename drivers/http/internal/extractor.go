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

	"github.com/datazip-inc/apisync/drivers/abstract"
	"github.com/datazip-inc/apisync/types"
	"github.com/tidwall/gjson"
)

// Extractor reads the records array at RecordsPath; an empty path is the document root
type Extractor struct {
	RecordsPath   string
	DeletionField string
}

func (e *Extractor) Extract(resp *abstract.Response) ([]types.Record, error) {
	if !gjson.ValidBytes(resp.Body) {
		return nil, fmt.Errorf("response body is not valid json")
	}

	result := recordsResult(resp.Body, e.RecordsPath)
	if !result.Exists() {
		return nil, fmt.Errorf("records path %q not found in response", e.RecordsPath)
	}

	items := result.Array()
	records := make([]types.Record, 0, len(items))
	for _, item := range items {
		data, ok := item.Value().(map[string]any)
		if !ok {
			data = map[string]any{"value": item.Value()}
		}
		record := types.NewRecord("", data)
		if e.DeletionField != "" {
			record.IsDeletion = item.Get(e.DeletionField).Bool()
		}
		records = append(records, record)
	}
	return records, nil
}

func recordsResult(body []byte, path string) gjson.Result {
	if path == "" {
		return gjson.ParseBytes(body)
	}
	return gjson.GetBytes(body, path)
}
