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

package types

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mitchellh/hashstructure"
)

// Set is an insertion ordered set keyed by the structural hash of its elements
type Set[T comparable] struct {
	hash    map[uint64]T
	ordered []uint64
}

func NewSet[T comparable](values ...T) *Set[T] {
	set := &Set[T]{
		hash: make(map[uint64]T),
	}
	set.Insert(values...)

	return set
}

func (st *Set[T]) init() {
	if st.hash == nil {
		st.hash = make(map[uint64]T)
	}
}

func (st *Set[T]) Hash(elem T) uint64 {
	hash, err := hashstructure.Hash(elem, nil)
	if err != nil {
		// unhashable values fall back to their printed form
		hash, _ = hashstructure.Hash(fmt.Sprintf("%v", elem), nil)
	}

	return hash
}

func (st *Set[T]) Insert(values ...T) {
	st.init()
	for _, value := range values {
		hash := st.Hash(value)
		if _, found := st.hash[hash]; found {
			continue
		}
		st.hash[hash] = value
		st.ordered = append(st.ordered, hash)
	}
}

func (st *Set[T]) Exists(elem T) bool {
	if st == nil || st.hash == nil {
		return false
	}
	_, found := st.hash[st.Hash(elem)]
	return found
}

func (st *Set[T]) Remove(elem T) {
	if st == nil || st.hash == nil {
		return
	}
	hash := st.Hash(elem)
	if _, found := st.hash[hash]; !found {
		return
	}
	delete(st.hash, hash)
	for idx, h := range st.ordered {
		if h == hash {
			st.ordered = append(st.ordered[:idx], st.ordered[idx+1:]...)
			break
		}
	}
}

func (st *Set[T]) Len() int {
	if st == nil {
		return 0
	}
	return len(st.ordered)
}

func (st *Set[T]) Array() []T {
	if st == nil {
		return nil
	}
	arr := make([]T, 0, len(st.ordered))
	for _, hash := range st.ordered {
		arr = append(arr, st.hash[hash])
	}

	return arr
}

func (st *Set[T]) Range(fn func(elem T) bool) {
	for _, elem := range st.Array() {
		if !fn(elem) {
			return
		}
	}
}

func (st *Set[T]) String() string {
	values := []string{}
	for _, elem := range st.Array() {
		values = append(values, fmt.Sprintf("%v", elem))
	}
	return fmt.Sprintf("[%s]", strings.Join(values, ", "))
}

func (st *Set[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(st.Array())
}

func (st *Set[T]) UnmarshalJSON(data []byte) error {
	arr := []T{}
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	st.hash = nil
	st.ordered = nil
	st.Insert(arr...)

	return nil
}
