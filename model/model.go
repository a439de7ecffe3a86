/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"github.com/google/uuid"
)

// NewJobID generates the correlation id for a newly submitted document.
func NewJobID() string {
	return uuid.New().String()
}

// ShortID returns the first n characters of id, or id itself when it is shorter.
func ShortID(id string, n int) string {
	if n < 0 || len(id) <= n {
		return id
	}
	return id[:n]
}
