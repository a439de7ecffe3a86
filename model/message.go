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
	"encoding/json"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Message is the envelope carried on every stage queue. CorrelationID is always the job id.
type Message struct {
	CorrelationID string          `json:"correlation_id"`
	Attempt       int             `json:"attempt"`
	Body          json.RawMessage `json:"body"`
}

// NewMessage wraps body for the given job attempt.
func NewMessage(jobID string, attempt int, body interface{}) (Message, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Message{}, err
	}
	return Message{CorrelationID: jobID, Attempt: attempt, Body: raw}, nil
}

func (m Message) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.CorrelationID, validation.Required),
		validation.Field(&m.Body, validation.Required),
	)
}

// ExtractionPayload is consumed by the extraction stage.
type ExtractionPayload struct {
	JobID      string `json:"job_id"`
	FilePath   string `json:"file_path"`
	CustomerID string `json:"customer_id"`
	Filename   string `json:"filename"`
}

func (p ExtractionPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.JobID, validation.Required),
		validation.Field(&p.FilePath, validation.Required),
		validation.Field(&p.CustomerID, validation.Required),
		validation.Field(&p.Filename, validation.Required),
	)
}

// AnalysisPayload is produced by extraction and consumed by analysis.
type AnalysisPayload struct {
	Customer         Customer `json:"customer"`
	Document         Document `json:"document"`
	ExtractionMethod string   `json:"extraction_method,omitempty"`
	Confidence       float64  `json:"confidence"`
}

func (p AnalysisPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Customer),
		validation.Field(&p.Document),
	)
}

// ReportPayload is produced by analysis and consumed by reporting.
type ReportPayload struct {
	Customer Customer `json:"customer"`
	Filename string   `json:"filename"`
	Summary  Summary  `json:"summary"`
	Alerts   Alerts   `json:"alerts"`
}

func (p ReportPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Customer),
		validation.Field(&p.Filename, validation.Required),
	)
}

// Report is the final document written by the reporting stage.
type Report struct {
	ReportPayload
	JobID       string    `json:"job_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Location    string    `json:"location,omitempty"`
}
