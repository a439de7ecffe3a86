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
	"time"
)

// Stage identifies one hop of the pipeline.
type Stage string

const (
	StageExtraction Stage = "EXTRACTION"
	StageAnalysis   Stage = "ANALYSIS"
	StageReporting  Stage = "REPORTING"
)

const (
	StatusUploaded    = "UPLOADED"
	StatusCompleted   = "COMPLETED"
	StatusQueueFailed = "QUEUE_FAILED"

	suffixStarted = "_STARTED"
	suffixSuccess = "_SUCCESS"
	suffixFailed  = "_FAILED"
)

// Stages lists the pipeline stages in execution order.
var Stages = []Stage{StageExtraction, StageAnalysis, StageReporting}

func (s Stage) Started() string   { return string(s) + suffixStarted }
func (s Stage) Succeeded() string { return string(s) + suffixSuccess }
func (s Stage) Failed() string    { return string(s) + suffixFailed }

// Order returns the zero based position of the stage, or -1 for an unknown stage.
func (s Stage) Order() int {
	for i, stage := range Stages {
		if stage == s {
			return i
		}
	}
	return -1
}

// Next returns the stage that follows s. ok is false for the last stage.
func (s Stage) Next() (next Stage, ok bool) {
	i := s.Order()
	if i < 0 || i+1 >= len(Stages) {
		return "", false
	}
	return Stages[i+1], true
}

// ParseStatus splits a status into the stage it belongs to and its suffix. Statuses
// that are not stage scoped (UPLOADED, COMPLETED, QUEUE_FAILED) return ok false.
func ParseStatus(status string) (stage Stage, phase string, ok bool) {
	for _, s := range Stages {
		for _, suffix := range []string{suffixStarted, suffixSuccess, suffixFailed} {
			if status == string(s)+suffix {
				return s, suffix[1:], true
			}
		}
	}
	return "", "", false
}

// IsTerminal reports whether no stage will move the job further without manual intervention.
func IsTerminal(status string) bool {
	if status == StatusCompleted || status == StatusQueueFailed {
		return true
	}
	_, phase, ok := ParseStatus(status)
	return ok && phase == "FAILED"
}

// Job tracks one submitted document through the pipeline.
type Job struct {
	JobID         string    `json:"job_id"`
	CustomerID    string    `json:"customer_id"`
	Filename      string    `json:"filename"`
	FilePath      string    `json:"file_path"`
	Attempt       int       `json:"attempt"`
	CurrentStatus string    `json:"current_status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// JobEvent is an append only audit record.
type JobEvent struct {
	ID         int64     `json:"id"`
	JobID      string    `json:"job_id"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
	WorkerName string    `json:"worker_name,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ActiveJob is a non terminal job joined with the customer it belongs to.
type ActiveJob struct {
	Job
	CustomerName string `json:"customer_name,omitempty"`
}

// WorkerActivity is the latest event a worker wrote for a stage.
type WorkerActivity struct {
	WorkerName string    `json:"worker_name"`
	Status     string    `json:"status"`
	LastSeen   time.Time `json:"last_seen"`
}
