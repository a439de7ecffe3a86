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

package docaudit

import (
	"context"
	"testing"
	"time"

	"github.com/blnkfinance/docaudit/internal/apierror"
	"github.com/blnkfinance/docaudit/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHealth_GroupsWorkersByStage(t *testing.T) {
	h := newHarness(t)
	h.ds.On("GetRecentWorkerActivity", mock.Anything, testNow.Add(-WorkerWindow)).Return([]model.WorkerActivity{
		{WorkerName: "worker-b", Status: "EXTRACTION_SUCCESS", LastSeen: testNow},
		{WorkerName: "worker-a", Status: "EXTRACTION_STARTED", LastSeen: testNow},
		{WorkerName: "worker-a", Status: "ANALYSIS_FAILED", LastSeen: testNow},
		{WorkerName: "api", Status: model.StatusUploaded, LastSeen: testNow},
		{WorkerName: "", Status: "REPORTING_STARTED", LastSeen: testNow},
	}, nil)
	active := []model.ActiveJob{{Job: *newJob("ANALYSIS_STARTED"), CustomerName: "Jane Doe"}}
	h.ds.On("GetActiveJobs", mock.Anything, 20).Return(active, nil)

	health, err := h.auditor.Health(context.Background(), 20)
	require.NoError(t, err)

	assert.Equal(t, "30s", health.Window)
	assert.Equal(t, StageHealth{Workers: []string{"worker-a", "worker-b"}, ActiveWorkers: 2}, health.Stages[model.StageExtraction])
	assert.Equal(t, StageHealth{Workers: []string{"worker-a"}, ActiveWorkers: 1}, health.Stages[model.StageAnalysis])
	assert.Equal(t, 0, health.Stages[model.StageReporting].ActiveWorkers)
	assert.NotNil(t, health.Stages[model.StageReporting].Workers)
	assert.Equal(t, active, health.ActiveJobs)
}

func TestGetJobEvents_UnknownJob(t *testing.T) {
	h := newHarness(t)
	h.ds.On("GetJob", mock.Anything, "missing").Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Job 'missing' not found", nil))

	_, err := h.auditor.GetJobEvents(context.Background(), "missing")
	assert.True(t, apierror.IsNotFound(err))
	h.ds.AssertNotCalled(t, "GetJobEvents", mock.Anything, mock.Anything)
}

func TestGetJobEvents(t *testing.T) {
	h := newHarness(t)
	job := newJob(model.StatusCompleted)
	events := []model.JobEvent{
		{ID: 1, JobID: job.JobID, Status: model.StatusUploaded},
		{ID: 2, JobID: job.JobID, Status: "EXTRACTION_STARTED"},
	}
	h.ds.On("GetJob", mock.Anything, job.JobID).Return(job, nil)
	h.ds.On("GetJobEvents", mock.Anything, job.JobID).Return(events, nil)

	got, err := h.auditor.GetJobEvents(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, events, got)
}

func TestRequeue_Eligible(t *testing.T) {
	stalled := newJob("ANALYSIS_STARTED")
	stalled.UpdatedAt = testNow.Add(-time.Hour)

	for _, job := range []*model.Job{newJob("EXTRACTION_FAILED"), newJob(model.StatusQueueFailed), stalled} {
		t.Run(job.CurrentStatus, func(t *testing.T) {
			h := newHarness(t)
			restarted := *job
			restarted.Attempt = job.Attempt + 1
			restarted.CurrentStatus = model.StatusUploaded
			h.ds.On("GetJob", mock.Anything, job.JobID).Return(job, nil)
			h.ds.On("RequeueJob", mock.Anything, job.JobID, testWorker).Return(&restarted, nil)

			got, err := h.auditor.Requeue(context.Background(), job.JobID)
			require.NoError(t, err)
			assert.Equal(t, 2, got.Attempt)

			require.Len(t, h.pub.messages, 1)
			assert.Equal(t, model.StageExtraction, h.pub.messages[0].stage)
			assert.Equal(t, 2, h.pub.messages[0].msg.Attempt)
		})
	}
}

func TestRequeue_Conflict(t *testing.T) {
	for _, status := range []string{model.StatusCompleted, "EXTRACTION_STARTED", model.StatusUploaded} {
		t.Run(status, func(t *testing.T) {
			h := newHarness(t)
			job := newJob(status)
			h.ds.On("GetJob", mock.Anything, job.JobID).Return(job, nil)

			_, err := h.auditor.Requeue(context.Background(), job.JobID)
			require.Error(t, err)
			assert.Equal(t, apierror.ErrConflict, apierror.CodeOf(err))
			h.ds.AssertNotCalled(t, "RequeueJob", mock.Anything, mock.Anything, mock.Anything)
			assert.Empty(t, h.pub.messages)
		})
	}
}
