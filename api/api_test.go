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

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/blnkfinance/docaudit"
	"github.com/blnkfinance/docaudit/api/middleware"
	"github.com/blnkfinance/docaudit/config"
	"github.com/blnkfinance/docaudit/database/mocks"
	"github.com/blnkfinance/docaudit/internal/apierror"
	"github.com/blnkfinance/docaudit/model"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	published []model.Message
	err       error
}

func (f *fakeQueue) Publish(_ context.Context, _ model.Stage, msg model.Message) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeQueue) SendWebhook(context.Context, docaudit.Webhook) error { return nil }

type testServer struct {
	router *gin.Engine
	ds     *mocks.MockDataSource
	queue  *fakeQueue
	conf   *config.Configuration
}

func setupRouter(t *testing.T, secure bool) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	dir := t.TempDir()
	conf := &config.Configuration{
		ProjectName: "docaudit",
		WorkerName:  "api",
		Server:      config.ServerConfig{Secure: secure, SecretKey: "s3cret"},
		Redis:       config.RedisConfig{Dns: mr.Addr()},
		Storage: config.StorageConfig{
			UploadDir:     filepath.Join(dir, "uploads"),
			ReportsDir:    filepath.Join(dir, "reports"),
			MaxFileSizeMB: 1,
		},
		Monitor: config.MonitorConfig{StallThresholdSec: 900},
	}
	config.MockConfig(conf)

	ts := &testServer{ds: new(mocks.MockDataSource), queue: &fakeQueue{}, conf: conf}
	auditor, err := docaudit.New(docaudit.Dependencies{
		Datasource: ts.ds,
		Queue:      ts.queue,
		Redis:      client,
		Config:     conf,
	})
	require.NoError(t, err)
	ts.router = NewAPI(auditor, conf).Router()
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)
	return resp
}

func fakeJob(status string) *model.Job {
	return &model.Job{
		JobID:         gofakeit.UUID(),
		CustomerID:    "CUST001",
		Filename:      "april.pdf",
		FilePath:      "/uploads/april.pdf",
		Attempt:       1,
		CurrentStatus: status,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
}

func decode(t *testing.T, resp *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestSubmitJob_JSON(t *testing.T) {
	ts := setupRouter(t, false)
	job := fakeJob(model.StatusUploaded)
	ts.ds.On("CreateJob", mock.Anything, mock.AnythingOfType("*model.Job"), "api").Return(job, nil)

	body := `{"customer_id":"CUST001","file_path":"/uploads/april.pdf"}`
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := ts.do(req)

	assert.Equal(t, http.StatusCreated, resp.Code)
	var got model.Job
	decode(t, resp, &got)
	assert.Equal(t, job.JobID, got.JobID)
	assert.Len(t, ts.queue.published, 1)
}

func TestSubmitJob_JSONValidation(t *testing.T) {
	ts := setupRouter(t, false)

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(`{"file_path":"/uploads/april.pdf"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := ts.do(req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	ts.ds.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitJob_QueueFailureKeepsJob(t *testing.T) {
	ts := setupRouter(t, false)
	ts.queue.err = errors.New("broker unreachable")
	job := fakeJob(model.StatusUploaded)
	ts.ds.On("CreateJob", mock.Anything, mock.AnythingOfType("*model.Job"), "api").Return(job, nil)
	ts.ds.On("RecordStatus", mock.Anything, job.JobID, model.StatusQueueFailed, "broker unreachable", "api").Return(&model.JobEvent{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(`{"customer_id":"CUST001","file_path":"/uploads/april.pdf"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := ts.do(req)

	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	var body struct {
		Error string    `json:"error"`
		Job   model.Job `json:"job"`
	}
	decode(t, resp, &body)
	assert.Equal(t, job.JobID, body.Job.JobID)
	assert.Equal(t, model.StatusQueueFailed, body.Job.CurrentStatus)
}

func TestSubmitJob_Multipart(t *testing.T) {
	ts := setupRouter(t, false)
	var stored *model.Job
	ts.ds.On("CreateJob", mock.Anything, mock.AnythingOfType("*model.Job"), "api").
		Run(func(args mock.Arguments) { stored = args.Get(1).(*model.Job) }).
		Return(fakeJob(model.StatusUploaded), nil)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("customer_id", "CUST001"))
	part, err := writer.CreateFormFile("file", "april.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4\n%%EOF\n"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/jobs", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp := ts.do(req)

	assert.Equal(t, http.StatusCreated, resp.Code)
	require.NotNil(t, stored)
	assert.Equal(t, "april.pdf", stored.Filename)
	assert.Equal(t, ts.conf.Storage.UploadDir, filepath.Dir(stored.FilePath))
}

func TestSubmitJob_MultipartWithoutFile(t *testing.T) {
	ts := setupRouter(t, false)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("customer_id", "CUST001"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/jobs", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, ts.do(req).Code)
}

func TestGetJob(t *testing.T) {
	ts := setupRouter(t, false)
	job := fakeJob("ANALYSIS_STARTED")
	ts.ds.On("GetJob", mock.Anything, job.JobID).Return(job, nil)
	ts.ds.On("GetJob", mock.Anything, "missing").Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Job 'missing' not found", nil))

	resp := ts.do(httptest.NewRequest(http.MethodGet, "/jobs/"+job.JobID, nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	var got model.Job
	decode(t, resp, &got)
	assert.Equal(t, "ANALYSIS_STARTED", got.CurrentStatus)

	resp = ts.do(httptest.NewRequest(http.MethodGet, "/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGetJobs_Pagination(t *testing.T) {
	ts := setupRouter(t, false)
	ts.ds.On("GetJobs", mock.Anything, 20, 0).Return([]model.Job{*fakeJob(model.StatusUploaded)}, nil)
	ts.ds.On("GetJobs", mock.Anything, 100, 40).Return([]model.Job{}, nil)

	resp := ts.do(httptest.NewRequest(http.MethodGet, "/jobs", nil))
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = ts.do(httptest.NewRequest(http.MethodGet, "/jobs?limit=500&offset=40", nil))
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = ts.do(httptest.NewRequest(http.MethodGet, "/jobs?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	ts.ds.AssertExpectations(t)
}

func TestGetJobEvents(t *testing.T) {
	ts := setupRouter(t, false)
	job := fakeJob(model.StatusCompleted)
	events := []model.JobEvent{{ID: 1, JobID: job.JobID, Status: model.StatusUploaded}, {ID: 2, JobID: job.JobID, Status: model.StatusCompleted}}
	ts.ds.On("GetJob", mock.Anything, job.JobID).Return(job, nil)
	ts.ds.On("GetJobEvents", mock.Anything, job.JobID).Return(events, nil)

	resp := ts.do(httptest.NewRequest(http.MethodGet, "/jobs/"+job.JobID+"/events", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	var got []model.JobEvent
	decode(t, resp, &got)
	require.Len(t, got, 2)
	assert.Equal(t, model.StatusCompleted, got[1].Status)
}

func TestRequeueJob(t *testing.T) {
	ts := setupRouter(t, false)
	failed := fakeJob("EXTRACTION_FAILED")
	restarted := *failed
	restarted.Attempt = 2
	restarted.CurrentStatus = model.StatusUploaded
	completed := fakeJob(model.StatusCompleted)

	ts.ds.On("GetJob", mock.Anything, failed.JobID).Return(failed, nil)
	ts.ds.On("RequeueJob", mock.Anything, failed.JobID, "api").Return(&restarted, nil)
	ts.ds.On("GetJob", mock.Anything, completed.JobID).Return(completed, nil)

	resp := ts.do(httptest.NewRequest(http.MethodPost, "/jobs/"+failed.JobID+"/requeue", nil))
	assert.Equal(t, http.StatusAccepted, resp.Code)
	require.Len(t, ts.queue.published, 1)
	assert.Equal(t, 2, ts.queue.published[0].Attempt)

	resp = ts.do(httptest.NewRequest(http.MethodPost, "/jobs/"+completed.JobID+"/requeue", nil))
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestGetCustomer(t *testing.T) {
	ts := setupRouter(t, false)
	ts.ds.On("GetCustomer", mock.Anything, "CUST001").Return(&model.Customer{CustomerID: "CUST001", Name: "Jane Doe"}, nil)
	ts.ds.On("GetCustomer", mock.Anything, "CUST404").Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Customer 'CUST404' not found", nil))

	resp := ts.do(httptest.NewRequest(http.MethodGet, "/customers/CUST001", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	var got model.Customer
	decode(t, resp, &got)
	assert.Equal(t, "Jane Doe", got.Name)

	resp = ts.do(httptest.NewRequest(http.MethodGet, "/customers/CUST404", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestWorkerHealth(t *testing.T) {
	ts := setupRouter(t, false)
	ts.ds.On("GetRecentWorkerActivity", mock.Anything, mock.AnythingOfType("time.Time")).Return([]model.WorkerActivity{
		{WorkerName: "worker-1", Status: "REPORTING_SUCCESS", LastSeen: time.Now()},
	}, nil)
	ts.ds.On("GetActiveJobs", mock.Anything, 5).Return([]model.ActiveJob{}, nil)

	resp := ts.do(httptest.NewRequest(http.MethodGet, "/health/workers?limit=5", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	var got docaudit.WorkerHealth
	decode(t, resp, &got)
	assert.Equal(t, 1, got.Stages[model.StageReporting].ActiveWorkers)
	assert.Equal(t, 0, got.Stages[model.StageExtraction].ActiveWorkers)
}

func TestSecureRouter(t *testing.T) {
	ts := setupRouter(t, true)
	ts.ds.On("GetJobs", mock.Anything, 20, 0).Return([]model.Job{}, nil)

	assert.Equal(t, http.StatusOK, ts.do(httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(httptest.NewRequest(http.MethodGet, "/jobs", nil)).Code)

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set(middleware.KeyHeader, "s3cret")
	assert.Equal(t, http.StatusOK, ts.do(req).Code)
}
