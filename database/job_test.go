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

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/blnkfinance/docaudit/internal/apierror"
	"github.com/blnkfinance/docaudit/model"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jobRowColumns = []string{"job_id", "customer_id", "filename", "file_path", "attempt", "current_status", "created_at", "updated_at"}

func newMockDatasource(t *testing.T) (Datasource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return Datasource{Conn: db}, mock
}

func TestCreateJob_Success(t *testing.T) {
	ds, mock := newMockDatasource(t)
	job := &model.Job{JobID: gofakeit.UUID(), CustomerID: "CUST001", Filename: "statement.pdf", FilePath: "/uploads/statement.pdf"}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO jobs").
		WithArgs(job.JobID, "CUST001", "statement.pdf", "/uploads/statement.pdf", 1, model.StatusUploaded, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("INSERT INTO job_events").
		WithArgs(job.JobID, model.StatusUploaded, "", "api", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	created, err := ds.CreateJob(context.Background(), job, "api")
	require.NoError(t, err)
	assert.Equal(t, model.StatusUploaded, created.CurrentStatus)
	assert.Equal(t, 1, created.Attempt)
	assert.False(t, created.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJob_Conflict(t *testing.T) {
	ds, mock := newMockDatasource(t)
	job := &model.Job{JobID: "job-1", CustomerID: "CUST001", Filename: "s.pdf", FilePath: "/u/s.pdf"}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO jobs").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := ds.CreateJob(context.Background(), job, "api")
	require.Error(t, err)
	assert.Equal(t, apierror.ErrConflict, apierror.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJob(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now()

	mock.ExpectQuery("SELECT job_id, customer_id, filename, file_path, attempt, current_status, created_at, updated_at FROM jobs WHERE job_id").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(jobRowColumns).AddRow("job-1", "CUST001", "s.pdf", "/u/s.pdf", 2, "ANALYSIS_STARTED", now, now))

	job, err := ds.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "ANALYSIS_STARTED", job.CurrentStatus)
	assert.Equal(t, 2, job.Attempt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJob_NotFound(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery("SELECT (.+) FROM jobs WHERE job_id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(jobRowColumns))

	_, err := ds.GetJob(context.Background(), "missing")
	assert.True(t, apierror.IsNotFound(err))
}

func TestGetJobs(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM jobs ORDER BY created_at DESC").
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).
			AddRow("job-2", "C2", "b.pdf", "/u/b.pdf", 1, "UPLOADED", now, now).
			AddRow("job-1", "C1", "a.pdf", "/u/a.pdf", 1, "COMPLETED", now, now))

	jobs, err := ds.GetJobs(context.Background(), 20, 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestRecordStatus_Success(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE jobs SET current_status").
		WithArgs("EXTRACTION_STARTED", sqlmock.AnyArg(), "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO job_events").
		WithArgs("job-1", "EXTRACTION_STARTED", "", "worker-a", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	event, err := ds.RecordStatus(context.Background(), "job-1", "EXTRACTION_STARTED", "", "worker-a")
	require.NoError(t, err)
	assert.Equal(t, int64(7), event.ID)
	assert.Equal(t, "worker-a", event.WorkerName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStatus_UnknownJobRollsBack(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE jobs SET current_status").
		WithArgs("EXTRACTION_STARTED", sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := ds.RecordStatus(context.Background(), "missing", "EXTRACTION_STARTED", "", "worker-a")
	assert.True(t, apierror.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStatus_EventInsertFailureRollsBack(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE jobs SET current_status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO job_events").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := ds.RecordStatus(context.Background(), "job-1", "ANALYSIS_SUCCESS", "{}", "worker-a")
	require.Error(t, err)
	assert.Equal(t, apierror.ErrInternalServer, apierror.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobEvents(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now()

	mock.ExpectQuery("SELECT id, job_id, status, message, worker_name, timestamp FROM job_events WHERE job_id").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_id", "status", "message", "worker_name", "timestamp"}).
			AddRow(1, "job-1", "UPLOADED", nil, nil, now).
			AddRow(2, "job-1", "EXTRACTION_STARTED", "", "worker-a", now).
			AddRow(3, "job-1", "EXTRACTION_FAILED", "customer not found", "worker-a", now))

	events, err := ds.GetJobEvents(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "", events[0].Message)
	assert.Equal(t, "customer not found", events[2].Message)
	assert.Equal(t, "worker-a", events[1].WorkerName)
}

func TestGetLastEvent(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM job_events WHERE job_id = \\$1 AND status = \\$2 ORDER BY id DESC LIMIT 1").
		WithArgs("job-1", "EXTRACTION_SUCCESS").
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_id", "status", "message", "worker_name", "timestamp"}).
			AddRow(4, "job-1", "EXTRACTION_SUCCESS", `{"customer":{}}`, "worker-a", now))

	event, err := ds.GetLastEvent(context.Background(), "job-1", "EXTRACTION_SUCCESS")
	require.NoError(t, err)
	assert.Equal(t, `{"customer":{}}`, event.Message)

	mock.ExpectQuery("SELECT (.+) FROM job_events").
		WithArgs("job-1", "ANALYSIS_SUCCESS").
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_id", "status", "message", "worker_name", "timestamp"}))
	_, err = ds.GetLastEvent(context.Background(), "job-1", "ANALYSIS_SUCCESS")
	assert.True(t, apierror.IsNotFound(err))
}

func TestGetStalledJobs(t *testing.T) {
	ds, mock := newMockDatasource(t)
	cutoff := time.Now().Add(-15 * time.Minute)
	old := cutoff.Add(-time.Hour)

	mock.ExpectQuery("SELECT (.+) FROM jobs WHERE current_status <> 'COMPLETED'").
		WithArgs(cutoff, 50).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).AddRow("job-9", "C1", "a.pdf", "/u/a.pdf", 1, "ANALYSIS_STARTED", old, old))

	jobs, err := ds.GetStalledJobs(context.Background(), cutoff, 50)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-9", jobs[0].JobID)
}

func TestGetActiveJobs(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM jobs j LEFT JOIN customers c").
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows(append(append([]string{}, jobRowColumns...), "name")).
			AddRow("job-1", "C1", "a.pdf", "/u/a.pdf", 1, "EXTRACTION_STARTED", now, now, "Jane Doe").
			AddRow("job-2", "C9", "b.pdf", "/u/b.pdf", 1, "UPLOADED", now, now, nil))

	jobs, err := ds.GetActiveJobs(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "Jane Doe", jobs[0].CustomerName)
	assert.Equal(t, "", jobs[1].CustomerName)
}

func TestGetRecentWorkerActivity(t *testing.T) {
	ds, mock := newMockDatasource(t)
	since := time.Now().Add(-30 * time.Second)

	mock.ExpectQuery("SELECT worker_name, status, MAX\\(timestamp\\)").
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"worker_name", "status", "max"}).
			AddRow("worker-a", "EXTRACTION_STARTED", time.Now()).
			AddRow("worker-b", "ANALYSIS_SUCCESS", time.Now()))

	activity, err := ds.GetRecentWorkerActivity(context.Background(), since)
	require.NoError(t, err)
	assert.Len(t, activity, 2)
}

func TestRequeueJob(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE jobs SET attempt = attempt \\+ 1").
		WithArgs(model.StatusUploaded, sqlmock.AnyArg(), "job-1").
		WillReturnRows(sqlmock.NewRows(jobRowColumns).AddRow("job-1", "C1", "a.pdf", "/u/a.pdf", 2, "UPLOADED", now, now))
	mock.ExpectQuery("INSERT INTO job_events").
		WithArgs("job-1", model.StatusUploaded, "requeued for attempt 2", "cli", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectCommit()

	job, err := ds.RequeueJob(context.Background(), "job-1", "cli")
	require.NoError(t, err)
	assert.Equal(t, 2, job.Attempt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequeueJob_NotFound(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE jobs SET attempt").WillReturnRows(sqlmock.NewRows(jobRowColumns))
	mock.ExpectRollback()

	_, err := ds.RequeueJob(context.Background(), "missing", "cli")
	assert.True(t, apierror.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
