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
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/docaudit/internal/apierror"
	"github.com/blnkfinance/docaudit/model"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
)

const jobColumns = `job_id, customer_id, filename, file_path, attempt, current_status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner, job *model.Job) error {
	return row.Scan(&job.JobID, &job.CustomerID, &job.Filename, &job.FilePath, &job.Attempt, &job.CurrentStatus, &job.CreatedAt, &job.UpdatedAt)
}

func insertEvent(ctx context.Context, tx *sql.Tx, jobID, status, message, workerName string, at time.Time) (*model.JobEvent, error) {
	event := &model.JobEvent{JobID: jobID, Status: status, Message: message, WorkerName: workerName, Timestamp: at}
	err := tx.QueryRowContext(ctx,
		`INSERT INTO job_events (job_id, status, message, worker_name, timestamp) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		jobID, status, message, workerName, at,
	).Scan(&event.ID)
	if err != nil {
		return nil, err
	}
	return event, nil
}

// CreateJob inserts the job with its initial status and the matching first event.
func (d Datasource) CreateJob(ctx context.Context, job *model.Job, workerName string) (*model.Job, error) {
	ctx, span := otel.Tracer("docaudit.database").Start(ctx, "Creating job")
	defer span.End()

	now := time.Now().UTC()
	job.CreatedAt, job.UpdatedAt = now, now
	if job.CurrentStatus == "" {
		job.CurrentStatus = model.StatusUploaded
	}
	if job.Attempt == 0 {
		job.Attempt = 1
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.JobID, job.CustomerID, job.Filename, job.FilePath, job.Attempt, job.CurrentStatus, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		_ = tx.Rollback()
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Job with this ID already exists", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create job", err)
	}

	if _, err = insertEvent(ctx, tx, job.JobID, job.CurrentStatus, "", workerName, now); err != nil {
		_ = tx.Rollback()
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record job event", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return job, nil
}

func (d Datasource) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	ctx, span := otel.Tracer("docaudit.database").Start(ctx, "Getting job")
	defer span.End()

	job := &model.Job{}
	row := d.Conn.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = $1`, jobID)
	if err := scanJob(row, job); err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Job with ID '%s' not found", jobID), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve job", err)
	}
	return job, nil
}

func (d Datasource) GetJobs(ctx context.Context, limit, offset int) ([]model.Job, error) {
	ctx, span := otel.Tracer("docaudit.database").Start(ctx, "Listing jobs")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve jobs", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func collectJobs(rows *sql.Rows) ([]model.Job, error) {
	jobs := []model.Job{}
	for rows.Next() {
		var job model.Job
		if err := scanJob(rows, &job); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan job", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over jobs", err)
	}
	return jobs, nil
}

// RecordStatus moves the job to status and appends the audit event atomically.
// A missing job is reported as NotFound and nothing is written.
func (d Datasource) RecordStatus(ctx context.Context, jobID, status, message, workerName string) (*model.JobEvent, error) {
	ctx, span := otel.Tracer("docaudit.database").Start(ctx, "Recording job status")
	defer span.End()

	now := time.Now().UTC()
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE jobs SET current_status = $1, updated_at = $2 WHERE job_id = $3`, status, now, jobID)
	if err != nil {
		_ = tx.Rollback()
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update job status", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Job with ID '%s' not found", jobID), nil)
	}

	event, err := insertEvent(ctx, tx, jobID, status, message, workerName, now)
	if err != nil {
		_ = tx.Rollback()
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record job event", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return event, nil
}

const eventColumns = `id, job_id, status, message, worker_name, timestamp`

func scanEvent(row rowScanner) (model.JobEvent, error) {
	var (
		event   model.JobEvent
		message sql.NullString
		worker  sql.NullString
	)
	err := row.Scan(&event.ID, &event.JobID, &event.Status, &message, &worker, &event.Timestamp)
	event.Message = message.String
	event.WorkerName = worker.String
	return event, err
}

// GetJobEvents returns the full trail for a job in insertion order.
func (d Datasource) GetJobEvents(ctx context.Context, jobID string) ([]model.JobEvent, error) {
	ctx, span := otel.Tracer("docaudit.database").Start(ctx, "Getting job events")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM job_events WHERE job_id = $1 ORDER BY id ASC`, jobID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve job events", err)
	}
	defer rows.Close()

	events := []model.JobEvent{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan job event", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over job events", err)
	}
	return events, nil
}

// GetLastEvent returns the most recent event of a job with the given status.
func (d Datasource) GetLastEvent(ctx context.Context, jobID, status string) (*model.JobEvent, error) {
	ctx, span := otel.Tracer("docaudit.database").Start(ctx, "Getting last job event")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM job_events WHERE job_id = $1 AND status = $2 ORDER BY id DESC LIMIT 1`, jobID, status)
	event, err := scanEvent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("No %s event for job '%s'", status, jobID), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve job event", err)
	}
	return &event, nil
}

const nonTerminal = `current_status <> 'COMPLETED' AND current_status NOT LIKE '%\_FAILED'`

// GetStalledJobs returns non terminal jobs whose status has not changed since cutoff.
func (d Datasource) GetStalledJobs(ctx context.Context, cutoff time.Time, limit int) ([]model.Job, error) {
	ctx, span := otel.Tracer("docaudit.database").Start(ctx, "Getting stalled jobs")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE `+nonTerminal+` AND updated_at < $1 ORDER BY updated_at ASC LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve stalled jobs", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// GetActiveJobs returns in flight jobs joined with their customer's name, most recently updated first.
func (d Datasource) GetActiveJobs(ctx context.Context, limit int) ([]model.ActiveJob, error) {
	ctx, span := otel.Tracer("docaudit.database").Start(ctx, "Getting active jobs")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT j.job_id, j.customer_id, j.filename, j.file_path, j.attempt, j.current_status, j.created_at, j.updated_at, c.name
		FROM jobs j
		LEFT JOIN customers c ON c.customer_id = j.customer_id
		WHERE j.current_status <> 'COMPLETED' AND j.current_status NOT LIKE '%\_FAILED'
		ORDER BY j.updated_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve active jobs", err)
	}
	defer rows.Close()

	jobs := []model.ActiveJob{}
	for rows.Next() {
		var (
			job  model.ActiveJob
			name sql.NullString
		)
		err := rows.Scan(&job.JobID, &job.CustomerID, &job.Filename, &job.FilePath, &job.Attempt, &job.CurrentStatus, &job.CreatedAt, &job.UpdatedAt, &name)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan active job", err)
		}
		job.CustomerName = name.String
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over active jobs", err)
	}
	return jobs, nil
}

// GetRecentWorkerActivity returns, per worker and status, the latest event written since the given time.
func (d Datasource) GetRecentWorkerActivity(ctx context.Context, since time.Time) ([]model.WorkerActivity, error) {
	ctx, span := otel.Tracer("docaudit.database").Start(ctx, "Getting worker activity")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT worker_name, status, MAX(timestamp)
		FROM job_events
		WHERE timestamp >= $1 AND worker_name IS NOT NULL AND worker_name <> ''
		GROUP BY worker_name, status`, since)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve worker activity", err)
	}
	defer rows.Close()

	activity := []model.WorkerActivity{}
	for rows.Next() {
		var a model.WorkerActivity
		if err := rows.Scan(&a.WorkerName, &a.Status, &a.LastSeen); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan worker activity", err)
		}
		activity = append(activity, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over worker activity", err)
	}
	return activity, nil
}

// RequeueJob resets the job to UPLOADED with the next attempt number and records why.
func (d Datasource) RequeueJob(ctx context.Context, jobID, workerName string) (*model.Job, error) {
	ctx, span := otel.Tracer("docaudit.database").Start(ctx, "Requeueing job")
	defer span.End()

	now := time.Now().UTC()
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}

	job := &model.Job{}
	row := tx.QueryRowContext(ctx,
		`UPDATE jobs SET attempt = attempt + 1, current_status = $1, updated_at = $2 WHERE job_id = $3 RETURNING `+jobColumns,
		model.StatusUploaded, now, jobID)
	if err := scanJob(row, job); err != nil {
		_ = tx.Rollback()
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Job with ID '%s' not found", jobID), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to requeue job", err)
	}

	message := fmt.Sprintf("requeued for attempt %d", job.Attempt)
	if _, err := insertEvent(ctx, tx, jobID, model.StatusUploaded, message, workerName, now); err != nil {
		_ = tx.Rollback()
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record job event", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return job, nil
}
