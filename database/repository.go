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
	"time"

	"github.com/blnkfinance/docaudit/model"
)

// IDataSource is the audit and job store used by the pipeline.
type IDataSource interface {
	job
	customer
}

// job covers the job row and its append only event trail. Every write that changes
// current_status also inserts an event within the same database transaction.
type job interface {
	CreateJob(ctx context.Context, job *model.Job, workerName string) (*model.Job, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	GetJobs(ctx context.Context, limit, offset int) ([]model.Job, error)
	RecordStatus(ctx context.Context, jobID, status, message, workerName string) (*model.JobEvent, error)
	GetJobEvents(ctx context.Context, jobID string) ([]model.JobEvent, error)
	GetLastEvent(ctx context.Context, jobID, status string) (*model.JobEvent, error)
	GetStalledJobs(ctx context.Context, cutoff time.Time, limit int) ([]model.Job, error)
	GetActiveJobs(ctx context.Context, limit int) ([]model.ActiveJob, error)
	GetRecentWorkerActivity(ctx context.Context, since time.Time) ([]model.WorkerActivity, error)
	RequeueJob(ctx context.Context, jobID, workerName string) (*model.Job, error)
}

type customer interface {
	GetCustomer(ctx context.Context, customerID string) (*model.Customer, error)
	UpsertCustomer(ctx context.Context, customer model.Customer) error
}
