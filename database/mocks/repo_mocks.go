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
package mocks

import (
	"context"
	"time"

	"github.com/blnkfinance/docaudit/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Job methods

func (m *MockDataSource) CreateJob(ctx context.Context, job *model.Job, workerName string) (*model.Job, error) {
	args := m.Called(ctx, job, workerName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *MockDataSource) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *MockDataSource) GetJobs(ctx context.Context, limit, offset int) ([]model.Job, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]model.Job), args.Error(1)
}

func (m *MockDataSource) RecordStatus(ctx context.Context, jobID, status, message, workerName string) (*model.JobEvent, error) {
	args := m.Called(ctx, jobID, status, message, workerName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.JobEvent), args.Error(1)
}

func (m *MockDataSource) GetJobEvents(ctx context.Context, jobID string) ([]model.JobEvent, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).([]model.JobEvent), args.Error(1)
}

func (m *MockDataSource) GetLastEvent(ctx context.Context, jobID, status string) (*model.JobEvent, error) {
	args := m.Called(ctx, jobID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.JobEvent), args.Error(1)
}

func (m *MockDataSource) GetStalledJobs(ctx context.Context, cutoff time.Time, limit int) ([]model.Job, error) {
	args := m.Called(ctx, cutoff, limit)
	return args.Get(0).([]model.Job), args.Error(1)
}

func (m *MockDataSource) GetActiveJobs(ctx context.Context, limit int) ([]model.ActiveJob, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]model.ActiveJob), args.Error(1)
}

func (m *MockDataSource) GetRecentWorkerActivity(ctx context.Context, since time.Time) ([]model.WorkerActivity, error) {
	args := m.Called(ctx, since)
	return args.Get(0).([]model.WorkerActivity), args.Error(1)
}

func (m *MockDataSource) RequeueJob(ctx context.Context, jobID, workerName string) (*model.Job, error) {
	args := m.Called(ctx, jobID, workerName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

// Customer methods

func (m *MockDataSource) GetCustomer(ctx context.Context, customerID string) (*model.Customer, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Customer), args.Error(1)
}

func (m *MockDataSource) UpsertCustomer(ctx context.Context, customer model.Customer) error {
	args := m.Called(ctx, customer)
	return args.Error(0)
}
