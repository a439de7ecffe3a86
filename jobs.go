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
	"fmt"
	"sort"
	"time"

	"github.com/blnkfinance/docaudit/internal/apierror"
	"github.com/blnkfinance/docaudit/model"
)

// WorkerWindow is how far back worker activity counts as live.
const WorkerWindow = 30 * time.Second

// StageHealth lists the workers that wrote an event for a stage inside the window.
type StageHealth struct {
	Workers       []string `json:"workers"`
	ActiveWorkers int      `json:"active_workers"`
}

type WorkerHealth struct {
	Window     string                      `json:"window"`
	Stages     map[model.Stage]StageHealth `json:"stages"`
	ActiveJobs []model.ActiveJob           `json:"active_jobs"`
}

func (a *Auditor) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	return a.datasource.GetJob(ctx, jobID)
}

func (a *Auditor) GetJobs(ctx context.Context, limit, offset int) ([]model.Job, error) {
	return a.datasource.GetJobs(ctx, limit, offset)
}

// GetJobEvents returns the audit trail of a job in insertion order.
func (a *Auditor) GetJobEvents(ctx context.Context, jobID string) ([]model.JobEvent, error) {
	if _, err := a.datasource.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return a.datasource.GetJobEvents(ctx, jobID)
}

func (a *Auditor) GetCustomer(ctx context.Context, customerID string) (*model.Customer, error) {
	return a.datasource.GetCustomer(ctx, customerID)
}

// Health reports the distinct workers seen per stage within WorkerWindow and the jobs in flight.
func (a *Auditor) Health(ctx context.Context, activeLimit int) (*WorkerHealth, error) {
	activity, err := a.datasource.GetRecentWorkerActivity(ctx, a.now().Add(-WorkerWindow))
	if err != nil {
		return nil, err
	}
	active, err := a.datasource.GetActiveJobs(ctx, activeLimit)
	if err != nil {
		return nil, err
	}

	seen := make(map[model.Stage]map[string]bool, len(model.Stages))
	for _, stage := range model.Stages {
		seen[stage] = map[string]bool{}
	}
	for _, act := range activity {
		stage, _, ok := model.ParseStatus(act.Status)
		if !ok || act.WorkerName == "" {
			continue
		}
		seen[stage][act.WorkerName] = true
	}

	health := &WorkerHealth{
		Window:     WorkerWindow.String(),
		Stages:     make(map[model.Stage]StageHealth, len(seen)),
		ActiveJobs: active,
	}
	for stage, workers := range seen {
		names := make([]string, 0, len(workers))
		for name := range workers {
			names = append(names, name)
		}
		sort.Strings(names)
		health.Stages[stage] = StageHealth{Workers: names, ActiveWorkers: len(names)}
	}
	return health, nil
}

// Requeue restarts a failed, queue failed or stalled job from extraction under a new attempt.
// Messages still in flight for the old attempt are dropped by the stage guard.
func (a *Auditor) Requeue(ctx context.Context, jobID string) (*model.Job, error) {
	ctx, span := tracer.Start(ctx, "Requeueing job")
	defer span.End()

	job, err := a.datasource.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !a.requeueable(job) {
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Job '%s' is %s and cannot be requeued", jobID, job.CurrentStatus), nil)
	}

	job, err = a.datasource.RequeueJob(ctx, jobID, a.worker())
	if err != nil {
		return nil, err
	}
	a.logger(model.StatusUploaded, jobID).WithField("attempt", job.Attempt).Info("job requeued")

	if err := a.publishExtraction(ctx, job); err != nil {
		return job, apierror.NewAPIError(apierror.ErrUnavailable, "Job was requeued but could not be queued", err)
	}
	return job, nil
}

func (a *Auditor) requeueable(job *model.Job) bool {
	if job.CurrentStatus == model.StatusCompleted {
		return false
	}
	if model.IsTerminal(job.CurrentStatus) {
		return true
	}
	threshold := time.Duration(a.cfg.Monitor.StallThresholdSec) * time.Second
	return threshold > 0 && a.now().Sub(job.UpdatedAt) > threshold
}
