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
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/blnkfinance/docaudit/internal/apierror"
	"github.com/blnkfinance/docaudit/model"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var allowedContentTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
}

// Submission points at a statement file that is already on disk.
type Submission struct {
	CustomerID string `json:"customer_id"`
	FilePath   string `json:"file_path"`
	Filename   string `json:"filename"`
}

func (s Submission) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.CustomerID, validation.Required),
		validation.Field(&s.FilePath, validation.Required),
		validation.Field(&s.Filename, validation.Required),
	)
}

// Upload is a statement file received over the API.
type Upload struct {
	CustomerID string
	Filename   string
	Body       io.Reader
}

// Submit creates the job and publishes it to extraction. When the publish fails the job is
// kept at QUEUE_FAILED and returned together with an ErrUnavailable error.
func (a *Auditor) Submit(ctx context.Context, s Submission) (*model.Job, error) {
	ctx, span := tracer.Start(ctx, "Submitting job")
	defer span.End()

	if s.Filename == "" {
		s.Filename = filepath.Base(s.FilePath)
	}
	if err := s.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}
	return a.submit(ctx, model.NewJobID(), s)
}

func (a *Auditor) submit(ctx context.Context, jobID string, s Submission) (*model.Job, error) {
	job, err := a.datasource.CreateJob(ctx, &model.Job{
		JobID:      jobID,
		CustomerID: s.CustomerID,
		Filename:   s.Filename,
		FilePath:   s.FilePath,
	}, a.worker())
	if err != nil {
		return nil, err
	}
	a.logger(model.StatusUploaded, job.JobID).Info("job created")

	if err := a.publishExtraction(ctx, job); err != nil {
		return job, apierror.NewAPIError(apierror.ErrUnavailable, "Job was saved but could not be queued", err)
	}
	return job, nil
}

// publishExtraction sends the first stage message, recording QUEUE_FAILED when that fails.
func (a *Auditor) publishExtraction(ctx context.Context, job *model.Job) error {
	msg, err := model.NewMessage(job.JobID, job.Attempt, model.ExtractionPayload{
		JobID:      job.JobID,
		FilePath:   job.FilePath,
		CustomerID: job.CustomerID,
		Filename:   job.Filename,
	})
	if err != nil {
		return err
	}

	pubErr := a.queue.Publish(ctx, model.StageExtraction, msg)
	if pubErr == nil {
		return nil
	}

	a.logger(model.StageExtraction, job.JobID).WithError(pubErr).Error("could not queue job")
	if _, err := a.datasource.RecordStatus(ctx, job.JobID, model.StatusQueueFailed, pubErr.Error(), a.worker()); err != nil {
		return err
	}
	job.CurrentStatus = model.StatusQueueFailed
	a.notify(ctx, EventJobQueueFailed, job, model.StatusQueueFailed, pubErr.Error(), nil)
	return pubErr
}

// Ingest stores an uploaded statement under the upload directory and submits it.
// Files over the size cap or of an unsupported type are rejected before a job exists.
func (a *Auditor) Ingest(ctx context.Context, u Upload) (*model.Job, error) {
	filename := filepath.Base(filepath.Clean(u.Filename))
	if u.CustomerID == "" || filename == "." || filename == string(filepath.Separator) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "customer_id and a file name are required", nil)
	}

	limit := int64(a.cfg.Storage.MaxFileSizeMB) << 20
	body := u.Body
	if limit > 0 {
		body = io.LimitReader(u.Body, limit+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "Failed to read upload", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("File exceeds the %d MB limit", a.cfg.Storage.MaxFileSizeMB), nil)
	}
	if contentType := http.DetectContentType(data); !allowedContentTypes[contentType] {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Unsupported file type %s", contentType), nil)
	}

	if err := os.MkdirAll(a.cfg.Storage.UploadDir, 0o755); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to prepare upload directory", err)
	}
	jobID := model.NewJobID()
	path := filepath.Join(a.cfg.Storage.UploadDir, model.ShortID(jobID, 8)+"_"+filename)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to store upload", err)
	}

	return a.submit(ctx, jobID, Submission{CustomerID: u.CustomerID, FilePath: path, Filename: filename})
}
