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
	"encoding/json"
	"time"

	"github.com/blnkfinance/docaudit/internal/apierror"
	redlock "github.com/blnkfinance/docaudit/internal/lock"
	"github.com/blnkfinance/docaudit/model"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// stageFunc runs one stage over the message body and returns the result to forward.
type stageFunc func(ctx context.Context, job *model.Job, body json.RawMessage) (interface{}, error)

type decision int

const (
	decisionRun decision = iota
	decisionReplay
	decisionDrop
)

// decide maps the current job status onto what a message for stage should do.
// A stage that already started is run again; its lock keeps concurrent deliveries out.
func decide(status string, stage model.Stage) decision {
	if status == model.StatusUploaded {
		if stage.Order() == 0 {
			return decisionRun
		}
		return decisionDrop
	}

	current, phase, ok := model.ParseStatus(status)
	if !ok {
		return decisionDrop
	}
	switch {
	case current == stage && phase == "STARTED":
		return decisionRun
	case current == stage && phase == "SUCCESS":
		return decisionReplay
	case current.Order() == stage.Order()-1 && phase == "SUCCESS":
		return decisionRun
	}
	return decisionDrop
}

func (a *Auditor) stageFunc(stage model.Stage) stageFunc {
	switch stage {
	case model.StageExtraction:
		return a.extract
	case model.StageAnalysis:
		return a.analyze
	case model.StageReporting:
		return a.report
	}
	return nil
}

// Handler returns the broker handler for stage.
func (a *Auditor) Handler(stage model.Stage) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var msg model.Message
		if err := json.Unmarshal(task.Payload(), &msg); err != nil {
			logrus.WithError(err).WithField("stage", stage).Error("dropping undecodable stage message")
			return nil
		}
		if err := msg.Validate(); err != nil {
			logrus.WithError(err).WithField("stage", stage).Error("dropping invalid stage message")
			return nil
		}
		return a.Handle(ctx, stage, msg)
	}
}

// RegisterHandlers binds every stage queue and the webhook queue on mux.
func (a *Auditor) RegisterHandlers(mux *asynq.ServeMux) {
	for _, stage := range model.Stages {
		mux.HandleFunc(QueueName(a.cfg.Queue, stage), a.Handler(stage))
	}
	mux.HandleFunc(a.cfg.Queue.WebhookQueue, ProcessWebhook)
}

// Handle processes one stage message. Only audit store and lock failures are returned,
// which makes the broker redeliver; stage failures are recorded and acknowledged.
func (a *Auditor) Handle(ctx context.Context, stage model.Stage, msg model.Message) error {
	ctx, span := tracer.Start(ctx, "Handling stage message",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("docaudit.stage", string(stage)),
			attribute.String("docaudit.job_id", msg.CorrelationID),
			attribute.Int("docaudit.attempt", msg.Attempt),
		),
	)
	defer span.End()

	logger := a.logger(stage, msg.CorrelationID).WithField("attempt", msg.Attempt)
	run := a.stageFunc(stage)
	if run == nil {
		logger.Error("dropping message for unknown stage")
		return nil
	}

	locker := redlock.NewLocker(a.redis, redlock.StageKey(msg.CorrelationID, string(stage)), a.worker()+":"+uuid.NewString())
	if err := locker.Lock(ctx, time.Duration(a.cfg.Queue.StageLockTTLSec)*time.Second); err != nil {
		logger.WithError(err).Warn("stage lock unavailable, message will be redelivered")
		span.RecordError(err)
		return err
	}
	defer func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logger.WithError(err).Warn("failed to release stage lock")
		}
	}()

	job, err := a.datasource.GetJob(ctx, msg.CorrelationID)
	if err != nil {
		if apierror.IsNotFound(err) {
			logger.Warn("dropping message for unknown job")
			return nil
		}
		span.RecordError(err)
		return err
	}
	if msg.Attempt != job.Attempt {
		logger.WithField("job_attempt", job.Attempt).Info("dropping message from a superseded attempt")
		return nil
	}

	switch decide(job.CurrentStatus, stage) {
	case decisionDrop:
		logger.WithField("status", job.CurrentStatus).Info("dropping message, job is not waiting on this stage")
		return nil
	case decisionReplay:
		event, err := a.datasource.GetLastEvent(ctx, job.JobID, stage.Succeeded())
		if err != nil {
			span.RecordError(err)
			return err
		}
		logger.Info("stage already succeeded, forwarding stored result")
		return a.forward(ctx, logger, job, stage, json.RawMessage(event.Message))
	}

	if _, err := a.datasource.RecordStatus(ctx, job.JobID, stage.Started(), "", a.worker()); err != nil {
		span.RecordError(err)
		return err
	}
	logger.Info("stage started")

	result, runErr := run(ctx, job, msg.Body)
	if runErr != nil {
		span.SetStatus(codes.Error, runErr.Error())
		logger.WithError(runErr).Error("stage failed")
		if _, err := a.datasource.RecordStatus(ctx, job.JobID, stage.Failed(), runErr.Error(), a.worker()); err != nil {
			return err
		}
		a.notify(ctx, EventJobFailed, job, stage.Failed(), runErr.Error(), nil)
		return nil
	}

	body, err := json.Marshal(result)
	if err != nil {
		if _, recErr := a.datasource.RecordStatus(ctx, job.JobID, stage.Failed(), err.Error(), a.worker()); recErr != nil {
			return recErr
		}
		a.notify(ctx, EventJobFailed, job, stage.Failed(), err.Error(), nil)
		return nil
	}

	if _, err := a.datasource.RecordStatus(ctx, job.JobID, stage.Succeeded(), string(body), a.worker()); err != nil {
		span.RecordError(err)
		return err
	}
	logger.Info("stage succeeded")
	return a.forward(ctx, logger, job, stage, body)
}

// forward publishes result to the next stage, or completes the job after the last one.
func (a *Auditor) forward(ctx context.Context, logger *logrus.Entry, job *model.Job, stage model.Stage, result json.RawMessage) error {
	next, ok := stage.Next()
	if !ok {
		if _, err := a.datasource.RecordStatus(ctx, job.JobID, model.StatusCompleted, string(result), a.worker()); err != nil {
			return err
		}
		logger.Info("job completed")
		a.notify(ctx, EventJobCompleted, job, model.StatusCompleted, "", result)
		return nil
	}

	msg := model.Message{CorrelationID: job.JobID, Attempt: job.Attempt, Body: result}
	if err := a.queue.Publish(ctx, next, msg); err != nil {
		logger.WithError(err).WithField("next_stage", next).Error("could not forward result")
		if _, recErr := a.datasource.RecordStatus(ctx, job.JobID, model.StatusQueueFailed, err.Error(), a.worker()); recErr != nil {
			return recErr
		}
		a.notify(ctx, EventJobQueueFailed, job, model.StatusQueueFailed, err.Error(), nil)
	}
	return nil
}

// notify enqueues a job webhook. Failures are logged and never affect the job.
func (a *Auditor) notify(ctx context.Context, event string, job *model.Job, status, errText string, report json.RawMessage) {
	notice := JobNotice{
		JobID:      job.JobID,
		CustomerID: job.CustomerID,
		Filename:   job.Filename,
		Status:     status,
		Attempt:    job.Attempt,
		Error:      errText,
		At:         a.now().UTC(),
	}
	if len(report) > 0 {
		notice.Report = report
	}
	if err := a.queue.SendWebhook(ctx, Webhook{Event: event, Payload: notice}); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"event": event, "job_id": job.JobID}).Warnf("could not send %s webhook", event)
	}
}
