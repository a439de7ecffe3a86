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
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/docaudit/config"
	redis_db "github.com/blnkfinance/docaudit/internal/redis-db"
	"github.com/blnkfinance/docaudit/model"
	"github.com/cenkalti/backoff/v4"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// Publisher hands stage messages and webhook notifications to the broker.
type Publisher interface {
	Publish(ctx context.Context, stage model.Stage, msg model.Message) error
	SendWebhook(ctx context.Context, hook Webhook) error
}

// Queue represents the broker connection used by the pipeline.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	cfg       config.QueueConfig
	webhook   config.WebhookConfig
}

// RedisOpt converts the configured redis DNS into asynq client options.
func RedisOpt(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("parse redis url: %w", err)
	}
	return asynq.RedisClientOpt{
		Addr:      redisOption.Addr,
		Password:  redisOption.Password,
		DB:        redisOption.DB,
		TLSConfig: redisOption.TLSConfig,
	}, nil
}

// NewQueue initializes a Queue from the configuration.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	opt, err := RedisOpt(conf)
	if err != nil {
		return nil, err
	}
	return &Queue{
		Client:    asynq.NewClient(opt),
		Inspector: asynq.NewInspector(opt),
		cfg:       conf.Queue,
		webhook:   conf.Notification.Webhook,
	}, nil
}

// QueueName returns the queue that feeds the given stage.
func QueueName(cfg config.QueueConfig, stage model.Stage) string {
	switch stage {
	case model.StageExtraction:
		return cfg.ExtractionQueue
	case model.StageAnalysis:
		return cfg.AnalysisQueue
	case model.StageReporting:
		return cfg.ReportingQueue
	}
	return ""
}

// TaskID is the dedup key of a hop. A job attempt can forward to a stage at most once.
func TaskID(jobID string, stage model.Stage, attempt int) string {
	return fmt.Sprintf("%s:%s:%d", jobID, stage, attempt)
}

// Publish enqueues msg for stage, retrying transient broker errors with exponential backoff.
// A task id conflict means the hop already exists and is treated as success.
func (q *Queue) Publish(ctx context.Context, stage model.Stage, msg model.Message) error {
	ctx, span := tracer.Start(ctx, "Publishing stage message", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	queueName := QueueName(q.cfg, stage)
	if queueName == "" {
		return fmt.Errorf("no queue configured for stage %s", stage)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	taskID := TaskID(msg.CorrelationID, stage, msg.Attempt)
	task := asynq.NewTask(queueName, payload,
		asynq.TaskID(taskID),
		asynq.Queue(queueName),
		asynq.MaxRetry(q.cfg.MaxRetry),
		asynq.Retention(time.Duration(q.cfg.DedupRetentionSec)*time.Second),
	)

	attempts := q.cfg.PublishAttempts
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(attempts-1)), ctx)

	err = backoff.Retry(func() error {
		_, err := q.Client.EnqueueContext(ctx, task)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, asynq.ErrTaskIDConflict), errors.Is(err, asynq.ErrDuplicateTask):
			logrus.WithField("task_id", taskID).Info("stage message already enqueued")
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(err)
		}
		logrus.WithError(err).WithField("task_id", taskID).Warn("enqueue failed, retrying")
		return err
	}, policy)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskID, err)
	}

	logrus.WithFields(logrus.Fields{"task_id": taskID, "queue": queueName}).Info("stage message enqueued")
	return nil
}

// Close releases the client and inspector connections.
func (q *Queue) Close() error {
	if err := q.Inspector.Close(); err != nil {
		return err
	}
	return q.Client.Close()
}
