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
	"fmt"
	"net/http"
	"time"

	"github.com/blnkfinance/docaudit/config"
	"github.com/blnkfinance/docaudit/internal/request"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const (
	EventJobCompleted   = "job.completed"
	EventJobFailed      = "job.failed"
	EventJobQueueFailed = "job.queue_failed"
	EventJobStalled     = "job.stalled"
)

// Webhook represents the structure of a webhook notification.
type Webhook struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"data"`
}

// JobNotice is the payload of every job.* webhook.
type JobNotice struct {
	JobID      string      `json:"job_id"`
	CustomerID string      `json:"customer_id"`
	Filename   string      `json:"filename"`
	Status     string      `json:"status"`
	Attempt    int         `json:"attempt"`
	Error      string      `json:"error,omitempty"`
	Report     interface{} `json:"report,omitempty"`
	At         time.Time   `json:"at"`
}

// SendWebhook enqueues a webhook notification. It is a no-op when no webhook url is configured.
func (q *Queue) SendWebhook(ctx context.Context, hook Webhook) error {
	if q.webhook.Url == "" {
		return nil
	}

	payload, err := json.Marshal(hook)
	if err != nil {
		return err
	}
	task := asynq.NewTask(q.cfg.WebhookQueue, payload, asynq.Queue(q.cfg.WebhookQueue), asynq.MaxRetry(q.cfg.MaxRetry))
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue webhook %s: %w", hook.Event, err)
	}
	logrus.WithFields(logrus.Fields{"event": hook.Event, "task_id": info.ID}).Debug("webhook enqueued")
	return nil
}

func processHTTP(ctx context.Context, cfg config.WebhookConfig, hook Webhook) error {
	body, err := request.ToJsonReq(hook)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Url, body)
	if err != nil {
		return err
	}
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	_, err = request.Call(req, nil)
	return err
}

// ProcessWebhook delivers a queued webhook. Delivery errors are returned so the broker retries.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	var hook Webhook
	if err := json.Unmarshal(task.Payload(), &hook); err != nil {
		logrus.WithError(err).Error("invalid webhook payload")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if err := processHTTP(ctx, conf.Notification.Webhook, hook); err != nil {
		logrus.WithError(err).WithField("event", hook.Event).Warn("webhook delivery failed")
		return err
	}
	logrus.WithField("event", hook.Event).Info("webhook delivered")
	return nil
}
