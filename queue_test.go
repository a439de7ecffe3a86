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
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/blnkfinance/docaudit/config"
	"github.com/blnkfinance/docaudit/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis, *config.Configuration) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := testConfig(t.TempDir())
	cfg.Redis.Dns = mr.Addr()

	q, err := NewQueue(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q, mr, cfg
}

func pendingKey(queue string) string {
	return "asynq:{" + queue + "}:pending"
}

func TestQueueName(t *testing.T) {
	cfg := testConfig(t.TempDir()).Queue
	assert.Equal(t, "raw_extraction", QueueName(cfg, model.StageExtraction))
	assert.Equal(t, "extracted_data", QueueName(cfg, model.StageAnalysis))
	assert.Equal(t, "analysis_results", QueueName(cfg, model.StageReporting))
	assert.Empty(t, QueueName(cfg, model.Stage("ARCHIVE")))
}

func TestTaskID(t *testing.T) {
	assert.Equal(t, "job-1:ANALYSIS:2", TaskID("job-1", model.StageAnalysis, 2))
}

func TestRedisOpt(t *testing.T) {
	cfg := &config.Configuration{Redis: config.RedisConfig{Dns: "redis://:secret@cache.local:6380/2"}}
	opt, err := RedisOpt(cfg)
	require.NoError(t, err)
	assert.Equal(t, "cache.local:6380", opt.Addr)
	assert.Equal(t, "secret", opt.Password)
	assert.Equal(t, 2, opt.DB)

	_, err = RedisOpt(&config.Configuration{})
	assert.Error(t, err)
}

func TestPublish_EnqueuesOnStageQueue(t *testing.T) {
	q, mr, _ := newTestQueue(t)
	job := newJob(model.StatusUploaded)
	msg := mustMessage(t, job, extractionBody(job))

	require.NoError(t, q.Publish(context.Background(), model.StageExtraction, msg))

	pending, err := mr.List(pendingKey("raw_extraction"))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, TaskID(job.JobID, model.StageExtraction, job.Attempt), pending[0])

	payload := mr.HGet("asynq:{raw_extraction}:t:"+pending[0], "msg")
	assert.NotEmpty(t, payload)
}

func TestPublish_DuplicateHopIsSuccess(t *testing.T) {
	q, mr, _ := newTestQueue(t)
	job := newJob(model.StatusUploaded)
	msg := mustMessage(t, job, extractionBody(job))

	require.NoError(t, q.Publish(context.Background(), model.StageExtraction, msg))
	require.NoError(t, q.Publish(context.Background(), model.StageExtraction, msg))

	pending, err := mr.List(pendingKey("raw_extraction"))
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	// a new attempt is a different hop
	msg.Attempt = 2
	require.NoError(t, q.Publish(context.Background(), model.StageExtraction, msg))
	pending, err = mr.List(pendingKey("raw_extraction"))
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestPublish_UnknownStage(t *testing.T) {
	q, _, _ := newTestQueue(t)
	err := q.Publish(context.Background(), model.Stage("ARCHIVE"), model.Message{CorrelationID: "job-1", Attempt: 1, Body: json.RawMessage(`{}`)})
	assert.ErrorContains(t, err, "no queue configured")
}

func TestPublish_BrokerDown(t *testing.T) {
	q, mr, _ := newTestQueue(t)
	mr.Close()

	job := newJob(model.StatusUploaded)
	err := q.Publish(context.Background(), model.StageAnalysis, mustMessage(t, job, extractionBody(job)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), TaskID(job.JobID, model.StageAnalysis, job.Attempt))
}
