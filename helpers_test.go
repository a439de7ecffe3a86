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
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/blnkfinance/docaudit/acquisition"
	"github.com/blnkfinance/docaudit/config"
	"github.com/blnkfinance/docaudit/database/mocks"
	"github.com/blnkfinance/docaudit/directory"
	"github.com/blnkfinance/docaudit/model"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/wacul/ptr"
)

const testWorker = "test-worker"

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type published struct {
	stage model.Stage
	msg   model.Message
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []published
	webhooks []Webhook
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, stage model.Stage, msg model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, published{stage: stage, msg: msg})
	return nil
}

func (f *fakePublisher) SendWebhook(_ context.Context, hook Webhook) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhooks = append(f.webhooks, hook)
	return nil
}

func (f *fakePublisher) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, w := range f.webhooks {
		out = append(out, w.Event)
	}
	return out
}

type stubAcquirer struct {
	result acquisition.Result
	err    error
	paths  []string
}

func (s *stubAcquirer) Acquire(_ context.Context, path string) (acquisition.Result, error) {
	s.paths = append(s.paths, path)
	return s.result, s.err
}

type stubDirectory map[string]model.Customer

func (d stubDirectory) Lookup(_ context.Context, id string) (model.Customer, error) {
	c, ok := d[id]
	if !ok {
		return model.Customer{}, fmt.Errorf("%w: %s", directory.ErrCustomerNotFound, id)
	}
	return c, nil
}

type harness struct {
	auditor *Auditor
	ds      *mocks.MockDataSource
	pub     *fakePublisher
	acq     *stubAcquirer
	redis   *miniredis.Miniredis
	cfg     *config.Configuration
}

var jane = model.Customer{CustomerID: "CUST001", Name: "Jane Doe", Address: "12 High Street, Leeds"}

func testConfig(dir string) *config.Configuration {
	return &config.Configuration{
		ProjectName: "docaudit",
		WorkerName:  testWorker,
		Queue: config.QueueConfig{
			ExtractionQueue:   "raw_extraction",
			AnalysisQueue:     "extracted_data",
			ReportingQueue:    "analysis_results",
			WebhookQueue:      "new:webhook",
			MaxRetry:          5,
			PublishAttempts:   1,
			DedupRetentionSec: 3600,
			StageLockTTLSec:   60,
		},
		Limits: config.ThresholdConfig{MinTransactions: ptr.Int(2)},
		Storage: config.StorageConfig{
			UploadDir:     filepath.Join(dir, "uploads"),
			ReportsDir:    filepath.Join(dir, "reports"),
			MaxFileSizeMB: 1,
		},
		Monitor: config.MonitorConfig{PollIntervalSec: 1, StallThresholdSec: 900, BatchSize: 10},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig(t.TempDir())
	cfg.Redis.Dns = mr.Addr()
	config.MockConfig(cfg)

	h := &harness{
		ds:    new(mocks.MockDataSource),
		pub:   &fakePublisher{},
		acq:   &stubAcquirer{result: acquisition.Result{Text: statementText(3), Confidence: 100, Method: acquisition.MethodPDFText}},
		redis: mr,
		cfg:   cfg,
	}
	a, err := New(Dependencies{
		Datasource: h.ds,
		Queue:      h.pub,
		Directory:  stubDirectory{jane.CustomerID: jane},
		Acquirer:   h.acq,
		Redis:      client,
		Config:     cfg,
	})
	require.NoError(t, err)
	a.now = func() time.Time { return testNow }
	h.auditor = a
	return h
}

func statementText(rows int) string {
	var b strings.Builder
	b.WriteString("Account Holder: Jane Doe\nAddress: 12 High Street, Leeds\n\nDate Vendor Amount Balance\n")
	balance := 500
	for i := 1; i <= rows; i++ {
		balance -= 25
		fmt.Fprintf(&b, "%02d/04/2024 %s -25.00 %d.00\n", i, gofakeit.Company(), balance)
	}
	return b.String()
}

func newJob(status string) *model.Job {
	return &model.Job{
		JobID:         gofakeit.UUID(),
		CustomerID:    jane.CustomerID,
		Filename:      "april.pdf",
		FilePath:      "/uploads/april.pdf",
		Attempt:       1,
		CurrentStatus: status,
		CreatedAt:     testNow.Add(-time.Minute),
		UpdatedAt:     testNow.Add(-time.Minute),
	}
}

func mustMessage(t *testing.T, job *model.Job, body interface{}) model.Message {
	t.Helper()
	msg, err := model.NewMessage(job.JobID, job.Attempt, body)
	require.NoError(t, err)
	return msg
}

func extractionBody(job *model.Job) model.ExtractionPayload {
	return model.ExtractionPayload{JobID: job.JobID, FilePath: job.FilePath, CustomerID: job.CustomerID, Filename: job.Filename}
}

func decodeBody(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v))
}
