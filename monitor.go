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
	"sync"
	"time"

	"github.com/blnkfinance/docaudit/model"
	"github.com/sirupsen/logrus"
)

// stallMarkerTTL bounds how long a reported stall is remembered.
const stallMarkerTTL = 7 * 24 * time.Hour

// StallMonitor periodically reports jobs whose status has not moved within the stall threshold.
// It only observes; stalled jobs are left for Requeue.
type StallMonitor struct {
	auditor      *Auditor
	batchSize    int
	pollInterval time.Duration
	threshold    time.Duration
	stopCh       chan struct{}
	wg           sync.WaitGroup
	running      bool
	mu           sync.Mutex
}

func NewStallMonitor(a *Auditor) *StallMonitor {
	cfg := a.cfg.Monitor
	m := &StallMonitor{
		auditor:      a,
		batchSize:    cfg.BatchSize,
		pollInterval: time.Duration(cfg.PollIntervalSec) * time.Second,
		threshold:    time.Duration(cfg.StallThresholdSec) * time.Second,
		stopCh:       make(chan struct{}),
	}
	if m.batchSize <= 0 {
		m.batchSize = 100
	}
	if m.pollInterval <= 0 {
		m.pollInterval = 30 * time.Second
	}
	if m.threshold <= 0 {
		m.threshold = 15 * time.Minute
	}
	return m
}

func (m *StallMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(ctx)
	}()

	logrus.WithField("threshold", m.threshold).Info("stall monitor started")
}

func (m *StallMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	logrus.Info("stall monitor stopped")
}

func (m *StallMonitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *StallMonitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Scan(ctx)
		}
	}
}

// Scan reports every newly stalled job once and returns how many were reported.
func (m *StallMonitor) Scan(ctx context.Context) int {
	a := m.auditor
	cutoff := a.now().Add(-m.threshold)
	jobs, err := a.datasource.GetStalledJobs(ctx, cutoff, m.batchSize)
	if err != nil {
		logrus.WithError(err).Error("failed to load stalled jobs")
		return 0
	}

	reported := 0
	for i := range jobs {
		job := &jobs[i]
		fresh, err := a.redis.SetNX(ctx, stallMarker(job), a.worker(), stallMarkerTTL).Result()
		if err != nil {
			logrus.WithError(err).WithField("job_id", job.JobID).Warn("could not mark stalled job")
			continue
		}
		if !fresh {
			continue
		}

		since := a.now().Sub(job.UpdatedAt).Round(time.Second)
		a.logger("MONITOR", job.JobID).WithFields(logrus.Fields{
			"status":  job.CurrentStatus,
			"attempt": job.Attempt,
			"since":   since.String(),
		}).Warn("job stalled")
		a.notify(ctx, EventJobStalled, job, job.CurrentStatus, fmt.Sprintf("no progress for %s", since), nil)
		reported++
	}
	return reported
}

// stallMarker is unique per job attempt and status change, so a job that moves and stalls
// again is reported again.
func stallMarker(job *model.Job) string {
	return fmt.Sprintf("docaudit:stalled:%s:%d:%d", job.JobID, job.Attempt, job.UpdatedAt.UnixNano())
}
