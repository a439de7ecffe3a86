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

// Package docaudit drives statement documents through extraction, analysis and reporting,
// recording every status change in the audit store.
package docaudit

import (
	"context"
	"embed"
	"errors"
	"time"

	"github.com/blnkfinance/docaudit/acquisition"
	"github.com/blnkfinance/docaudit/analyzer"
	"github.com/blnkfinance/docaudit/config"
	"github.com/blnkfinance/docaudit/database"
	"github.com/blnkfinance/docaudit/directory"
	"github.com/blnkfinance/docaudit/internal/cache"
	redis_db "github.com/blnkfinance/docaudit/internal/redis-db"
	"github.com/blnkfinance/docaudit/internal/reportstore"
	"github.com/blnkfinance/docaudit/parser"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

var tracer = otel.Tracer("docaudit")

// TextAcquirer produces raw text for a stored statement file.
type TextAcquirer interface {
	Acquire(ctx context.Context, path string) (acquisition.Result, error)
}

// Auditor owns the pipeline stages and the audit read side.
type Auditor struct {
	datasource database.IDataSource
	queue      Publisher
	directory  directory.Directory
	acquirer   TextAcquirer
	parser     *parser.Parser
	analyzer   *analyzer.Analyzer
	reports    reportstore.Store
	redis      redis.UniversalClient
	cfg        *config.Configuration
	now        func() time.Time
}

// Dependencies are the collaborators an Auditor is built from.
type Dependencies struct {
	Datasource database.IDataSource
	Queue      Publisher
	Directory  directory.Directory
	Acquirer   TextAcquirer
	Reports    reportstore.Store
	Redis      redis.UniversalClient
	Config     *config.Configuration
}

func New(deps Dependencies) (*Auditor, error) {
	switch {
	case deps.Datasource == nil:
		return nil, errors.New("datasource is required")
	case deps.Queue == nil:
		return nil, errors.New("queue is required")
	case deps.Redis == nil:
		return nil, errors.New("redis client is required")
	case deps.Config == nil:
		return nil, errors.New("configuration is required")
	}

	thresholds := deps.Config.Thresholds()
	a := &Auditor{
		datasource: deps.Datasource,
		queue:      deps.Queue,
		directory:  deps.Directory,
		acquirer:   deps.Acquirer,
		parser:     parser.New(thresholds.MinTransactions),
		analyzer:   analyzer.New(thresholds.SoftFlagEpsilon),
		reports:    deps.Reports,
		redis:      deps.Redis,
		cfg:        deps.Config,
		now:        time.Now,
	}
	if a.directory == nil {
		a.directory = directory.NewDBDirectory(deps.Datasource)
	}
	if a.acquirer == nil {
		a.acquirer = acquisition.New(deps.Config.Acquisition, thresholds.OCRConfidenceFloor)
	}
	if a.reports == nil {
		a.reports = reportstore.NewFileStore(deps.Config.Storage.ReportsDir)
	}
	return a, nil
}

// NewDocAudit wires an Auditor from the stored configuration.
func NewDocAudit(db database.IDataSource) (*Auditor, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	redisClient, err := redis_db.NewRedisClient(redis_db.SplitAddresses(cfg.Redis.Dns), cfg.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	queue, err := NewQueue(cfg)
	if err != nil {
		return nil, err
	}
	reports, err := reportstore.NewFromConfig(cfg.Storage)
	if err != nil {
		return nil, err
	}

	var customerCache cache.Cache
	if cfg.Directory.CacheTTLSec > 0 {
		customerCache = cache.NewRedisCache(redisClient.Client(), time.Minute)
	}

	return New(Dependencies{
		Datasource: db,
		Queue:      queue,
		Directory:  directory.FromConfig(cfg.Directory, db, customerCache),
		Reports:    reports,
		Redis:      redisClient.Client(),
		Config:     cfg,
	})
}

func (a *Auditor) worker() string {
	return a.cfg.WorkerName
}

func (a *Auditor) logger(stage interface{}, jobID string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"stage":  stage,
		"job_id": jobID,
		"worker": a.worker(),
	})
}
