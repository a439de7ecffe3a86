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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/blnkfinance/docaudit"
	"github.com/blnkfinance/docaudit/config"
	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

// initializeQueues gives every stage queue the same weight. Webhooks are drained faster
// so notifications do not lag behind the pipeline.
func initializeQueues(conf *config.Configuration) map[string]int {
	queues := map[string]int{
		conf.Queue.WebhookQueue: 3,
	}
	for _, stage := range []string{conf.Queue.ExtractionQueue, conf.Queue.AnalysisQueue, conf.Queue.ReportingQueue} {
		queues[stage] = 1
	}
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	opt, err := docaudit.RedisOpt(conf)
	if err != nil {
		return nil, err
	}

	return asynq.NewServer(opt, asynq.Config{
		Concurrency: 1,
		Queues:      queues,
		Logger:      logrus.StandardLogger(),
	}), nil
}

func startMonitoring(conf *config.Configuration) error {
	opt, err := docaudit.RedisOpt(conf)
	if err != nil {
		return err
	}
	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: opt,
	})

	go func() {
		monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
		log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
		if err := http.ListenAndServe(monitoringAddr, h); err != nil {
			logrus.WithError(err).Error("could not start asynqmon server")
		}
	}()
	return nil
}

// workerCommands defines the "workers" command. A worker consumes every stage queue and the
// webhook queue, and runs the stalled job monitor alongside.
func workerCommands(app *auditorInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start docaudit workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			conf := app.cnf

			shutdown, err := initializeObservability(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			srv, err := initializeWorkerServer(conf, initializeQueues(conf))
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			app.auditor.RegisterHandlers(mux)

			if err := startMonitoring(conf); err != nil {
				log.Fatal(err)
			}

			monitor := docaudit.NewStallMonitor(app.auditor)
			monitor.Start(ctx)
			defer monitor.Stop()

			logrus.WithField("worker", conf.WorkerName).Info("workers started")
			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
