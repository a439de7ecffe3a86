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
	"fmt"
	"log"
	"os"

	"github.com/blnkfinance/docaudit"
	"github.com/blnkfinance/docaudit/config"
	"github.com/blnkfinance/docaudit/database"
	"github.com/blnkfinance/docaudit/internal/notification"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// DocAudit represents the CLI application, encapsulating the root Cobra command.
type DocAudit struct {
	cmd *cobra.Command
}

// auditorInstance holds what every subcommand needs once configuration is loaded.
type auditorInstance struct {
	auditor *docaudit.Auditor
	db      database.IDataSource
	cnf     *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and wires the auditor before any subcommand runs.
func preRun(app *auditorInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(*configFile); err != nil {
			log.Fatal("error loading config ", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		db, auditor, err := setupAuditor(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.auditor = auditor
		app.db = db
		app.cnf = cnf
		return nil
	}
}

func setupAuditor(cfg *config.Configuration) (database.IDataSource, *docaudit.Auditor, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("error getting datasource: %v", err)
	}

	auditor, err := docaudit.NewDocAudit(db)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating auditor: %v", err)
	}
	return db, auditor, nil
}

func NewCLI() *DocAudit {
	var configFile string
	app := &auditorInstance{}

	var rootCmd = &cobra.Command{
		Use:   "docaudit",
		Short: "Bank statement ingest and reconciliation pipeline",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./docaudit.json", "Configuration file for docaudit")
	rootCmd.PersistentPreRunE = preRun(app, &configFile)

	rootCmd.AddCommand(serverCommands(app))
	rootCmd.AddCommand(workerCommands(app))
	rootCmd.AddCommand(migrateCommands(app))
	rootCmd.AddCommand(submitCommands(app))
	rootCmd.AddCommand(statusCommands(app))
	rootCmd.AddCommand(requeueCommands(app))
	rootCmd.AddCommand(customerCommands(app))
	rootCmd.AddCommand(configCommands(app))

	return &DocAudit{cmd: rootCmd}
}

func (d DocAudit) executeCLI() {
	if err := d.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
