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
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/blnkfinance/docaudit"
	"github.com/blnkfinance/docaudit/directory"
	"github.com/spf13/cobra"
)

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		log.Fatalf("Error printing result: %v\n", err)
	}
	fmt.Println(string(data))
}

// submitCommands queues a statement that is already readable by the workers.
func submitCommands(app *auditorInstance) *cobra.Command {
	var customerID, filename string
	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "submit a statement file for processing",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			job, err := app.auditor.Submit(context.Background(), docaudit.Submission{
				CustomerID: customerID,
				FilePath:   args[0],
				Filename:   filename,
			})
			if job != nil {
				printJSON(job)
			}
			if err != nil {
				log.Fatal(err)
			}
		},
	}
	cmd.Flags().StringVar(&customerID, "customer", "", "customer id the statement belongs to")
	cmd.Flags().StringVar(&filename, "filename", "", "display name of the statement, defaults to the file name")
	_ = cmd.MarkFlagRequired("customer")

	return cmd
}

func statusCommands(app *auditorInstance) *cobra.Command {
	var withEvents bool
	cmd := &cobra.Command{
		Use:   "status <job_id>",
		Short: "show a job and its audit trail",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			job, err := app.auditor.GetJob(ctx, args[0])
			if err != nil {
				log.Fatal(err)
			}
			if !withEvents {
				printJSON(job)
				return
			}

			events, err := app.auditor.GetJobEvents(ctx, args[0])
			if err != nil {
				log.Fatal(err)
			}
			printJSON(map[string]interface{}{"job": job, "events": events})
		},
	}
	cmd.Flags().BoolVar(&withEvents, "events", true, "include the audit trail")

	return cmd
}

func requeueCommands(app *auditorInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requeue <job_id>",
		Short: "restart a failed or stalled job from extraction",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			job, err := app.auditor.Requeue(context.Background(), args[0])
			if job != nil {
				printJSON(job)
			}
			if err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}

func customerCommands(app *auditorInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customers",
		Short: "manage the customer directory",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "seed <file.json>",
		Short: "upsert customers from a {id: {name, address}} json file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			f, err := os.Open(args[0])
			if err != nil {
				log.Fatal(err)
			}
			defer f.Close()

			n, err := directory.Seed(context.Background(), app.db, f)
			if err != nil {
				log.Fatal(err)
			}
			fmt.Printf("Seeded %d customers!\n", n)
		},
	})

	return cmd
}
