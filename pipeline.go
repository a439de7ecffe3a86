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
	"strings"

	"github.com/blnkfinance/docaudit/model"
	"github.com/sirupsen/logrus"
)

func decode(body json.RawMessage, v interface{ Validate() error }) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

// extract resolves the customer, acquires the statement text and parses it.
func (a *Auditor) extract(ctx context.Context, job *model.Job, body json.RawMessage) (interface{}, error) {
	ctx, span := tracer.Start(ctx, "Extracting document")
	defer span.End()

	var p model.ExtractionPayload
	if err := decode(body, &p); err != nil {
		return nil, err
	}

	customer, err := a.directory.Lookup(ctx, p.CustomerID)
	if err != nil {
		return nil, err
	}

	text, err := a.acquirer.Acquire(ctx, p.FilePath)
	if err != nil {
		return nil, err
	}

	doc, err := a.parser.Parse(text.Text, p.CustomerID, p.Filename)
	if err != nil {
		return nil, err
	}

	a.logger(model.StageExtraction, job.JobID).WithFields(logrus.Fields{
		"method":       text.Method,
		"confidence":   text.Confidence,
		"transactions": len(doc.Transactions),
	}).Info("document extracted")

	return model.AnalysisPayload{
		Customer:         customer,
		Document:         doc,
		ExtractionMethod: text.Method,
		Confidence:       text.Confidence,
	}, nil
}

func (a *Auditor) analyze(ctx context.Context, _ *model.Job, body json.RawMessage) (interface{}, error) {
	_, span := tracer.Start(ctx, "Analyzing document")
	defer span.End()

	var p model.AnalysisPayload
	if err := decode(body, &p); err != nil {
		return nil, err
	}

	result := a.analyzer.Analyze(p.Document, p.Customer)
	return model.ReportPayload{
		Customer: p.Customer,
		Filename: p.Document.Filename,
		Summary:  result.Summary,
		Alerts:   result.Alerts,
	}, nil
}

// report stamps the analysis with the job id and writes it to the report store.
func (a *Auditor) report(ctx context.Context, job *model.Job, body json.RawMessage) (interface{}, error) {
	ctx, span := tracer.Start(ctx, "Writing report")
	defer span.End()

	var p model.ReportPayload
	if err := decode(body, &p); err != nil {
		return nil, err
	}

	report := model.Report{
		ReportPayload: p,
		JobID:         job.JobID,
		GeneratedAt:   a.now().UTC(),
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, err
	}

	location, err := a.reports.Store(ctx, ReportName(p.Customer.Name, job.JobID), data)
	if err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}
	report.Location = location
	return report, nil
}

// reportNameReplacer keeps the customer name a single path element in every store.
var reportNameReplacer = strings.NewReplacer(" ", "_", "/", "_", `\`, "_")

// ReportName is report_{customer name with spaces and path separators as underscores}_{first 8 characters of the job id}.json.
func ReportName(customerName, jobID string) string {
	return fmt.Sprintf("report_%s_%s.json", reportNameReplacer.Replace(customerName), model.ShortID(jobID, 8))
}
