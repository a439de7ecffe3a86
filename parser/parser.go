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

// Package parser turns acquired statement text into a structured document.
package parser

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/blnkfinance/docaudit/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	minNameLength    = 1
	minAddressLength = 5
)

var (
	holderPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Account\s*Holder\s*:\s*(.*)`),
		regexp.MustCompile(`(?i)Name\s*:\s*(.*)`),
	}
	holderStop = regexp.MustCompile(`(?i)Address|Date|Statement|\n`)

	addressPattern = regexp.MustCompile(`(?i)Address\s*:\s*(.*)`)
	addressStop    = regexp.MustCompile(`(?i)Account|Date|Statement|\n\n`)
	streetPattern  = regexp.MustCompile(`(?i)\d+\s+[A-Za-z\s]+(Street|St|Avenue|Ave|Road|Rd|Way|Lane|Ln|Drive|Dr)`)

	artifacts       = regexp.MustCompile(`[|*]`)
	vendorArtifacts = regexp.MustCompile(`[|€$¥]`)

	datePattern   = regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{2,4})`)
	amountPattern = regexp.MustCompile(`([-+]?\d{1,3}(?:,\d{3})*\.\d{2}|[-+]?\d+\.\d{2})`)

	headerKeywords = []string{"DATE", "VENDOR", "AMOUNT", "BALANCE"}
	dateLayouts    = []string{"2/1/2006", "2/1/06"}
)

// Parser turns acquired statement text into a Document.
type Parser struct {
	minTransactions int
}

// New returns a Parser that rejects documents with fewer than minTransactions rows.
func New(minTransactions int) *Parser {
	return &Parser{minTransactions: minTransactions}
}

// Parse extracts the account holder, the address and the transaction table from text.
// Failures are reported as *ValidationError.
func (p *Parser) Parse(text, customerID, filename string) (model.Document, error) {
	name := extractAccountHolder(text)
	if name == "" {
		return model.Document{}, missingField(FieldAccountHolderName)
	}

	address := extractAddress(text)
	if address == "" {
		return model.Document{}, missingField(FieldCustomerAddress)
	}

	txns := extractTransactions(text, customerID, filename)
	if len(txns) < p.minTransactions {
		return model.Document{}, insufficientTransactions(len(txns), p.minTransactions)
	}

	return model.Document{
		CustomerID:        customerID,
		AccountHolderName: name,
		CustomerAddress:   address,
		Filename:          filename,
		Transactions:      txns,
	}, nil
}

func extractAccountHolder(text string) string {
	for _, pattern := range holderPatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		name := clean(holderStop.Split(strings.TrimSpace(match[1]), 2)[0])
		if len(name) > minNameLength {
			return name
		}
	}
	return ""
}

func extractAddress(text string) string {
	if match := addressPattern.FindStringSubmatch(text); match != nil {
		address := clean(addressStop.Split(strings.TrimSpace(match[1]), 2)[0])
		if len(address) > minAddressLength {
			return address
		}
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	for i, line := range lines {
		if !streetPattern.MatchString(line) {
			continue
		}
		address := line
		if i+1 < len(lines) {
			address += ", " + lines[i+1]
		}
		if address = clean(address); len(address) > minAddressLength {
			return address
		}
	}
	return ""
}

func extractTransactions(text, customerID, filename string) []model.Transaction {
	lines := strings.Split(text, "\n")

	start := -1
	for i, line := range lines {
		upper := strings.ToUpper(line)
		for _, keyword := range headerKeywords {
			if strings.Contains(upper, keyword) {
				start = i + 1
				break
			}
		}
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		return nil
	}

	stem := Stem(filename)
	var txns []model.Transaction
	for _, line := range lines[start:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		txn, err := parseRow(line)
		if err != nil {
			logrus.WithFields(logrus.Fields{"row": line, "filename": filename}).WithError(err).Debug("skipping statement row")
			continue
		}
		txn.TransactionID = TransactionID(customerID, stem, len(txns)+1)
		txns = append(txns, txn)
	}
	return txns
}

func parseRow(line string) (model.Transaction, error) {
	loc := datePattern.FindStringIndex(line)
	if loc == nil {
		return model.Transaction{}, fmt.Errorf("no date")
	}
	dateText := line[loc[0]:loc[1]]
	rest := strings.TrimSpace(line[:loc[0]] + line[loc[1]:])

	spans := amountPattern.FindAllStringIndex(rest, -1)
	if len(spans) < 2 {
		return model.Transaction{}, fmt.Errorf("found %d decimal values, need amount and balance", len(spans))
	}
	amountSpan, balanceSpan := spans[len(spans)-2], spans[len(spans)-1]
	amountText := rest[amountSpan[0]:amountSpan[1]]
	balanceText := rest[balanceSpan[0]:balanceSpan[1]]

	// cut by position, right to left, so one token never eats into another
	vendor := rest[:balanceSpan[0]] + rest[balanceSpan[1]:]
	vendor = vendor[:amountSpan[0]] + vendor[amountSpan[1]:]
	vendor = strings.TrimSpace(vendorArtifacts.ReplaceAllString(strings.TrimSpace(vendor), ""))

	amount, err := parseDecimal(amountText)
	if err != nil {
		return model.Transaction{}, err
	}
	balance, err := parseDecimal(balanceText)
	if err != nil {
		return model.Transaction{}, err
	}
	date, err := parseDate(dateText)
	if err != nil {
		return model.Transaction{}, err
	}

	return model.Transaction{Date: date, Vendor: vendor, Amount: amount, Balance: balance}, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimPrefix(strings.ReplaceAll(s, ",", ""), "+")
	return decimal.NewFromString(s)
}

func parseDate(s string) (time.Time, error) {
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// Stem is the file name without directories or its last extension, remaining dots replaced by underscores.
func Stem(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ReplaceAll(base, ".", "_")
}

// TransactionID builds the deterministic id of the n-th accepted row.
func TransactionID(customerID, stem string, n int) string {
	return fmt.Sprintf("%s_%s_%03d", customerID, stem, n)
}

func clean(s string) string {
	return strings.TrimSpace(artifacts.ReplaceAllString(s, ""))
}
