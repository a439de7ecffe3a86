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

// Package analyzer reconciles a parsed statement against the customer profile and its own
// running balance, and flags statistically unusual amounts.
package analyzer

import (
	"math"
	"sort"

	"github.com/blnkfinance/docaudit/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Analyzer reconciles a parsed Document against the customer profile.
type Analyzer struct {
	epsilon float64
}

// New returns an Analyzer that raises a soft flag when an amount lies more than epsilon
// standard deviations from the mean.
func New(epsilon float64) *Analyzer {
	return &Analyzer{epsilon: epsilon}
}

// Analyze never fails; an empty document yields a zero summary and no flags.
func (a *Analyzer) Analyze(doc model.Document, customer model.Customer) model.AnalysisResult {
	hard := identityFlags(doc, customer)
	hard = append(hard, chainFlags(doc.Transactions)...)
	soft := a.outliers(doc.Transactions)

	logrus.WithFields(logrus.Fields{
		"customer_id":  doc.CustomerID,
		"filename":     doc.Filename,
		"transactions": len(doc.Transactions),
		"hard_flags":   len(hard),
		"soft_flags":   len(soft),
	}).Debug("analysis finished")

	return model.AnalysisResult{
		Summary: Summarize(doc.Transactions),
		Alerts:  model.Alerts{HardFlags: hard, SoftFlags: soft},
	}
}

// Summarize totals inflows and outflows and averages the balance column.
func Summarize(txns []model.Transaction) model.Summary {
	var s model.Summary
	balances := decimal.Zero
	for _, t := range txns {
		switch {
		case t.Amount.IsPositive():
			s.TotalInflow = s.TotalInflow.Add(t.Amount)
		case t.Amount.IsNegative():
			s.TotalOutflow = s.TotalOutflow.Add(t.Amount)
		}
		balances = balances.Add(t.Balance)
	}
	s.NetChange = s.TotalInflow.Add(s.TotalOutflow)
	if len(txns) > 0 {
		s.AvgDailyBalance = balances.Div(decimal.NewFromInt(int64(len(txns))))
	}
	return s
}

func identityFlags(doc model.Document, customer model.Customer) []model.Flag {
	var flags []model.Flag
	if customer.Name != doc.AccountHolderName {
		flags = append(flags, model.NameMismatch{
			CustomerProfileName: customer.Name,
			DocumentName:        doc.AccountHolderName,
			EditDistance:        distance(customer.Name, doc.AccountHolderName),
		})
	}
	if customer.Address != doc.CustomerAddress {
		flags = append(flags, model.AddressMismatch{
			CustomerProfileAddress: customer.Address,
			DocumentAddress:        doc.CustomerAddress,
			EditDistance:           distance(customer.Address, doc.CustomerAddress),
		})
	}
	return flags
}

// chainFlags compares the statement order with date order and walks the running balance
// over the date-sorted rows. The first row has no predecessor and is never flagged.
func chainFlags(txns []model.Transaction) []model.Flag {
	sorted := make([]model.Transaction, len(txns))
	copy(sorted, txns)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	var flags []model.Flag
	for i := 1; i < len(txns); i++ {
		t := txns[i]
		if !t.Date.Equal(sorted[i].Date) {
			flags = append(flags, model.DateMismatch{
				TransactionID: t.TransactionID,
				ActualDate:    t.Date,
				ExpectedDate:  sorted[i].Date,
				Vendor:        t.Vendor,
				Balance:       t.Balance,
			})
		}

		cur := sorted[i]
		expected := sorted[i-1].Balance.Add(cur.Amount)
		if !expected.Equal(cur.Balance) {
			flags = append(flags, model.BalanceMismatch{
				Date:            cur.Date,
				Vendor:          cur.Vendor,
				TransactionID:   cur.TransactionID,
				ExpectedBalance: expected,
				ActualBalance:   cur.Balance,
			})
		}
	}
	return flags
}

func (a *Analyzer) outliers(txns []model.Transaction) []model.Flag {
	if len(txns) < 2 {
		return nil
	}
	mean, stdev := meanAndStdDev(txns)
	if !stdev.IsPositive() {
		return nil
	}

	threshold := decimal.NewFromFloat(a.epsilon)
	var flags []model.Flag
	for _, t := range txns {
		deviation := roundDeviation(t.Amount.Sub(mean).Abs().Div(stdev))
		if deviation.GreaterThan(threshold) {
			flags = append(flags, model.StdDevOutlier{
				TransactionID:   t.TransactionID,
				Amount:          t.Amount,
				Date:            t.Date,
				Vendor:          t.Vendor,
				StdDevDeviation: deviation,
				StdDevThreshold: a.epsilon,
			})
		}
	}
	return flags
}

// roundDeviation rounds to 2 places, half to even.
func roundDeviation(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

// meanAndStdDev returns the mean and the sample standard deviation of the amounts.
func meanAndStdDev(txns []model.Transaction) (decimal.Decimal, decimal.Decimal) {
	n := decimal.NewFromInt(int64(len(txns)))
	sum := decimal.Zero
	for _, t := range txns {
		sum = sum.Add(t.Amount)
	}
	mean := sum.Div(n)

	squares := decimal.Zero
	for _, t := range txns {
		d := t.Amount.Sub(mean)
		squares = squares.Add(d.Mul(d))
	}
	variance, _ := squares.Div(n.Sub(decimal.NewFromInt(1))).Float64()
	return mean, decimal.NewFromFloat(math.Sqrt(variance))
}

func distance(a, b string) int {
	return levenshtein.DistanceForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
}
