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

package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	FlagNameMismatch    = "name_mismatch"
	FlagAddressMismatch = "address_mismatch"
	FlagDateMismatch    = "date_mismatch"
	FlagBalanceMismatch = "balance_mismatch"
	FlagStdDevOutlier   = "std_dev_outlier"
)

// Flag is implemented by the closed set of finding types below.
type Flag interface {
	Type() string
	flag()
}

// NameMismatch marks an account holder name that differs from the customer profile.
type NameMismatch struct {
	CustomerProfileName string `json:"customer_profile_name"`
	DocumentName        string `json:"document_name"`
	EditDistance        int    `json:"edit_distance"`
}

// AddressMismatch marks a statement address that differs from the customer profile.
type AddressMismatch struct {
	CustomerProfileAddress string `json:"customer_profile_address"`
	DocumentAddress        string `json:"document_address"`
	EditDistance           int    `json:"edit_distance"`
}

// DateMismatch marks a row whose position in the statement disagrees with date order.
type DateMismatch struct {
	TransactionID string          `json:"transaction_id"`
	ActualDate    time.Time       `json:"actual_date"`
	ExpectedDate  time.Time       `json:"expected_date"`
	Vendor        string          `json:"vendor"`
	Balance       decimal.Decimal `json:"balance"`
}

// BalanceMismatch marks a break in the running balance chain.
type BalanceMismatch struct {
	Date            time.Time       `json:"date"`
	Vendor          string          `json:"vendor"`
	TransactionID   string          `json:"transaction_id"`
	ExpectedBalance decimal.Decimal `json:"expected_balance"`
	ActualBalance   decimal.Decimal `json:"actual_balance"`
}

// StdDevOutlier marks an amount more than StdDevThreshold standard deviations from the mean.
type StdDevOutlier struct {
	TransactionID   string          `json:"transaction_id"`
	Amount          decimal.Decimal `json:"amount"`
	Date            time.Time       `json:"date"`
	Vendor          string          `json:"vendor"`
	StdDevDeviation decimal.Decimal `json:"std_dev_deviation"`
	StdDevThreshold float64         `json:"std_dev_threshold"`
}

func (NameMismatch) Type() string    { return FlagNameMismatch }
func (AddressMismatch) Type() string { return FlagAddressMismatch }
func (DateMismatch) Type() string    { return FlagDateMismatch }
func (BalanceMismatch) Type() string { return FlagBalanceMismatch }
func (StdDevOutlier) Type() string   { return FlagStdDevOutlier }

func (NameMismatch) flag()    {}
func (AddressMismatch) flag() {}
func (DateMismatch) flag()    {}
func (BalanceMismatch) flag() {}
func (StdDevOutlier) flag()   {}

func (f NameMismatch) MarshalJSON() ([]byte, error) {
	type alias NameMismatch
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{f.Type(), alias(f)})
}

func (f AddressMismatch) MarshalJSON() ([]byte, error) {
	type alias AddressMismatch
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{f.Type(), alias(f)})
}

func (f DateMismatch) MarshalJSON() ([]byte, error) {
	type alias DateMismatch
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{f.Type(), alias(f)})
}

func (f BalanceMismatch) MarshalJSON() ([]byte, error) {
	type alias BalanceMismatch
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{f.Type(), alias(f)})
}

func (f StdDevOutlier) MarshalJSON() ([]byte, error) {
	type alias StdDevOutlier
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{f.Type(), alias(f)})
}

// DecodeFlag decodes a single flag using its "type" discriminator.
func DecodeFlag(data []byte) (Flag, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	var (
		f   Flag
		err error
	)
	switch head.Type {
	case FlagNameMismatch:
		var v NameMismatch
		err = json.Unmarshal(data, &v)
		f = v
	case FlagAddressMismatch:
		var v AddressMismatch
		err = json.Unmarshal(data, &v)
		f = v
	case FlagDateMismatch:
		var v DateMismatch
		err = json.Unmarshal(data, &v)
		f = v
	case FlagBalanceMismatch:
		var v BalanceMismatch
		err = json.Unmarshal(data, &v)
		f = v
	case FlagStdDevOutlier:
		var v StdDevOutlier
		err = json.Unmarshal(data, &v)
		f = v
	default:
		return nil, fmt.Errorf("unknown flag type %q", head.Type)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

type Summary struct {
	TotalInflow     decimal.Decimal `json:"total_inflow"`
	TotalOutflow    decimal.Decimal `json:"total_outflow"`
	NetChange       decimal.Decimal `json:"net_change"`
	AvgDailyBalance decimal.Decimal `json:"avg_daily_balance"`
}

type Alerts struct {
	HardFlags []Flag `json:"hard_flags"`
	SoftFlags []Flag `json:"soft_flags"`
}

type AnalysisResult struct {
	Summary Summary `json:"summary"`
	Alerts  Alerts  `json:"alerts"`
}

func (a Alerts) MarshalJSON() ([]byte, error) {
	hard, soft := a.HardFlags, a.SoftFlags
	if hard == nil {
		hard = []Flag{}
	}
	if soft == nil {
		soft = []Flag{}
	}
	return json.Marshal(struct {
		HardFlags []Flag `json:"hard_flags"`
		SoftFlags []Flag `json:"soft_flags"`
	}{hard, soft})
}

func (a *Alerts) UnmarshalJSON(data []byte) error {
	var raw struct {
		HardFlags []json.RawMessage `json:"hard_flags"`
		SoftFlags []json.RawMessage `json:"soft_flags"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.HardFlags = make([]Flag, 0, len(raw.HardFlags))
	for _, r := range raw.HardFlags {
		f, err := DecodeFlag(r)
		if err != nil {
			return err
		}
		a.HardFlags = append(a.HardFlags, f)
	}

	a.SoftFlags = make([]Flag, 0, len(raw.SoftFlags))
	for _, r := range raw.SoftFlags {
		f, err := DecodeFlag(r)
		if err != nil {
			return err
		}
		a.SoftFlags = append(a.SoftFlags, f)
	}
	return nil
}
