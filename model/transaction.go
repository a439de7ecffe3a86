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
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// Transaction is a single parsed statement row.
type Transaction struct {
	TransactionID string          `json:"transaction_id"`
	Date          time.Time       `json:"date"`
	Vendor        string          `json:"vendor"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"`
}

// Document is the structured form of a statement produced by the parser. It is not
// mutated once built.
type Document struct {
	CustomerID        string        `json:"customer_id"`
	AccountHolderName string        `json:"account_holder_name"`
	CustomerAddress   string        `json:"customer_address"`
	Filename          string        `json:"filename"`
	Transactions      []Transaction `json:"transactions"`
}

// Customer is a read-only profile owned by the customer directory.
type Customer struct {
	CustomerID string `json:"customer_id"`
	Name       string `json:"name"`
	Address    string `json:"address"`
}

func (d *Document) ToJSON() ([]byte, error) {
	return json.Marshal(d)
}

func (d Document) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.CustomerID, validation.Required),
		validation.Field(&d.Filename, validation.Required),
	)
}

func (c Customer) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.CustomerID, validation.Required),
		validation.Field(&c.Name, validation.Required),
	)
}
