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

package parser

import (
	"errors"
	"fmt"
)

// Kind classifies a ValidationError.
type Kind string

const (
	KindMissingField             Kind = "MissingField"
	KindInsufficientTransactions Kind = "InsufficientTransactions"

	FieldAccountHolderName = "account_holder_name"
	FieldCustomerAddress   = "customer_address"
)

var (
	ErrMissingField             = errors.New("missing field")
	ErrInsufficientTransactions = errors.New("insufficient transactions")
)

// ValidationError describes why a document was rejected. Field is set for MissingField;
// Found and Required for InsufficientTransactions.
type ValidationError struct {
	Kind     Kind
	Field    string
	Found    int
	Required int
}

func (e *ValidationError) Error() string {
	if e.Kind == KindInsufficientTransactions {
		return fmt.Sprintf("insufficient transactions: found %d, minimum required is %d", e.Found, e.Required)
	}
	return fmt.Sprintf("could not extract %s from document", e.Field)
}

func (e *ValidationError) Unwrap() error {
	if e.Kind == KindInsufficientTransactions {
		return ErrInsufficientTransactions
	}
	return ErrMissingField
}

func missingField(field string) *ValidationError {
	return &ValidationError{Kind: KindMissingField, Field: field}
}

func insufficientTransactions(found, required int) *ValidationError {
	return &ValidationError{Kind: KindInsufficientTransactions, Found: found, Required: required}
}
