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

package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/blnkfinance/docaudit/internal/apierror"
	"github.com/blnkfinance/docaudit/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCustomer(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery("SELECT customer_id, name, address FROM customers WHERE customer_id").
		WithArgs("CUST001").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "name", "address"}).AddRow("CUST001", "Jane Doe", "12 High Street"))

	c, err := ds.GetCustomer(context.Background(), "CUST001")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", c.Name)
	assert.Equal(t, "12 High Street", c.Address)
}

func TestGetCustomer_NullAddress(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery("SELECT customer_id, name, address FROM customers").
		WithArgs("CUST002").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "name", "address"}).AddRow("CUST002", "John Roe", nil))

	c, err := ds.GetCustomer(context.Background(), "CUST002")
	require.NoError(t, err)
	assert.Equal(t, "", c.Address)
}

func TestGetCustomer_NotFound(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery("SELECT customer_id, name, address FROM customers").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "name", "address"}))

	_, err := ds.GetCustomer(context.Background(), "nope")
	assert.True(t, apierror.IsNotFound(err))
}

func TestUpsertCustomer(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectExec("INSERT INTO customers (.+) ON CONFLICT \\(customer_id\\) DO UPDATE").
		WithArgs("CUST001", "Jane Doe", "12 High Street").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.UpsertCustomer(context.Background(), model.Customer{CustomerID: "CUST001", Name: "Jane Doe", Address: "12 High Street"})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO customers").WillReturnError(errors.New("db down"))
	err = ds.UpsertCustomer(context.Background(), model.Customer{CustomerID: "CUST001", Name: "Jane"})
	assert.Equal(t, apierror.ErrInternalServer, apierror.CodeOf(err))
}
