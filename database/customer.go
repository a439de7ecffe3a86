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
	"database/sql"
	"fmt"

	"github.com/blnkfinance/docaudit/internal/apierror"
	"github.com/blnkfinance/docaudit/model"
	"go.opentelemetry.io/otel"
)

func (d Datasource) GetCustomer(ctx context.Context, customerID string) (*model.Customer, error) {
	ctx, span := otel.Tracer("docaudit.database").Start(ctx, "Getting customer")
	defer span.End()

	var (
		c       model.Customer
		address sql.NullString
	)
	err := d.Conn.QueryRowContext(ctx,
		`SELECT customer_id, name, address FROM customers WHERE customer_id = $1`, customerID,
	).Scan(&c.CustomerID, &c.Name, &address)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Customer with ID '%s' not found", customerID), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve customer", err)
	}
	c.Address = address.String
	return &c, nil
}

// UpsertCustomer inserts the profile or overwrites the name and address of an existing one.
func (d Datasource) UpsertCustomer(ctx context.Context, c model.Customer) error {
	ctx, span := otel.Tracer("docaudit.database").Start(ctx, "Upserting customer")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO customers (customer_id, name, address) VALUES ($1, $2, $3)
		ON CONFLICT (customer_id) DO UPDATE SET name = EXCLUDED.name, address = EXCLUDED.address`,
		c.CustomerID, c.Name, c.Address)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to upsert customer", err)
	}
	return nil
}
