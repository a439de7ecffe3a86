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

// Package directory resolves customer profiles by id.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blnkfinance/docaudit/config"
	"github.com/blnkfinance/docaudit/internal/apierror"
	"github.com/blnkfinance/docaudit/internal/cache"
	"github.com/blnkfinance/docaudit/internal/request"
	"github.com/blnkfinance/docaudit/model"
	"github.com/sirupsen/logrus"
)

var ErrCustomerNotFound = errors.New("customer not found")

type Directory interface {
	Lookup(ctx context.Context, customerID string) (model.Customer, error)
}

// Store is the part of the datasource the directory reads and seeds.
type Store interface {
	GetCustomer(ctx context.Context, customerID string) (*model.Customer, error)
	UpsertCustomer(ctx context.Context, customer model.Customer) error
}

type DBDirectory struct {
	store Store
}

func NewDBDirectory(store Store) *DBDirectory {
	return &DBDirectory{store: store}
}

func (d *DBDirectory) Lookup(ctx context.Context, customerID string) (model.Customer, error) {
	c, err := d.store.GetCustomer(ctx, customerID)
	if err != nil {
		if apierror.IsNotFound(err) {
			return model.Customer{}, fmt.Errorf("%w: %s", ErrCustomerNotFound, customerID)
		}
		return model.Customer{}, err
	}
	return *c, nil
}

// HTTPDirectory calls GET {base}/customers/{id} on a customer service.
type HTTPDirectory struct {
	base    string
	timeout time.Duration
}

func NewHTTPDirectory(base string, timeout time.Duration) *HTTPDirectory {
	return &HTTPDirectory{base: strings.TrimRight(base, "/"), timeout: timeout}
}

func (d *HTTPDirectory) Lookup(ctx context.Context, customerID string) (model.Customer, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.base+"/customers/"+url.PathEscape(customerID), nil)
	if err != nil {
		return model.Customer{}, err
	}

	var c model.Customer
	if _, err := request.Call(req, &c); err != nil {
		if request.IsStatus(err, http.StatusNotFound) {
			return model.Customer{}, fmt.Errorf("%w: %s", ErrCustomerNotFound, customerID)
		}
		return model.Customer{}, fmt.Errorf("customer directory: %w", err)
	}
	if c.CustomerID == "" {
		c.CustomerID = customerID
	}
	return c, nil
}

// CachedDirectory keeps successful lookups in the cache for ttl. Misses are not cached.
type CachedDirectory struct {
	next  Directory
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedDirectory(next Directory, c cache.Cache, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{next: next, cache: c, ttl: ttl}
}

func cacheKey(customerID string) string {
	return "docaudit:customer:" + customerID
}

func (d *CachedDirectory) Lookup(ctx context.Context, customerID string) (model.Customer, error) {
	var c model.Customer
	found, err := d.cache.Get(ctx, cacheKey(customerID), &c)
	if err != nil {
		logrus.WithError(err).WithField("customer_id", customerID).Warn("customer cache read failed")
	}
	if found {
		return c, nil
	}

	c, err = d.next.Lookup(ctx, customerID)
	if err != nil {
		return model.Customer{}, err
	}
	if err := d.cache.Set(ctx, cacheKey(customerID), c, d.ttl); err != nil {
		logrus.WithError(err).WithField("customer_id", customerID).Warn("customer cache write failed")
	}
	return c, nil
}

// Invalidate drops a cached profile so the next lookup reads through.
func (d *CachedDirectory) Invalidate(ctx context.Context, customerID string) error {
	return d.cache.Delete(ctx, cacheKey(customerID))
}

// FromConfig picks the HTTP directory when a url is configured and the database otherwise.
// A non-nil cache wraps the result.
func FromConfig(cfg config.DirectoryConfig, store Store, c cache.Cache) Directory {
	var d Directory = NewDBDirectory(store)
	if cfg.Url != "" {
		d = NewHTTPDirectory(cfg.Url, time.Duration(cfg.TimeoutSec)*time.Second)
	}
	if c != nil {
		d = NewCachedDirectory(d, c, time.Duration(cfg.CacheTTLSec)*time.Second)
	}
	return d
}

type seedEntry struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Seed upserts every profile in r, a JSON object of {customer_id: {name, address}}.
// It returns the number of profiles written.
func Seed(ctx context.Context, store Store, r io.Reader) (int, error) {
	var entries map[string]seedEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return 0, fmt.Errorf("decode customer seed: %w", err)
	}

	n := 0
	for id, e := range entries {
		c := model.Customer{CustomerID: id, Name: e.Name, Address: e.Address}
		if err := c.Validate(); err != nil {
			return n, fmt.Errorf("customer %s: %w", id, err)
		}
		if err := store.UpsertCustomer(ctx, c); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
