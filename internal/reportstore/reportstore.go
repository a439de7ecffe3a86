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

package reportstore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/blnkfinance/docaudit/config"
	"github.com/sirupsen/logrus"
)

// Store persists a finished report and returns where it can be found.
type Store interface {
	Store(ctx context.Context, name string, data []byte) (location string, err error)
}

// FileStore writes reports into a local directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (f *FileStore) Store(_ context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(f.dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// S3Store uploads reports to a bucket.
type S3Store struct {
	uploader s3manageriface.UploaderAPI
	bucket   string
	prefix   string
}

func NewS3Store(uploader s3manageriface.UploaderAPI, bucket, prefix string) *S3Store {
	return &S3Store{uploader: uploader, bucket: bucket, prefix: prefix}
}

// NewS3StoreFromConfig builds an uploader using static credentials. A custom endpoint
// switches the client to path style addressing for S3 compatible servers.
func NewS3StoreFromConfig(cfg config.StorageConfig) (*S3Store, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.S3Region)}
	if cfg.AwsAccessKeyId != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AwsAccessKeyId, cfg.AwsSecretAccessKey, "")
	}
	if cfg.S3Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.S3Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return NewS3Store(s3manager.NewUploader(sess), cfg.S3BucketName, "reports/"), nil
}

func (s *S3Store) Store(ctx context.Context, name string, data []byte) (string, error) {
	out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.prefix + name),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report %s: %w", name, err)
	}
	return out.Location, nil
}

// MultiStore writes to every store in order. The first store is authoritative: its
// location is returned and its failure fails the write. Failures of later stores are logged.
type MultiStore struct {
	stores []Store
}

func NewMultiStore(stores ...Store) *MultiStore {
	return &MultiStore{stores: stores}
}

func (m *MultiStore) Store(ctx context.Context, name string, data []byte) (string, error) {
	if len(m.stores) == 0 {
		return "", fmt.Errorf("no report store configured")
	}

	location, err := m.stores[0].Store(ctx, name, data)
	if err != nil {
		return "", err
	}

	for _, s := range m.stores[1:] {
		if loc, err := s.Store(ctx, name, data); err != nil {
			logrus.WithError(err).WithField("report", name).Warn("secondary report store failed")
		} else {
			logrus.WithFields(logrus.Fields{"report": name, "location": loc}).Debug("report replicated")
		}
	}
	return location, nil
}

// NewFromConfig always writes to the reports directory and mirrors to S3 when a bucket is set.
func NewFromConfig(cfg config.StorageConfig) (Store, error) {
	stores := []Store{NewFileStore(cfg.ReportsDir)}
	if cfg.S3BucketName != "" {
		s3Store, err := NewS3StoreFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		stores = append(stores, s3Store)
	}
	return NewMultiStore(stores...), nil
}
