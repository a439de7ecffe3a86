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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/wacul/ptr"
)

const (
	DEFAULT_PORT            = "5001"
	DEFAULT_MONITORING_PORT = "5004"
	DEFAULT_WORKER_NAME     = "docaudit_worker_local"

	DEFAULT_MIN_TRANSACTIONS     = 30
	DEFAULT_OCR_CONFIDENCE_FLOOR = 60.0
	DEFAULT_SOFT_FLAG_EPSILON    = 2.0
	DEFAULT_MAX_FILE_SIZE_MB     = 10
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"DOCAUDIT_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"DOCAUDIT_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"DOCAUDIT_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"DOCAUDIT_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"DOCAUDIT_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"DOCAUDIT_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"DOCAUDIT_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"DOCAUDIT_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"DOCAUDIT_REDIS_SKIP_TLS_VERIFY"`
}

// QueueConfig names the broker queues each stage consumes from.
type QueueConfig struct {
	ExtractionQueue   string `json:"extraction_queue" envconfig:"DOCAUDIT_RAW_EXTRACTION_QUEUE"`
	AnalysisQueue     string `json:"analysis_queue" envconfig:"DOCAUDIT_EXTRACTED_DATA_QUEUE"`
	ReportingQueue    string `json:"reporting_queue" envconfig:"DOCAUDIT_ANALYSIS_RESULTS_QUEUE"`
	WebhookQueue      string `json:"webhook_queue" envconfig:"DOCAUDIT_WEBHOOK_QUEUE"`
	MonitoringPort    string `json:"monitoring_port" envconfig:"DOCAUDIT_QUEUE_MONITORING_PORT"`
	MaxRetry          int    `json:"max_retry" envconfig:"DOCAUDIT_QUEUE_MAX_RETRY"`
	PublishAttempts   int    `json:"publish_attempts" envconfig:"DOCAUDIT_QUEUE_PUBLISH_ATTEMPTS"`
	DedupRetentionSec int    `json:"dedup_retention_sec" envconfig:"DOCAUDIT_QUEUE_DEDUP_RETENTION_SEC"`
	StageLockTTLSec   int    `json:"stage_lock_ttl_sec" envconfig:"DOCAUDIT_STAGE_LOCK_TTL_SEC"`
}

// ThresholdConfig holds the raw, optional thresholds as read from file and environment.
// Use Configuration.Thresholds for the resolved values.
type ThresholdConfig struct {
	MinTransactions        *int     `json:"min_transactions" envconfig:"DOCAUDIT_MIN_TRANSACTIONS"`
	OCRConfidenceThreshold *float64 `json:"ocr_confidence_threshold" envconfig:"DOCAUDIT_OCR_CONFIDENCE_THRESHOLD"`
	SoftFlagEpsilon        *float64 `json:"soft_flag_epsilon" envconfig:"DOCAUDIT_SOFT_FLAG_EPSILON"`
}

// Thresholds is the immutable set of tuning values handed to the parser, analyzer and text acquisition.
type Thresholds struct {
	MinTransactions    int
	OCRConfidenceFloor float64
	SoftFlagEpsilon    float64
}

type AcquisitionConfig struct {
	Pdftotext     string `json:"pdftotext" envconfig:"DOCAUDIT_PDFTOTEXT_BIN"`
	Pdftoppm      string `json:"pdftoppm" envconfig:"DOCAUDIT_PDFTOPPM_BIN"`
	Tesseract     string `json:"tesseract" envconfig:"DOCAUDIT_TESSERACT_BIN"`
	TesseractLang string `json:"tesseract_lang" envconfig:"DOCAUDIT_TESSERACT_LANG"`
	TessdataDir   string `json:"tessdata_dir" envconfig:"DOCAUDIT_TESSDATA_DIR"`
	PSM           int    `json:"psm" envconfig:"DOCAUDIT_TESSERACT_PSM"`
	DPI           int    `json:"dpi" envconfig:"DOCAUDIT_OCR_DPI"`
	MaxPages      int    `json:"max_pages" envconfig:"DOCAUDIT_OCR_MAX_PAGES"`
}

type DirectoryConfig struct {
	Url         string `json:"url" envconfig:"DOCAUDIT_DIRECTORY_URL"`
	TimeoutSec  int    `json:"timeout_sec" envconfig:"DOCAUDIT_DIRECTORY_TIMEOUT_SEC"`
	CacheTTLSec int    `json:"cache_ttl_sec" envconfig:"DOCAUDIT_DIRECTORY_CACHE_TTL_SEC"`
}

type StorageConfig struct {
	UploadDir          string `json:"upload_dir" envconfig:"DOCAUDIT_UPLOAD_DIR"`
	ReportsDir         string `json:"reports_dir" envconfig:"DOCAUDIT_REPORTS_DIR"`
	MaxFileSizeMB      int    `json:"max_file_size_mb" envconfig:"DOCAUDIT_MAX_FILE_SIZE"`
	S3Endpoint         string `json:"s3_endpoint" envconfig:"DOCAUDIT_S3_ENDPOINT"`
	S3BucketName       string `json:"s3_bucket_name" envconfig:"DOCAUDIT_S3_BUCKET_NAME"`
	S3Region           string `json:"s3_region" envconfig:"DOCAUDIT_S3_REGION"`
	AwsAccessKeyId     string `json:"aws_access_key_id" envconfig:"DOCAUDIT_AWS_ACCESS_KEY_ID"`
	AwsSecretAccessKey string `json:"aws_secret_access_key" envconfig:"DOCAUDIT_AWS_SECRET_ACCESS_KEY"`
}

type MonitorConfig struct {
	PollIntervalSec   int `json:"poll_interval_sec" envconfig:"DOCAUDIT_MONITOR_POLL_INTERVAL_SEC"`
	StallThresholdSec int `json:"stall_threshold_sec" envconfig:"DOCAUDIT_MONITOR_STALL_THRESHOLD_SEC"`
	BatchSize         int `json:"batch_size" envconfig:"DOCAUDIT_MONITOR_BATCH_SIZE"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"DOCAUDIT_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"DOCAUDIT_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"DOCAUDIT_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"DOCAUDIT_SLACK_WEBHOOK_URL"`
}

type WebhookConfig struct {
	Url     string            `json:"url" envconfig:"DOCAUDIT_WEBHOOK_URL"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack   SlackWebhook  `json:"slack"`
	Webhook WebhookConfig `json:"webhook"`
}

type Configuration struct {
	ProjectName     string            `json:"project_name" envconfig:"DOCAUDIT_PROJECT_NAME"`
	WorkerName      string            `json:"worker_name" envconfig:"HOSTNAME"`
	EnableTelemetry bool              `json:"enable_telemetry" envconfig:"DOCAUDIT_ENABLE_TELEMETRY"`
	Server          ServerConfig      `json:"server"`
	DataSource      DataSourceConfig  `json:"data_source"`
	Redis           RedisConfig       `json:"redis"`
	Queue           QueueConfig       `json:"queue"`
	Limits          ThresholdConfig   `json:"thresholds"`
	Acquisition     AcquisitionConfig `json:"acquisition"`
	Directory       DirectoryConfig   `json:"directory"`
	Storage         StorageConfig     `json:"storage"`
	Monitor         MonitorConfig     `json:"monitor"`
	Notification    Notification      `json:"notification"`
	RateLimit       RateLimitConfig   `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("docaudit", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called docaudit.json with your config ❌")
	}
	return c, nil
}

// Thresholds resolves the configured limits, falling back to defaults for anything unset.
func (cnf *Configuration) Thresholds() Thresholds {
	t := Thresholds{
		MinTransactions:    DEFAULT_MIN_TRANSACTIONS,
		OCRConfidenceFloor: DEFAULT_OCR_CONFIDENCE_FLOOR,
		SoftFlagEpsilon:    DEFAULT_SOFT_FLAG_EPSILON,
	}
	if cnf.Limits.MinTransactions != nil {
		t.MinTransactions = *cnf.Limits.MinTransactions
	}
	if cnf.Limits.OCRConfidenceThreshold != nil {
		t.OCRConfidenceFloor = *cnf.Limits.OCRConfidenceThreshold
	}
	if cnf.Limits.SoftFlagEpsilon != nil {
		t.SoftFlagEpsilon = *cnf.Limits.SoftFlagEpsilon
	}
	return t
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Docaudit"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.WorkerName = strings.TrimSpace(cnf.WorkerName)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.WorkerName == "" {
		cnf.WorkerName = DEFAULT_WORKER_NAME
	}

	cnf.setQueueDefaults()
	cnf.setThresholdDefaults()
	cnf.setAcquisitionDefaults()
	cnf.setStorageDefaults()

	if cnf.Directory.TimeoutSec == 0 {
		cnf.Directory.TimeoutSec = 10
	}
	if cnf.Directory.CacheTTLSec == 0 {
		cnf.Directory.CacheTTLSec = 300
	}

	if cnf.Monitor.PollIntervalSec == 0 {
		cnf.Monitor.PollIntervalSec = 30
	}
	if cnf.Monitor.StallThresholdSec == 0 {
		cnf.Monitor.StallThresholdSec = 15 * 60
	}
	if cnf.Monitor.BatchSize == 0 {
		cnf.Monitor.BatchSize = 100
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		cnf.RateLimit.Burst = ptr.Int(2 * int(*cnf.RateLimit.RequestsPerSecond))
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", *cnf.RateLimit.Burst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		cnf.RateLimit.RequestsPerSecond = ptr.Float64(float64(*cnf.RateLimit.Burst) / 2)
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", *cnf.RateLimit.RequestsPerSecond)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		cnf.RateLimit.CleanupIntervalSec = ptr.Int(10800)
	}

	return nil
}

func (cnf *Configuration) setQueueDefaults() {
	if cnf.Queue.ExtractionQueue == "" {
		cnf.Queue.ExtractionQueue = "raw_extraction"
	}
	if cnf.Queue.AnalysisQueue == "" {
		cnf.Queue.AnalysisQueue = "extracted_data"
	}
	if cnf.Queue.ReportingQueue == "" {
		cnf.Queue.ReportingQueue = "analysis_results"
	}
	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = "new:webhook"
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = DEFAULT_MONITORING_PORT
	}
	if cnf.Queue.MaxRetry == 0 {
		cnf.Queue.MaxRetry = 5
	}
	if cnf.Queue.PublishAttempts == 0 {
		cnf.Queue.PublishAttempts = 3
	}
	if cnf.Queue.DedupRetentionSec == 0 {
		cnf.Queue.DedupRetentionSec = 24 * 60 * 60
	}
	if cnf.Queue.StageLockTTLSec == 0 {
		cnf.Queue.StageLockTTLSec = 10 * 60
	}
}

func (cnf *Configuration) setThresholdDefaults() {
	if cnf.Limits.MinTransactions == nil {
		cnf.Limits.MinTransactions = ptr.Int(DEFAULT_MIN_TRANSACTIONS)
	}
	if cnf.Limits.OCRConfidenceThreshold == nil {
		cnf.Limits.OCRConfidenceThreshold = ptr.Float64(DEFAULT_OCR_CONFIDENCE_FLOOR)
	}
	if cnf.Limits.SoftFlagEpsilon == nil {
		cnf.Limits.SoftFlagEpsilon = ptr.Float64(DEFAULT_SOFT_FLAG_EPSILON)
	}
}

func (cnf *Configuration) setAcquisitionDefaults() {
	if cnf.Acquisition.Pdftotext == "" {
		cnf.Acquisition.Pdftotext = "pdftotext"
	}
	if cnf.Acquisition.Pdftoppm == "" {
		cnf.Acquisition.Pdftoppm = "pdftoppm"
	}
	if cnf.Acquisition.Tesseract == "" {
		cnf.Acquisition.Tesseract = "tesseract"
	}
	if cnf.Acquisition.TesseractLang == "" {
		cnf.Acquisition.TesseractLang = "eng"
	}
	if cnf.Acquisition.DPI == 0 {
		cnf.Acquisition.DPI = 300
	}
}

func (cnf *Configuration) setStorageDefaults() {
	if cnf.Storage.UploadDir == "" {
		cnf.Storage.UploadDir = "./uploads"
	}
	if cnf.Storage.ReportsDir == "" {
		cnf.Storage.ReportsDir = "./reports"
	}
	if cnf.Storage.MaxFileSizeMB == 0 {
		cnf.Storage.MaxFileSizeMB = DEFAULT_MAX_FILE_SIZE_MB
	}
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
