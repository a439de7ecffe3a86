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

// Package acquisition turns a statement file into raw text. Native PDF text is tried first and
// OCR is used when that fails or yields nothing a statement parser could work with.
package acquisition

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/blnkfinance/docaudit/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	MethodPDFText = "pdf_text"
	MethodOCR     = "ocr"

	nativeConfidence = 100.0

	minMeaningfulLength = 100
	minMeaningfulDigits = 20
)

var errImageSource = errors.New("native text extraction does not apply to image sources")

// Result is the acquired text together with how it was obtained.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

// AcquisitionError is returned when the OCR fallback fails after the primary path was rejected.
type AcquisitionError struct {
	Path     string
	Primary  error
	Fallback error
}

func (e *AcquisitionError) Error() string {
	primary := "insufficient text"
	if e.Primary != nil {
		primary = e.Primary.Error()
	}
	return fmt.Sprintf("could not acquire text from %s: primary: %s; fallback: %v", e.Path, primary, e.Fallback)
}

func (e *AcquisitionError) Unwrap() []error {
	errs := []error{e.Fallback}
	if e.Primary != nil {
		errs = append(errs, e.Primary)
	}
	return errs
}

// Acquirer extracts text from a statement file, falling back to OCR when the native text is unusable.
type Acquirer struct {
	cfg     config.AcquisitionConfig
	floor   float64
	runner  Runner
	readPDF func(path string) (string, error)
}

// Option configures an Acquirer.
type Option func(*Acquirer)

// WithRunner replaces the command runner used for pdftotext, pdftoppm and tesseract.
func WithRunner(r Runner) Option {
	return func(a *Acquirer) { a.runner = r }
}

// WithPDFReader replaces the native PDF text reader.
func WithPDFReader(fn func(path string) (string, error)) Option {
	return func(a *Acquirer) { a.readPDF = fn }
}

// New builds an Acquirer. floor is the OCR confidence below which a warning is logged.
func New(cfg config.AcquisitionConfig, floor float64, opts ...Option) *Acquirer {
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	a := &Acquirer{cfg: cfg, floor: floor, runner: ExecRunner{}, readPDF: readNativeText}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Acquire extracts text from the file at path.
func (a *Acquirer) Acquire(ctx context.Context, path string) (Result, error) {
	logger := logrus.WithField("path", path)

	var primaryErr error
	if isImage(path) {
		primaryErr = errImageSource
	} else {
		text, err := a.primary(ctx, path)
		switch {
		case err != nil:
			primaryErr = err
			logger.WithError(err).Info("native text extraction failed, falling back to OCR")
		case !IsMeaningful(text):
			logger.WithField("length", len(text)).Info("native text is not meaningful, falling back to OCR")
		default:
			return Result{Text: text, Confidence: nativeConfidence, Method: MethodPDFText}, nil
		}
	}

	text, confidence, err := a.ocr(ctx, path)
	if err != nil {
		return Result{}, &AcquisitionError{Path: path, Primary: primaryErr, Fallback: err}
	}
	if confidence < a.floor {
		logger.WithFields(logrus.Fields{
			"confidence": confidence,
			"floor":      a.floor,
		}).Warn("OCR confidence below threshold")
	}
	return Result{Text: text, Confidence: confidence, Method: MethodOCR}, nil
}

func (a *Acquirer) primary(ctx context.Context, path string) (string, error) {
	text, err := a.readPDF(path)
	if err == nil || a.cfg.Pdftotext == "" {
		return text, err
	}

	out, _, cmdErr := a.runner.Run(ctx, a.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if cmdErr != nil {
		return "", errors.Wrapf(err, "pdftotext also failed (%v)", cmdErr)
	}
	return string(out), nil
}

// IsMeaningful reports whether text looks like it came from a populated statement.
func IsMeaningful(text string) bool {
	if utf8.RuneCountInString(text) < minMeaningfulLength {
		return false
	}
	digits := 0
	for _, r := range text {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits >= minMeaningfulDigits && strings.ContainsAny(text, "/-")
}

func isImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff":
		return true
	}
	return false
}
