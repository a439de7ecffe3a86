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

package acquisition

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const pageSeparator = "\n\f\n"

// TSV column positions as written by tesseract.
const (
	colPage  = 1
	colBlock = 2
	colPar   = 3
	colLine  = 4
	colConf  = 10
	colText  = 11
)

// ocr rasterizes PDFs when needed and runs tesseract on every page.
// The returned confidence is the mean over all tokens across pages.
func (a *Acquirer) ocr(ctx context.Context, path string) (string, float64, error) {
	images := []string{path}
	if !isImage(path) {
		dir, err := os.MkdirTemp("", "docaudit-ocr-*")
		if err != nil {
			return "", 0, errors.Wrap(err, "create raster dir")
		}
		defer os.RemoveAll(dir)

		images, err = a.rasterize(ctx, path, dir)
		if err != nil {
			return "", 0, err
		}
	}

	var (
		pages []string
		stats tokenStats
	)
	for i, img := range images {
		out, stderr, err := a.runner.Run(ctx, a.cfg.Tesseract, a.tesseractArgs(img)...)
		if err != nil {
			return "", 0, errors.Wrapf(err, "tesseract page %d: %s", i+1, truncate(string(stderr), 512))
		}
		pages = append(pages, parseTSV(string(out), &stats))
	}
	return strings.Join(pages, pageSeparator), stats.mean(), nil
}

func (a *Acquirer) rasterize(ctx context.Context, path, dir string) ([]string, error) {
	prefix := filepath.Join(dir, "page")
	args := []string{"-r", strconv.Itoa(a.cfg.DPI), "-png", path, prefix}
	if _, stderr, err := a.runner.Run(ctx, a.cfg.Pdftoppm, args...); err != nil {
		return nil, errors.Wrapf(err, "pdftoppm: %s", truncate(string(stderr), 512))
	}

	images, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, errors.Wrap(err, "list rendered pages")
	}
	if len(images) == 0 {
		return nil, errors.New("pdftoppm rendered no pages")
	}
	sort.Strings(images)
	if a.cfg.MaxPages > 0 && len(images) > a.cfg.MaxPages {
		images = images[:a.cfg.MaxPages]
	}
	return images, nil
}

func (a *Acquirer) tesseractArgs(image string) []string {
	args := []string{image, "stdout", "-l", a.cfg.TesseractLang}
	if a.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(a.cfg.PSM))
	}
	if a.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", a.cfg.TessdataDir)
	}
	return append(args, "tsv")
}

type tokenStats struct {
	sum   float64
	count int
}

func (s tokenStats) mean() float64 {
	if s.count == 0 {
		return 0
	}
	return s.sum / float64(s.count)
}

// parseTSV rebuilds the page text line by line and feeds token confidences into stats.
func parseTSV(tsv string, stats *tokenStats) string {
	var (
		lines   []string
		current []string
		lastKey string
	)
	flush := func() {
		if len(current) > 0 {
			lines = append(lines, strings.Join(current, " "))
			current = nil
		}
	}

	for i, row := range strings.Split(tsv, "\n") {
		if i == 0 && strings.HasPrefix(row, "level") {
			continue
		}
		cols := strings.Split(strings.TrimRight(row, "\r"), "\t")
		if len(cols) <= colText {
			continue
		}
		word := strings.TrimSpace(strings.Join(cols[colText:], " "))
		if word == "" {
			continue
		}

		key := strings.Join(cols[colPage:colLine+1], ".")
		if key != lastKey {
			flush()
			lastKey = key
		}
		current = append(current, word)

		if conf, err := strconv.ParseFloat(cols[colConf], 64); err == nil && conf > 0 {
			stats.sum += conf
			stats.count++
		}
	}
	flush()
	return strings.Join(lines, "\n")
}
