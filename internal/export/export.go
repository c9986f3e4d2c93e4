package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"retail-pipeline/internal/models"
	"retail-pipeline/internal/util"

	"go.uber.org/zap"
)

// Supported output formats
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

const stampLayout = "20060102_1504"

// Writer writes the modeled tables of a run to OUTPUT_DIR, one sub-directory per table
type Writer struct {
	dir    string
	logger *zap.Logger
}

// NewWriter creates an exporter rooted at dir
func NewWriter(dir string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{dir: dir, logger: logger}
}

// ParseFormats normalizes a format list and rejects unknown entries
func ParseFormats(formats []string) ([]string, error) {
	seen := make(map[string]bool)
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" || seen[f] {
			continue
		}
		if f != FormatCSV && f != FormatParquet {
			return nil, fmt.Errorf("unsupported export format %q", f)
		}
		seen[f] = true
		out = append(out, f)
	}
	return out, nil
}

// Path returns the file a table is written to for a run stamped at runTime
func (w *Writer) Path(table, format string, runTime time.Time) string {
	name := fmt.Sprintf("%s_%s.%s", table, runTime.Format(stampLayout), format)
	return filepath.Join(w.dir, table, name)
}

// Write exports every table of ds in each format and returns the written paths
func (w *Writer) Write(ds models.Dataset, formats []string, runTime time.Time) ([]string, error) {
	formats, err := ParseFormats(formats)
	if err != nil {
		return nil, err
	}

	var written []string
	for _, format := range formats {
		for _, t := range tablesOf(ds) {
			path := w.Path(t.name, format, runTime)
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return written, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
			}

			switch format {
			case FormatCSV:
				err = writeCSV(path, t)
			case FormatParquet:
				err = writeParquet(path, t.name, ds)
			}
			if err != nil {
				return written, err
			}

			util.ExportFilesTotal.WithLabelValues(format).Inc()
			w.logger.Info("Table exported",
				zap.String("table", t.name),
				zap.String("format", format),
				zap.String("path", path),
				zap.Int("rows", len(t.rows)))
			written = append(written, path)
		}
	}
	return written, nil
}
