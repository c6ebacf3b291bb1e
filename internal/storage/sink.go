package storage

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/IshaanNene/jepx/internal/types"
)

// Naming selects how an artifact's file name is derived.
type Naming int

const (
	// NamingTimestamp names files prefix_YYYYMMDD_HHMMSS.csv, flat under the base dir.
	NamingTimestamp Naming = iota
	// NamingDate names files name_YYYYMMDD.csv under a per-year subdirectory.
	NamingDate
	// NamingFiscalYear names files name_FY.csv, flat under the base dir.
	NamingFiscalYear
)

func (n Naming) String() string {
	switch n {
	case NamingTimestamp:
		return "timestamp"
	case NamingDate:
		return "date"
	case NamingFiscalYear:
		return "fiscal-year"
	default:
		return fmt.Sprintf("naming(%d)", int(n))
	}
}

// Identifier is the date-derived part of a file name: YYYYMMDD or the fiscal year.
func Identifier(n Naming, d types.TargetDate) string {
	if n == NamingFiscalYear {
		return strconv.Itoa(d.FiscalYear())
	}
	return d.Compact()
}

// FileName builds the base name of an artifact file.
func FileName(n Naming, name string, d types.TargetDate, now time.Time) string {
	if n == NamingTimestamp {
		return fmt.Sprintf("%s_%s.csv", name, now.Format("20060102_150405"))
	}
	return fmt.Sprintf("%s_%s.csv", name, Identifier(n, d))
}

// Path maps an artifact to its location under base. It has no side effects.
func Path(base string, n Naming, name string, d types.TargetDate, now time.Time) string {
	file := FileName(n, name, d, now)
	if n == NamingDate {
		return filepath.Join(base, strconv.Itoa(d.Year), file)
	}
	return filepath.Join(base, file)
}

// Sink persists artifacts below a base directory.
type Sink struct {
	baseDir string
	now     func() time.Time
	logger  *slog.Logger
}

// NewSink creates a Sink rooted at baseDir. Directories are created lazily on write.
func NewSink(baseDir string, logger *slog.Logger) *Sink {
	return &Sink{
		baseDir: baseDir,
		now:     time.Now,
		logger:  logger.With("component", "file_sink"),
	}
}

// WithClock replaces the wall clock used for timestamped names.
func (s *Sink) WithClock(now func() time.Time) *Sink {
	s.now = now
	return s
}

// BaseDir returns the root directory.
func (s *Sink) BaseDir() string { return s.baseDir }

// Path returns where an artifact with the given naming would be written.
func (s *Sink) Path(n Naming, name string, d types.TargetDate) string {
	return Path(s.baseDir, n, name, d, s.now())
}

// Exists reports whether a regular file is present at path.
func (s *Sink) Exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("stat failed", "path", path, "error", err)
		}
		return false
	}
	return info.Mode().IsRegular()
}

// Write stores data at path. The parent directory is created if missing and the
// file is written to a temporary name first, so a failed write leaves no partial file.
func (s *Sink) Write(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &types.StorageError{Path: path, Err: fmt.Errorf("create output dir: %w", err)}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &types.StorageError{Path: path, Err: fmt.Errorf("create temp file: %w", err)}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &types.StorageError{Path: path, Err: fmt.Errorf("write: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &types.StorageError{Path: path, Err: fmt.Errorf("close: %w", err)}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return &types.StorageError{Path: path, Err: fmt.Errorf("chmod: %w", err)}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &types.StorageError{Path: path, Err: fmt.Errorf("rename: %w", err)}
	}

	s.logger.Info("CSV file saved", "path", path, "bytes", len(data))
	return nil
}

// EncodeTable renders a header and rows as CSV.
func EncodeTable(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write CSV header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("write CSV rows: %w", err)
	}
	return buf.Bytes(), nil
}
