// Package importer turns bank CSV exports into transactions and loads them
// into the store.
package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/pennywise/internal/model"
)

// RowError reports a CSV row that was skipped.
type RowError struct {
	Row int // 1-based line number, header included
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// Result is a parsed file.
type Result struct {
	Transactions []model.Transaction
	Errors       []RowError
}

// Parser converts a bank CSV file into transactions.
type Parser interface {
	Parse(r io.Reader, userID string) (Result, error)
	Format() string
}

// Registry holds named parsers.
type Registry struct {
	parsers map[string]Parser
}

// FileInfo describes a CSV file in the import directory.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser. Panics on duplicate format.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&ChaseParser{})
	return r
}

// importDir is the subdirectory for import CSVs.
const importDir = "import"

// processedDir is the subdirectory for processed CSVs.
const processedDir = "import/processed"

// Scan returns CSV files in <dataDir>/import/.
func Scan(dataDir string) ([]FileInfo, error) {
	dir := filepath.Join(dataDir, importDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return files, nil
}

// MarkProcessed moves a file from import/ to import/processed/.
func MarkProcessed(dataDir, fileName string) error {
	src := filepath.Join(dataDir, importDir, fileName)
	dstDir := filepath.Join(dataDir, processedDir)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	dst := filepath.Join(dstDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}

// Store receives imported transactions. *store.Store satisfies it.
type Store interface {
	InsertTransactions(ctx context.Context, txns []model.Transaction) (int, error)
}

// FileReport is the outcome of importing one file.
type FileReport struct {
	File     string
	Parsed   int
	Inserted int // new rows; re-imported rows are skipped by id
	Errors   []RowError
}

// Importer parses files and loads them into a Store.
type Importer struct {
	store    Store
	registry *Registry
	logger   zerolog.Logger
}

// New creates an Importer using the built-in parsers.
func New(store Store, logger zerolog.Logger) *Importer {
	return &Importer{store: store, registry: DefaultRegistry(), logger: logger}
}

// ImportFile parses path with the named format and stores the result.
func (im *Importer) ImportFile(ctx context.Context, path, format, userID string) (FileReport, error) {
	report := FileReport{File: filepath.Base(path)}
	p := im.registry.Get(format)
	if p == nil {
		return report, fmt.Errorf("unknown import format %q", format)
	}

	f, err := os.Open(path)
	if err != nil {
		return report, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	res, err := p.Parse(f, userID)
	if err != nil {
		return report, fmt.Errorf("%s: %w", report.File, err)
	}
	report.Parsed = len(res.Transactions)
	report.Errors = res.Errors
	for _, re := range res.Errors {
		im.logger.Warn().Str("file", report.File).Int("row", re.Row).Err(re.Err).Msg("skipping row")
	}

	if report.Inserted, err = im.store.InsertTransactions(ctx, res.Transactions); err != nil {
		return report, err
	}
	im.logger.Info().Str("file", report.File).Str("user_id", userID).Int("parsed", report.Parsed).
		Int("inserted", report.Inserted).Int("skipped_rows", len(report.Errors)).Msg("import complete")
	return report, nil
}

// ImportDir imports every CSV in <dataDir>/import/ and moves each imported
// file to import/processed/.
func (im *Importer) ImportDir(ctx context.Context, dataDir, format, userID string) ([]FileReport, error) {
	files, err := Scan(dataDir)
	if err != nil {
		return nil, err
	}
	var reports []FileReport
	for _, fi := range files {
		report, err := im.ImportFile(ctx, fi.Path, format, userID)
		if err != nil {
			return reports, err
		}
		if err := MarkProcessed(dataDir, fi.Name); err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}
