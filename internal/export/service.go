// Package export writes batch results to Excel and CSV files on disk.
package export

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/DruboPaul/web-surveyscriber/internal/entity"
)

// Service writes result files into OutputDir. Columns follow the schema's
// field order, with the source filename appended last.
type Service struct {
	outputDir string
	logger    *slog.Logger
}

func NewService(outputDir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{outputDir: outputDir, logger: logger}
}

// BaseName derives the output file stem. A caller-supplied name is reduced to
// a safe character set; absent one, a short random stem is generated.
func BaseName(custom string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '_' || r == '-' || r == ' ':
			return r
		}
		return -1
	}, custom)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned != "" {
		return cleaned
	}
	return "batch_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func columns(schema entity.Schema) []string {
	return append(schema.Keys(), entity.KeySourceFile)
}

func cellValue(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// SaveExcel writes results to <base>.xlsx and returns the full path.
func (s *Service) SaveExcel(results []*entity.ExtractionResult, schema entity.Schema, base string) (string, error) {
	start := time.Now()
	f := excelize.NewFile()
	const sheet = "Results"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return "", err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	if index, _ := f.GetSheetIndex("Sheet1"); index != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	cols := columns(schema)
	for i, h := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for rowIdx, r := range results {
		row := rowIdx + 2
		for colIdx, name := range cols {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, row)
			if name == entity.KeySourceFile {
				_ = f.SetCellValue(sheet, cell, r.SourceFile)
				continue
			}
			_ = f.SetCellValue(sheet, cell, cellValue(r.Fields[name]))
		}
	}

	last, _ := excelize.ColumnNumberToName(len(cols))
	_ = f.SetColWidth(sheet, "A", last, 24)

	path := filepath.Join(s.outputDir, base+".xlsx")
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", err
	}
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"path", path,
		"rows", len(results),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return path, nil
}

// SaveCSV writes results to <base>.csv and returns the full path.
func (s *Service) SaveCSV(results []*entity.ExtractionResult, schema entity.Schema, base string) (string, error) {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.outputDir, base+".csv")
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	cols := columns(schema)
	if err := w.Write(cols); err != nil {
		return "", err
	}
	for _, r := range results {
		row := make([]string, len(cols))
		for i, name := range cols {
			if name == entity.KeySourceFile {
				row[i] = r.SourceFile
				continue
			}
			row[i] = cellValue(r.Fields[name])
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("csv write: %w", err)
	}

	s.logger.Info("export.csv.ok", "path", path, "rows", len(results))
	return path, nil
}
