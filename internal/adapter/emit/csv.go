package emit

import (
	"encoding/csv"
	"os"

	"github.com/agroclim/era5-extract/internal/domain"
)

// WriteCSV writes a header row followed by the data rows.
func WriteCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return &domain.WriteError{Path: path, Err: err}
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return &domain.WriteError{Path: path, Err: err}
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return &domain.WriteError{Path: path, Err: err}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &domain.WriteError{Path: path, Err: err}
	}
	return nil
}
