package spectrum

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReadCSV loads a spectrum from a CSV file with three columns:
// wavelength, flux, flux-error. A header row is skipped if the first
// field does not parse as a number. The spectrum name is the file base
// name without extension.
func ReadCSV(path string) (*Spectrum, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spectrum file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 3

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read spectrum file: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("spectrum file %s is empty", path)
	}

	// Skip header row if present
	if _, err := strconv.ParseFloat(strings.TrimSpace(records[0][0]), 64); err != nil {
		records = records[1:]
	}

	w := make([]float64, 0, len(records))
	flux := make([]float64, 0, len(records))
	fluxErr := make([]float64, 0, len(records))

	for i, rec := range records {
		var row [3]float64
		for j := 0; j < 3; j++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[j]), 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse row %d column %d: %w", i+1, j+1, err)
			}
			row[j] = v
		}
		w = append(w, row[0])
		flux = append(flux, row[1])
		fluxErr = append(fluxErr, row[2])
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return New(w, flux, fluxErr, name)
}

// WriteCSV writes a spectrum as a three-column CSV file with a header row.
func WriteCSV(path string, s *Spectrum) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create spectrum file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"wavelength", "flux", "flux_err"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i := range s.Wavelength {
		rec := []string{
			strconv.FormatFloat(s.Wavelength[i], 'g', -1, 64),
			strconv.FormatFloat(s.Flux[i], 'g', -1, 64),
			strconv.FormatFloat(s.FluxErr[i], 'g', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	w.Flush()
	return w.Error()
}
