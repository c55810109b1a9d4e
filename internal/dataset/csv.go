package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/survival.report/internal/units"
)

// Options control CSV ingestion.
type Options struct {
	// Units names the time unit of the bound columns; bounds are converted
	// to days on load. Empty means the file is already in days.
	Units string
}

// FromCSV reads a censored dataset from CSV. Rows carry two or three
// columns: label_lower_bound, label_upper_bound, and an optional weight.
// A header row is detected and skipped and '#' lines are comments. "inf"
// in any case means an open upper bound; an empty bound field means no
// information on that side, so an empty lower reads as 0 and an empty
// upper as inf. The returned dataset is already validated.
func FromCSV(r io.Reader, name string, opts Options) (*Dataset, error) {
	if opts.Units != "" && !units.IsValid(opts.Units) {
		return nil, fmt.Errorf("unknown units %q (valid: %s)", opts.Units, units.GetValidUnitsString())
	}

	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	d := &Dataset{Name: name}
	line := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		line++
		if line == 1 && looksLikeHeader(record) {
			continue
		}
		if len(record) != 2 && len(record) != 3 {
			return nil, fmt.Errorf("%s line %d: %d columns, want 2 or 3", name, line, len(record))
		}

		lower, err := parseBound(record[0], 0)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: lower bound: %w", name, line, err)
		}
		upper, err := parseBound(record[1], math.Inf(1))
		if err != nil {
			return nil, fmt.Errorf("%s line %d: upper bound: %w", name, line, err)
		}
		if opts.Units != "" {
			lower = units.ToDays(lower, opts.Units)
			upper = units.ToDays(upper, opts.Units)
		}
		d.Lower = append(d.Lower, lower)
		d.Upper = append(d.Upper, upper)

		if len(record) == 3 {
			w, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: weight: %w", name, line, err)
			}
			d.Weight = append(d.Weight, w)
		} else if d.Weight != nil {
			return nil, fmt.Errorf("%s line %d: weight column present on some rows but not all", name, line)
		}
	}
	if d.Weight != nil && len(d.Weight) != len(d.Lower) {
		return nil, fmt.Errorf("%s: weight column present on some rows but not all", name)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// ReadFile loads a dataset CSV from disk, naming it after the file.
func ReadFile(path string, opts Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return FromCSV(f, filepath.Base(path), opts)
}

// LoadPredictions reads one predicted log time per CSV record (first
// column), with the same header and comment handling as FromCSV.
func LoadPredictions(r io.Reader) ([]float64, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var preds []float64
	line := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read predictions: %w", err)
		}
		line++
		if line == 1 && looksLikeHeader(record) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("predictions line %d: %w", line, err)
		}
		preds = append(preds, v)
	}
	return preds, nil
}

// ReadPredictionsFile loads predictions from disk.
func ReadPredictionsFile(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadPredictions(f)
}

// WriteCSV writes the dataset in the format FromCSV reads, header included.
// Infinite upper bounds render as "inf".
func WriteCSV(w io.Writer, d *Dataset) error {
	cw := csv.NewWriter(w)
	header := []string{"label_lower_bound", "label_upper_bound"}
	if d.Weight != nil {
		header = append(header, "weight")
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := range d.Lower {
		record := []string{formatBound(d.Lower[i]), formatBound(d.Upper[i])}
		if d.Weight != nil {
			record = append(record, strconv.FormatFloat(d.Weight[i], 'g', -1, 64))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func parseBound(field string, empty float64) (float64, error) {
	s := strings.TrimSpace(field)
	if s == "" {
		return empty, nil
	}
	// ParseFloat already accepts "inf" and "infinity" in any case.
	return strconv.ParseFloat(s, 64)
}

func formatBound(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// looksLikeHeader treats a first record whose leading field does not parse
// as a number as a header row.
func looksLikeHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
	return err != nil
}
