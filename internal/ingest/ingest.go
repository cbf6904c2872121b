// Package ingest loads the nutrition/activity/obesity CSV into memory
// once at startup. The resulting Dataset is read-only and shared freely
// between workers; only the five columns the computations use are kept.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// CSV column indices of the fields we keep.
const (
	colLocationDesc            = 4
	colQuestion                = 8
	colDataValue               = 11
	colStratificationCategory1 = 30
	colStratification1         = 31
)

// Entry is one row of the dataset. HasValue is false when the source
// row had an empty Data_Value cell.
type Entry struct {
	State    string
	Question string
	Value    float64
	HasValue bool
	Category string // StratificationCategory1
	Segment  string // Stratification1
}

// Dataset is the immutable in-memory table plus the question
// classification used by best5/worst5.
type Dataset struct {
	Entries []Entry
	// Skipped counts source rows dropped because Data_Value failed to
	// parse; reported once at startup.
	Skipped int

	bestIsMin map[string]bool
	bestIsMax map[string]bool
}

// Questions for which a smaller value is better.
var questionsBestIsMin = []string{
	"Percent of adults aged 18 years and older who have an overweight classification",
	"Percent of adults aged 18 years and older who have obesity",
	"Percent of adults who engage in no leisure-time physical activity",
	"Percent of adults who report consuming fruit less than one time daily",
	"Percent of adults who report consuming vegetables less than one time daily",
}

// Questions for which a larger value is better.
var questionsBestIsMax = []string{
	"Percent of adults who achieve at least 150 minutes a week of moderate-intensity aerobic physical activity or 75 minutes a week of vigorous-intensity aerobic activity (or an equivalent combination)",
	"Percent of adults who achieve at least 150 minutes a week of moderate-intensity aerobic physical activity or 75 minutes a week of vigorous-intensity aerobic physical activity and engage in muscle-strengthening activities on 2 or more days a week",
	"Percent of adults who achieve at least 300 minutes a week of moderate-intensity aerobic physical activity or 150 minutes a week of vigorous-intensity aerobic activity (or an equivalent combination)",
	"Percent of adults who engage in muscle-strengthening activities on 2 or more days a week",
}

// NewDataset builds a dataset directly from rows, with the standard
// question classification. Mostly useful for tests and tools.
func NewDataset(entries []Entry) *Dataset {
	ds := &Dataset{
		Entries:   entries,
		bestIsMin: make(map[string]bool, len(questionsBestIsMin)),
		bestIsMax: make(map[string]bool, len(questionsBestIsMax)),
	}
	for _, q := range questionsBestIsMin {
		ds.bestIsMin[q] = true
	}
	for _, q := range questionsBestIsMax {
		ds.bestIsMax[q] = true
	}
	return ds
}

// Load reads the CSV at path. The header row is skipped; rows that are
// too short or whose Data_Value cannot be parsed are counted and
// dropped, an empty Data_Value is kept as a missing value.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // validated per row below

	// Header row.
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read dataset header: %w", err)
	}

	ds := NewDataset(nil)

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read dataset row: %w", err)
		}
		if len(row) <= colStratification1 {
			ds.Skipped++
			continue
		}

		entry := Entry{
			State:    row[colLocationDesc],
			Question: row[colQuestion],
			Category: row[colStratificationCategory1],
			Segment:  row[colStratification1],
		}
		if cell := row[colDataValue]; cell != "" {
			value, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				ds.Skipped++
				continue
			}
			entry.Value = value
			entry.HasValue = true
		}
		ds.Entries = append(ds.Entries, entry)
	}

	return ds, nil
}

// BestIsMin reports whether smaller values are better for question.
func (d *Dataset) BestIsMin(question string) bool { return d.bestIsMin[question] }

// BestIsMax reports whether larger values are better for question.
func (d *Dataset) BestIsMax(question string) bool { return d.bestIsMax[question] }
