package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Record represents a single data row as a map of column header to raw cell value
type Record map[string]string

// ParseCSV reads delimited text from an io.Reader, treating the first row as headers.
// It returns the ordered header list synchronously and streams data rows via channel.
// Returns two channels: one for records, one for errors.
// Caller must consume both channels to avoid goroutine leak.
func ParseCSV(reader io.Reader) ([]string, <-chan Record, <-chan error) {
	records := make(chan Record, 100) // Buffered for better throughput
	errors := make(chan error, 1)

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1 // Allow variable number of fields

	// Read the header row before streaming so the caller can build a mapping from it
	headers, err := csvReader.Read()
	if err != nil {
		close(records)
		if err != io.EOF {
			errors <- fmt.Errorf("failed to read header row: %w", err)
		}
		close(errors)
		return nil, records, errors
	}

	headersCopy := make([]string, len(headers))
	copy(headersCopy, headers)

	go func() {
		defer close(records)
		defer close(errors)

		for {
			row, err := csvReader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				// Any row error is fatal for the wizard, so stop at the
				// first one; emitting more than the buffer holds would
				// block this goroutine against a draining consumer
				errors <- err
				return
			}

			// Map row to headers
			record := make(Record)
			for i, header := range headersCopy {
				if i < len(row) {
					record[header] = row[i]
				} else {
					record[header] = "" // Missing column value
				}
			}

			records <- record
		}
	}()

	return headersCopy, records, errors
}

// Collect drains a record stream into a slice, returning the first error seen.
// Any row-level parse error is fatal for wizard purposes: the caller discards
// everything and the session stays on the upload step.
func Collect(records <-chan Record, errs <-chan error) ([]Record, error) {
	var rows []Record
	for record := range records {
		rows = append(rows, record)
	}

	var firstErr error
	for err := range errs {
		if firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return rows, nil
}
