package parsers

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ParseXLSX reads a workbook from an io.Reader. Only the first sheet is read,
// with its first row treated as headers, mirroring the CSV contract.
// Returns the ordered header list and streams data rows via channel.
// Caller must consume both channels to avoid goroutine leak.
func ParseXLSX(reader io.Reader) ([]string, <-chan Record, <-chan error) {
	records := make(chan Record, 100)
	errors := make(chan error, 1)

	fail := func(err error) ([]string, <-chan Record, <-chan error) {
		close(records)
		errors <- err
		close(errors)
		return nil, records, errors
	}

	book, err := excelize.OpenReader(reader)
	if err != nil {
		return fail(fmt.Errorf("failed to open workbook: %w", err))
	}

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		book.Close()
		return fail(fmt.Errorf("workbook has no sheets"))
	}

	rows, err := book.GetRows(sheets[0])
	if err != nil {
		book.Close()
		return fail(fmt.Errorf("failed to read sheet %q: %w", sheets[0], err))
	}
	book.Close()

	if len(rows) == 0 {
		close(records)
		close(errors)
		return nil, records, errors
	}

	headers := make([]string, len(rows[0]))
	copy(headers, rows[0])

	go func() {
		defer close(records)
		defer close(errors)

		for _, row := range rows[1:] {
			record := make(Record)
			for i, header := range headers {
				if i < len(row) {
					record[header] = row[i]
				} else {
					record[header] = "" // Trailing blank cells are trimmed by excelize
				}
			}
			records <- record
		}
	}()

	return headers, records, errors
}
