package parsers

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Format identifies a supported upload format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat maps a file name's extension to a supported format.
// Unsupported extensions are rejected before any parsing attempt.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		// Legacy .xls is a different container the workbook reader cannot
		// open, so it is refused here like any other unsupported type
		return "", fmt.Errorf("unsupported file type %q: must be .csv or .xlsx", filepath.Ext(filename))
	}
}

// Parse dispatches to the parser for the given format.
func Parse(format Format, reader io.Reader) ([]string, <-chan Record, <-chan error) {
	if format == FormatXLSX {
		return ParseXLSX(reader)
	}
	return ParseCSV(reader)
}
