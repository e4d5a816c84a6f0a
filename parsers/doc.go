// Package parsers provides streaming parsers for the spreadsheet-like files
// accepted by the lot import wizard: delimited text (CSV) and workbooks (XLSX).
//
// Both parsers treat the first row as headers and return the ordered header
// list synchronously, then stream data rows through a Go channel so large
// files never need to be fully buffered by the parser itself. For workbooks
// only the first sheet is read.
//
// Both parsers return two channels:
//   - A records channel that streams parsed rows keyed by header
//   - An errors channel for parsing errors
//
// Callers must consume both channels to avoid goroutine leaks; Collect does
// this and folds any error into a single fatal result, which is the behavior
// the wizard wants (a bad file leaves the session on the upload step).
//
// Example usage:
//
//	format, err := parsers.DetectFormat(header.Filename)
//	if err != nil {
//	    // unsupported extension, rejected before parsing
//	}
//	headers, records, errs := parsers.Parse(format, file)
//	rows, err := parsers.Collect(records, errs)
package parsers
