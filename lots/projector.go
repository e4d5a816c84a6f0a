package lots

import (
	"strings"

	"lot-bulk-import/parsers"
)

// ProjectedRecord is a row's data after the column mapping has been applied:
// logical field name to raw cell value, exactly as it will be submitted.
// Values are copied verbatim; type coercion is the backend's job.
type ProjectedRecord map[string]string

// Project applies the mapping to one parsed row. Returns nil when the
// mandatory identifier cell is blank; such rows are dropped, not errors.
// Project is pure: same inputs always produce the same record.
func Project(row parsers.Record, mapping ColumnMapping) ProjectedRecord {
	if !mapping.Mapped(FieldNameOrNumber) {
		return nil
	}
	if strings.TrimSpace(row[mapping[FieldNameOrNumber]]) == "" {
		return nil
	}

	record := make(ProjectedRecord)
	for field, header := range mapping {
		if header == "" || header == Ignore {
			continue
		}
		record[field] = row[header]
	}
	return record
}

// ProjectAll projects every row, excluding dropped ones. The resulting set is
// frozen by the wizard from the preview step onward, so what the user reviews
// is exactly what gets submitted.
func ProjectAll(rows []parsers.Record, mapping ColumnMapping) []ProjectedRecord {
	projected := make([]ProjectedRecord, 0, len(rows))
	for _, row := range rows {
		if record := Project(row, mapping); record != nil {
			projected = append(projected, record)
		}
	}
	return projected
}
