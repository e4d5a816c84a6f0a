package lots

import (
	"lot-bulk-import/common"
)

// Ignore is the reserved mapping target meaning "discard this field".
// A source column named "ignore" cannot be mapped.
const Ignore = "ignore"

// ColumnMapping associates each logical field with a source column header,
// or Ignore. Exactly one mapping is active per import session.
type ColumnMapping map[string]string

// Mapped reports whether the field has a usable (non-ignore) source column.
func (m ColumnMapping) Mapped(field string) bool {
	header, ok := m[field]
	return ok && header != "" && header != Ignore
}

// Validate checks the mapping against the uploaded header list and the
// acting user's park count. An empty result means the wizard may advance.
func (m ColumnMapping) Validate(headers []string, parkCount int) []common.ValidationError {
	var issues []common.ValidationError

	for _, field := range MandatoryFields(parkCount) {
		target := m[field]
		if target == Ignore {
			target = "" // mapped-to-ignore is as missing as unmapped
		}
		if err := common.ValidateRequired(field, target); err != nil {
			issues = append(issues, *err)
		}
	}

	// Every non-ignore target must be a header that actually exists in the file
	for field, header := range m {
		if header == "" || header == Ignore {
			continue
		}
		if err := common.ValidateEnum(field, header, headers); err != nil {
			issues = append(issues, *err)
		}
	}

	return issues
}

// Complete reports whether every mandatory field is mapped non-ignore.
// Must be re-checked whenever the park count changes (loading -> resolved).
func (m ColumnMapping) Complete(parkCount int) bool {
	for _, field := range MandatoryFields(parkCount) {
		if !m.Mapped(field) {
			return false
		}
	}
	return true
}

// Suggest proposes a mapping by matching uploaded headers against field names
// and labels after slug normalization. Unmatched fields default to Ignore so
// the user only has to fill in what the suggestion missed.
func Suggest(headers []string) ColumnMapping {
	byKey := make(map[string]string, len(headers))
	for _, h := range headers {
		if h == Ignore {
			continue // reserved, never mappable
		}
		key := normalizeKey(h)
		if _, taken := byKey[key]; !taken {
			byKey[key] = h
		}
	}

	mapping := make(ColumnMapping, len(Fields()))
	for _, field := range Fields() {
		mapping[field.Name] = Ignore
		if h, ok := byKey[normalizeKey(field.Name)]; ok {
			mapping[field.Name] = h
		} else if h, ok := byKey[normalizeKey(field.Label)]; ok {
			mapping[field.Name] = h
		}
	}
	return mapping
}
