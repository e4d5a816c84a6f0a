// Package lots defines the logical lot fields, the user's column mapping and
// the projection that turns parsed rows into submittable records.
package lots

import (
	"strings"

	"github.com/gosimple/slug"
)

// Logical field names for an imported lot. These are the keys of a
// ProjectedRecord and the property names the CRM batch endpoint accepts.
const (
	FieldNameOrNumber   = "nameOrNumber"
	FieldParkName       = "parkName"
	FieldStatus         = "status"
	FieldPriceForRent   = "priceForRent"
	FieldPriceForSale   = "priceForSale"
	FieldPriceRentToOwn = "priceRentToOwn"
	FieldDescription    = "description"
)

// Field describes one logical import field
type Field struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// Fields returns the full set of mappable lot fields, in display order.
func Fields() []Field {
	return []Field{
		{Name: FieldNameOrNumber, Label: "Lot Name or Number"},
		{Name: FieldParkName, Label: "Park Name"},
		{Name: FieldStatus, Label: "Status"},
		{Name: FieldPriceForRent, Label: "Price For Rent"},
		{Name: FieldPriceForSale, Label: "Price For Sale"},
		{Name: FieldPriceRentToOwn, Label: "Price Rent To Own"},
		{Name: FieldDescription, Label: "Description"},
	}
}

// MandatoryFields returns the fields that must be mapped before the wizard
// may advance. The lot identifier is always mandatory; the park name becomes
// mandatory exactly when the acting user manages more than one park, since
// the backend cannot otherwise tell which park a row belongs to.
func MandatoryFields(parkCount int) []string {
	mandatory := []string{FieldNameOrNumber}
	if parkCount > 1 {
		mandatory = append(mandatory, FieldParkName)
	}
	return mandatory
}

// normalizeKey reduces a header or field name to a comparable token:
// slugified, with separators stripped, so "Price For Rent", "price_for_rent"
// and "priceForRent" all collapse to "priceforrent".
func normalizeKey(s string) string {
	cleaned := slug.Make(s)
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	cleaned = strings.ReplaceAll(cleaned, "_", "")
	return cleaned
}
