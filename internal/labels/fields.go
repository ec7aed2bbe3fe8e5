// Package labels reads product labels with a hosted vision model and files them into a spreadsheet.
package labels

import "strings"

// Columns are the fields extracted from a label, in workbook order.
var Columns = []string{
	"BCCD Name",
	"Branch",
	"Product Description",
	"Product Sr No",
	"Date of Purchase",
	"Complaint No",
	"Spare Part Code",
	"Nature of Defect",
	"Technician Name",
	"Manufactured Date",
}

const (
	colDescription = "Product Description"
	colSpareCode   = "Spare Part Code"
)

// Row maps column names to values.
type Row map[string]string

// Values returns the row in the order of columns.
func (r Row) Values(columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = r[c]
	}
	return out
}

// MapFields assigns OCR lines to columns. For every column the first non-empty line that
// mentions it (case-insensitively) is used: the text after the first ':' or, without one,
// the line with the column name removed. Columns with no line are empty.
func MapFields(text string) Row {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}

	row := make(Row, len(Columns))
	for _, col := range Columns {
		row[col] = ""
		needle := strings.ToLower(col)
		for _, l := range lines {
			if !strings.Contains(strings.ToLower(l), needle) {
				continue
			}
			if _, after, ok := strings.Cut(l, ":"); ok {
				row[col] = strings.TrimSpace(after)
			} else {
				row[col] = strings.TrimSpace(strings.ReplaceAll(l, col, ""))
			}
			break
		}
	}
	return row
}
