// Package report looks patients up in the clinic's exported report
// master. The export is consumed as CSV; matching is by normalized
// surname and first name.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// Details is one patient's demographics row.
type Details struct {
	Sex          string
	HealthNumber string
	DateOfBirth  string
	Name         string
	ChartNumber  string
}

// Column headers in the report export. Header matching is by substring
// so minor export-version differences don't break the lookup.
var columnKeys = map[string]string{
	"surname":     "surname",
	"first name":  "first",
	"sex":         "sex",
	"hin":         "hin",
	"dob":         "dob",
	"demographic": "chart",
}

// FindDetails searches the report at path for a patient by surname and
// first name. Returns found=false when no row matches.
func FindDetails(path, surname, firstName string) (Details, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return Details{}, false, fmt.Errorf("opening report %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return Details{}, false, fmt.Errorf("reading report header: %w", err)
	}
	cols := mapColumns(header)
	for _, key := range []string{"surname", "first"} {
		if _, ok := cols[key]; !ok {
			return Details{}, false, fmt.Errorf("report %s is missing a %s column", path, key)
		}
	}

	wantSurname := normalizeName(surname)
	wantFirst := normalizeName(firstName)

	for {
		row, err := r.Read()
		if err != nil {
			break
		}
		if normalizeName(field(row, cols, "surname")) != wantSurname {
			continue
		}
		// First names in the export may carry middle names.
		first := normalizeName(field(row, cols, "first"))
		if first != wantFirst && !strings.HasPrefix(first, wantFirst+" ") {
			continue
		}

		return Details{
			Sex:          field(row, cols, "sex"),
			HealthNumber: field(row, cols, "hin"),
			DateOfBirth:  field(row, cols, "dob"),
			Name:         fmt.Sprintf("%s %s", strings.TrimSpace(firstName), strings.TrimSpace(surname)),
			ChartNumber:  field(row, cols, "chart"),
		}, true, nil
	}
	return Details{}, false, nil
}

func mapColumns(header []string) map[string]int {
	cols := make(map[string]int)
	for i, name := range header {
		lower := strings.ToLower(name)
		for key, col := range columnKeys {
			if _, taken := cols[col]; !taken && strings.Contains(lower, key) {
				cols[col] = i
			}
		}
	}
	return cols
}

func field(row []string, cols map[string]int, key string) string {
	i, ok := cols[key]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
