package roi

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// AllowList maps canonical region labels to anatomical names. A nil AllowList admits every
// label; an empty non-nil one admits none.
type AllowList map[int]string

// Allows reports whether label may appear in the output.
func (a AllowList) Allows(label int) bool {
	if a == nil {
		return true
	}
	_, ok := a[label]
	return ok
}

// Labels returns the admitted labels in ascending order.
func (a AllowList) Labels() []int {
	labels := make([]int, 0, len(a))
	for label := range a {
		labels = append(labels, label)
	}
	sort.Ints(labels)
	return labels
}

// LoadAllowList reads a two column "name,label" lookup table such as a FreeSurfer grey
// matter list.
func LoadAllowList(path string) (AllowList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	a, err := ParseAllowList(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// ParseAllowList parses a "name,label" table. A first row whose label column is not an
// integer is taken as a header.
func ParseAllowList(r io.Reader) (AllowList, error) {
	csvReader := csv.NewReader(r)
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = true
	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, err
	}

	a := make(AllowList, len(records))
	for i, record := range records {
		if len(record) < 2 {
			return nil, fmt.Errorf("line %d: want name and label, got %d column(s)", i+1, len(record))
		}
		name := strings.TrimSpace(record[0])
		label, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil {
			if i == 0 {
				continue
			}
			return nil, fmt.Errorf("line %d: bad label %q", i+1, record[1])
		}
		a[label] = name
	}
	return a, nil
}
