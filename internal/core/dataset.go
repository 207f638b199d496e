package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// BuildDataset applies the rename table to a raw table and converts every
// cell into a typed Record. Timestamps are interpreted in loc.
//
// A missing required column fails the load with ErrMissingColumn. Cells that
// fail to convert degrade to zero/absent values and are reported as
// warning notices (ErrDateConversion, ErrValueConversion); the dataset is
// still returned.
func BuildDataset(raw RawTable, loc *time.Location) (Dataset, []Notice, error) {
	if loc == nil {
		loc = time.UTC
	}

	// Resolve header positions; the first occurrence of a column wins.
	index := make(map[Field]int)
	for i, name := range raw.Columns {
		name = strings.TrimPrefix(name, "\ufeff")
		col, ok := LookupColumn(name)
		if !ok {
			continue
		}
		if _, seen := index[col.Field]; !seen {
			index[col.Field] = i
		}
	}

	var missing []string
	var present []Column
	for _, c := range schema {
		if _, ok := index[c.Field]; ok {
			present = append(present, c)
		} else if c.Required {
			missing = append(missing, c.Label)
		}
	}
	if len(missing) > 0 {
		return Dataset{}, nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}

	failures := make(map[Field]int)
	records := make([]Record, 0, len(raw.Rows))
	for _, row := range raw.Rows {
		var rec Record
		// A dataset without a quantity column weights each row once.
		if _, ok := index[FieldQuantity]; !ok {
			rec.Quantity = 1
		}
		for _, c := range present {
			i := index[c.Field]
			var cell string
			if i < len(row) {
				cell = row[i]
			}
			if !rec.set(c, cell, loc) {
				failures[c.Field]++
			}
		}
		records = append(records, rec)
	}

	ds := Dataset{
		Records:  records,
		Columns:  present,
		Location: loc,
	}
	return ds, conversionNotices(failures), nil
}

// conversionNotices summarizes per-column conversion failures, one notice
// for timestamps and one for other values.
func conversionNotices(failures map[Field]int) []Notice {
	if len(failures) == 0 {
		return nil
	}

	var dates, values []string
	var nDates, nValues int
	for _, c := range schema {
		n := failures[c.Field]
		if n == 0 {
			continue
		}
		part := fmt.Sprintf("%s: %d", c.Label, n)
		if c.Kind == KindTimestamp {
			dates = append(dates, part)
			nDates += n
		} else {
			values = append(values, part)
			nValues += n
		}
	}
	sort.Strings(dates)
	sort.Strings(values)

	var notices []Notice
	if nDates > 0 {
		err := fmt.Errorf("%w: %d cells", ErrDateConversion, nDates)
		notices = append(notices, NewNotice(LevelWarning, err, strings.Join(dates, "; ")))
	}
	if nValues > 0 {
		err := fmt.Errorf("%w: %d cells", ErrValueConversion, nValues)
		notices = append(notices, NewNotice(LevelWarning, err, strings.Join(values, "; ")))
	}
	return notices
}
