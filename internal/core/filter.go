package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateRange selects records by creation day. Start and End are calendar
// days, both inclusive. A zero bound leaves that side open.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsZero reports whether the range filters nothing.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Bounds returns the first and last instants covered by the range in loc:
// the start of Start's day and the end of End's day.
func (r DateRange) Bounds(loc *time.Location) (from, to time.Time) {
	if !r.Start.IsZero() {
		from = startOfDay(r.Start, loc)
	}
	if !r.End.IsZero() {
		to = startOfDay(r.End, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return from, to
}

// Contains reports whether t falls inside the range. Zero times never match
// a non-empty range.
func (r DateRange) Contains(t time.Time, loc *time.Location) bool {
	if r.IsZero() {
		return true
	}
	if t.IsZero() {
		return false
	}
	from, to := r.Bounds(loc)
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// ParseDateRange parses optional start and end days. Empty strings leave
// the bound open. An end before the start is rejected.
func ParseDateRange(start, end string, loc *time.Location) (DateRange, error) {
	var r DateRange
	if strings.TrimSpace(start) != "" {
		t, ok := ParseDay(start, loc)
		if !ok {
			return DateRange{}, fmt.Errorf("%w: start date %q", ErrInvalidFilter, start)
		}
		r.Start = t
	}
	if strings.TrimSpace(end) != "" {
		t, ok := ParseDay(end, loc)
		if !ok {
			return DateRange{}, fmt.Errorf("%w: end date %q", ErrInvalidFilter, end)
		}
		r.End = t
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return DateRange{}, fmt.Errorf("%w: end date before start date", ErrInvalidFilter)
	}
	return r, nil
}

// Criteria is the set of user-selected filters. Empty sets pass everything.
type Criteria struct {
	FlowTypes         []string  `json:"flow_types,omitempty"`
	StatusTR          []string  `json:"status_tr,omitempty"`
	StatusConciliacao []string  `json:"status_conciliacao,omitempty"`
	Dates             DateRange `json:"dates"`
}

// IsZero reports whether the criteria select everything.
func (c Criteria) IsZero() bool {
	return len(c.FlowTypes) == 0 && len(c.StatusTR) == 0 &&
		len(c.StatusConciliacao) == 0 && c.Dates.IsZero()
}

// valueSet is a membership test over exact values. A nil set admits all.
type valueSet map[string]struct{}

func newValueSet(values []string) valueSet {
	if len(values) == 0 {
		return nil
	}
	s := make(valueSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (s valueSet) admits(v string) bool {
	if s == nil {
		return true
	}
	_, ok := s[v]
	return ok
}

// Apply returns the records of ds that satisfy every criterion, in their
// original order. Categorical matches are exact: selection options are
// drawn from the dataset's own values. ds is not modified.
func Apply(ds Dataset, c Criteria) Dataset {
	if c.IsZero() {
		return ds.withRecords(append([]Record(nil), ds.Records...))
	}

	flows := newValueSet(c.FlowTypes)
	statusTR := newValueSet(c.StatusTR)
	statusConc := newValueSet(c.StatusConciliacao)
	loc := ds.location()

	out := make([]Record, 0, len(ds.Records))
	for _, rec := range ds.Records {
		if !flows.admits(rec.FlowType) {
			continue
		}
		if !statusTR.admits(rec.StatusTR) {
			continue
		}
		if !statusConc.admits(rec.StatusConciliacao) {
			continue
		}
		if !c.Dates.Contains(rec.CreatedAt, loc) {
			continue
		}
		out = append(out, rec)
	}
	return ds.withRecords(out)
}

// Options lists the distinct values users can pick per filter. Flow types
// keep first-seen dataset order; both status lists are sorted. Empty values
// are not offered. MinDate and MaxDate bound the parsed creation times.
type Options struct {
	FlowTypes         []string  `json:"flow_types"`
	StatusTR          []string  `json:"status_tr"`
	StatusConciliacao []string  `json:"status_conciliacao"`
	MinDate           time.Time `json:"min_date"`
	MaxDate           time.Time `json:"max_date"`
}

// BuildOptions enumerates filter options for ds.
func BuildOptions(ds Dataset) Options {
	opts := Options{
		FlowTypes:         distinct(ds, FieldFlowType),
		StatusTR:          distinct(ds, FieldStatusTR),
		StatusConciliacao: distinct(ds, FieldStatusConciliacao),
	}
	sort.Strings(opts.StatusTR)
	sort.Strings(opts.StatusConciliacao)
	opts.MinDate, opts.MaxDate = DateBounds(ds)
	return opts
}

// distinct returns the non-empty values of a text column in first-seen order.
func distinct(ds Dataset, f Field) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, rec := range ds.Records {
		v := rec.Text(f)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// DateBounds returns the earliest and latest parsed creation times.
// Both are zero when no record has one.
func DateBounds(ds Dataset) (minT, maxT time.Time) {
	for _, rec := range ds.Records {
		t := rec.CreatedAt
		if t.IsZero() {
			continue
		}
		if minT.IsZero() || t.Before(minT) {
			minT = t
		}
		if maxT.IsZero() || t.After(maxT) {
			maxT = t
		}
	}
	return minT, maxT
}

// DefaultCriteria returns the initial selection: everything, or only
// defaultFlow when that flow type exists in ds.
func DefaultCriteria(ds Dataset, defaultFlow string) Criteria {
	if defaultFlow == "" {
		return Criteria{}
	}
	for _, rec := range ds.Records {
		if rec.FlowType == defaultFlow {
			return Criteria{FlowTypes: []string{defaultFlow}}
		}
	}
	return Criteria{}
}
