// Package templates renders the dashboard HTML. Components are written in
// dashboard.templ and compiled with `templ generate`.
package templates

import (
	"time"

	"github.com/JonMunkholm/conciliacao/internal/core"
)

// DashboardData is everything the dashboard page renders.
type DashboardData struct {
	Title     string
	View      *core.View
	Format    *core.Formatter
	Query     string // encoded filter query reused by export links
	StartDate string
	EndDate   string
	PageSize  int
}

// tagClass maps a tag to its CSS class.
var tagClass = map[core.Tag]string{
	core.TagSuccess:      "tag-success",
	core.TagFailure:      "tag-failure",
	core.TagPending:      "tag-pending",
	core.TagWarning:      "tag-warning",
	core.TagFlowPositive: "tag-flow-positive",
	core.TagFlowNeutral:  "tag-flow-neutral",
}

func cellClass(v *core.View, row int, f core.Field) string {
	return tagClass[v.Tags.At(row, f)]
}

func noticeClass(n core.Notice) string {
	return "notice notice-" + string(n.Level)
}

// loadedAt is the snapshot time in the dataset's zone, or "" before any load.
func loadedAt(v *core.View) string {
	if v == nil || v.LoadedAt.IsZero() {
		return ""
	}
	loc := v.Dataset.Location
	if loc == nil {
		loc = time.UTC
	}
	return v.LoadedAt.In(loc).Format("02/01/2006 15:04")
}

func isSelected(selected []string, value string) bool {
	for _, s := range selected {
		if s == value {
			return true
		}
	}
	return false
}

// minDate and maxDate bound the date pickers; both are empty when the
// dataset has no parsed dates.
func minDate(o core.Options) string {
	if o.MinDate.IsZero() {
		return ""
	}
	return o.MinDate.Format("2006-01-02")
}

func maxDate(o core.Options) string {
	if o.MaxDate.IsZero() {
		return ""
	}
	return o.MaxDate.Format("2006-01-02")
}

// visibleRows caps the table at the page size.
func visibleRows(d DashboardData) int {
	n := d.View.Dataset.Len()
	if d.PageSize > 0 && n > d.PageSize {
		return d.PageSize
	}
	return n
}

func exportURL(ext, query string) string {
	return "/export." + ext + "?" + query
}
