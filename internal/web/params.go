package web

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/conciliacao/internal/core"
)

// Query parameters shared by the dashboard, the API and export links.
const (
	paramFlow     = "flow"
	paramStatusTR = "status_tr"
	paramStatus   = "status"
	paramStart    = "start"
	paramEnd      = "end"
	paramLimit    = "limit"
)

const dayLayout = "2006-01-02"

// hasFilterParams reports whether the request carries any filter. A
// request without one gets the default selection.
func hasFilterParams(q url.Values) bool {
	for _, k := range []string{paramFlow, paramStatusTR, paramStatus, paramStart, paramEnd} {
		if _, ok := q[k]; ok {
			return true
		}
	}
	return false
}

// parseCriteria reads the filter selection. Categorical filters repeat the
// parameter once per value (flow=CASHIN&flow=CASHOUT) since values may
// themselves contain commas. Dates are YYYY-MM-DD days in loc.
func parseCriteria(r *http.Request, loc *time.Location) (core.Criteria, error) {
	q := r.URL.Query()

	dates, err := core.ParseDateRange(q.Get(paramStart), q.Get(paramEnd), loc)
	if err != nil {
		return core.Criteria{}, err
	}

	return core.Criteria{
		FlowTypes:         listParam(q, paramFlow),
		StatusTR:          listParam(q, paramStatusTR),
		StatusConciliacao: listParam(q, paramStatus),
		Dates:             dates,
	}, nil
}

// listParam returns the non-blank values of a repeated parameter.
func listParam(q url.Values, name string) []string {
	var out []string
	for _, v := range q[name] {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

// encodeCriteria is the inverse of parseCriteria.
func encodeCriteria(c core.Criteria) string {
	q := url.Values{}
	for _, v := range c.FlowTypes {
		q.Add(paramFlow, v)
	}
	for _, v := range c.StatusTR {
		q.Add(paramStatusTR, v)
	}
	for _, v := range c.StatusConciliacao {
		q.Add(paramStatus, v)
	}
	if s := formatDay(c.Dates.Start); s != "" {
		q.Set(paramStart, s)
	}
	if s := formatDay(c.Dates.End); s != "" {
		q.Set(paramEnd, s)
	}
	return q.Encode()
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dayLayout)
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
