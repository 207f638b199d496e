package web

import (
	"time"

	"github.com/JonMunkholm/conciliacao/internal/cache"
	"github.com/JonMunkholm/conciliacao/internal/core"
	"github.com/google/uuid"
)

// SummaryResponse is the body of GET /api/summary. Summary is nil when the
// selection is empty or the source failed; Notices say which.
type SummaryResponse struct {
	SnapshotID uuid.UUID       `json:"snapshot_id"`
	LoadedAt   time.Time       `json:"loaded_at"`
	Criteria   core.Criteria   `json:"criteria"`
	Summary    *core.Summary   `json:"summary"`
	Display    *SummaryDisplay `json:"display,omitempty"`
	Notices    []core.Notice   `json:"notices"`
	Failed     bool            `json:"failed"`
}

// SummaryDisplay carries the metric cards as formatted in the dashboard locale.
type SummaryDisplay struct {
	Rate             string `json:"rate"`
	RateCaption      string `json:"rate_caption"`
	Difference       string `json:"difference"`
	DeltaCaption     string `json:"delta_caption"`
	Integrity        string `json:"integrity,omitempty"`
	IntegrityCaption string `json:"integrity_caption,omitempty"`
}

// OptionsResponse is the body of GET /api/options.
type OptionsResponse struct {
	FlowTypes         []string      `json:"flow_types"`
	StatusTR          []string      `json:"status_tr"`
	StatusConciliacao []string      `json:"status_conciliacao"`
	MinDate           string        `json:"min_date,omitempty"`
	MaxDate           string        `json:"max_date,omitempty"`
	Default           core.Criteria `json:"default"`
	Notices           []core.Notice `json:"notices"`
	Failed            bool          `json:"failed"`
}

// RecordsResponse is the body of GET /api/records. Records and Tags are
// truncated to Returned rows; Total counts the whole selection.
type RecordsResponse struct {
	SnapshotID uuid.UUID      `json:"snapshot_id"`
	Total      int            `json:"total"`
	Returned   int            `json:"returned"`
	Columns    []core.Column  `json:"columns"`
	Records    []core.Record  `json:"records"`
	Tags       core.TagMatrix `json:"tags"`
	Notices    []core.Notice  `json:"notices"`
	Failed     bool           `json:"failed"`
}

func (s *Server) summaryResponse(v *core.View) SummaryResponse {
	resp := SummaryResponse{
		SnapshotID: v.SnapshotID,
		LoadedAt:   v.LoadedAt,
		Criteria:   v.Criteria,
		Summary:    v.Summary,
		Notices:    nonNil(v.Notices),
		Failed:     v.Failed,
	}
	if sum := v.Summary; sum != nil {
		d := &SummaryDisplay{
			Rate:         s.format.Percent(sum.Rate.Percent),
			RateCaption:  s.format.RateCaption(sum.Rate),
			Difference:   s.format.Money(sum.Delta.Difference),
			DeltaCaption: s.format.DeltaCaption(sum.Delta),
		}
		if sum.Integrity != nil {
			d.Integrity = s.format.Percent(sum.Integrity.Percent)
			d.IntegrityCaption = s.format.IntegrityCaption(sum.Integrity.Counts)
		}
		resp.Display = d
	}
	return resp
}

func optionsResponse(v *core.View) OptionsResponse {
	return OptionsResponse{
		FlowTypes:         nonNil(v.Options.FlowTypes),
		StatusTR:          nonNil(v.Options.StatusTR),
		StatusConciliacao: nonNil(v.Options.StatusConciliacao),
		MinDate:           formatDay(v.Options.MinDate),
		MaxDate:           formatDay(v.Options.MaxDate),
		Default:           v.Criteria,
		Notices:           nonNil(v.Notices),
		Failed:            v.Failed,
	}
}

func recordsResponse(v *core.View, limit int) RecordsResponse {
	n := v.Dataset.Len()
	if limit > 0 && n > limit {
		n = limit
	}
	tags := v.Tags
	if len(tags.Rows) > n {
		tags.Rows = tags.Rows[:n]
	}
	return RecordsResponse{
		SnapshotID: v.SnapshotID,
		Total:      v.Dataset.Len(),
		Returned:   n,
		Columns:    nonNil(v.Dataset.Columns),
		Records:    nonNil(v.Dataset.Records[:n]),
		Tags:       tags,
		Notices:    nonNil(v.Notices),
		Failed:     v.Failed,
	}
}

// nonNil keeps empty lists as [] rather than null in JSON.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// StatusResponse reports cache, export and mirror health for operators.
type StatusResponse struct {
	Status      string            `json:"status"`
	Cache       *cache.Stats      `json:"cache,omitempty"`
	Exports     core.ExportStatus `json:"exports"`
	Mirror      string            `json:"mirror"`
	MirrorError string            `json:"mirror_error,omitempty"`
}
