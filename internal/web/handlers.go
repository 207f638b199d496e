package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/conciliacao/internal/core"
	"github.com/JonMunkholm/conciliacao/internal/logging"
	"github.com/JonMunkholm/conciliacao/internal/web/templates"
)

// mirrorPingTimeout bounds the status check against the snapshot mirror.
const mirrorPingTimeout = 2 * time.Second

// criteria resolves the request's selection the same way view does.
func (s *Server) criteria(r *http.Request) (core.Criteria, error) {
	if !hasFilterParams(r.URL.Query()) {
		return s.service.DefaultCriteria(r.Context()), nil
	}
	return parseCriteria(r, s.service.Location())
}

// view resolves the request's selection: the default one when no filter
// parameter is present, otherwise exactly what was asked for.
func (s *Server) view(r *http.Request) (*core.View, error) {
	if !hasFilterParams(r.URL.Query()) {
		return s.service.DefaultView(r.Context()), nil
	}
	c, err := parseCriteria(r, s.service.Location())
	if err != nil {
		return nil, err
	}
	return s.service.View(r.Context(), c), nil
}

// handleDashboard renders the main dashboard page. Load failures and empty
// selections render as notices on a 200 page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	v, err := s.view(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	data := templates.DashboardData{
		Title:     s.cfg.Dashboard.Title,
		View:      v,
		Format:    s.format,
		Query:     encodeCriteria(v.Criteria),
		StartDate: formatDay(v.Criteria.Dates.Start),
		EndDate:   formatDay(v.Criteria.Dates.End),
		PageSize:  s.cfg.Dashboard.PageSize,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Dashboard(data).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render dashboard", "error", err)
	}
}

// handleHealth reports liveness. It never touches the source.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus reports cache counters, export slot usage and mirror
// reachability. A failing mirror degrades the status but is still a 200:
// the local cache keeps serving.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:  "ok",
		Exports: s.service.ExportStatus(),
		Mirror:  "disabled",
	}
	if s.cache != nil {
		stats := s.cache.Stats()
		resp.Cache = &stats
	}
	if s.mirror != nil {
		ctx, cancel := context.WithTimeout(r.Context(), mirrorPingTimeout)
		defer cancel()
		if err := s.mirror.Ping(ctx); err != nil {
			logging.FromContext(r.Context()).Warn("snapshot mirror ping failed", "error", err)
			resp.Status = "degraded"
			resp.Mirror = "error"
			resp.MirrorError = err.Error()
		} else {
			resp.Mirror = "ok"
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleOptions returns the filter options and the default selection.
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	v := s.service.DefaultView(r.Context())
	writeJSON(w, r, statusOf(v), optionsResponse(v))
}

// handleSummary returns the metrics of the selection.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	v, err := s.view(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	logging.FromContext(r.Context()).Debug("summary requested",
		"flow_types", len(v.Criteria.FlowTypes),
		"records", v.Dataset.Len(),
	)
	writeJSON(w, r, statusOf(v), s.summaryResponse(v))
}

// handleRecords returns the filtered rows with their tags, capped by the
// limit parameter (default: the dashboard page size).
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	v, err := s.view(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	limit := parseIntParam(r, paramLimit, s.cfg.Dashboard.PageSize)
	writeJSON(w, r, statusOf(v), recordsResponse(v, limit))
}

// handleExport streams the filtered selection as a download. Unlike the
// page, an empty selection or a failed load is an error response.
func (s *Server) handleExport(format core.ExportFormat) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.criteria(r)
		if err != nil {
			s.respondError(w, r, err, http.StatusBadRequest)
			return
		}

		data, err := s.service.Export(r.Context(), c, format)
		if err != nil {
			s.respondError(w, r, err, statusFor(err))
			return
		}

		log := logging.WithFields(r.Context(), "format", string(format), "bytes", len(data))
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Content-Disposition", `attachment; filename="`+format.FileName()+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		if _, err := w.Write(data); err != nil {
			log.Warn("export write failed", "error", err)
			return
		}
		log.Debug("export served")
	}
}

// handleRefresh drops the cached snapshot.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Refresh(r.Context()); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "refreshed"})
}

// handleRefreshPage is the form variant of handleRefresh.
func (s *Server) handleRefreshPage(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Refresh(r.Context()); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// statusOf is 503 for views built from a failed load.
func statusOf(v *core.View) int {
	if v.Failed {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
