package board

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/scenario.board/internal/chart"
	"github.com/banshee-data/scenario.board/internal/db"
	"github.com/banshee-data/scenario.board/internal/httputil"
	"github.com/banshee-data/scenario.board/internal/monitoring"
	"github.com/banshee-data/scenario.board/internal/scenario"
	"github.com/banshee-data/scenario.board/internal/security"
	"github.com/banshee-data/scenario.board/internal/tab"
	"github.com/banshee-data/scenario.board/internal/version"
)

// writeError maps controller and storage errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scenario.ErrUnknownOption),
		errors.Is(err, scenario.ErrUnknownField),
		errors.Is(err, tab.ErrUnknownExperiment):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, db.ErrViewNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

// do runs fn on the controller loop on behalf of r.
func (ws *WebServer) do(r *http.Request, fn func(ctx context.Context) error) error {
	ctx := r.Context()
	return ws.loop.Do(ctx, func() error { return fn(ctx) })
}

func (ws *WebServer) requireDB(w http.ResponseWriter) bool {
	if ws.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return false
	}
	return true
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":      "ok",
		"service":     "scenario.board",
		"version":     version.String(),
		"experiments": len(ws.controller.Data().Experiments),
		"stats":       ws.controller.Stats(),
	}
	if ws.publisher != nil {
		resp["publisher"] = ws.publisher.Stats()
	}
	httputil.WriteJSONOK(w, resp)
}

type experimentInfo struct {
	Index           int    `json:"index"`
	Name            string `json:"name"`
	Path            string `json:"path"`
	Active          bool   `json:"active"`
	AggregatorFiles int    `json:"aggregator_files"`
	Statistics      int    `json:"statistics_tables"`
	Scenarios       int    `json:"simulation_scenarios"`
}

func (ws *WebServer) handleExperiments(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	active := ws.controller.Active()
	out := make([]experimentInfo, 0, len(ws.controller.Data().Experiments))
	for _, e := range ws.controller.Data().Experiments {
		out = append(out, experimentInfo{
			Index:           e.Index,
			Name:            e.DisplayName(),
			Path:            e.Path,
			Active:          active.Has(e.Index),
			AggregatorFiles: len(e.AggregatorTables),
			Statistics:      len(e.StatisticsTables),
			Scenarios:       len(e.ScenarioKeys),
		})
	}
	httputil.WriteJSONOK(w, out)
}

type activeRequest struct {
	Active []int `json:"active"`
}

func (ws *WebServer) handleActive(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req activeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.Active == nil {
		httputil.BadRequest(w, "active is required")
		return
	}
	if err := ws.do(r, func(context.Context) error { return ws.controller.SetActive(req.Active) }); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, ws.controller.Layout())
}

type selectionResponse struct {
	Selection scenario.Selection `json:"selection"`
	Options   scenario.Options   `json:"options"`
	Stage     string             `json:"stage"`
}

type selectRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (ws *WebServer) handleSelection(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method == http.MethodGet {
		sel := ws.controller.Selection()
		httputil.WriteJSONOK(w, selectionResponse{
			Selection: sel,
			Options:   ws.controller.Options(),
			Stage:     sel.Stage().String(),
		})
		return
	}

	var req selectRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	field, err := scenario.ParseField(req.Field)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := ws.do(r, func(ctx context.Context) error { return ws.controller.Select(ctx, field, req.Value) }); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, ws.controller.Layout())
}

type plannersRequest struct {
	Planners []string `json:"planners"`
}

func (ws *WebServer) handlePlanners(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req plannersRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.Planners == nil {
		httputil.BadRequest(w, "planners is required")
		return
	}
	if err := ws.do(r, func(ctx context.Context) error { return ws.controller.SetEnabledPlanners(ctx, req.Planners) }); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, ws.controller.Layout())
}

func (ws *WebServer) handleLayout(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, ws.controller.Layout())
}

// subtitle describes the selection as "type / log / scenario".
func subtitle(sel scenario.Selection) string {
	parts := make([]string, 0, 3)
	for _, v := range []string{sel.ScenarioType, sel.LogName, sel.ScenarioName} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " / ")
}

func (ws *WebServer) handleScenarioPage(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	layout := ws.controller.Layout()
	title := layout.Selection.ScenarioName
	if title == "" {
		title = "Scenario"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := chart.RenderPage(w, chart.PageInput{
		Title:                 title,
		Subtitle:              subtitle(layout.Selection),
		AssetsHost:            ws.assetsHost,
		Scores:                layout.Scores.Figures,
		TimeSeries:            layout.TimeSeries.Figures,
		ScoresPlaceholder:     layout.Scores.Placeholder,
		TimeSeriesPlaceholder: layout.TimeSeries.Placeholder,
	})
	if err != nil {
		monitoring.Logf("[board] failed to render scenario page: %v", err)
	}
}

func (ws *WebServer) handleFigurePNG(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		httputil.BadRequest(w, "missing 'key' parameter")
		return
	}
	fig, ok := ws.controller.Layout().Figure(key)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("no figure %q in the current layout", key))
		return
	}
	img, err := chart.PNG(fig)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := img.WriteTo(w); err != nil {
		monitoring.Logf("[board] failed to write figure %s: %v", key, err)
	}
}

func (ws *WebServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	layout := ws.controller.Layout()
	sel := layout.Selection
	in := chart.WorkbookInput{
		Title:      subtitle(sel),
		Scores:     layout.Scores.Figures,
		TimeSeries: layout.TimeSeries.Figures,
		Selection: [][2]string{
			{string(scenario.FieldScenarioType), sel.ScenarioType},
			{string(scenario.FieldLogName), sel.LogName},
			{string(scenario.FieldScenarioName), sel.ScenarioName},
			{"enabled_planners", strings.Join(sel.EnabledPlanners, ",")},
		},
	}
	f, err := chart.Workbook(in)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	defer f.Close()

	name := security.SanitizeFilename(sel.ScenarioName) + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	if _, err := f.WriteTo(w); err != nil {
		monitoring.Logf("[board] failed to write workbook %s: %v", name, err)
	}
}

type createViewRequest struct {
	Name string `json:"name"`
}

func (ws *WebServer) handleViews(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet, http.MethodPost, http.MethodDelete) {
		return
	}
	if !ws.requireDB(w) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		views, err := ws.db.ListViews(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if views == nil {
			views = []db.SavedView{}
		}
		httputil.WriteJSONOK(w, views)

	case http.MethodPost:
		var req createViewRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			httputil.BadRequest(w, "name is required")
			return
		}
		sel := ws.controller.Selection()
		v := &db.SavedView{
			Name:         req.Name,
			ScenarioType: sel.ScenarioType,
			LogName:      sel.LogName,
			ScenarioName: sel.ScenarioName,
			Planners:     sel.EnabledPlanners,
			Active:       ws.controller.Active(),
		}
		if err := ws.db.CreateView(r.Context(), v); err != nil {
			writeError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, v)

	case http.MethodDelete:
		id := r.URL.Query().Get("id")
		if id == "" {
			httputil.BadRequest(w, "missing 'id' parameter")
			return
		}
		if err := ws.db.DeleteView(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (ws *WebServer) handleApplyView(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	if !ws.requireDB(w) {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		httputil.BadRequest(w, "missing 'id' parameter")
		return
	}
	v, err := ws.db.GetView(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	sel := scenario.Selection{
		ScenarioType:    v.ScenarioType,
		LogName:         v.LogName,
		ScenarioName:    v.ScenarioName,
		EnabledPlanners: v.Planners,
	}
	if err := ws.do(r, func(ctx context.Context) error { return ws.controller.Restore(ctx, sel, v.Active) }); err != nil {
		writeError(w, err)
		return
	}
	monitoring.Logf("[board] applied saved view %s (%s)", v.ID, v.Name)
	httputil.WriteJSONOK(w, ws.controller.Layout())
}

func (ws *WebServer) handleRenders(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	if !ws.requireDB(w) {
		return
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = n
	}
	records, err := ws.db.RecentRenders(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []db.RenderRecord{}
	}
	httputil.WriteJSONOK(w, records)
}
