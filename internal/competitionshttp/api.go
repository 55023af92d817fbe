// Package competitionshttp serves the /competitions routes.
package competitionshttp

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/tfmkt/transfermarkt-api/internal/httpmw"
	"github.com/tfmkt/transfermarkt-api/internal/log"
	"github.com/tfmkt/transfermarkt-api/internal/openapi"
	"github.com/tfmkt/transfermarkt-api/internal/schemas"
	"github.com/tfmkt/transfermarkt-api/internal/services"
)

const Tag = "competitions"

// API implements the competition endpoints on top of a services.Competitions
type API struct {
	svc    services.Competitions
	logger log.Logger
}

func NewAPI(svc services.Competitions, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{svc: svc, logger: logger}
}

// RegisterRoutes attaches the competition endpoints to the router
func (api *API) RegisterRoutes(r chi.Router) {
	r.Route("/competitions", func(r chi.Router) {
		r.With(httpmw.Scope("competitions.search")).
			Get("/search/{competition_name}", api.HandleSearchCompetitions)
		r.With(httpmw.Scope("competitions.clubs")).
			Get("/{competition_id}/clubs", api.HandleGetCompetitionClubs)
	})
}

// Routes describes the endpoints for the OpenAPI document.
func (api *API) Routes() []openapi.Route {
	return []openapi.Route{
		{
			Method:      http.MethodGet,
			Path:        "/competitions/search/{competition_name}",
			Summary:     "Search Competitions",
			OperationID: "search_competitions_competitions_search__competition_name__get",
			Tags:        []string{Tag},
			Query: []openapi.Parameter{{
				Name: "page_number",
				In:   "query",
				Schema: &openapi.Schema{
					Title:   "Page Number",
					AnyOf:   []*openapi.Schema{{Type: "integer"}, {Type: "null"}},
					Default: 1,
				},
			}},
			Response: schemas.CompetitionSearchName,
		},
		{
			Method:      http.MethodGet,
			Path:        "/competitions/{competition_id}/clubs",
			Summary:     "Get Competition Clubs",
			OperationID: "get_competition_clubs_competitions__competition_id__clubs_get",
			Tags:        []string{Tag},
			Query: []openapi.Parameter{{
				Name: "season_id",
				In:   "query",
				Schema: &openapi.Schema{
					Title: "Season Id",
					AnyOf: []*openapi.Schema{{Type: "string"}, {Type: "null"}},
				},
			}},
			Response: schemas.CompetitionClubsName,
		},
	}
}

// HandleSearchCompetitions serves GET /competitions/search/{competition_name}?page_number=
func (api *API) HandleSearchCompetitions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := pathParam(r, "competition_name")

	page := 1
	if raw, ok := lastQueryValue(r, "page_number"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			httpmw.WriteDetail(w, http.StatusUnprocessableEntity, []schemas.ErrorDetail{{
				Type:  "int_parsing",
				Loc:   []any{"query", "page_number"},
				Msg:   "Input should be a valid integer, unable to parse string as an integer",
				Input: raw,
			}})
			return
		}
		page = n
	}

	res, err := api.svc.SearchCompetitions(ctx, query, page)
	if err != nil {
		api.writeServiceError(ctx, w, err)
		return
	}
	api.writeValidated(ctx, w, res)
}

// HandleGetCompetitionClubs serves GET /competitions/{competition_id}/clubs?season_id=
func (api *API) HandleGetCompetitionClubs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	competitionID := pathParam(r, "competition_id")
	seasonID, _ := lastQueryValue(r, "season_id")

	res, err := api.svc.GetCompetitionClubs(ctx, competitionID, seasonID)
	if err != nil {
		api.writeServiceError(ctx, w, err)
		return
	}
	api.writeValidated(ctx, w, res)
}

// pathParam decodes a path segment exactly once. chi matches on RawPath when
// the request has one, otherwise the segment is already decoded.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v
	}
	if dec, err := url.PathUnescape(v); err == nil {
		return dec
	}
	return v
}

// lastQueryValue returns the last occurrence of key, matching how repeated
// scalar parameters have always been resolved by this API.
func lastQueryValue(r *http.Request, key string) (string, bool) {
	vals := r.URL.Query()[key]
	if len(vals) == 0 {
		return "", false
	}
	return vals[len(vals)-1], true
}

func (api *API) writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	L := api.log(ctx)

	var se *services.Error
	switch {
	case errors.As(err, &se):
		L.Debug(ctx, "upstream rejected request", "status", se.Status, "detail", se.Detail)
		httpmw.WriteDetail(w, se.Status, se.Detail)
	case errors.Is(err, services.ErrUnavailable):
		L.Warn(ctx, "competition service unavailable", "error", err)
		httpmw.WriteDetail(w, http.StatusServiceUnavailable, "Service unavailable")
	default:
		L.Error(ctx, err, "competition service failed")
		httpmw.WriteDetail(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

// writeValidated refuses to send a result that does not match its declared
// shape.
func (api *API) writeValidated(ctx context.Context, w http.ResponseWriter, v any) {
	schemas.FillDefaults(v, time.Now().UTC())
	if err := schemas.Validate(v); err != nil {
		api.log(ctx).Error(ctx, err, "response failed validation")
		httpmw.WriteDetail(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	body, err := json.Marshal(v)
	if err != nil {
		api.log(ctx).Error(ctx, err, "encode response")
		httpmw.WriteDetail(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// log prefers the request-scoped logger.
func (api *API) log(ctx context.Context) log.Logger {
	if L := log.FromContext(ctx); L != log.Nop() {
		return L
	}
	return api.logger
}
