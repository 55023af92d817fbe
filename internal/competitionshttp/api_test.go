package competitionshttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/tfmkt/transfermarkt-api/internal/log"
	"github.com/tfmkt/transfermarkt-api/internal/schemas"
	"github.com/tfmkt/transfermarkt-api/internal/services"
)

// stubService records its arguments and returns canned results.
type stubService struct {
	gotQuery  string
	gotPage   int
	gotID     string
	gotSeason string
	calls     int

	search *schemas.CompetitionSearch
	clubs  *schemas.CompetitionClubs
	err    error
}

func (s *stubService) SearchCompetitions(_ context.Context, query string, page int) (*schemas.CompetitionSearch, error) {
	s.calls++
	s.gotQuery, s.gotPage = query, page
	return s.search, s.err
}

func (s *stubService) GetCompetitionClubs(_ context.Context, id, season string) (*schemas.CompetitionClubs, error) {
	s.calls++
	s.gotID, s.gotSeason = id, season
	return s.clubs, s.err
}

var updated = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func okService() *stubService {
	return &stubService{
		search: &schemas.CompetitionSearch{
			Query: "premier", PageNumber: 1, LastPageNumber: 1,
			Results: []schemas.CompetitionSearchResult{{
				ID: "GB1", Name: "Premier League", Country: "England", Clubs: 20, Players: 520,
			}},
			UpdatedAt: updated,
		},
		clubs: &schemas.CompetitionClubs{
			ID: "GB1", Name: "Premier League", SeasonID: "2023",
			Clubs:     []schemas.CompetitionClub{{ID: "985", Name: "Manchester United"}},
			UpdatedAt: updated,
		},
	}
}

func newRouter(svc services.Competitions) http.Handler {
	r := chi.NewRouter()
	NewAPI(svc, log.Nop()).RegisterRoutes(r)
	return r
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, http.NoBody))
	return rec
}

func TestSearchCompetitions_DefaultPage(t *testing.T) {
	svc := okService()
	rec := get(newRouter(svc), "/competitions/search/premier")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if svc.gotQuery != "premier" || svc.gotPage != 1 {
		t.Errorf("service called with %q page %d", svc.gotQuery, svc.gotPage)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, k := range []string{"query", "pageNumber", "lastPageNumber", "results", "updatedAt"} {
		if _, ok := body[k]; !ok {
			t.Errorf("response missing %q", k)
		}
	}
}

func TestSearchCompetitions_PageNumberAndEscapedName(t *testing.T) {
	svc := okService()
	rec := get(newRouter(svc), "/competitions/search/premier%20league?page_number=1&page_number=3")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if svc.gotQuery != "premier league" {
		t.Errorf("query = %q, want unescaped name", svc.gotQuery)
	}
	if svc.gotPage != 3 {
		t.Errorf("page = %d, want last value 3", svc.gotPage)
	}
}

func TestSearchCompetitions_NameDecodedOnce(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"/competitions/search/a%2541", "a%41"},
		{"/competitions/search/100%25", "100%"},
		{"/competitions/search/a%2Fb", "a/b"},
		{"/competitions/search/caf%C3%A9", "café"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			svc := okService()
			rec := get(newRouter(svc), tt.target)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if svc.gotQuery != tt.want {
				t.Errorf("query = %q, want %q", svc.gotQuery, tt.want)
			}
		})
	}
}

func TestSearchCompetitions_BadPageNumber(t *testing.T) {
	svc := okService()
	rec := get(newRouter(svc), "/competitions/search/premier?page_number=abc")

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatal("service must not be called on invalid input")
	}

	var body struct {
		Detail []schemas.ErrorDetail `json:"detail"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Detail) != 1 {
		t.Fatalf("detail = %+v", body.Detail)
	}
	d := body.Detail[0]
	if d.Type != "int_parsing" || fmt.Sprint(d.Loc) != "[query page_number]" || d.Input != "abc" {
		t.Errorf("detail = %+v", d)
	}
}

func TestGetCompetitionClubs(t *testing.T) {
	svc := okService()
	rec := get(newRouter(svc), "/competitions/GB1/clubs?season_id=2023")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if svc.gotID != "GB1" || svc.gotSeason != "2023" {
		t.Errorf("service called with %q %q", svc.gotID, svc.gotSeason)
	}
	if !strings.Contains(rec.Body.String(), `"seasonId":"2023"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestGetCompetitionClubs_NoSeason(t *testing.T) {
	svc := okService()
	get(newRouter(svc), "/competitions/GB1/clubs")
	if svc.gotSeason != "" {
		t.Errorf("season = %q, want empty", svc.gotSeason)
	}
}

func TestServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"upstream 404", &services.Error{Status: 404, Detail: "Competition not found"}, 404, `{"detail":"Competition not found"}`},
		{"unavailable", fmt.Errorf("%w: circuit open", services.ErrUnavailable), 503, `{"detail":"Service unavailable"}`},
		{"unexpected", errors.New("decode failed"), 500, `{"detail":"Internal Server Error"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{err: tt.err}
			rec := get(newRouter(svc), "/competitions/XX/clubs")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if rec.Body.String() != tt.body {
				t.Errorf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestResultFailingValidationIs500(t *testing.T) {
	svc := okService()
	svc.search.Results = nil
	rec := get(newRouter(svc), "/competitions/search/premier")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if rec.Body.String() != `{"detail":"Internal Server Error"}` {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestTypeCorrectResultsAreServed(t *testing.T) {
	svc := okService()
	svc.search.Results[0].Country = ""
	svc.search.Results[0].Name = ""
	if rec := get(newRouter(svc), "/competitions/search/premier"); rec.Code != http.StatusOK {
		t.Fatalf("empty strings: status = %d, body %s", rec.Code, rec.Body.String())
	}

	empty := okService()
	empty.search.PageNumber = 0
	empty.search.LastPageNumber = 0
	empty.search.Results = []schemas.CompetitionSearchResult{}
	rec := get(newRouter(empty), "/competitions/search/nothing")
	if rec.Code != http.StatusOK {
		t.Fatalf("empty page: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"results":[]`) {
		t.Errorf("body = %s", rec.Body.String())
	}

	clubs := okService()
	clubs.clubs.SeasonID = ""
	clubs.clubs.Clubs[0].ID = ""
	if rec := get(newRouter(clubs), "/competitions/GB1/clubs"); rec.Code != http.StatusOK {
		t.Fatalf("clubs: status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestMissingUpdatedAtIsFilled(t *testing.T) {
	svc := okService()
	svc.search.UpdatedAt = time.Time{}
	before := time.Now().UTC().Add(-time.Second)

	rec := get(newRouter(svc), "/competitions/search/premier")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		UpdatedAt time.Time `json:"updatedAt"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.UpdatedAt.Before(before) {
		t.Errorf("updatedAt = %v, want about now", body.UpdatedAt)
	}
}

func TestNilResultIs500(t *testing.T) {
	rec := get(newRouter(&stubService{}), "/competitions/GB1/clubs")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestRoutes_DescribeRegisteredEndpoints(t *testing.T) {
	api := NewAPI(okService(), nil)
	r := chi.NewRouter()
	api.RegisterRoutes(r)

	for _, rt := range api.Routes() {
		rctx := chi.NewRouteContext()
		if !r.Match(rctx, rt.Method, strings.NewReplacer("{competition_name}", "x", "{competition_id}", "y").Replace(rt.Path)) {
			t.Errorf("described route %s %s is not registered", rt.Method, rt.Path)
		}
		if rt.Response == "" || len(rt.Tags) == 0 {
			t.Errorf("route %s incomplete: %+v", rt.Path, rt)
		}
	}
}
