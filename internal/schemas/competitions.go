// Package schemas holds the response shapes the API promises and checks
// results against them before they are sent.
package schemas

import "time"

// Validation checks presence and type only: slices must not be null, nested
// items are checked in turn. Empty strings and zero counts are valid values.

// CompetitionSearch is the body of GET /competitions/search/{competition_name}.
type CompetitionSearch struct {
	Query          string                    `json:"query"`
	PageNumber     int                       `json:"pageNumber"`
	LastPageNumber int                       `json:"lastPageNumber"`
	Results        []CompetitionSearchResult `json:"results" validate:"required,dive"`
	UpdatedAt      time.Time                 `json:"updatedAt"`
}

type CompetitionSearchResult struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Country          string  `json:"country"`
	Clubs            int     `json:"clubs"`
	Players          int     `json:"players"`
	TotalMarketValue *int64  `json:"totalMarketValue"`
	MeanMarketValue  *int64  `json:"meanMarketValue"`
	Continent        *string `json:"continent"`
}

// CompetitionClubs is the body of GET /competitions/{competition_id}/clubs.
type CompetitionClubs struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	SeasonID  string            `json:"seasonId"`
	Clubs     []CompetitionClub `json:"clubs" validate:"required,dive"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

type CompetitionClub struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FillDefaults sets server-populated fields the data source left empty.
// UpdatedAt defaults to now.
func FillDefaults(v any, now time.Time) {
	switch s := v.(type) {
	case *CompetitionSearch:
		if s != nil && s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
	case *CompetitionClubs:
		if s != nil && s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
	}
}
