// Package services defines the data operations the API routes call.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/tfmkt/transfermarkt-api/internal/schemas"
)

// Competitions serves competition data.
type Competitions interface {
	// SearchCompetitions returns one page of competitions matching query.
	// pageNumber starts at 1.
	SearchCompetitions(ctx context.Context, query string, pageNumber int) (*schemas.CompetitionSearch, error)

	// GetCompetitionClubs lists the clubs of a competition. An empty seasonID
	// means the current season.
	GetCompetitionClubs(ctx context.Context, competitionID, seasonID string) (*schemas.CompetitionClubs, error)
}

// ErrUnavailable reports that the data source could not be reached or is
// being shed by the circuit breaker.
var ErrUnavailable = errors.New("service unavailable")

// Error is a failure the data source answered with, such as an unknown
// competition. Status is the HTTP status to return to the client.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string { return fmt.Sprintf("%d: %s", e.Status, e.Detail) }

// Unavailable is used when no data source is configured.
type Unavailable struct{}

func (Unavailable) SearchCompetitions(context.Context, string, int) (*schemas.CompetitionSearch, error) {
	return nil, ErrUnavailable
}

func (Unavailable) GetCompetitionClubs(context.Context, string, string) (*schemas.CompetitionClubs, error) {
	return nil, ErrUnavailable
}

// Check makes Unavailable report not-ready.
func (Unavailable) Check(context.Context) error { return ErrUnavailable }
