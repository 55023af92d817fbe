package schemas

import "github.com/tfmkt/transfermarkt-api/internal/openapi"

// Component names referenced by the routes.
const (
	CompetitionSearchName = "CompetitionSearch"
	CompetitionClubsName  = "CompetitionClubs"
)

func str(title string) *openapi.Schema { return &openapi.Schema{Title: title, Type: "string"} }
func integer(title string) *openapi.Schema {
	return &openapi.Schema{Title: title, Type: "integer"}
}

// Components returns the OpenAPI schemas of every response shape.
func Components() map[string]*openapi.Schema {
	return map[string]*openapi.Schema{
		CompetitionSearchName: {
			Title:    CompetitionSearchName,
			Type:     "object",
			Required: []string{"query", "pageNumber", "lastPageNumber", "results"},
			Properties: map[string]*openapi.Schema{
				"query":          str("Query"),
				"pageNumber":     integer("Pagenumber"),
				"lastPageNumber": integer("Lastpagenumber"),
				"results":        {Title: "Results", Type: "array", Items: openapi.Ref("CompetitionSearchResult")},
				"updatedAt":      {Title: "Updatedat", Type: "string", Format: "date-time"},
			},
		},
		"CompetitionSearchResult": {
			Title:    "CompetitionSearchResult",
			Type:     "object",
			Required: []string{"id", "name", "country", "clubs", "players"},
			Properties: map[string]*openapi.Schema{
				"id":               str("Id"),
				"name":             str("Name"),
				"country":          str("Country"),
				"clubs":            integer("Clubs"),
				"players":          integer("Players"),
				"totalMarketValue": openapi.Nullable(integer("Totalmarketvalue")),
				"meanMarketValue":  openapi.Nullable(integer("Meanmarketvalue")),
				"continent":        openapi.Nullable(str("Continent")),
			},
		},
		CompetitionClubsName: {
			Title:    CompetitionClubsName,
			Type:     "object",
			Required: []string{"id", "name", "seasonId", "clubs"},
			Properties: map[string]*openapi.Schema{
				"id":        str("Id"),
				"name":      str("Name"),
				"seasonId":  str("Seasonid"),
				"clubs":     {Title: "Clubs", Type: "array", Items: openapi.Ref("CompetitionClub")},
				"updatedAt": {Title: "Updatedat", Type: "string", Format: "date-time"},
			},
		},
		"CompetitionClub": {
			Title:    "CompetitionClub",
			Type:     "object",
			Required: []string{"id", "name"},
			Properties: map[string]*openapi.Schema{
				"id":   str("Id"),
				"name": str("Name"),
			},
		},
	}
}
