package openapi

import (
	"maps"
	"regexp"
	"strings"
)

// Route describes one public operation.
type Route struct {
	Method      string
	Path        string // chi pattern, {name} placeholders
	Summary     string
	OperationID string
	Tags        []string
	Query       []Parameter
	// Response names the component schema of the 200 body.
	Response string
}

// Spec is everything Generate needs. Schemas are the response components.
type Spec struct {
	Info    Info
	Tags    []Tag
	Routes  []Route
	Schemas map[string]*Schema
}

var pathParam = regexp.MustCompile(`\{([^}:]+)(?::[^}]*)?\}`)

// Generate produces the document as the framework would before any
// customisation: every route with its path and query parameters, a 200
// response referencing its schema and a 422 validation error response.
func Generate(s Spec) *Document {
	doc := &Document{
		OpenAPI: Version,
		Info:    s.Info,
		Paths:   make(map[string]PathItem, len(s.Routes)),
		Tags:    s.Tags,
		Components: &Components{
			Schemas: validationSchemas(),
		},
	}
	maps.Copy(doc.Components.Schemas, s.Schemas)

	for _, rt := range s.Routes {
		path := pathParam.ReplaceAllString(rt.Path, "{$1}")
		op := &Operation{
			Tags:        rt.Tags,
			Summary:     rt.Summary,
			OperationID: rt.OperationID,
			Responses: map[string]Response{
				"200": jsonResponse("Successful Response", Ref(rt.Response)),
				"422": jsonResponse("Validation Error", Ref("HTTPValidationError")),
			},
		}
		for _, m := range pathParam.FindAllStringSubmatch(rt.Path, -1) {
			op.Parameters = append(op.Parameters, Parameter{
				Name:     m[1],
				In:       "path",
				Required: true,
				Schema:   &Schema{Type: "string", Title: titleCase(m[1])},
			})
		}
		op.Parameters = append(op.Parameters, rt.Query...)

		item, ok := doc.Paths[path]
		if !ok {
			item = PathItem{}
			doc.Paths[path] = item
		}
		item[strings.ToLower(rt.Method)] = op
	}
	return doc
}

func jsonResponse(desc string, s *Schema) Response {
	return Response{
		Description: desc,
		Content:     map[string]MediaType{"application/json": {Schema: s}},
	}
}

// validationSchemas are the 422 body components.
func validationSchemas() map[string]*Schema {
	return map[string]*Schema{
		"HTTPValidationError": {
			Title: "HTTPValidationError",
			Type:  "object",
			Properties: map[string]*Schema{
				"detail": {Title: "Detail", Type: "array", Items: Ref("ValidationError")},
			},
		},
		"ValidationError": {
			Title:    "ValidationError",
			Type:     "object",
			Required: []string{"loc", "msg", "type"},
			Properties: map[string]*Schema{
				"loc": {
					Title: "Location",
					Type:  "array",
					Items: &Schema{AnyOf: []*Schema{{Type: "string"}, {Type: "integer"}}},
				},
				"msg":  {Title: "Message", Type: "string"},
				"type": {Title: "Error Type", Type: "string"},
			},
		},
	}
}

// titleCase renders competition_name as "Competition Name".
func titleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
