package openapi

import (
	"net/http"
	"sync"

	json "github.com/goccy/go-json"
)

// SecuritySchemeName is the key the API-key scheme is registered under.
const SecuritySchemeName = "ApiKeyAuth"

// Publisher generates the document on first use, attaches the API-key
// security scheme and then hands out the same document for the life of the
// process.
type Publisher struct {
	generate   func() *Document
	headerName string

	once sync.Once
	doc  *Document
	raw  []byte
	err  error
}

// NewPublisher defers generate until the document is first requested.
// headerName is the header clients send the key in.
func NewPublisher(headerName string, generate func() *Document) *Publisher {
	return &Publisher{generate: generate, headerName: headerName}
}

// Document returns the cached document, building it on the first call.
func (p *Publisher) Document() *Document {
	p.once.Do(p.build)
	return p.doc
}

func (p *Publisher) build() {
	doc := p.generate()
	if doc.Components == nil {
		doc.Components = &Components{}
	}
	doc.Components.SecuritySchemes = map[string]SecurityScheme{
		SecuritySchemeName: {Type: "apiKey", In: "header", Name: p.headerName},
	}
	doc.Security = []SecurityRequirement{{SecuritySchemeName: {}}}

	p.doc = doc
	p.raw, p.err = json.Marshal(doc)
}

// ServeHTTP writes the document as JSON.
func (p *Publisher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.Document()
	if p.err != nil {
		http.Error(w, "openapi document unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(p.raw)
}
