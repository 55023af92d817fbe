package openapi

import (
	"bytes"
	"html/template"
	"net/http"
)

// DocsContentSecurityPolicy lets the documentation pages load their bundles
// from jsDelivr and run the inline bootstrap script.
const DocsContentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net; " +
	"style-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net https://fonts.googleapis.com; " +
	"font-src 'self' https://fonts.gstatic.com; " +
	"img-src 'self' data: https://cdn.jsdelivr.net https://cdn.redoc.ly; " +
	"worker-src 'self' blob:; connect-src 'self'; frame-ancestors 'none'"

const (
	swaggerJS  = "https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"
	swaggerCSS = "https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css"
	redocJS    = "https://cdn.jsdelivr.net/npm/redoc@2/bundles/redoc.standalone.js"
)

var swaggerTmpl = template.Must(template.New("swagger").Parse(`<!DOCTYPE html>
<html>
<head>
<link type="text/css" rel="stylesheet" href="{{.CSS}}">
<title>{{.Title}} - Swagger UI</title>
</head>
<body>
<div id="swagger-ui"></div>
<script src="{{.JS}}"></script>
<script>
const ui = SwaggerUIBundle({
  url: {{.SpecURL}},
  dom_id: "#swagger-ui",
  layout: "BaseLayout",
  deepLinking: true,
  showExtensions: true,
  showCommonExtensions: true,
  presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
})
</script>
</body>
</html>
`))

var redocTmpl = template.Must(template.New("redoc").Parse(`<!DOCTYPE html>
<html>
<head>
<title>{{.Title}} - ReDoc</title>
<meta charset="utf-8"/>
<meta name="viewport" content="width=device-width, initial-scale=1">
<link href="https://fonts.googleapis.com/css?family=Montserrat:300,400,700|Roboto:300,400,700" rel="stylesheet">
<style>body { margin: 0; padding: 0; }</style>
</head>
<body>
<noscript>ReDoc requires Javascript to function. Please enable it to browse the documentation.</noscript>
<redoc spec-url="{{.SpecURL}}"></redoc>
<script src="{{.JS}}"></script>
</body>
</html>
`))

type page struct {
	Title   string
	SpecURL string
	JS      string
	CSS     string
}

// SwaggerUI serves the interactive console for the document at specURL.
func SwaggerUI(title, specURL string) http.Handler {
	return renderPage(swaggerTmpl, page{Title: title, SpecURL: specURL, JS: swaggerJS, CSS: swaggerCSS})
}

// ReDoc serves the read-only reference for the document at specURL.
func ReDoc(title, specURL string) http.Handler {
	return renderPage(redocTmpl, page{Title: title, SpecURL: specURL, JS: redocJS})
}

// renderPage executes the template once; the pages never change at runtime.
func renderPage(t *template.Template, p page) http.Handler {
	var buf bytes.Buffer
	if err := t.Execute(&buf, p); err != nil {
		panic("openapi: render " + t.Name() + ": " + err.Error())
	}
	body := buf.Bytes()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Type", "text/html; charset=utf-8")
		h.Set("Content-Security-Policy", DocsContentSecurityPolicy)
		h.Set("Cache-Control", "public, max-age=300")
		_, _ = w.Write(body)
	})
}
