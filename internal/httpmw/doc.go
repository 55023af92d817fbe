// Package httpmw provides HTTP middleware for the public API server.
//
// httpserver.NewHandler composes them outermost first: security headers,
// panic recovery, request id, client address, CORS, rate limiting, OTel
// tracing, trace id headers, metrics, request logger, then inside the chi
// router route annotation, access log and the API-key gate.
//
// Headers, query strings and bodies are never logged: the API key travels in
// a request header.
package httpmw
