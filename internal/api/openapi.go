package api

import (
    _ "embed"
    "encoding/json"
    "net/http"

    yaml "gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPIYAML []byte

// OpenAPIHandler serves the OpenAPI document
func (s *Server) OpenAPIHandler(w http.ResponseWriter, r *http.Request) {
    w.Header().Set("Content-Type", "application/yaml")
    w.WriteHeader(200)
    _, _ = w.Write(openAPIYAML)
}

// OpenAPIJSONHandler serves the same document converted to JSON.
func (s *Server) OpenAPIJSONHandler(w http.ResponseWriter, r *http.Request) {
    var obj map[string]any
    if err := yaml.Unmarshal(openAPIYAML, &obj); err != nil {
        writeProblem(w, 500, "OpenAPI parse failed", err.Error(), r.URL.Path)
        return
    }
    js, err := json.Marshal(obj)
    if err != nil { writeProblem(w, 500, "OpenAPI encode failed", err.Error(), r.URL.Path); return }
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(200)
    _, _ = w.Write(js)
}

// DocsHandler serves a minimal ReDoc page referencing /openapi.yaml
func (s *Server) DocsHandler(w http.ResponseWriter, r *http.Request) {
    w.Header().Set("Content-Type", "text/html; charset=utf-8")
    w.WriteHeader(200)
    _, _ = w.Write([]byte(`<!DOCTYPE html><html><head><title>xcscore API</title>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <script src="https://cdn.jsdelivr.net/npm/redoc@next/bundles/redoc.standalone.js"></script>
    </head><body>
    <redoc spec-url="/openapi.yaml"></redoc>
    </body></html>`))
}
