package handler

import (
	_ "embed"
	"fmt"
	"net/http"

	"gopkg.in/yaml.v3"

	"userservice/internal/httputil"
)

//go:embed api/openapi.yaml
var openAPIDocument []byte

// OpenAPIHandler serves the embedded OpenAPI document
type OpenAPIHandler struct {
	jsonDoc map[string]any
}

// NewOpenAPIHandler parses the embedded document once so a broken file fails at startup
func NewOpenAPIHandler() (*OpenAPIHandler, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(openAPIDocument, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse openapi document: %w", err)
	}
	return &OpenAPIHandler{jsonDoc: doc}, nil
}

// GET /openapi.yaml
func (h *OpenAPIHandler) YAML(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(openAPIDocument)
}

// GET /openapi.json
func (h *OpenAPIHandler) JSON(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, h.jsonDoc)
}
