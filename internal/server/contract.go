package server

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/plansmith/plansmith/internal/errors"
)

//go:embed openapi.yaml
var openapiDocument []byte

// route is one implemented method and path pair.
type route struct {
	method string
	path   string
}

// routeTable lists every route the server registers. The startup
// contract check keeps it aligned with the embedded OpenAPI document.
var routeTable = []route{
	{http.MethodPost, "/v1/plans/generate"},
	{http.MethodGet, "/v1/backends"},
	{http.MethodGet, "/healthz"},
	{http.MethodGet, "/readyz"},
	{http.MethodGet, "/openapi.yaml"},
}

// loadContract parses and validates the embedded OpenAPI document.
func loadContract(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiDocument)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeServerContract, "parse embedded OpenAPI document", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, errors.Wrap(errors.ErrCodeServerContract, "embedded OpenAPI document is invalid", err)
	}
	return doc, nil
}

// verifyContract checks that the route table and the document describe
// the same API. Drift in either direction refuses startup.
func verifyContract(doc *openapi3.T, routes []route) error {
	var drift []string

	for _, rt := range routes {
		item := doc.Paths.Find(rt.path)
		if item == nil || !hasMethod(item, rt.method) {
			drift = append(drift, fmt.Sprintf("route %s %s is not documented", rt.method, rt.path))
		}
	}

	implemented := make(map[route]bool, len(routes))
	for _, rt := range routes {
		implemented[rt] = true
	}
	for path, item := range doc.Paths.Map() {
		for method := range item.Operations() {
			if !implemented[route{method: method, path: path}] {
				drift = append(drift, fmt.Sprintf("documented operation %s %s is not implemented", method, path))
			}
		}
	}

	if len(drift) == 0 {
		return nil
	}
	sort.Strings(drift)
	return errors.New(errors.ErrCodeServerContract,
		fmt.Sprintf("API drifted from its OpenAPI document: %s", strings.Join(drift, "; "))).
		WithSuggestion("Keep the route table and openapi.yaml in the server package in sync")
}

// hasMethod checks if a path item documents the HTTP method.
func hasMethod(item *openapi3.PathItem, method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet:
		return item.Get != nil
	case http.MethodPost:
		return item.Post != nil
	case http.MethodPut:
		return item.Put != nil
	case http.MethodPatch:
		return item.Patch != nil
	case http.MethodDelete:
		return item.Delete != nil
	case http.MethodHead:
		return item.Head != nil
	case http.MethodOptions:
		return item.Options != nil
	default:
		return false
	}
}
