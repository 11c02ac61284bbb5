// Package api carries the OpenAPI description of the HTTP surface.
package api

import _ "embed"

// OpenAPISpec is the embedded openapi.yaml
//
//go:embed openapi.yaml
var OpenAPISpec []byte
