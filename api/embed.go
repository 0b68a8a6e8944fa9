// Package api embeds the OpenAPI description of the Beacon HTTP API.
package api

import _ "embed"

// OpenAPISpec is the OpenAPI 3.1 YAML served at GET /openapi.yaml.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
