// Package docs registers the swagger spec for the worker's ambient admin
// surface (/health, /health/ai, /ready, /live, /metrics). Hand-maintained
// rather than swag-generated, since this core has no REST API to annotate
// beyond the ambient surface itself.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "newsradar worker admin surface",
        "description": "Ambient health, readiness, liveness, and metrics endpoints for the content-acquisition and AI-analysis worker.",
        "version": "1.0"
    },
    "basePath": "/",
    "paths": {
        "/health": {
            "get": {
                "tags": ["admin"],
                "summary": "Content store connectivity check",
                "responses": {"200": {"description": "healthy"}, "503": {"description": "unhealthy"}}
            }
        },
        "/health/ai": {
            "get": {
                "tags": ["admin"],
                "summary": "LLM client circuit breaker state",
                "responses": {"200": {"description": "healthy"}, "503": {"description": "circuit open or unconfigured"}}
            }
        },
        "/ready": {
            "get": {
                "tags": ["admin"],
                "summary": "Readiness probe",
                "responses": {"200": {"description": "ready"}, "503": {"description": "not ready"}}
            }
        },
        "/live": {
            "get": {
                "tags": ["admin"],
                "summary": "Liveness probe",
                "responses": {"200": {"description": "alive"}}
            }
        },
        "/metrics": {
            "get": {
                "tags": ["admin"],
                "summary": "Prometheus scrape endpoint",
                "responses": {"200": {"description": "text/plain metrics exposition"}}
            }
        }
    }
}`

// SwaggerInfo holds the parsed swagger spec registered below.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "newsradar worker admin surface",
	Description:      "Ambient health, readiness, liveness, and metrics endpoints.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
