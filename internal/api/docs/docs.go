// Package docs registers the Swagger document of the management API with swag.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "description": "Returns server health status, including the query log store when enabled",
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.HealthResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/models.HealthResponse"}}
                }
            }
        },
        "/stats": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Returns uptime, process resource usage and proxy counters",
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Server statistics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ServerStatsResponse"}}
                }
            }
        },
        "/config": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Returns the effective configuration with the API key redacted",
                "produces": ["application/json"],
                "tags": ["config"],
                "summary": "Get current configuration",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/querylog": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Returns the most recent query log rows, newest first",
                "produces": ["application/json"],
                "tags": ["querylog"],
                "summary": "Recent queries",
                "parameters": [
                    {"type": "integer", "default": 100, "description": "Maximum rows (1-1000)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.QueryLogResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "models.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        },
        "models.HealthResponse": {
            "type": "object",
            "properties": {"status": {"type": "string"}, "querylog": {"type": "string"}}
        },
        "models.ServerStatsResponse": {
            "type": "object",
            "properties": {
                "uptime": {"type": "string"},
                "uptime_seconds": {"type": "integer"},
                "start_time": {"type": "string"},
                "goroutines": {"type": "integer"},
                "num_cpu": {"type": "integer"},
                "process": {"type": "object"},
                "proxy": {"type": "object"}
            }
        },
        "models.QueryLogResponse": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "entries": {"type": "array", "items": {"type": "object"}}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {"type": "apiKey", "name": "X-API-Key", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "hydraproxy Management API",
	Description:      "Read-only management API for the hydraproxy caching DNS forwarder.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
