// Package docs registers the OpenAPI document served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/kpis": {
            "get": {
                "produces": ["application/json"],
                "tags": ["kpis"],
                "summary": "List KPIs",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/kpis/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["kpis"],
                "summary": "Get KPI",
                "parameters": [
                    {"type": "string", "description": "KPI ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/api/kpis/{id}/data": {
            "get": {
                "produces": ["application/json"],
                "tags": ["kpis"],
                "summary": "Load KPI data",
                "parameters": [
                    {"type": "string", "description": "KPI ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "description": "Window start, epoch millis", "name": "from", "in": "query"},
                    {"type": "integer", "description": "Window end, epoch millis", "name": "to", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/api/kpis/{id}/data/export": {
            "get": {
                "produces": ["application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "tags": ["kpis"],
                "summary": "Export KPI data",
                "parameters": [
                    {"type": "string", "description": "KPI ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "description": "Window start, epoch millis", "name": "from", "in": "query"},
                    {"type": "integer", "description": "Window end, epoch millis", "name": "to", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/api/kpis/{id}/loads": {
            "get": {
                "produces": ["application/json"],
                "tags": ["kpis"],
                "summary": "List recent loads",
                "parameters": [
                    {"type": "string", "description": "KPI ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "description": "Max records (default 50)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["text/plain"],
                "tags": ["health"],
                "summary": "Health Check",
                "responses": {"200": {"description": "OK", "schema": {"type": "string"}}}
            }
        },
        "/health/ready": {
            "get": {
                "produces": ["text/plain"],
                "tags": ["health"],
                "summary": "Readiness Check",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "string"}},
                    "503": {"description": "search unavailable", "schema": {"type": "string"}}
                }
            }
        }
    },
    "definitions": {
        "models.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8000",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "KPI Data Loader API",
	Description:      "Loads KPI datasets from Elasticsearch aggregations.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
