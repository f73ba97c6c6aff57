// Package docs registers the swagger spec for the regrid API.
// Code generated by swag init; kept in sync with the handler annotations.
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
        "/regrids": {
            "get": {
                "produces": ["application/json"],
                "tags": ["regrids"],
                "summary": "List regrid jobs",
                "responses": {
                    "200": {"description": "List of jobs", "schema": {"type": "array", "items": {"type": "object"}}},
                    "500": {"description": "Internal server error", "schema": {"type": "object"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["regrids"],
                "summary": "Submit a regrid job",
                "parameters": [
                    {"description": "Regrid job configuration", "name": "regrid", "in": "body", "required": true,
                     "schema": {"type": "object"}}
                ],
                "responses": {
                    "200": {"description": "Job accepted", "schema": {"type": "object"}},
                    "400": {"description": "Invalid request payload", "schema": {"type": "object"}},
                    "500": {"description": "Internal server error", "schema": {"type": "object"}}
                }
            }
        },
        "/regrids/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["regrids"],
                "summary": "Get a regrid job",
                "parameters": [{"type": "string", "description": "Job ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Job details", "schema": {"type": "object"}},
                    "404": {"description": "Job not found", "schema": {"type": "object"}}
                }
            }
        },
        "/regrids/{id}/tiles": {
            "get": {
                "produces": ["application/json"],
                "tags": ["regrids"],
                "summary": "Get tile statuses",
                "parameters": [{"type": "string", "description": "Job ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Tile statuses", "schema": {"type": "array", "items": {"type": "object"}}},
                    "500": {"description": "Internal server error", "schema": {"type": "object"}}
                }
            }
        },
        "/regrids/{id}/progress": {
            "get": {
                "produces": ["application/json"],
                "tags": ["regrids"],
                "summary": "Get stage progress",
                "parameters": [{"type": "string", "description": "Job ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Stage progress", "schema": {"type": "array", "items": {"type": "object"}}},
                    "500": {"description": "Internal server error", "schema": {"type": "object"}}
                }
            }
        },
        "/regrids/{id}/errors": {
            "get": {
                "produces": ["application/json"],
                "tags": ["regrids"],
                "summary": "Get job errors",
                "parameters": [{"type": "string", "description": "Job ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Errors", "schema": {"type": "array", "items": {"type": "object"}}},
                    "500": {"description": "Internal server error", "schema": {"type": "object"}}
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Regrid Pipeline API",
	Description:      "Submit and monitor tiled regridding jobs",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
