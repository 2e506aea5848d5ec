// Package docs registers the feed API description with swag.
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
        "/api/posts": {
            "get": {
                "description": "最新的已发布帖子，按创建时间倒序，最多 100 条",
                "produces": ["application/json"],
                "tags": ["feed"],
                "summary": "公开 feed",
                "parameters": [
                    {
                        "enum": ["news", "biz", "svc"],
                        "type": "string",
                        "description": "分类",
                        "name": "category",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {"$ref": "#/definitions/response.Response"},
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {"$ref": "#/definitions/handler.PostsResponse"}
                                    }
                                }
                            ]
                        }
                    },
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Response"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/media/{id}": {
            "get": {
                "produces": ["image/jpeg"],
                "tags": ["feed"],
                "summary": "帖子图片",
                "parameters": [
                    {
                        "type": "integer",
                        "description": "帖子ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "健康检查",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        }
    },
    "definitions": {
        "handler.PostsResponse": {
            "type": "object",
            "properties": {
                "posts": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/service.FeedItem"}
                }
            }
        },
        "response.Response": {
            "type": "object",
            "properties": {
                "data": {},
                "message": {"type": "string"},
                "ok": {"type": "boolean"}
            }
        },
        "service.FeedAuthor": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "service.FeedItem": {
            "type": "object",
            "properties": {
                "author": {"$ref": "#/definitions/service.FeedAuthor"},
                "category": {"type": "string"},
                "createdAt": {"type": "string"},
                "id": {"type": "integer"},
                "mediaUrl": {"type": "string"},
                "text": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "District Feed API",
	Description:      "Read-only feed of approved district posts.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
