// Package docs registers the OpenAPI document served at /openapi.json.
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
        "/recognize": {
            "post": {
                "description": "上传 PNG/JPEG 图片，返回识别出的 LaTeX",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Recognition"],
                "summary": "公式识别",
                "parameters": [
                    {"type": "file", "description": "图片文件", "name": "file", "in": "formData", "required": true},
                    {"type": "string", "description": "模型名称", "name": "model", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/recognize.RecognizeResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/recognize.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/recognize.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/recognize.ErrorResponse"}}
                }
            }
        },
        "/recognitions": {
            "get": {
                "produces": ["application/json"],
                "tags": ["History"],
                "summary": "最近的识别记录",
                "parameters": [
                    {"type": "integer", "description": "返回条数 (1-200)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/recognitions/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["History"],
                "summary": "查询单条识别记录",
                "parameters": [
                    {"type": "string", "description": "记录ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Status"],
                "summary": "服务运行状态",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        }
    },
    "definitions": {
        "httptransport.APIResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "data": {},
                "message": {"type": "string"},
                "success": {"type": "boolean"}
            }
        },
        "recognize.ErrorResponse": {
            "type": "object",
            "properties": {
                "detail": {"type": "string"}
            }
        },
        "recognize.RecognizeResponse": {
            "type": "object",
            "properties": {
                "debug_path": {"type": "string"},
                "latex": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Formula OCR API",
	Description:      "Formula image to LaTeX recognition service.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// ScalarHTML renders the API reference for /openapi.json.
const ScalarHTML = `<!DOCTYPE html>
<html lang="zh-CN">
	<head>
		<meta charset="utf-8" />
		<title>Formula OCR API Reference</title>
		<meta name="viewport" content="width=device-width, initial-scale=1" />
	</head>
	<body>
		<script
			id="api-reference"
			data-url="/openapi.json"
			data-layout="modern"
			src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"
		></script>
	</body>
</html>`
